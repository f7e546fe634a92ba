package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}

// Actor is the authenticated identity acting on a request.
type Actor struct {
	ID       string
	Role     UserRole
	Email    string
	FullName string
}

// ActorFromClaims converts token claims into an Actor.
func ActorFromClaims(c *JWTClaims) Actor {
	if c == nil {
		return Actor{}
	}
	return Actor{ID: c.UserID, Role: c.Role, Email: c.Email, FullName: c.FullName}
}

// IsCampusAdmin reports whether the actor may decide the campus admin stage.
func (a Actor) IsCampusAdmin() bool {
	return a.Role == RoleCampusAdmin || a.Role == RoleSuperAdmin
}
