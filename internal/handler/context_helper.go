package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/coach-change-api/internal/middleware"
	"github.com/noah-isme/coach-change-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// actorFromContext returns the authenticated actor and false when no token was verified.
func actorFromContext(c *gin.Context) (models.Actor, bool) {
	claims := claimsFromContext(c)
	if claims == nil || claims.UserID == "" {
		return models.Actor{}, false
	}
	return models.ActorFromClaims(claims), true
}
