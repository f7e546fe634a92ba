package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/coach-change-api/internal/models"
	appErrors "github.com/noah-isme/coach-change-api/pkg/errors"
)

func TestTokenServiceRoundTrip(t *testing.T) {
	svc := NewTokenService(TokenConfig{Secret: "s3cret", Issuer: "campus", TTL: time.Minute})
	token, expires, err := svc.Issue(models.User{ID: "coach-1", Role: models.RoleCoach, Email: "c@example.com"})
	require.NoError(t, err)
	assert.True(t, expires.After(time.Now()))

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "coach-1", claims.UserID)
	assert.Equal(t, models.RoleCoach, claims.Role)
}

func TestTokenServiceRejects(t *testing.T) {
	svc := NewTokenService(TokenConfig{Secret: "s3cret", Issuer: "campus"})

	wrongSecret, _, err := NewTokenService(TokenConfig{Secret: "other", Issuer: "campus"}).Issue(models.User{ID: "u"})
	require.NoError(t, err)
	wrongIssuer, _, err := NewTokenService(TokenConfig{Secret: "s3cret", Issuer: "elsewhere"}).Issue(models.User{ID: "u"})
	require.NoError(t, err)

	expired := NewTokenService(TokenConfig{Secret: "s3cret", Issuer: "campus"})
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	stale, _, err := expired.Issue(models.User{ID: "u"})
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, &models.JWTClaims{UserID: "u"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":      "not-a-token",
		"wrong secret": wrongSecret,
		"wrong issuer": wrongIssuer,
		"expired":      stale,
		"alg none":     none,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(token)
			assertCode(t, appErrors.ErrUnauthorized, err)
		})
	}
}
