package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/coach-change-api/internal/models"
	"github.com/noah-isme/coach-change-api/internal/service"
	"github.com/noah-isme/coach-change-api/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(tokens *service.TokenService, metrics *service.MetricsService) *gin.Engine {
	r := gin.New()
	r.Use(Metrics(metrics))
	r.GET("/me", JWT(tokens), func(c *gin.Context) {
		claims := c.MustGet(ContextUserKey).(*models.JWTClaims)
		c.String(http.StatusOK, claims.UserID+"|"+c.GetString(logger.UserIDKey))
	})
	r.GET("/admin", JWT(tokens), RequireRoles(models.RoleCampusAdmin, models.RoleSuperAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestJWTMiddleware(t *testing.T) {
	tokens := service.NewTokenService(service.TokenConfig{Secret: "secret", TTL: time.Minute})
	token, _, err := tokens.Issue(models.User{ID: "coach-1", Role: models.RoleCoach})
	require.NoError(t, err)
	r := newRouter(tokens, nil)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{name: "missing header", status: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", status: http.StatusUnauthorized},
		{name: "empty bearer", header: "Bearer   ", status: http.StatusUnauthorized},
		{name: "bad token", header: "Bearer nope", status: http.StatusUnauthorized},
		{name: "valid", header: "bearer " + token, status: http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, "coach-1|coach-1", w.Body.String())
			}
		})
	}
}

func TestRequireRoles(t *testing.T) {
	tokens := service.NewTokenService(service.TokenConfig{Secret: "secret"})
	metrics := service.NewMetricsService()
	r := newRouter(tokens, metrics)

	for role, want := range map[models.UserRole]int{
		models.RoleCoach:       http.StatusForbidden,
		models.RoleCampusAdmin: http.StatusNoContent,
		models.RoleSuperAdmin:  http.StatusNoContent,
	} {
		token, _, err := tokens.Issue(models.User{ID: "u-" + string(role), Role: role})
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, want, w.Code, string(role))
	}

	assert.Equal(t, uint64(3), metrics.Snapshot().RequestsTotal)
}
