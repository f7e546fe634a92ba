package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/coach-change-api/internal/middleware"
	"github.com/noah-isme/coach-change-api/internal/models"
	"github.com/noah-isme/coach-change-api/internal/repository"
	"github.com/noah-isme/coach-change-api/internal/service"
)

type coachSet map[string]bool

func (s coachSet) IsActiveCoach(_ context.Context, id string) (bool, error) { return s[id], nil }

type envelope struct {
	Data       json.RawMessage        `json:"data"`
	Error      *struct{ Code string } `json:"error"`
	Pagination *models.Pagination     `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
}

type testAPI struct {
	router *gin.Engine
	tokens *service.TokenService
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	machine, err := service.NewApprovalMachine()
	require.NoError(t, err)
	svc := service.NewCoachChangeService(
		repository.NewMemoryCoachChangeRepository(),
		coachSet{"coach-1": true, "coach-2": true},
		machine,
		zap.NewNop(),
		service.WithCoachChangeConfig(service.CoachChangeServiceConfig{StoreTimeout: time.Second}),
	)

	tokens := service.NewTokenService(service.TokenConfig{Secret: "test", Issuer: "campus"})
	r := gin.New()
	api := r.Group("/api/v1", middleware.JWT(tokens))
	NewCoachChangeHandler(svc).Register(api)
	return &testAPI{router: r, tokens: tokens}
}

func (a *testAPI) do(t *testing.T, method, path string, user models.User, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	token, _, err := a.tokens.Issue(user)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var env envelope
	if w.Header().Get("Content-Type") != "application/pdf" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

var (
	studentUser = models.User{ID: "student-1", Role: models.RoleStudent}
	coachOne    = models.User{ID: "coach-1", Role: models.RoleCoach}
	coachTwo    = models.User{ID: "coach-2", Role: models.RoleCoach}
	adminUser   = models.User{ID: "admin-1", Role: models.RoleCampusAdmin}
)

func TestCoachChangeHandlerWorkflow(t *testing.T) {
	api := newTestAPI(t)

	w, env := api.do(t, http.MethodPost, "/api/v1/coach-changes", studentUser, map[string]string{
		"currentCoachId": "coach-1",
		"targetCoachId":  "coach-2",
		"reason":         "timetable",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created models.CoachChangeRequest
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, models.CoachChangeStatusPending, created.Status)
	base := "/api/v1/coach-changes/" + created.ID

	w, env = api.do(t, http.MethodPost, base+"/decisions", coachOne, map[string]string{"decision": "approve"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, false, env.Meta["replayed"])

	w, env = api.do(t, http.MethodPost, base+"/decisions", coachOne, map[string]string{"decision": "APPROVED", "stage": "current_coach"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, env.Meta["replayed"])

	w, env = api.do(t, http.MethodPost, base+"/decisions", coachTwo, map[string]string{"decision": "APPROVED", "stage": "CURRENT_COACH"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "UNAUTHORIZED_ACTOR", env.Error.Code)

	w, _ = api.do(t, http.MethodPost, base+"/decisions", studentUser, map[string]string{"decision": "APPROVED"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env = api.do(t, http.MethodPost, base+"/cancel", studentUser, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ALREADY_FINALIZED", env.Error.Code)

	w, env = api.do(t, http.MethodPost, base+"/decisions", coachTwo, map[string]string{"decision": "reject", "notes": "full roster"})
	require.Equal(t, http.StatusOK, w.Code)
	var rejected models.CoachChangeRequest
	require.NoError(t, json.Unmarshal(env.Data, &rejected))
	assert.Equal(t, models.CoachChangeStatusRejected, rejected.Status)

	w, env = api.do(t, http.MethodPost, base+"/decisions", adminUser, map[string]string{"decision": "APPROVED"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ALREADY_FINALIZED", env.Error.Code)

	w, _ = api.do(t, http.MethodGet, base+"/audit.pdf", studentUser, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")))
}

func TestCoachChangeHandlerReads(t *testing.T) {
	api := newTestAPI(t)
	w, env := api.do(t, http.MethodPost, "/api/v1/coach-changes", studentUser, map[string]string{
		"currentCoachId": "coach-1",
		"targetCoachId":  "coach-2",
		"reason":         "timetable",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created models.CoachChangeRequest
	require.NoError(t, json.Unmarshal(env.Data, &created))

	w, env = api.do(t, http.MethodGet, "/api/v1/coach-changes?status=pending,approved&pageSize=5", adminUser, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, 1, env.Pagination.TotalCount)
	assert.Equal(t, 5, env.Pagination.PageSize)

	w, env = api.do(t, http.MethodGet, "/api/v1/coach-changes/pending-approvals", coachTwo, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var pending []models.CoachChangeRequest
	require.NoError(t, json.Unmarshal(env.Data, &pending))
	assert.Len(t, pending, 1)

	w, _ = api.do(t, http.MethodGet, "/api/v1/coach-changes/pending-approvals", studentUser, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = api.do(t, http.MethodGet, "/api/v1/coach-changes/"+created.ID, models.User{ID: "coach-7", Role: models.RoleCoach}, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env = api.do(t, http.MethodGet, "/api/v1/coach-changes/missing", adminUser, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	w, env = api.do(t, http.MethodPost, "/api/v1/coach-changes", studentUser, map[string]string{
		"currentCoachId": "coach-1",
		"targetCoachId":  "coach-2",
		"reason":         "again",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "PENDING_REQUEST_EXISTS", env.Error.Code)
}

func TestMetricsHandlerReady(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewMetricsHandler(service.NewMetricsService(), map[string]ReadinessCheck{
		"store": func(context.Context) error { return nil },
		"cache": func(context.Context) error { return assert.AnError },
	})
	r := gin.New()
	r.GET("/ready", h.Ready)
	r.GET("/metrics/summary", h.Snapshot)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"store":"ok"`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics/summary", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "versionConflicts")
}
