package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/coach-change-api/pkg/errors"
)

func TestMetricsServiceSnapshot(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest(http.MethodGet, "/coach-changes", http.StatusOK, 4*time.Millisecond)
	m.ObserveHTTPRequest(http.MethodPost, "/coach-changes", http.StatusCreated, 2*time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordTransition("decide", "applied")
	m.RecordVersionConflict()
	m.RecordNotification("audit", nil)
	m.RecordNotification("email", errors.New("down"))

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.RequestsTotal)
	assert.InDelta(t, 3.0, snap.AverageRequestDurationMs, 0.01)
	assert.Equal(t, uint64(2), snap.CacheHits)
	assert.Equal(t, uint64(1), snap.CacheMisses)
	assert.InDelta(t, 2.0/3.0, snap.CacheHitRatio, 0.001)
	assert.Equal(t, uint64(1), snap.Transitions)
	assert.Equal(t, uint64(1), snap.VersionConflicts)
	assert.Equal(t, uint64(1), snap.NotificationFailures)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "coach_change_version_conflicts_total")
}

func TestMetricsServiceNilSafe(t *testing.T) {
	var m *MetricsService
	m.ObserveHTTPRequest(http.MethodGet, "/", http.StatusOK, time.Millisecond)
	m.RecordTransition("create", "applied")
	m.RecordNotification("audit", nil)
	assert.Equal(t, MetricsSnapshot{}, m.Snapshot())

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

type failingCache struct{ err error }

func (f failingCache) Get(context.Context, string, interface{}) error { return f.err }
func (f failingCache) SetIfNewer(context.Context, string, interface{}, int64, time.Duration) (bool, error) {
	return false, f.err
}
func (f failingCache) Delete(context.Context, ...string) error { return f.err }

// deleteRecorder fails versioned writes and records which keys were dropped.
type deleteRecorder struct {
	*mapCache
	deleted []string
}

func (d *deleteRecorder) SetIfNewer(context.Context, string, interface{}, int64, time.Duration) (bool, error) {
	return false, errors.New("script error")
}

func (d *deleteRecorder) Delete(ctx context.Context, keys ...string) error {
	d.deleted = append(d.deleted, keys...)
	return d.mapCache.Delete(ctx, keys...)
}

func TestCacheService(t *testing.T) {
	ctx := context.Background()
	metrics := NewMetricsService()
	svc := NewCacheService(&mapCache{items: map[string][]byte{}}, metrics, 0, nil, true)
	require.True(t, svc.Enabled())

	var out map[string]interface{}
	hit, err := svc.Get(ctx, "k", &out)
	require.NoError(t, err)
	assert.False(t, hit)

	written, err := svc.SetIfNewer(ctx, "k", map[string]interface{}{"version": 1, "a": "b"}, 1, 0)
	require.NoError(t, err)
	require.True(t, written)
	hit, err = svc.Get(ctx, "k", &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "b", out["a"])

	require.NoError(t, svc.Invalidate(ctx, "k"))
	hit, _ = svc.Get(ctx, "k", &out)
	assert.False(t, hit)

	snap := metrics.Snapshot()
	assert.Equal(t, uint64(1), snap.CacheHits)
	assert.Equal(t, uint64(2), snap.CacheMisses)
}

func TestCacheServiceDisabledAndFailures(t *testing.T) {
	ctx := context.Background()
	var out string

	disabled := NewCacheService(failingCache{err: errors.New("boom")}, nil, time.Minute, zap.NewNop(), false)
	hit, err := disabled.Get(ctx, "k", &out)
	assert.NoError(t, err)
	assert.False(t, hit)
	written, err := disabled.SetIfNewer(ctx, "k", "v", 1, 0)
	assert.NoError(t, err)
	assert.False(t, written)

	var nilSvc *CacheService
	assert.False(t, nilSvc.Enabled())

	broken := NewCacheService(failingCache{err: errors.New("boom")}, nil, time.Minute, zap.NewNop(), true)
	_, err = broken.Get(ctx, "k", &out)
	assert.Error(t, err)
	_, err = broken.SetIfNewer(ctx, "k", "v", 1, 0)
	assert.Error(t, err)
	assert.Error(t, broken.Invalidate(ctx, "k"))

	missing := NewCacheService(failingCache{err: appErrors.ErrCacheMiss}, nil, time.Minute, zap.NewNop(), true)
	hit, err = missing.Get(ctx, "k", &out)
	assert.NoError(t, err)
	assert.False(t, hit)
}

func TestCacheServiceSetIfNewer(t *testing.T) {
	ctx := context.Background()
	svc := NewCacheService(&mapCache{items: map[string][]byte{}}, nil, time.Minute, zap.NewNop(), true)
	type doc struct {
		Version int64  `json:"version"`
		Note    string `json:"note"`
	}

	written, err := svc.SetIfNewer(ctx, "k", doc{Version: 3, Note: "new"}, 3, 0)
	require.NoError(t, err)
	assert.True(t, written)

	written, err = svc.SetIfNewer(ctx, "k", doc{Version: 2, Note: "old"}, 2, 0)
	require.NoError(t, err)
	assert.False(t, written)

	var out doc
	hit, err := svc.Get(ctx, "k", &out)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, "new", out.Note)
}

func TestCacheServiceSetIfNewerFailureDropsKey(t *testing.T) {
	ctx := context.Background()
	backend := &deleteRecorder{mapCache: &mapCache{items: map[string][]byte{"k": []byte(`{"version":1}`)}}}
	svc := NewCacheService(backend, nil, time.Minute, zap.NewNop(), true)

	_, err := svc.SetIfNewer(ctx, "k", map[string]int64{"version": 2}, 2, 0)
	require.Error(t, err)
	assert.Equal(t, []string{"k"}, backend.deleted)

	var out map[string]int64
	hit, _ := svc.Get(ctx, "k", &out)
	assert.False(t, hit)
}
