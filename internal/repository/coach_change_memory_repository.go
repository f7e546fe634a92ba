package repository

import (
	"context"
	"database/sql"
	"sort"
	"sync"

	"github.com/noah-isme/coach-change-api/internal/models"
)

// MemoryCoachChangeRepository keeps requests in process memory. Every read and
// write goes through a copy so callers never share snapshots with the store.
type MemoryCoachChangeRepository struct {
	mu    sync.RWMutex
	items map[string]models.CoachChangeRequest
}

// NewMemoryCoachChangeRepository constructs an empty store.
func NewMemoryCoachChangeRepository() *MemoryCoachChangeRepository {
	return &MemoryCoachChangeRepository{items: make(map[string]models.CoachChangeRequest)}
}

// Create inserts req unless the id exists or the student already has a pending request.
func (r *MemoryCoachChangeRepository) Create(ctx context.Context, req *models.CoachChangeRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[req.ID]; ok {
		return ErrAlreadyExists
	}
	if req.Status == models.CoachChangeStatusPending {
		for _, existing := range r.items {
			if existing.StudentID == req.StudentID && existing.Status == models.CoachChangeStatusPending {
				return ErrPendingRequestExists
			}
		}
	}
	r.items[req.ID] = req.Clone()
	return nil
}

// Load returns a copy of the stored request or sql.ErrNoRows.
func (r *MemoryCoachChangeRepository) Load(ctx context.Context, id string) (*models.CoachChangeRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := item.Clone()
	return &out, nil
}

// CompareAndSwap replaces the stored request when its version equals expectedVersion.
func (r *MemoryCoachChangeRepository) CompareAndSwap(ctx context.Context, id string, expectedVersion int64, next *models.CoachChangeRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[id]
	if !ok {
		return sql.ErrNoRows
	}
	if current.Version != expectedVersion {
		return ErrVersionConflict
	}
	stored := next.Clone()
	stored.ID = id
	stored.Version = expectedVersion + 1
	r.items[id] = stored
	next.Version = stored.Version
	return nil
}

// List filters, orders (latest first) and pages the stored requests.
func (r *MemoryCoachChangeRepository) List(ctx context.Context, filter models.CoachChangeFilter) ([]models.CoachChangeRequest, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	r.mu.RLock()
	matched := make([]models.CoachChangeRequest, 0)
	for _, item := range r.items {
		if matchesFilter(item, filter) {
			matched = append(matched, item.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []models.CoachChangeRequest{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func matchesFilter(item models.CoachChangeRequest, filter models.CoachChangeFilter) bool {
	if len(filter.Status) > 0 {
		found := false
		for _, s := range filter.Status {
			if item.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.StudentID != "" && item.StudentID != filter.StudentID {
		return false
	}
	if filter.CoachID != "" && item.CurrentCoachID != filter.CoachID && item.TargetCoachID != filter.CoachID {
		return false
	}
	if filter.AwaitingCoachID != "" {
		awaitsCurrent := item.CurrentCoachID == filter.AwaitingCoachID && item.CurrentCoachStage.IsPending()
		awaitsTarget := item.TargetCoachID == filter.AwaitingCoachID && item.TargetCoachStage.IsPending()
		if !awaitsCurrent && !awaitsTarget {
			return false
		}
	}
	if filter.AwaitingAdmin && !item.CampusAdminStage.IsPending() {
		return false
	}
	return true
}
