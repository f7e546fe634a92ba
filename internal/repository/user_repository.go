package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/coach-change-api/internal/models"
)

// UserRepository reads the user directory.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByIDs returns the users among ids that exist. Order is not guaranteed.
func (r *UserRepository) FindByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const query = `SELECT id, email, full_name, role, active, created_at, updated_at FROM users WHERE id = ANY($1)`
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("find users by ids: %w", err)
	}
	return users, nil
}

// IsActiveCoach reports whether id belongs to an active user holding the coach role.
func (r *UserRepository) IsActiveCoach(ctx context.Context, id string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1 AND role = $2 AND active = TRUE)`
	var ok bool
	if err := r.db.GetContext(ctx, &ok, query, id, models.RoleCoach); err != nil {
		return false, fmt.Errorf("check active coach: %w", err)
	}
	return ok, nil
}
