package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/coach-change-api/internal/models"
)

// CoachRelationRepository manages which coach serves which student.
type CoachRelationRepository struct {
	db *sqlx.DB
}

// NewCoachRelationRepository constructs the repository.
func NewCoachRelationRepository(db *sqlx.DB) *CoachRelationRepository {
	return &CoachRelationRepository{db: db}
}

// CurrentCoach returns the coach of the student's active relation, or sql.ErrNoRows.
func (r *CoachRelationRepository) CurrentCoach(ctx context.Context, studentID string) (string, error) {
	const query = `SELECT coach_id FROM coach_student_relations
	WHERE student_id = $1 AND status = $2 ORDER BY created_at DESC LIMIT 1`
	var coachID string
	if err := r.db.GetContext(ctx, &coachID, query, studentID, models.CoachRelationActive); err != nil {
		return "", err
	}
	return coachID, nil
}

// ReassignParams describes a completed coach change.
type ReassignParams struct {
	StudentID   string
	FromCoachID string
	ToCoachID   string
	RequestID   string
	At          time.Time
}

// Reassign terminates the active relation with the previous coach and activates
// the relation with the new coach. Running it twice leaves the same state.
func (r *CoachRelationRepository) Reassign(ctx context.Context, params ReassignParams) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reassign transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const terminate = `UPDATE coach_student_relations SET status = $1, terminated_at = $2
	WHERE student_id = $3 AND coach_id = $4 AND status = $5`
	if _, err = tx.ExecContext(ctx, terminate, models.CoachRelationTerminated, params.At,
		params.StudentID, params.FromCoachID, models.CoachRelationActive); err != nil {
		return fmt.Errorf("terminate coach relation: %w", err)
	}

	const activate = `INSERT INTO coach_student_relations (id, coach_id, student_id, status, source_request_id, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (student_id, coach_id) WHERE status = 'ACTIVE' DO NOTHING`
	if _, err = tx.ExecContext(ctx, activate, uuid.NewString(), params.ToCoachID, params.StudentID,
		models.CoachRelationActive, params.RequestID, params.At); err != nil {
		return fmt.Errorf("activate coach relation: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit reassign: %w", err)
	}
	return nil
}
