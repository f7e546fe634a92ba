package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/coach-change-api/internal/models"
)

const (
	uniqueViolation          = "23505"
	pendingStudentConstraint = "uq_coach_change_pending_student"
)

const coachChangeColumns = `id, student_id, current_coach_id, target_coach_id, reason, status,
       current_coach_decision, current_coach_decided_at, current_coach_decided_by, current_coach_notes,
       target_coach_decision, target_coach_decided_at, target_coach_decided_by, target_coach_notes,
       campus_admin_decision, campus_admin_decided_at, campus_admin_decided_by, campus_admin_notes,
       processed_at, processed_by, created_at, updated_at, version`

// coachChangeRow is the flat table shape of a request; stages are stored column-wise.
type coachChangeRow struct {
	ID             string     `db:"id"`
	StudentID      string     `db:"student_id"`
	CurrentCoachID string     `db:"current_coach_id"`
	TargetCoachID  string     `db:"target_coach_id"`
	Reason         string     `db:"reason"`
	Status         string     `db:"status"`
	CurrentDec     string     `db:"current_coach_decision"`
	CurrentAt      *time.Time `db:"current_coach_decided_at"`
	CurrentBy      *string    `db:"current_coach_decided_by"`
	CurrentNotes   *string    `db:"current_coach_notes"`
	TargetDec      string     `db:"target_coach_decision"`
	TargetAt       *time.Time `db:"target_coach_decided_at"`
	TargetBy       *string    `db:"target_coach_decided_by"`
	TargetNotes    *string    `db:"target_coach_notes"`
	AdminDec       string     `db:"campus_admin_decision"`
	AdminAt        *time.Time `db:"campus_admin_decided_at"`
	AdminBy        *string    `db:"campus_admin_decided_by"`
	AdminNotes     *string    `db:"campus_admin_notes"`
	ProcessedAt    *time.Time `db:"processed_at"`
	ProcessedBy    *string    `db:"processed_by"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
	Version        int64      `db:"version"`
}

func rowFromModel(r *models.CoachChangeRequest) coachChangeRow {
	c := r.Clone()
	return coachChangeRow{
		ID:             c.ID,
		StudentID:      c.StudentID,
		CurrentCoachID: c.CurrentCoachID,
		TargetCoachID:  c.TargetCoachID,
		Reason:         c.Reason,
		Status:         string(c.Status),
		CurrentDec:     decisionOrPending(c.CurrentCoachStage.Decision),
		CurrentAt:      c.CurrentCoachStage.DecidedAt,
		CurrentBy:      c.CurrentCoachStage.DecidedBy,
		CurrentNotes:   c.CurrentCoachStage.Notes,
		TargetDec:      decisionOrPending(c.TargetCoachStage.Decision),
		TargetAt:       c.TargetCoachStage.DecidedAt,
		TargetBy:       c.TargetCoachStage.DecidedBy,
		TargetNotes:    c.TargetCoachStage.Notes,
		AdminDec:       decisionOrPending(c.CampusAdminStage.Decision),
		AdminAt:        c.CampusAdminStage.DecidedAt,
		AdminBy:        c.CampusAdminStage.DecidedBy,
		AdminNotes:     c.CampusAdminStage.Notes,
		ProcessedAt:    c.ProcessedAt,
		ProcessedBy:    c.ProcessedBy,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
		Version:        c.Version,
	}
}

func (row coachChangeRow) toModel() models.CoachChangeRequest {
	return models.CoachChangeRequest{
		ID:             row.ID,
		StudentID:      row.StudentID,
		CurrentCoachID: row.CurrentCoachID,
		TargetCoachID:  row.TargetCoachID,
		Reason:         row.Reason,
		Status:         models.CoachChangeStatus(row.Status),
		CurrentCoachStage: models.StageApproval{
			Decision: models.StageDecision(row.CurrentDec), DecidedAt: row.CurrentAt, DecidedBy: row.CurrentBy, Notes: row.CurrentNotes,
		},
		TargetCoachStage: models.StageApproval{
			Decision: models.StageDecision(row.TargetDec), DecidedAt: row.TargetAt, DecidedBy: row.TargetBy, Notes: row.TargetNotes,
		},
		CampusAdminStage: models.StageApproval{
			Decision: models.StageDecision(row.AdminDec), DecidedAt: row.AdminAt, DecidedBy: row.AdminBy, Notes: row.AdminNotes,
		},
		ProcessedAt: row.ProcessedAt,
		ProcessedBy: row.ProcessedBy,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
		Version:     row.Version,
	}
}

func decisionOrPending(d models.StageDecision) string {
	if d == "" {
		return string(models.DecisionPending)
	}
	return string(d)
}

// CoachChangeRepository persists coach change requests in Postgres.
type CoachChangeRepository struct {
	db *sqlx.DB
}

// NewCoachChangeRepository constructs the repository.
func NewCoachChangeRepository(db *sqlx.DB) *CoachChangeRepository {
	return &CoachChangeRepository{db: db}
}

// Create inserts a new request.
func (r *CoachChangeRepository) Create(ctx context.Context, req *models.CoachChangeRequest) error {
	const query = `INSERT INTO coach_change_requests (` + coachChangeColumns + `)
	VALUES (:id, :student_id, :current_coach_id, :target_coach_id, :reason, :status,
	        :current_coach_decision, :current_coach_decided_at, :current_coach_decided_by, :current_coach_notes,
	        :target_coach_decision, :target_coach_decided_at, :target_coach_decided_by, :target_coach_notes,
	        :campus_admin_decision, :campus_admin_decided_at, :campus_admin_decided_by, :campus_admin_notes,
	        :processed_at, :processed_by, :created_at, :updated_at, :version)`
	if _, err := r.db.NamedExecContext(ctx, query, rowFromModel(req)); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			if pqErr.Constraint == pendingStudentConstraint {
				return ErrPendingRequestExists
			}
			return ErrAlreadyExists
		}
		return fmt.Errorf("create coach change request: %w", err)
	}
	return nil
}

// Load fetches a request by id. Missing rows surface as sql.ErrNoRows.
func (r *CoachChangeRepository) Load(ctx context.Context, id string) (*models.CoachChangeRequest, error) {
	const query = `SELECT ` + coachChangeColumns + ` FROM coach_change_requests WHERE id = $1`
	var row coachChangeRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, err
	}
	req := row.toModel()
	return &req, nil
}

type casRow struct {
	coachChangeRow
	ExpectedVersion int64 `db:"expected_version"`
}

// CompareAndSwap writes next only if the stored version still equals expectedVersion.
// On success next.Version holds the new version.
func (r *CoachChangeRepository) CompareAndSwap(ctx context.Context, id string, expectedVersion int64, next *models.CoachChangeRequest) error {
	const query = `UPDATE coach_change_requests SET
	status = :status,
	current_coach_decision = :current_coach_decision, current_coach_decided_at = :current_coach_decided_at,
	current_coach_decided_by = :current_coach_decided_by, current_coach_notes = :current_coach_notes,
	target_coach_decision = :target_coach_decision, target_coach_decided_at = :target_coach_decided_at,
	target_coach_decided_by = :target_coach_decided_by, target_coach_notes = :target_coach_notes,
	campus_admin_decision = :campus_admin_decision, campus_admin_decided_at = :campus_admin_decided_at,
	campus_admin_decided_by = :campus_admin_decided_by, campus_admin_notes = :campus_admin_notes,
	processed_at = :processed_at, processed_by = :processed_by, updated_at = :updated_at,
	version = version + 1
	WHERE id = :id AND version = :expected_version`

	row := rowFromModel(next)
	row.ID = id
	result, err := r.db.NamedExecContext(ctx, query, casRow{coachChangeRow: row, ExpectedVersion: expectedVersion})
	if err != nil {
		return fmt.Errorf("update coach change request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check coach change update rows: %w", err)
	}
	if rows == 0 {
		return ErrVersionConflict
	}
	next.Version = expectedVersion + 1
	return nil
}

// List returns requests matching the filter (latest first) and the total match count.
func (r *CoachChangeRepository) List(ctx context.Context, filter models.CoachChangeFilter) ([]models.CoachChangeRequest, int, error) {
	args := make([]interface{}, 0, 5)
	conditions := make([]string, 0, 5)

	if len(filter.Status) > 0 {
		statuses := make([]string, len(filter.Status))
		for i, s := range filter.Status {
			statuses[i] = string(s)
		}
		args = append(args, pq.Array(statuses))
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if filter.CoachID != "" {
		args = append(args, filter.CoachID)
		conditions = append(conditions, fmt.Sprintf("(current_coach_id = $%[1]d OR target_coach_id = $%[1]d)", len(args)))
	}
	if filter.AwaitingCoachID != "" {
		args = append(args, filter.AwaitingCoachID)
		conditions = append(conditions, fmt.Sprintf(
			"((current_coach_id = $%[1]d AND current_coach_decision = 'PENDING') OR (target_coach_id = $%[1]d AND target_coach_decision = 'PENDING'))",
			len(args)))
	}
	if filter.AwaitingAdmin {
		conditions = append(conditions, "campus_admin_decision = 'PENDING'")
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM coach_change_requests"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count coach change requests: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf("SELECT %s FROM coach_change_requests%s ORDER BY created_at DESC, id LIMIT %d OFFSET %d",
		coachChangeColumns, where, limit, offset)

	var rows []coachChangeRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list coach change requests: %w", err)
	}
	out := make([]models.CoachChangeRequest, len(rows))
	for i, row := range rows {
		out[i] = row.toModel()
	}
	return out, total, nil
}
