package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/coach-change-api/internal/models"
)

var coachChangeRowColumns = []string{"id", "student_id", "current_coach_id", "target_coach_id", "reason", "status",
	"current_coach_decision", "current_coach_decided_at", "current_coach_decided_by", "current_coach_notes",
	"target_coach_decision", "target_coach_decided_at", "target_coach_decided_by", "target_coach_notes",
	"campus_admin_decision", "campus_admin_decided_at", "campus_admin_decided_by", "campus_admin_notes",
	"processed_at", "processed_by", "created_at", "updated_at", "version"}

func TestCoachChangeRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCoachChangeRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO coach_change_requests")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Create(context.Background(), pendingRequest("r1", "s1", time.Now())))

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO coach_change_requests")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "uq_coach_change_pending_student"})
	assert.ErrorIs(t, repo.Create(context.Background(), pendingRequest("r2", "s1", time.Now())), ErrPendingRequestExists)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO coach_change_requests")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "coach_change_requests_pkey"})
	assert.ErrorIs(t, repo.Create(context.Background(), pendingRequest("r1", "s3", time.Now())), ErrAlreadyExists)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO coach_change_requests")).
		WillReturnError(errors.New("connection reset"))
	err := repo.Create(context.Background(), pendingRequest("r4", "s4", time.Now()))
	assert.ErrorContains(t, err, "connection reset")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCoachChangeRepositoryLoad(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCoachChangeRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows(coachChangeRowColumns).AddRow(
		"r1", "s1", "c1", "c2", "schedule clash", "PENDING",
		"APPROVED", now, "c1", "fine by me",
		"PENDING", nil, nil, nil,
		"PENDING", nil, nil, nil,
		nil, nil, now, now, 2,
	)
	mock.ExpectQuery(regexp.QuoteMeta("FROM coach_change_requests WHERE id = $1")).
		WithArgs("r1").
		WillReturnRows(rows)

	req, err := repo.Load(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, models.DecisionApproved, req.CurrentCoachStage.Decision)
	require.NotNil(t, req.CurrentCoachStage.DecidedBy)
	assert.Equal(t, "c1", *req.CurrentCoachStage.DecidedBy)
	assert.True(t, req.TargetCoachStage.IsPending())
	assert.Nil(t, req.ProcessedAt)
	assert.EqualValues(t, 2, req.Version)

	mock.ExpectQuery(regexp.QuoteMeta("FROM coach_change_requests WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	_, err = repo.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCoachChangeRepositoryCompareAndSwap(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCoachChangeRepository(db)

	next := pendingRequest("r1", "s1", time.Now())
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = ? AND version = ?")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.CompareAndSwap(context.Background(), "r1", 1, next))
	assert.EqualValues(t, 2, next.Version)

	mock.ExpectExec(regexp.QuoteMeta("version = version + 1")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.CompareAndSwap(context.Background(), "r1", 1, pendingRequest("r1", "s1", time.Now())), ErrVersionConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCoachChangeRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCoachChangeRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM coach_change_requests WHERE status = ANY($1) AND ((current_coach_id = $2 AND current_coach_decision = 'PENDING') OR (target_coach_id = $2 AND target_coach_decision = 'PENDING'))")).
		WithArgs(sqlmock.AnyArg(), "c1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC, id LIMIT 10 OFFSET 0")).
		WithArgs(sqlmock.AnyArg(), "c1").
		WillReturnRows(sqlmock.NewRows(coachChangeRowColumns).AddRow(
			"r1", "s1", "c1", "c2", "reason", "PENDING",
			"PENDING", nil, nil, nil,
			"PENDING", nil, nil, nil,
			"PENDING", nil, nil, nil,
			nil, nil, now, now, 1,
		))

	list, total, err := repo.List(context.Background(), models.CoachChangeFilter{
		Status:          []models.CoachChangeStatus{models.CoachChangeStatusPending},
		AwaitingCoachID: "c1",
		Limit:           10,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, "r1", list[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
