package dto

import (
	"strings"

	"github.com/noah-isme/coach-change-api/internal/models"
)

// CreateCoachChangeRequest is submitted by a student asking for a new coach.
// CurrentCoachID may be omitted and is then resolved from the active coach relation.
type CreateCoachChangeRequest struct {
	CurrentCoachID string `json:"currentCoachId" validate:"omitempty,max=64"`
	TargetCoachID  string `json:"targetCoachId" validate:"required,max=64"`
	Reason         string `json:"reason" validate:"required,max=500"`
}

// DecideCoachChangeRequest records one stage decision. Stage may be omitted and is
// then inferred from the acting user.
type DecideCoachChangeRequest struct {
	Stage    models.ApprovalStage `json:"stage" validate:"omitempty,oneof=CURRENT_COACH TARGET_COACH CAMPUS_ADMIN"`
	Decision models.StageDecision `json:"decision" validate:"required,oneof=APPROVED REJECTED"`
	Notes    string               `json:"notes" validate:"max=500"`
}

// Normalize upper-cases enum fields and accepts approve/reject verbs as decisions.
func (r *DecideCoachChangeRequest) Normalize() {
	r.Stage = models.ApprovalStage(strings.ToUpper(strings.TrimSpace(string(r.Stage))))
	switch strings.ToUpper(strings.TrimSpace(string(r.Decision))) {
	case "APPROVE", "APPROVED":
		r.Decision = models.DecisionApproved
	case "REJECT", "REJECTED":
		r.Decision = models.DecisionRejected
	default:
		r.Decision = models.StageDecision(strings.ToUpper(strings.TrimSpace(string(r.Decision))))
	}
	r.Notes = strings.TrimSpace(r.Notes)
}

// CoachChangeQuery mirrors supported listing filters.
type CoachChangeQuery struct {
	Status    []models.CoachChangeStatus
	StudentID string
	CoachID   string
	Page      int
	PageSize  int
}

// CoachChangeResult is returned by state-changing operations.
type CoachChangeResult struct {
	Request  *models.CoachChangeRequest `json:"request"`
	Replayed bool                       `json:"replayed"`
}
