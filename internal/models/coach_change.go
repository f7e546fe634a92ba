package models

import "time"

// CoachChangeStatus is the overall state of a coach change request.
type CoachChangeStatus string

const (
	CoachChangeStatusPending   CoachChangeStatus = "PENDING"
	CoachChangeStatusApproved  CoachChangeStatus = "APPROVED"
	CoachChangeStatusRejected  CoachChangeStatus = "REJECTED"
	CoachChangeStatusCancelled CoachChangeStatus = "CANCELLED"
)

// IsTerminal reports whether no further stage decisions are accepted.
func (s CoachChangeStatus) IsTerminal() bool {
	return s == CoachChangeStatusApproved || s == CoachChangeStatusRejected || s == CoachChangeStatusCancelled
}

// Valid reports whether s is a known status.
func (s CoachChangeStatus) Valid() bool {
	return s == CoachChangeStatusPending || s.IsTerminal()
}

// StageDecision is the outcome recorded on a single approval stage.
type StageDecision string

const (
	DecisionPending  StageDecision = "PENDING"
	DecisionApproved StageDecision = "APPROVED"
	DecisionRejected StageDecision = "REJECTED"
)

// IsFinal reports whether d is a decision an actor can submit.
func (d StageDecision) IsFinal() bool {
	return d == DecisionApproved || d == DecisionRejected
}

// ApprovalStage identifies one of the three independent approvals.
type ApprovalStage string

const (
	StageCurrentCoach ApprovalStage = "CURRENT_COACH"
	StageTargetCoach  ApprovalStage = "TARGET_COACH"
	StageCampusAdmin  ApprovalStage = "CAMPUS_ADMIN"
)

// ApprovalStages lists every stage in display order.
var ApprovalStages = []ApprovalStage{StageCurrentCoach, StageTargetCoach, StageCampusAdmin}

// Valid reports whether s names a known stage.
func (s ApprovalStage) Valid() bool {
	switch s {
	case StageCurrentCoach, StageTargetCoach, StageCampusAdmin:
		return true
	}
	return false
}

// StageApproval is the recorded state of one stage.
type StageApproval struct {
	Decision  StageDecision `json:"decision"`
	DecidedAt *time.Time    `json:"decidedAt,omitempty"`
	DecidedBy *string       `json:"decidedBy,omitempty"`
	Notes     *string       `json:"notes,omitempty"`
}

// IsPending reports whether the stage has not been decided yet.
func (a StageApproval) IsPending() bool {
	return a.Decision == "" || a.Decision == DecisionPending
}

func (a StageApproval) clone() StageApproval {
	out := StageApproval{Decision: a.Decision}
	if a.DecidedAt != nil {
		t := *a.DecidedAt
		out.DecidedAt = &t
	}
	if a.DecidedBy != nil {
		s := *a.DecidedBy
		out.DecidedBy = &s
	}
	if a.Notes != nil {
		s := *a.Notes
		out.Notes = &s
	}
	return out
}

// CoachChangeRequest asks to move a student from one coach to another.
type CoachChangeRequest struct {
	ID                string            `json:"id"`
	StudentID         string            `json:"studentId"`
	CurrentCoachID    string            `json:"currentCoachId"`
	TargetCoachID     string            `json:"targetCoachId"`
	Reason            string            `json:"reason"`
	Status            CoachChangeStatus `json:"status"`
	CurrentCoachStage StageApproval     `json:"currentCoachStage"`
	TargetCoachStage  StageApproval     `json:"targetCoachStage"`
	CampusAdminStage  StageApproval     `json:"campusAdminStage"`
	ProcessedAt       *time.Time        `json:"processedAt,omitempty"`
	ProcessedBy       *string           `json:"processedBy,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
	Version           int64             `json:"version"`
}

// Stage returns a pointer to the named stage, or nil for an unknown stage.
func (r *CoachChangeRequest) Stage(stage ApprovalStage) *StageApproval {
	switch stage {
	case StageCurrentCoach:
		return &r.CurrentCoachStage
	case StageTargetCoach:
		return &r.TargetCoachStage
	case StageCampusAdmin:
		return &r.CampusAdminStage
	}
	return nil
}

// AllStagesPending reports whether no stage has been decided.
func (r CoachChangeRequest) AllStagesPending() bool {
	return r.CurrentCoachStage.IsPending() && r.TargetCoachStage.IsPending() && r.CampusAdminStage.IsPending()
}

// IsParticipant reports whether userID is the student or one of the coaches.
func (r CoachChangeRequest) IsParticipant(userID string) bool {
	return userID != "" && (userID == r.StudentID || userID == r.CurrentCoachID || userID == r.TargetCoachID)
}

// CoachStageFor returns the coach stage bound to userID.
func (r CoachChangeRequest) CoachStageFor(userID string) (ApprovalStage, bool) {
	switch userID {
	case "":
		return "", false
	case r.CurrentCoachID:
		return StageCurrentCoach, true
	case r.TargetCoachID:
		return StageTargetCoach, true
	}
	return "", false
}

// Clone returns a deep copy safe to mutate independently.
func (r CoachChangeRequest) Clone() CoachChangeRequest {
	out := r
	out.CurrentCoachStage = r.CurrentCoachStage.clone()
	out.TargetCoachStage = r.TargetCoachStage.clone()
	out.CampusAdminStage = r.CampusAdminStage.clone()
	if r.ProcessedAt != nil {
		t := *r.ProcessedAt
		out.ProcessedAt = &t
	}
	if r.ProcessedBy != nil {
		s := *r.ProcessedBy
		out.ProcessedBy = &s
	}
	return out
}

// CoachChangeFilter constrains listing queries.
type CoachChangeFilter struct {
	Status    []CoachChangeStatus
	StudentID string
	// CoachID matches requests where the coach is either the current or target coach.
	CoachID string
	// AwaitingCoachID matches requests whose stage bound to this coach is still pending.
	AwaitingCoachID string
	AwaitingAdmin   bool
	Limit           int
	Offset          int
}
