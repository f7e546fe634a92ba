package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCloneIsDeep(t *testing.T) {
	now := time.Now()
	by := "coach-1"
	notes := "ok"
	r := CoachChangeRequest{
		ID:                "r1",
		CurrentCoachStage: StageApproval{Decision: DecisionApproved, DecidedAt: &now, DecidedBy: &by, Notes: &notes},
		ProcessedBy:       &by,
	}

	c := r.Clone()
	*c.CurrentCoachStage.DecidedBy = "someone-else"
	*c.ProcessedBy = "other"
	c.Stage(StageCurrentCoach).Decision = DecisionRejected

	assert.Equal(t, "coach-1", *r.CurrentCoachStage.DecidedBy)
	assert.Equal(t, "coach-1", *r.ProcessedBy)
	assert.Equal(t, DecisionApproved, r.CurrentCoachStage.Decision)
}

func TestCoachStageFor(t *testing.T) {
	r := CoachChangeRequest{StudentID: "s", CurrentCoachID: "c1", TargetCoachID: "c2"}

	stage, ok := r.CoachStageFor("c2")
	assert.True(t, ok)
	assert.Equal(t, StageTargetCoach, stage)

	_, ok = r.CoachStageFor("s")
	assert.False(t, ok)
	_, ok = r.CoachStageFor("")
	assert.False(t, ok)

	assert.True(t, r.IsParticipant("s"))
	assert.False(t, r.IsParticipant("admin"))
}

func TestStatusHelpers(t *testing.T) {
	assert.False(t, CoachChangeStatusPending.IsTerminal())
	assert.True(t, CoachChangeStatusCancelled.IsTerminal())
	assert.False(t, CoachChangeStatus("ESCALATED").Valid())
	assert.True(t, StageApproval{}.IsPending())
	assert.False(t, ApprovalStage("OTHER").Valid())
	assert.False(t, DecisionPending.IsFinal())
}
