package models

import "time"

// WorkflowEventType names the notifications emitted by the coach change workflow.
type WorkflowEventType string

const (
	EventRequestCreated   WorkflowEventType = "REQUEST_CREATED"
	EventStageDecided     WorkflowEventType = "STAGE_DECIDED"
	EventRequestFinalized WorkflowEventType = "REQUEST_FINALIZED"
)

// WorkflowEvent describes one accepted state change.
type WorkflowEvent struct {
	ID            string              `json:"id"`
	Type          WorkflowEventType   `json:"type"`
	RequestID     string              `json:"requestId"`
	ActorID       string              `json:"actorId"`
	Stage         *ApprovalStage      `json:"stage,omitempty"`
	Decision      *StageDecision      `json:"decision,omitempty"`
	Status        CoachChangeStatus   `json:"status"`
	Snapshot      CoachChangeRequest  `json:"snapshot"`
	Previous      *CoachChangeRequest `json:"previous,omitempty"`
	CorrelationID string              `json:"correlationId,omitempty"`
	OccurredAt    time.Time           `json:"occurredAt"`
}
