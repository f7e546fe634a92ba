package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/statekit"

	"github.com/noah-isme/coach-change-api/internal/models"
	appErrors "github.com/noah-isme/coach-change-api/pkg/errors"
)

// ActionKind enumerates the mutations a participant can apply to a request.
type ActionKind string

const (
	ActionApprove ActionKind = "APPROVE"
	ActionReject  ActionKind = "REJECT"
	ActionCancel  ActionKind = "CANCEL"
)

// Action is one participant input to the approval machine.
type Action struct {
	Kind  ActionKind
	Stage models.ApprovalStage
	Actor models.Actor
	Notes *string
}

func (a Action) decision() models.StageDecision {
	if a.Kind == ActionReject {
		return models.DecisionRejected
	}
	return models.DecisionApproved
}

// Outcome describes what Apply did.
type Outcome struct {
	// Replayed is set when the action matched already recorded state and nothing changed.
	Replayed bool
	// Event is the notification the change warrants; empty on replay.
	Event models.WorkflowEventType
}

// Lifecycle events driving the overall status.
const (
	lifecycleResume       statekit.EventType = "RESUME"
	lifecycleStageDecided statekit.EventType = "STAGE_DECIDED"
	lifecycleCancel       statekit.EventType = "CANCEL"
)

// Guards evaluated against the recorded stage decisions.
const (
	guardAnyRejected  statekit.GuardType = "anyRejected"
	guardAllApproved  statekit.GuardType = "allApproved"
	guardAllPending   statekit.GuardType = "allPending"
	guardWasApproved  statekit.GuardType = "wasApproved"
	guardWasRejected  statekit.GuardType = "wasRejected"
	guardWasCancelled statekit.GuardType = "wasCancelled"
)

var (
	stateLoaded    statekit.StateID = "LOADED"
	statePending   = statekit.StateID(models.CoachChangeStatusPending)
	stateApproved  = statekit.StateID(models.CoachChangeStatusApproved)
	stateRejected  = statekit.StateID(models.CoachChangeStatusRejected)
	stateCancelled = statekit.StateID(models.CoachChangeStatusCancelled)
)

// lifecycleContext is what the guards see: the persisted status to resume from
// and the decision of every stage.
type lifecycleContext struct {
	Stored    models.CoachChangeStatus
	Decisions []models.StageDecision
}

func (c lifecycleContext) count(d models.StageDecision) int {
	n := 0
	for _, got := range c.Decisions {
		if got == d {
			n++
		}
	}
	return n
}

// ApprovalMachine holds the pure decision logic of a coach change request:
// given a snapshot and an action it returns the next snapshot or a typed error.
type ApprovalMachine struct {
	newInterpreter func() *statekit.Interpreter[lifecycleContext]
}

// NewApprovalMachine builds the overall-status lifecycle. A run starts in LOADED and
// RESUME moves it to the persisted status; final states ignore every later event.
func NewApprovalMachine() (*ApprovalMachine, error) {
	machine, err := statekit.NewMachine[lifecycleContext]("coach-change").
		WithInitial(stateLoaded).
		WithGuard(guardAnyRejected, func(c lifecycleContext, _ statekit.Event) bool {
			return c.count(models.DecisionRejected) > 0
		}).
		WithGuard(guardAllApproved, func(c lifecycleContext, _ statekit.Event) bool {
			return c.count(models.DecisionApproved) == len(models.ApprovalStages)
		}).
		WithGuard(guardAllPending, func(c lifecycleContext, _ statekit.Event) bool {
			return c.count(models.DecisionPending) == len(models.ApprovalStages)
		}).
		WithGuard(guardWasApproved, func(c lifecycleContext, _ statekit.Event) bool {
			return c.Stored == models.CoachChangeStatusApproved
		}).
		WithGuard(guardWasRejected, func(c lifecycleContext, _ statekit.Event) bool {
			return c.Stored == models.CoachChangeStatusRejected
		}).
		WithGuard(guardWasCancelled, func(c lifecycleContext, _ statekit.Event) bool {
			return c.Stored == models.CoachChangeStatusCancelled
		}).
		State(stateLoaded).
		On(lifecycleResume).Target(stateApproved).Guard(guardWasApproved).
		On(lifecycleResume).Target(stateRejected).Guard(guardWasRejected).
		On(lifecycleResume).Target(stateCancelled).Guard(guardWasCancelled).
		On(lifecycleResume).Target(statePending).
		Done().
		State(statePending).
		On(lifecycleStageDecided).Target(stateRejected).Guard(guardAnyRejected).
		On(lifecycleStageDecided).Target(stateApproved).Guard(guardAllApproved).
		On(lifecycleStageDecided).Target(statePending).
		On(lifecycleCancel).Target(stateCancelled).Guard(guardAllPending).
		Done().
		State(stateApproved).
		Final().
		Done().
		State(stateRejected).
		Final().
		Done().
		State(stateCancelled).
		Final().
		Done().
		Build()
	if err != nil {
		return nil, fmt.Errorf("build coach change lifecycle: %w", err)
	}

	return &ApprovalMachine{
		newInterpreter: func() *statekit.Interpreter[lifecycleContext] {
			return statekit.NewInterpreter(machine)
		},
	}, nil
}

// Apply evaluates action against snapshot at time now. The input snapshot is never modified.
func (m *ApprovalMachine) Apply(snapshot models.CoachChangeRequest, action Action, now time.Time) (models.CoachChangeRequest, Outcome, error) {
	if err := validateAction(action); err != nil {
		return snapshot, Outcome{}, err
	}

	run := m.resume(snapshot)
	if run.Done() {
		if isReplay(snapshot, action) {
			return snapshot.Clone(), Outcome{Replayed: true}, nil
		}
		return snapshot, Outcome{}, appErrors.Clone(appErrors.ErrAlreadyFinalized,
			fmt.Sprintf("request is already %s", strings.ToLower(string(snapshot.Status))))
	}

	if action.Kind == ActionCancel {
		return m.cancel(run, snapshot, action, now)
	}
	return m.decide(run, snapshot, action, now)
}

func (m *ApprovalMachine) decide(run *statekit.Interpreter[lifecycleContext], snapshot models.CoachChangeRequest, action Action, now time.Time) (models.CoachChangeRequest, Outcome, error) {
	if !canDecide(snapshot, action.Stage, action.Actor) {
		return snapshot, Outcome{}, appErrors.Clone(appErrors.ErrUnauthorizedActor,
			fmt.Sprintf("actor may not decide the %s stage", strings.ToLower(string(action.Stage))))
	}

	decision := action.decision()
	current := snapshot.Stage(action.Stage)
	if !current.IsPending() {
		if current.Decision == decision {
			return snapshot.Clone(), Outcome{Replayed: true}, nil
		}
		return snapshot, Outcome{}, appErrors.Clone(appErrors.ErrStageAlreadyDecided,
			fmt.Sprintf("%s stage already %s", strings.ToLower(string(action.Stage)), strings.ToLower(string(current.Decision))))
	}

	next := snapshot.Clone()
	stage := next.Stage(action.Stage)
	decidedAt := now
	decidedBy := action.Actor.ID
	stage.Decision = decision
	stage.DecidedAt = &decidedAt
	stage.DecidedBy = &decidedBy
	stage.Notes = cloneString(action.Notes)

	run.UpdateContext(func(c *lifecycleContext) { c.Decisions = decisionsOf(next) })
	run.Send(statekit.Event{Type: lifecycleStageDecided})
	status, err := statusOf(run)
	if err != nil {
		return snapshot, Outcome{}, err
	}
	next.Status = status
	next.UpdatedAt = now

	event := models.EventStageDecided
	if status.IsTerminal() {
		markProcessed(&next, action.Actor.ID, now)
		event = models.EventRequestFinalized
	}
	return next, Outcome{Event: event}, nil
}

func (m *ApprovalMachine) cancel(run *statekit.Interpreter[lifecycleContext], snapshot models.CoachChangeRequest, action Action, now time.Time) (models.CoachChangeRequest, Outcome, error) {
	if !canCancel(snapshot, action.Actor) {
		return snapshot, Outcome{}, appErrors.Clone(appErrors.ErrUnauthorizedActor, "only the requesting student or a campus admin may cancel")
	}

	run.Send(statekit.Event{Type: lifecycleCancel})
	status, err := statusOf(run)
	if err != nil {
		return snapshot, Outcome{}, err
	}
	if status != models.CoachChangeStatusCancelled {
		return snapshot, Outcome{}, appErrors.Clone(appErrors.ErrAlreadyFinalized, "request can no longer be cancelled once a stage is decided")
	}
	next := snapshot.Clone()
	next.Status = status
	next.UpdatedAt = now
	markProcessed(&next, action.Actor.ID, now)
	return next, Outcome{Event: models.EventRequestFinalized}, nil
}

// resume starts a lifecycle run positioned at the snapshot's persisted status.
func (m *ApprovalMachine) resume(r models.CoachChangeRequest) *statekit.Interpreter[lifecycleContext] {
	run := m.newInterpreter()
	run.UpdateContext(func(c *lifecycleContext) {
		c.Stored = r.Status
		c.Decisions = decisionsOf(r)
	})
	run.Start()
	run.Send(statekit.Event{Type: lifecycleResume})
	return run
}

// statusOf reads the overall status off a run.
func statusOf(run *statekit.Interpreter[lifecycleContext]) (models.CoachChangeStatus, error) {
	status := models.CoachChangeStatus(run.State().Value)
	if !status.Valid() {
		return "", appErrors.Clone(appErrors.ErrInternal, fmt.Sprintf("lifecycle reached unknown state %q", status))
	}
	if status.IsTerminal() != run.Done() {
		return "", appErrors.Clone(appErrors.ErrInternal, "lifecycle final state mismatch")
	}
	return status, nil
}

func decisionsOf(r models.CoachChangeRequest) []models.StageDecision {
	out := make([]models.StageDecision, 0, len(models.ApprovalStages))
	for _, s := range models.ApprovalStages {
		out = append(out, r.Stage(s).Decision)
	}
	return out
}

func validateAction(a Action) error {
	switch a.Kind {
	case ActionApprove, ActionReject:
		if !a.Stage.Valid() {
			return appErrors.Clone(appErrors.ErrValidation, "unknown approval stage")
		}
	case ActionCancel:
	default:
		return appErrors.Clone(appErrors.ErrValidation, "unknown action")
	}
	if a.Actor.ID == "" {
		return appErrors.Clone(appErrors.ErrUnauthorizedActor, "actor identity is required")
	}
	return nil
}

// canDecide binds coach stages to their coach and the admin stage to admin capability.
func canDecide(r models.CoachChangeRequest, stage models.ApprovalStage, actor models.Actor) bool {
	switch stage {
	case models.StageCurrentCoach:
		return actor.ID == r.CurrentCoachID
	case models.StageTargetCoach:
		return actor.ID == r.TargetCoachID
	case models.StageCampusAdmin:
		return actor.IsCampusAdmin()
	}
	return false
}

func canCancel(r models.CoachChangeRequest, actor models.Actor) bool {
	return actor.ID == r.StudentID || actor.IsCampusAdmin()
}

// isReplay reports whether action re-submits what a terminal request already records.
func isReplay(r models.CoachChangeRequest, a Action) bool {
	switch a.Kind {
	case ActionCancel:
		return r.Status == models.CoachChangeStatusCancelled && canCancel(r, a.Actor)
	case ActionApprove, ActionReject:
		return canDecide(r, a.Stage, a.Actor) && r.Stage(a.Stage).Decision == a.decision()
	}
	return false
}

func markProcessed(r *models.CoachChangeRequest, actorID string, now time.Time) {
	if r.ProcessedAt != nil {
		return
	}
	at := now
	by := actorID
	r.ProcessedAt = &at
	r.ProcessedBy = &by
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
