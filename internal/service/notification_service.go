package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/coach-change-api/internal/models"
	"github.com/noah-isme/coach-change-api/internal/repository"
	"github.com/noah-isme/coach-change-api/pkg/jobs"
	"github.com/noah-isme/coach-change-api/pkg/mailer"
)

// ErrUnexpectedPayload is returned when a queued job does not carry a workflow event.
var ErrUnexpectedPayload = errors.New("notification job payload is not a workflow event")

// NotificationSink receives workflow events. Deliver must tolerate redelivery.
type NotificationSink interface {
	Name() string
	Deliver(ctx context.Context, event models.WorkflowEvent) error
}

type eventQueue interface {
	TryEnqueue(ctx context.Context, job jobs.Job) error
}

// NotificationDispatcher publishes workflow events onto the notification queue.
// Events the queue refuses go straight to the fallback sinks, so the state they
// carry (audit rows, coach reassignment) is written before Publish returns.
type NotificationDispatcher struct {
	queue    eventQueue
	fallback []NotificationSink
	logger   *zap.Logger
}

// NewNotificationDispatcher constructs a dispatcher.
func NewNotificationDispatcher(queue eventQueue, logger *zap.Logger, fallback ...NotificationSink) *NotificationDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationDispatcher{queue: queue, fallback: fallback, logger: logger}
}

// Publish enqueues event without blocking on a saturated queue.
func (d *NotificationDispatcher) Publish(ctx context.Context, event models.WorkflowEvent) error {
	err := d.queue.TryEnqueue(ctx, jobs.Job{ID: event.ID, Type: string(event.Type), Payload: event})
	if err == nil {
		d.logger.Debug("workflow event queued", zap.String("event_id", event.ID), zap.String("event_type", string(event.Type)))
		return nil
	}
	if len(d.fallback) == 0 {
		return fmt.Errorf("enqueue %s event: %w", event.Type, err)
	}

	d.logger.Warn("notification queue refused event, delivering inline",
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.Error(err),
	)
	if ferr := fanOut(ctx, d.fallback, event, nil); ferr != nil {
		return fmt.Errorf("enqueue %s event: %w; inline delivery: %w", event.Type, err, ferr)
	}
	return nil
}

// fanOut delivers event to every sink concurrently and returns the first failure.
// done, when set, observes each sink's result.
func fanOut(ctx context.Context, sinks []NotificationSink, event models.WorkflowEvent, done func(NotificationSink, error)) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, sink := range sinks {
		g.Go(func() error {
			err := sink.Deliver(gctx, event)
			if done != nil {
				done(sink, err)
			}
			if err != nil {
				return fmt.Errorf("%s sink: %w", sink.Name(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// NotificationWorker fans queued events out to every sink.
type NotificationWorker struct {
	sinks   []NotificationSink
	metrics *MetricsService
	logger  *zap.Logger

	// delivered remembers sinks that already succeeded for a job still being retried.
	delivered sync.Map
}

// NewNotificationWorker constructs a worker.
func NewNotificationWorker(metrics *MetricsService, logger *zap.Logger, sinks ...NotificationSink) *NotificationWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationWorker{sinks: sinks, metrics: metrics, logger: logger}
}

// Handle processes a queue job. A failing sink fails the job so the queue retries
// it, and sinks that already succeeded are skipped on the retry.
func (w *NotificationWorker) Handle(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(models.WorkflowEvent)
	if !ok {
		return ErrUnexpectedPayload
	}

	pending := make([]NotificationSink, 0, len(w.sinks))
	for _, sink := range w.sinks {
		if _, done := w.delivered.Load(job.ID + "/" + sink.Name()); !done {
			pending = append(pending, sink)
		}
	}
	err := fanOut(ctx, pending, event, func(sink NotificationSink, err error) {
		w.metrics.RecordNotification(sink.Name(), err)
		if err == nil {
			w.delivered.Store(job.ID+"/"+sink.Name(), struct{}{})
		}
	})
	if err != nil {
		return err
	}
	w.forget(job.ID)
	return nil
}

// DeadLetter logs an event that exhausted its retries.
func (w *NotificationWorker) DeadLetter(job jobs.Job, err error) {
	w.forget(job.ID)
	w.logger.Error("workflow event dropped",
		zap.String("event_id", job.ID),
		zap.String("event_type", job.Type),
		zap.Int("attempts", job.Attempt),
		zap.Error(err),
	)
}

func (w *NotificationWorker) forget(jobID string) {
	for _, sink := range w.sinks {
		w.delivered.Delete(jobID + "/" + sink.Name())
	}
}

type auditWriter interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

// AuditSink writes one audit row per event, keyed by event id.
type AuditSink struct {
	repo auditWriter
}

// NewAuditSink constructs the sink.
func NewAuditSink(repo auditWriter) *AuditSink {
	return &AuditSink{repo: repo}
}

func (s *AuditSink) Name() string { return "audit" }

func (s *AuditSink) Deliver(ctx context.Context, event models.WorkflowEvent) error {
	newValues, err := json.Marshal(event.Snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	var oldValues []byte
	if event.Previous != nil {
		if oldValues, err = json.Marshal(event.Previous); err != nil {
			return fmt.Errorf("encode previous snapshot: %w", err)
		}
	}

	actorID := event.ActorID
	requestID := event.RequestID
	return s.repo.Create(ctx, &models.AuditLog{
		ID:         event.ID,
		UserID:     &actorID,
		Action:     auditAction(event.Type),
		Resource:   models.AuditResourceCoachChange,
		ResourceID: &requestID,
		OldValues:  oldValues,
		NewValues:  newValues,
		CreatedAt:  event.OccurredAt,
	})
}

func auditAction(t models.WorkflowEventType) string {
	switch t {
	case models.EventRequestCreated:
		return models.AuditActionCoachChangeCreate
	case models.EventRequestFinalized:
		return models.AuditActionCoachChangeFinalize
	}
	return models.AuditActionCoachChangeDecide
}

type relationReassigner interface {
	Reassign(ctx context.Context, params repository.ReassignParams) error
}

// RelationSink moves the student to the target coach once a request is approved.
type RelationSink struct {
	relations relationReassigner
}

// NewRelationSink constructs the sink.
func NewRelationSink(relations relationReassigner) *RelationSink {
	return &RelationSink{relations: relations}
}

func (s *RelationSink) Name() string { return "relation" }

func (s *RelationSink) Deliver(ctx context.Context, event models.WorkflowEvent) error {
	if event.Type != models.EventRequestFinalized || event.Status != models.CoachChangeStatusApproved {
		return nil
	}
	snap := event.Snapshot
	return s.relations.Reassign(ctx, repository.ReassignParams{
		StudentID:   snap.StudentID,
		FromCoachID: snap.CurrentCoachID,
		ToCoachID:   snap.TargetCoachID,
		RequestID:   snap.ID,
		At:          event.OccurredAt,
	})
}

type userDirectory interface {
	FindByIDs(ctx context.Context, ids []string) ([]models.User, error)
}

// EmailSinkConfig tunes the breaker around the mail provider.
type EmailSinkConfig struct {
	FailureThreshold int
	OpenTimeout      time.Duration
	HalfOpenRequests int
}

// EmailSink e-mails the participants who need to know about an event.
type EmailSink struct {
	sender  mailer.Sender
	users   userDirectory
	breaker circuitbreaker.CircuitBreaker[string]
	logger  *zap.Logger
}

// NewEmailSink constructs the sink.
func NewEmailSink(sender mailer.Sender, users userDirectory, cfg EmailSinkConfig, logger *zap.Logger) *EmailSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.HalfOpenRequests <= 0 {
		cfg.HalfOpenRequests = 1
	}
	threshold := uint32(cfg.FailureThreshold) // #nosec G115 -- bounded config value
	return &EmailSink{
		sender: sender,
		users:  users,
		breaker: circuitbreaker.New[string](circuitbreaker.Config{
			MaxRequests: uint32(cfg.HalfOpenRequests), // #nosec G115 -- bounded config value
			Interval:    cfg.OpenTimeout,
			Timeout:     cfg.OpenTimeout,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
		}),
		logger: logger,
	}
}

func (s *EmailSink) Name() string { return "email" }

func (s *EmailSink) Deliver(ctx context.Context, event models.WorkflowEvent) error {
	ids := recipientsFor(event)
	if len(ids) == 0 {
		return nil
	}
	users, err := s.users.FindByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("load recipients: %w", err)
	}

	names := make(map[string]string, len(users))
	to := make([]string, 0, len(users))
	for _, u := range users {
		names[u.ID] = u.FullName
		if u.Email != "" && u.Active {
			to = append(to, u.Email)
		}
	}
	if len(to) == 0 {
		s.logger.Debug("no reachable recipients", zap.String("event_id", event.ID))
		return nil
	}

	msg := mailer.Message{To: to, Subject: emailSubject(event), HTML: emailBody(event, names)}
	id, err := s.breaker.Execute(ctx, func(ctx context.Context) (string, error) {
		return s.sender.Send(ctx, msg)
	})
	if err != nil {
		return err
	}
	s.logger.Debug("notification e-mail sent", zap.String("event_id", event.ID), zap.String("message_id", id))
	return nil
}

// recipientsFor picks who hears about an event: approvers when a request opens,
// the student on each decision, everyone on completion.
func recipientsFor(event models.WorkflowEvent) []string {
	snap := event.Snapshot
	var ids []string
	switch event.Type {
	case models.EventRequestCreated:
		ids = []string{snap.CurrentCoachID, snap.TargetCoachID}
	case models.EventStageDecided:
		ids = []string{snap.StudentID}
	case models.EventRequestFinalized:
		ids = []string{snap.StudentID, snap.CurrentCoachID, snap.TargetCoachID}
	}

	out := ids[:0]
	for _, id := range ids {
		if id != "" && id != event.ActorID {
			out = append(out, id)
		}
	}
	return out
}

func emailSubject(event models.WorkflowEvent) string {
	switch event.Type {
	case models.EventRequestCreated:
		return "New coach change request awaiting your decision"
	case models.EventStageDecided:
		return "Your coach change request was reviewed"
	}
	return fmt.Sprintf("Coach change request %s", strings.ToLower(string(event.Status)))
}

func emailBody(event models.WorkflowEvent, names map[string]string) string {
	display := func(id string) string {
		if n := names[id]; n != "" {
			return html.EscapeString(n)
		}
		return html.EscapeString(id)
	}
	snap := event.Snapshot

	var b strings.Builder
	fmt.Fprintf(&b, "<p>Coach change for <strong>%s</strong>: %s to %s.</p>",
		display(snap.StudentID), display(snap.CurrentCoachID), display(snap.TargetCoachID))
	if event.Stage != nil && event.Decision != nil {
		fmt.Fprintf(&b, "<p>%s stage %s by %s.</p>",
			html.EscapeString(strings.ToLower(strings.ReplaceAll(string(*event.Stage), "_", " "))),
			html.EscapeString(strings.ToLower(string(*event.Decision))),
			display(event.ActorID))
	}
	fmt.Fprintf(&b, "<p>Status: %s</p>", html.EscapeString(string(snap.Status)))
	if snap.Reason != "" {
		fmt.Fprintf(&b, "<p>Reason: %s</p>", html.EscapeString(snap.Reason))
	}
	return b.String()
}
