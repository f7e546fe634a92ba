package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/coach-change-api/internal/dto"
	"github.com/noah-isme/coach-change-api/internal/models"
	"github.com/noah-isme/coach-change-api/internal/repository"
	appErrors "github.com/noah-isme/coach-change-api/pkg/errors"
	"github.com/noah-isme/coach-change-api/pkg/export"
	"github.com/noah-isme/coach-change-api/pkg/middleware/requestid"
)

type coachChangeStore interface {
	Create(ctx context.Context, req *models.CoachChangeRequest) error
	Load(ctx context.Context, id string) (*models.CoachChangeRequest, error)
	CompareAndSwap(ctx context.Context, id string, expectedVersion int64, next *models.CoachChangeRequest) error
	List(ctx context.Context, filter models.CoachChangeFilter) ([]models.CoachChangeRequest, int, error)
}

type coachEligibility interface {
	IsActiveCoach(ctx context.Context, id string) (bool, error)
}

type coachRelationLookup interface {
	CurrentCoach(ctx context.Context, studentID string) (string, error)
}

type auditTrailReader interface {
	ListByResource(ctx context.Context, resource, resourceID string) ([]models.AuditLog, error)
}

type documentRenderer interface {
	Render(doc export.Document) ([]byte, error)
}

// EventPublisher delivers workflow events. Delivery is best-effort.
type EventPublisher interface {
	Publish(ctx context.Context, event models.WorkflowEvent) error
}

// Clock supplies timestamps.
type Clock interface {
	Now() time.Time
}

// IDGenerator supplies unique identifiers.
type IDGenerator interface {
	NewID() string
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

type uuidGenerator struct{}

func (uuidGenerator) NewID() string { return uuid.NewString() }

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, models.WorkflowEvent) error { return nil }

// CoachChangeServiceConfig tunes retries, timeouts and caching.
type CoachChangeServiceConfig struct {
	MaxAttempts      int
	RetryInitialWait time.Duration
	RetryMaxWait     time.Duration
	StoreTimeout     time.Duration
	NotifyTimeout    time.Duration
	CacheTTL         time.Duration
}

func (c CoachChangeServiceConfig) withDefaults() CoachChangeServiceConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.RetryInitialWait <= 0 {
		c.RetryInitialWait = 10 * time.Millisecond
	}
	if c.RetryMaxWait < c.RetryInitialWait {
		c.RetryMaxWait = c.RetryInitialWait * 20
	}
	if c.NotifyTimeout <= 0 {
		c.NotifyTimeout = time.Second
	}
	return c
}

// CoachChangeService runs the coach change approval workflow: it authorizes
// actors, applies the approval machine and persists with optimistic concurrency.
type CoachChangeService struct {
	store       coachChangeStore
	eligibility coachEligibility
	machine     *ApprovalMachine
	relations   coachRelationLookup
	auditTrail  auditTrailReader
	publisher   EventPublisher
	cache       *CacheService
	metrics     *MetricsService
	renderer    documentRenderer
	validator   *validator.Validate
	clock       Clock
	ids         IDGenerator
	logger      *zap.Logger
	cfg         CoachChangeServiceConfig
	retrier     retry.Retry[*dto.CoachChangeResult]
}

// CoachChangeOption configures the service.
type CoachChangeOption func(*CoachChangeService)

// WithCoachChangeConfig overrides retry, timeout and cache settings.
func WithCoachChangeConfig(cfg CoachChangeServiceConfig) CoachChangeOption {
	return func(s *CoachChangeService) { s.cfg = cfg }
}

// WithCoachRelations enables current-coach resolution at creation.
func WithCoachRelations(relations coachRelationLookup) CoachChangeOption {
	return func(s *CoachChangeService) { s.relations = relations }
}

// WithAuditTrail supplies the audit history rendered into PDF exports.
func WithAuditTrail(reader auditTrailReader) CoachChangeOption {
	return func(s *CoachChangeService) { s.auditTrail = reader }
}

// WithEventPublisher sets the workflow event sink.
func WithEventPublisher(publisher EventPublisher) CoachChangeOption {
	return func(s *CoachChangeService) {
		if publisher != nil {
			s.publisher = publisher
		}
	}
}

// WithCoachChangeCache enables the read-through snapshot cache.
func WithCoachChangeCache(cache *CacheService) CoachChangeOption {
	return func(s *CoachChangeService) { s.cache = cache }
}

// WithCoachChangeMetrics records workflow metrics.
func WithCoachChangeMetrics(metrics *MetricsService) CoachChangeOption {
	return func(s *CoachChangeService) { s.metrics = metrics }
}

// WithDocumentRenderer overrides the PDF renderer.
func WithDocumentRenderer(renderer documentRenderer) CoachChangeOption {
	return func(s *CoachChangeService) {
		if renderer != nil {
			s.renderer = renderer
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock Clock) CoachChangeOption {
	return func(s *CoachChangeService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithIDGenerator overrides identifier generation.
func WithIDGenerator(ids IDGenerator) CoachChangeOption {
	return func(s *CoachChangeService) {
		if ids != nil {
			s.ids = ids
		}
	}
}

// NewCoachChangeService constructs the service with defaults.
func NewCoachChangeService(store coachChangeStore, eligibility coachEligibility, machine *ApprovalMachine, logger *zap.Logger, opts ...CoachChangeOption) *CoachChangeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &CoachChangeService{
		store:       store,
		eligibility: eligibility,
		machine:     machine,
		publisher:   noopPublisher{},
		renderer:    export.NewPDFExporter(),
		validator:   validator.New(),
		clock:       systemClock{},
		ids:         uuidGenerator{},
		logger:      logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	svc.cfg = svc.cfg.withDefaults()
	svc.retrier = retry.New[*dto.CoachChangeResult](retry.Config{
		MaxAttempts:   svc.cfg.MaxAttempts,
		InitialDelay:  svc.cfg.RetryInitialWait,
		MaxDelay:      svc.cfg.RetryMaxWait,
		BackoffPolicy: retry.BackoffExponential,
		Multiplier:    2.0,
		Jitter:        true,
		IsRetryable: func(err error) bool {
			return errors.Is(err, repository.ErrVersionConflict)
		},
	})
	return svc
}

// CreateRequest opens a new request for the acting student with all stages pending.
func (s *CoachChangeService) CreateRequest(ctx context.Context, actor models.Actor, req dto.CreateCoachChangeRequest) (*models.CoachChangeRequest, error) {
	if actor.Role != models.RoleStudent || actor.ID == "" {
		return nil, s.fail("create", appErrors.Clone(appErrors.ErrUnauthorizedActor, "only students can request a coach change"))
	}
	req.CurrentCoachID = strings.TrimSpace(req.CurrentCoachID)
	req.TargetCoachID = strings.TrimSpace(req.TargetCoachID)
	req.Reason = strings.TrimSpace(req.Reason)
	if err := s.validator.Struct(req); err != nil {
		return nil, s.fail("create", appErrors.Clone(appErrors.ErrValidation, validationMessage(err)))
	}

	currentCoachID, err := s.resolveCurrentCoach(ctx, actor.ID, req.CurrentCoachID)
	if err != nil {
		return nil, s.fail("create", err)
	}
	if err := s.checkParticipants(ctx, actor.ID, currentCoachID, req.TargetCoachID); err != nil {
		return nil, s.fail("create", err)
	}

	now := s.clock.Now()
	pending := models.StageApproval{Decision: models.DecisionPending}
	request := &models.CoachChangeRequest{
		ID:                s.ids.NewID(),
		StudentID:         actor.ID,
		CurrentCoachID:    currentCoachID,
		TargetCoachID:     req.TargetCoachID,
		Reason:            req.Reason,
		Status:            models.CoachChangeStatusPending,
		CurrentCoachStage: pending,
		TargetCoachStage:  pending,
		CampusAdminStage:  pending,
		CreatedAt:         now,
		UpdatedAt:         now,
		Version:           1,
	}

	storeCtx, cancel := s.storeContext(ctx)
	err = s.store.Create(storeCtx, request)
	err = withStoreDeadline(storeCtx, err)
	cancel()
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrPendingRequestExists):
			return nil, s.fail("create", appErrors.ErrPendingRequestExists)
		case errors.Is(err, repository.ErrAlreadyExists):
			return nil, s.fail("create", appErrors.Clone(appErrors.ErrConflict, "request identifier already in use"))
		}
		return nil, s.fail("create", s.translate(err, "failed to create coach change request"))
	}

	s.metrics.RecordTransition("create", "applied")
	s.logger.Info("coach change requested",
		zap.String("request_id", request.ID),
		zap.String("student_id", request.StudentID),
		zap.String("current_coach_id", request.CurrentCoachID),
		zap.String("target_coach_id", request.TargetCoachID),
		zap.String("correlation_id", requestid.FromContext(ctx)),
	)
	s.storeInCache(ctx, *request)
	s.publish(ctx, s.newEvent(ctx, models.EventRequestCreated, actor.ID, nil, nil, *request))

	out := request.Clone()
	return &out, nil
}

// Decide records an approval or rejection on one stage. An empty stage is inferred from the actor.
func (s *CoachChangeService) Decide(ctx context.Context, id string, actor models.Actor, req dto.DecideCoachChangeRequest) (*dto.CoachChangeResult, error) {
	req.Normalize()
	if err := s.validator.Struct(req); err != nil {
		return nil, s.fail("decide", appErrors.Clone(appErrors.ErrValidation, validationMessage(err)))
	}

	action := Action{Kind: ActionApprove, Stage: req.Stage, Actor: actor}
	if req.Decision == models.DecisionRejected {
		action.Kind = ActionReject
	}
	if req.Notes != "" {
		notes := req.Notes
		action.Notes = &notes
	}
	return s.mutate(ctx, id, action)
}

// Cancel withdraws a request while every stage is still pending.
func (s *CoachChangeService) Cancel(ctx context.Context, id string, actor models.Actor) (*dto.CoachChangeResult, error) {
	return s.mutate(ctx, id, Action{Kind: ActionCancel, Actor: actor})
}

// Get returns the request without visibility checks.
func (s *CoachChangeService) Get(ctx context.Context, id string) (*models.CoachChangeRequest, error) {
	var cached models.CoachChangeRequest
	if hit, _ := s.cache.Get(ctx, cacheKey(id), &cached); hit {
		return &cached, nil
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	req, err := s.store.Load(storeCtx, id)
	if err != nil {
		return nil, s.translate(withStoreDeadline(storeCtx, err), "failed to load coach change request")
	}
	s.storeInCache(ctx, *req)
	return req, nil
}

// View returns the request if actor is one of its participants or an admin.
func (s *CoachChangeService) View(ctx context.Context, id string, actor models.Actor) (*models.CoachChangeRequest, error) {
	req, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !req.IsParticipant(actor.ID) && !actor.IsCampusAdmin() {
		return nil, appErrors.Clone(appErrors.ErrUnauthorizedActor, "request is not visible to this user")
	}
	return req, nil
}

// List returns the requests visible to actor.
func (s *CoachChangeService) List(ctx context.Context, actor models.Actor, query dto.CoachChangeQuery) ([]models.CoachChangeRequest, *models.Pagination, error) {
	for _, st := range query.Status {
		if !st.Valid() {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", st))
		}
	}

	filter := models.CoachChangeFilter{Status: query.Status, StudentID: query.StudentID, CoachID: query.CoachID}
	switch {
	case actor.IsCampusAdmin():
	case actor.Role == models.RoleCoach:
		filter.CoachID = actor.ID
	case actor.Role == models.RoleStudent:
		filter.StudentID = actor.ID
		filter.CoachID = query.CoachID
	default:
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorizedActor, "role cannot list coach change requests")
	}

	page, size := normalizePage(query.Page, query.PageSize)
	filter.Limit = size
	filter.Offset = (page - 1) * size

	items, total, err := s.list(ctx, filter)
	if err != nil {
		return nil, nil, err
	}
	return items, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// PendingApprovals lists pending requests whose stage bound to actor is still undecided.
func (s *CoachChangeService) PendingApprovals(ctx context.Context, actor models.Actor) ([]models.CoachChangeRequest, error) {
	filter := models.CoachChangeFilter{
		Status: []models.CoachChangeStatus{models.CoachChangeStatusPending},
		Limit:  200,
	}
	switch {
	case actor.IsCampusAdmin():
		filter.AwaitingAdmin = true
	case actor.Role == models.RoleCoach:
		filter.AwaitingCoachID = actor.ID
	default:
		return nil, appErrors.Clone(appErrors.ErrUnauthorizedActor, "only coaches and campus admins approve coach changes")
	}
	items, _, err := s.list(ctx, filter)
	return items, err
}

// AuditTrailPDF renders the request, its stages and its audit history.
func (s *CoachChangeService) AuditTrailPDF(ctx context.Context, id string, actor models.Actor) ([]byte, error) {
	req, err := s.View(ctx, id, actor)
	if err != nil {
		return nil, err
	}

	var history []models.AuditLog
	if s.auditTrail != nil {
		history, err = s.auditTrail.ListByResource(ctx, models.AuditResourceCoachChange, id)
		if err != nil {
			s.logger.Warn("load audit trail failed", zap.String("request_id", id), zap.Error(err))
		}
	}

	body, err := s.renderer.Render(auditDocument(*req, history, s.clock.Now()))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render audit trail")
	}
	return body, nil
}

func (s *CoachChangeService) list(ctx context.Context, filter models.CoachChangeFilter) ([]models.CoachChangeRequest, int, error) {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	items, total, err := s.store.List(storeCtx, filter)
	if err != nil {
		return nil, 0, s.translate(withStoreDeadline(storeCtx, err), "failed to list coach change requests")
	}
	if items == nil {
		items = []models.CoachChangeRequest{}
	}
	return items, total, nil
}

// mutate runs load, apply and compare-and-swap, retrying on version conflicts.
func (s *CoachChangeService) mutate(ctx context.Context, id string, action Action) (*dto.CoachChangeResult, error) {
	op := strings.ToLower(string(action.Kind))
	var (
		attempts int
		lastErr  error
		result   *dto.CoachChangeResult
		event    *models.WorkflowEvent
	)

	_, doErr := s.retrier.Do(ctx, func(ctx context.Context) (*dto.CoachChangeResult, error) {
		attempts++
		res, evt, err := s.attempt(ctx, id, action)
		lastErr = err
		if err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				s.metrics.RecordVersionConflict()
			}
			return nil, err
		}
		result, event = res, evt
		return res, nil
	})
	s.metrics.ObserveMutationAttempts(attempts)

	if lastErr != nil || result == nil {
		cause := lastErr
		if cause == nil {
			cause = doErr
		}
		if ctxErr := ctx.Err(); ctxErr != nil && (cause == nil || errors.Is(cause, repository.ErrVersionConflict)) {
			cause = ctxErr
		}
		if errors.Is(cause, repository.ErrVersionConflict) {
			s.logger.Warn("coach change conflict retries exhausted",
				zap.String("request_id", id), zap.String("action", op), zap.Int("attempts", attempts))
			return nil, s.fail(op, appErrors.Clone(appErrors.ErrConflict, "request was modified concurrently, please retry"))
		}
		return nil, s.fail(op, s.translate(cause, "failed to update coach change request"))
	}

	if result.Replayed {
		s.metrics.RecordTransition(op, "replayed")
		return result, nil
	}

	s.metrics.RecordTransition(op, "applied")
	s.logger.Info("coach change updated",
		zap.String("request_id", id),
		zap.String("action", op),
		zap.String("stage", string(action.Stage)),
		zap.String("actor_id", action.Actor.ID),
		zap.String("status", string(result.Request.Status)),
		zap.Int64("version", result.Request.Version),
		zap.Int("attempts", attempts),
		zap.String("correlation_id", requestid.FromContext(ctx)),
	)
	s.storeInCache(ctx, *result.Request)
	if event != nil {
		s.publish(ctx, *event)
	}
	return result, nil
}

func (s *CoachChangeService) attempt(ctx context.Context, id string, action Action) (*dto.CoachChangeResult, *models.WorkflowEvent, error) {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	current, err := s.store.Load(storeCtx, id)
	if err != nil {
		return nil, nil, withStoreDeadline(storeCtx, err)
	}

	if action.Kind != ActionCancel && action.Stage == "" {
		stage, err := inferStage(*current, action.Actor)
		if err != nil {
			return nil, nil, err
		}
		action.Stage = stage
	}

	next, outcome, err := s.machine.Apply(*current, action, s.clock.Now())
	if err != nil {
		return nil, nil, err
	}
	if outcome.Replayed {
		return &dto.CoachChangeResult{Request: current, Replayed: true}, nil, nil
	}

	if err := s.store.CompareAndSwap(storeCtx, id, current.Version, &next); err != nil {
		return nil, nil, withStoreDeadline(storeCtx, err)
	}

	var stage *models.ApprovalStage
	var decision *models.StageDecision
	if action.Kind != ActionCancel {
		st, d := action.Stage, action.decision()
		stage, decision = &st, &d
	}
	evt := s.newEvent(ctx, outcome.Event, action.Actor.ID, stage, decision, next)
	evt.Previous = current
	return &dto.CoachChangeResult{Request: &next}, &evt, nil
}

// inferStage picks the stage an actor is bound to: their coach stage, else the admin stage.
func inferStage(r models.CoachChangeRequest, actor models.Actor) (models.ApprovalStage, error) {
	if stage, ok := r.CoachStageFor(actor.ID); ok {
		return stage, nil
	}
	if actor.IsCampusAdmin() {
		return models.StageCampusAdmin, nil
	}
	return "", appErrors.Clone(appErrors.ErrUnauthorizedActor, "actor is not an approver of this request")
}

func (s *CoachChangeService) resolveCurrentCoach(ctx context.Context, studentID, requested string) (string, error) {
	if s.relations == nil {
		if requested == "" {
			return "", appErrors.Clone(appErrors.ErrInvalidParticipants, "current coach is required")
		}
		return requested, nil
	}

	active, err := s.relations.CurrentCoach(ctx, studentID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if requested == "" {
			return "", appErrors.Clone(appErrors.ErrInvalidParticipants, "student has no active coach")
		}
		return requested, nil
	case err != nil:
		return "", s.translate(err, "failed to resolve current coach")
	}
	if requested != "" && requested != active {
		return "", appErrors.Clone(appErrors.ErrInvalidParticipants, "current coach does not match the student's active coach")
	}
	return active, nil
}

func (s *CoachChangeService) checkParticipants(ctx context.Context, studentID, currentCoachID, targetCoachID string) error {
	if currentCoachID == targetCoachID {
		return appErrors.Clone(appErrors.ErrInvalidParticipants, "current and target coach must differ")
	}
	if studentID == currentCoachID || studentID == targetCoachID {
		return appErrors.Clone(appErrors.ErrInvalidParticipants, "student cannot be one of the coaches")
	}
	if s.eligibility == nil {
		return nil
	}
	for _, coachID := range []string{currentCoachID, targetCoachID} {
		ok, err := s.eligibility.IsActiveCoach(ctx, coachID)
		if err != nil {
			return s.translate(err, "failed to check coach eligibility")
		}
		if !ok {
			return appErrors.Clone(appErrors.ErrInvalidParticipants, fmt.Sprintf("%s is not an active coach", coachID))
		}
	}
	return nil
}

func (s *CoachChangeService) newEvent(ctx context.Context, kind models.WorkflowEventType, actorID string, stage *models.ApprovalStage, decision *models.StageDecision, snapshot models.CoachChangeRequest) models.WorkflowEvent {
	return models.WorkflowEvent{
		ID:            s.ids.NewID(),
		Type:          kind,
		RequestID:     snapshot.ID,
		ActorID:       actorID,
		Stage:         stage,
		Decision:      decision,
		Status:        snapshot.Status,
		Snapshot:      snapshot.Clone(),
		CorrelationID: requestid.FromContext(ctx),
		OccurredAt:    snapshot.UpdatedAt,
	}
}

// publish hands the event to the publisher. The state change is already durable,
// so failures and caller cancellation are only logged.
func (s *CoachChangeService) publish(ctx context.Context, event models.WorkflowEvent) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.NotifyTimeout)
	defer cancel()
	if err := s.publisher.Publish(pubCtx, event); err != nil {
		s.logger.Warn("publish coach change event failed",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.String("request_id", event.RequestID),
			zap.Error(err),
		)
	}
}

// storeInCache offers req to the snapshot cache. The write is version-guarded so
// racing writers and reads that loaded an older row never replace a newer entry.
func (s *CoachChangeService) storeInCache(ctx context.Context, req models.CoachChangeRequest) {
	if !s.cache.Enabled() {
		return
	}
	_, _ = s.cache.SetIfNewer(context.WithoutCancel(ctx), cacheKey(req.ID), req, req.Version, s.cfg.CacheTTL)
}

func (s *CoachChangeService) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.StoreTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.StoreTimeout)
}

// translate maps store and context failures onto workflow error kinds.
func (s *CoachChangeService) translate(err error, message string) error {
	var appErr *appErrors.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "coach change store did not respond in time")
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, "coach change request not found")
	}
	s.logger.Error(message, zap.Error(err))
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func (s *CoachChangeService) fail(op string, err error) error {
	s.metrics.RecordTransition(op, appErrors.FromError(err).Code)
	return err
}

// withStoreDeadline attaches the context error when the store call ran out of time,
// since drivers do not always wrap it.
func withStoreDeadline(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		return errors.Join(ctxErr, err)
	}
	return err
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid payload"
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fmt.Sprintf("%s is required", fe.Field()))
		case "max":
			parts = append(parts, fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param()))
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s must be one of %s", fe.Field(), fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s is invalid", fe.Field()))
		}
	}
	return strings.Join(parts, "; ")
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	return page, size
}

func cacheKey(id string) string {
	return "coach_change:" + id
}

func auditDocument(req models.CoachChangeRequest, history []models.AuditLog, generatedAt time.Time) export.Document {
	summary := []export.Field{
		{Label: "Student", Value: req.StudentID},
		{Label: "Current coach", Value: req.CurrentCoachID},
		{Label: "Target coach", Value: req.TargetCoachID},
		{Label: "Reason", Value: req.Reason},
		{Label: "Status", Value: string(req.Status)},
		{Label: "Requested at", Value: req.CreatedAt.Format(time.RFC3339)},
	}
	if req.ProcessedAt != nil {
		summary = append(summary, export.Field{Label: "Processed at", Value: req.ProcessedAt.Format(time.RFC3339)})
	}
	if req.ProcessedBy != nil {
		summary = append(summary, export.Field{Label: "Processed by", Value: *req.ProcessedBy})
	}

	stages := export.Dataset{Headers: []string{"Stage", "Decision", "Decided by", "Decided at", "Notes"}}
	for _, st := range models.ApprovalStages {
		approval := req.Stage(st)
		row := map[string]string{"Stage": string(st), "Decision": string(approval.Decision)}
		if approval.DecidedBy != nil {
			row["Decided by"] = *approval.DecidedBy
		}
		if approval.DecidedAt != nil {
			row["Decided at"] = approval.DecidedAt.Format(time.RFC3339)
		}
		if approval.Notes != nil {
			row["Notes"] = *approval.Notes
		}
		stages.Rows = append(stages.Rows, row)
	}

	tables := []export.Table{{Caption: "Approval stages", Data: stages}}
	if len(history) > 0 {
		events := export.Dataset{Headers: []string{"When", "Action", "By"}}
		for _, entry := range history {
			by := ""
			if entry.UserID != nil {
				by = *entry.UserID
			}
			events.Rows = append(events.Rows, map[string]string{
				"When":   entry.CreatedAt.Format(time.RFC3339),
				"Action": entry.Action,
				"By":     by,
			})
		}
		tables = append(tables, export.Table{Caption: "History", Data: events})
	}

	return export.Document{
		Title:    "Coach change request",
		Subtitle: req.ID,
		Summary:  summary,
		Tables:   tables,
		Footer:   fmt.Sprintf("version %d, generated %s", req.Version, generatedAt.Format(time.RFC3339)),
	}
}
