package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"dropin/internal/audit"
	"dropin/internal/registration/metrics"
	"dropin/internal/roster/models"
	id "dropin/pkg/domain"
	dErrors "dropin/pkg/domain-errors"
	"dropin/pkg/platform/sentinel"
	"dropin/pkg/requestcontext"
)

const (
	defaultMaxConflictRetries = 3
	tracerName                = "dropin/registration"
)

// Operation names used for spans, metrics and logs.
const (
	opCreateGame        = "create_game"
	opDeleteGame        = "delete_game"
	opRegister          = "register"
	opUnregister        = "unregister"
	opRemoveParticipant = "remove_participant"
	opSnapshot          = "snapshot"
)

// RosterStore is the per-game atomic storage the engine drives. Each call is
// one linearizable step on one game.
type RosterStore interface {
	CreateGame(ctx context.Context, game *models.Game) error
	DeleteGame(ctx context.Context, gameID id.GameID) (bool, error)
	TryInsert(ctx context.Context, gameID id.GameID, userID id.UserID) (models.InsertOutcome, error)
	RemoveIfPresent(ctx context.Context, gameID id.GameID, userID id.UserID) (bool, error)
	ReadSnapshot(ctx context.Context, gameID id.GameID) (*models.GameView, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the registration engine: it owns the capacity and membership
// rules and the organizer-only mutations. All per-game exclusion lives in
// the store; the service holds no locks.
type Service struct {
	roster                     RosterStore
	logger                     *slog.Logger
	auditPublisher             AuditPublisher
	metrics                    *metrics.Metrics
	tracer                     trace.Tracer
	allowOrganizerRegistration bool
	maxConflictRetries         int
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithOrganizerRegistration lets organizers register for games like members.
func WithOrganizerRegistration(allow bool) Option {
	return func(s *Service) {
		s.allowOrganizerRegistration = allow
	}
}

// WithMaxConflictRetries bounds how often a retryable store conflict is
// retried before the caller sees CodeConflict.
func WithMaxConflictRetries(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.maxConflictRetries = n
		}
	}
}

// New constructs the engine.
func New(roster RosterStore, opts ...Option) (*Service, error) {
	if roster == nil {
		return nil, errors.New("roster store is required")
	}
	s := &Service{
		roster:             roster,
		tracer:             otel.Tracer(tracerName),
		maxConflictRetries: defaultMaxConflictRetries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateGameRequest carries the organizer's input for a new game.
type CreateGameRequest struct {
	Name     string
	StartsAt time.Time
	Capacity int
}

// CreateGame schedules a new, empty game. Organizer only.
func (s *Service) CreateGame(ctx context.Context, requester id.Identity, req CreateGameRequest) (view *models.GameView, err error) {
	ctx, finish := s.begin(ctx, opCreateGame, nil)
	defer func() { finish(err) }()

	if err := requireOrganizer(requester, "only organizers can create games"); err != nil {
		return nil, err
	}

	game, err := models.NewGame(id.NewGameID(), req.Name, req.StartsAt, req.Capacity, requester.UserID, requestcontext.Now(ctx))
	if err != nil {
		// Convert invariant violations to validation errors for API response
		var invariant *dErrors.Error
		if errors.As(err, &invariant) && invariant.Code == dErrors.CodeInvariantViolation {
			return nil, dErrors.New(dErrors.CodeInvalidArgument, invariant.Message)
		}
		return nil, err
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("game.id", game.ID.String()))

	if err := checkNotAbandoned(ctx); err != nil {
		return nil, err
	}
	err = s.withConflictRetry(ctx, opCreateGame, func() error {
		return s.roster.CreateGame(ctx, game)
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "game id collision")
		}
		return nil, translateStoreError(err)
	}

	s.logAudit(ctx, audit.EventGameCreated, game.ID, id.UserID{}, requester.UserID,
		"capacity", game.Capacity,
		"starts_at", game.StartsAt,
	)
	return models.NewGameView(*game, nil), nil
}

// DeleteGame removes a game and every registration in it. Organizer only.
func (s *Service) DeleteGame(ctx context.Context, requester id.Identity, gameID id.GameID) (err error) {
	ctx, finish := s.begin(ctx, opDeleteGame, &gameID)
	defer func() { finish(err) }()

	if err := requireOrganizer(requester, "only organizers can delete games"); err != nil {
		return err
	}
	if err := checkNotAbandoned(ctx); err != nil {
		return err
	}

	var deleted bool
	err = s.withConflictRetry(ctx, opDeleteGame, func() error {
		var storeErr error
		deleted, storeErr = s.roster.DeleteGame(ctx, gameID)
		return storeErr
	})
	if err != nil {
		return translateStoreError(err)
	}
	if !deleted {
		return errGameNotFound()
	}

	s.logAudit(ctx, audit.EventGameDeleted, gameID, id.UserID{}, requester.UserID)
	return nil
}

// Register claims a seat for the requester. The capacity check and insert
// happen in one store step, so two racers for the last seat get one success
// and one CodeGameFull.
func (s *Service) Register(ctx context.Context, requester id.Identity, gameID id.GameID) (err error) {
	ctx, finish := s.begin(ctx, opRegister, &gameID)
	defer func() { finish(err) }()

	if err := requireIdentity(requester); err != nil {
		return err
	}
	if requester.Role.IsOrganizer() && !s.allowOrganizerRegistration {
		return dErrors.New(dErrors.CodeUnauthorized, "organizers cannot register for games")
	}
	if err := checkNotAbandoned(ctx); err != nil {
		return err
	}

	var outcome models.InsertOutcome
	err = s.withConflictRetry(ctx, opRegister, func() error {
		var storeErr error
		outcome, storeErr = s.roster.TryInsert(ctx, gameID, requester.UserID)
		return storeErr
	})
	if err != nil {
		return translateStoreError(err)
	}

	switch outcome {
	case models.InsertOutcomeInserted:
		s.logAudit(ctx, audit.EventSeatClaimed, gameID, requester.UserID, requester.UserID)
		return nil
	case models.InsertOutcomeAlreadyMember:
		return dErrors.New(dErrors.CodeAlreadyRegistered, "already registered for this game")
	case models.InsertOutcomeFull:
		return dErrors.New(dErrors.CodeGameFull, "game is full")
	default:
		return dErrors.New(dErrors.CodeInternal, "unexpected roster outcome "+outcome.String())
	}
}

// Unregister releases the requester's seat.
func (s *Service) Unregister(ctx context.Context, requester id.Identity, gameID id.GameID) (err error) {
	ctx, finish := s.begin(ctx, opUnregister, &gameID)
	defer func() { finish(err) }()

	if err := requireIdentity(requester); err != nil {
		return err
	}
	if err := s.release(ctx, opUnregister, gameID, requester.UserID); err != nil {
		return err
	}
	s.logAudit(ctx, audit.EventSeatReleased, gameID, requester.UserID, requester.UserID)
	return nil
}

// RemoveParticipant releases another identity's seat. Organizer only.
func (s *Service) RemoveParticipant(ctx context.Context, requester id.Identity, gameID id.GameID, participantID id.UserID) (err error) {
	ctx, finish := s.begin(ctx, opRemoveParticipant, &gameID)
	defer func() { finish(err) }()

	if err := requireOrganizer(requester, "only organizers can remove participants"); err != nil {
		return err
	}
	if participantID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidArgument, "participant id is required")
	}
	if err := s.release(ctx, opRemoveParticipant, gameID, participantID); err != nil {
		return err
	}
	s.logAudit(ctx, audit.EventParticipantRemoved, gameID, participantID, requester.UserID)
	return nil
}

func (s *Service) release(ctx context.Context, op string, gameID id.GameID, userID id.UserID) error {
	if err := checkNotAbandoned(ctx); err != nil {
		return err
	}
	var removed bool
	err := s.withConflictRetry(ctx, op, func() error {
		var storeErr error
		removed, storeErr = s.roster.RemoveIfPresent(ctx, gameID, userID)
		return storeErr
	})
	if err != nil {
		return translateStoreError(err)
	}
	if !removed {
		return dErrors.New(dErrors.CodeNotRegistered, "not registered for this game")
	}
	return nil
}

// Snapshot returns a consistent point-in-time view of one game, including
// its membership. Callers redact members before showing them to non-organizers.
func (s *Service) Snapshot(ctx context.Context, gameID id.GameID) (view *models.GameView, err error) {
	ctx, finish := s.begin(ctx, opSnapshot, &gameID)
	defer func() { finish(err) }()

	if err := checkNotAbandoned(ctx); err != nil {
		return nil, err
	}
	err = s.withConflictRetry(ctx, opSnapshot, func() error {
		var storeErr error
		view, storeErr = s.roster.ReadSnapshot(ctx, gameID)
		return storeErr
	})
	if err != nil {
		return nil, translateStoreError(err)
	}
	return view, nil
}

// withConflictRetry runs fn again while it reports a retryable conflict.
// Other errors, including ErrUnavailable, return immediately.
func (s *Service) withConflictRetry(ctx context.Context, op string, fn func() error) error {
	err := fn()
	for attempt := 0; attempt < s.maxConflictRetries && errors.Is(err, sentinel.ErrConflict); attempt++ {
		s.metrics.IncrementConflictRetry(op)
		if s.logger != nil {
			s.logger.DebugContext(ctx, "retrying roster conflict",
				"operation", op,
				"attempt", attempt+1,
				"request_id", requestcontext.RequestID(ctx),
			)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = fn()
	}
	return err
}

// begin opens a span for op and returns a finish func that records the
// outcome in the span and the metrics.
func (s *Service) begin(ctx context.Context, op string, gameID *id.GameID) (context.Context, func(error)) {
	start := time.Now()
	opts := []trace.SpanStartOption{trace.WithAttributes(attribute.String("roster.operation", op))}
	if gameID != nil {
		opts = append(opts, trace.WithAttributes(attribute.String("game.id", gameID.String())))
	}
	ctx, span := s.tracer.Start(ctx, "registration."+op, opts...)
	return ctx, func(err error) {
		outcome := "ok"
		if err != nil {
			outcome = string(dErrors.CodeOf(err))
			span.SetAttributes(attribute.String("roster.outcome", outcome))
			if outcome == string(dErrors.CodeInternal) || outcome == string(dErrors.CodeUnavailable) {
				span.RecordError(err)
				span.SetStatus(codes.Error, outcome)
			}
		}
		span.End()
		s.metrics.RecordOutcome(op, outcome)
		s.metrics.ObserveOperation(op, start)
	}
}

// logAudit records a committed roster change. Emission failures are logged
// and never undo or fail the change.
func (s *Service) logAudit(ctx context.Context, event audit.EventName, gameID id.GameID, userID, actorID id.UserID, attributes ...any) {
	requestID := requestcontext.RequestID(ctx)
	if s.logger != nil {
		args := append(attributes,
			"event", string(event),
			"log_type", "audit",
			"game_id", gameID.String(),
			"actor_id", actorID.String(),
		)
		if !userID.IsNil() {
			args = append(args, "user_id", userID.String())
		}
		if requestID != "" {
			args = append(args, "request_id", requestID)
		}
		s.logger.InfoContext(ctx, string(event), args...)
	}
	if s.auditPublisher == nil {
		return
	}
	err := s.auditPublisher.Emit(ctx, audit.Event{
		Timestamp: requestcontext.Now(ctx),
		Action:    event,
		GameID:    gameID,
		UserID:    userID,
		ActorID:   actorID,
		RequestID: requestID,
	})
	if err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"error", err,
			"event", string(event),
			"request_id", requestID,
		)
	}
}

func requireIdentity(requester id.Identity) error {
	if requester.UserID.IsNil() || !requester.Role.IsValid() {
		return dErrors.New(dErrors.CodeUnauthorized, "a resolved identity is required")
	}
	return nil
}

func requireOrganizer(requester id.Identity, msg string) error {
	if err := requireIdentity(requester); err != nil {
		return err
	}
	if !requester.Role.IsOrganizer() {
		return dErrors.New(dErrors.CodeUnauthorized, msg)
	}
	return nil
}

// checkNotAbandoned refuses to start the atomic step for a caller that has
// already gone away.
func checkNotAbandoned(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "request abandoned before the roster changed")
	}
	return nil
}

func errGameNotFound() error {
	return dErrors.New(dErrors.CodeNotFound, "game not found")
}

// translateStoreError maps store sentinels onto domain codes.
func translateStoreError(err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "request abandoned before the roster changed")
	case errors.Is(err, sentinel.ErrNotFound):
		return errGameNotFound()
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "concurrent roster change, retry")
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "roster store unavailable")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "roster store failure")
	}
}
