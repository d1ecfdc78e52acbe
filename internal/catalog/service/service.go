package service

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"dropin/internal/roster/models"
	id "dropin/pkg/domain"
	dErrors "dropin/pkg/domain-errors"
	"dropin/pkg/platform/sentinel"
	"dropin/pkg/requestcontext"
)

// RosterReader is the read side of the roster store.
type RosterReader interface {
	ListGames(ctx context.Context) ([]*models.GameView, error)
}

// GameReader returns a single game snapshot; the registration engine
// satisfies it.
type GameReader interface {
	Snapshot(ctx context.Context, gameID id.GameID) (*models.GameView, error)
}

// Listing is what one viewer sees of the catalog.
type Listing struct {
	Games         []*models.GameView
	Registrations []id.GameID
}

// Service answers catalog reads. Members are only shown to organizers.
type Service struct {
	reader RosterReader
	games  GameReader
	logger *slog.Logger
	tracer trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(reader RosterReader, games GameReader, opts ...Option) (*Service, error) {
	if reader == nil {
		return nil, errors.New("roster reader is required")
	}
	if games == nil {
		return nil, errors.New("game reader is required")
	}
	s := &Service{
		reader: reader,
		games:  games,
		tracer: otel.Tracer("dropin/catalog"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ListGames returns every game ordered by start time then id, plus the
// viewer's own registrations. includeMembers is organizer only.
func (s *Service) ListGames(ctx context.Context, viewer id.Identity, includeMembers bool) (*Listing, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.list_games",
		trace.WithAttributes(attribute.Bool("catalog.include_members", includeMembers)))
	defer span.End()

	if viewer.UserID.IsNil() || !viewer.Role.IsValid() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "a resolved identity is required")
	}
	if includeMembers && !viewer.Role.IsOrganizer() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "only organizers can see members")
	}

	views, err := s.reader.ListGames(ctx)
	if err != nil {
		return nil, s.translate(ctx, err)
	}
	models.SortViews(views)

	// Registrations are read off the same views that are listed, before
	// redaction drops the member list.
	games := make([]*models.GameView, 0, len(views))
	registrations := make([]id.GameID, 0)
	for _, view := range views {
		if view.IsMember(viewer.UserID) {
			registrations = append(registrations, view.ID)
		}
		if !includeMembers {
			view = view.Redacted()
		}
		games = append(games, view)
	}

	span.SetAttributes(attribute.Int("catalog.games", len(games)))
	return &Listing{Games: games, Registrations: registrations}, nil
}

// GetGame returns one game and whether the viewer holds a seat in it.
func (s *Service) GetGame(ctx context.Context, viewer id.Identity, gameID id.GameID) (*models.GameView, bool, error) {
	if viewer.UserID.IsNil() || !viewer.Role.IsValid() {
		return nil, false, dErrors.New(dErrors.CodeUnauthorized, "a resolved identity is required")
	}
	view, err := s.games.Snapshot(ctx, gameID)
	if err != nil {
		return nil, false, err
	}
	registered := view.IsMember(viewer.UserID)
	if !viewer.Role.IsOrganizer() {
		view = view.Redacted()
	}
	return view, registered, nil
}

func (s *Service) translate(ctx context.Context, err error) error {
	var code dErrors.Code
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		code = dErrors.CodeTimeout
	case errors.Is(err, sentinel.ErrUnavailable):
		code = dErrors.CodeUnavailable
	case errors.Is(err, sentinel.ErrConflict):
		code = dErrors.CodeConflict
	default:
		code = dErrors.CodeInternal
	}
	if s.logger != nil && code == dErrors.CodeInternal {
		s.logger.ErrorContext(ctx, "catalog read failed",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return dErrors.Wrap(err, code, "catalog read failed")
}
