package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"dropin/internal/registration/service"
	"dropin/internal/roster/models"
	id "dropin/pkg/domain"
	dErrors "dropin/pkg/domain-errors"
	"dropin/pkg/platform/httputil"
	"dropin/pkg/requestcontext"
)

// datetime-local inputs arrive without seconds or zone; they are read as UTC.
const dateTimeLocalLayout = "2006-01-02T15:04"

// Service is the registration engine surface the handler drives.
type Service interface {
	CreateGame(ctx context.Context, requester id.Identity, req service.CreateGameRequest) (*models.GameView, error)
	DeleteGame(ctx context.Context, requester id.Identity, gameID id.GameID) error
	Register(ctx context.Context, requester id.Identity, gameID id.GameID) error
	Unregister(ctx context.Context, requester id.Identity, gameID id.GameID) error
	RemoveParticipant(ctx context.Context, requester id.Identity, gameID id.GameID, participantID id.UserID) error
}

// Handler serves the game mutation endpoints. Routes expect an identity in
// the context, put there by the auth middleware.
type Handler struct {
	logger *slog.Logger
	engine Service
}

func New(engine Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, engine: engine}
}

// Register registers the registration routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/games", h.handleCreateGame)
	r.Post("/games/register", h.handleRegistration)
	r.Delete("/games/manage", h.handleManage)
}

type createGameRequest struct {
	GameName    string `json:"gameName"`
	DateTime    string `json:"dateTime"`
	MaxSpots    int    `json:"maxSpots"`
	OrganizerID string `json:"organizerID,omitempty"`
}

type registrationRequest struct {
	GameID string `json:"gameID"`
	UserID string `json:"userID,omitempty"`
	Action string `json:"action"`
}

type manageRequest struct {
	Action        string `json:"action"`
	GameID        string `json:"gameID"`
	UserID        string `json:"userID,omitempty"`
	ParticipantID string `json:"participantID,omitempty"`
}

func (h *Handler) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requester, ok := h.requester(w, r)
	if !ok {
		return
	}

	var req createGameRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.warn(ctx, "invalid create game request", err)
		httputil.WriteError(w, err)
		return
	}
	if err := matchesSubject(req.OrganizerID, requester); err != nil {
		h.warn(ctx, "organizer id does not match token subject", err)
		httputil.WriteError(w, err)
		return
	}
	startsAt, err := parseDateTime(req.DateTime)
	if err != nil {
		h.warn(ctx, "invalid game start time", err)
		httputil.WriteError(w, err)
		return
	}

	view, err := h.engine.CreateGame(ctx, requester, service.CreateGameRequest{
		Name:     req.GameName,
		StartsAt: startsAt,
		Capacity: req.MaxSpots,
	})
	if err != nil {
		h.fail(ctx, "failed to create game", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, models.NewGameResponse(view, false))
}

func (h *Handler) handleRegistration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requester, ok := h.requester(w, r)
	if !ok {
		return
	}

	var req registrationRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.warn(ctx, "invalid registration request", err)
		httputil.WriteError(w, err)
		return
	}
	if err := matchesSubject(req.UserID, requester); err != nil {
		h.warn(ctx, "user id does not match token subject", err)
		httputil.WriteError(w, err)
		return
	}
	gameID, err := id.ParseGameID(req.GameID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var message string
	switch req.Action {
	case "register":
		err = h.engine.Register(ctx, requester, gameID)
		message = "registered for game"
	case "unregister":
		err = h.engine.Unregister(ctx, requester, gameID)
		message = "unregistered from game"
	default:
		err = dErrors.New(dErrors.CodeBadRequest, "unknown action")
	}
	if err != nil {
		h.fail(ctx, "registration action failed", err, "action", req.Action, "game_id", req.GameID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, models.MessageResponse{Message: message})
}

func (h *Handler) handleManage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requester, ok := h.requester(w, r)
	if !ok {
		return
	}

	var req manageRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.warn(ctx, "invalid manage request", err)
		httputil.WriteError(w, err)
		return
	}
	if err := matchesSubject(req.UserID, requester); err != nil {
		h.warn(ctx, "user id does not match token subject", err)
		httputil.WriteError(w, err)
		return
	}
	gameID, err := id.ParseGameID(req.GameID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var message string
	switch req.Action {
	case "delete":
		err = h.engine.DeleteGame(ctx, requester, gameID)
		message = "game deleted"
	case "remove-participant":
		var participantID id.UserID
		participantID, err = id.ParseUserID(req.ParticipantID)
		if err == nil {
			err = h.engine.RemoveParticipant(ctx, requester, gameID, participantID)
		}
		message = "participant removed"
	default:
		err = dErrors.New(dErrors.CodeBadRequest, "unknown action")
	}
	if err != nil {
		h.fail(ctx, "manage action failed", err, "action", req.Action, "game_id", req.GameID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, models.MessageResponse{Message: message})
}

func (h *Handler) requester(w http.ResponseWriter, r *http.Request) (id.Identity, bool) {
	who, ok := requestcontext.Identity(r.Context())
	if !ok {
		// Only reachable when the route is mounted without the auth middleware.
		h.logger.ErrorContext(r.Context(), "identity missing from context despite auth middleware",
			"request_id", requestcontext.RequestID(r.Context()),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "authentication required"))
		return id.Identity{}, false
	}
	return who, true
}

func (h *Handler) warn(ctx context.Context, msg string, err error) {
	h.logger.WarnContext(ctx, msg,
		"error", err.Error(),
		"request_id", requestcontext.RequestID(ctx),
	)
}

// fail logs expected outcomes at info and everything else at error.
func (h *Handler) fail(ctx context.Context, msg string, err error, attrs ...any) {
	attrs = append(attrs, "error", err.Error(), "code", string(dErrors.CodeOf(err)), "request_id", requestcontext.RequestID(ctx))
	if httputil.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, attrs...)
		return
	}
	h.logger.InfoContext(ctx, msg, attrs...)
}

// matchesSubject rejects bodies that name someone other than the token
// subject. An omitted field is fine.
func matchesSubject(claimed string, requester id.Identity) error {
	if strings.TrimSpace(claimed) == "" {
		return nil
	}
	userID, err := id.ParseUserID(claimed)
	if err != nil {
		return err
	}
	if userID != requester.UserID {
		return dErrors.New(dErrors.CodeUnauthorized, "body user does not match the authenticated user")
	}
	return nil
}

func parseDateTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, dErrors.New(dErrors.CodeInvalidArgument, "dateTime is required")
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.ParseInLocation(dateTimeLocalLayout, raw, time.UTC); err == nil {
		return t, nil
	}
	return time.Time{}, dErrors.New(dErrors.CodeInvalidArgument, "dateTime must be RFC 3339 or YYYY-MM-DDTHH:MM")
}
