package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	catalog "dropin/internal/catalog/service"
	"dropin/internal/roster/models"
	id "dropin/pkg/domain"
	dErrors "dropin/pkg/domain-errors"
	"dropin/pkg/platform/httputil"
	"dropin/pkg/requestcontext"
)

// Service defines the catalog reads the handler serves.
type Service interface {
	ListGames(ctx context.Context, viewer id.Identity, includeMembers bool) (*catalog.Listing, error)
	GetGame(ctx context.Context, viewer id.Identity, gameID id.GameID) (*models.GameView, bool, error)
}

type Handler struct {
	logger  *slog.Logger
	catalog Service
}

func New(catalog Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, catalog: catalog}
}

// Register registers the catalog routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/games", h.handleListGames)
	r.Get("/games/{gameID}", h.handleGetGame)
}

type listGamesResponse struct {
	Games             []models.GameResponse `json:"games"`
	UserRegistrations []string              `json:"userRegistrations"`
}

type gameResponse struct {
	models.GameResponse
	Registered bool `json:"registered"`
}

func (h *Handler) handleListGames(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	viewer, ok := requestcontext.Identity(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "authentication required"))
		return
	}

	// userID is accepted for the existing client but must name the caller.
	if raw := r.URL.Query().Get("userID"); raw != "" {
		userID, err := id.ParseUserID(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		if userID != viewer.UserID {
			h.logger.WarnContext(ctx, "catalog userID does not match token subject",
				"request_id", requestcontext.RequestID(ctx),
			)
			httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "userID does not match the authenticated user"))
			return
		}
	}
	includeMembers := false
	if raw := r.URL.Query().Get("members"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidArgument, "members must be a boolean"))
			return
		}
		includeMembers = parsed
	}

	listing, err := h.catalog.ListGames(ctx, viewer, includeMembers)
	if err != nil {
		h.logger.InfoContext(ctx, "failed to list games",
			"error", err.Error(),
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}

	resp := listGamesResponse{
		Games:             make([]models.GameResponse, 0, len(listing.Games)),
		UserRegistrations: make([]string, 0, len(listing.Registrations)),
	}
	for _, view := range listing.Games {
		resp.Games = append(resp.Games, models.NewGameResponse(view, includeMembers))
	}
	for _, gameID := range listing.Registrations {
		resp.UserRegistrations = append(resp.UserRegistrations, gameID.String())
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetGame(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	viewer, ok := requestcontext.Identity(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "authentication required"))
		return
	}
	gameID, err := id.ParseGameID(chi.URLParam(r, "gameID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	view, registered, err := h.catalog.GetGame(ctx, viewer, gameID)
	if err != nil {
		h.logger.InfoContext(ctx, "failed to get game",
			"game_id", gameID.String(),
			"error", err.Error(),
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, gameResponse{
		GameResponse: models.NewGameResponse(view, viewer.Role.IsOrganizer()),
		Registered:   registered,
	})
}
