package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"dropin/internal/identity/models"
	"dropin/internal/identity/service"
	id "dropin/pkg/domain"
	dErrors "dropin/pkg/domain-errors"
	"dropin/pkg/platform/httputil"
	"dropin/pkg/requestcontext"
)

// Service defines the identity operations behind POST /auth.
type Service interface {
	Login(ctx context.Context, username, password string) (*service.AuthResult, error)
	SignUp(ctx context.Context, username, password, studentID string) (*service.AuthResult, error)
	AddStudent(ctx context.Context, requester id.Identity, req service.AddStudentRequest) (*models.Student, error)
}

type Handler struct {
	logger   *slog.Logger
	identity Service
}

func New(identity Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, identity: identity}
}

// Register registers the auth route. add-student reads the identity put in
// the context by the optional auth middleware.
func (h *Handler) Register(r chi.Router) {
	r.Post("/auth", h.handleAuth)
}

type authRequest struct {
	Action    string `json:"action"`
	Username  string `json:"username,omitempty"`
	Password  string `json:"password,omitempty"`
	StudentID string `json:"studentID,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Email     string `json:"email,omitempty"`
	Program   string `json:"program,omitempty"`
}

type authResponse struct {
	UserID    string `json:"userID"`
	Role      string `json:"role"`
	FirstName string `json:"firstName"`
	Token     string `json:"token"`
}

type addStudentResponse struct {
	StudentID string `json:"studentID"`
}

func (h *Handler) handleAuth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	var req authRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.logger.WarnContext(ctx, "invalid auth request",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}

	switch req.Action {
	case "login":
		result, err := h.identity.Login(ctx, req.Username, req.Password)
		if err != nil {
			h.writeFailure(ctx, w, "login failed", err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, toAuthResponse(result))

	case "register":
		result, err := h.identity.SignUp(ctx, req.Username, req.Password, req.StudentID)
		if err != nil {
			h.writeFailure(ctx, w, "sign up failed", err)
			return
		}
		httputil.WriteJSON(w, http.StatusCreated, toAuthResponse(result))

	case "add-student":
		requester, ok := requestcontext.Identity(ctx)
		if !ok {
			httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "authentication required"))
			return
		}
		student, err := h.identity.AddStudent(ctx, requester, service.AddStudentRequest{
			StudentID: req.StudentID,
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Email:     req.Email,
			Program:   req.Program,
		})
		if err != nil {
			h.writeFailure(ctx, w, "add student failed", err)
			return
		}
		httputil.WriteJSON(w, http.StatusCreated, addStudentResponse{StudentID: student.StudentID})

	default:
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "unknown action"))
	}
}

func (h *Handler) writeFailure(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	attrs := []any{
		"error", err.Error(),
		"code", string(dErrors.CodeOf(err)),
		"request_id", requestcontext.RequestID(ctx),
	}
	if httputil.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.InfoContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}

func toAuthResponse(result *service.AuthResult) authResponse {
	return authResponse{
		UserID:    result.User.ID.String(),
		Role:      result.User.Role.String(),
		FirstName: result.User.FirstName,
		Token:     result.Token,
	}
}
