package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	id "dropin/pkg/domain"
	dErrors "dropin/pkg/domain-errors"
	"dropin/pkg/platform/httputil"
	"dropin/pkg/requestcontext"
)

// JWTValidator defines the interface for validating JWT tokens
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims represents the claims we expect from the JWT validator
type JWTClaims struct {
	UserID string
	JTI    string
}

// IdentityResolver looks up the current role of a token subject. Roles are
// never read from the token.
type IdentityResolver interface {
	Resolve(ctx context.Context, userID id.UserID) (id.Identity, error)
}

// GetIdentity retrieves the authenticated identity from the context
func GetIdentity(ctx context.Context) (id.Identity, bool) {
	return requestcontext.Identity(ctx)
}

// RequireAuth validates the bearer token, resolves the subject's identity
// and stores it in the request context. Missing, invalid or unknown
// subjects get 401.
func RequireAuth(validator JWTValidator, resolver IdentityResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := bearerToken(r); !ok {
				logger.WarnContext(r.Context(), "unauthorized access - missing token",
					"request_id", GetRequestID(r.Context()),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "missing bearer token"))
				return
			}
			authenticate(w, r, next, validator, resolver, logger)
		})
	}
}

// OptionalAuth resolves the identity when a bearer token is present and
// passes anonymous requests through. A token that is present but invalid is
// still rejected.
func OptionalAuth(validator JWTValidator, resolver IdentityResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				next.ServeHTTP(w, r)
				return
			}
			authenticate(w, r, next, validator, resolver, logger)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	token = strings.TrimSpace(token)
	return token, ok && token != ""
}

func authenticate(w http.ResponseWriter, r *http.Request, next http.Handler, validator JWTValidator, resolver IdentityResolver, logger *slog.Logger) {
	ctx := r.Context()
	requestID := GetRequestID(ctx)

	token, ok := bearerToken(r)
	if !ok {
		logger.WarnContext(ctx, "unauthorized access - malformed authorization header",
			"request_id", requestID,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "malformed authorization header"))
		return
	}

	claims, err := validator.ValidateToken(token)
	if err != nil {
		logger.WarnContext(ctx, "unauthorized access - invalid token",
			"error", err,
			"request_id", requestID,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "invalid token"))
		return
	}

	userID, err := id.ParseUserID(claims.UserID)
	if err != nil {
		logger.WarnContext(ctx, "unauthorized access - invalid token subject",
			"request_id", requestID,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "invalid token subject"))
		return
	}

	who, err := resolver.Resolve(ctx, userID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			logger.WarnContext(ctx, "unauthorized access - unknown subject",
				"user_id", userID.String(),
				"request_id", requestID,
			)
			httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "unknown subject"))
			return
		}
		logger.ErrorContext(ctx, "failed to resolve identity",
			"error", err,
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}

	next.ServeHTTP(w, r.WithContext(requestcontext.WithIdentity(ctx, who)))
}
