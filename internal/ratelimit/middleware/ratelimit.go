package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"dropin/internal/ratelimit/models"
	dErrors "dropin/pkg/domain-errors"
	"dropin/pkg/platform/httputil"
	"dropin/pkg/requestcontext"
)

// Limiter records one request against key and reports whether it fits.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.Result, error)
}

type Middleware struct {
	limiter  Limiter
	logger   *slog.Logger
	disabled bool
}

type Option func(*Middleware)

// WithDisabled turns every check into a pass-through.
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

func New(limiter Limiter, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		limiter: limiter,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled && logger != nil {
		logger.Info("rate limiting disabled")
	}
	return m
}

// PerClientIP limits requests per client address. class namespaces the
// window so different route groups do not share a window. A limiter error
// lets the request through.
func (m *Middleware) PerClientIP(class string, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.disabled || limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			ip := requestcontext.ClientIP(ctx)
			result, err := m.limiter.Allow(ctx, class+":"+ip, limit, window)
			if err != nil {
				if m.logger != nil {
					m.logger.ErrorContext(ctx, "failed to check rate limit",
						"error", err,
						"class", class,
						"request_id", requestcontext.RequestID(ctx),
					)
				}
				next.ServeHTTP(w, r)
				return
			}

			addRateLimitHeaders(w, result)
			if !result.Allowed {
				if m.logger != nil {
					m.logger.WarnContext(ctx, "rate limit exceeded",
						"class", class,
						"client_ip", ip,
						"request_id", requestcontext.RequestID(ctx),
					)
				}
				w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
				httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "rate limit exceeded"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func addRateLimitHeaders(w http.ResponseWriter, result *models.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}
