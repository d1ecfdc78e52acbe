package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"dropin/internal/ratelimit/models"
	"dropin/internal/ratelimit/store"
	"dropin/pkg/requestcontext"
	"dropin/pkg/testutil"
)

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string, int, time.Duration) (*models.Result, error) {
	return nil, errors.New("redis down")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func fromIP(ip string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/auth", nil)
	return req.WithContext(requestcontext.WithClientMetadata(req.Context(), ip, "test"))
}

func TestPerClientIP(t *testing.T) {
	mw := New(store.NewInMemory(), discardLogger())
	h := mw.PerClientIP("auth", 2, time.Minute)(okHandler())

	t.Run("within the limit carries headers", func(t *testing.T) {
		rr := testutil.DoRequest(h, fromIP("10.0.0.1"))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "2", rr.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "1", rr.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, rr.Header().Get("X-RateLimit-Reset"))
	})

	t.Run("over the limit is 429 with retry-after", func(t *testing.T) {
		testutil.DoRequest(h, fromIP("10.0.0.1"))
		rr := testutil.DoRequest(h, fromIP("10.0.0.1"))
		testutil.AssertStatusAndError(t, rr, http.StatusTooManyRequests, "rate_limited")
		assert.NotEmpty(t, rr.Header().Get("Retry-After"))
	})

	t.Run("other clients are unaffected", func(t *testing.T) {
		rr := testutil.DoRequest(h, fromIP("10.0.0.2"))
		assert.Equal(t, http.StatusOK, rr.Code)
	})
}

func TestPerClientIPFailsOpen(t *testing.T) {
	testutil.Given(t, "a limiter whose backend is down", func(t *testing.T) {
		h := New(brokenLimiter{}, discardLogger()).PerClientIP("auth", 1, time.Minute)(okHandler())

		testutil.When(t, "a client calls twice", func(t *testing.T) {
			first := testutil.DoRequest(h, fromIP("10.0.0.1"))
			second := testutil.DoRequest(h, fromIP("10.0.0.1"))

			testutil.Then(t, "both requests reach the handler without limit headers", func(t *testing.T) {
				assert.Equal(t, http.StatusOK, first.Code)
				assert.Equal(t, http.StatusOK, second.Code)
				assert.Empty(t, second.Header().Get("X-RateLimit-Limit"))
			})
		})
	})
}

func TestDisabled(t *testing.T) {
	h := New(store.NewInMemory(), discardLogger(), WithDisabled(true)).PerClientIP("auth", 1, time.Minute)(okHandler())
	for range 3 {
		rr := testutil.DoRequest(h, fromIP("10.0.0.1"))
		assert.Equal(t, http.StatusOK, rr.Code)
	}
}
