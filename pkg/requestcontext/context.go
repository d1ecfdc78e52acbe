// Package requestcontext provides HTTP-independent accessors for request-scoped
// values. Middleware sets them; services read them without importing net/http.
//
//	who := requestcontext.Identity(ctx)
//	requestID := requestcontext.RequestID(ctx)
//	now := requestcontext.Now(ctx)
package requestcontext

import (
	"context"
	"time"

	id "dropin/pkg/domain"
)

type (
	identityKey    struct{}
	clientIPKey    struct{}
	userAgentKey   struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

var (
	ContextKeyIdentity    = identityKey{}
	ContextKeyClientIP    = clientIPKey{}
	ContextKeyUserAgent   = userAgentKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// Identity returns the authenticated identity and whether one is present.
// The role inside was resolved server-side by the identity directory.
func Identity(ctx context.Context) (id.Identity, bool) {
	who, ok := ctx.Value(ContextKeyIdentity).(id.Identity)
	return who, ok
}

// WithIdentity injects an authenticated identity.
func WithIdentity(ctx context.Context, who id.Identity) context.Context {
	return context.WithValue(ctx, ContextKeyIdentity, who)
}

// UserID is a shortcut for the authenticated user's id; nil when anonymous.
func UserID(ctx context.Context) id.UserID {
	who, _ := Identity(ctx)
	return who.UserID
}

func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(ContextKeyClientIP).(string); ok {
		return ip
	}
	return ""
}

func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(ContextKeyUserAgent).(string); ok {
		return ua
	}
	return ""
}

// WithClientMetadata injects client IP and User-Agent into a context.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, ContextKeyClientIP, clientIP)
	ctx = context.WithValue(ctx, ContextKeyUserAgent, userAgent)
	return ctx
}

func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// Now returns the request-scoped time, falling back to time.Now() outside
// HTTP requests (workers, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime pins the request time; tests use it for deterministic timestamps.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
