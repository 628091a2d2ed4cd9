// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Values are set by transports (or tests) and consumed by services. Keeping
// this package free of net/http lets the conversation engine import only what
// it needs.
//
// Usage in services (read values):
//
//	now := requestcontext.Now(ctx)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"
)

// Context key types (unexported for encapsulation).
type (
	requestTimeKey struct{}
	messageIDKey   struct{}
)

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (for non-HTTP contexts like workers,
// CLI, tests that don't care about time).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context. Useful for:
//   - Service unit tests that need deterministic age/date validation
//   - Workers that need consistent time within a batch operation
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}

// MessageID retrieves the inbound provider message id from the context, if
// the transport recorded one. Used only for log correlation.
func MessageID(ctx context.Context) string {
	if id, ok := ctx.Value(messageIDKey{}).(string); ok {
		return id
	}
	return ""
}

// WithMessageID injects the inbound provider message id into the context.
func WithMessageID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, messageIDKey{}, id)
}
