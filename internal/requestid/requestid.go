// Package requestid carries the inbound request id through a context so
// outbound worker calls can be correlated with the request that caused them.
package requestid

import (
	"context"

	"github.com/google/uuid"
)

// Header is the HTTP header used to propagate request ids.
const Header = "X-Request-ID"

type contextKey struct{}

// New returns a fresh random request id.
func New() string {
	return uuid.New().String()
}

// NewContext returns a copy of ctx carrying id.
func NewContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the request id stored in ctx, or "".
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}
