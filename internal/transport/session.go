package transport

import (
	"context"

	"github.com/rpggio/dsheet/internal/domain/access"
)

type sessionKey struct{}

// WithSession returns a context carrying the caller's session.
func WithSession(ctx context.Context, sess *access.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, sess)
}

// SessionFromContext returns the caller's session, if present.
func SessionFromContext(ctx context.Context) (*access.Session, bool) {
	sess, ok := ctx.Value(sessionKey{}).(*access.Session)
	return sess, ok && sess != nil
}
