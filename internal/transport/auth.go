package transport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rpggio/dsheet/internal/domain/access"
)

// SessionResolver resolves a bearer token to a live session.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (*access.Session, error)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

// AuthMiddleware enforces bearer token authentication.
func AuthMiddleware(resolver SessionResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r.Header.Get("Authorization"))
			if token == "" {
				writeError(w, logger, access.ErrUnauthorized)
				return
			}

			sess, err := resolver.Resolve(r.Context(), token)
			if err != nil {
				if !errors.Is(err, access.ErrUnauthorized) {
					logger.Error("resolving session failed", "error", err)
				}
				writeError(w, logger, access.ErrUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
		})
	}
}

// LocalSession is the identity used when authentication is disabled.
func LocalSession() *access.Session {
	return &access.Session{
		Subject:   "local",
		Role:      access.RoleAdmin,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(100 * 365 * 24 * time.Hour),
	}
}

// NoAuthMiddleware attaches sess to every request.
func NoAuthMiddleware(sess *access.Session) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
		})
	}
}

// RequireRole rejects sessions whose role does not include want.
func RequireRole(want access.Role, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := SessionFromContext(r.Context())
			if !ok {
				writeError(w, logger, access.ErrUnauthorized)
				return
			}
			if !sess.Role.Allows(want) {
				writeError(w, logger, access.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
