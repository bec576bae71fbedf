package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rpggio/dsheet/internal/domain/access"
	"github.com/stretchr/testify/require"
)

type testResolver struct {
	sessions map[string]*access.Session
	err      error
}

func (r *testResolver) Resolve(_ context.Context, token string) (*access.Session, error) {
	if r.err != nil {
		return nil, r.err
	}
	sess, ok := r.sessions[token]
	if !ok {
		return nil, access.ErrUnauthorized
	}
	return sess, nil
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func editorSession() *access.Session {
	return &access.Session{Subject: "alice", Role: access.RoleEditor, ExpiresAt: time.Now().Add(time.Hour)}
}

func TestAuthMiddleware(t *testing.T) {
	resolver := &testResolver{sessions: map[string]*access.Session{"token": editorSession()}}

	handler := AuthMiddleware(resolver, discard)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := SessionFromContext(r.Context())
		require.True(t, ok)
		require.Equal(t, "alice", sess.Subject)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMiddleware_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		resolver *testResolver
	}{
		{"missing header", "", &testResolver{}},
		{"unknown token", "Bearer other", &testResolver{sessions: map[string]*access.Session{}}},
		{"resolver failure", "Bearer token", &testResolver{err: errors.New("db down")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := AuthMiddleware(tt.resolver, discard)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)
			require.Equal(t, http.StatusUnauthorized, rec.Code)
			require.Contains(t, rec.Body.String(), "UNAUTHORIZED")
		})
	}
}

func TestRequireRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name string
		sess *access.Session
		want access.Role
		code int
	}{
		{"no session", nil, access.RoleViewer, http.StatusUnauthorized},
		{"viewer reads", &access.Session{Role: access.RoleViewer}, access.RoleViewer, http.StatusOK},
		{"viewer writes", &access.Session{Role: access.RoleViewer}, access.RoleEditor, http.StatusForbidden},
		{"editor writes", &access.Session{Role: access.RoleEditor}, access.RoleEditor, http.StatusOK},
		{"editor administers", &access.Session{Role: access.RoleEditor}, access.RoleAdmin, http.StatusForbidden},
		{"admin writes", &access.Session{Role: access.RoleAdmin}, access.RoleEditor, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.sess != nil {
				req = req.WithContext(WithSession(req.Context(), tt.sess))
			}
			rec := httptest.NewRecorder()

			RequireRole(tt.want, discard)(ok).ServeHTTP(rec, req)
			require.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestNoAuthMiddleware(t *testing.T) {
	handler := NoAuthMiddleware(LocalSession())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := SessionFromContext(r.Context())
		require.True(t, ok)
		require.Equal(t, access.RoleAdmin, sess.Role)
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}
