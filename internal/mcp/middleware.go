package mcp

import (
	"context"
	"fmt"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/dsheet/internal/domain/access"
	"github.com/rpggio/dsheet/internal/transport"
)

// authMiddleware implements bearer token authentication as MCP middleware.
func authMiddleware(resolver transport.SessionResolver) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			// Skip auth for protocol methods
			if method == "initialize" || method == "ping" || method == "notifications/initialized" {
				return next(ctx, method, req)
			}

			extra := req.GetExtra()
			if extra == nil || extra.Header == nil {
				return nil, fmt.Errorf("%w: missing headers", access.ErrUnauthorized)
			}

			token := transport.BearerToken(extra.Header.Get("Authorization"))
			if token == "" {
				return nil, fmt.Errorf("%w: missing bearer token", access.ErrUnauthorized)
			}

			sess, err := resolver.Resolve(ctx, token)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", access.ErrUnauthorized, err)
			}

			return next(transport.WithSession(ctx, sess), method, req)
		}
	}
}

// noAuthMiddleware injects a fixed session when auth is disabled.
func noAuthMiddleware(sess *access.Session) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			return next(transport.WithSession(ctx, sess), method, req)
		}
	}
}

// requireRole checks the caller's session inside a tool handler.
func requireRole(ctx context.Context, want access.Role) error {
	sess, ok := transport.SessionFromContext(ctx)
	if !ok {
		return access.ErrUnauthorized
	}
	if !sess.Role.Allows(want) {
		return fmt.Errorf("%w: %s role required", access.ErrForbidden, want)
	}
	return nil
}

func subject(ctx context.Context) string {
	if sess, ok := transport.SessionFromContext(ctx); ok {
		return sess.Subject
	}
	return ""
}
