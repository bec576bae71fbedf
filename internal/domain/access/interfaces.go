package access

import (
	"context"
	"time"
)

// Repository stores sessions by token hash. Raw tokens are never stored.
type Repository interface {
	Create(ctx context.Context, tokenHash string, s *Session) error
	Get(ctx context.Context, tokenHash string) (*Session, error)
	Delete(ctx context.Context, tokenHash string) error
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
