package access

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rpggio/dsheet/internal/repository"
)

// Service issues and resolves bearer sessions.
type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a new access service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// Issue creates a session and returns its raw token. The token is shown
// once; only its hash is kept.
func (s *Service) Issue(ctx context.Context, subject string, role Role, ttl time.Duration) (string, *Session, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", nil, fmt.Errorf("%w: subject is required", repository.ErrInvalidInput)
	}
	if _, err := ParseRole(string(role)); err != nil {
		return "", nil, err
	}
	if ttl <= 0 {
		return "", nil, fmt.Errorf("%w: ttl must be positive", repository.ErrInvalidInput)
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, fmt.Errorf("generating token: %w", err)
	}
	token := hex.EncodeToString(raw)

	now := s.now()
	sess := &Session{
		Subject:   subject,
		Role:      role,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := s.repo.Create(ctx, HashToken(token), sess); err != nil {
		return "", nil, fmt.Errorf("storing session: %w", err)
	}
	return token, sess, nil
}

// Resolve returns the live session for a raw token.
func (s *Service) Resolve(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}
	sess, err := s.repo.Get(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("loading session: %w", err)
	}
	if sess.Expired(s.now()) {
		return nil, ErrUnauthorized
	}
	return sess, nil
}

// Revoke deletes the session for a raw token.
func (s *Service) Revoke(ctx context.Context, token string) error {
	if err := s.repo.Delete(ctx, HashToken(token)); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUnauthorized
		}
		return fmt.Errorf("revoking session: %w", err)
	}
	return nil
}

// Prune removes expired sessions.
func (s *Service) Prune(ctx context.Context) (int, error) {
	n, err := s.repo.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("pruning sessions: %w", err)
	}
	if n > 0 && s.logger != nil {
		s.logger.Info("expired sessions pruned", "count", n)
	}
	return n, nil
}

// HashToken returns the stored form of a raw token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
