package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rpggio/dsheet/internal/domain/access"
	"github.com/rpggio/dsheet/internal/repository"
)

// AccessRepository implements access.Repository for SQLite
type AccessRepository struct {
	db *DB
}

// NewAccessRepository creates a new AccessRepository
func NewAccessRepository(db *DB) *AccessRepository {
	return &AccessRepository{db: db}
}

// Create stores a session under its token hash
func (r *AccessRepository) Create(ctx context.Context, tokenHash string, s *access.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO access_tokens (token_hash, subject, role, created_at, expires_at) VALUES (?, ?, ?, ?, ?)`,
		tokenHash, s.Subject, s.Role, s.CreatedAt, s.ExpiresAt.Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// Get loads the session for a token hash
func (r *AccessRepository) Get(ctx context.Context, tokenHash string) (*access.Session, error) {
	var s access.Session
	var expires int64
	err := r.db.QueryRowContext(ctx,
		`SELECT subject, role, created_at, expires_at FROM access_tokens WHERE token_hash = ?`,
		tokenHash,
	).Scan(&s.Subject, &s.Role, &s.CreatedAt, &expires)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	s.ExpiresAt = time.Unix(expires, 0)
	return &s, nil
}

// Delete removes one session
func (r *AccessRepository) Delete(ctx context.Context, tokenHash string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM access_tokens WHERE token_hash = ?`, tokenHash)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteExpired removes sessions that expired at or before now
func (r *AccessRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM access_tokens WHERE expires_at <= ?`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(rowsAffected), nil
}
