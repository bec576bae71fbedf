package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/rpggio/dsheet/internal/domain/access"
	"github.com/rpggio/dsheet/internal/repository"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

type sessionDoc struct {
	TokenHash string      `bson:"_id"`
	Subject   string      `bson:"subject"`
	Role      access.Role `bson:"role"`
	CreatedAt time.Time   `bson:"created_at"`
	ExpiresAt time.Time   `bson:"expires_at"`
}

// AccessRepository implements access.Repository for MongoDB
type AccessRepository struct {
	db *DB
}

// NewAccessRepository creates a new AccessRepository
func NewAccessRepository(db *DB) *AccessRepository {
	return &AccessRepository{db: db}
}

// Create stores a session under its token hash
func (r *AccessRepository) Create(ctx context.Context, tokenHash string, s *access.Session) error {
	_, err := r.db.coll(collTokens).InsertOne(ctx, sessionDoc{
		TokenHash: tokenHash,
		Subject:   s.Subject,
		Role:      s.Role,
		CreatedAt: s.CreatedAt.UTC(),
		ExpiresAt: s.ExpiresAt.UTC(),
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// Get loads the session for a token hash
func (r *AccessRepository) Get(ctx context.Context, tokenHash string) (*access.Session, error) {
	var doc sessionDoc
	if err := r.db.coll(collTokens).FindOne(ctx, bson.M{"_id": tokenHash}).Decode(&doc); err != nil {
		if notFound(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &access.Session{
		Subject:   doc.Subject,
		Role:      doc.Role,
		CreatedAt: doc.CreatedAt,
		ExpiresAt: doc.ExpiresAt,
	}, nil
}

// Delete removes one session
func (r *AccessRepository) Delete(ctx context.Context, tokenHash string) error {
	res, err := r.db.coll(collTokens).DeleteOne(ctx, bson.M{"_id": tokenHash})
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if res.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteExpired removes sessions that expired at or before now
func (r *AccessRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.coll(collTokens).DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": now.UTC()}})
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return int(res.DeletedCount), nil
}
