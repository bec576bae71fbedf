package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/rpggio/dsheet/internal/domain/activity"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type activityDoc struct {
	ID         int64         `bson:"_id"`
	ProjectKey string        `bson:"project_key"`
	ItemID     *string       `bson:"item_id,omitempty"`
	Type       activity.Type `bson:"activity_type"`
	Summary    string        `bson:"summary"`
	Details    string        `bson:"details,omitempty"`
	CreatedAt  time.Time     `bson:"created_at"`
}

// ActivityRepository implements activity.Repository for MongoDB
type ActivityRepository struct {
	db *DB
}

// NewActivityRepository creates a new ActivityRepository
func NewActivityRepository(db *DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Log inserts a new activity entry
func (r *ActivityRepository) Log(ctx context.Context, entry *activity.Entry) error {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	id, err := r.db.nextSequence(ctx, collActivity)
	if err != nil {
		return fmt.Errorf("failed to log activity: %w", err)
	}

	doc := activityDoc{
		ID:         id,
		ProjectKey: entry.ProjectKey,
		ItemID:     entry.ItemID,
		Type:       entry.Type,
		Summary:    entry.Summary,
		Details:    entry.Details,
		CreatedAt:  createdAt.UTC(),
	}
	if _, err := r.db.coll(collActivity).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to log activity: %w", err)
	}

	entry.ID = id
	entry.CreatedAt = createdAt
	return nil
}

// List returns activity entries matching the given filters, newest first
func (r *ActivityRepository) List(ctx context.Context, opts activity.ListOptions) ([]activity.Entry, error) {
	filter := bson.M{}
	if opts.ProjectKey != "" {
		filter["project_key"] = opts.ProjectKey
	}
	if opts.ItemID != nil {
		filter["item_id"] = *opts.ItemID
	}
	if opts.Type != nil {
		filter["activity_type"] = *opts.Type
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
		if opts.Offset > 0 {
			findOpts.SetSkip(int64(opts.Offset))
		}
	}

	cur, err := r.db.coll(collActivity).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	var docs []activityDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode activity: %w", err)
	}

	entries := make([]activity.Entry, 0, len(docs))
	for _, d := range docs {
		entries = append(entries, activity.Entry{
			ID:         d.ID,
			ProjectKey: d.ProjectKey,
			ItemID:     d.ItemID,
			Type:       d.Type,
			Summary:    d.Summary,
			Details:    d.Details,
			CreatedAt:  d.CreatedAt,
		})
	}
	return entries, nil
}
