// Package mongo stores registries in MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rpggio/dsheet/internal/repository"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	collProjects = "projects"
	collItems    = "items"
	collActivity = "activity_log"
	collTokens   = "access_tokens"
	collCounters = "counters"

	numberIndex = "items_project_number"
)

// codeIndexNotFound is the server error for dropping a missing index.
const codeIndexNotFound = 27

// DB wraps a MongoDB database handle.
type DB struct {
	client *mongo.Client
	db     *mongo.Database

	relaxMu   sync.Mutex
	relaxRefs int
}

// Open connects to uri, checks the connection and ensures indexes.
func Open(ctx context.Context, uri, database string) (*DB, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := &DB{client: client, db: client.Database(database)}
	if err := db.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return db, nil
}

// Close disconnects the client.
func (db *DB) Close(ctx context.Context) error {
	return db.client.Disconnect(ctx)
}

// Drop removes the whole database. Used by tests.
func (db *DB) Drop(ctx context.Context) error {
	return db.db.Drop(ctx)
}

func (db *DB) coll(name string) *mongo.Collection {
	return db.db.Collection(name)
}

// EnsureIndexes creates the indexes every repository relies on.
func (db *DB) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		collItems: {
			numberIndexModel(),
		},
		collActivity: {
			{Keys: bson.D{{Key: "project_key", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		collTokens: {
			{Keys: bson.D{{Key: "expires_at", Value: 1}}},
		},
	}
	for coll, models := range indexes {
		if _, err := db.coll(coll).Indexes().CreateMany(ctx, models); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return fmt.Errorf("failed to create %s indexes: %w: %w", coll, repository.ErrConflict, err)
			}
			return fmt.Errorf("failed to create %s indexes: %w", coll, err)
		}
	}
	return nil
}

func numberIndexModel() mongo.IndexModel {
	return mongo.IndexModel{
		Keys:    bson.D{{Key: "project_key", Value: 1}, {Key: "number", Value: 1}},
		Options: options.Index().SetUnique(true).SetName(numberIndex),
	}
}

// relaxNumberIndex drops the item number index until the returned restore
// runs. Overlapping relaxations share one drop; the last restore rebuilds.
func (db *DB) relaxNumberIndex(ctx context.Context) (func(context.Context) error, error) {
	db.relaxMu.Lock()
	defer db.relaxMu.Unlock()

	if db.relaxRefs == 0 {
		err := db.db.RunCommand(ctx, bson.D{
			{Key: "dropIndexes", Value: collItems},
			{Key: "index", Value: numberIndex},
		}).Err()
		var cmdErr mongo.CommandError
		if err != nil && !(errors.As(err, &cmdErr) && cmdErr.Code == codeIndexNotFound) {
			return nil, fmt.Errorf("failed to drop number index: %w", err)
		}
	}
	db.relaxRefs++

	var once sync.Once
	return func(ctx context.Context) error {
		db.relaxMu.Lock()
		defer db.relaxMu.Unlock()

		once.Do(func() { db.relaxRefs-- })
		if db.relaxRefs > 0 {
			return nil
		}
		if _, err := db.coll(collItems).Indexes().CreateOne(ctx, numberIndexModel()); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return fmt.Errorf("failed to rebuild number index: %w: %w", repository.ErrConflict, err)
			}
			return fmt.Errorf("failed to rebuild number index: %w", err)
		}
		return nil
	}, nil
}

// nextSequence returns the next value of a named counter.
func (db *DB) nextSequence(ctx context.Context, name string) (int64, error) {
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	err := db.coll(collCounters).FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("failed to advance %s sequence: %w", name, err)
	}
	return doc.Seq, nil
}

func notFound(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}
