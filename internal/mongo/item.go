package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/rpggio/dsheet/internal/domain/item"
	"github.com/rpggio/dsheet/internal/repository"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type itemDoc struct {
	ID         string    `bson:"_id"`
	ProjectKey string    `bson:"project_key"`
	Number     int       `bson:"number"`
	Title      string    `bson:"title"`
	Content    string    `bson:"content"`
	Detail     string    `bson:"detail"`
	Images     []string  `bson:"images"`
	CreatedAt  time.Time `bson:"created_at"`
	ModifiedAt time.Time `bson:"modified_at"`
}

func toItemDoc(it *item.Item) itemDoc {
	images := it.Images
	if images == nil {
		images = []string{}
	}
	return itemDoc{
		ID:         it.ID,
		ProjectKey: it.ProjectKey,
		Number:     it.Number,
		Title:      it.Title,
		Content:    it.Content,
		Detail:     it.Detail,
		Images:     images,
		CreatedAt:  it.CreatedAt.UTC(),
		ModifiedAt: it.ModifiedAt.UTC(),
	}
}

func (d itemDoc) item() item.Item {
	images := d.Images
	if images == nil {
		images = []string{}
	}
	return item.Item{
		ID:         d.ID,
		ProjectKey: d.ProjectKey,
		Number:     d.Number,
		Title:      d.Title,
		Content:    d.Content,
		Detail:     d.Detail,
		Images:     images,
		CreatedAt:  d.CreatedAt,
		ModifiedAt: d.ModifiedAt,
	}
}

// ItemRepository implements item.Repository for MongoDB
type ItemRepository struct {
	db *DB
}

// NewItemRepository creates a new ItemRepository
func NewItemRepository(db *DB) *ItemRepository {
	return &ItemRepository{db: db}
}

func (r *ItemRepository) items() *mongo.Collection {
	return r.db.coll(collItems)
}

func (r *ItemRepository) requireProject(ctx context.Context, key string) error {
	n, err := r.db.coll(collProjects).CountDocuments(ctx, bson.M{"_id": key})
	if err != nil {
		return fmt.Errorf("failed to check project: %w", err)
	}
	if n == 0 {
		return repository.ErrForeignKeyViolation
	}
	return nil
}

// Create inserts a new item with its images
func (r *ItemRepository) Create(ctx context.Context, it *item.Item) error {
	if err := r.requireProject(ctx, it.ProjectKey); err != nil {
		return err
	}
	if _, err := r.items().InsertOne(ctx, toItemDoc(it)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("failed to create item %d: %w", it.Number, repository.ErrConflict)
		}
		return fmt.Errorf("failed to create item: %w", err)
	}
	return nil
}

// Get retrieves an item by project and ID
func (r *ItemRepository) Get(ctx context.Context, projectKey, id string) (*item.Item, error) {
	return r.findOne(ctx, bson.M{"project_key": projectKey, "_id": id})
}

// FindByNumber retrieves the item holding number
func (r *ItemRepository) FindByNumber(ctx context.Context, projectKey string, number int) (*item.Item, error) {
	return r.findOne(ctx, bson.M{"project_key": projectKey, "number": number},
		options.FindOne().SetSort(bson.D{{Key: "_id", Value: 1}}))
}

func (r *ItemRepository) findOne(ctx context.Context, filter bson.M, opts ...options.Lister[options.FindOneOptions]) (*item.Item, error) {
	var doc itemDoc
	if err := r.items().FindOne(ctx, filter, opts...).Decode(&doc); err != nil {
		if notFound(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	it := doc.item()
	return &it, nil
}

// Update writes an item's number, text and images
func (r *ItemRepository) Update(ctx context.Context, it *item.Item) error {
	doc := toItemDoc(it)
	res, err := r.items().UpdateOne(ctx,
		bson.M{"project_key": it.ProjectKey, "_id": it.ID},
		bson.M{"$set": bson.M{
			"number":      doc.Number,
			"title":       doc.Title,
			"content":     doc.Content,
			"detail":      doc.Detail,
			"images":      doc.Images,
			"modified_at": doc.ModifiedAt,
		}},
	)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("failed to update item %d: %w", it.Number, repository.ErrConflict)
		}
		return fmt.Errorf("failed to update item: %w", err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// SetNumber moves one item to number
func (r *ItemRepository) SetNumber(ctx context.Context, projectKey, id string, number int) error {
	res, err := r.items().UpdateOne(ctx,
		bson.M{"project_key": projectKey, "_id": id},
		bson.M{"$set": bson.M{"number": number}},
	)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("failed to set number %d: %w", number, repository.ErrConflict)
		}
		return fmt.Errorf("failed to set number: %w", err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete deletes an item
func (r *ItemRepository) Delete(ctx context.Context, projectKey, id string) error {
	res, err := r.items().DeleteOne(ctx, bson.M{"project_key": projectKey, "_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	if res.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteAll deletes every item of a project
func (r *ItemRepository) DeleteAll(ctx context.Context, projectKey string) (int, error) {
	res, err := r.items().DeleteMany(ctx, bson.M{"project_key": projectKey})
	if err != nil {
		return 0, fmt.Errorf("failed to delete items: %w", err)
	}
	return int(res.DeletedCount), nil
}

// List returns items ordered by number then id, after the keyset cursor
func (r *ItemRepository) List(ctx context.Context, projectKey string, opts item.ListOptions) ([]item.Item, error) {
	filter := bson.M{"project_key": projectKey}
	if opts.AfterNumber > 0 || opts.AfterID != "" {
		filter["$or"] = bson.A{
			bson.M{"number": bson.M{"$gt": opts.AfterNumber}},
			bson.M{"number": opts.AfterNumber, "_id": bson.M{"$gt": opts.AfterID}},
		}
	}
	findOpts := options.Find().SetSort(bson.D{{Key: "number", Value: 1}, {Key: "_id", Value: 1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}

	cur, err := r.items().Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	var docs []itemDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode items: %w", err)
	}

	items := make([]item.Item, 0, len(docs))
	for _, doc := range docs {
		items = append(items, doc.item())
	}
	return items, nil
}

// HighestNumber returns the largest number in a project, or 0 when empty
func (r *ItemRepository) HighestNumber(ctx context.Context, projectKey string) (int, error) {
	var doc itemDoc
	err := r.items().FindOne(ctx, bson.M{"project_key": projectKey},
		options.FindOne().SetSort(bson.D{{Key: "number", Value: -1}}),
	).Decode(&doc)
	if notFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read highest number: %w", err)
	}
	return doc.Number, nil
}

// Park adds offset to every number in [from, offset) in one update
func (r *ItemRepository) Park(ctx context.Context, projectKey string, from, offset int) (int64, error) {
	res, err := r.items().UpdateMany(ctx,
		bson.M{"project_key": projectKey, "number": bson.M{"$gte": from, "$lt": offset}},
		bson.M{"$inc": bson.M{"number": offset}},
	)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return 0, fmt.Errorf("failed to park items: %w", repository.ErrConflict)
		}
		return 0, fmt.Errorf("failed to park items: %w", err)
	}
	return res.ModifiedCount, nil
}

// Settle moves every parked number n to n-offset+1 in one update
func (r *ItemRepository) Settle(ctx context.Context, projectKey string, offset int) (int64, error) {
	res, err := r.items().UpdateMany(ctx,
		bson.M{"project_key": projectKey, "number": bson.M{"$gte": offset}},
		bson.M{"$inc": bson.M{"number": 1 - offset}},
	)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return 0, fmt.Errorf("failed to settle items: %w", repository.ErrConflict)
		}
		return 0, fmt.Errorf("failed to settle items: %w", err)
	}
	return res.ModifiedCount, nil
}

// CountParked counts numbers at or above offset
func (r *ItemRepository) CountParked(ctx context.Context, projectKey string, offset int) (int, error) {
	n, err := r.items().CountDocuments(ctx, bson.M{"project_key": projectKey, "number": bson.M{"$gte": offset}})
	if err != nil {
		return 0, fmt.Errorf("failed to count parked items: %w", err)
	}
	return int(n), nil
}

// RelaxUniqueness drops the number index until restore runs
func (r *ItemRepository) RelaxUniqueness(ctx context.Context) (func(context.Context) error, error) {
	return r.db.relaxNumberIndex(ctx)
}

// InsertBatch inserts all items or none. Standalone servers have no
// multi-document transactions, so a failed insert removes what it added.
func (r *ItemRepository) InsertBatch(ctx context.Context, items []item.Item) error {
	if len(items) == 0 {
		return nil
	}
	if err := r.requireProject(ctx, items[0].ProjectKey); err != nil {
		return err
	}

	docs := make([]itemDoc, len(items))
	ids := make(bson.A, len(items))
	for i := range items {
		docs[i] = toItemDoc(&items[i])
		ids[i] = items[i].ID
	}

	_, err := r.items().InsertMany(ctx, docs, options.InsertMany().SetOrdered(true))
	if err == nil {
		return nil
	}
	if _, cerr := r.items().DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}}); cerr != nil {
		return fmt.Errorf("failed to insert items: %w (cleanup failed: %v)", err, cerr)
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("failed to insert items: %w", repository.ErrConflict)
	}
	return fmt.Errorf("failed to insert items: %w", err)
}
