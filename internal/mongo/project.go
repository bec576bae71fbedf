package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/rpggio/dsheet/internal/domain/project"
	"github.com/rpggio/dsheet/internal/repository"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type projectDoc struct {
	Key       string    `bson:"_id"`
	Name      string    `bson:"name"`
	CreatedAt time.Time `bson:"created_at"`
}

// ProjectRepository implements project.Repository for MongoDB
type ProjectRepository struct {
	db *DB
}

// NewProjectRepository creates a new ProjectRepository
func NewProjectRepository(db *DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// Create inserts a new project
func (r *ProjectRepository) Create(ctx context.Context, proj *project.Project) error {
	_, err := r.db.coll(collProjects).InsertOne(ctx, projectDoc{
		Key:       proj.Key,
		Name:      proj.Name,
		CreatedAt: proj.CreatedAt.UTC(),
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

// Get retrieves a project by key
func (r *ProjectRepository) Get(ctx context.Context, key string) (*project.Project, error) {
	var doc projectDoc
	if err := r.db.coll(collProjects).FindOne(ctx, bson.M{"_id": key}).Decode(&doc); err != nil {
		if notFound(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &project.Project{Key: doc.Key, Name: doc.Name, CreatedAt: doc.CreatedAt}, nil
}

// List returns all projects with item counts
func (r *ProjectRepository) List(ctx context.Context) ([]project.Summary, error) {
	cur, err := r.db.coll(collProjects).Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	var docs []projectDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode projects: %w", err)
	}

	stats, err := r.itemStats(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make([]project.Summary, 0, len(docs))
	for _, doc := range docs {
		st := stats[doc.Key]
		summaries = append(summaries, project.Summary{
			Key:        doc.Key,
			Name:       doc.Name,
			ItemCount:  st.Count,
			HighestNum: st.Highest,
			CreatedAt:  doc.CreatedAt,
		})
	}
	return summaries, nil
}

type itemStat struct {
	Key     string `bson:"_id"`
	Count   int    `bson:"count"`
	Highest int    `bson:"highest"`
}

func (r *ProjectRepository) itemStats(ctx context.Context) (map[string]itemStat, error) {
	cur, err := r.db.coll(collItems).Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$project_key"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "highest", Value: bson.D{{Key: "$max", Value: "$number"}}},
		}}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate items: %w", err)
	}
	var rows []itemStat
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode item stats: %w", err)
	}
	out := make(map[string]itemStat, len(rows))
	for _, row := range rows {
		out[row.Key] = row
	}
	return out, nil
}

// Delete removes a project that no longer owns items
func (r *ProjectRepository) Delete(ctx context.Context, key string) error {
	n, err := r.db.coll(collItems).CountDocuments(ctx, bson.M{"project_key": key})
	if err != nil {
		return fmt.Errorf("failed to count project items: %w", err)
	}
	if n > 0 {
		return repository.ErrForeignKeyViolation
	}

	res, err := r.db.coll(collProjects).DeleteOne(ctx, bson.M{"_id": key})
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if res.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}
