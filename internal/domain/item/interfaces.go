package item

import (
	"context"

	"github.com/rpggio/dsheet/internal/domain/activity"
	"github.com/rpggio/dsheet/internal/domain/project"
)

// Repository provides persistence for items. Number writes are checked
// against the (project, number) uniqueness constraint unless relaxed.
type Repository interface {
	Create(ctx context.Context, it *Item) error
	Get(ctx context.Context, projectKey, id string) (*Item, error)
	Update(ctx context.Context, it *Item) error
	Delete(ctx context.Context, projectKey, id string) error
	DeleteAll(ctx context.Context, projectKey string) (int, error)
	// List returns items ordered by number then id.
	List(ctx context.Context, projectKey string, opts ListOptions) ([]Item, error)
	FindByNumber(ctx context.Context, projectKey string, number int) (*Item, error)
	HighestNumber(ctx context.Context, projectKey string) (int, error)
	SetNumber(ctx context.Context, projectKey, id string, number int) error
	// Park adds offset to every number in [from, offset).
	Park(ctx context.Context, projectKey string, from, offset int) (int64, error)
	// Settle moves every number >= offset to number-offset+1.
	Settle(ctx context.Context, projectKey string, offset int) (int64, error)
	CountParked(ctx context.Context, projectKey string, offset int) (int, error)
	// RelaxUniqueness suspends the number constraint until restore is called.
	RelaxUniqueness(ctx context.Context) (restore func(context.Context) error, err error)
	// InsertBatch inserts every item or none.
	InsertBatch(ctx context.Context, items []Item) error
}

// ProjectRepository resolves the project owning a registry.
type ProjectRepository interface {
	Get(ctx context.Context, key string) (*project.Project, error)
	Delete(ctx context.Context, key string) error
}

// AttachmentStore persists item images.
type AttachmentStore interface {
	Store(ctx context.Context, scope string, data []byte, originalName string) (string, error)
	Normalize(ctx context.Context, ref string) (bool, error)
	Release(ctx context.Context, ref string) error
	List(ctx context.Context, scope string) ([]string, error)
}

// ActivityRepository logs registry activity.
type ActivityRepository interface {
	Log(ctx context.Context, entry *activity.Entry) error
}
