// Package store opens the configured database and its repositories.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rpggio/dsheet/internal/config"
	"github.com/rpggio/dsheet/internal/domain/access"
	"github.com/rpggio/dsheet/internal/domain/activity"
	"github.com/rpggio/dsheet/internal/domain/item"
	"github.com/rpggio/dsheet/internal/domain/project"
	"github.com/rpggio/dsheet/internal/mongo"
	"github.com/rpggio/dsheet/internal/sqlite"
)

// Repositories is one backend's set of repositories.
type Repositories struct {
	Projects project.Repository
	Items    item.Repository
	Activity activity.Repository
	Access   access.Repository

	close func(context.Context) error
}

// Close releases the underlying connection.
func (r *Repositories) Close(ctx context.Context) error {
	if r.close == nil {
		return nil
	}
	return r.close(ctx)
}

// Open connects to the driver named in cfg.
func Open(ctx context.Context, cfg config.DBConfig) (*Repositories, error) {
	switch cfg.Driver {
	case config.DriverSQLite, "":
		return openSQLite(cfg.Path)
	case config.DriverMongo:
		return openMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func openSQLite(path string) (*Repositories, error) {
	if err := ensureDBDir(path); err != nil {
		return nil, fmt.Errorf("failed to prepare database path: %w", err)
	}
	db, err := sqlite.New(path)
	if err != nil {
		return nil, err
	}
	if err := db.RunMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repositories{
		Projects: sqlite.NewProjectRepository(db),
		Items:    sqlite.NewItemRepository(db),
		Activity: sqlite.NewActivityRepository(db),
		Access:   sqlite.NewAccessRepository(db),
		close:    func(context.Context) error { return db.Close() },
	}, nil
}

func openMongo(ctx context.Context, uri, database string) (*Repositories, error) {
	db, err := mongo.Open(ctx, uri, database)
	if err != nil {
		return nil, err
	}
	return &Repositories{
		Projects: mongo.NewProjectRepository(db),
		Items:    mongo.NewItemRepository(db),
		Activity: mongo.NewActivityRepository(db),
		Access:   mongo.NewAccessRepository(db),
		close:    db.Close,
	}, nil
}

func ensureDBDir(path string) error {
	if path == ":memory:" || path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
