package project

import "context"

// Repository provides persistence for projects.
type Repository interface {
	Create(ctx context.Context, proj *Project) error
	Get(ctx context.Context, key string) (*Project, error)
	List(ctx context.Context) ([]Summary, error)
	// Delete removes the project row. Items must already be gone.
	Delete(ctx context.Context, key string) error
}
