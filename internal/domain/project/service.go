package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/rpggio/dsheet/internal/repository"
)

// keyPattern restricts keys to what every store accepts as a namespace.
var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Service handles project operations.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService creates a new project service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// CreateRequest defines project creation inputs.
type CreateRequest struct {
	Key  string
	Name string
}

// ValidKey reports whether key can name a project.
func ValidKey(key string) bool {
	return len(key) <= 64 && keyPattern.MatchString(key)
}

// Create creates a new project.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Project, error) {
	if !ValidKey(req.Key) {
		return nil, fmt.Errorf("%w: key must match %s", ErrInvalidInput, keyPattern)
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = req.Key
	}

	proj := &Project{
		Key:       req.Key,
		Name:      name,
		CreatedAt: time.Now(),
	}

	if err := s.repo.Create(ctx, proj); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrProjectExists
		}
		return nil, fmt.Errorf("creating project: %w", err)
	}

	return proj, nil
}

// Get fetches a project by key.
func (s *Service) Get(ctx context.Context, key string) (*Project, error) {
	if !ValidKey(key) {
		return nil, ErrProjectNotFound
	}
	proj, err := s.repo.Get(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("getting project: %w", err)
	}
	return proj, nil
}

// List returns project summaries.
func (s *Service) List(ctx context.Context) ([]Summary, error) {
	return s.repo.List(ctx)
}
