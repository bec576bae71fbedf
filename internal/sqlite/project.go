package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rpggio/dsheet/internal/domain/project"
	"github.com/rpggio/dsheet/internal/repository"
)

// ProjectRepository implements project.Repository for SQLite
type ProjectRepository struct {
	db *DB
}

// NewProjectRepository creates a new ProjectRepository
func NewProjectRepository(db *DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// Create creates a new project
func (r *ProjectRepository) Create(ctx context.Context, proj *project.Project) error {
	query := `INSERT INTO projects (key, name, created_at) VALUES (?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query, proj.Key, proj.Name, proj.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("failed to create project: %w", err)
	}

	return nil
}

// Get retrieves a project by key
func (r *ProjectRepository) Get(ctx context.Context, key string) (*project.Project, error) {
	query := `SELECT key, name, created_at FROM projects WHERE key = ?`

	var proj project.Project
	err := r.db.QueryRowContext(ctx, query, key).Scan(&proj.Key, &proj.Name, &proj.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	return &proj, nil
}

// List returns all projects with item counts
func (r *ProjectRepository) List(ctx context.Context) ([]project.Summary, error) {
	query := `
		SELECT
			p.key,
			p.name,
			p.created_at,
			COUNT(i.id) AS item_count,
			COALESCE(MAX(i.number), 0) AS highest_number
		FROM projects p
		LEFT JOIN items i ON i.project_key = p.key
		GROUP BY p.key, p.name, p.created_at
		ORDER BY p.key
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	summaries := []project.Summary{}
	for rows.Next() {
		var summary project.Summary
		if err := rows.Scan(
			&summary.Key,
			&summary.Name,
			&summary.CreatedAt,
			&summary.ItemCount,
			&summary.HighestNum,
		); err != nil {
			return nil, fmt.Errorf("failed to scan project summary: %w", err)
		}
		summaries = append(summaries, summary)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating project rows: %w", err)
	}

	return summaries, nil
}

// Delete removes a project that no longer owns items
func (r *ProjectRepository) Delete(ctx context.Context, key string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE key = ?`, key)
	if err != nil {
		if isForeignKeyViolation(err) {
			return repository.ErrForeignKeyViolation
		}
		return fmt.Errorf("failed to delete project: %w", err)
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
