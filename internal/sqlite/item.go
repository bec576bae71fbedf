package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rpggio/dsheet/internal/domain/item"
	"github.com/rpggio/dsheet/internal/repository"
)

// ItemRepository implements item.Repository for SQLite
type ItemRepository struct {
	db *DB
}

// NewItemRepository creates a new ItemRepository
func NewItemRepository(db *DB) *ItemRepository {
	return &ItemRepository{db: db}
}

const itemColumns = `id, project_key, number, title, content, detail, created_at, modified_at`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Create inserts a new item and its images
func (r *ItemRepository) Create(ctx context.Context, it *item.Item) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertItem(ctx, tx, it); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func insertItem(ctx context.Context, tx execer, it *item.Item) error {
	query := `
		INSERT INTO items (` + itemColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := tx.ExecContext(ctx, query,
		it.ID,
		it.ProjectKey,
		it.Number,
		it.Title,
		it.Content,
		it.Detail,
		it.CreatedAt,
		it.ModifiedAt,
	)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return fmt.Errorf("failed to create item %d: %w", it.Number, repository.ErrConflict)
		case isForeignKeyViolation(err):
			return repository.ErrForeignKeyViolation
		}
		return fmt.Errorf("failed to create item: %w", err)
	}
	return writeImages(ctx, tx, it.ID, it.Images)
}

func writeImages(ctx context.Context, tx execer, itemID string, refs []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM item_images WHERE item_id = ?`, itemID); err != nil {
		return fmt.Errorf("failed to clear images: %w", err)
	}
	for i, ref := range refs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO item_images (item_id, position, ref) VALUES (?, ?, ?)`,
			itemID, i, ref,
		); err != nil {
			return fmt.Errorf("failed to add image: %w", err)
		}
	}
	return nil
}

// Get retrieves an item by project and ID
func (r *ItemRepository) Get(ctx context.Context, projectKey, id string) (*item.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE project_key = ? AND id = ?`
	return r.getOne(ctx, query, projectKey, id)
}

// FindByNumber retrieves the item holding number
func (r *ItemRepository) FindByNumber(ctx context.Context, projectKey string, number int) (*item.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE project_key = ? AND number = ? ORDER BY id LIMIT 1`
	return r.getOne(ctx, query, projectKey, number)
}

func (r *ItemRepository) getOne(ctx context.Context, query string, args ...any) (*item.Item, error) {
	var it item.Item
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&it.ID,
		&it.ProjectKey,
		&it.Number,
		&it.Title,
		&it.Content,
		&it.Detail,
		&it.CreatedAt,
		&it.ModifiedAt,
	)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}

	images, err := r.images(ctx, []string{it.ID})
	if err != nil {
		return nil, err
	}
	it.Images = images[it.ID]
	if it.Images == nil {
		it.Images = []string{}
	}
	return &it, nil
}

// Update writes an item's number, text and images
func (r *ItemRepository) Update(ctx context.Context, it *item.Item) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE items
		SET number = ?, title = ?, content = ?, detail = ?, modified_at = ?
		WHERE project_key = ? AND id = ?
	`
	result, err := tx.ExecContext(ctx, query,
		it.Number,
		it.Title,
		it.Content,
		it.Detail,
		it.ModifiedAt,
		it.ProjectKey,
		it.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("failed to update item %d: %w", it.Number, repository.ErrConflict)
		}
		return fmt.Errorf("failed to update item: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}

	if err := writeImages(ctx, tx, it.ID, it.Images); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SetNumber moves one item to number
func (r *ItemRepository) SetNumber(ctx context.Context, projectKey, id string, number int) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE items SET number = ? WHERE project_key = ? AND id = ?`,
		number, projectKey, id,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("failed to set number %d: %w", number, repository.ErrConflict)
		}
		return fmt.Errorf("failed to set number: %w", err)
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

// Delete deletes an item; its image rows cascade
func (r *ItemRepository) Delete(ctx context.Context, projectKey, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM items WHERE project_key = ? AND id = ?`, projectKey, id)
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
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

// DeleteAll deletes every item of a project
func (r *ItemRepository) DeleteAll(ctx context.Context, projectKey string) (int, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM items WHERE project_key = ?`, projectKey)
	if err != nil {
		return 0, fmt.Errorf("failed to delete items: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(rowsAffected), nil
}

// List returns items ordered by number then id, after the keyset cursor
func (r *ItemRepository) List(ctx context.Context, projectKey string, opts item.ListOptions) ([]item.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE project_key = ?`
	args := []any{projectKey}

	if opts.AfterNumber > 0 || opts.AfterID != "" {
		query += ` AND (number > ? OR (number = ? AND id > ?))`
		args = append(args, opts.AfterNumber, opts.AfterNumber, opts.AfterID)
	}
	query += ` ORDER BY number, id`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	items := []item.Item{}
	for rows.Next() {
		var it item.Item
		if err := rows.Scan(
			&it.ID,
			&it.ProjectKey,
			&it.Number,
			&it.Title,
			&it.Content,
			&it.Detail,
			&it.CreatedAt,
			&it.ModifiedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating item rows: %w", err)
	}
	rows.Close()

	if len(items) == 0 {
		return items, nil
	}
	ids := make([]string, len(items))
	for i := range items {
		ids[i] = items[i].ID
	}
	images, err := r.images(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].Images = images[items[i].ID]
		if items[i].Images == nil {
			items[i].Images = []string{}
		}
	}
	return items, nil
}

const imageBatch = 500

func (r *ItemRepository) images(ctx context.Context, ids []string) (map[string][]string, error) {
	out := make(map[string][]string, len(ids))
	for start := 0; start < len(ids); start += imageBatch {
		chunk := ids[start:min(start+imageBatch, len(ids))]
		if err := r.loadImages(ctx, chunk, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *ItemRepository) loadImages(ctx context.Context, ids []string, out map[string][]string) error {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT item_id, ref FROM item_images WHERE item_id IN (`+placeholders+`) ORDER BY item_id, position`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("failed to load images: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, ref string
		if err := rows.Scan(&id, &ref); err != nil {
			return fmt.Errorf("failed to scan image: %w", err)
		}
		out[id] = append(out[id], ref)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating image rows: %w", err)
	}
	return nil
}

// HighestNumber returns the largest number in a project, or 0 when empty
func (r *ItemRepository) HighestNumber(ctx context.Context, projectKey string) (int, error) {
	var highest int
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(number), 0) FROM items WHERE project_key = ?`, projectKey,
	).Scan(&highest)
	if err != nil {
		return 0, fmt.Errorf("failed to read highest number: %w", err)
	}
	return highest, nil
}

// Park adds offset to every number in [from, offset) in one statement
func (r *ItemRepository) Park(ctx context.Context, projectKey string, from, offset int) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE items SET number = number + ? WHERE project_key = ? AND number >= ? AND number < ?`,
		offset, projectKey, from, offset,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("failed to park items: %w", repository.ErrConflict)
		}
		return 0, fmt.Errorf("failed to park items: %w", err)
	}
	return result.RowsAffected()
}

// Settle moves every parked number n to n-offset+1 in one statement
func (r *ItemRepository) Settle(ctx context.Context, projectKey string, offset int) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE items SET number = number - ? + 1 WHERE project_key = ? AND number >= ?`,
		offset, projectKey, offset,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("failed to settle items: %w", repository.ErrConflict)
		}
		return 0, fmt.Errorf("failed to settle items: %w", err)
	}
	return result.RowsAffected()
}

// CountParked counts numbers at or above offset
func (r *ItemRepository) CountParked(ctx context.Context, projectKey string, offset int) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM items WHERE project_key = ? AND number >= ?`, projectKey, offset,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count parked items: %w", err)
	}
	return n, nil
}

// RelaxUniqueness drops the number index until restore runs
func (r *ItemRepository) RelaxUniqueness(ctx context.Context) (func(context.Context) error, error) {
	return r.db.relaxNumberIndex(ctx)
}

// InsertBatch inserts all items in one transaction
func (r *ItemRepository) InsertBatch(ctx context.Context, items []item.Item) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i := range items {
		if err := insertItem(ctx, tx, &items[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
