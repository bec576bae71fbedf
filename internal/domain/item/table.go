package item

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rpggio/dsheet/internal/domain/activity"
	"github.com/rpggio/dsheet/internal/repository"
	"github.com/rpggio/dsheet/internal/tablecodec"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Export writes a project's items as a table in ascending number order and
// returns how many rows were written.
func (s *Service) Export(ctx context.Context, projectKey string, w io.Writer) (n int, err error) {
	ctx, span := tracer.Start(ctx, "item.Export", trace.WithAttributes(
		attribute.String("project", projectKey),
	))
	defer func() {
		observe("export", err)
		endSpan(span, err)
	}()

	enc := tablecodec.NewEncoder(w)
	for it, err := range s.Items(ctx, projectKey) {
		if err != nil {
			return n, err
		}
		if err := enc.Write(tablecodec.Row{
			Number:  it.Number,
			Title:   it.Title,
			Content: it.Content,
			Detail:  it.Detail,
		}); err != nil {
			return n, fmt.Errorf("writing row: %w", err)
		}
		n++
	}
	if err := enc.Flush(); err != nil {
		return n, fmt.Errorf("flushing table: %w", err)
	}
	return n, nil
}

// Import inserts every row of a table or none of them. Rows keep their own
// numbers; a number repeated in the table or already held in the project
// rejects the whole table with ErrDuplicateInBatch. Nothing is shifted.
func (s *Service) Import(ctx context.Context, projectKey string, r io.Reader) (n int, err error) {
	ctx, span := tracer.Start(ctx, "item.Import", trace.WithAttributes(
		attribute.String("project", projectKey),
	))
	defer func() {
		observe("import", err)
		endSpan(span, err)
	}()

	rows, err := tablecodec.Decode(r)
	if err != nil {
		return 0, decodeError(err)
	}

	seen := make(map[int]int, len(rows))
	for i := range rows {
		f := NormalizeNewlines(Fields{Title: rows[i].Title, Content: rows[i].Content, Detail: rows[i].Detail})
		rows[i].Title, rows[i].Content, rows[i].Detail = f.Title, f.Content, f.Detail
	}
	for _, row := range rows {
		if err := ValidateNumber(row.Number); err != nil {
			return 0, fmt.Errorf("line %d: %w", row.Line, err)
		}
		if err := ValidateFields(Fields{Title: row.Title, Content: row.Content, Detail: row.Detail}); err != nil {
			return 0, fmt.Errorf("line %d: %w", row.Line, err)
		}
		if first, ok := seen[row.Number]; ok {
			return 0, fmt.Errorf("%w: number %d on lines %d and %d",
				ErrDuplicateInBatch, row.Number, first, row.Line)
		}
		seen[row.Number] = row.Line
	}

	if err := s.ensureProject(ctx, projectKey); err != nil {
		return 0, err
	}
	unlock := s.locks.lock(projectKey)
	defer unlock()
	ctx = context.WithoutCancel(ctx)

	existing, err := s.items.List(ctx, projectKey, ListOptions{})
	if err != nil {
		return 0, storageError("listing items", err)
	}
	for _, it := range existing {
		if line, ok := seen[it.Number]; ok {
			return 0, fmt.Errorf("%w: number %d on line %d is already held by item %s",
				ErrDuplicateInBatch, it.Number, line, it.ID)
		}
	}

	now := time.Now()
	batch := make([]Item, 0, len(rows))
	for _, row := range rows {
		batch = append(batch, Item{
			ID:         uuid.NewString(),
			ProjectKey: projectKey,
			Number:     row.Number,
			Title:      row.Title,
			Content:    row.Content,
			Detail:     row.Detail,
			Images:     []string{},
			CreatedAt:  now,
			ModifiedAt: now,
		})
	}
	if len(batch) == 0 {
		return 0, nil
	}
	if err := s.items.InsertBatch(ctx, batch); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return 0, fmt.Errorf("%w: %w", ErrDuplicateInBatch, err)
		}
		return 0, storageError("inserting items", err)
	}

	s.logger.Info("items imported", "project", projectKey, "count", len(batch))
	s.logActivity(ctx, projectKey, nil, activity.TypeItemsImported,
		fmt.Sprintf("imported %d items", len(batch)))
	return len(batch), nil
}

func decodeError(err error) error {
	switch {
	case errors.Is(err, tablecodec.ErrInvalidNumber):
		return fmt.Errorf("%w: %w", ErrInvalidNumber, err)
	case errors.Is(err, tablecodec.ErrEmpty),
		errors.Is(err, tablecodec.ErrHeaderMismatch),
		errors.Is(err, tablecodec.ErrMalformedRow):
		return fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}
	return storageError("reading table", err)
}
