package item

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/rpggio/dsheet/internal/domain/activity"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Renumber rewrites a project's numbers to the contiguous run 1..N keeping
// their relative order. Changed is false when the run was already 1..N.
//
// Rows left parked by an interrupted shift, or duplicated numbers, are
// repaired here: parked rows sort where they would have settled and ties
// break on id.
func (s *Service) Renumber(ctx context.Context, projectKey string) (_ *RenumberResult, err error) {
	ctx, span := tracer.Start(ctx, "item.Renumber", trace.WithAttributes(
		attribute.String("project", projectKey),
	))
	defer func() {
		observe("renumber", err)
		endSpan(span, err)
	}()

	if err := s.ensureProject(ctx, projectKey); err != nil {
		return nil, err
	}
	unlock := s.locks.lock(projectKey)
	defer unlock()
	ctx = context.WithoutCancel(ctx)

	items, err := s.items.List(ctx, projectKey, ListOptions{})
	if err != nil {
		return nil, storageError("listing items", err)
	}

	res := &RenumberResult{Count: len(items)}
	if len(items) == 0 {
		return res, nil
	}
	res.Before = Range{Min: items[0].Number, Max: items[len(items)-1].Number}
	res.After = Range{Min: 1, Max: len(items)}

	if contiguous(items) {
		return res, nil
	}
	res.Changed = true

	if ordered(items) {
		// Every target is at or below the current number, so walking
		// upward never lands on a number still in use.
		for i, it := range items {
			if it.Number == i+1 {
				continue
			}
			if err := s.items.SetNumber(ctx, projectKey, it.ID, i+1); err != nil {
				return nil, s.writeError("renumbering item", err)
			}
		}
	} else if err := s.repairNumbers(ctx, projectKey, items); err != nil {
		return nil, err
	}

	s.logger.Info("items renumbered", "project", projectKey,
		"count", len(items), "before_min", res.Before.Min, "before_max", res.Before.Max)
	s.logActivity(ctx, projectKey, nil, activity.TypeItemsRenumbered,
		fmt.Sprintf("renumbered %d items from %d..%d", len(items), res.Before.Min, res.Before.Max))
	return res, nil
}

// repairNumbers renumbers a set holding duplicates or parked rows. It parks
// everything first so the final writes land on free numbers.
func (s *Service) repairNumbers(ctx context.Context, projectKey string, items []Item) (err error) {
	s.logger.Warn("renumbering inconsistent registry", "project", projectKey, "count", len(items))

	effective := func(it Item) int {
		if it.Number >= ParkOffset {
			return it.Number - ParkOffset + 1
		}
		return it.Number
	}
	sorted := slices.Clone(items)
	slices.SortStableFunc(sorted, func(a, b Item) int {
		return cmp.Or(cmp.Compare(effective(a), effective(b)), cmp.Compare(a.ID, b.ID))
	})

	restore, err := s.items.RelaxUniqueness(ctx)
	if err != nil {
		return storageError("relaxing number constraint", err)
	}
	defer func() {
		if rerr := s.restoreUniqueness(ctx, restore); rerr != nil {
			err = errors.Join(err, rerr)
		}
	}()

	// Park the resting rows; rows already parked stay where they are.
	if err := s.retry(ctx, "park", func() error {
		_, err := s.items.Park(ctx, projectKey, 1, ParkOffset)
		return err
	}); err != nil {
		return fmt.Errorf("parking items: %w: %w", ErrRegistryCorruption, err)
	}
	for i, it := range sorted {
		if err := s.items.SetNumber(ctx, projectKey, it.ID, i+1); err != nil {
			return fmt.Errorf("renumbering item %s: %w: %w", it.ID, ErrRegistryCorruption, err)
		}
	}
	return nil
}

func contiguous(items []Item) bool {
	for i, it := range items {
		if it.Number != i+1 {
			return false
		}
	}
	return true
}

func ordered(items []Item) bool {
	prev := 0
	for _, it := range items {
		if it.Number <= prev || it.Number >= ParkOffset {
			return false
		}
		prev = it.Number
	}
	return true
}
