package item

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rpggio/dsheet/internal/domain/activity"
	"github.com/rpggio/dsheet/internal/repository"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// shift moves every item numbered from or above up by one, in two bulk
// passes: park the tail at number+ParkOffset, then settle it at number+1.
// Neither pass can collide with a resting number. The caller holds the
// project lock.
func (s *Service) shift(ctx context.Context, projectKey string, from int) (err error) {
	ctx, span := tracer.Start(ctx, "item.shift", trace.WithAttributes(
		attribute.String("project", projectKey),
		attribute.Int("from", from),
	))
	defer func() { endSpan(span, err) }()
	start := time.Now()

	restore, err := s.items.RelaxUniqueness(ctx)
	if err != nil {
		return storageError("relaxing number constraint", err)
	}
	defer func() {
		if rerr := s.restoreUniqueness(ctx, restore); rerr != nil {
			err = errors.Join(err, rerr)
		}
	}()

	if err := s.settleLeftovers(ctx, projectKey); err != nil {
		return err
	}

	highest, err := s.items.HighestNumber(ctx, projectKey)
	if err != nil {
		return storageError("reading highest number", err)
	}
	if highest >= MaxNumber {
		return fmt.Errorf("%w: shifting would move item %d past %d", ErrInvalidNumber, highest, MaxNumber)
	}

	var parked int64
	if err := s.retry(ctx, "park", func() error {
		n, err := s.items.Park(ctx, projectKey, from, ParkOffset)
		parked += n
		return err
	}); err != nil {
		return fmt.Errorf("parking items from %d: %w: %w", from, ErrRegistryCorruption, err)
	}

	var settled int64
	if err := s.retry(ctx, "settle", func() error {
		n, err := s.items.Settle(ctx, projectKey, ParkOffset)
		settled += n
		return err
	}); err != nil {
		return fmt.Errorf("settling items from %d: %w: %w", from, ErrRegistryCorruption, err)
	}

	shiftedItems.Observe(float64(settled))
	shiftDuration.Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.Int64("moved", settled))
	s.logger.Debug("items shifted", "project", projectKey, "from", from, "parked", parked, "settled", settled)
	s.logActivity(ctx, projectKey, nil, activity.TypeItemsShifted,
		fmt.Sprintf("moved %d items up from %d", settled, from))
	return nil
}

// settleLeftovers finishes a shift that was parked but never settled. On
// SQLite Park is a single statement, so parked rows are always a complete
// tail. A MongoDB UpdateMany can stop partway; settling such a partial tail
// may leave duplicates, which the index rebuild then reports as corruption
// for renumber to repair.
func (s *Service) settleLeftovers(ctx context.Context, projectKey string) error {
	parked, err := s.items.CountParked(ctx, projectKey, ParkOffset)
	if err != nil {
		return storageError("counting parked items", err)
	}
	if parked == 0 {
		return nil
	}
	s.logger.Warn("settling unfinished shift", "project", projectKey, "parked", parked)
	if err := s.retry(ctx, "settle", func() error {
		_, err := s.items.Settle(ctx, projectKey, ParkOffset)
		return err
	}); err != nil {
		return fmt.Errorf("settling leftover items: %w: %w", ErrRegistryCorruption, err)
	}
	s.logActivity(ctx, projectKey, nil, activity.TypeShiftRepaired,
		fmt.Sprintf("settled %d items left parked", parked))
	return nil
}

func (s *Service) restoreUniqueness(ctx context.Context, restore func(context.Context) error) error {
	err := s.retry(ctx, "restore", func() error { return restore(ctx) })
	if err == nil {
		return nil
	}
	s.logger.Error("number constraint not restored", "error", err)
	if errors.Is(err, repository.ErrConflict) {
		return fmt.Errorf("restoring number constraint: %w: %w", ErrRegistryCorruption, err)
	}
	return storageError("restoring number constraint", err)
}

// retry runs fn with exponential backoff. Constraint violations are not
// transient and stop immediately.
func (s *Service) retry(ctx context.Context, op string, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.retryInitial

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := fn()
		if errors.Is(err, repository.ErrConflict) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(s.retryTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.logger.Warn("retrying registry write", "op", op, "error", err, "next", next)
		}),
	)
	return err
}
