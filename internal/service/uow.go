package service

import (
	"context"
	"errors"

	"github.com/dukerupert/dbcart/internal/domain"
	"github.com/dukerupert/dbcart/internal/events"
	"github.com/dukerupert/dbcart/internal/repository"
)

// unitOfWork collects the side effects of one transaction. In-memory cart
// refreshes and events are held back until the transaction commits, so a
// rolled-back operation leaves callers' carts exactly as they were.
type unitOfWork struct {
	q repository.Querier

	carts  []*domain.Cart
	rows   map[*domain.Cart]repository.Cart
	events []events.Event
}

func newUnitOfWork(q repository.Querier) *unitOfWork {
	return &unitOfWork{q: q, rows: make(map[*domain.Cart]repository.Cart)}
}

// refresh schedules cart to be overwritten with row after commit.
// The latest row for a cart wins.
func (u *unitOfWork) refresh(cart *domain.Cart, row repository.Cart) {
	if _, seen := u.rows[cart]; !seen {
		u.carts = append(u.carts, cart)
	}
	u.rows[cart] = row
}

func (u *unitOfWork) emit(ev events.Event) {
	u.events = append(u.events, ev)
}

// inTx runs fn in a transaction and applies its side effects once it commits.
func (s *cartService) inTx(ctx context.Context, fn func(u *unitOfWork) error) error {
	var u *unitOfWork
	err := s.tx.InTx(ctx, func(q repository.Querier) error {
		u = newUnitOfWork(q)
		return fn(u)
	})
	if err != nil {
		return err
	}
	s.apply(ctx, u)
	return nil
}

func (s *cartService) apply(ctx context.Context, u *unitOfWork) {
	for _, cart := range u.carts {
		cart.CopyRow(cartFromRow(u.rows[cart]))
	}
	for _, ev := range u.events {
		s.metrics.RecordEvent(ev)
		if err := s.publisher.Publish(ctx, ev); err != nil {
			s.logger.Warn("failed to publish cart event",
				"event", ev.EventType(),
				"error", err,
			)
		}
	}
}

// withRetry reruns fn while it fails with ErrCartConflict.
func withRetry(fn func() error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if err = fn(); !errors.Is(err, domain.ErrCartConflict) {
			return err
		}
	}
	return err
}

// storageError tags domain errors with op and wraps anything else as internal.
func storageError(err error, op, message string) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return domain.WithOp(err, op)
	}
	return domain.Internal(err, op, message)
}
