package service

import (
	"context"
	"math"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/dukerupert/dbcart/internal/domain"
	"github.com/dukerupert/dbcart/internal/events"
	"github.com/dukerupert/dbcart/internal/repository"
)

// Transfer moves the lines of source whose product is not already in
// destination. Lines for products destination already holds stay on source
// with their totals. Both carts must be active. The move and both totals
// adjustments commit together.
func (s *cartService) Transfer(ctx context.Context, source, destination *domain.Cart) error {
	const op = "cart.transfer"

	if source == destination || (source.Persisted() && source.ID == destination.ID) {
		return domain.WithOp(domain.ErrSameCart, op)
	}
	if !source.IsActive() || !destination.IsActive() {
		return domain.WithOp(domain.ErrCartNotActive, op)
	}
	if !source.Persisted() {
		return nil
	}
	if err := s.Save(ctx, destination); err != nil {
		return err
	}

	err := s.inTx(ctx, func(u *unitOfWork) error {
		if err := s.requireActive(ctx, u, source); err != nil {
			return err
		}
		if err := s.requireActive(ctx, u, destination); err != nil {
			return err
		}
		return s.transfer(ctx, u, source, destination)
	})
	if err != nil {
		return storageError(err, op, "failed to transfer cart items")
	}
	return nil
}

func (s *cartService) transfer(ctx context.Context, u *unitOfWork, source, destination *domain.Cart) error {
	rows, err := u.q.GetMovableCartLines(ctx, repository.GetMovableCartLinesParams{
		SourceID:      pgUUID(source.ID),
		DestinationID: pgUUID(destination.ID),
	})
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	ids := make([]pgtype.UUID, 0, len(rows))
	price := decimal.Zero
	var count int64
	for _, row := range rows {
		line := lineFromRow(row)
		ids = append(ids, row.ID)
		price = price.Add(line.Price())
		count += int64(line.Quantity)
	}
	if count > math.MaxInt32 {
		return domain.ErrInvalidQuantity
	}

	moved, err := u.q.MoveCartLines(ctx, repository.MoveCartLinesParams{
		IDs:    ids,
		CartID: pgUUID(destination.ID),
	})
	if repository.IsUniqueViolation(err) {
		// A line for the same product reached destination after the select.
		return domain.ErrCartConflict
	}
	if err != nil {
		return err
	}
	if moved != int64(len(ids)) {
		return domain.ErrCartConflict
	}

	if err := adjustTotals(ctx, u, source, price.Neg(), -count); err != nil {
		return err
	}
	if err := adjustTotals(ctx, u, destination, price, count); err != nil {
		return err
	}

	u.emit(events.CartMergedEvent{
		SourceID:      source.ID,
		DestinationID: destination.ID,
		MovedLines:    len(ids),
		Timestamp:     s.now(),
	})
	s.logger.Debug("moving cart lines",
		"source_id", source.ID,
		"destination_id", destination.ID,
		"lines", len(ids),
	)
	return nil
}
