package service

import (
	"context"
	"math"

	"github.com/dukerupert/dbcart/internal/domain"
	"github.com/dukerupert/dbcart/internal/events"
	"github.com/dukerupert/dbcart/internal/repository"
)

// AddItem adds a product to the cart. A product already in the cart has its
// quantity increased and keeps its unit price.
func (s *cartService) AddItem(ctx context.Context, cart *domain.Cart, params domain.AddItemParams) (*domain.CartLine, error) {
	const op = "cart.add_item"

	if params.ProductID == "" {
		return nil, domain.NewValidationError(op, "product_id", "is required")
	}
	if params.Quantity <= 0 {
		return nil, domain.WithOp(domain.ErrInvalidQuantity, op)
	}
	if params.UnitPrice.IsNegative() {
		return nil, domain.WithOp(domain.ErrInvalidPrice, op)
	}
	if err := s.checkProduct(ctx, params.ProductID, op); err != nil {
		return nil, err
	}
	if err := s.Save(ctx, cart); err != nil {
		return nil, err
	}

	var line domain.CartLine
	err := withRetry(func() error {
		return s.inTx(ctx, func(u *unitOfWork) error {
			if err := s.requireActive(ctx, u, cart); err != nil {
				return err
			}
			store := s.lineStore(u, cart)

			existing, err := findLine(ctx, u, cart, domain.MatchProduct(params.ProductID))
			switch {
			case err == nil:
				if existing.Quantity > math.MaxInt32-params.Quantity {
					return domain.ErrInvalidQuantity
				}
				line, err = store.update(ctx, existing, existing.Quantity+params.Quantity, existing.UnitPrice)
				if err != nil {
					return err
				}
				u.emit(events.LineUpdatedEvent{
					CartID:      cart.ID,
					ProductID:   line.ProductID,
					OldQuantity: existing.Quantity,
					Quantity:    line.Quantity,
					UnitPrice:   line.UnitPrice,
					Timestamp:   s.now(),
				})
			case domain.IsCode(err, domain.ENOTFOUND):
				line, err = store.create(ctx, params.ProductID, params.Quantity, params.UnitPrice)
				if err != nil {
					return err
				}
				u.emit(events.LineAddedEvent{
					CartID:    cart.ID,
					ProductID: line.ProductID,
					Quantity:  line.Quantity,
					UnitPrice: line.UnitPrice,
					Timestamp: s.now(),
				})
			default:
				return err
			}
			return nil
		})
	})
	if err != nil {
		return nil, storageError(err, op, "failed to add cart item")
	}

	s.logger.Debug("cart item added",
		"cart_id", cart.ID,
		"product_id", line.ProductID,
		"quantity", line.Quantity,
	)
	return &line, nil
}

// UpdateItem changes the quantity and/or unit price of the matched line.
// A quantity of zero removes the line and returns nil.
func (s *cartService) UpdateItem(ctx context.Context, cart *domain.Cart, match domain.LineMatch, changes domain.LineChanges) (*domain.CartLine, error) {
	const op = "cart.update_item"

	if match.Empty() {
		return nil, domain.WithOp(domain.ErrEmptyMatch, op)
	}
	if changes.Quantity != nil && *changes.Quantity < 0 {
		return nil, domain.WithOp(domain.ErrInvalidQuantity, op)
	}
	if changes.UnitPrice != nil && changes.UnitPrice.IsNegative() {
		return nil, domain.WithOp(domain.ErrInvalidPrice, op)
	}
	if !cart.Persisted() {
		return nil, domain.WithOp(domain.ErrCartItemNotFound, op)
	}

	var updated *domain.CartLine
	err := s.inTx(ctx, func(u *unitOfWork) error {
		if err := s.requireActive(ctx, u, cart); err != nil {
			return err
		}
		store := s.lineStore(u, cart)

		before, err := findLine(ctx, u, cart, match)
		if err != nil {
			return err
		}

		quantity, unitPrice := before.Quantity, before.UnitPrice
		if changes.Quantity != nil {
			quantity = *changes.Quantity
		}
		if changes.UnitPrice != nil {
			unitPrice = *changes.UnitPrice
		}

		if quantity == 0 {
			if err := store.delete(ctx, before); err != nil {
				return err
			}
			u.emit(events.LineRemovedEvent{
				CartID:    cart.ID,
				ProductID: before.ProductID,
				Quantity:  before.Quantity,
				Timestamp: s.now(),
			})
			return nil
		}

		after, err := store.update(ctx, before, quantity, unitPrice)
		if err != nil {
			return err
		}
		updated = &after
		u.emit(events.LineUpdatedEvent{
			CartID:      cart.ID,
			ProductID:   after.ProductID,
			OldQuantity: before.Quantity,
			Quantity:    after.Quantity,
			UnitPrice:   after.UnitPrice,
			Timestamp:   s.now(),
		})
		return nil
	})
	if err != nil {
		return nil, storageError(err, op, "failed to update cart item")
	}
	return updated, nil
}

// RemoveItem deletes the matched line. A match that selects nothing
// returns ErrCartItemNotFound.
func (s *cartService) RemoveItem(ctx context.Context, cart *domain.Cart, match domain.LineMatch) error {
	const op = "cart.remove_item"

	if match.Empty() {
		return domain.WithOp(domain.ErrEmptyMatch, op)
	}
	if !cart.Persisted() {
		return domain.WithOp(domain.ErrCartItemNotFound, op)
	}

	err := s.inTx(ctx, func(u *unitOfWork) error {
		if err := s.requireActive(ctx, u, cart); err != nil {
			return err
		}
		line, err := findLine(ctx, u, cart, match)
		if err != nil {
			return err
		}
		if err := s.lineStore(u, cart).delete(ctx, line); err != nil {
			return err
		}
		u.emit(events.LineRemovedEvent{
			CartID:    cart.ID,
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			Timestamp: s.now(),
		})
		return nil
	})
	if err != nil {
		return storageError(err, op, "failed to remove cart item")
	}
	return nil
}

// Clear deletes every line and zeroes the totals in one transaction.
func (s *cartService) Clear(ctx context.Context, cart *domain.Cart) error {
	const op = "cart.clear"

	if !cart.Persisted() {
		return nil
	}

	err := s.inTx(ctx, func(u *unitOfWork) error {
		if err := s.requireActive(ctx, u, cart); err != nil {
			return err
		}
		if _, err := u.q.DeleteCartLines(ctx, pgUUID(cart.ID)); err != nil {
			return err
		}
		row, err := u.q.ResetCartTotals(ctx, pgUUID(cart.ID))
		if repository.IsNoRows(err) {
			return domain.ErrCartNotFound
		}
		if err != nil {
			return err
		}
		cart.InvalidateLines()
		u.refresh(cart, row)
		u.emit(events.CartClearedEvent{CartID: cart.ID, Timestamp: s.now()})
		return nil
	})
	if err != nil {
		return storageError(err, op, "failed to clear cart")
	}
	return nil
}

func (s *cartService) checkProduct(ctx context.Context, productID, op string) error {
	if s.catalog == nil {
		return nil
	}
	ok, err := s.catalog.ProductExists(ctx, productID)
	if err != nil {
		return domain.Internal(err, op, "failed to look up product")
	}
	if !ok {
		return domain.WithOp(domain.ErrUnknownProduct, op)
	}
	return nil
}
