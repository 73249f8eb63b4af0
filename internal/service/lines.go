package service

import (
	"context"
	"math"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/dbcart/internal/domain"
	"github.com/dukerupert/dbcart/internal/repository"
)

// lineHook observes line mutations. It runs synchronously inside the
// mutating transaction; an error rolls the mutation back.
type lineHook interface {
	lineCreated(ctx context.Context, u *unitOfWork, cart *domain.Cart, line domain.CartLine) error
	lineUpdated(ctx context.Context, u *unitOfWork, cart *domain.Cart, before, after domain.CartLine) error
	lineDeleted(ctx context.Context, u *unitOfWork, cart *domain.Cart, line domain.CartLine) error
}

// aggregateMaintainer keeps cart.total_price and cart.item_count equal to
// the sum over the cart's lines by applying each mutation's delta.
type aggregateMaintainer struct{}

func (aggregateMaintainer) lineCreated(ctx context.Context, u *unitOfWork, cart *domain.Cart, line domain.CartLine) error {
	return adjustTotals(ctx, u, cart, line.Price(), int64(line.Quantity))
}

func (aggregateMaintainer) lineUpdated(ctx context.Context, u *unitOfWork, cart *domain.Cart, before, after domain.CartLine) error {
	return adjustTotals(ctx, u, cart,
		after.Price().Sub(before.Price()),
		int64(after.Quantity)-int64(before.Quantity),
	)
}

func (aggregateMaintainer) lineDeleted(ctx context.Context, u *unitOfWork, cart *domain.Cart, line domain.CartLine) error {
	return adjustTotals(ctx, u, cart, line.Price().Neg(), -int64(line.Quantity))
}

func adjustTotals(ctx context.Context, u *unitOfWork, cart *domain.Cart, price decimal.Decimal, count int64) error {
	cart.InvalidateLines()
	if price.IsZero() && count == 0 {
		return nil
	}
	if count > math.MaxInt32 || count < math.MinInt32 {
		return domain.ErrInvalidQuantity
	}

	row, err := u.q.AdjustCartTotals(ctx, repository.AdjustCartTotalsParams{
		ID:         pgUUID(cart.ID),
		PriceDelta: price,
		CountDelta: int32(count),
	})
	if repository.IsNoRows(err) {
		return domain.ErrCartNotFound
	}
	if err != nil {
		return err
	}
	u.refresh(cart, row)
	return nil
}

// lineStore performs line mutations for one cart and reports each to the hook.
type lineStore struct {
	u    *unitOfWork
	cart *domain.Cart
	hook lineHook
}

func (s *cartService) lineStore(u *unitOfWork, cart *domain.Cart) *lineStore {
	return &lineStore{u: u, cart: cart, hook: s.hook}
}

func (ls *lineStore) create(ctx context.Context, productID string, quantity int32, unitPrice decimal.Decimal) (domain.CartLine, error) {
	row, err := ls.u.q.InsertCartLine(ctx, repository.InsertCartLineParams{
		CartID:    pgUUID(ls.cart.ID),
		ProductID: productID,
		Quantity:  quantity,
		UnitPrice: unitPrice,
	})
	if repository.IsNoRows(err) || repository.IsUniqueViolation(err) {
		return domain.CartLine{}, domain.ErrCartConflict
	}
	if err != nil {
		return domain.CartLine{}, err
	}

	line := lineFromRow(row)
	if err := ls.hook.lineCreated(ctx, ls.u, ls.cart, line); err != nil {
		return domain.CartLine{}, err
	}
	return line, nil
}

func (ls *lineStore) update(ctx context.Context, before domain.CartLine, quantity int32, unitPrice decimal.Decimal) (domain.CartLine, error) {
	row, err := ls.u.q.UpdateCartLine(ctx, repository.UpdateCartLineParams{
		ID:        pgUUID(before.ID),
		Quantity:  quantity,
		UnitPrice: unitPrice,
	})
	if repository.IsNoRows(err) {
		return domain.CartLine{}, domain.ErrCartItemNotFound
	}
	if err != nil {
		return domain.CartLine{}, err
	}

	after := lineFromRow(row)
	if err := ls.hook.lineUpdated(ctx, ls.u, ls.cart, before, after); err != nil {
		return domain.CartLine{}, err
	}
	return after, nil
}

func (ls *lineStore) delete(ctx context.Context, line domain.CartLine) error {
	n, err := ls.u.q.DeleteCartLine(ctx, pgUUID(line.ID))
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrCartItemNotFound
	}
	return ls.hook.lineDeleted(ctx, ls.u, ls.cart, line)
}

// findLine returns the line matching match, locked for update.
func findLine(ctx context.Context, u *unitOfWork, cart *domain.Cart, match domain.LineMatch) (domain.CartLine, error) {
	row, err := u.q.FindCartLine(ctx, findLineParams(cart, match))
	if repository.IsNoRows(err) {
		return domain.CartLine{}, domain.ErrCartItemNotFound
	}
	if err != nil {
		return domain.CartLine{}, err
	}
	return lineFromRow(row), nil
}
