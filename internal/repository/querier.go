package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

type Querier interface {
	AdjustCartTotals(ctx context.Context, arg AdjustCartTotalsParams) (Cart, error)
	CreateCart(ctx context.Context, arg CreateCartParams) (Cart, error)
	DeleteCart(ctx context.Context, id pgtype.UUID) (int64, error)
	DeleteCartLine(ctx context.Context, id pgtype.UUID) (int64, error)
	DeleteCartLines(ctx context.Context, cartID pgtype.UUID) (int64, error)
	DeleteExpiredCarts(ctx context.Context) (int64, error)
	ExpireSessionCarts(ctx context.Context, updatedBefore pgtype.Timestamptz) (int64, error)
	FindCartLine(ctx context.Context, arg FindCartLineParams) (CartLine, error)
	GetActiveCartBySession(ctx context.Context, arg GetActiveCartBySessionParams) (Cart, error)
	GetActiveCartByUser(ctx context.Context, arg GetActiveCartByUserParams) (Cart, error)
	GetCartByID(ctx context.Context, id pgtype.UUID) (Cart, error)
	GetCartLines(ctx context.Context, cartID pgtype.UUID) ([]CartLine, error)
	GetMovableCartLines(ctx context.Context, arg GetMovableCartLinesParams) ([]CartLine, error)
	InsertCartLine(ctx context.Context, arg InsertCartLineParams) (CartLine, error)
	MoveCartLines(ctx context.Context, arg MoveCartLinesParams) (int64, error)
	ReassignCartToUser(ctx context.Context, arg ReassignCartToUserParams) (Cart, error)
	ResetCartTotals(ctx context.Context, id pgtype.UUID) (Cart, error)
	UpdateCartLine(ctx context.Context, arg UpdateCartLineParams) (CartLine, error)
	UpdateCartStatus(ctx context.Context, arg UpdateCartStatusParams) (Cart, error)
}

var _ Querier = (*Queries)(nil)
