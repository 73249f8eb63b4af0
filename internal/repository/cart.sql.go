package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

const cartColumns = `id, user_id, session, name, status, total_price, item_count,
	placed_at, completed_at, created_at, updated_at`

func scanCart(row pgx.Row) (Cart, error) {
	var i Cart
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.Session,
		&i.Name,
		&i.Status,
		&i.TotalPrice,
		&i.ItemCount,
		&i.PlacedAt,
		&i.CompletedAt,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getActiveCartByUser = `-- name: GetActiveCartByUser :one
SELECT ` + cartColumns + `
FROM cart
WHERE user_id = $1 AND name = $2 AND status = 'active'
LIMIT 1
`

type GetActiveCartByUserParams struct {
	UserID string
	Name   string
}

func (q *Queries) GetActiveCartByUser(ctx context.Context, arg GetActiveCartByUserParams) (Cart, error) {
	return scanCart(q.db.QueryRow(ctx, getActiveCartByUser, arg.UserID, arg.Name))
}

const getActiveCartBySession = `-- name: GetActiveCartBySession :one
SELECT ` + cartColumns + `
FROM cart
WHERE session = $1 AND name = $2 AND status = 'active'
LIMIT 1
`

type GetActiveCartBySessionParams struct {
	Session string
	Name    string
}

func (q *Queries) GetActiveCartBySession(ctx context.Context, arg GetActiveCartBySessionParams) (Cart, error) {
	return scanCart(q.db.QueryRow(ctx, getActiveCartBySession, arg.Session, arg.Name))
}

const getCartByID = `-- name: GetCartByID :one
SELECT ` + cartColumns + `
FROM cart
WHERE id = $1
`

func (q *Queries) GetCartByID(ctx context.Context, id pgtype.UUID) (Cart, error) {
	return scanCart(q.db.QueryRow(ctx, getCartByID, id))
}

// The partial unique indexes on (user_id, name) and (session, name) for
// active carts turn a concurrent duplicate insert into pgx.ErrNoRows.
const createCart = `-- name: CreateCart :one
INSERT INTO cart (user_id, session, name, status)
VALUES ($1, $2, $3, 'active')
ON CONFLICT DO NOTHING
RETURNING ` + cartColumns

type CreateCartParams struct {
	UserID  pgtype.Text
	Session pgtype.Text
	Name    string
}

func (q *Queries) CreateCart(ctx context.Context, arg CreateCartParams) (Cart, error) {
	return scanCart(q.db.QueryRow(ctx, createCart, arg.UserID, arg.Session, arg.Name))
}

const reassignCartToUser = `-- name: ReassignCartToUser :one
UPDATE cart
SET user_id = $2, session = NULL, updated_at = NOW()
WHERE id = $1 AND status = 'active'
RETURNING ` + cartColumns

type ReassignCartToUserParams struct {
	ID     pgtype.UUID
	UserID string
}

func (q *Queries) ReassignCartToUser(ctx context.Context, arg ReassignCartToUserParams) (Cart, error) {
	return scanCart(q.db.QueryRow(ctx, reassignCartToUser, arg.ID, arg.UserID))
}

const adjustCartTotals = `-- name: AdjustCartTotals :one
UPDATE cart
SET total_price = total_price + $2::numeric,
    item_count = item_count + $3,
    updated_at = NOW()
WHERE id = $1
RETURNING ` + cartColumns

type AdjustCartTotalsParams struct {
	ID         pgtype.UUID
	PriceDelta decimal.Decimal
	CountDelta int32
}

func (q *Queries) AdjustCartTotals(ctx context.Context, arg AdjustCartTotalsParams) (Cart, error) {
	return scanCart(q.db.QueryRow(ctx, adjustCartTotals, arg.ID, arg.PriceDelta, arg.CountDelta))
}

const resetCartTotals = `-- name: ResetCartTotals :one
UPDATE cart
SET total_price = 0, item_count = 0, updated_at = NOW()
WHERE id = $1
RETURNING ` + cartColumns

func (q *Queries) ResetCartTotals(ctx context.Context, id pgtype.UUID) (Cart, error) {
	return scanCart(q.db.QueryRow(ctx, resetCartTotals, id))
}

const updateCartStatus = `-- name: UpdateCartStatus :one
UPDATE cart
SET status = $2::varchar,
    placed_at = CASE WHEN $2::varchar = 'pending' THEN NOW() ELSE placed_at END,
    completed_at = CASE WHEN $2::varchar = 'complete' THEN NOW() ELSE completed_at END,
    updated_at = NOW()
WHERE id = $1 AND status = $3::varchar
RETURNING ` + cartColumns

type UpdateCartStatusParams struct {
	ID         pgtype.UUID
	Status     string
	FromStatus string
}

func (q *Queries) UpdateCartStatus(ctx context.Context, arg UpdateCartStatusParams) (Cart, error) {
	return scanCart(q.db.QueryRow(ctx, updateCartStatus, arg.ID, arg.Status, arg.FromStatus))
}

const deleteCart = `-- name: DeleteCart :execrows
DELETE FROM cart WHERE id = $1
`

func (q *Queries) DeleteCart(ctx context.Context, id pgtype.UUID) (int64, error) {
	result, err := q.db.Exec(ctx, deleteCart, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const expireSessionCarts = `-- name: ExpireSessionCarts :execrows
UPDATE cart
SET status = 'expired', updated_at = NOW()
WHERE status = 'active'
  AND session IS NOT NULL AND session <> ''
  AND updated_at < $1
`

func (q *Queries) ExpireSessionCarts(ctx context.Context, updatedBefore pgtype.Timestamptz) (int64, error) {
	result, err := q.db.Exec(ctx, expireSessionCarts, updatedBefore)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// Lines are removed by the ON DELETE CASCADE on cart_lines.cart_id.
const deleteExpiredCarts = `-- name: DeleteExpiredCarts :execrows
DELETE FROM cart WHERE status = 'expired'
`

func (q *Queries) DeleteExpiredCarts(ctx context.Context) (int64, error) {
	result, err := q.db.Exec(ctx, deleteExpiredCarts)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
