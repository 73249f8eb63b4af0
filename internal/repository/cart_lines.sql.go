package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

const cartLineColumns = `id, cart_id, product_id, quantity, unit_price, created_at, updated_at`

func scanCartLine(row pgx.Row) (CartLine, error) {
	var i CartLine
	err := row.Scan(
		&i.ID,
		&i.CartID,
		&i.ProductID,
		&i.Quantity,
		&i.UnitPrice,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

func collectCartLines(rows pgx.Rows) ([]CartLine, error) {
	defer rows.Close()
	var items []CartLine
	for rows.Next() {
		i, err := scanCartLine(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getCartLines = `-- name: GetCartLines :many
SELECT ` + cartLineColumns + `
FROM cart_lines
WHERE cart_id = $1
ORDER BY created_at, id
`

func (q *Queries) GetCartLines(ctx context.Context, cartID pgtype.UUID) ([]CartLine, error) {
	rows, err := q.db.Query(ctx, getCartLines, cartID)
	if err != nil {
		return nil, err
	}
	return collectCartLines(rows)
}

const findCartLine = `-- name: FindCartLine :one
SELECT ` + cartLineColumns + `
FROM cart_lines
WHERE cart_id = $1
  AND ($2::uuid IS NULL OR id = $2)
  AND ($3::text IS NULL OR product_id = $3)
ORDER BY created_at, id
LIMIT 1
FOR UPDATE
`

type FindCartLineParams struct {
	CartID    pgtype.UUID
	LineID    pgtype.UUID
	ProductID pgtype.Text
}

func (q *Queries) FindCartLine(ctx context.Context, arg FindCartLineParams) (CartLine, error) {
	return scanCartLine(q.db.QueryRow(ctx, findCartLine, arg.CartID, arg.LineID, arg.ProductID))
}

const insertCartLine = `-- name: InsertCartLine :one
INSERT INTO cart_lines (cart_id, product_id, quantity, unit_price)
VALUES ($1, $2, $3, $4::numeric)
ON CONFLICT (cart_id, product_id) DO NOTHING
RETURNING ` + cartLineColumns

type InsertCartLineParams struct {
	CartID    pgtype.UUID
	ProductID string
	Quantity  int32
	UnitPrice decimal.Decimal
}

func (q *Queries) InsertCartLine(ctx context.Context, arg InsertCartLineParams) (CartLine, error) {
	return scanCartLine(q.db.QueryRow(ctx, insertCartLine, arg.CartID, arg.ProductID, arg.Quantity, arg.UnitPrice))
}

const updateCartLine = `-- name: UpdateCartLine :one
UPDATE cart_lines
SET quantity = $2, unit_price = $3::numeric, updated_at = NOW()
WHERE id = $1
RETURNING ` + cartLineColumns

type UpdateCartLineParams struct {
	ID        pgtype.UUID
	Quantity  int32
	UnitPrice decimal.Decimal
}

func (q *Queries) UpdateCartLine(ctx context.Context, arg UpdateCartLineParams) (CartLine, error) {
	return scanCartLine(q.db.QueryRow(ctx, updateCartLine, arg.ID, arg.Quantity, arg.UnitPrice))
}

const deleteCartLine = `-- name: DeleteCartLine :execrows
DELETE FROM cart_lines WHERE id = $1
`

func (q *Queries) DeleteCartLine(ctx context.Context, id pgtype.UUID) (int64, error) {
	result, err := q.db.Exec(ctx, deleteCartLine, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const deleteCartLines = `-- name: DeleteCartLines :execrows
DELETE FROM cart_lines WHERE cart_id = $1
`

func (q *Queries) DeleteCartLines(ctx context.Context, cartID pgtype.UUID) (int64, error) {
	result, err := q.db.Exec(ctx, deleteCartLines, cartID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// Source lines whose product is not already in the destination cart.
const getMovableCartLines = `-- name: GetMovableCartLines :many
SELECT ` + cartLineColumns + `
FROM cart_lines src
WHERE src.cart_id = $1
  AND NOT EXISTS (
      SELECT 1 FROM cart_lines dst
      WHERE dst.cart_id = $2 AND dst.product_id = src.product_id
  )
ORDER BY created_at, id
FOR UPDATE
`

type GetMovableCartLinesParams struct {
	SourceID      pgtype.UUID
	DestinationID pgtype.UUID
}

func (q *Queries) GetMovableCartLines(ctx context.Context, arg GetMovableCartLinesParams) ([]CartLine, error) {
	rows, err := q.db.Query(ctx, getMovableCartLines, arg.SourceID, arg.DestinationID)
	if err != nil {
		return nil, err
	}
	return collectCartLines(rows)
}

const moveCartLines = `-- name: MoveCartLines :execrows
UPDATE cart_lines
SET cart_id = $2, updated_at = NOW()
WHERE id = ANY($1::uuid[])
`

type MoveCartLinesParams struct {
	IDs    []pgtype.UUID
	CartID pgtype.UUID
}

func (q *Queries) MoveCartLines(ctx context.Context, arg MoveCartLinesParams) (int64, error) {
	result, err := q.db.Exec(ctx, moveCartLines, arg.IDs, arg.CartID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
