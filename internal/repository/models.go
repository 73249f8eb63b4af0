package repository

import (
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

type Cart struct {
	ID          pgtype.UUID
	UserID      pgtype.Text
	Session     pgtype.Text
	Name        string
	Status      string
	TotalPrice  decimal.Decimal
	ItemCount   int32
	PlacedAt    pgtype.Timestamptz
	CompletedAt pgtype.Timestamptz
	CreatedAt   pgtype.Timestamptz
	UpdatedAt   pgtype.Timestamptz
}

type CartLine struct {
	ID        pgtype.UUID
	CartID    pgtype.UUID
	ProductID string
	Quantity  int32
	UnitPrice decimal.Decimal
	CreatedAt pgtype.Timestamptz
	UpdatedAt pgtype.Timestamptz
}
