package service

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/dukerupert/dbcart/internal/domain"
	"github.com/dukerupert/dbcart/internal/repository"
)

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: id != uuid.Nil}
}

func pgText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func pgOptionalText(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{}
	}
	return pgText(*s)
}

func optionalText(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	s := t.String
	return &s
}

func optionalTime(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func cartFromRow(row repository.Cart) *domain.Cart {
	return &domain.Cart{
		ID:          uuid.UUID(row.ID.Bytes),
		UserID:      optionalText(row.UserID),
		Session:     optionalText(row.Session),
		Name:        row.Name,
		Status:      domain.CartStatus(row.Status),
		TotalPrice:  row.TotalPrice,
		ItemCount:   int64(row.ItemCount),
		PlacedAt:    optionalTime(row.PlacedAt),
		CompletedAt: optionalTime(row.CompletedAt),
		CreatedAt:   row.CreatedAt.Time,
		UpdatedAt:   row.UpdatedAt.Time,
	}
}

func lineFromRow(row repository.CartLine) domain.CartLine {
	return domain.CartLine{
		ID:        uuid.UUID(row.ID.Bytes),
		CartID:    uuid.UUID(row.CartID.Bytes),
		ProductID: row.ProductID,
		Quantity:  row.Quantity,
		UnitPrice: row.UnitPrice,
		CreatedAt: row.CreatedAt.Time,
		UpdatedAt: row.UpdatedAt.Time,
	}
}

func linesFromRows(rows []repository.CartLine) []domain.CartLine {
	lines := make([]domain.CartLine, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, lineFromRow(row))
	}
	return lines
}

func findLineParams(cart *domain.Cart, match domain.LineMatch) repository.FindCartLineParams {
	return repository.FindCartLineParams{
		CartID:    pgUUID(cart.ID),
		LineID:    pgUUID(match.LineID),
		ProductID: pgText(match.ProductID),
	}
}

func ownerString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
