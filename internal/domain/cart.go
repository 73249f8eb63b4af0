package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultInstance is the cart instance name used when none is given.
const DefaultInstance = "default"

// SessionKeyPrefix prefixes the session key that remembers a guest cart
// across session id rotation on login.
const SessionKeyPrefix = "cart_"

// SessionKey returns the session key for an instance name.
func SessionKey(instance string) string {
	return SessionKeyPrefix + instance
}

// =============================================================================
// CART DOMAIN ERRORS
// =============================================================================

var (
	ErrCartNotFound      = &Error{Code: ENOTFOUND, Message: "Cart not found"}
	ErrCartItemNotFound  = &Error{Code: ENOTFOUND, Message: "Cart item not found"}
	ErrInvalidQuantity   = &Error{Code: EINVALID, Message: "Quantity must be greater than 0"}
	ErrInvalidPrice      = &Error{Code: EINVALID, Message: "Unit price must not be negative"}
	ErrEmptyMatch        = &Error{Code: EINVALID, Message: "Item match must name a line or a product"}
	ErrUnknownProduct    = &Error{Code: EINVALID, Message: "Unknown product"}
	ErrNoSession         = &Error{Code: EINVALID, Message: "Session is required to resolve a guest cart"}
	ErrInvalidTransition = &Error{Code: ECONFLICT, Message: "Cart status transition not allowed"}
	ErrCartNotActive     = &Error{Code: ECONFLICT, Message: "Cart is not active"}
	ErrCartConflict      = &Error{Code: ECONFLICT, Message: "Cart was modified concurrently"}
	ErrSameCart          = &Error{Code: EINVALID, Message: "Cannot transfer a cart into itself"}
)

// CartStatus is the lifecycle state of a cart.
type CartStatus string

const (
	CartStatusActive   CartStatus = "active"
	CartStatusPending  CartStatus = "pending"
	CartStatusExpired  CartStatus = "expired"
	CartStatusComplete CartStatus = "complete"
)

// CanTransitionTo reports whether a cart may move from s to next.
// Allowed: active -> pending -> complete, and active -> expired.
func (s CartStatus) CanTransitionTo(next CartStatus) bool {
	switch s {
	case CartStatusActive:
		return next == CartStatusPending || next == CartStatusExpired
	case CartStatusPending:
		return next == CartStatusComplete
	}
	return false
}

// Cart is a persisted shopping cart owned by a user or a session.
//
// TotalPrice and ItemCount are maintained incrementally by line mutations.
// The line cache is filled lazily and dropped on every mutation.
type Cart struct {
	ID          uuid.UUID
	UserID      *string
	Session     *string
	Name        string
	Status      CartStatus
	TotalPrice  decimal.Decimal
	ItemCount   int64
	PlacedAt    *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time

	lines       []CartLine
	linesLoaded bool
}

// Persisted reports whether the cart has a database row.
// Carts resolved in save-on-demand mode are unsaved until first written.
func (c *Cart) Persisted() bool {
	return c.ID != uuid.Nil
}

// IsEmpty reports whether the cart holds no items.
func (c *Cart) IsEmpty() bool {
	return c.ItemCount == 0
}

// IsActive reports whether the cart accepts item changes.
func (c *Cart) IsActive() bool {
	return c.Status == CartStatusActive
}

// CachedLines returns the cached lines and whether the cache is populated.
func (c *Cart) CachedLines() ([]CartLine, bool) {
	return c.lines, c.linesLoaded
}

// SetLines fills the line cache.
func (c *Cart) SetLines(lines []CartLine) {
	c.lines = lines
	c.linesLoaded = true
}

// InvalidateLines drops the line cache so the next read reloads it.
func (c *Cart) InvalidateLines() {
	c.lines = nil
	c.linesLoaded = false
}

// CopyRow overwrites the persisted fields of c with those of row,
// invalidating the line cache.
func (c *Cart) CopyRow(row *Cart) {
	c.ID = row.ID
	c.UserID = row.UserID
	c.Session = row.Session
	c.Name = row.Name
	c.Status = row.Status
	c.TotalPrice = row.TotalPrice
	c.ItemCount = row.ItemCount
	c.PlacedAt = row.PlacedAt
	c.CompletedAt = row.CompletedAt
	c.CreatedAt = row.CreatedAt
	c.UpdatedAt = row.UpdatedAt
	c.InvalidateLines()
}

// CartLine is one product in a cart.
type CartLine struct {
	ID        uuid.UUID
	CartID    uuid.UUID
	ProductID string
	Quantity  int32
	UnitPrice decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Price returns quantity × unit price.
func (l CartLine) Price() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt32(l.Quantity))
}

// LineMatch selects a cart line. Every non-zero field must match.
type LineMatch struct {
	LineID    uuid.UUID
	ProductID string
}

// Empty reports whether the match selects nothing.
func (m LineMatch) Empty() bool {
	return m.LineID == uuid.Nil && m.ProductID == ""
}

// Matches reports whether line satisfies m.
func (m LineMatch) Matches(line CartLine) bool {
	if m.Empty() {
		return false
	}
	if m.LineID != uuid.Nil && line.ID != m.LineID {
		return false
	}
	if m.ProductID != "" && line.ProductID != m.ProductID {
		return false
	}
	return true
}

// MatchProduct matches the line holding productID.
func MatchProduct(productID string) LineMatch {
	return LineMatch{ProductID: productID}
}

// LineChanges describes an item update. Nil fields are left unchanged.
type LineChanges struct {
	Quantity  *int32
	UnitPrice *decimal.Decimal
}

// AddItemParams holds the input for adding a product to a cart.
type AddItemParams struct {
	ProductID string
	UnitPrice decimal.Decimal
	Quantity  int32
}

// CartSummary aggregates cart information with its lines.
type CartSummary struct {
	Cart  Cart
	Lines []CartLine
}
