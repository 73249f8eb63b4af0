// Package events defines cart domain events and the publishers that carry
// them out of the process.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event type names. Publishers use them as subject suffixes.
const (
	TypeCartCreated    = "cart.created"
	TypeCartReassigned = "cart.reassigned"
	TypeCartMerged     = "cart.merged"
	TypeCartCleared    = "cart.cleared"
	TypeCartDeleted    = "cart.deleted"
	TypeStatusChanged  = "cart.status_changed"
	TypeLineAdded      = "cart.line.added"
	TypeLineUpdated    = "cart.line.updated"
	TypeLineRemoved    = "cart.line.removed"
)

// Event is a cart domain event.
type Event interface {
	EventType() string
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// CartCreatedEvent is emitted when a new cart row is inserted. Guest carts
// are flagged rather than identified: the session id is a cookie credential
// and never leaves the process.
type CartCreatedEvent struct {
	CartID    uuid.UUID `json:"cart_id"`
	UserID    string    `json:"user_id,omitempty"`
	Guest     bool      `json:"guest"`
	Instance  string    `json:"instance"`
	Timestamp time.Time `json:"timestamp"`
}

func (CartCreatedEvent) EventType() string { return TypeCartCreated }

// CartReassignedEvent is emitted when a guest cart is handed to a user on login.
type CartReassignedEvent struct {
	CartID    uuid.UUID `json:"cart_id"`
	UserID    string    `json:"user_id"`
	Instance  string    `json:"instance"`
	Timestamp time.Time `json:"timestamp"`
}

func (CartReassignedEvent) EventType() string { return TypeCartReassigned }

// CartMergedEvent is emitted when lines move from one cart to another.
type CartMergedEvent struct {
	SourceID      uuid.UUID `json:"source_id"`
	DestinationID uuid.UUID `json:"destination_id"`
	MovedLines    int       `json:"moved_lines"`
	Timestamp     time.Time `json:"timestamp"`
}

func (CartMergedEvent) EventType() string { return TypeCartMerged }

type CartClearedEvent struct {
	CartID    uuid.UUID `json:"cart_id"`
	Timestamp time.Time `json:"timestamp"`
}

func (CartClearedEvent) EventType() string { return TypeCartCleared }

type CartDeletedEvent struct {
	CartID    uuid.UUID `json:"cart_id"`
	Timestamp time.Time `json:"timestamp"`
}

func (CartDeletedEvent) EventType() string { return TypeCartDeleted }

// StatusChangedEvent carries the cart totals at the moment of transition.
type StatusChangedEvent struct {
	CartID     uuid.UUID       `json:"cart_id"`
	From       string          `json:"from"`
	To         string          `json:"to"`
	TotalPrice decimal.Decimal `json:"total_price"`
	ItemCount  int64           `json:"item_count"`
	Timestamp  time.Time       `json:"timestamp"`
}

func (StatusChangedEvent) EventType() string { return TypeStatusChanged }

type LineAddedEvent struct {
	CartID    uuid.UUID       `json:"cart_id"`
	ProductID string          `json:"product_id"`
	Quantity  int32           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Timestamp time.Time       `json:"timestamp"`
}

func (LineAddedEvent) EventType() string { return TypeLineAdded }

type LineUpdatedEvent struct {
	CartID      uuid.UUID       `json:"cart_id"`
	ProductID   string          `json:"product_id"`
	OldQuantity int32           `json:"old_quantity"`
	Quantity    int32           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Timestamp   time.Time       `json:"timestamp"`
}

func (LineUpdatedEvent) EventType() string { return TypeLineUpdated }

type LineRemovedEvent struct {
	CartID    uuid.UUID `json:"cart_id"`
	ProductID string    `json:"product_id"`
	Quantity  int32     `json:"quantity"`
	Timestamp time.Time `json:"timestamp"`
}

func (LineRemovedEvent) EventType() string { return TypeLineRemoved }

// NoopPublisher drops every event.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }

// RecordingPublisher keeps published events in memory.
type RecordingPublisher struct {
	Events []Event
}

func (p *RecordingPublisher) Publish(_ context.Context, ev Event) error {
	p.Events = append(p.Events, ev)
	return nil
}

// Types returns the type of each recorded event, in order.
func (p *RecordingPublisher) Types() []string {
	types := make([]string, len(p.Events))
	for i, ev := range p.Events {
		types[i] = ev.EventType()
	}
	return types
}
