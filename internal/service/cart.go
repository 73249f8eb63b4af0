package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dukerupert/dbcart/internal/domain"
	"github.com/dukerupert/dbcart/internal/events"
	"github.com/dukerupert/dbcart/internal/repository"
	"github.com/dukerupert/dbcart/internal/telemetry"
)

// maxConflictRetries bounds how often an operation that lost a race on a
// unique index is retried.
const maxConflictRetries = 3

// CartService provides business logic for shopping cart operations
type CartService interface {
	// Current resolves the request's cart for an instance name.
	Current(ctx context.Context, scope *domain.Scope, instance string) (*domain.Cart, error)
	// Save persists a cart returned unsaved in save-on-demand mode.
	Save(ctx context.Context, cart *domain.Cart) error

	Lines(ctx context.Context, cart *domain.Cart) ([]domain.CartLine, error)
	Summary(ctx context.Context, cart *domain.Cart) (*domain.CartSummary, error)
	HasItem(ctx context.Context, cart *domain.Cart, match domain.LineMatch) (bool, error)

	AddItem(ctx context.Context, cart *domain.Cart, params domain.AddItemParams) (*domain.CartLine, error)
	// UpdateItem returns a nil line when the change removed it.
	UpdateItem(ctx context.Context, cart *domain.Cart, match domain.LineMatch, changes domain.LineChanges) (*domain.CartLine, error)
	RemoveItem(ctx context.Context, cart *domain.Cart, match domain.LineMatch) error
	Clear(ctx context.Context, cart *domain.Cart) error
	Delete(ctx context.Context, cart *domain.Cart) error

	// Transfer moves source lines whose product is absent from destination.
	Transfer(ctx context.Context, source, destination *domain.Cart) error

	Checkout(ctx context.Context, cart *domain.Cart) error
	Complete(ctx context.Context, cart *domain.Cart) error
	Expire(ctx context.Context, cart *domain.Cart) error
}

// CartServiceConfig holds the optional collaborators of a CartService.
type CartServiceConfig struct {
	// SaveOnDemand makes Current return unsaved carts instead of inserting them.
	SaveOnDemand bool

	// Catalog, when set, rejects products it does not know.
	Catalog domain.ProductCatalog

	Publisher events.Publisher
	Metrics   *telemetry.CartMetrics
	Logger    *slog.Logger
}

type cartService struct {
	repo         repository.Querier
	tx           repository.Transactor
	hook         lineHook
	catalog      domain.ProductCatalog
	publisher    events.Publisher
	metrics      *telemetry.CartMetrics
	logger       *slog.Logger
	saveOnDemand bool
	now          func() time.Time
}

// NewCartService creates a new CartService instance
func NewCartService(repo repository.Querier, tx repository.Transactor, cfg CartServiceConfig) CartService {
	svc := &cartService{
		repo:         repo,
		tx:           tx,
		hook:         aggregateMaintainer{},
		catalog:      cfg.Catalog,
		publisher:    cfg.Publisher,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
		saveOnDemand: cfg.SaveOnDemand,
		now:          time.Now,
	}
	if svc.publisher == nil {
		svc.publisher = events.NoopPublisher{}
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	return svc
}

// Save inserts an unsaved cart. If another request already created the
// active cart for the same owner and instance, the cart adopts that row.
func (s *cartService) Save(ctx context.Context, cart *domain.Cart) error {
	const op = "cart.save"

	if cart.Persisted() {
		return nil
	}

	err := withRetry(func() error {
		return s.inTx(ctx, func(u *unitOfWork) error {
			row, err := s.insertCart(ctx, u, cart.UserID, cart.Session, cart.Name)
			if err == nil {
				u.refresh(cart, row)
				return nil
			}
			if !domain.IsCode(err, domain.ECONFLICT) {
				return err
			}

			existing, found, lookupErr := s.findActive(ctx, u.q, cart.UserID, cart.Session, cart.Name)
			if lookupErr != nil {
				return lookupErr
			}
			if !found {
				return domain.ErrCartConflict
			}
			u.refresh(cart, existing)
			return nil
		})
	})
	if err != nil {
		return storageError(err, op, "failed to save cart")
	}
	return nil
}

// Lines returns the cart's lines, loading them once per cache generation.
func (s *cartService) Lines(ctx context.Context, cart *domain.Cart) ([]domain.CartLine, error) {
	if !cart.Persisted() {
		return []domain.CartLine{}, nil
	}
	if lines, ok := cart.CachedLines(); ok {
		return lines, nil
	}

	rows, err := s.repo.GetCartLines(ctx, pgUUID(cart.ID))
	if err != nil {
		return nil, domain.Internal(err, "cart.lines", "failed to load cart lines")
	}
	lines := linesFromRows(rows)
	cart.SetLines(lines)
	return lines, nil
}

// Summary returns the cart with its lines.
func (s *cartService) Summary(ctx context.Context, cart *domain.Cart) (*domain.CartSummary, error) {
	lines, err := s.Lines(ctx, cart)
	if err != nil {
		return nil, err
	}
	return &domain.CartSummary{Cart: *cart, Lines: lines}, nil
}

// HasItem reports whether any line satisfies match.
func (s *cartService) HasItem(ctx context.Context, cart *domain.Cart, match domain.LineMatch) (bool, error) {
	if match.Empty() {
		return false, domain.WithOp(domain.ErrEmptyMatch, "cart.has_item")
	}
	lines, err := s.Lines(ctx, cart)
	if err != nil {
		return false, err
	}
	for _, line := range lines {
		if match.Matches(line) {
			return true, nil
		}
	}
	return false, nil
}

// Delete removes the cart row. Its lines go with it through the foreign key
// cascade. The in-memory cart becomes unsaved and empty.
func (s *cartService) Delete(ctx context.Context, cart *domain.Cart) error {
	const op = "cart.delete"

	if !cart.Persisted() {
		return nil
	}

	id := cart.ID
	err := s.inTx(ctx, func(u *unitOfWork) error {
		n, err := u.q.DeleteCart(ctx, pgUUID(id))
		if err != nil {
			return err
		}
		if n == 0 {
			return domain.ErrCartNotFound
		}
		u.emit(events.CartDeletedEvent{CartID: id, Timestamp: s.now()})
		return nil
	})
	if err != nil {
		return storageError(err, op, "failed to delete cart")
	}

	cart.ID = uuid.Nil
	cart.TotalPrice = decimal.Zero
	cart.ItemCount = 0
	cart.InvalidateLines()

	s.logger.Info("cart deleted", "cart_id", id)
	return nil
}

// Checkout moves an active cart to pending and stamps placed_at.
func (s *cartService) Checkout(ctx context.Context, cart *domain.Cart) error {
	return s.transition(ctx, cart, domain.CartStatusPending, "cart.checkout")
}

// Complete moves a pending cart to complete and stamps completed_at.
func (s *cartService) Complete(ctx context.Context, cart *domain.Cart) error {
	return s.transition(ctx, cart, domain.CartStatusComplete, "cart.complete")
}

// Expire moves an active cart to expired.
func (s *cartService) Expire(ctx context.Context, cart *domain.Cart) error {
	return s.transition(ctx, cart, domain.CartStatusExpired, "cart.expire")
}

func (s *cartService) transition(ctx context.Context, cart *domain.Cart, to domain.CartStatus, op string) error {
	from := cart.Status
	if !from.CanTransitionTo(to) {
		return domain.WithOp(domain.ErrInvalidTransition, op)
	}
	if err := s.Save(ctx, cart); err != nil {
		return err
	}

	err := s.inTx(ctx, func(u *unitOfWork) error {
		row, err := u.q.UpdateCartStatus(ctx, repository.UpdateCartStatusParams{
			ID:         pgUUID(cart.ID),
			Status:     string(to),
			FromStatus: string(from),
		})
		if repository.IsNoRows(err) {
			// The row is gone or another request moved it first.
			if _, getErr := u.q.GetCartByID(ctx, pgUUID(cart.ID)); repository.IsNoRows(getErr) {
				return domain.ErrCartNotFound
			}
			return domain.ErrInvalidTransition
		}
		if err != nil {
			return err
		}

		u.refresh(cart, row)
		u.emit(events.StatusChangedEvent{
			CartID:     cart.ID,
			From:       string(from),
			To:         string(to),
			TotalPrice: row.TotalPrice,
			ItemCount:  int64(row.ItemCount),
			Timestamp:  s.now(),
		})
		return nil
	})
	if err != nil {
		return storageError(err, op, "failed to update cart status")
	}

	s.logger.Info("cart status changed",
		"cart_id", cart.ID,
		"from", from,
		"to", to,
	)
	return nil
}

// requireActive re-reads the cart inside the transaction and rejects
// mutations on carts that are gone or no longer active.
func (s *cartService) requireActive(ctx context.Context, u *unitOfWork, cart *domain.Cart) error {
	if !cart.IsActive() {
		return domain.ErrCartNotActive
	}
	row, err := u.q.GetCartByID(ctx, pgUUID(cart.ID))
	if repository.IsNoRows(err) {
		return domain.ErrCartNotFound
	}
	if err != nil {
		return err
	}
	if domain.CartStatus(row.Status) != domain.CartStatusActive {
		return domain.ErrCartNotActive
	}
	return nil
}
