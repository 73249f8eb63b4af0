package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/dbcart/internal/domain"
	"github.com/dukerupert/dbcart/internal/events"
	"github.com/dukerupert/dbcart/internal/repository"
)

// Current resolves the cart for instance in the request's scope.
//
// An authenticated user gets their active cart. A guest cart remembered in
// the session is handed over on first resolution after login, or merged
// into the user's existing cart. Guests get the active cart of their
// session. Results are memoized on the scope, so every call within one
// request returns the same *domain.Cart.
func (s *cartService) Current(ctx context.Context, scope *domain.Scope, instance string) (*domain.Cart, error) {
	const op = "cart.current"

	if scope == nil {
		return nil, domain.Invalid(op, "request scope is required")
	}
	if instance == "" {
		instance = domain.DefaultInstance
	}
	if cart, ok := scope.Cached(instance); ok {
		return cart, nil
	}

	var cart *domain.Cart
	attempt := 0
	err := withRetry(func() error {
		attempt++
		if attempt > 1 {
			s.logger.Debug("retrying cart resolution after conflict",
				"instance", instance,
				"attempt", attempt,
			)
		}

		var err error
		if userID, ok := scope.UserID(); ok {
			cart, err = s.resolveUser(ctx, scope, userID, instance)
		} else {
			cart, err = s.resolveGuest(ctx, scope, instance)
		}
		return err
	})
	if err != nil {
		return nil, storageError(err, op, "failed to resolve cart")
	}

	scope.Remember(instance, cart)
	return cart, nil
}

func (s *cartService) resolveUser(ctx context.Context, scope *domain.Scope, userID, instance string) (*domain.Cart, error) {
	key := domain.SessionKey(instance)

	var guestSession string
	if scope.Session != nil {
		guestSession, _ = scope.Session.Get(key)
	}

	var cart *domain.Cart
	err := s.inTx(ctx, func(u *unitOfWork) error {
		userRow, userFound, err := s.findActive(ctx, u.q, &userID, nil, instance)
		if err != nil {
			return err
		}

		var sessionRow repository.Cart
		var sessionFound bool
		if guestSession != "" {
			sessionRow, sessionFound, err = s.findActive(ctx, u.q, nil, &guestSession, instance)
			if err != nil {
				return err
			}
		}

		switch {
		case !userFound && !sessionFound:
			if s.saveOnDemand {
				cart = unsavedCart(&userID, nil, instance)
				return nil
			}
			row, err := s.insertCart(ctx, u, &userID, nil, instance)
			if err != nil {
				return err
			}
			cart = cartFromRow(row)

		case userFound && !sessionFound:
			cart = cartFromRow(userRow)

		case !userFound && sessionFound:
			row, err := u.q.ReassignCartToUser(ctx, repository.ReassignCartToUserParams{
				ID:     sessionRow.ID,
				UserID: userID,
			})
			if repository.IsNoRows(err) || repository.IsUniqueViolation(err) {
				return domain.ErrCartConflict
			}
			if err != nil {
				return err
			}
			cart = cartFromRow(row)
			u.emit(events.CartReassignedEvent{
				CartID:    cart.ID,
				UserID:    userID,
				Instance:  instance,
				Timestamp: s.now(),
			})

		default:
			source := cartFromRow(sessionRow)
			cart = cartFromRow(userRow)
			if err := s.transfer(ctx, u, source, cart); err != nil {
				return err
			}
			if _, err := u.q.DeleteCart(ctx, sessionRow.ID); err != nil {
				return err
			}
			u.emit(events.CartDeletedEvent{CartID: source.ID, Timestamp: s.now()})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if scope.Session != nil {
		scope.Session.Forget(key)
	}

	s.logger.Debug("resolved user cart",
		"cart_id", cart.ID,
		"user_id", userID,
		"instance", instance,
		"merged_session", guestSession != "",
	)
	return cart, nil
}

func (s *cartService) resolveGuest(ctx context.Context, scope *domain.Scope, instance string) (*domain.Cart, error) {
	if scope.Session == nil || scope.Session.ID() == "" {
		return nil, domain.ErrNoSession
	}
	session := scope.Session.ID()

	row, found, err := s.findActive(ctx, s.repo, nil, &session, instance)
	if err != nil {
		return nil, err
	}

	var cart *domain.Cart
	switch {
	case found:
		cart = cartFromRow(row)
	case s.saveOnDemand:
		cart = unsavedCart(nil, &session, instance)
	default:
		err := s.inTx(ctx, func(u *unitOfWork) error {
			row, err := s.insertCart(ctx, u, nil, &session, instance)
			if err != nil {
				return err
			}
			cart = cartFromRow(row)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	// Remembered so the cart can be found again after the session id
	// rotates on login.
	scope.Session.Put(domain.SessionKey(instance), session)
	return cart, nil
}

// findActive looks up the active cart of a user or, if userID is nil, of a
// session.
func (s *cartService) findActive(ctx context.Context, q repository.Querier, userID, session *string, instance string) (repository.Cart, bool, error) {
	var (
		row repository.Cart
		err error
	)
	switch {
	case userID != nil:
		row, err = q.GetActiveCartByUser(ctx, repository.GetActiveCartByUserParams{
			UserID: *userID,
			Name:   instance,
		})
	case session != nil:
		row, err = q.GetActiveCartBySession(ctx, repository.GetActiveCartBySessionParams{
			Session: *session,
			Name:    instance,
		})
	default:
		return row, false, nil
	}

	if repository.IsNoRows(err) {
		return row, false, nil
	}
	if err != nil {
		return row, false, err
	}
	return row, true, nil
}

// insertCart creates an active cart. Losing the race against a concurrent
// insert for the same owner and instance yields ErrCartConflict.
func (s *cartService) insertCart(ctx context.Context, u *unitOfWork, userID, session *string, instance string) (repository.Cart, error) {
	row, err := u.q.CreateCart(ctx, repository.CreateCartParams{
		UserID:  pgOptionalText(userID),
		Session: pgOptionalText(session),
		Name:    instance,
	})
	if repository.IsNoRows(err) || repository.IsUniqueViolation(err) {
		return row, domain.ErrCartConflict
	}
	if err != nil {
		return row, err
	}

	created := cartFromRow(row)
	u.emit(events.CartCreatedEvent{
		CartID:    created.ID,
		UserID:    ownerString(userID),
		Guest:     userID == nil,
		Instance:  instance,
		Timestamp: s.now(),
	})
	return row, nil
}

func unsavedCart(userID, session *string, instance string) *domain.Cart {
	return &domain.Cart{
		UserID:     userID,
		Session:    session,
		Name:       instance,
		Status:     domain.CartStatusActive,
		TotalPrice: decimal.Zero,
	}
}
