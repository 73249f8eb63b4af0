package domain

import "context"

// IdentityProvider reports the authenticated user for the current request.
type IdentityProvider interface {
	// UserID returns the current user id, or false for a guest.
	UserID() (string, bool)
}

// SessionStore is the request's session: a stable id plus string values.
type SessionStore interface {
	// ID returns the current session identifier.
	ID() string
	Get(key string) (string, bool)
	Put(key, value string)
	Forget(key string)
}

// ProductCatalog validates product references before they reach a cart.
type ProductCatalog interface {
	ProductExists(ctx context.Context, productID string) (bool, error)
}

// Scope is the per-request cart context. It carries the request's identity
// and session, and memoizes resolved carts by instance name so repeated
// resolution within one request returns the same cart.
//
// A Scope must not be shared across requests.
type Scope struct {
	Identity IdentityProvider
	Session  SessionStore

	carts map[string]*Cart
}

// NewScope creates a request scope.
func NewScope(identity IdentityProvider, session SessionStore) *Scope {
	return &Scope{
		Identity: identity,
		Session:  session,
		carts:    make(map[string]*Cart),
	}
}

// Cached returns the memoized cart for instance, if any.
func (s *Scope) Cached(instance string) (*Cart, bool) {
	c, ok := s.carts[instance]
	return c, ok
}

// Remember memoizes cart under instance.
func (s *Scope) Remember(instance string, cart *Cart) {
	if s.carts == nil {
		s.carts = make(map[string]*Cart)
	}
	s.carts[instance] = cart
}

// Forget drops the memoized cart for instance.
func (s *Scope) Forget(instance string) {
	delete(s.carts, instance)
}

// UserID returns the authenticated user id, if any.
func (s *Scope) UserID() (string, bool) {
	if s.Identity == nil {
		return "", false
	}
	id, ok := s.Identity.UserID()
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// Guest is an IdentityProvider with no user.
type Guest struct{}

// UserID implements IdentityProvider.
func (Guest) UserID() (string, bool) { return "", false }

// StaticUser is an IdentityProvider that always reports the same user.
type StaticUser string

// UserID implements IdentityProvider.
func (u StaticUser) UserID() (string, bool) { return string(u), u != "" }

// MemorySession is a SessionStore held in memory. It backs background jobs
// and tests; HTTP requests use the cookie-backed store.
type MemorySession struct {
	SessionID string
	Values    map[string]string
}

// NewMemorySession creates an in-memory session with the given id.
func NewMemorySession(id string) *MemorySession {
	return &MemorySession{SessionID: id, Values: make(map[string]string)}
}

func (s *MemorySession) ID() string { return s.SessionID }

func (s *MemorySession) Get(key string) (string, bool) {
	v, ok := s.Values[key]
	return v, ok
}

func (s *MemorySession) Put(key, value string) {
	if s.Values == nil {
		s.Values = make(map[string]string)
	}
	s.Values[key] = value
}

func (s *MemorySession) Forget(key string) { delete(s.Values, key) }
