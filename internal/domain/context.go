// Package domain provides core cart types, errors, and context helpers.
//
// Context helpers centralize request-scoped data access so handlers and
// services agree on where the cart scope and request id live.
package domain

import "context"

// contextKey is an unexported type for context keys to prevent collisions.
type contextKey int

const (
	// scopeContextKey stores the per-request cart scope.
	scopeContextKey contextKey = iota

	// requestIDContextKey stores the request ID for tracing.
	requestIDContextKey
)

// --- Scope Context Helpers ---

// NewContextWithScope returns a new context with the cart scope attached.
func NewContextWithScope(ctx context.Context, scope *Scope) context.Context {
	return context.WithValue(ctx, scopeContextKey, scope)
}

// ScopeFromContext retrieves the cart scope from context.
// Returns nil if no scope is present.
func ScopeFromContext(ctx context.Context) *Scope {
	scope, _ := ctx.Value(scopeContextKey).(*Scope)
	return scope
}

// MustScope retrieves the cart scope from context, panicking if not present.
// The panic will be caught by recovery middleware in HTTP handlers.
func MustScope(ctx context.Context) *Scope {
	scope := ScopeFromContext(ctx)
	if scope == nil {
		panic("cart scope required in context but not found")
	}
	return scope
}

// --- Request ID Context Helpers ---

// NewContextWithRequestID returns a new context with the request ID attached.
func NewContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, requestID)
}

// RequestIDFromContext retrieves the request ID from context.
// Returns empty string if no request ID is present.
func RequestIDFromContext(ctx context.Context) string {
	requestID, _ := ctx.Value(requestIDContextKey).(string)
	return requestID
}

// IsAuthenticated returns true if the scope in context has a user.
func IsAuthenticated(ctx context.Context) bool {
	scope := ScopeFromContext(ctx)
	if scope == nil {
		return false
	}
	_, ok := scope.UserID()
	return ok
}
