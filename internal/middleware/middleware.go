// Package middleware holds the echo middleware that sits in front of the
// cart API: request ids, request-scoped logging, HTTP metrics and the
// per-request cart scope.
//
// Middleware that reports on the response calls c.Error for a returned
// error first, so the status it records is the one the client receives.
package middleware

type contextKey string

// LoggerContextKey is the context key for storing the request-scoped logger
const LoggerContextKey contextKey = "logger"
