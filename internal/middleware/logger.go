package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/dukerupert/dbcart/internal/domain"
)

// WithRequestLogger creates middleware that injects a request-scoped logger into the context.
// The logger includes request metadata (request_id, method, path) and the user id if the
// request is authenticated. Place it after RequestID and CartScope.
func WithRequestLogger(baseLogger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			r := c.Request()
			requestLogger := baseLogger.With(
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)

			if requestID := GetRequestID(r); requestID != "" {
				requestLogger = requestLogger.With(slog.String("request_id", requestID))
			}

			if scope := domain.ScopeFromContext(r.Context()); scope != nil {
				if userID, ok := scope.UserID(); ok {
					requestLogger = requestLogger.With(slog.String("user_id", userID))
				}
			}

			c.SetRequest(r.WithContext(context.WithValue(r.Context(), LoggerContextKey, requestLogger)))

			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}

			res := c.Response()
			requestLogger.Debug("request handled",
				"status", res.Status,
				"bytes", res.Size,
				"duration", time.Since(start),
			)
			return nil
		}
	}
}

// GetLogger retrieves the request-scoped logger from the context.
// If no logger is found, returns the provided fallback logger.
// If no fallback is provided, returns slog.Default().
func GetLogger(ctx context.Context, fallback ...*slog.Logger) *slog.Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*slog.Logger); ok {
		return logger
	}
	if len(fallback) > 0 && fallback[0] != nil {
		return fallback[0]
	}
	return slog.Default()
}
