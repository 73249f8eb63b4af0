package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/dukerupert/dbcart/internal/cookie"
	"github.com/dukerupert/dbcart/internal/domain"
)

// DefaultUserIDHeader carries the authenticated user id set by the
// upstream auth proxy.
const DefaultUserIDHeader = "X-User-ID"

const maxUserIDLength = 255

// ScopeConfig configures CartScope.
type ScopeConfig struct {
	Cookies       *cookie.Config
	SessionCookie string
	UserIDHeader  string

	// NewSessionID issues ids for requests without a session cookie.
	NewSessionID func() (string, error)
}

// CartScope attaches a domain.Scope to every request. The session comes from
// cookies and the identity from a trusted header. Session changes are
// written back as cookies right before the response header is sent.
func CartScope(config ScopeConfig) echo.MiddlewareFunc {
	if config.UserIDHeader == "" {
		config.UserIDHeader = DefaultUserIDHeader
	}
	if config.Cookies == nil {
		config.Cookies = &cookie.Config{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			const op = "middleware.cart_scope"
			r := c.Request()

			store, err := cookie.Load(r, config.Cookies, config.SessionCookie, config.NewSessionID)
			if err != nil {
				return domain.Internal(err, op, "failed to load session")
			}

			var identity domain.IdentityProvider = domain.Guest{}
			if userID := strings.TrimSpace(r.Header.Get(config.UserIDHeader)); userID != "" {
				if len(userID) > maxUserIDLength {
					return domain.Invalid(op, "Invalid user id")
				}
				identity = domain.StaticUser(userID)
			}

			scope := domain.NewScope(identity, store)
			c.SetRequest(r.WithContext(domain.NewContextWithScope(r.Context(), scope)))

			res := c.Response()
			flushed := false
			flush := func() {
				if !flushed {
					flushed = true
					store.Flush(res.Writer)
				}
			}
			res.Before(flush)

			err = next(c)
			if !res.Committed {
				flush()
			}
			return err
		}
	}
}
