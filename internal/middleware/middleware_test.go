package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/dbcart/internal/cookie"
	"github.com/dukerupert/dbcart/internal/domain"
)

func newScopeMiddleware() echo.MiddlewareFunc {
	return CartScope(ScopeConfig{
		Cookies:       cookie.NewConfig("", false, time.Hour),
		SessionCookie: "cart_session",
		NewSessionID:  func() (string, error) { return "generated", nil },
	})
}

// newEcho mounts h on every path behind mws.
func newEcho(h echo.HandlerFunc, mws ...echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	e.Use(mws...)
	e.Any("/*", h)
	return e
}

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestCartScope_Guest(t *testing.T) {
	var scope *domain.Scope
	e := newEcho(func(c echo.Context) error {
		scope = domain.ScopeFromContext(c.Request().Context())
		scope.Session.Put("cart_default", scope.Session.ID())
		return c.NoContent(http.StatusNoContent)
	}, newScopeMiddleware())

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/carts/default", nil))

	require.NotNil(t, scope)
	_, ok := scope.UserID()
	assert.False(t, ok)
	assert.Equal(t, "generated", scope.Session.ID())

	cookies := map[string]string{}
	for _, c := range rec.Result().Cookies() {
		cookies[c.Name] = c.Value
	}
	assert.Equal(t, "generated", cookies["cart_session"])
	assert.Equal(t, "generated", cookies["cart_session_cart_default"])
}

func TestCartScope_CookiesSurviveErrorResponses(t *testing.T) {
	e := newEcho(func(c echo.Context) error {
		scope := domain.ScopeFromContext(c.Request().Context())
		scope.Session.Put("cart_default", scope.Session.ID())
		return echo.NewHTTPError(http.StatusConflict, "busy")
	}, newScopeMiddleware())

	rec := serve(e, httptest.NewRequest(http.MethodPost, "/carts/default/items", nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
	names := []string{}
	for _, c := range rec.Result().Cookies() {
		names = append(names, c.Name)
	}
	assert.ElementsMatch(t, []string{"cart_session", "cart_session_cart_default"}, names)
}

func TestCartScope_UserHeader(t *testing.T) {
	var scope *domain.Scope
	e := newEcho(func(c echo.Context) error {
		scope = domain.ScopeFromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	}, newScopeMiddleware())

	req := httptest.NewRequest(http.MethodGet, "/carts/default", nil)
	req.Header.Set("X-User-ID", " 42 ")
	req.AddCookie(&http.Cookie{Name: "cart_session", Value: "existing"})
	rec := serve(e, req)

	require.NotNil(t, scope)
	userID, ok := scope.UserID()
	assert.True(t, ok)
	assert.Equal(t, "42", userID)
	assert.Equal(t, "existing", scope.Session.ID())
	assert.Empty(t, rec.Result().Cookies())
}

func TestCartScope_RejectsOversizedUserID(t *testing.T) {
	called := false
	next := func(c echo.Context) error {
		called = true
		return nil
	}

	req := httptest.NewRequest(http.MethodGet, "/carts/default", nil)
	req.Header.Set("X-User-ID", strings.Repeat("x", 300))
	c := echo.New().NewContext(req, httptest.NewRecorder())

	err := newScopeMiddleware()(next)(c)

	assert.False(t, called)
	assert.True(t, domain.IsCode(err, domain.EINVALID))
}

func TestRequestID(t *testing.T) {
	var got string
	e := newEcho(func(c echo.Context) error {
		got = GetRequestID(c.Request())
		return c.NoContent(http.StatusOK)
	}, RequestID)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	rec := serve(e, req)
	assert.Equal(t, "req-1", got)
	assert.Equal(t, "req-1", rec.Header().Get(RequestIDHeader))

	serve(e, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, got)
	assert.NotEqual(t, "req-1", got)
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/healthz", "/healthz"},
		{"/carts/default", "/carts/:instance"},
		{"/carts/wishlist/items", "/carts/:instance/items"},
		{"/carts/default/items/sku-123", "/carts/:instance/items/:product"},
		{"/carts/default/checkout", "/carts/:instance/checkout"},
		{"/carts/a/b/c/d", "/carts/*"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizePath(tt.path))
		})
	}
}

func TestMetricsMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg, reg)

	e := newEcho(func(c echo.Context) error {
		return c.NoContent(http.StatusCreated)
	}, m.Middleware)
	serve(e, httptest.NewRequest(http.MethodPost, "/carts/default/items", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("POST", "/carts/:instance/items", "201")))
}

func TestMetricsMiddleware_RecordsErrorStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg, reg)

	e := newEcho(func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "Cart item not found")
	}, m.Middleware)
	rec := serve(e, httptest.NewRequest(http.MethodDelete, "/carts/default/items/sku-9", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	path := "/carts/:instance/items/:product"
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("DELETE", path, "404")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("DELETE", path, "200")))
}

func TestWithRequestLogger_RecordsErrorStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	var scoped *slog.Logger
	e := newEcho(func(c echo.Context) error {
		scoped = GetLogger(c.Request().Context())
		return echo.NewHTTPError(http.StatusConflict, "Cart is not active")
	}, RequestID, newScopeMiddleware(), WithRequestLogger(logger))

	req := httptest.NewRequest(http.MethodPost, "/carts/default/checkout", nil)
	req.Header.Set(RequestIDHeader, "req-7")
	req.Header.Set("X-User-ID", "42")
	rec := serve(e, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.NotSame(t, slog.Default(), scoped)
	out := buf.String()
	assert.Contains(t, out, "request handled")
	assert.Contains(t, out, "status=409")
	assert.Contains(t, out, "request_id=req-7")
	assert.Contains(t, out, "user_id=42")
}
