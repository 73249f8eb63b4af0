package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/dukerupert/dbcart/internal/domain"
	"github.com/dukerupert/dbcart/internal/service"
)

// CartHandler handles cart endpoints. Every route resolves the request's
// cart for the :instance path parameter before acting on it.
type CartHandler struct {
	carts service.CartService
}

// NewCartHandler creates a new cart handler
func NewCartHandler(carts service.CartService) *CartHandler {
	return &CartHandler{carts: carts}
}

// Register mounts the cart routes on e.
func (h *CartHandler) Register(e *echo.Echo) {
	g := e.Group("/carts/:instance")
	g.GET("", h.Show)
	g.DELETE("", h.Destroy)
	g.POST("/save", h.Save)
	g.POST("/checkout", h.Checkout)
	g.POST("/complete", h.Complete)

	g.POST("/items", h.AddItem)
	g.DELETE("/items", h.Clear)
	g.PATCH("/items/:product", h.UpdateItem)
	g.DELETE("/items/:product", h.RemoveItem)
}

type addItemRequest struct {
	ProductID string          `json:"product_id" validate:"required,max=255"`
	Quantity  int32           `json:"quantity" validate:"gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price" validate:"gte=0"`
}

type updateItemRequest struct {
	Quantity  *int32           `json:"quantity" validate:"omitempty,gte=0"`
	UnitPrice *decimal.Decimal `json:"unit_price" validate:"omitempty,gte=0"`
}

type cartResponse struct {
	ID          string            `json:"id,omitempty"`
	Instance    string            `json:"instance"`
	UserID      *string           `json:"user_id,omitempty"`
	Status      domain.CartStatus `json:"status"`
	Persisted   bool              `json:"persisted"`
	TotalPrice  decimal.Decimal   `json:"total_price"`
	ItemCount   int64             `json:"item_count"`
	PlacedAt    *time.Time        `json:"placed_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Lines       []lineResponse    `json:"lines"`
}

type lineResponse struct {
	ID        string          `json:"id"`
	ProductID string          `json:"product_id"`
	Quantity  int32           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Price     decimal.Decimal `json:"price"`
}

func newCartResponse(summary *domain.CartSummary) cartResponse {
	cart := summary.Cart
	resp := cartResponse{
		Instance:    cart.Name,
		UserID:      cart.UserID,
		Status:      cart.Status,
		Persisted:   cart.Persisted(),
		TotalPrice:  cart.TotalPrice,
		ItemCount:   cart.ItemCount,
		PlacedAt:    cart.PlacedAt,
		CompletedAt: cart.CompletedAt,
		Lines:       make([]lineResponse, 0, len(summary.Lines)),
	}
	if cart.Persisted() {
		resp.ID = cart.ID.String()
	}
	for _, l := range summary.Lines {
		resp.Lines = append(resp.Lines, lineResponse{
			ID:        l.ID.String(),
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Price:     l.Price(),
		})
	}
	return resp
}

// Show returns the current cart with its lines.
func (h *CartHandler) Show(c echo.Context) error {
	cart, err := h.current(c)
	if err != nil {
		return err
	}
	return h.respond(c, http.StatusOK, cart)
}

// Save persists a cart that save-on-demand mode left unsaved.
func (h *CartHandler) Save(c echo.Context) error {
	cart, err := h.current(c)
	if err != nil {
		return err
	}
	if err := h.carts.Save(c.Request().Context(), cart); err != nil {
		return err
	}
	return h.respond(c, http.StatusOK, cart)
}

// AddItem adds a product to the cart, or increments its quantity.
func (h *CartHandler) AddItem(c echo.Context) error {
	var req addItemRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	cart, err := h.current(c)
	if err != nil {
		return err
	}

	_, err = h.carts.AddItem(c.Request().Context(), cart, domain.AddItemParams{
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		UnitPrice: req.UnitPrice,
	})
	if err != nil {
		return err
	}
	return h.respond(c, http.StatusCreated, cart)
}

// UpdateItem changes the quantity or price of a line. A quantity of zero
// removes it.
func (h *CartHandler) UpdateItem(c echo.Context) error {
	var req updateItemRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if req.Quantity == nil && req.UnitPrice == nil {
		return domain.NewValidationError("handler.cart.update_item", "quantity", "quantity or unit_price is required")
	}

	match, err := lineMatch(c)
	if err != nil {
		return err
	}

	cart, err := h.current(c)
	if err != nil {
		return err
	}

	_, err = h.carts.UpdateItem(c.Request().Context(), cart, match, domain.LineChanges{
		Quantity:  req.Quantity,
		UnitPrice: req.UnitPrice,
	})
	if err != nil {
		return err
	}
	return h.respond(c, http.StatusOK, cart)
}

// RemoveItem deletes a line from the cart.
func (h *CartHandler) RemoveItem(c echo.Context) error {
	match, err := lineMatch(c)
	if err != nil {
		return err
	}
	cart, err := h.current(c)
	if err != nil {
		return err
	}
	if err := h.carts.RemoveItem(c.Request().Context(), cart, match); err != nil {
		return err
	}
	return h.respond(c, http.StatusOK, cart)
}

// Clear removes every line from the cart.
func (h *CartHandler) Clear(c echo.Context) error {
	cart, err := h.current(c)
	if err != nil {
		return err
	}
	if err := h.carts.Clear(c.Request().Context(), cart); err != nil {
		return err
	}
	return h.respond(c, http.StatusOK, cart)
}

// Checkout moves the cart to pending.
func (h *CartHandler) Checkout(c echo.Context) error {
	return h.transition(c, h.carts.Checkout)
}

// Complete moves a pending cart to complete.
func (h *CartHandler) Complete(c echo.Context) error {
	return h.transition(c, h.carts.Complete)
}

// Destroy deletes the cart and its lines. The next request for the same
// instance starts a new cart.
func (h *CartHandler) Destroy(c echo.Context) error {
	cart, err := h.current(c)
	if err != nil {
		return err
	}
	if err := h.carts.Delete(c.Request().Context(), cart); err != nil {
		return err
	}
	if scope := domain.ScopeFromContext(c.Request().Context()); scope != nil {
		scope.Forget(cart.Name)
	}
	return c.NoContent(http.StatusNoContent)
}

// transition applies a status change. The cart leaves the scope's memo
// because it is no longer the instance's active cart.
func (h *CartHandler) transition(c echo.Context, fn func(ctx context.Context, cart *domain.Cart) error) error {
	cart, err := h.current(c)
	if err != nil {
		return err
	}
	if err := fn(c.Request().Context(), cart); err != nil {
		return err
	}
	if scope := domain.ScopeFromContext(c.Request().Context()); scope != nil {
		scope.Forget(cart.Name)
	}
	return h.respond(c, http.StatusOK, cart)
}

func (h *CartHandler) current(c echo.Context) (*domain.Cart, error) {
	ctx := c.Request().Context()
	scope := domain.ScopeFromContext(ctx)
	if scope == nil {
		return nil, domain.Internal(nil, "handler.cart", "cart scope missing from request")
	}
	return h.carts.Current(ctx, scope, c.Param("instance"))
}

func (h *CartHandler) respond(c echo.Context, status int, cart *domain.Cart) error {
	summary, err := h.carts.Summary(c.Request().Context(), cart)
	if err != nil {
		return err
	}
	return c.JSON(status, newCartResponse(summary))
}

// lineMatch selects a line by product id. With ?by=line the path segment
// is read as a line id instead.
func lineMatch(c echo.Context) (domain.LineMatch, error) {
	ref := c.Param("product")
	if c.QueryParam("by") != "line" {
		return domain.MatchProduct(ref), nil
	}
	id, err := uuid.Parse(ref)
	if err != nil {
		return domain.LineMatch{}, domain.NewValidationError("handler.cart.line", "line", "must be a valid UUID")
	}
	return domain.LineMatch{LineID: id}, nil
}

func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return domain.WrapError(err, domain.EINVALID, "handler.bind", "Invalid request body")
	}
	return c.Validate(req)
}
