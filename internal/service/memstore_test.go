package service

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/dukerupert/dbcart/internal/repository"
)

// ============================================================================
// In-memory Querier
// ============================================================================

// memStore implements repository.Querier over maps. It enforces the same
// constraints as the schema: one active cart per owner and instance, one
// line per product, non-negative totals and cascading deletes.
type memStore struct {
	carts map[uuid.UUID]repository.Cart
	lines map[uuid.UUID]repository.CartLine
	seq   map[uuid.UUID]int64
	next  int64
	now   time.Time

	// fail makes the named method return the error.
	fail map[string]error
	// beforeCreateCart runs once at the start of the next CreateCart.
	beforeCreateCart func(m *memStore)
	// concurrent holds carts committed by another request; rollbacks keep them.
	concurrent []repository.Cart
}

func newMemStore() *memStore {
	return &memStore{
		carts: make(map[uuid.UUID]repository.Cart),
		lines: make(map[uuid.UUID]repository.CartLine),
		seq:   make(map[uuid.UUID]int64),
		now:   time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
		fail:  make(map[string]error),
	}
}

type memSnapshot struct {
	carts map[uuid.UUID]repository.Cart
	lines map[uuid.UUID]repository.CartLine
	seq   map[uuid.UUID]int64
}

func (m *memStore) snapshot() memSnapshot {
	s := memSnapshot{
		carts: make(map[uuid.UUID]repository.Cart, len(m.carts)),
		lines: make(map[uuid.UUID]repository.CartLine, len(m.lines)),
		seq:   make(map[uuid.UUID]int64, len(m.seq)),
	}
	for k, v := range m.carts {
		s.carts[k] = v
	}
	for k, v := range m.lines {
		s.lines[k] = v
	}
	for k, v := range m.seq {
		s.seq[k] = v
	}
	return s
}

func (m *memStore) restore(s memSnapshot) {
	m.carts, m.lines, m.seq = s.carts, s.lines, s.seq
	for _, c := range m.concurrent {
		m.carts[key(c.ID)] = c
	}
}

// seedConcurrent inserts a cart as if another request had committed it.
func (m *memStore) seedConcurrent(userID, session, name string) repository.Cart {
	c := m.seedCart(userID, session, name)
	m.concurrent = append(m.concurrent, c)
	return c
}

func (m *memStore) stamp() pgtype.Timestamptz {
	m.now = m.now.Add(time.Second)
	return pgtype.Timestamptz{Time: m.now, Valid: true}
}

func (m *memStore) err(method string) error {
	return m.fail[method]
}

func key(id pgtype.UUID) uuid.UUID { return uuid.UUID(id.Bytes) }

func newID() pgtype.UUID { return pgtype.UUID{Bytes: uuid.New(), Valid: true} }

func checkViolation() error { return &pgconn.PgError{Code: "23514"} }

func uniqueViolationErr() error { return &pgconn.PgError{Code: "23505"} }

func (m *memStore) activeOwnerTaken(userID, session pgtype.Text, name string, except uuid.UUID) bool {
	for id, c := range m.carts {
		if id == except || c.Status != "active" || c.Name != name {
			continue
		}
		if userID.Valid && c.UserID.Valid && c.UserID.String == userID.String {
			return true
		}
		if session.Valid && c.Session.Valid && c.Session.String == session.String {
			return true
		}
	}
	return false
}

func (m *memStore) sortedLines(filter func(repository.CartLine) bool) []repository.CartLine {
	var out []repository.CartLine
	for _, l := range m.lines {
		if filter(l) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return m.seq[key(out[i].ID)] < m.seq[key(out[j].ID)]
	})
	return out
}

func (m *memStore) deleteLinesOf(cartID uuid.UUID) int64 {
	var n int64
	for id, l := range m.lines {
		if key(l.CartID) == cartID {
			delete(m.lines, id)
			delete(m.seq, id)
			n++
		}
	}
	return n
}

func (m *memStore) AdjustCartTotals(ctx context.Context, arg repository.AdjustCartTotalsParams) (repository.Cart, error) {
	if err := m.err("AdjustCartTotals"); err != nil {
		return repository.Cart{}, err
	}
	c, ok := m.carts[key(arg.ID)]
	if !ok {
		return repository.Cart{}, pgx.ErrNoRows
	}
	total := c.TotalPrice.Add(arg.PriceDelta)
	count := c.ItemCount + arg.CountDelta
	if total.IsNegative() || count < 0 {
		return repository.Cart{}, checkViolation()
	}
	c.TotalPrice = total
	c.ItemCount = count
	c.UpdatedAt = m.stamp()
	m.carts[key(arg.ID)] = c
	return c, nil
}

func (m *memStore) CreateCart(ctx context.Context, arg repository.CreateCartParams) (repository.Cart, error) {
	if hook := m.beforeCreateCart; hook != nil {
		m.beforeCreateCart = nil
		hook(m)
	}
	if err := m.err("CreateCart"); err != nil {
		return repository.Cart{}, err
	}
	if arg.UserID.Valid && arg.Session.Valid {
		return repository.Cart{}, checkViolation()
	}
	if m.activeOwnerTaken(arg.UserID, arg.Session, arg.Name, uuid.Nil) {
		// ON CONFLICT DO NOTHING returns no row.
		return repository.Cart{}, pgx.ErrNoRows
	}
	ts := m.stamp()
	c := repository.Cart{
		ID:         newID(),
		UserID:     arg.UserID,
		Session:    arg.Session,
		Name:       arg.Name,
		Status:     "active",
		TotalPrice: decimal.Zero,
		CreatedAt:  ts,
		UpdatedAt:  ts,
	}
	m.carts[key(c.ID)] = c
	return c, nil
}

func (m *memStore) DeleteCart(ctx context.Context, id pgtype.UUID) (int64, error) {
	if err := m.err("DeleteCart"); err != nil {
		return 0, err
	}
	if _, ok := m.carts[key(id)]; !ok {
		return 0, nil
	}
	delete(m.carts, key(id))
	m.deleteLinesOf(key(id))
	return 1, nil
}

func (m *memStore) DeleteCartLine(ctx context.Context, id pgtype.UUID) (int64, error) {
	if err := m.err("DeleteCartLine"); err != nil {
		return 0, err
	}
	if _, ok := m.lines[key(id)]; !ok {
		return 0, nil
	}
	delete(m.lines, key(id))
	delete(m.seq, key(id))
	return 1, nil
}

func (m *memStore) DeleteCartLines(ctx context.Context, cartID pgtype.UUID) (int64, error) {
	if err := m.err("DeleteCartLines"); err != nil {
		return 0, err
	}
	return m.deleteLinesOf(key(cartID)), nil
}

func (m *memStore) DeleteExpiredCarts(ctx context.Context) (int64, error) {
	if err := m.err("DeleteExpiredCarts"); err != nil {
		return 0, err
	}
	var n int64
	for id, c := range m.carts {
		if c.Status == "expired" {
			delete(m.carts, id)
			m.deleteLinesOf(id)
			n++
		}
	}
	return n, nil
}

func (m *memStore) ExpireSessionCarts(ctx context.Context, updatedBefore pgtype.Timestamptz) (int64, error) {
	if err := m.err("ExpireSessionCarts"); err != nil {
		return 0, err
	}
	var n int64
	for id, c := range m.carts {
		if c.Status == "active" && c.Session.Valid && c.Session.String != "" && c.UpdatedAt.Time.Before(updatedBefore.Time) {
			c.Status = "expired"
			c.UpdatedAt = m.stamp()
			m.carts[id] = c
			n++
		}
	}
	return n, nil
}

func (m *memStore) FindCartLine(ctx context.Context, arg repository.FindCartLineParams) (repository.CartLine, error) {
	if err := m.err("FindCartLine"); err != nil {
		return repository.CartLine{}, err
	}
	found := m.sortedLines(func(l repository.CartLine) bool {
		if key(l.CartID) != key(arg.CartID) {
			return false
		}
		if arg.LineID.Valid && key(l.ID) != key(arg.LineID) {
			return false
		}
		if arg.ProductID.Valid && l.ProductID != arg.ProductID.String {
			return false
		}
		return true
	})
	if len(found) == 0 {
		return repository.CartLine{}, pgx.ErrNoRows
	}
	return found[0], nil
}

func (m *memStore) GetActiveCartBySession(ctx context.Context, arg repository.GetActiveCartBySessionParams) (repository.Cart, error) {
	if err := m.err("GetActiveCartBySession"); err != nil {
		return repository.Cart{}, err
	}
	for _, c := range m.carts {
		if c.Status == "active" && c.Name == arg.Name && c.Session.Valid && c.Session.String == arg.Session {
			return c, nil
		}
	}
	return repository.Cart{}, pgx.ErrNoRows
}

func (m *memStore) GetActiveCartByUser(ctx context.Context, arg repository.GetActiveCartByUserParams) (repository.Cart, error) {
	if err := m.err("GetActiveCartByUser"); err != nil {
		return repository.Cart{}, err
	}
	for _, c := range m.carts {
		if c.Status == "active" && c.Name == arg.Name && c.UserID.Valid && c.UserID.String == arg.UserID {
			return c, nil
		}
	}
	return repository.Cart{}, pgx.ErrNoRows
}

func (m *memStore) GetCartByID(ctx context.Context, id pgtype.UUID) (repository.Cart, error) {
	if err := m.err("GetCartByID"); err != nil {
		return repository.Cart{}, err
	}
	c, ok := m.carts[key(id)]
	if !ok {
		return repository.Cart{}, pgx.ErrNoRows
	}
	return c, nil
}

func (m *memStore) GetCartLines(ctx context.Context, cartID pgtype.UUID) ([]repository.CartLine, error) {
	if err := m.err("GetCartLines"); err != nil {
		return nil, err
	}
	return m.sortedLines(func(l repository.CartLine) bool {
		return key(l.CartID) == key(cartID)
	}), nil
}

func (m *memStore) GetMovableCartLines(ctx context.Context, arg repository.GetMovableCartLinesParams) ([]repository.CartLine, error) {
	if err := m.err("GetMovableCartLines"); err != nil {
		return nil, err
	}
	held := make(map[string]bool)
	for _, l := range m.lines {
		if key(l.CartID) == key(arg.DestinationID) {
			held[l.ProductID] = true
		}
	}
	return m.sortedLines(func(l repository.CartLine) bool {
		return key(l.CartID) == key(arg.SourceID) && !held[l.ProductID]
	}), nil
}

func (m *memStore) InsertCartLine(ctx context.Context, arg repository.InsertCartLineParams) (repository.CartLine, error) {
	if err := m.err("InsertCartLine"); err != nil {
		return repository.CartLine{}, err
	}
	if _, ok := m.carts[key(arg.CartID)]; !ok {
		return repository.CartLine{}, &pgconn.PgError{Code: "23503"}
	}
	if arg.Quantity <= 0 || arg.UnitPrice.IsNegative() {
		return repository.CartLine{}, checkViolation()
	}
	for _, l := range m.lines {
		if key(l.CartID) == key(arg.CartID) && l.ProductID == arg.ProductID {
			return repository.CartLine{}, pgx.ErrNoRows
		}
	}
	ts := m.stamp()
	l := repository.CartLine{
		ID:        newID(),
		CartID:    arg.CartID,
		ProductID: arg.ProductID,
		Quantity:  arg.Quantity,
		UnitPrice: arg.UnitPrice,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	m.next++
	m.lines[key(l.ID)] = l
	m.seq[key(l.ID)] = m.next
	return l, nil
}

func (m *memStore) MoveCartLines(ctx context.Context, arg repository.MoveCartLinesParams) (int64, error) {
	if err := m.err("MoveCartLines"); err != nil {
		return 0, err
	}
	var n int64
	for _, id := range arg.IDs {
		l, ok := m.lines[key(id)]
		if !ok {
			continue
		}
		l.CartID = arg.CartID
		l.UpdatedAt = m.stamp()
		m.lines[key(id)] = l
		n++
	}
	return n, nil
}

func (m *memStore) ReassignCartToUser(ctx context.Context, arg repository.ReassignCartToUserParams) (repository.Cart, error) {
	if err := m.err("ReassignCartToUser"); err != nil {
		return repository.Cart{}, err
	}
	c, ok := m.carts[key(arg.ID)]
	if !ok || c.Status != "active" {
		return repository.Cart{}, pgx.ErrNoRows
	}
	user := pgtype.Text{String: arg.UserID, Valid: true}
	if m.activeOwnerTaken(user, pgtype.Text{}, c.Name, key(arg.ID)) {
		return repository.Cart{}, uniqueViolationErr()
	}
	c.UserID = user
	c.Session = pgtype.Text{}
	c.UpdatedAt = m.stamp()
	m.carts[key(arg.ID)] = c
	return c, nil
}

func (m *memStore) ResetCartTotals(ctx context.Context, id pgtype.UUID) (repository.Cart, error) {
	if err := m.err("ResetCartTotals"); err != nil {
		return repository.Cart{}, err
	}
	c, ok := m.carts[key(id)]
	if !ok {
		return repository.Cart{}, pgx.ErrNoRows
	}
	c.TotalPrice = decimal.Zero
	c.ItemCount = 0
	c.UpdatedAt = m.stamp()
	m.carts[key(id)] = c
	return c, nil
}

func (m *memStore) UpdateCartLine(ctx context.Context, arg repository.UpdateCartLineParams) (repository.CartLine, error) {
	if err := m.err("UpdateCartLine"); err != nil {
		return repository.CartLine{}, err
	}
	l, ok := m.lines[key(arg.ID)]
	if !ok {
		return repository.CartLine{}, pgx.ErrNoRows
	}
	if arg.Quantity <= 0 || arg.UnitPrice.IsNegative() {
		return repository.CartLine{}, checkViolation()
	}
	l.Quantity = arg.Quantity
	l.UnitPrice = arg.UnitPrice
	l.UpdatedAt = m.stamp()
	m.lines[key(arg.ID)] = l
	return l, nil
}

func (m *memStore) UpdateCartStatus(ctx context.Context, arg repository.UpdateCartStatusParams) (repository.Cart, error) {
	if err := m.err("UpdateCartStatus"); err != nil {
		return repository.Cart{}, err
	}
	c, ok := m.carts[key(arg.ID)]
	if !ok || c.Status != arg.FromStatus {
		return repository.Cart{}, pgx.ErrNoRows
	}
	ts := m.stamp()
	c.Status = arg.Status
	switch arg.Status {
	case "pending":
		c.PlacedAt = ts
	case "complete":
		c.CompletedAt = ts
	}
	c.UpdatedAt = ts
	m.carts[key(arg.ID)] = c
	return c, nil
}

var _ repository.Querier = (*memStore)(nil)

// ============================================================================
// Test helpers
// ============================================================================

// memTransactor runs fn against the store and restores a snapshot on error.
type memTransactor struct {
	store     *memStore
	commits   int
	rollbacks int
}

func (t *memTransactor) InTx(ctx context.Context, fn func(q repository.Querier) error) error {
	snap := t.store.snapshot()
	if err := fn(t.store); err != nil {
		t.store.restore(snap)
		t.rollbacks++
		return err
	}
	t.commits++
	return nil
}

// seedCart inserts an active cart owned by a user or a session.
func (m *memStore) seedCart(userID, session, name string) repository.Cart {
	c, err := m.CreateCart(context.Background(), repository.CreateCartParams{
		UserID:  pgtype.Text{String: userID, Valid: userID != ""},
		Session: pgtype.Text{String: session, Valid: session != ""},
		Name:    name,
	})
	if err != nil {
		panic(err)
	}
	return c
}

// linesOf returns the stored lines of a cart.
func (m *memStore) linesOf(id uuid.UUID) []repository.CartLine {
	return m.sortedLines(func(l repository.CartLine) bool {
		return key(l.CartID) == id
	})
}

// row returns the stored cart.
func (m *memStore) row(id uuid.UUID) (repository.Cart, bool) {
	c, ok := m.carts[id]
	return c, ok
}

type stubCatalog map[string]bool

func (c stubCatalog) ProductExists(ctx context.Context, productID string) (bool, error) {
	return c[productID], nil
}
