// Package memory implements order.Store in process memory. It is used when
// no database is configured; data lives for the lifetime of the process.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alfredharley/eflight-final-demo/internal/domain/order"
)

var _ order.Store = (*OrderStore)(nil)

type itemRow struct {
	ref  string
	item order.LineItem
}

// OrderStore implements order.Store with slices guarded by a mutex. Each
// operation runs under the lock, so CreateOrder is atomic with respect to
// every other operation.
type OrderStore struct {
	lg  *zap.Logger
	now func() time.Time

	mu     sync.RWMutex
	orders []order.Order // insertion order
	byRef  map[string]int
	items  []itemRow
}

// Option configures an OrderStore.
type Option func(*OrderStore)

// WithClock overrides the clock used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *OrderStore) { s.now = now }
}

// NewOrderStore returns an uninitialized store; call Init before use.
func NewOrderStore(lg *zap.Logger, opts ...Option) *OrderStore {
	s := &OrderStore{lg: lg, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init allocates the containers. Calling it again keeps existing data.
func (s *OrderStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.byRef != nil {
		return nil
	}
	s.byRef = make(map[string]int)
	s.lg.Info("Using in-memory order store (set DATABASE_URL to use PostgreSQL)")
	return nil
}

// CreateOrder appends the order and its lines in a single critical section.
// Nothing is mutated unless the reference is free.
func (s *OrderStore) CreateOrder(_ context.Context, req order.CreateRequest) (string, error) {
	ref := req.Totals.Ref
	items := order.LineItems(req.Lines)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.byRef == nil {
		return "", order.ErrNotInitialized
	}
	if _, ok := s.byRef[ref]; ok {
		return "", &order.DuplicateRefError{Ref: ref}
	}

	s.byRef[ref] = len(s.orders)
	s.orders = append(s.orders, order.Order{
		ID:            uuid.New().String(),
		Ref:           ref,
		Email:         req.Email,
		SubtotalCents: req.Totals.Subtotal,
		TaxCents:      req.Totals.Tax,
		ShippingCents: req.Totals.Shipping,
		TotalCents:    req.Totals.Total,
		Status:        order.StatusPending,
		Gateway:       req.Gateway,
		GatewayRef:    req.GatewayRef,
		// Match the microsecond precision of TIMESTAMPTZ.
		CreatedAt: s.now().UTC().Truncate(time.Microsecond),
	})
	for _, it := range items {
		s.items = append(s.items, itemRow{ref: ref, item: it})
	}
	return ref, nil
}

// MarkPaid sets the order status to paid. Unknown references are ignored.
func (s *OrderStore) MarkPaid(_ context.Context, ref, gateway, gatewayRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.byRef == nil {
		return order.ErrNotInitialized
	}
	i, ok := s.byRef[ref]
	if !ok {
		s.lg.Debug("Mark paid: no matching order", zap.String("order_ref", ref))
		return nil
	}
	o := &s.orders[i]
	o.Status = order.StatusPaid
	o.Gateway = gateway
	o.GatewayRef = gatewayRef
	return nil
}

// ListOrders returns copies of matching orders, newest first. Orders with
// equal CreatedAt keep their insertion order.
func (s *OrderStore) ListOrders(_ context.Context, query string) ([]order.Order, error) {
	q := strings.ToLower(query)

	s.mu.RLock()
	if s.byRef == nil {
		s.mu.RUnlock()
		return nil, order.ErrNotInitialized
	}
	var out []order.Order
	for _, o := range s.orders {
		if strings.Contains(strings.ToLower(o.Ref), q) || strings.Contains(strings.ToLower(o.Email), q) {
			out = append(out, o)
		}
	}
	s.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b order.Order) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if len(out) > order.ListLimit {
		out = out[:order.ListLimit]
	}
	return out, nil
}
