package postgres

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/alfredharley/eflight-final-demo/internal/domain/order"
)

const (
	insertOrderSQL = `INSERT INTO orders (order_ref, email, subtotal_cents, tax_cents, shipping_cents, total_cents, status, gateway, gateway_ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	insertItemSQL = `INSERT INTO order_items (order_ref, sku, title, unit_price_cents, qty)
		VALUES ($1, $2, $3, $4, $5)`

	markPaidSQL = `UPDATE orders SET status = $2, gateway = $3, gateway_ref = $4 WHERE order_ref = $1`

	listOrdersSQL = `SELECT id::text, order_ref, email, subtotal_cents, tax_cents, shipping_cents, total_cents,
			status, gateway, gateway_ref, created_at
		FROM orders
		WHERE order_ref ILIKE $1 OR email ILIKE $1
		ORDER BY created_at DESC
		LIMIT $2`
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

var _ order.Store = (*OrderStore)(nil)

// OrderStore implements order.Store backed by PostgreSQL.
type OrderStore struct {
	pool  *pgxpool.Pool
	lg    *zap.Logger
	ready atomic.Bool
}

// NewOrderStore returns an OrderStore that uses the given pool. Init must be
// called before use.
func NewOrderStore(pool *pgxpool.Pool, lg *zap.Logger) *OrderStore {
	return &OrderStore{pool: pool, lg: lg}
}

// Init ensures the schema exists. It is safe to call more than once.
func (s *OrderStore) Init(ctx context.Context) error {
	if err := RunMigrations(ctx, s.pool); err != nil {
		return err
	}
	s.ready.Store(true)
	s.lg.Info("PostgreSQL order store ready, schema ensured")
	return nil
}

// CreateOrder inserts the order and its lines in one transaction. On any
// failure the transaction is rolled back and the connection returns to the
// pool before the error is reported.
func (s *OrderStore) CreateOrder(ctx context.Context, req order.CreateRequest) (string, error) {
	if !s.ready.Load() {
		return "", order.ErrNotInitialized
	}

	ref := req.Totals.Ref
	items := order.LineItems(req.Lines)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin create order %q: %w", ref, err)
	}
	// Rollback after a successful Commit is a no-op returning ErrTxClosed.
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			s.lg.Warn("Rollback failed", zap.String("order_ref", ref), zap.Error(err))
		}
	}()

	_, err = tx.Exec(ctx, insertOrderSQL,
		ref, req.Email,
		req.Totals.Subtotal, req.Totals.Tax, req.Totals.Shipping, req.Totals.Total,
		string(order.StatusPending), nullable(req.Gateway), nullable(req.GatewayRef),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return "", &order.DuplicateRefError{Ref: ref, Err: err}
		}
		return "", fmt.Errorf("inserting order %q: %w", ref, err)
	}

	for i, it := range items {
		if _, err := tx.Exec(ctx, insertItemSQL, ref, it.SKU, it.Title, it.UnitPriceCents, it.Qty); err != nil {
			return "", fmt.Errorf("inserting item %d of order %q: %w", i, ref, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("committing order %q: %w", ref, err)
	}
	return ref, nil
}

// MarkPaid sets the order status to paid. An unknown reference updates no
// rows and is not an error.
func (s *OrderStore) MarkPaid(ctx context.Context, ref, gateway, gatewayRef string) error {
	if !s.ready.Load() {
		return order.ErrNotInitialized
	}

	tag, err := s.pool.Exec(ctx, markPaidSQL, ref, string(order.StatusPaid), nullable(gateway), nullable(gatewayRef))
	if err != nil {
		return fmt.Errorf("marking order %q paid: %w", ref, err)
	}
	if tag.RowsAffected() == 0 {
		s.lg.Debug("Mark paid: no matching order", zap.String("order_ref", ref))
	}
	return nil
}

// ListOrders returns orders whose reference or email contains query,
// ignoring case, newest first. Order among equal created_at values is
// unspecified.
func (s *OrderStore) ListOrders(ctx context.Context, query string) ([]order.Order, error) {
	if !s.ready.Load() {
		return nil, order.ErrNotInitialized
	}

	pattern := "%" + likeEscaper.Replace(query) + "%"
	rows, err := s.pool.Query(ctx, listOrdersSQL, pattern, order.ListLimit)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return orders, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o                   order.Order
		status              string
		gateway, gatewayRef *string
	)
	err := row.Scan(
		&o.ID, &o.Ref, &o.Email,
		&o.SubtotalCents, &o.TaxCents, &o.ShippingCents, &o.TotalCents,
		&status, &gateway, &gatewayRef, &o.CreatedAt,
	)
	o.Status = order.Status(status)
	if gateway != nil {
		o.Gateway = *gateway
	}
	if gatewayRef != nil {
		o.GatewayRef = *gatewayRef
	}
	o.CreatedAt = o.CreatedAt.UTC()
	return o, err
}

// nullable maps an empty string to SQL NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
