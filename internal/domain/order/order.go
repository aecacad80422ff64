package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ListLimit is the maximum number of orders returned by Store.ListOrders.
const ListLimit = 200

// Status is the payment state of an order.
type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
)

// Order is a persisted order header. Line items are not loaded with it.
type Order struct {
	// ID is the storage-generated identifier, distinct from Ref.
	ID            string
	Ref           string
	Email         string
	SubtotalCents int64
	TaxCents      int64
	ShippingCents int64
	TotalCents    int64
	Status        Status
	// Gateway and GatewayRef are empty when absent.
	Gateway    string
	GatewayRef string
	CreatedAt  time.Time
}

// LineItem is a stored order line with its price in minor currency units.
type LineItem struct {
	SKU            string
	Title          string
	UnitPriceCents int64
	Qty            int
}

// Line is an order line as supplied by the caller, priced in major units.
type Line struct {
	SKU   string
	Title string
	Price decimal.Decimal
	Qty   int
}

// Totals carries the pre-assigned order reference and pre-computed amounts
// in minor currency units. Total is expected to equal Subtotal+Tax+Shipping.
type Totals struct {
	Ref      string
	Subtotal int64
	Tax      int64
	Shipping int64
	Total    int64
}

// CreateRequest holds the input for Store.CreateOrder.
type CreateRequest struct {
	Email      string
	Lines      []Line
	Totals     Totals
	Gateway    string
	GatewayRef string
}

// Store persists orders and their line items.
//
// Init must be called before any other method. CreateOrder is atomic: the
// order and all of its lines become visible together or not at all. MarkPaid
// on an unknown reference is not an error. ListOrders matches query as a
// case-insensitive substring of the reference or the email, newest first,
// returning at most ListLimit orders.
type Store interface {
	Init(ctx context.Context) error
	CreateOrder(ctx context.Context, req CreateRequest) (string, error)
	MarkPaid(ctx context.Context, ref, gateway, gatewayRef string) error
	ListOrders(ctx context.Context, query string) ([]Order, error)
}
