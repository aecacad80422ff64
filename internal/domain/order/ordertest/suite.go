// Package ordertest provides a behavioural test suite that every
// order.Store implementation must pass, so the backends stay interchangeable.
package ordertest

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alfredharley/eflight-final-demo/internal/domain/order"
)

// Harness adapts a backend to the suite.
type Harness struct {
	// New returns an initialized, empty store.
	New func(t *testing.T) order.Store
	// Items returns the stored line items of ref in insertion order.
	Items func(t *testing.T, store order.Store, ref string) []order.LineItem
}

// Run executes the suite against the backend described by h.
func Run(t *testing.T, h Harness) {
	t.Run("CreateThenList", func(t *testing.T) { testCreateThenList(t, h) })
	t.Run("StoresLineItemsInOrder", func(t *testing.T) { testStoresLineItems(t, h) })
	t.Run("CreateWithoutLines", func(t *testing.T) { testCreateWithoutLines(t, h) })
	t.Run("DuplicateRef", func(t *testing.T) { testDuplicateRef(t, h) })
	t.Run("ConcurrentDuplicateRef", func(t *testing.T) { testConcurrentDuplicateRef(t, h) })
	t.Run("ConcurrentCreate", func(t *testing.T) { testConcurrentCreate(t, h) })
	t.Run("InitIsIdempotent", func(t *testing.T) { testInitIdempotent(t, h) })
	t.Run("MarkPaidMissing", func(t *testing.T) { testMarkPaidMissing(t, h) })
	t.Run("MarkPaidExisting", func(t *testing.T) { testMarkPaidExisting(t, h) })
	t.Run("ListCaseInsensitive", func(t *testing.T) { testListCaseInsensitive(t, h) })
	t.Run("ListMatchesRefOrEmail", func(t *testing.T) { testListRefOrEmail(t, h) })
	t.Run("ListLiteralMetacharacters", func(t *testing.T) { testListMetacharacters(t, h) })
	t.Run("ListLimitAndOrder", func(t *testing.T) { testListLimitAndOrder(t, h) })
}

// NewRequest returns a valid request for ref with two lines.
func NewRequest(ref, email string) order.CreateRequest {
	return order.CreateRequest{
		Email: email,
		Lines: []order.Line{
			{SKU: "SKU-1", Title: "Espresso beans", Price: decimal.RequireFromString("19.995"), Qty: 2},
			{SKU: "SKU-2", Title: "Filter papers", Price: decimal.RequireFromString("3.10"), Qty: 1},
		},
		Totals: order.Totals{
			Ref:      ref,
			Subtotal: 4310,
			Tax:      431,
			Shipping: 500,
			Total:    5241,
		},
		Gateway:    "stripe",
		GatewayRef: "pi_" + ref,
	}
}

func create(t *testing.T, s order.Store, req order.CreateRequest) {
	t.Helper()

	ref, err := s.CreateOrder(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, req.Totals.Ref, ref)
}

func list(t *testing.T, s order.Store, query string) []order.Order {
	t.Helper()

	orders, err := s.ListOrders(context.Background(), query)
	require.NoError(t, err)
	return orders
}

func refs(orders []order.Order) []string {
	out := make([]string, len(orders))
	for i, o := range orders {
		out[i] = o.Ref
	}
	return out
}

func testCreateThenList(t *testing.T, h Harness) {
	s := h.New(t)
	req := NewRequest("ORD-1001", "alice@example.com")
	create(t, s, req)

	orders := list(t, s, "ORD-1001")
	require.Len(t, orders, 1)

	o := orders[0]
	assert.NotEmpty(t, o.ID)
	assert.Equal(t, "ORD-1001", o.Ref)
	assert.Equal(t, "alice@example.com", o.Email)
	assert.Equal(t, int64(4310), o.SubtotalCents)
	assert.Equal(t, int64(431), o.TaxCents)
	assert.Equal(t, int64(500), o.ShippingCents)
	assert.Equal(t, int64(5241), o.TotalCents)
	assert.Equal(t, order.StatusPending, o.Status)
	assert.Equal(t, "stripe", o.Gateway)
	assert.Equal(t, "pi_ORD-1001", o.GatewayRef)
	assert.False(t, o.CreatedAt.IsZero())
}

func testStoresLineItems(t *testing.T, h Harness) {
	s := h.New(t)
	create(t, s, NewRequest("ORD-1002", "bob@example.com"))

	items := h.Items(t, s, "ORD-1002")
	assert.Equal(t, []order.LineItem{
		{SKU: "SKU-1", Title: "Espresso beans", UnitPriceCents: 2000, Qty: 2},
		{SKU: "SKU-2", Title: "Filter papers", UnitPriceCents: 310, Qty: 1},
	}, items)
}

func testCreateWithoutLines(t *testing.T, h Harness) {
	s := h.New(t)
	req := NewRequest("ORD-1003", "carol@example.com")
	req.Lines = nil
	req.Gateway, req.GatewayRef = "", ""
	create(t, s, req)

	orders := list(t, s, "ORD-1003")
	require.Len(t, orders, 1)
	assert.Empty(t, orders[0].Gateway)
	assert.Empty(t, orders[0].GatewayRef)
	assert.Empty(t, h.Items(t, s, "ORD-1003"))
}

func testDuplicateRef(t *testing.T, h Harness) {
	s := h.New(t)
	create(t, s, NewRequest("ORD-DUP", "first@example.com"))

	second := NewRequest("ORD-DUP", "second@example.com")
	second.Lines = append(second.Lines, order.Line{SKU: "SKU-3", Title: "Extra", Price: decimal.NewFromInt(1), Qty: 1})
	_, err := s.CreateOrder(context.Background(), second)
	require.ErrorIs(t, err, order.ErrDuplicateRef)

	var dup *order.DuplicateRefError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "ORD-DUP", dup.Ref)

	orders := list(t, s, "ORD-DUP")
	require.Len(t, orders, 1)
	assert.Equal(t, "first@example.com", orders[0].Email)
	assert.Len(t, h.Items(t, s, "ORD-DUP"), 2)
}

func testConcurrentDuplicateRef(t *testing.T, h Harness) {
	s := h.New(t)

	const writers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		won  int
		errs []error
	)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CreateOrder(context.Background(), NewRequest("ORD-RACE", fmt.Sprintf("w%d@example.com", i)))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				won++
				return
			}
			errs = append(errs, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, won)
	for _, err := range errs {
		assert.ErrorIs(t, err, order.ErrDuplicateRef)
	}
	assert.Len(t, list(t, s, "ORD-RACE"), 1)
	assert.Len(t, h.Items(t, s, "ORD-RACE"), 2)
}

func testConcurrentCreate(t *testing.T, h Harness) {
	s := h.New(t)

	const n = 20
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = s.CreateOrder(context.Background(), NewRequest(fmt.Sprintf("ORD-C%02d", i), "bulk@example.com"))
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Len(t, list(t, s, "ORD-C"), n)
	for i := range n {
		assert.Len(t, h.Items(t, s, fmt.Sprintf("ORD-C%02d", i)), 2)
	}
}

func testInitIdempotent(t *testing.T, h Harness) {
	s := h.New(t)
	create(t, s, NewRequest("ORD-INIT", "init@example.com"))

	require.NoError(t, s.Init(context.Background()))
	assert.Len(t, list(t, s, "ORD-INIT"), 1)
}

func testMarkPaidMissing(t *testing.T, h Harness) {
	s := h.New(t)

	require.NoError(t, s.MarkPaid(context.Background(), "ORD-NOPE", "stripe", "pi_x"))
	assert.Empty(t, list(t, s, ""))
}

func testMarkPaidExisting(t *testing.T, h Harness) {
	s := h.New(t)
	req := NewRequest("ORD-PAY", "payer@example.com")
	req.Gateway, req.GatewayRef = "", ""
	create(t, s, req)
	create(t, s, NewRequest("ORD-OTHER", "other@example.com"))

	require.NoError(t, s.MarkPaid(context.Background(), "ORD-PAY", "paypal", "PAYID-42"))

	orders := list(t, s, "ORD-PAY")
	require.Len(t, orders, 1)
	assert.Equal(t, order.StatusPaid, orders[0].Status)
	assert.Equal(t, "paypal", orders[0].Gateway)
	assert.Equal(t, "PAYID-42", orders[0].GatewayRef)
	assert.Equal(t, int64(5241), orders[0].TotalCents)

	other := list(t, s, "ORD-OTHER")
	require.Len(t, other, 1)
	assert.Equal(t, order.StatusPending, other[0].Status)
	assert.Equal(t, "stripe", other[0].Gateway)
}

func testListCaseInsensitive(t *testing.T, h Harness) {
	s := h.New(t)
	create(t, s, NewRequest("ord-case", "Buyer@Example.com"))

	for _, q := range []string{"buyer", "BUYER", "example.COM", "ORD-CASE", "Ord-C"} {
		assert.Equal(t, []string{"ord-case"}, refs(list(t, s, q)), "query %q", q)
	}
	assert.Empty(t, list(t, s, "seller"))
}

func testListRefOrEmail(t *testing.T, h Harness) {
	s := h.New(t)
	create(t, s, NewRequest("ORD-2001", "dave@shop.test"))
	create(t, s, NewRequest("ORD-2002", "erin@store.test"))
	create(t, s, NewRequest("SHOP-3001", "frank@mail.test"))

	got := refs(list(t, s, "shop"))
	slices.Sort(got)
	assert.Equal(t, []string{"ORD-2001", "SHOP-3001"}, got)

	assert.Len(t, list(t, s, ""), 3)
	assert.Len(t, list(t, s, ".test"), 3)
	assert.Equal(t, []string{"ORD-2002"}, refs(list(t, s, "erin@")))
}

func testListMetacharacters(t *testing.T, h Harness) {
	s := h.New(t)
	create(t, s, NewRequest("ORD-abc", "plain@example.com"))
	create(t, s, NewRequest("ORD-a_c", "under_score@example.com"))
	create(t, s, NewRequest("ORD-100%", "percent@example.com"))
	create(t, s, NewRequest(`ORD-back\slash`, "slash@example.com"))

	assert.Empty(t, list(t, s, "%%"))
	assert.Equal(t, []string{"ORD-100%"}, refs(list(t, s, "%")))
	assert.Equal(t, []string{"ORD-a_c"}, refs(list(t, s, "a_c")))
	assert.Equal(t, []string{`ORD-back\slash`}, refs(list(t, s, `\`)))

	got := refs(list(t, s, "_"))
	slices.Sort(got)
	assert.Equal(t, []string{"ORD-a_c"}, got)
}

func testListLimitAndOrder(t *testing.T, h Harness) {
	s := h.New(t)

	const n = 500
	for i := range n {
		create(t, s, NewRequest(fmt.Sprintf("LIM-%03d", i), "limit@example.com"))
	}
	create(t, s, NewRequest("UNRELATED", "nobody@elsewhere.test"))

	orders := list(t, s, "limit@")
	require.Len(t, orders, order.ListLimit)
	for i := 1; i < len(orders); i++ {
		assert.False(t, orders[i].CreatedAt.After(orders[i-1].CreatedAt),
			"order %d (%s) is newer than order %d (%s)", i, orders[i].Ref, i-1, orders[i-1].Ref)
	}
	for _, o := range orders {
		assert.True(t, strings.HasPrefix(o.Ref, "LIM-"))
	}
	// The newest order must lead when timestamps are distinct.
	if orders[0].CreatedAt.After(orders[1].CreatedAt) {
		assert.Equal(t, fmt.Sprintf("LIM-%03d", n-1), orders[0].Ref)
	}
}
