package orderjson

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alfredharley/eflight-final-demo/internal/domain/order"
)

const sample = `[
  {
    "email": "buyer@example.com",
    "gateway": "stripe",
    "gateway_ref": "pi_123",
    "totals": {"order_ref": "ORD-1", "subtotal": 4310, "tax": 431, "shipping": 500, "total": 5241},
    "lines": [
      {"sku": "SKU-1", "title": "Espresso beans", "price": 19.995, "qty": 2},
      {"sku": "SKU-2", "title": "Filter papers", "price": "3.10", "qty": 1, "note": "ignored"}
    ],
    "extra": {"nested": [1, 2, 3]}
  },
  {
    "email": "second@example.com",
    "gateway": null,
    "totals": {"order_ref": "ORD-2", "subtotal": 100, "tax": 0, "shipping": 0, "total": 100},
    "lines": []
  }
]`

func decodeAll(t *testing.T, r io.Reader) []order.CreateRequest {
	t.Helper()

	var out []order.CreateRequest
	require.NoError(t, Decode(r, func(req order.CreateRequest) error {
		out = append(out, req)
		return nil
	}))
	return out
}

func TestDecode(t *testing.T) {
	reqs := decodeAll(t, strings.NewReader(sample))
	require.Len(t, reqs, 2)

	first := reqs[0]
	assert.Equal(t, "buyer@example.com", first.Email)
	assert.Equal(t, "stripe", first.Gateway)
	assert.Equal(t, "pi_123", first.GatewayRef)
	assert.Equal(t, order.Totals{Ref: "ORD-1", Subtotal: 4310, Tax: 431, Shipping: 500, Total: 5241}, first.Totals)
	require.Len(t, first.Lines, 2)
	assert.Equal(t, "SKU-1", first.Lines[0].SKU)
	assert.Equal(t, "Espresso beans", first.Lines[0].Title)
	assert.True(t, decimal.RequireFromString("19.995").Equal(first.Lines[0].Price))
	assert.Equal(t, 2, first.Lines[0].Qty)
	assert.True(t, decimal.RequireFromString("3.10").Equal(first.Lines[1].Price))

	// The exact decimal survives decoding, so rounding is not float-skewed.
	assert.Equal(t, int64(2000), order.PriceToCents(first.Lines[0].Price))

	second := reqs[1]
	assert.Equal(t, "ORD-2", second.Totals.Ref)
	assert.Empty(t, second.Gateway)
	assert.Empty(t, second.Lines)
}

func TestDecode_CallbackErrorStops(t *testing.T) {
	stop := errors.New("stop")
	calls := 0
	err := Decode(strings.NewReader(sample), func(order.CreateRequest) error {
		calls++
		return stop
	})
	require.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestDecode_Invalid(t *testing.T) {
	for name, input := range map[string]string{
		"not array":   `{"email": "x"}`,
		"bad price":   `[{"lines": [{"price": "abc"}]}]`,
		"bad qty":     `[{"lines": [{"qty": "two"}]}]`,
		"truncated":   `[{"email": "x"`,
		"email type":  `[{"email": 42}]`,
		"line object": `[{"lines": [1]}]`,
	} {
		t.Run(name, func(t *testing.T) {
			err := Decode(strings.NewReader(input), func(order.CreateRequest) error { return nil })
			assert.Error(t, err)
		})
	}
}

func TestEncodeOrders(t *testing.T) {
	created := time.Date(2024, 3, 4, 5, 6, 7, 8000, time.UTC)
	orders := []order.Order{
		{
			ID: "0b6c", Ref: "ORD-1", Email: "a@example.com",
			SubtotalCents: 100, TaxCents: 10, ShippingCents: 5, TotalCents: 115,
			Status: order.StatusPaid, Gateway: "stripe", GatewayRef: "pi_1", CreatedAt: created,
		},
		{ID: "1c7d", Ref: "ORD-2", Email: "b@example.com", Status: order.StatusPending, CreatedAt: created},
	}

	var buf bytes.Buffer
	require.NoError(t, EncodeOrders(&buf, orders))

	var got []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)

	assert.Equal(t, "ORD-1", got[0]["order_ref"])
	assert.Equal(t, "paid", got[0]["status"])
	assert.Equal(t, float64(115), got[0]["total_cents"])
	assert.Equal(t, "stripe", got[0]["gateway"])
	assert.Equal(t, "2024-03-04T05:06:07.000008Z", got[0]["created_at"])

	assert.Nil(t, got[1]["gateway"])
	assert.Nil(t, got[1]["gateway_ref"])
	assert.Contains(t, got[1], "gateway")
}

func TestEncodeOrders_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeOrders(&buf, nil))

	var got []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Empty(t, got)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	plain := filepath.Join(dir, "orders.json")
	require.NoError(t, os.WriteFile(plain, []byte(sample), 0o600))

	compressed := filepath.Join(dir, "orders.json.gz")
	f, err := os.Create(compressed)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(sample))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	for _, path := range []string{plain, compressed} {
		t.Run(filepath.Base(path), func(t *testing.T) {
			r, err := Open(path)
			require.NoError(t, err)
			defer r.Close()

			assert.Len(t, decodeAll(t, r), 2)
		})
	}
}

func TestOpen_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Open(filepath.Join(dir, "missing.json"))
	require.Error(t, err)

	notGzip := filepath.Join(dir, "plain.gz")
	require.NoError(t, os.WriteFile(notGzip, []byte(sample), 0o600))
	_, err = Open(notGzip)
	require.Error(t, err)
}
