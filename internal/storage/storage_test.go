package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"

	"github.com/alfredharley/eflight-final-demo/internal/domain/order"
	"github.com/alfredharley/eflight-final-demo/internal/domain/order/ordertest"
)

func TestOpen_EmptyURLSelectsMemory(t *testing.T) {
	ctx := context.Background()

	for _, url := range []string{"", "   "} {
		b, err := Open(ctx, zaptest.NewLogger(t), url)
		require.NoError(t, err)

		assert.Equal(t, KindMemory, b.Kind)
		assert.NoError(t, b.Ping(ctx))

		// Open hands back an initialized store.
		_, err = b.Store.CreateOrder(ctx, ordertest.NewRequest("ORD-1", "a@example.com"))
		require.NoError(t, err)
		b.Close()
	}
}

func TestOpen_InvalidURL(t *testing.T) {
	_, err := Open(context.Background(), zaptest.NewLogger(t), "postgres://%zz")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create db pool")
}

type failingStore struct {
	order.Store
	err error
}

func (s failingStore) MarkPaid(context.Context, string, string, string) error { return s.err }

type telemetry struct {
	reader *sdkmetric.ManualReader
	spans  *tracetest.SpanRecorder
	mp     *sdkmetric.MeterProvider
	tp     *sdktrace.TracerProvider
}

func newTelemetry() *telemetry {
	reader := sdkmetric.NewManualReader()
	spans := tracetest.NewSpanRecorder()
	return &telemetry{
		reader: reader,
		spans:  spans,
		mp:     sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
		tp:     sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans)),
	}
}

// callCounts sums orders.store.calls by op and error attribute.
func (tm *telemetry) callCounts(t *testing.T) map[string]int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, tm.reader.Collect(context.Background(), &rm))

	out := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "orders.store.calls" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				op, _ := dp.Attributes.Value("op")
				failed, _ := dp.Attributes.Value("error")
				key := op.AsString()
				if failed.AsBool() {
					key += ":error"
				}
				out[key] += dp.Value
			}
		}
	}
	return out
}

func TestInstrument(t *testing.T) {
	ctx := context.Background()
	tm := newTelemetry()

	b, err := Open(ctx, zaptest.NewLogger(t), "")
	require.NoError(t, err)

	s, err := Instrument(b.Store, b.Kind, tm.mp, tm.tp)
	require.NoError(t, err)

	_, err = s.CreateOrder(ctx, ordertest.NewRequest("ORD-1", "a@example.com"))
	require.NoError(t, err)
	_, err = s.CreateOrder(ctx, ordertest.NewRequest("ORD-1", "a@example.com"))
	require.ErrorIs(t, err, order.ErrDuplicateRef)
	require.NoError(t, s.MarkPaid(ctx, "ORD-1", "stripe", "pi_1"))
	orders, err := s.ListOrders(ctx, "ord")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, order.StatusPaid, orders[0].Status)

	assert.Equal(t, map[string]int64{
		"CreateOrder":       1,
		"CreateOrder:error": 1,
		"MarkPaid":          1,
		"ListOrders":        1,
	}, tm.callCounts(t))

	spans := tm.spans.Ended()
	require.Len(t, spans, 4)
	assert.Equal(t, "OrderStore.CreateOrder", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.String("order.ref", "ORD-1"))
	assert.Contains(t, spans[0].Attributes(), attribute.String("backend", "memory"))
}

func TestInstrument_PropagatesErrors(t *testing.T) {
	tm := newTelemetry()
	want := assert.AnError

	s, err := Instrument(failingStore{err: want}, KindPostgres, tm.mp, tm.tp)
	require.NoError(t, err)

	require.ErrorIs(t, s.MarkPaid(context.Background(), "ORD-1", "stripe", "pi_1"), want)
	assert.Equal(t, map[string]int64{"MarkPaid:error": 1}, tm.callCounts(t))

	spans := tm.spans.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, want.Error(), spans[0].Status().Description)
}
