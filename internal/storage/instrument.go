package storage

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/alfredharley/eflight-final-demo/internal/domain/order"
)

const instrumentationName = "github.com/alfredharley/eflight-final-demo/internal/storage"

var _ order.Store = (*Instrumented)(nil)

// Instrumented wraps an order.Store with a span and metrics per call.
type Instrumented struct {
	next     order.Store
	backend  attribute.KeyValue
	tracer   trace.Tracer
	calls    metric.Int64Counter
	duration metric.Float64Histogram
}

// Instrument wraps next, recording telemetry under the given backend kind.
func Instrument(next order.Store, kind Kind, mp metric.MeterProvider, tp trace.TracerProvider) (*Instrumented, error) {
	meter := mp.Meter(instrumentationName)

	calls, err := meter.Int64Counter("orders.store.calls",
		metric.WithDescription("Order store operations by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "calls counter")
	}
	duration, err := meter.Float64Histogram("orders.store.duration",
		metric.WithDescription("Order store operation latency"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "duration histogram")
	}

	return &Instrumented{
		next:     next,
		backend:  attribute.String("backend", string(kind)),
		tracer:   tp.Tracer(instrumentationName),
		calls:    calls,
		duration: duration,
	}, nil
}

func (s *Instrumented) observe(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "OrderStore."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append(attrs, s.backend)...),
	)
	return ctx, func(err error) {
		defer span.End()

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		set := metric.WithAttributes(
			attribute.String("op", op),
			s.backend,
			attribute.Bool("error", err != nil),
		)
		s.calls.Add(ctx, 1, set)
		s.duration.Record(ctx, time.Since(start).Seconds(), set)
	}
}

func (s *Instrumented) Init(ctx context.Context) (err error) {
	ctx, done := s.observe(ctx, "Init")
	defer func() { done(err) }()
	return s.next.Init(ctx)
}

func (s *Instrumented) CreateOrder(ctx context.Context, req order.CreateRequest) (_ string, err error) {
	ctx, done := s.observe(ctx, "CreateOrder",
		attribute.String("order.ref", req.Totals.Ref),
		attribute.Int("order.lines", len(req.Lines)),
	)
	defer func() { done(err) }()
	return s.next.CreateOrder(ctx, req)
}

func (s *Instrumented) MarkPaid(ctx context.Context, ref, gateway, gatewayRef string) (err error) {
	ctx, done := s.observe(ctx, "MarkPaid",
		attribute.String("order.ref", ref),
		attribute.String("order.gateway", gateway),
	)
	defer func() { done(err) }()
	return s.next.MarkPaid(ctx, ref, gateway, gatewayRef)
}

func (s *Instrumented) ListOrders(ctx context.Context, query string) (_ []order.Order, err error) {
	ctx, done := s.observe(ctx, "ListOrders")
	defer func() { done(err) }()
	return s.next.ListOrders(ctx, query)
}
