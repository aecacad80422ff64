package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/alfredharley/eflight-final-demo/internal/domain/order"
	"github.com/alfredharley/eflight-final-demo/internal/orderjson"
	"github.com/alfredharley/eflight-final-demo/internal/seed"
	"github.com/alfredharley/eflight-final-demo/internal/storage"
	"github.com/alfredharley/eflight-final-demo/pkg/health"
	"github.com/alfredharley/eflight-final-demo/pkg/httpmiddleware"
)

// Run opens the order store, serves the probe endpoints and blocks until ctx
// is cancelled, then drains and shuts down.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	backend, err := storage.Open(ctx, lg, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "open store")
	}
	defer backend.Close()

	store, err := storage.Instrument(backend.Store, backend.Kind, m.MeterProvider(), m.TracerProvider())
	if err != nil {
		return errors.Wrap(err, "instrument store")
	}
	lg.Info("Order store ready", zap.String("backend", string(backend.Kind)))

	if cfg.Seed.File != "" {
		if err := seedStore(ctx, lg, store, cfg.Seed); err != nil {
			return errors.Wrap(err, "seed")
		}
	}

	healthSvc := health.New()
	healthSvc.AddReadinessCheck(string(backend.Kind), cfg.Health.PingTimeout, backend.Ping)
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(cfg.Health.MaxGoroutines))
	healthSvc.Start(ctx, cfg.Health.Interval)
	healthSvc.SetReady(true)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: otelhttp.NewHandler(httpmiddleware.Wrap(mux,
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Recovery(),
			httpmiddleware.LogRequests(),
		), "order-store",
			otelhttp.WithMeterProvider(m.MeterProvider()),
			otelhttp.WithTracerProvider(m.TracerProvider()),
		),
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()

		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

func seedStore(ctx context.Context, lg *zap.Logger, store order.Store, cfg SeedConfig) error {
	f, err := orderjson.Open(cfg.File)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	start := time.Now()
	res, err := seed.Import(ctx, lg, store, f, seed.Options{Workers: cfg.Workers, MarkPaid: cfg.MarkPaid})
	if err != nil {
		return err
	}
	lg.Info("Seeded orders",
		zap.String("file", cfg.File),
		zap.Int64("created", res.Created),
		zap.Int64("skipped", res.Skipped),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}
