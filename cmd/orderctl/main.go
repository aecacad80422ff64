// Command orderctl operates on the order store directly.
//
//	orderctl [flags] init
//	orderctl [flags] import <file.json[.gz]>
//	orderctl [flags] mark-paid <order-ref> <gateway> <gateway-ref>
//	orderctl [flags] list [query]
//
// Without -database-url or DATABASE_URL the commands run against a fresh
// in-memory store, which is only useful for validating an import file.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/alfredharley/eflight-final-demo/internal/orderjson"
	"github.com/alfredharley/eflight-final-demo/internal/seed"
	"github.com/alfredharley/eflight-final-demo/internal/storage"
)

type options struct {
	databaseURL string
	workers     int
	markPaid    bool
	verbose     bool
}

func main() {
	var opts options
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&opts.workers, "workers", 4, "concurrent inserts for import")
	flag.BoolVar(&opts.markPaid, "mark-paid", false, "mark imported orders paid")
	flag.BoolVar(&opts.verbose, "v", false, "debug logging")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] init|import|mark-paid|list [args]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}

	lg := newLogger(opts.verbose)
	defer func() { _ = lg.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, os.Stdout, opts, flag.Args()); err != nil {
		lg.Error("Failed", zap.Error(err))
		cancel()
		os.Exit(1)
	}
}

func newLogger(verbose bool) *zap.Logger {
	cfg := zap.NewDevelopmentEncoderConfig()
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	return zap.New(zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.Lock(os.Stderr), level))
}

var errUsage = errors.New("usage: init | import <file> | mark-paid <ref> <gateway> <gateway-ref> | list [query]")

func run(ctx context.Context, lg *zap.Logger, out io.Writer, opts options, args []string) error {
	if !validArgs(args) {
		return errUsage
	}

	// Opening the backend runs Init, so "init" needs nothing further.
	b, err := storage.Open(ctx, lg, opts.databaseURL)
	if err != nil {
		return err
	}
	defer b.Close()
	store := b.Store

	switch cmd, rest := args[0], args[1:]; cmd {
	case "init":
		lg.Info("Schema ready", zap.String("backend", string(b.Kind)))
		return nil
	case "import":
		f, err := orderjson.Open(rest[0])
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()

		start := time.Now()
		res, err := seed.Import(ctx, lg, store, f, seed.Options{Workers: opts.workers, MarkPaid: opts.markPaid})
		if err != nil {
			return errors.Wrap(err, "import")
		}
		lg.Info("Imported",
			zap.String("backend", string(b.Kind)),
			zap.Int64("created", res.Created),
			zap.Int64("skipped", res.Skipped),
			zap.Duration("duration", time.Since(start)),
		)
		return nil
	case "mark-paid":
		if err := store.MarkPaid(ctx, rest[0], rest[1], rest[2]); err != nil {
			return errors.Wrap(err, "mark paid")
		}
		return nil
	case "list":
		var query string
		if len(rest) == 1 {
			query = rest[0]
		}
		orders, err := store.ListOrders(ctx, query)
		if err != nil {
			return errors.Wrap(err, "list")
		}
		return orderjson.EncodeOrders(out, orders)
	default:
		return errUsage
	}
}

func validArgs(args []string) bool {
	if len(args) == 0 {
		return false
	}
	n := len(args) - 1
	switch args[0] {
	case "init":
		return n == 0
	case "import":
		return n == 1
	case "mark-paid":
		return n == 3
	case "list":
		return n <= 1
	default:
		return false
	}
}
