// Package seed bulk-loads orders into an order.Store.
package seed

import (
	"context"
	"io"
	"sync/atomic"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/alfredharley/eflight-final-demo/internal/domain/order"
	"github.com/alfredharley/eflight-final-demo/internal/orderjson"
)

// Options controls an import.
type Options struct {
	// Workers bounds concurrent CreateOrder calls. Values below 1 mean 1.
	Workers int
	// MarkPaid marks every created order paid using its gateway fields.
	MarkPaid bool
}

// Result summarizes an import.
type Result struct {
	Created int64
	Skipped int64
}

// Import decodes create requests from r and stores them. Orders whose
// reference already exists are skipped; any other failure cancels the import.
func Import(ctx context.Context, lg *zap.Logger, store order.Store, r io.Reader, opts Options) (Result, error) {
	if opts.Workers < 1 {
		opts.Workers = 1
	}

	var created, skipped atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)

	decodeErr := orderjson.Decode(r, func(req order.CreateRequest) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		g.Go(func() error {
			ref, err := store.CreateOrder(ctx, req)
			if errors.Is(err, order.ErrDuplicateRef) {
				lg.Debug("Skipping existing order", zap.String("order_ref", req.Totals.Ref))
				skipped.Add(1)
				return nil
			}
			if err != nil {
				return errors.Wrapf(err, "create order %q", req.Totals.Ref)
			}
			if opts.MarkPaid {
				if err := store.MarkPaid(ctx, ref, req.Gateway, req.GatewayRef); err != nil {
					return errors.Wrapf(err, "mark order %q paid", ref)
				}
			}
			created.Add(1)
			return nil
		})
		return nil
	})

	// Worker errors take precedence: they cancel ctx, which in turn aborts
	// decoding with a less useful context error.
	if err := g.Wait(); err != nil {
		return Result{Created: created.Load(), Skipped: skipped.Load()}, err
	}
	res := Result{Created: created.Load(), Skipped: skipped.Load()}
	if decodeErr != nil {
		return res, errors.Wrap(decodeErr, "decode")
	}
	return res, nil
}
