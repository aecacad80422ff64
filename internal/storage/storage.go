// Package storage selects and opens the order.Store backend.
package storage

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/alfredharley/eflight-final-demo/internal/domain/order"
	"github.com/alfredharley/eflight-final-demo/internal/storage/memory"
	"github.com/alfredharley/eflight-final-demo/internal/storage/postgres"
)

// Kind names a storage backend.
type Kind string

const (
	KindPostgres Kind = "postgres"
	KindMemory   Kind = "memory"
)

// Backend is an opened, initialized order store.
type Backend struct {
	Kind  Kind
	Store order.Store

	pool *pgxpool.Pool
}

// Open selects the backend once: an empty databaseURL yields the in-memory
// store, anything else a PostgreSQL store on a new connection pool. The
// returned store is already initialized.
func Open(ctx context.Context, lg *zap.Logger, databaseURL string) (*Backend, error) {
	if strings.TrimSpace(databaseURL) == "" {
		s := memory.NewOrderStore(lg.Named("memory"))
		if err := s.Init(ctx); err != nil {
			return nil, errors.Wrap(err, "init memory store")
		}
		return &Backend{Kind: KindMemory, Store: s}, nil
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	s := postgres.NewOrderStore(pool, lg.Named("postgres"))
	if err := s.Init(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "init postgres store")
	}
	return &Backend{Kind: KindPostgres, Store: s, pool: pool}, nil
}

// Ping checks backend connectivity. The memory backend is always reachable.
func (b *Backend) Ping(ctx context.Context) error {
	if b.pool == nil {
		return nil
	}
	return b.pool.Ping(ctx)
}

// Close releases the connection pool, if any.
func (b *Backend) Close() {
	if b.pool != nil {
		b.pool.Close()
	}
}
