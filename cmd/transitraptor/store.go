package main

import (
	"context"
	"io"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/antigravity/transitraptor/internal/transitdata"
)

// openStore opens the transit data source named by --dsn: a
// "postgres://" URL selects PostgresStore, anything else is treated as
// a SQLite file path, mirroring the teacher's single hardcoded Postgres
// DSN generalized to the two backends internal/transitdata ships.
func openStore(ctx context.Context, dsn string) (transitdata.Store, io.Closer, error) {
	if dsn == "" {
		return nil, nil, errors.New("--dsn is required (or set TRANSITRAPTOR_DSN)")
	}

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		config, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return nil, nil, errors.Wrap(err, "parsing postgres dsn")
		}
		pool, err := pgxpool.NewWithConfig(ctx, config)
		if err != nil {
			return nil, nil, errors.Wrap(err, "connecting to postgres")
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, errors.Wrap(err, "pinging postgres")
		}
		return transitdata.NewPostgresStore(pool), poolCloser{pool}, nil
	}

	store, err := transitdata.NewSQLiteStore(dsn)
	if err != nil {
		return nil, nil, errors.Wrap(err, "opening sqlite store")
	}
	return store, store, nil
}

type poolCloser struct {
	pool *pgxpool.Pool
}

func (p poolCloser) Close() error {
	p.pool.Close()
	return nil
}
