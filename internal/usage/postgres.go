package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/af-corp/costrouter/internal/config"
)

// NewPostgresStore builds a Tracker over an existing pool. Schema migrations
// are applied separately with MigratePostgres.
func NewPostgresStore(pool *pgxpool.Pool) *Tracker {
	return &Tracker{db: &postgresBackend{pool: pool}, d: postgresDialect, now: time.Now}
}

// OpenPostgres connects a pool sized by cfg and verifies it with a ping.
func OpenPostgres(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

type postgresBackend struct {
	pool *pgxpool.Pool
}

func (b *postgresBackend) insert(ctx context.Context, records []Record) ([]int64, error) {
	stmt := insertStatement(postgresDialect) + " RETURNING id"
	ids := make([]int64, 0, len(records))

	err := pgx.BeginFunc(ctx, b.pool, func(tx pgx.Tx) error {
		for _, r := range records {
			var id int64
			if err := tx.QueryRow(ctx, stmt, insertArgs(postgresDialect, r)...).Scan(&id); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (b *postgresBackend) query(ctx context.Context, q *query, fn func(rowScanner) error) error {
	rows, err := b.pool.Query(ctx, q.String(), q.args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (b *postgresBackend) queryRow(ctx context.Context, q *query, dest ...any) error {
	return b.pool.QueryRow(ctx, q.String(), q.args...).Scan(dest...)
}

func (b *postgresBackend) close() error {
	b.pool.Close()
	return nil
}
