package usage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

var sqlitePragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA temp_store=MEMORY",
}

// OpenSQLite opens (creating if needed) the database file at path and applies
// the embedded schema migrations. Use ":memory:" for a throwaway store.
func OpenSQLite(ctx context.Context, path string) (*Tracker, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite serializes writers; a single connection also keeps ":memory:"
	// databases alive across calls.
	db.SetMaxOpenConns(1)

	for _, pragma := range sqlitePragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if err := MigrateSQLite(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Tracker{db: &sqliteBackend{db: db}, d: sqliteDialect, now: time.Now}, nil
}

type sqliteBackend struct {
	db *sql.DB
}

func (b *sqliteBackend) insert(ctx context.Context, records []Record) ([]int64, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertStatement(sqliteDialect))
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	ids := make([]int64, 0, len(records))
	for _, r := range records {
		res, err := stmt.ExecContext(ctx, insertArgs(sqliteDialect, r)...)
		if err != nil {
			return nil, err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (b *sqliteBackend) query(ctx context.Context, q *query, fn func(rowScanner) error) error {
	rows, err := b.db.QueryContext(ctx, q.String(), q.args...)
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

func (b *sqliteBackend) queryRow(ctx context.Context, q *query, dest ...any) error {
	return b.db.QueryRowContext(ctx, q.String(), q.args...).Scan(dest...)
}

func (b *sqliteBackend) close() error {
	return b.db.Close()
}
