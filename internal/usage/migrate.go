package usage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

// MigrateSQLite applies every pending migration to db. db stays open.
func MigrateSQLite(db *sql.DB) error {
	m, err := newSQLiteMigrator(db)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate sqlite: %w", err)
	}
	return nil
}

// MigratePostgres applies every pending migration to the database at dsn.
func MigratePostgres(dsn string) error {
	m, err := NewMigrator("postgres", dsn)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate postgres: %w", err)
	}
	return nil
}

// NewMigrator returns a migrator for driver ("sqlite" or "postgres") bound to
// the embedded migrations. For sqlite, target is the database file path; for
// postgres, a postgres:// URL. Closing the migrator closes the database.
func NewMigrator(driver, target string) (*migrate.Migrate, error) {
	switch driver {
	case "sqlite":
		db, err := sql.Open("sqlite", target)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		db.SetMaxOpenConns(1)
		return newSQLiteMigrator(db)
	case "postgres":
		src, err := iofs.New(migrationsFS, "migrations/postgres")
		if err != nil {
			return nil, fmt.Errorf("load postgres migrations: %w", err)
		}
		m, err := migrate.NewWithSourceInstance("iofs", src, pgxURL(target))
		if err != nil {
			return nil, fmt.Errorf("create postgres migrator: %w", err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
}

func newSQLiteMigrator(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations/sqlite")
	if err != nil {
		return nil, fmt.Errorf("load sqlite migrations: %w", err)
	}
	drv, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("create sqlite migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", drv)
	if err != nil {
		return nil, fmt.Errorf("create sqlite migrator: %w", err)
	}
	return m, nil
}

// pgxURL rewrites a postgres:// URL to the scheme the pgx migration driver
// registers.
func pgxURL(dsn string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if rest, ok := strings.CutPrefix(dsn, prefix); ok {
			return "pgx5://" + rest
		}
	}
	return dsn
}
