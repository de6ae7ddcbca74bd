package usage

import (
	"context"

	"github.com/af-corp/costrouter/internal/config"
)

// Open returns the store selected by cfg.Driver. SQLite is always migrated;
// Postgres only when AutoMigrate is set.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		if cfg.AutoMigrate {
			if err := MigratePostgres(cfg.DSN()); err != nil {
				return nil, err
			}
		}
		pool, err := OpenPostgres(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewPostgresStore(pool), nil
	default:
		t, err := OpenSQLite(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}
		return t, nil
	}
}
