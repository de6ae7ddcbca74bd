package main

import (
	"errors"
	"flag"
	"fmt"
	"log"

	"github.com/golang-migrate/migrate/v4"

	"github.com/af-corp/costrouter/internal/config"
	"github.com/af-corp/costrouter/internal/usage"
)

func main() {
	configDir := flag.String("config", "configs", "path to configuration directory")
	envFile := flag.String("env", ".env", "optional env file loaded before configuration")
	driver := flag.String("driver", "", "sqlite or postgres (overrides config)")
	target := flag.String("db", "", "sqlite path or postgres URL (overrides config)")
	direction := flag.String("direction", "up", "migration direction: up or down")
	steps := flag.Int("steps", 0, "number of steps (0 = all)")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		log.Fatalf("failed to load env file: %v", err)
	}
	cfg, err := config.LoadService(*configDir)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	drv := cfg.Database.Driver
	if *driver != "" {
		drv = *driver
	}
	dsn := *target
	if dsn == "" {
		if drv == "postgres" {
			dsn = cfg.Database.DSN()
		} else {
			dsn = cfg.Database.Path
		}
	}

	m, err := usage.NewMigrator(drv, dsn)
	if err != nil {
		log.Fatalf("failed to create migrator: %v", err)
	}
	defer m.Close()

	switch *direction {
	case "up":
		if *steps > 0 {
			err = m.Steps(*steps)
		} else {
			err = m.Up()
		}
	case "down":
		if *steps > 0 {
			err = m.Steps(-*steps)
		} else {
			err = m.Down()
		}
	default:
		log.Fatalf("invalid direction: %s (use 'up' or 'down')", *direction)
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatalf("migration failed: %v", err)
	}

	v, dirty, _ := m.Version()
	fmt.Printf("migration %s complete (driver: %s, version: %d, dirty: %v)\n", *direction, drv, v, dirty)
}
