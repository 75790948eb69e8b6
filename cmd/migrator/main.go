package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/EDWINLEGEND/opshare-cegg-sub000/internal/config"
	"github.com/EDWINLEGEND/opshare-cegg-sub000/internal/infra/logging"
	"github.com/EDWINLEGEND/opshare-cegg-sub000/internal/infra/pgutils"
	"github.com/EDWINLEGEND/opshare-cegg-sub000/pkg/envconf"
)

//go:embed migrations/*.sql
var baseFS embed.FS

type migratorConfig struct {
	Postgres config.PostgresConfig
	LogLevel slog.Level `env:"APP_LOG_LEVEL" default:"INFO"`
	// DownSteps rolls back that many migrations instead of migrating up when > 0.
	DownSteps int `env:"MIGRATE_DOWN_STEPS" default:""`
}

func main() {
	err := migrateAll(context.Background())
	if err != nil {
		slog.Error("migration run failed", "error", err)
		os.Exit(1)
	}

	slog.Info("migration run finished successfully")
}

func migrateAll(ctx context.Context) error {
	cfg := new(migratorConfig)

	err := envconf.Load(cfg)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.SetupJSON(cfg.LogLevel)

	if cfg.Postgres.DSN == "" {
		return errors.New("PG_DSN is required")
	}

	db, err := pgutils.OpenDB(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	//nolint:errcheck
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("init postgres driver: %w", err)
	}

	err = runMigrations(driver, cfg.DownSteps)
	if err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}

	return nil
}

func runMigrations(driver database.Driver, downSteps int) error {
	src, err := iofs.New(baseFS, "migrations")
	if err != nil {
		return fmt.Errorf("iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}

	if downSteps > 0 {
		err = m.Steps(-downSteps)
		if err != nil {
			return fmt.Errorf("m.Steps: %w", err)
		}

		slog.Info("migrations rolled back", "steps", downSteps)

		return nil
	}

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("m.Up: %w", err)
	}

	version, dirty, verr := m.Version()
	if verr == nil {
		slog.Info("migrations applied", "version", version, "dirty", dirty)
	}

	return nil
}
