package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-redis/redis/v8"

	"github.com/EDWINLEGEND/opshare-cegg-sub000/internal/config"
	"github.com/EDWINLEGEND/opshare-cegg-sub000/internal/infra/pgutils"
	"github.com/EDWINLEGEND/opshare-cegg-sub000/internal/repos/snapshots"
	memsnapshots "github.com/EDWINLEGEND/opshare-cegg-sub000/internal/repos/snapshots/memory"
	pgsnapshots "github.com/EDWINLEGEND/opshare-cegg-sub000/internal/repos/snapshots/postgres"
	redissnapshots "github.com/EDWINLEGEND/opshare-cegg-sub000/internal/repos/snapshots/redis"
	sqlitesnapshots "github.com/EDWINLEGEND/opshare-cegg-sub000/internal/repos/snapshots/sqlite"
)

// CloseFunc releases whatever connection backs a snapshot adapter.
type CloseFunc func(ctx context.Context) error

func noopClose(context.Context) error { return nil }

// Open connects the snapshot adapter selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (snapshots.Snapshots, CloseFunc, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, nil, err
	}

	switch cfg.Driver {
	case config.DriverPostgres:
		db, err := pgutils.OpenDB(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}

		slog.Info("snapshot store connected", "driver", cfg.Driver)

		return pgsnapshots.New(db), func(context.Context) error { return db.Close() }, nil

	case config.DriverSQLite:
		repo, err := sqlitesnapshots.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}

		slog.Info("snapshot store connected", "driver", cfg.Driver, "path", cfg.SQLite.Path)

		return repo, func(context.Context) error { return repo.Close() }, nil

	case config.DriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		err := client.Ping(ctx).Err()
		if err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}

		slog.Info("snapshot store connected", "driver", cfg.Driver, "addr", cfg.Redis.Addr)

		return redissnapshots.New(client), func(context.Context) error { return client.Close() }, nil

	case config.DriverMemory:
		slog.Warn("using in-memory snapshot store, data is lost on restart")

		return memsnapshots.New(), noopClose, nil
	}

	return nil, nil, fmt.Errorf("%w: %q", config.ErrUnknownDriver, cfg.Driver)
}
