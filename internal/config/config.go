package config

import (
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/EDWINLEGEND/opshare-cegg-sub000/pkg/envconf"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

var (
	ErrUnknownDriver = errors.New("unknown store driver")
	ErrInvalidConfig = errors.New("invalid config")
)

type PostgresConfig struct {
	DSN             string        `env:"PG_DSN" default:"" toml:"dsn"`
	MaxOpenConns    int           `env:"PG_MAX_OPEN_CONNS" default:"10" toml:"max_open_conns"`
	MaxIdleConns    int           `env:"PG_MAX_IDLE_CONNS" default:"5" toml:"max_idle_conns"`
	ConnMaxIdleTime time.Duration `env:"PG_CONN_MAX_IDLE_TIME" default:"5m" toml:"conn_max_idle_time"`
	ConnMaxLifetime time.Duration `env:"PG_CONN_MAX_LIFETIME" default:"30m" toml:"conn_max_lifetime"`
}

type SQLiteConfig struct {
	Path string `env:"SQLITE_PATH" default:"leaf-ledger.db" toml:"path"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" default:"localhost:6379" toml:"addr"`
	DB       int    `env:"REDIS_DB" default:"" toml:"db"`
	Password string `env:"REDIS_PASSWORD" default:"" toml:"password"`
}

// StoreConfig selects and configures the snapshot backend.
type StoreConfig struct {
	Driver      string         `env:"STORE_DRIVER" default:"sqlite" toml:"driver"`
	SnapshotKey string         `env:"SNAPSHOT_KEY" default:"ledger" toml:"snapshot_key"`
	Postgres    PostgresConfig `toml:"postgres"`
	SQLite      SQLiteConfig   `toml:"sqlite"`
	Redis       RedisConfig    `toml:"redis"`
}

func (c StoreConfig) Validate() error {
	drivers := []string{DriverPostgres, DriverSQLite, DriverRedis, DriverMemory}
	if !slices.Contains(drivers, c.Driver) {
		return fmt.Errorf("%w: %q", ErrUnknownDriver, c.Driver)
	}

	if c.SnapshotKey == "" {
		return fmt.Errorf("%w: snapshot key is empty", ErrInvalidConfig)
	}

	switch c.Driver {
	case DriverPostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("%w: PG_DSN is required for the postgres driver", ErrInvalidConfig)
		}
	case DriverSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("%w: SQLITE_PATH is required for the sqlite driver", ErrInvalidConfig)
		}
	case DriverRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("%w: REDIS_ADDR is required for the redis driver", ErrInvalidConfig)
		}
	}

	return nil
}

type RewardsConfig struct {
	ConversionRatio int64 `env:"CONVERSION_RATIO" default:"1000" toml:"conversion_ratio"`
	EcoMaxScore     int64 `env:"ECO_MAX_SCORE" default:"100" toml:"eco_max_score"`
	EcoScaleDivisor int64 `env:"ECO_SCALE_DIVISOR" default:"500" toml:"eco_scale_divisor"`
}

func (c RewardsConfig) Validate() error {
	if c.ConversionRatio <= 0 || c.EcoMaxScore <= 0 || c.EcoScaleDivisor <= 0 {
		return fmt.Errorf("%w: rewards settings must be positive: %+v", ErrInvalidConfig, c)
	}

	return nil
}

type RateLimitConfig struct {
	RPS   float64 `env:"RATE_LIMIT_RPS" default:"5" toml:"rps"`
	Burst int     `env:"RATE_LIMIT_BURST" default:"10" toml:"burst"`
}

// Load decodes the optional TOML file at path into dst and then applies
// environment variables on top via envconf. Unknown keys in the file are an
// error.
func Load(dst any, path string) error {
	if path != "" {
		md, err := toml.DecodeFile(path, dst)
		if err != nil {
			return fmt.Errorf("decode config file: %w", err)
		}

		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("%w: unknown keys in %s: %v", ErrInvalidConfig, path, undecoded)
		}
	}

	err := envconf.Load(dst)
	if err != nil {
		return fmt.Errorf("load env: %w", err)
	}

	return nil
}

// LoadDotEnv exports the variables in a .env file for local runs. Variables
// already present in the environment win, and a missing file is ignored.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}

	return nil
}
