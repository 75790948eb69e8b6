package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/EDWINLEGEND/opshare-cegg-sub000/internal/api"
	"github.com/EDWINLEGEND/opshare-cegg-sub000/internal/config"
)

type apiConfig struct {
	Port            uint16                 `env:"APP_PORT" default:"8080" toml:"port"`
	LogLevel        slog.Level             `env:"APP_LOG_LEVEL" default:"INFO" toml:"log_level"`
	LogFormat       string                 `env:"APP_LOG_FORMAT" default:"json" toml:"log_format"`
	ShutdownTimeout time.Duration          `env:"APP_SHUTDOWN_TIMEOUT" default:"10s" toml:"shutdown_timeout"`
	Store           config.StoreConfig     `toml:"store"`
	Rewards         config.RewardsConfig   `toml:"rewards"`
	RateLimit       config.RateLimitConfig `toml:"rate_limit"`
	Timeouts        api.ServerTimeouts     `toml:"timeouts"`
}

// readConfig layers the optional TOML file named by -config or APP_CONFIG
// under the environment, after exporting -env-file.
func readConfig(args []string) (*apiConfig, error) {
	fs := flag.NewFlagSet("api", flag.ContinueOnError)
	path := fs.String("config", os.Getenv("APP_CONFIG"), "path to a TOML config file")
	envFile := fs.String("env-file", ".env", "optional dotenv file exported before reading the environment")

	err := fs.Parse(args)
	if err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	err = config.LoadDotEnv(*envFile)
	if err != nil {
		return nil, err
	}

	cfg := new(apiConfig)

	err = config.Load(cfg, *path)
	if err != nil {
		return nil, err
	}

	err = cfg.Store.Validate()
	if err != nil {
		return nil, err
	}

	err = cfg.Rewards.Validate()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}
