package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/EDWINLEGEND/opshare-cegg-sub000/internal/api"
	"github.com/EDWINLEGEND/opshare-cegg-sub000/internal/infra/logging"
	"github.com/EDWINLEGEND/opshare-cegg-sub000/internal/infra/metrics"
	"github.com/EDWINLEGEND/opshare-cegg-sub000/internal/infra/storage"
	"github.com/EDWINLEGEND/opshare-cegg-sub000/internal/ledger"
	"github.com/EDWINLEGEND/opshare-cegg-sub000/internal/missions"
	"github.com/EDWINLEGEND/opshare-cegg-sub000/internal/services/rewards"
	"github.com/EDWINLEGEND/opshare-cegg-sub000/pkg/shutdownqueue"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error running api: %v\n", err)
		//nolint:gocritic
		os.Exit(1)
	}
}

func run(ctx context.Context) (retErr error) {
	cfg, err := readConfig(os.Args[1:])
	if err != nil {
		return fmt.Errorf("init config: %w", err)
	}

	logger, err := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	slog.SetDefault(logger)

	sq := shutdownqueue.New()

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		serr := sq.Shutdown(shutdownCtx)
		if serr != nil {
			retErr = errors.Join(retErr, serr)
		}
	}()

	// --- Infra ---
	persist, closeStore, err := storage.Open(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("open snapshot store: %w", err)
	}

	sq.Add("snapshot store", shutdownqueue.Task(closeStore))

	m := metrics.New()

	store := ledger.New(persist,
		ledger.WithSnapshotKey(cfg.Store.SnapshotKey),
		ledger.WithObserver(m),
	)

	err = store.Open(ctx)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}

	err = store.Verify()
	if err != nil {
		return fmt.Errorf("verify ledger: %w", err)
	}

	catalog, err := missions.DefaultCatalog()
	if err != nil {
		return fmt.Errorf("load mission catalog: %w", err)
	}

	svc, err := rewards.New(store, catalog, rewards.Config{
		ConversionRatio: cfg.Rewards.ConversionRatio,
		EcoMaxScore:     cfg.Rewards.EcoMaxScore,
		EcoScaleDivisor: cfg.Rewards.EcoScaleDivisor,
	}, rewards.WithMetrics(m))
	if err != nil {
		return fmt.Errorf("init rewards service: %w", err)
	}

	// --- HTTP server ---
	router := api.NewRouter(svc, api.RouterOptions{
		Metrics:        m,
		RateLimitRPS:   cfg.RateLimit.RPS,
		RateLimitBurst: cfg.RateLimit.Burst,
	})
	srv := api.NewServer(cfg.Port, router, cfg.Timeouts)

	// Registered last so it runs first: stop taking requests before the store closes.
	sq.Add("http server", func(c context.Context) error {
		slog.Info("Shut down server")

		err := srv.Shutdown(c)
		if err != nil {
			return fmt.Errorf("shutdown srv: %w", err)
		}

		return nil
	})

	// Run server
	errCh := make(chan error, 1)

	go func() {
		serr := srv.ListenAndServe()
		// http.ErrServerClosed is the normal path during Shutdown
		if serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			errCh <- serr
			return
		}

		errCh <- nil
	}()

	slog.Info("API started",
		"port", cfg.Port,
		"store_driver", cfg.Store.Driver,
		"accounts", len(store.Users()),
	)

	// --- Wait until either context cancels or server errors out ---
	select {
	case <-ctx.Done():
		// graceful path; deferred shutdown queue will run
		return nil
	case serr := <-errCh:
		if serr != nil {
			return fmt.Errorf("server error: %w", serr)
		}

		return nil
	}
}
