package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/EDWINLEGEND/opshare-cegg-sub000/internal/config"
	"github.com/EDWINLEGEND/opshare-cegg-sub000/internal/infra/logging"
	"github.com/EDWINLEGEND/opshare-cegg-sub000/internal/infra/storage"
	"github.com/EDWINLEGEND/opshare-cegg-sub000/internal/ledger"
	"github.com/EDWINLEGEND/opshare-cegg-sub000/internal/missions"
	"github.com/EDWINLEGEND/opshare-cegg-sub000/internal/services/rewards"
)

// annotationNoStore marks commands that run without opening the ledger.
const annotationNoStore = "leafctl/no-store"

type cliConfig struct {
	LogLevel  slog.Level           `env:"LEAFCTL_LOG_LEVEL" default:"WARN" toml:"log_level"`
	LogFormat string               `env:"LEAFCTL_LOG_FORMAT" default:"text" toml:"log_format"`
	Store     config.StoreConfig   `toml:"store"`
	Rewards   config.RewardsConfig `toml:"rewards"`
}

// app carries what every subcommand needs once the root pre-run has opened
// the ledger.
type app struct {
	configPath string
	dbPath     string
	driver     string
	asJSON     bool

	store      *ledger.Store
	svc        *rewards.RewardsService
	closeStore storage.CloseFunc
}

// run executes leafctl with args and always releases the snapshot store,
// including when a subcommand fails.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	a := &app{}

	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)

	return errors.Join(err, a.close(ctx))
}

func (a *app) rootCmd() *cobra.Command {

	root := &cobra.Command{
		Use:   "leafctl",
		Short: "Inspect and operate a Leaf/TreeCoin rewards ledger",
		Long: `leafctl works directly against a ledger snapshot store.

By default it opens the SQLite file named by SQLITE_PATH. Use --driver and
the usual store environment variables to point it at postgres or redis.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.open,
	}

	root.CompletionOptions.DisableDefaultCmd = true

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to a TOML config file")
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "SQLite file to use (overrides SQLITE_PATH)")
	root.PersistentFlags().StringVar(&a.driver, "driver", "", "snapshot store driver: sqlite, postgres, redis or memory")
	root.PersistentFlags().BoolVar(&a.asJSON, "json", false, "print results as JSON")

	root.AddCommand(
		a.initCmd(),
		a.balanceCmd(),
		a.earnCmd(),
		a.spendCmd(),
		a.convertCmd(),
		a.progressCmd(),
		a.completeCmd(),
		a.missionsCmd(),
		a.historyCmd(),
		a.ecoCmd(),
		a.summaryCmd(),
		a.verifyCmd(),
		envCmd(),
	)

	return root
}

func (a *app) open(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "help" || cmd.Annotations[annotationNoStore] != "" {
		return nil
	}

	cfg := new(cliConfig)

	err := config.Load(cfg, a.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if a.driver != "" {
		cfg.Store.Driver = a.driver
	}

	if a.dbPath != "" {
		cfg.Store.SQLite.Path = a.dbPath
	}

	err = logging.Setup(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	persist, closeStore, err := storage.Open(cmd.Context(), cfg.Store)
	if err != nil {
		return fmt.Errorf("open snapshot store: %w", err)
	}

	a.closeStore = closeStore
	a.store = ledger.New(persist, ledger.WithSnapshotKey(cfg.Store.SnapshotKey))

	err = a.store.Open(cmd.Context())
	if err != nil {
		return errors.Join(fmt.Errorf("open ledger: %w", err), a.close(cmd.Context()))
	}

	catalog, err := missions.DefaultCatalog()
	if err != nil {
		return errors.Join(fmt.Errorf("load mission catalog: %w", err), a.close(cmd.Context()))
	}

	a.svc, err = rewards.New(a.store, catalog, rewards.Config{
		ConversionRatio: cfg.Rewards.ConversionRatio,
		EcoMaxScore:     cfg.Rewards.EcoMaxScore,
		EcoScaleDivisor: cfg.Rewards.EcoScaleDivisor,
	})
	if err != nil {
		return errors.Join(fmt.Errorf("init rewards service: %w", err), a.close(cmd.Context()))
	}

	return nil
}

func (a *app) close(ctx context.Context) error {
	if a.closeStore == nil {
		return nil
	}

	err := a.closeStore(ctx)
	a.closeStore = nil

	if err != nil {
		return fmt.Errorf("close snapshot store: %w", err)
	}

	return nil
}
