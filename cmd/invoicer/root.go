package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/xraph/invoicer"
	"github.com/xraph/invoicer/backup"
	"github.com/xraph/invoicer/config"
	"github.com/xraph/invoicer/store"
	"github.com/xraph/invoicer/store/memory"
	"github.com/xraph/invoicer/store/mongo"
	"github.com/xraph/invoicer/store/postgres"
	"github.com/xraph/invoicer/store/sqlite"
)

var version = "0.1.0"

// app is the state shared by all subcommands of one invocation.
type app struct {
	out    io.Writer
	errOut io.Writer

	cfgPath string
	driver  string
	dsn     string

	cfg     *config.Config
	logger  *slog.Logger
	store   store.Store
	inv     *invoicer.Invoicer
	tracker *backup.Tracker
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "invoicer",
		Short: "Invoicer - manage customer invoices",
		Long: `Invoicer keeps invoices in a local or remote database and moves them
through their lifecycle: draft, final, paid or canceled.

Configuration is read from an optional YAML file, a .env file and
INVOICER_* environment variables.`,
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			return a.open(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.close(cmd.Context())
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.SetContext(context.Background())

	root.PersistentFlags().StringVarP(&a.cfgPath, "config", "c", "", "Path to a YAML config file")
	root.PersistentFlags().StringVar(&a.driver, "driver", "", "Store driver: sqlite, postgres, mongo or memory")
	root.PersistentFlags().StringVar(&a.dsn, "dsn", "", "Store DSN, overrides the config")

	root.AddCommand(
		a.newCmd(),
		a.showCmd(),
		a.listCmd(),
		a.saveCmd(),
		a.finalizeCmd(),
		a.payCmd(),
		a.cancelCmd(),
		a.deleteCmd(),
		a.nextNumberCmd(),
		a.migrateCmd(),
		a.backupCmd(),
	)
	return root
}

func (a *app) open(ctx context.Context) error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	if a.driver != "" {
		cfg.Store.Driver = a.driver
	}
	if a.dsn != "" {
		cfg.Store.DSN = a.dsn
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = cfg.Logger(a.errOut)

	if a.store, err = openStore(ctx, cfg.Store); err != nil {
		return err
	}

	a.tracker = backup.NewTracker()
	opts := append(cfg.Options(a.logger), invoicer.WithPlugin(a.tracker))
	a.inv = invoicer.New(a.store, opts...)
	if err := a.inv.Start(ctx); err != nil {
		_ = a.store.Close()
		return fmt.Errorf("start: %w", err)
	}
	return nil
}

// close snapshots the store when this invocation changed it and a backup
// directory is configured, then shuts the engine down.
func (a *app) close(ctx context.Context) error {
	if a.inv == nil {
		return nil
	}
	defer a.inv.Stop()

	if a.cfg.Backup.Dir == "" {
		return nil
	}
	snap, ok := a.store.(store.Snapshotter)
	if !ok {
		return nil
	}
	if _, err := a.scheduler(snap, a.cfg.Backup.Dir).RunIfDirty(ctx); err != nil {
		a.logger.Error("backup failed", "error", err)
	}
	return nil
}

// scheduler builds a backup scheduler for dir from the loaded config.
func (a *app) scheduler(snap store.Snapshotter, dir string, opts ...backup.Option) *backup.Scheduler {
	opts = append([]backup.Option{
		backup.WithInterval(a.cfg.Backup.Interval),
		backup.WithLogger(a.logger),
	}, opts...)
	return backup.NewScheduler(snap, a.tracker, dir, opts...)
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		s, err := sqlite.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DriverPostgres:
		s, err := postgres.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DriverMongo:
		s, err := mongo.Open(ctx, cfg.DSN, cfg.Database)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
