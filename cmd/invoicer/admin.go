package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/invoicer/backup"
	"github.com/xraph/invoicer/store"
)

func (a *app) nextNumberCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "next-number",
		Short: "Print the number the next finalized invoice will get",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := a.inv.PeekNextNumber(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, n)
			return nil
		},
	}
}

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		Long:  "Every command migrates the store on start; migrate does only that.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.store.Ping(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s store is up to date\n", a.cfg.Store.Driver)
			return nil
		},
	}
}

func (a *app) backupCmd() *cobra.Command {
	var (
		dir   string
		watch bool
		until time.Duration
	)
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write a snapshot of the database",
		Long: `Write a snapshot of the database into a directory.

With --watch the command keeps running and writes a snapshot every
backup.interval until it is interrupted or --for elapses.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dir == "" {
				dir = a.cfg.Backup.Dir
			}
			if dir == "" {
				return errors.New("no backup directory: set --dir or backup.dir")
			}
			snap, ok := a.store.(store.Snapshotter)
			if !ok {
				return fmt.Errorf("the %s store does not support snapshots", a.cfg.Store.Driver)
			}

			var opts []backup.Option
			if watch {
				opts = append(opts, backup.WithEveryTick())
			}
			s := a.scheduler(snap, dir, opts...)
			path, err := s.RunNow(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, path)
			if !watch {
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if until > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, until)
				defer cancel()
			}
			s.Start(ctx)
			<-ctx.Done()
			return s.Stop(context.WithoutCancel(ctx))
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Target directory (default: backup.dir)")
	cmd.Flags().BoolVar(&watch, "watch", false, "Keep running and snapshot every backup.interval")
	cmd.Flags().DurationVar(&until, "for", 0, "Stop watching after this long (default: until interrupted)")
	return cmd
}
