// Package main implements the timecamp-sync binary: a directory
// synchroniser that converges a TimeCamp account on an HR-sourced user
// list. The pipeline has two stages — prepare derives the desired state
// from users.json, sync converges the live account on it — exposed as
// individual subcommands, a combined one-shot run, and a long-running
// service with an HTTP trigger endpoint and an optional cron schedule.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/timecamp-tools/timecamp-sync/internal/config"
	"github.com/timecamp-tools/timecamp-sync/internal/httpclient"
	"github.com/timecamp-tools/timecamp-sync/internal/metrics"
	"github.com/timecamp-tools/timecamp-sync/internal/pipeline"
	"github.com/timecamp-tools/timecamp-sync/internal/prepare"
	"github.com/timecamp-tools/timecamp-sync/internal/scheduler"
	"github.com/timecamp-tools/timecamp-sync/internal/service"
	"github.com/timecamp-tools/timecamp-sync/internal/storage"
	tcsync "github.com/timecamp-tools/timecamp-sync/internal/sync"
	"github.com/timecamp-tools/timecamp-sync/internal/timecamp"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type flags struct {
	dryRun   bool
	logLevel string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:   "timecamp-sync",
		Short: "timecamp-sync — directory synchroniser for TimeCamp",
		Long: `timecamp-sync keeps a TimeCamp account in step with an HR-sourced
user directory. The prepare stage turns users.json into the desired
TimeCamp state; the sync stage diffs that state against the live account
and applies the minimal set of changes.`,
		SilenceUsage: true,
	}

	root.AddCommand(newPrepareCmd(f))
	root.AddCommand(newSyncCmd(f))
	root.AddCommand(newRunCmd(f))
	root.AddCommand(newServeCmd(f))
	root.AddCommand(newVersionCmd())

	root.PersistentFlags().BoolVar(&f.dryRun, "dry-run", false, "Plan changes without writing to TimeCamp")
	root.PersistentFlags().StringVar(&f.logLevel, "log-level", envOrDefault("SYNC_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	root.PersistentFlags().BoolP("debug", "d", false, "Shorthand for --log-level=debug")

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("timecamp-sync %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func newPrepareCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "prepare",
		Short: "Derive the desired TimeCamp state from users.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd, f)
			if err != nil {
				return err
			}
			defer app.close()

			sum, err := app.prepare.Run(cmd.Context(), app.store)
			if err != nil {
				return err
			}
			fmt.Printf("prepare: %d persons in, %d users out (%d active, %d inactive), %d groups, %d skipped\n",
				sum.Persons, sum.Emitted, sum.Active, sum.Inactive, sum.Groups, sum.Skipped)
			return nil
		},
	}
}

func newSyncCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Converge the live TimeCamp account on timecamp_users.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd, f)
			if err != nil {
				return err
			}
			defer app.close()

			sum, err := app.sync.Run(cmd.Context(), app.store, f.dryRun)
			if err != nil {
				return err
			}
			printSyncSummary(sum)
			if sum.Errors > 0 {
				return fmt.Errorf("sync finished with %d errors", sum.Errors)
			}
			return nil
		},
	}
}

func newRunCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run prepare and sync back to back",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd, f)
			if err != nil {
				return err
			}
			defer app.close()

			res, err := app.pipeline.Run(cmd.Context(), f.dryRun)
			if err != nil {
				return err
			}
			printSyncSummary(res.Sync)
			if res.Sync.Errors > 0 {
				return fmt.Errorf("sync finished with %d errors", res.Sync.Errors)
			}
			return nil
		},
	}
}

func newServeCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run as a long-lived service with an HTTP trigger endpoint",
		Long: `Serve starts an HTTP server exposing /health, /metrics and POST /run,
and — when SYNC_SCHEDULE is set to a cron expression — runs the pipeline
on that schedule. The service stops cleanly on SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd, f)
			if err != nil {
				return err
			}
			defer app.close()
			return serve(cmd.Context(), app)
		},
	}
}

// app bundles the wired components every subcommand needs.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    storage.Store
	metrics  *metrics.Metrics
	prepare  *prepare.Engine
	sync     *tcsync.Engine
	pipeline *pipeline.Pipeline
}

func (a *app) close() {
	_ = a.logger.Sync()
}

// newApp loads configuration and wires every component. Config errors are
// fatal here, before any stage runs.
func newApp(cmd *cobra.Command, f *flags) (*app, error) {
	level := f.logLevel
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		level = "debug"
	}
	logger, err := buildLogger(level)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	store, err := buildStore(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	hc := httpclient.New(logger, m.HTTPRetry)
	api := timecamp.New(hc, cfg.Domain, cfg.APIKey, cfg.RootGroupID, logger)

	prep := prepare.New(cfg, logger)
	syn := tcsync.New(cfg, api, m, logger)

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		metrics:  m,
		prepare:  prep,
		sync:     syn,
		pipeline: pipeline.New(store, prep, syn, m, logger),
	}, nil
}

func buildStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Store, error) {
	if !cfg.Storage.UseS3 {
		return storage.NewLocalStore(cfg.Storage.LocalDir, logger), nil
	}
	return storage.NewS3Store(ctx, storage.S3Options{
		Endpoint:        cfg.Storage.S3Endpoint,
		Region:          cfg.Storage.S3Region,
		Bucket:          cfg.Storage.S3Bucket,
		AccessKeyID:     cfg.Storage.S3AccessKeyID,
		SecretAccessKey: cfg.Storage.S3SecretKey,
		PathPrefix:      cfg.Storage.S3PathPrefix,
		ForcePathStyle:  cfg.Storage.S3ForcePathStyle,
	}, logger)
}

func serve(ctx context.Context, a *app) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a.logger.Info("starting timecamp-sync service",
		zap.String("version", version),
		zap.String("http_addr", a.cfg.HTTPAddr),
		zap.String("schedule", a.cfg.Schedule),
	)

	var sched *scheduler.Scheduler
	if a.cfg.Schedule != "" {
		var err error
		sched, err = scheduler.New(a.cfg.Schedule, a.pipeline, a.logger)
		if err != nil {
			return err
		}
		sched.Start()
	}

	srv := &http.Server{
		Addr: a.cfg.HTTPAddr,
		Handler: service.NewRouter(service.RouterConfig{
			Pipeline: a.pipeline,
			Metrics:  a.metrics,
			Logger:   a.logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("shutting down timecamp-sync service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http shutdown error", zap.Error(err))
	}
	if sched != nil {
		if err := sched.Stop(); err != nil {
			a.logger.Error("scheduler shutdown error", zap.Error(err))
		}
	}
	return nil
}

func printSyncSummary(sum tcsync.Summary) {
	fmt.Printf("sync: %d created, %d updated, %d activated, %d deactivated, %d skipped, %d groups created, %d errors\n",
		sum.Created, sum.Updated, sum.Activated, sum.Deactivated, sum.Skipped, sum.GroupsCreated, sum.Errors)
}

func buildLogger(level string) (*zap.Logger, error) {
	var cfg zap.Config

	switch level {
	case "debug":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}

	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return cfg.Build()
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
