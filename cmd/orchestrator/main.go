// Package main is the entry point for the Bitware orchestrator.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jhaladik/ai-cto-modular-app-sub001/internal/catalog"
	"github.com/jhaladik/ai-cto-modular-app-sub001/internal/config"
	"github.com/jhaladik/ai-cto-modular-app-sub001/internal/executor"
	"github.com/jhaladik/ai-cto-modular-app-sub001/internal/invoker"
	"github.com/jhaladik/ai-cto-modular-app-sub001/internal/storage"
	"github.com/jhaladik/ai-cto-modular-app-sub001/internal/tracing"
	"github.com/jhaladik/ai-cto-modular-app-sub001/internal/validator"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "orchestrator",
		Short:         "Bitware pipeline orchestrator",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), config.Load())
		},
	}
	root.AddCommand(newServeCmd(), newSeedCmd(), newRunCmd(), newMigrateCmd())
	return root
}

// newLogger sets up structured logging from configuration.
func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	logLevel := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// app is the wired object graph shared by every command.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	stores    *storage.Stores
	validator *validator.Validator
	executor  *executor.Executor
	tracing   *tracing.Provider
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	tp, err := tracing.Init(ctx, &tracing.Config{
		ServiceName:    "bitware-orchestrator",
		ServiceVersion: cfg.ServiceVersion,
		OTLPEndpoint:   cfg.OTelEndpoint,
		Enabled:        cfg.OTelEnabled,
		SampleRate:     cfg.OTelSampleRate,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	v, err := validator.New()
	if err != nil {
		return nil, fmt.Errorf("create validator: %w", err)
	}

	stores, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		tp.Shutdown(ctx)
		return nil, fmt.Errorf("open storage: %w", err)
	}

	inv := invoker.New(invoker.Config{
		SharedSecret:     cfg.WorkerSharedSecret,
		CallerID:         cfg.CallerID,
		DefaultTimeout:   cfg.DefaultStepTimeout,
		SlowThreshold:    cfg.SlowStepThreshold,
		MaxResponseBytes: cfg.MaxResponseBytes,
	}, invoker.StaticResolver(cfg.WorkerBindings), nil, logger)

	exec := executor.New(stores.Templates, stores.Workers, inv, stores.Recorder, &executor.Config{
		DefaultTemplate:             cfg.DefaultTemplate,
		DefaultTimeout:              cfg.DefaultStepTimeout,
		DefaultSourceDiscoveryDepth: cfg.DefaultSourceDiscoveryDepth,
		DefaultMaxArticles:          cfg.DefaultMaxArticles,
		SaveTimeout:                 executor.DefaultConfig().SaveTimeout,
	}, logger)

	return &app{
		cfg:       cfg,
		logger:    logger,
		stores:    stores,
		validator: v,
		executor:  exec,
		tracing:   tp,
	}, nil
}

// seed loads the configured catalog file, or the embedded default, into the stores.
func (a *app) seed(ctx context.Context) (*catalog.Report, error) {
	var (
		c   *catalog.Catalog
		err error
	)
	if a.cfg.CatalogFile != "" {
		c, err = catalog.Load(a.cfg.CatalogFile)
	} else {
		c, err = catalog.Default()
	}
	if err != nil {
		return nil, err
	}
	return catalog.NewSeeder(a.stores.Workers, a.stores.Templates, a.validator, a.logger).Seed(ctx, c)
}

func (a *app) Close() {
	if err := a.stores.Close(); err != nil {
		a.logger.Error("close storage", "error", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.tracing.Shutdown(ctx); err != nil {
		a.logger.Error("shutdown tracing", "error", err)
	}
}
