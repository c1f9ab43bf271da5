package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jhaladik/ai-cto-modular-app-sub001/internal/api"
	"github.com/jhaladik/ai-cto-modular-app-sub001/internal/config"
	"github.com/jhaladik/ai-cto-modular-app-sub001/internal/storage"
	"github.com/jhaladik/ai-cto-modular-app-sub001/pkg/types"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), config.Load())
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger := newLogger(cfg, os.Stdout)
	logger.Info("starting orchestrator",
		slog.String("port", cfg.Port),
		slog.String("catalog_store", cfg.CatalogStore),
		slog.String("recorder_store", cfg.RecorderStore),
		slog.String("log_level", cfg.LogLevel),
	)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.SeedOnStart {
		report, err := a.seed(ctx)
		if err != nil {
			return fmt.Errorf("seed catalog: %w", err)
		}
		logger.Info("catalog seeded",
			slog.Int("workers", report.Workers),
			slog.Int("templates", report.Templates),
		)
	}

	handlers := api.NewHandlers(api.Deps{
		Orchestrator: a.executor,
		Templates:    a.stores.Templates,
		Workers:      a.stores.Workers,
		Recorder:     a.stores.Recorder,
		Validator:    a.validator,
		Pinger:       a.stores,
	}, cfg, logger)
	server := api.NewServer(handlers)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	}

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
	return nil
}

func newSeedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load a worker and template catalog into the configured stores",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if file != "" {
				cfg.CatalogFile = file
			}
			logger := newLogger(cfg, os.Stderr)

			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.seed(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd, report)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "catalog YAML file (defaults to the built-in catalog)")
	return cmd
}

func newRunCmd() *cobra.Command {
	var req types.OrchestrateRequest
	var depth, maxArticles int
	var seed bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one pipeline and print the execution record",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			logger := newLogger(cfg, os.Stderr)

			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if seed {
				if _, err := a.seed(cmd.Context()); err != nil {
					return fmt.Errorf("seed catalog: %w", err)
				}
			}
			if cmd.Flags().Changed("depth") {
				req.SourceDiscoveryDepth = &depth
			}
			if cmd.Flags().Changed("max-articles") {
				req.MaxArticles = &maxArticles
			}

			exec, err := a.executor.Execute(cmd.Context(), &req)
			if err != nil {
				return err
			}
			return writeJSON(cmd, exec)
		},
	}
	cmd.Flags().StringVar(&req.Topic, "topic", "", "research topic")
	cmd.Flags().StringVar(&req.PipelineTemplate, "template", "", "pipeline template name")
	cmd.Flags().StringVar(&req.OptimizeFor, "optimize-for", "", "optimization hint passed to workers")
	cmd.Flags().IntVar(&depth, "depth", 0, "source discovery depth")
	cmd.Flags().IntVar(&maxArticles, "max-articles", 0, "maximum articles to process")
	cmd.Flags().BoolVar(&seed, "seed", true, "seed the catalog before running")
	cmd.MarkFlagRequired("topic")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply SQL schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			return storage.Migrate(cmd.Context(), cfg, newLogger(cfg, os.Stderr))
		},
	}
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
