// Package storage wires the configured backends for the worker registry,
// template catalog and execution recorder. Backends that share a connection
// (one Redis client, one SQL pool) get the same one.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/jhaladik/ai-cto-modular-app-sub001/internal/archive"
	"github.com/jhaladik/ai-cto-modular-app-sub001/internal/config"
	"github.com/jhaladik/ai-cto-modular-app-sub001/internal/recorder"
	"github.com/jhaladik/ai-cto-modular-app-sub001/internal/registry"
	"github.com/jhaladik/ai-cto-modular-app-sub001/internal/sqlstore"
	"github.com/jhaladik/ai-cto-modular-app-sub001/internal/templatestore"
)

// Stores bundles the opened backends.
type Stores struct {
	Workers   registry.WorkerRegistry
	Templates templatestore.Store
	Recorder  recorder.Recorder

	redis *redis.Client
	sql   *sqlstore.DB
}

// Open builds every store the configuration selects. Callers must Close the
// result.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Stores, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Stores{}

	switch cfg.CatalogStore {
	case config.StoreMemory, "":
		s.Workers = registry.NewMemoryRegistry()
		s.Templates = templatestore.NewMemoryStore()
	case config.StoreRedis:
		client, err := s.redisClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		s.Workers = registry.NewRedisRegistry(client)
		s.Templates = templatestore.NewRedisStore(client)
	case config.StoreSQL:
		db, err := s.sqlDB(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		s.Workers = db.Workers()
		s.Templates = db.Templates()
	default:
		return nil, fmt.Errorf("unknown catalog store %q", cfg.CatalogStore)
	}

	var rec recorder.Recorder
	switch cfg.RecorderStore {
	case config.StoreMemory, "":
		rec = recorder.NewMemoryRecorder(cfg.RecorderMaxEntries)
	case config.StoreRedis:
		client, err := s.redisClient(ctx, cfg)
		if err != nil {
			s.Close()
			return nil, err
		}
		rec = recorder.NewRedisRecorder(client, &recorder.RedisConfig{
			Prefix: "bitware:executions",
			TTL:    cfg.RecorderTTL,
		})
	case config.StoreSQL:
		db, err := s.sqlDB(ctx, cfg, logger)
		if err != nil {
			s.Close()
			return nil, err
		}
		rec = db.Executions()
	default:
		s.Close()
		return nil, fmt.Errorf("unknown recorder store %q", cfg.RecorderStore)
	}

	arch, err := archive.New(ctx, &archive.Config{
		Type:            cfg.ArchiveBackend,
		Endpoint:        cfg.ArchiveEndpoint,
		Bucket:          cfg.ArchiveBucket,
		Region:          cfg.ArchiveRegion,
		AccessKeyID:     cfg.ArchiveAccessKey,
		SecretAccessKey: cfg.ArchiveSecretKey,
		UseSSL:          cfg.ArchiveUseSSL,
		PathPrefix:      cfg.ArchivePrefix,
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if arch != nil {
		logger.Info("execution archive enabled", slog.String("backend", arch.BackendName()))
	}

	s.Recorder = recorder.NewDurable(rec, arch, cfg.RecorderRetryBackoff, logger)

	logger.Info("storage initialized",
		slog.String("catalog", cfg.CatalogStore),
		slog.String("recorder", cfg.RecorderStore),
	)
	return s, nil
}

// Migrate opens the SQL database and applies migrations. It is a no-op
// unless a store uses SQL.
func Migrate(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.CatalogStore != config.StoreSQL && cfg.RecorderStore != config.StoreSQL {
		return nil
	}
	s := &Stores{}
	defer s.Close()
	_, err := s.sqlDB(ctx, cfg, logger)
	return err
}

// Ping checks the shared connections.
func (s *Stores) Ping(ctx context.Context) error {
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	if s.sql != nil {
		if err := s.sql.Ping(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	return nil
}

// Close closes every store and the shared connections.
func (s *Stores) Close() error {
	var errs []error
	if s.Workers != nil {
		errs = append(errs, s.Workers.Close())
	}
	if s.Templates != nil {
		errs = append(errs, s.Templates.Close())
	}
	if s.Recorder != nil {
		errs = append(errs, s.Recorder.Close())
	}
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
		s.redis = nil
	}
	if s.sql != nil {
		errs = append(errs, s.sql.Close())
		s.sql = nil
	}
	return errors.Join(errs...)
}

func (s *Stores) redisClient(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	if s.redis != nil {
		return s.redis, nil
	}
	rc := DefaultRedisConfig()
	rc.URL = cfg.RedisURL
	rc.Password = cfg.RedisPassword
	rc.DB = cfg.RedisDB

	client, err := NewRedisClient(ctx, rc)
	if err != nil {
		return nil, err
	}
	s.redis = client
	return client, nil
}

func (s *Stores) sqlDB(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sqlstore.DB, error) {
	if s.sql != nil {
		return s.sql, nil
	}
	db, err := sqlstore.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	s.sql = db
	return db, nil
}
