package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jhaladik/ai-cto-modular-app-sub001/pkg/types"
)

const (
	// Key patterns for Redis storage
	workerKeyPrefix = "bitware:worker:"
	workerIndexKey  = "bitware:workers:all"
)

// RedisRegistry implements WorkerRegistry using Redis for persistence.
type RedisRegistry struct {
	client *redis.Client
}

// NewRedisRegistry creates a registry from an existing Redis client.
func NewRedisRegistry(client *redis.Client) *RedisRegistry {
	return &RedisRegistry{client: client}
}

func workerKey(name string) string {
	return workerKeyPrefix + name
}

// Upsert creates or replaces a worker.
func (r *RedisRegistry) Upsert(ctx context.Context, w *types.WorkerDescriptor) (*types.WorkerDescriptor, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	stored := cloneWorker(w)
	stored.CreatedAt = now
	stored.UpdatedAt = now
	if stored.HealthStatus == "" {
		stored.HealthStatus = types.HealthUnknown
	}

	existing, err := r.Get(ctx, w.Name)
	switch {
	case err == nil:
		stored.CreatedAt = existing.CreatedAt
	case !errors.Is(err, ErrWorkerNotFound):
		return nil, err
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("marshal worker: %w", err)
	}

	// Set the worker and add to index atomically
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, workerKey(w.Name), data, 0)
	pipe.SAdd(ctx, workerIndexKey, w.Name)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("upsert worker: %w", err)
	}

	return stored, nil
}

// Get retrieves a worker by name.
func (r *RedisRegistry) Get(ctx context.Context, name string) (*types.WorkerDescriptor, error) {
	data, err := r.client.Get(ctx, workerKey(name)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrWorkerNotFound
		}
		return nil, fmt.Errorf("get worker: %w", err)
	}

	var w types.WorkerDescriptor
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("unmarshal worker: %w", err)
	}
	return &w, nil
}

// Delete removes a worker.
func (r *RedisRegistry) Delete(ctx context.Context, name string) error {
	key := workerKey(name)

	exists, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists == 0 {
		return ErrWorkerNotFound
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, workerIndexKey, name)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete worker: %w", err)
	}
	return nil
}

// List returns workers ordered by name.
func (r *RedisRegistry) List(ctx context.Context, opts *ListOptions) ([]*types.WorkerDescriptor, error) {
	if opts == nil {
		opts = &ListOptions{}
	}

	names, err := r.client.SMembers(ctx, workerIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list worker names: %w", err)
	}
	sort.Strings(names)

	workers := make([]*types.WorkerDescriptor, 0, len(names))
	for _, name := range names {
		w, err := r.Get(ctx, name)
		if err != nil {
			if errors.Is(err, ErrWorkerNotFound) {
				// Clean up stale index entry
				r.client.SRem(ctx, workerIndexKey, name)
				continue
			}
			return nil, err
		}
		if opts.ActiveOnly && !w.IsActive {
			continue
		}
		workers = append(workers, w)
	}

	return paginate(workers, opts), nil
}

// Close is a no-op; the shared client is closed by its owner.
func (r *RedisRegistry) Close() error {
	return nil
}
