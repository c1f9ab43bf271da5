package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jhaladik/ai-cto-modular-app-sub001/pkg/types"
)

// MemoryRegistry implements WorkerRegistry using in-memory storage.
// Suitable for testing and local development.
type MemoryRegistry struct {
	mu      sync.RWMutex
	workers map[string]*types.WorkerDescriptor
}

// NewMemoryRegistry creates a new in-memory worker registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		workers: make(map[string]*types.WorkerDescriptor),
	}
}

// Upsert creates or replaces a worker.
func (r *MemoryRegistry) Upsert(ctx context.Context, w *types.WorkerDescriptor) (*types.WorkerDescriptor, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	stored := cloneWorker(w)
	stored.CreatedAt = now
	if existing, ok := r.workers[w.Name]; ok {
		stored.CreatedAt = existing.CreatedAt
	}
	stored.UpdatedAt = now
	if stored.HealthStatus == "" {
		stored.HealthStatus = types.HealthUnknown
	}

	r.workers[w.Name] = stored
	return cloneWorker(stored), nil
}

// Get retrieves a worker by name.
func (r *MemoryRegistry) Get(ctx context.Context, name string) (*types.WorkerDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.workers[name]
	if !ok {
		return nil, ErrWorkerNotFound
	}
	return cloneWorker(w), nil
}

// Delete removes a worker.
func (r *MemoryRegistry) Delete(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.workers[name]; !ok {
		return ErrWorkerNotFound
	}
	delete(r.workers, name)
	return nil
}

// List returns workers ordered by name.
func (r *MemoryRegistry) List(ctx context.Context, opts *ListOptions) ([]*types.WorkerDescriptor, error) {
	if opts == nil {
		opts = &ListOptions{}
	}

	r.mu.RLock()
	workers := make([]*types.WorkerDescriptor, 0, len(r.workers))
	for _, w := range r.workers {
		if opts.ActiveOnly && !w.IsActive {
			continue
		}
		workers = append(workers, cloneWorker(w))
	}
	r.mu.RUnlock()

	sort.Slice(workers, func(i, j int) bool { return workers[i].Name < workers[j].Name })
	return paginate(workers, opts), nil
}

// Close is a no-op for the memory registry.
func (r *MemoryRegistry) Close() error {
	return nil
}
