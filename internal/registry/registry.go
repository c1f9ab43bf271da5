// Package registry provides the catalog of Bitware worker services.
package registry

import (
	"context"
	"errors"

	"github.com/jhaladik/ai-cto-modular-app-sub001/pkg/types"
)

// Common errors returned by WorkerRegistry implementations.
var (
	ErrWorkerNotFound = errors.New("worker not found")
)

// ListOptions configures list queries.
type ListOptions struct {
	// ActiveOnly drops workers with IsActive=false
	ActiveOnly bool

	// Limit is the maximum number of workers to return (0 = no limit)
	Limit int

	// Offset is the number of workers to skip (for pagination)
	Offset int
}

// WorkerRegistry defines the interface for worker registration and lookup.
// Implementations must be safe for concurrent use. The executor only reads;
// Upsert and Delete are used by catalog seeding.
type WorkerRegistry interface {
	// Upsert creates or replaces a worker, keeping CreatedAt of an existing entry.
	Upsert(ctx context.Context, w *types.WorkerDescriptor) (*types.WorkerDescriptor, error)

	// Get retrieves a worker by name. Returns ErrWorkerNotFound if not found.
	Get(ctx context.Context, name string) (*types.WorkerDescriptor, error)

	// Delete removes a worker. Returns ErrWorkerNotFound if not found.
	Delete(ctx context.Context, name string) error

	// List returns workers ordered by name.
	List(ctx context.Context, opts *ListOptions) ([]*types.WorkerDescriptor, error)

	// Close releases any resources.
	Close() error
}

// paginate applies offset and limit to an already filtered, sorted list.
func paginate(workers []*types.WorkerDescriptor, opts *ListOptions) []*types.WorkerDescriptor {
	if opts.Offset > 0 {
		if opts.Offset >= len(workers) {
			return []*types.WorkerDescriptor{}
		}
		workers = workers[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(workers) {
		workers = workers[:opts.Limit]
	}
	return workers
}

func cloneWorker(w *types.WorkerDescriptor) *types.WorkerDescriptor {
	c := *w
	c.Endpoints = append([]string(nil), w.Endpoints...)
	c.Dependencies = append([]string(nil), w.Dependencies...)
	return &c
}
