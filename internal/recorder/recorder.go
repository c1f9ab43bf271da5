// Package recorder persists pipeline executions and their worker results.
package recorder

import (
	"context"
	"errors"

	"github.com/jhaladik/ai-cto-modular-app-sub001/pkg/types"
)

// Common errors returned by Recorder implementations.
var (
	ErrExecutionNotFound = errors.New("execution not found")
)

// Recorder defines the interface for execution persistence.
// Implementations must be safe for concurrent use.
type Recorder interface {
	// Save writes the execution header and all worker results, replacing any
	// previous record with the same id.
	Save(ctx context.Context, exec *types.PipelineExecution) error

	// Get returns the header plus ordered worker results. Returns
	// ErrExecutionNotFound if the id is unknown.
	Get(ctx context.Context, id string) (*types.PipelineExecution, error)

	// List returns execution summaries, newest first (limit <= 0 = no limit).
	List(ctx context.Context, limit int) ([]types.ExecutionSummary, error)

	// AdapterInfo returns diagnostic information.
	AdapterInfo(ctx context.Context) (map[string]any, error)

	// Close releases any resources.
	Close() error
}

// cloneExecution copies the header and result records. Request and state
// maps are shared; nothing mutates them once an execution is finished.
func cloneExecution(e *types.PipelineExecution) *types.PipelineExecution {
	c := *e
	c.WorkerResults = make([]*types.WorkerResult, len(e.WorkerResults))
	for i, r := range e.WorkerResults {
		rc := *r
		c.WorkerResults[i] = &rc
	}
	return &c
}
