// Package templatestore provides pipeline template persistence.
package templatestore

import (
	"context"
	"errors"

	"github.com/jhaladik/ai-cto-modular-app-sub001/pkg/types"
)

// Common errors returned by Store implementations.
var (
	ErrTemplateNotFound = errors.New("template not found")
)

// ListOptions configures list queries.
type ListOptions struct {
	ActiveOnly bool
	Limit      int
	Offset     int
}

// Store defines the interface for template persistence, keyed by template name.
// Implementations must be safe for concurrent use.
type Store interface {
	// Upsert validates and saves a template, assigning an ID when empty.
	Upsert(ctx context.Context, t *types.PipelineTemplate) (*types.PipelineTemplate, error)

	// Get retrieves a template by name. Returns ErrTemplateNotFound if not found.
	Get(ctx context.Context, name string) (*types.PipelineTemplate, error)

	// Delete removes a template. Returns ErrTemplateNotFound if not found.
	Delete(ctx context.Context, name string) error

	// List returns templates ordered by name.
	List(ctx context.Context, opts *ListOptions) ([]*types.PipelineTemplate, error)

	// Close releases any resources.
	Close() error
}

// cloneTemplate deep-copies the step slice so callers cannot mutate stored steps.
// Mapping values are shared; the executor treats them as read-only.
func cloneTemplate(t *types.PipelineTemplate) *types.PipelineTemplate {
	c := *t
	c.Steps = make([]types.PipelineStep, len(t.Steps))
	for i, s := range t.Steps {
		s.DependsOnSteps = append([]int(nil), s.DependsOnSteps...)
		c.Steps[i] = s
	}
	return &c
}

func paginate(list []*types.PipelineTemplate, opts *ListOptions) []*types.PipelineTemplate {
	if opts.Offset > 0 {
		if opts.Offset >= len(list) {
			return []*types.PipelineTemplate{}
		}
		list = list[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(list) {
		list = list[:opts.Limit]
	}
	return list
}
