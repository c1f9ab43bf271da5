package types

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// PipelineTemplate is a named, reusable pipeline definition.
type PipelineTemplate struct {
	ID                  string         `json:"id" yaml:"id"`
	Name                string         `json:"name" yaml:"name"`
	DisplayName         string         `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	Description         string         `json:"description,omitempty" yaml:"description,omitempty"`
	Category            string         `json:"category,omitempty" yaml:"category,omitempty"`
	ComplexityLevel     string         `json:"complexity_level,omitempty" yaml:"complexity_level,omitempty"`
	EstimatedDurationMs int64          `json:"estimated_duration_ms,omitempty" yaml:"estimated_duration_ms,omitempty"`
	EstimatedCostUsd    float64        `json:"estimated_cost_usd,omitempty" yaml:"estimated_cost_usd,omitempty"`
	IsActive            bool           `json:"is_active" yaml:"is_active"`
	Steps               []PipelineStep `json:"steps,omitempty" yaml:"steps"`
	CreatedAt           time.Time      `json:"created_at" yaml:"-"`
	UpdatedAt           time.Time      `json:"updated_at" yaml:"-"`
}

// PipelineStep is one unit of work within a template.
type PipelineStep struct {
	StepOrder  int    `json:"step_order" yaml:"step_order"`
	WorkerName string `json:"worker_name" yaml:"worker_name"`
	StepName   string `json:"step_name,omitempty" yaml:"step_name,omitempty"`
	IsOptional bool   `json:"is_optional" yaml:"is_optional"`

	// Conditions maps a named predicate to a comparison, e.g. {"sources_available": "> 0"}
	Conditions map[string]string `json:"conditions,omitempty" yaml:"conditions,omitempty"`

	// InputMapping maps destination field -> literal or "$.path" into pipeline state
	InputMapping map[string]any `json:"input_mapping,omitempty" yaml:"input_mapping,omitempty"`

	// OutputMapping maps pipeline-state field -> "$.path" into the worker response
	OutputMapping map[string]any `json:"output_mapping,omitempty" yaml:"output_mapping,omitempty"`

	// Endpoint and Method override the worker defaults when set
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Method   string `json:"method,omitempty" yaml:"method,omitempty"`

	TimeoutOverrideMs int64 `json:"timeout_override_ms,omitempty" yaml:"timeout_override_ms,omitempty"`

	// DependsOnSteps is informational; execution is strictly by StepOrder.
	DependsOnSteps []int `json:"depends_on_steps,omitempty" yaml:"depends_on_steps,omitempty"`
}

// DisplayName returns the step name, falling back to the worker name.
func (s *PipelineStep) DisplayName() string {
	if s.StepName != "" {
		return s.StepName
	}
	return s.WorkerName
}

// TimeoutOverride returns the per-step timeout, or zero when unset.
func (s *PipelineStep) TimeoutOverride() time.Duration {
	if s.TimeoutOverrideMs <= 0 {
		return 0
	}
	return time.Duration(s.TimeoutOverrideMs) * time.Millisecond
}

// SortedSteps returns a copy of the template's steps ordered by StepOrder.
// The template itself is not modified.
func (t *PipelineTemplate) SortedSteps() []PipelineStep {
	steps := make([]PipelineStep, len(t.Steps))
	copy(steps, t.Steps)
	sort.SliceStable(steps, func(i, j int) bool {
		return steps[i].StepOrder < steps[j].StepOrder
	})
	return steps
}

// RequiredStepCount returns the number of non-optional steps.
func (t *PipelineTemplate) RequiredStepCount() int {
	n := 0
	for _, s := range t.Steps {
		if !s.IsOptional {
			n++
		}
	}
	return n
}

// Validate checks the structural invariants of a template.
func (t *PipelineTemplate) Validate() error {
	if t.Name == "" {
		return errors.New("template name is required")
	}
	if len(t.Steps) == 0 {
		return fmt.Errorf("template %q has no steps", t.Name)
	}
	seen := make(map[int]bool, len(t.Steps))
	for _, s := range t.Steps {
		if s.WorkerName == "" {
			return fmt.Errorf("template %q step %d: worker name is required", t.Name, s.StepOrder)
		}
		if seen[s.StepOrder] {
			return fmt.Errorf("template %q: duplicate step order %d", t.Name, s.StepOrder)
		}
		seen[s.StepOrder] = true
	}
	return nil
}

// TemplateSummary is the discovery view of a template.
type TemplateSummary struct {
	ID                  string  `json:"id"`
	Name                string  `json:"name"`
	DisplayName         string  `json:"display_name,omitempty"`
	Description         string  `json:"description,omitempty"`
	Category            string  `json:"category,omitempty"`
	ComplexityLevel     string  `json:"complexity_level,omitempty"`
	EstimatedDurationMs int64   `json:"estimated_duration_ms,omitempty"`
	EstimatedCostUsd    float64 `json:"estimated_cost_usd,omitempty"`
	StepCount           int     `json:"step_count"`
}

// Summary returns the discovery view of the template.
func (t *PipelineTemplate) Summary() TemplateSummary {
	return TemplateSummary{
		ID:                  t.ID,
		Name:                t.Name,
		DisplayName:         t.DisplayName,
		Description:         t.Description,
		Category:            t.Category,
		ComplexityLevel:     t.ComplexityLevel,
		EstimatedDurationMs: t.EstimatedDurationMs,
		EstimatedCostUsd:    t.EstimatedCostUsd,
		StepCount:           len(t.Steps),
	}
}
