// Package types provides shared types for the orchestrator service.
package types

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

// HealthStatus is the last known health of a worker service.
type HealthStatus string

const (
	HealthUnknown   HealthStatus = "unknown"
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// WorkerDescriptor identifies a callable worker service.
type WorkerDescriptor struct {
	// Name is the unique key (e.g., "content_classifier")
	Name string `json:"name" yaml:"name"`

	// DisplayName is the human-readable name
	DisplayName string `json:"display_name,omitempty" yaml:"display_name,omitempty"`

	// BindingRef is the opaque handle used to reach the service
	BindingRef string `json:"binding_ref" yaml:"binding_ref"`

	// Endpoints lists supported paths; the first one is the default
	Endpoints []string `json:"endpoints,omitempty" yaml:"endpoints,omitempty"`

	// DefaultMethod is the HTTP method used when a step does not override it
	DefaultMethod string `json:"default_method,omitempty" yaml:"default_method,omitempty"`

	InputFormat  string   `json:"input_format,omitempty" yaml:"input_format,omitempty"`
	OutputFormat string   `json:"output_format,omitempty" yaml:"output_format,omitempty"`
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`

	// TimeoutMs is the worker-level call timeout (0 = use the orchestrator default)
	TimeoutMs int64 `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`

	IsActive     bool         `json:"is_active" yaml:"is_active"`
	HealthStatus HealthStatus `json:"health_status,omitempty" yaml:"health_status,omitempty"`

	CreatedAt time.Time `json:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// Validate checks that the descriptor can be stored and invoked.
func (w *WorkerDescriptor) Validate() error {
	if w.Name == "" {
		return errors.New("worker name is required")
	}
	if w.BindingRef == "" {
		return errors.New("worker binding_ref is required")
	}
	return nil
}

// DefaultEndpoint returns the first declared endpoint, or "/" when none is declared.
func (w *WorkerDescriptor) DefaultEndpoint() string {
	if len(w.Endpoints) == 0 {
		return "/"
	}
	return w.Endpoints[0]
}

// Method returns the normalized default HTTP method, POST when unset.
func (w *WorkerDescriptor) Method() string {
	return NormalizeMethod(w.DefaultMethod)
}

// Timeout returns the worker-level timeout, or zero when unset.
func (w *WorkerDescriptor) Timeout() time.Duration {
	if w.TimeoutMs <= 0 {
		return 0
	}
	return time.Duration(w.TimeoutMs) * time.Millisecond
}

// NormalizeMethod upper-cases a method name. Only GET and POST are supported;
// anything else maps to POST.
func NormalizeMethod(m string) string {
	if strings.EqualFold(strings.TrimSpace(m), http.MethodGet) {
		return http.MethodGet
	}
	return http.MethodPost
}
