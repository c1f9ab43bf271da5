package types

import (
	"encoding/json"
	"time"
)

// ExecutionStatus represents the state of a pipeline execution.
type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionPartial   ExecutionStatus = "partial"
	ExecutionFailed    ExecutionStatus = "failed"

	// ExecutionCancelled is reserved; nothing in the executor produces it yet.
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// IsTerminal reports whether the status is final.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionCompleted, ExecutionPartial, ExecutionFailed, ExecutionCancelled:
		return true
	}
	return false
}

// Failure-kind tags attached to WorkerResult.Bottlenecks.
const (
	BottleneckTimeout           = "timeout"
	BottleneckTransportError    = "transport_error"
	BottleneckHTTPError         = "http_error"
	BottleneckInvalidResponse   = "invalid_response"
	BottleneckWorkerUnavailable = "worker_unavailable"
	BottleneckSlowResponse      = "slow_response"
)

// WorkerResult is the outcome of invoking one worker for one step.
type WorkerResult struct {
	WorkerName      string   `json:"worker_name"`
	StepOrder       int      `json:"step_order"`
	StepName        string   `json:"step_name,omitempty"`
	Success         bool     `json:"success"`
	StatusCode      int      `json:"status_code,omitempty"`
	ExecutionTimeMs int64    `json:"execution_time_ms"`
	CostUsd         float64  `json:"cost_usd"`
	CacheHit        bool     `json:"cache_hit"`
	Data            any      `json:"data"`
	Error           *string  `json:"error"`
	Bottlenecks     []string `json:"bottlenecks_detected,omitempty"`
}

// ErrorMessage returns the error string, or "" for successful results.
func (r *WorkerResult) ErrorMessage() string {
	if r.Error == nil {
		return ""
	}
	return *r.Error
}

// PipelineExecution is one run of a template against a request.
type PipelineExecution struct {
	ID                   string          `json:"id"`
	Topic                string          `json:"topic"`
	TemplateName         string          `json:"template_name"`
	Strategy             string          `json:"strategy,omitempty"`
	Status               ExecutionStatus `json:"status"`
	TotalExecutionTimeMs int64           `json:"total_execution_time_ms"`
	TotalCostUsd         float64         `json:"total_cost_usd"`
	SourcesDiscovered    int             `json:"sources_discovered"`
	ArticlesProcessed    int             `json:"articles_processed"`
	FinalQualityScore    float64         `json:"final_quality_score"`
	StartedAt            time.Time       `json:"started_at"`
	CompletedAt          *time.Time      `json:"completed_at,omitempty"`
	Request              map[string]any  `json:"request,omitempty"`
	FinalState           map[string]any  `json:"final_state,omitempty"`
	WorkerResults        []*WorkerResult `json:"worker_results"`
}

// Summary returns the list view of the execution.
func (e *PipelineExecution) Summary() ExecutionSummary {
	return ExecutionSummary{
		ID:                   e.ID,
		Topic:                e.Topic,
		TemplateName:         e.TemplateName,
		Status:               e.Status,
		TotalExecutionTimeMs: e.TotalExecutionTimeMs,
		TotalCostUsd:         e.TotalCostUsd,
		StartedAt:            e.StartedAt,
		CompletedAt:          e.CompletedAt,
	}
}

// ExecutionSummary is a lightweight representation of an execution for listing.
type ExecutionSummary struct {
	ID                   string          `json:"id"`
	Topic                string          `json:"topic"`
	TemplateName         string          `json:"template_name"`
	Status               ExecutionStatus `json:"status"`
	TotalExecutionTimeMs int64           `json:"total_execution_time_ms"`
	TotalCostUsd         float64         `json:"total_cost_usd"`
	StartedAt            time.Time       `json:"started_at"`
	CompletedAt          *time.Time      `json:"completed_at,omitempty"`
}

// OrchestrateRequest is the inbound request to run a pipeline.
// Fields other than the named ones are kept in Extra and passed into pipeline state.
type OrchestrateRequest struct {
	Topic                string         `json:"topic"`
	PipelineTemplate     string         `json:"pipeline_template,omitempty"`
	SourceDiscoveryDepth *int           `json:"source_discovery_depth,omitempty"`
	MaxArticles          *int           `json:"max_articles,omitempty"`
	OptimizeFor          string         `json:"optimize_for,omitempty"`
	Extra                map[string]any `json:"-"`
}

var orchestrateKnownFields = map[string]bool{
	"topic":                  true,
	"pipeline_template":      true,
	"source_discovery_depth": true,
	"max_articles":           true,
	"optimize_for":           true,
}

// UnmarshalJSON decodes the named fields and collects the rest into Extra.
func (r *OrchestrateRequest) UnmarshalJSON(data []byte) error {
	type plain OrchestrateRequest
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = OrchestrateRequest(p)
	for k, v := range raw {
		if orchestrateKnownFields[k] {
			continue
		}
		if r.Extra == nil {
			r.Extra = make(map[string]any)
		}
		r.Extra[k] = v
	}
	return nil
}

// MarshalJSON writes the named fields together with Extra.
func (r OrchestrateRequest) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Extra)+5)
	for k, v := range r.Extra {
		out[k] = v
	}
	out["topic"] = r.Topic
	if r.PipelineTemplate != "" {
		out["pipeline_template"] = r.PipelineTemplate
	}
	if r.SourceDiscoveryDepth != nil {
		out["source_discovery_depth"] = *r.SourceDiscoveryDepth
	}
	if r.MaxArticles != nil {
		out["max_articles"] = *r.MaxArticles
	}
	if r.OptimizeFor != "" {
		out["optimize_for"] = r.OptimizeFor
	}
	return json.Marshal(out)
}
