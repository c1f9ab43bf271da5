package executor

import (
	"github.com/jhaladik/ai-cto-modular-app-sub001/internal/mapping"
	"github.com/jhaladik/ai-cto-modular-app-sub001/pkg/types"
)

// Field names checked on worker output, in lookup order.
var (
	qualityFields = []string{"avg_quality_score", "quality_score", "final_quality_score"}
	sourceFields  = []string{"total_sources", "sources_found"}
	articleFields = []string{"articles_processed", "total_articles", "articles_count"}
)

// finalize stamps the terminal status and aggregate metrics onto exec.
func (e *Executor) finalize(exec *types.PipelineExecution, tmpl *types.PipelineTemplate, state map[string]any) {
	completed := e.now().UTC()
	exec.CompletedAt = &completed
	exec.TotalExecutionTimeMs = completed.Sub(exec.StartedAt).Milliseconds()
	exec.FinalState = state
	exec.Status = executionStatus(tmpl, exec.WorkerResults)

	for _, r := range exec.WorkerResults {
		exec.TotalCostUsd += r.CostUsd
	}
	exec.FinalQualityScore = qualityScore(exec.WorkerResults)
	exec.SourcesDiscovered = countFrom(state, []string{"all_sources", "sources"}, exec.WorkerResults, sourceFields)
	exec.ArticlesProcessed = countFrom(state, []string{"articles"}, exec.WorkerResults, articleFields)
}

// executionStatus compares successful required-step results with the
// template's required-step count. Zero successes of any kind is a failure.
func executionStatus(tmpl *types.PipelineTemplate, results []*types.WorkerResult) types.ExecutionStatus {
	optional := make(map[int]bool, len(tmpl.Steps))
	for _, s := range tmpl.Steps {
		optional[s.StepOrder] = s.IsOptional
	}

	succeeded, requiredOK := 0, 0
	for _, r := range results {
		if !r.Success {
			continue
		}
		succeeded++
		if !optional[r.StepOrder] {
			requiredOK++
		}
	}

	switch {
	case succeeded == 0:
		return types.ExecutionFailed
	case requiredOK == tmpl.RequiredStepCount():
		return types.ExecutionCompleted
	default:
		return types.ExecutionPartial
	}
}

// qualityScore averages the first quality-like number found in each
// successful result.
func qualityScore(results []*types.WorkerResult) float64 {
	var sum float64
	var n int
	for _, r := range results {
		if !r.Success {
			continue
		}
		if v, ok := firstNumber(r.Data, qualityFields); ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// countFrom prefers the length of an array in final state, then the first
// numeric field found in successful results in step order.
func countFrom(state map[string]any, stateKeys []string, results []*types.WorkerResult, fields []string) int {
	for _, k := range stateKeys {
		if list, ok := state[k].([]any); ok {
			return len(list)
		}
	}
	for _, r := range results {
		if !r.Success {
			continue
		}
		if v, ok := firstNumber(r.Data, fields); ok {
			return int(v)
		}
	}
	return 0
}

func firstNumber(data any, fields []string) (float64, bool) {
	for _, f := range fields {
		v, ok := mapping.ResolvePath(data, f)
		if !ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			return n, true
		case int:
			return float64(n), true
		case int64:
			return float64(n), true
		}
	}
	return 0, false
}
