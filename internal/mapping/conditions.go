package mapping

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/jhaladik/ai-cto-modular-app-sub001/pkg/types"
)

// conditionFields maps a recognized condition key to the state field it counts.
var conditionFields = map[string]string{
	"sources_available":     "sources",
	"articles_available":    "articles",
	"all_sources_available": "all_sources",
}

// comparisonPattern accepts "<op> <number>", e.g. "> 0" or ">= 2.5".
var comparisonPattern = regexp.MustCompile(`^(>=|<=|==|!=|>|<)\s*(-?\d+(?:\.\d+)?)$`)

// Engine evaluates step conditions. The zero value is not usable; call NewEngine.
type Engine struct {
	eval   *ExprEvaluator
	logger *slog.Logger
}

// NewEngine creates a mapping engine.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		eval:   NewExprEvaluator(),
		logger: logger,
	}
}

// ShouldExecute reports whether every recognized condition on the step holds
// against state. Unrecognized keys and malformed comparisons are ignored.
func (e *Engine) ShouldExecute(step *types.PipelineStep, state map[string]any) bool {
	for key, cond := range step.Conditions {
		field, ok := conditionFields[key]
		if !ok {
			continue
		}

		m := comparisonPattern.FindStringSubmatch(strings.TrimSpace(cond))
		if m == nil {
			e.logger.Debug("ignoring malformed condition",
				"step", step.DisplayName(), "condition", key, "value", cond)
			continue
		}

		env := map[string]any{"count": Count(state[field])}
		ok, err := e.eval.EvaluateBool("count "+m[1]+" "+m[2], env)
		if err != nil {
			e.logger.Debug("ignoring condition", "step", step.DisplayName(), "condition", key, "error", err)
			continue
		}
		if !ok {
			return false
		}
	}
	return true
}

// Count returns the length of an array and 0 for anything else.
func Count(v any) float64 {
	if list, ok := v.([]any); ok {
		return float64(len(list))
	}
	return 0
}

// BuildInput is the method form of the package-level BuildInput.
func (e *Engine) BuildInput(mapping map[string]any, state map[string]any) map[string]any {
	return BuildInput(mapping, state)
}

// FoldOutput is the method form of the package-level FoldOutput.
func (e *Engine) FoldOutput(mapping map[string]any, body any, state map[string]any) map[string]any {
	return FoldOutput(mapping, body, state)
}
