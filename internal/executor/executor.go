// Package executor runs pipeline templates: it walks a template's steps in
// order, calls each worker through the invoker, threads pipeline state between
// steps and applies the required/optional failure policy.
package executor

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jhaladik/ai-cto-modular-app-sub001/internal/invoker"
	"github.com/jhaladik/ai-cto-modular-app-sub001/internal/mapping"
	"github.com/jhaladik/ai-cto-modular-app-sub001/internal/metrics"
	"github.com/jhaladik/ai-cto-modular-app-sub001/internal/recorder"
	"github.com/jhaladik/ai-cto-modular-app-sub001/internal/registry"
	"github.com/jhaladik/ai-cto-modular-app-sub001/internal/templatestore"
	"github.com/jhaladik/ai-cto-modular-app-sub001/pkg/types"
)

// Request-level errors. Nothing is executed or recorded when one is returned.
var (
	ErrTopicRequired    = errors.New("topic is required")
	ErrTemplateNotFound = errors.New("pipeline template not found")
	ErrEmptyTemplate    = errors.New("pipeline template has no steps")
)

// ErrWorkerUnavailable is the message stored on a result for a missing or inactive worker.
const ErrWorkerUnavailable = "worker not found or inactive"

// WorkerInvoker performs one worker call. *invoker.Invoker satisfies it.
type WorkerInvoker interface {
	Invoke(ctx context.Context, call invoker.Call) *types.WorkerResult
}

// Config holds executor configuration.
type Config struct {
	// DefaultTemplate is used when a request names no template
	DefaultTemplate string

	// DefaultTimeout applies to steps whose step and worker declare none
	DefaultTimeout time.Duration

	// Defaults seeded into pipeline state when the request omits them
	DefaultSourceDiscoveryDepth int
	DefaultMaxArticles          int

	// SaveTimeout bounds the recorder write after the step loop
	SaveTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DefaultTemplate:             "complete_pipeline",
		DefaultTimeout:              30 * time.Second,
		DefaultSourceDiscoveryDepth: 3,
		DefaultMaxArticles:          50,
		SaveTimeout:                 10 * time.Second,
	}
}

// Executor runs pipelines. It is safe for concurrent use; executions share
// nothing but the read-only stores.
type Executor struct {
	cfg       *Config
	templates templatestore.Store
	workers   registry.WorkerRegistry
	invoker   WorkerInvoker
	recorder  recorder.Recorder
	mapping   *mapping.Engine
	tracer    trace.Tracer
	logger    *slog.Logger

	idMu    sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

// New creates an executor.
func New(templates templatestore.Store, workers registry.WorkerRegistry, inv WorkerInvoker, rec recorder.Recorder, cfg *Config, logger *slog.Logger) *Executor {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		cfg:       cfg,
		templates: templates,
		workers:   workers,
		invoker:   inv,
		recorder:  rec,
		mapping:   mapping.NewEngine(logger),
		tracer:    otel.Tracer("bitware/executor"),
		logger:    logger,
		entropy:   ulid.Monotonic(rand.Reader, 0),
		now:       time.Now,
	}
}

// newID returns a random, time-ordered execution id.
func (e *Executor) newID(t time.Time) string {
	e.idMu.Lock()
	defer e.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), e.entropy).String()
}

// Execute runs the requested template to a terminal status. Step-level
// failures never produce an error; only the request-level errors above (and
// store failures while loading the template) do.
func (e *Executor) Execute(ctx context.Context, req *types.OrchestrateRequest) (*types.PipelineExecution, error) {
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		return nil, ErrTopicRequired
	}

	name := req.PipelineTemplate
	if name == "" {
		name = e.cfg.DefaultTemplate
	}

	tmpl, err := e.templates.Get(ctx, name)
	if errors.Is(err, templatestore.ErrTemplateNotFound) || (err == nil && !tmpl.IsActive) {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("load template %s: %w", name, err)
	}

	steps := tmpl.SortedSteps()
	if len(steps) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyTemplate, name)
	}

	started := e.now().UTC()
	exec := &types.PipelineExecution{
		ID:            e.newID(started),
		Topic:         topic,
		TemplateName:  tmpl.Name,
		Strategy:      req.OptimizeFor,
		Status:        types.ExecutionRunning,
		StartedAt:     started,
		WorkerResults: []*types.WorkerResult{},
	}
	state := e.initialState(req, topic)
	exec.Request = maps.Clone(state)

	ctx, span := e.tracer.Start(ctx, "pipeline.execute", trace.WithAttributes(
		attribute.String("bitware.execution_id", exec.ID),
		attribute.String("bitware.template", tmpl.Name),
		attribute.Int("bitware.step_count", len(steps)),
	))
	defer span.End()

	metrics.ExecutionsActive.Inc()
	defer metrics.ExecutionsActive.Dec()

	log := e.logger.With(
		slog.String("execution_id", exec.ID),
		slog.String("template", tmpl.Name),
	)
	log.Info("pipeline started", slog.String("topic", topic), slog.Int("steps", len(steps)))

	for i := range steps {
		step := &steps[i]

		if !e.mapping.ShouldExecute(step, state) {
			log.Info("step skipped by condition",
				slog.Int("step_order", step.StepOrder),
				slog.String("worker", step.WorkerName),
			)
			metrics.StepsTotal.WithLabelValues(step.WorkerName, "skipped").Inc()
			continue
		}

		result := e.runStep(ctx, step, state, log)
		exec.WorkerResults = append(exec.WorkerResults, result)

		if result.Success {
			state = e.mapping.FoldOutput(step.OutputMapping, result.Data, state)
			continue
		}

		if !step.IsOptional {
			log.Warn("required step failed, stopping pipeline",
				slog.Int("step_order", step.StepOrder),
				slog.String("worker", step.WorkerName),
				slog.String("error", result.ErrorMessage()),
			)
			break
		}
		log.Info("optional step failed, continuing",
			slog.Int("step_order", step.StepOrder),
			slog.String("worker", step.WorkerName),
			slog.String("error", result.ErrorMessage()),
		)
	}

	e.finalize(exec, tmpl, state)

	span.SetAttributes(
		attribute.String("bitware.status", string(exec.Status)),
		attribute.Float64("bitware.cost_usd", exec.TotalCostUsd),
	)
	if exec.Status == types.ExecutionFailed {
		span.SetStatus(codes.Error, "pipeline failed")
	}

	metrics.ExecutionsTotal.WithLabelValues(tmpl.Name, string(exec.Status)).Inc()
	metrics.ExecutionDuration.WithLabelValues(tmpl.Name, string(exec.Status)).
		Observe(float64(exec.TotalExecutionTimeMs) / 1000)
	metrics.ExecutionCostUSD.WithLabelValues(tmpl.Name).Add(exec.TotalCostUsd)

	log.Info("pipeline finished",
		slog.String("status", string(exec.Status)),
		slog.Int("results", len(exec.WorkerResults)),
		slog.Int64("duration_ms", exec.TotalExecutionTimeMs),
		slog.Float64("cost_usd", exec.TotalCostUsd),
	)

	e.save(ctx, exec, log)
	return exec, nil
}

// runStep resolves the worker and invokes it, or synthesizes a failed result
// when the worker cannot be used.
func (e *Executor) runStep(ctx context.Context, step *types.PipelineStep, state map[string]any, log *slog.Logger) *types.WorkerResult {
	ctx, span := e.tracer.Start(ctx, "pipeline.step", trace.WithAttributes(
		attribute.Int("bitware.step_order", step.StepOrder),
		attribute.String("bitware.worker", step.WorkerName),
		attribute.Bool("bitware.optional", step.IsOptional),
	))
	defer span.End()

	worker, err := e.workers.Get(ctx, step.WorkerName)
	if err != nil && !errors.Is(err, registry.ErrWorkerNotFound) {
		log.Warn("worker lookup failed",
			slog.String("worker", step.WorkerName),
			slog.Any("error", err),
		)
	}
	if err != nil || !worker.IsActive {
		msg := ErrWorkerUnavailable
		span.SetStatus(codes.Error, msg)
		metrics.StepsTotal.WithLabelValues(step.WorkerName, "unavailable").Inc()
		return &types.WorkerResult{
			WorkerName:  step.WorkerName,
			StepOrder:   step.StepOrder,
			StepName:    step.StepName,
			Error:       &msg,
			Bottlenecks: []string{types.BottleneckWorkerUnavailable},
		}
	}

	endpoint := step.Endpoint
	if endpoint == "" {
		endpoint = worker.DefaultEndpoint()
	}
	method := worker.Method()
	if step.Method != "" {
		method = types.NormalizeMethod(step.Method)
	}

	result := e.invoker.Invoke(ctx, invoker.Call{
		Binding:    worker.BindingRef,
		WorkerName: worker.Name,
		Endpoint:   endpoint,
		Method:     method,
		Payload:    e.mapping.BuildInput(step.InputMapping, state),
		StepOrder:  step.StepOrder,
		StepName:   step.StepName,
		Timeout:    e.stepTimeout(step, worker),
	})

	outcome := "succeeded"
	if !result.Success {
		outcome = "failed"
		span.SetStatus(codes.Error, result.ErrorMessage())
	}
	metrics.StepsTotal.WithLabelValues(step.WorkerName, outcome).Inc()
	return result
}

// stepTimeout picks the step override, then the worker timeout, then the default.
func (e *Executor) stepTimeout(step *types.PipelineStep, worker *types.WorkerDescriptor) time.Duration {
	if d := step.TimeoutOverride(); d > 0 {
		return d
	}
	if d := worker.Timeout(); d > 0 {
		return d
	}
	return e.cfg.DefaultTimeout
}

// initialState seeds pipeline state from the request. Extra request fields
// pass through verbatim; the named fields take precedence.
func (e *Executor) initialState(req *types.OrchestrateRequest, topic string) map[string]any {
	state := make(map[string]any, len(req.Extra)+4)
	maps.Copy(state, req.Extra)

	state["topic"] = topic

	depth := e.cfg.DefaultSourceDiscoveryDepth
	if req.SourceDiscoveryDepth != nil {
		depth = *req.SourceDiscoveryDepth
	}
	state["source_discovery_depth"] = depth

	maxArticles := e.cfg.DefaultMaxArticles
	if req.MaxArticles != nil {
		maxArticles = *req.MaxArticles
	}
	state["max_articles"] = maxArticles

	if req.OptimizeFor != "" {
		state["optimize_for"] = req.OptimizeFor
	}
	return state
}

func (e *Executor) save(ctx context.Context, exec *types.PipelineExecution, log *slog.Logger) {
	if e.recorder == nil {
		return
	}
	// Persist even if the caller went away during the run.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.SaveTimeout)
	defer cancel()

	if err := e.recorder.Save(ctx, exec); err != nil {
		log.Error("failed to record execution", slog.Any("error", err))
	}
}
