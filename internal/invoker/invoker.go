// Package invoker performs synchronous calls to Bitware worker services and
// normalizes every outcome into a types.WorkerResult. Invoke never returns an
// error: transport failures, non-2xx statuses, timeouts and malformed bodies
// all come back as a failed result.
package invoker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jhaladik/ai-cto-modular-app-sub001/internal/metrics"
	"github.com/jhaladik/ai-cto-modular-app-sub001/internal/requestid"
	"github.com/jhaladik/ai-cto-modular-app-sub001/pkg/types"
)

// Config holds invoker configuration.
type Config struct {
	// SharedSecret is sent as a bearer token to every worker
	SharedSecret string

	// CallerID identifies the orchestrator to workers (X-Worker-ID)
	CallerID string

	// DefaultTimeout applies when a call carries no timeout of its own
	DefaultTimeout time.Duration

	// SlowThreshold tags successful calls slower than this as slow_response (0 disables)
	SlowThreshold time.Duration

	// MaxResponseBytes caps how much of a worker response is read
	MaxResponseBytes int64
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		CallerID:         "orchestrator",
		DefaultTimeout:   30 * time.Second,
		SlowThreshold:    10 * time.Second,
		MaxResponseBytes: 10 << 20,
	}
}

// Call describes one worker invocation.
type Call struct {
	Binding    string
	WorkerName string
	Endpoint   string
	Method     string
	Payload    map[string]any
	StepOrder  int
	StepName   string
	Timeout    time.Duration
}

// Invoker calls worker services over HTTP.
type Invoker struct {
	cfg      Config
	resolver Resolver
	client   *http.Client
	tracer   trace.Tracer
	logger   *slog.Logger
}

// New creates an invoker. A nil client gets an otelhttp-instrumented default.
func New(cfg Config, resolver Resolver, client *http.Client, logger *slog.Logger) *Invoker {
	def := DefaultConfig()
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = def.DefaultTimeout
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = def.MaxResponseBytes
	}
	if cfg.CallerID == "" {
		cfg.CallerID = def.CallerID
	}
	if resolver == nil {
		resolver = StaticResolver{}
	}
	if client == nil {
		client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{
		cfg:      cfg,
		resolver: resolver,
		client:   client,
		tracer:   otel.Tracer("bitware/invoker"),
		logger:   logger,
	}
}

// Invoke calls the worker described by call and returns its normalized result.
func (inv *Invoker) Invoke(ctx context.Context, call Call) *types.WorkerResult {
	method := types.NormalizeMethod(call.Method)
	timeout := call.Timeout
	if timeout <= 0 {
		timeout = inv.cfg.DefaultTimeout
	}

	ctx, span := inv.tracer.Start(ctx, "worker.invoke",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("bitware.worker", call.WorkerName),
			attribute.String("bitware.endpoint", call.Endpoint),
			attribute.String("http.request.method", method),
			attribute.Int("bitware.step_order", call.StepOrder),
		),
	)
	defer span.End()

	result := &types.WorkerResult{
		WorkerName: call.WorkerName,
		StepOrder:  call.StepOrder,
		StepName:   call.StepName,
	}

	start := time.Now()
	body, status, tag, err := inv.do(ctx, call, method, timeout)
	elapsed := time.Since(start)
	result.ExecutionTimeMs = elapsed.Milliseconds()
	result.StatusCode = status

	if err == nil {
		var data any
		if jerr := json.Unmarshal(body, &data); jerr != nil {
			tag, err = types.BottleneckInvalidResponse, fmt.Errorf("decode response: %w", jerr)
		} else {
			result.Success = true
			result.Data = data
			result.CostUsd, result.CacheHit = extractAccounting(data)
		}
	}

	if err != nil {
		msg := err.Error()
		result.Error = &msg
		result.Bottlenecks = []string{tag}
		span.RecordError(err)
		span.SetStatus(codes.Error, msg)
		metrics.WorkerCallDuration.WithLabelValues(call.WorkerName, tag).Observe(elapsed.Seconds())
		inv.logger.Warn("worker call failed",
			slog.String("worker", call.WorkerName),
			slog.String("method", method),
			slog.String("endpoint", call.Endpoint),
			slog.Int("step_order", call.StepOrder),
			slog.String("kind", tag),
			slog.Duration("duration", elapsed),
			slog.String("error", msg),
		)
		return result
	}

	if inv.cfg.SlowThreshold > 0 && elapsed > inv.cfg.SlowThreshold {
		result.Bottlenecks = append(result.Bottlenecks, types.BottleneckSlowResponse)
	}
	span.SetAttributes(
		attribute.Int("http.response.status_code", status),
		attribute.Float64("bitware.cost_usd", result.CostUsd),
		attribute.Bool("bitware.cache_hit", result.CacheHit),
	)
	metrics.WorkerCallDuration.WithLabelValues(call.WorkerName, "success").Observe(elapsed.Seconds())
	inv.logger.Debug("worker call succeeded",
		slog.String("worker", call.WorkerName),
		slog.Int("step_order", call.StepOrder),
		slog.Int("status", status),
		slog.Duration("duration", elapsed),
	)
	return result
}

// do performs the HTTP exchange. On failure it returns the failure-kind tag.
func (inv *Invoker) do(ctx context.Context, call Call, method string, timeout time.Duration) ([]byte, int, string, error) {
	base, err := inv.resolver.Resolve(call.Binding)
	if err != nil {
		return nil, 0, types.BottleneckWorkerUnavailable, fmt.Errorf("worker %s: %w", call.WorkerName, err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := inv.newRequest(ctx, joinURL(base, call.Endpoint), method, call.Payload)
	if err != nil {
		return nil, 0, types.BottleneckTransportError, fmt.Errorf("build request: %w", err)
	}

	resp, err := inv.client.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, 0, types.BottleneckTimeout, fmt.Errorf("worker %s timed out after %s", call.WorkerName, timeout)
		}
		return nil, 0, types.BottleneckTransportError, fmt.Errorf("call worker %s: %w", call.WorkerName, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, inv.cfg.MaxResponseBytes+1))
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, resp.StatusCode, types.BottleneckTimeout, fmt.Errorf("worker %s timed out after %s", call.WorkerName, timeout)
		}
		return nil, resp.StatusCode, types.BottleneckTransportError, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if msg := snippet(body); msg != "" {
			return nil, resp.StatusCode, types.BottleneckHTTPError, fmt.Errorf("HTTP %d: %s", resp.StatusCode, msg)
		}
		return nil, resp.StatusCode, types.BottleneckHTTPError, fmt.Errorf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	if int64(len(body)) > inv.cfg.MaxResponseBytes {
		return nil, resp.StatusCode, types.BottleneckInvalidResponse,
			fmt.Errorf("response exceeds %d bytes", inv.cfg.MaxResponseBytes)
	}

	return body, resp.StatusCode, "", nil
}

func (inv *Invoker) newRequest(ctx context.Context, target, method string, payload map[string]any) (*http.Request, error) {
	var req *http.Request
	var err error

	if method == http.MethodGet {
		u, perr := url.Parse(target)
		if perr != nil {
			return nil, perr
		}
		q := u.Query()
		for k, v := range EncodeQuery(payload) {
			q[k] = v
		}
		u.RawQuery = q.Encode()
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	} else {
		body, merr := json.Marshal(payload)
		if merr != nil {
			return nil, merr
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	}
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	if inv.cfg.SharedSecret != "" {
		req.Header.Set("Authorization", "Bearer "+inv.cfg.SharedSecret)
	}
	req.Header.Set("X-Worker-ID", inv.cfg.CallerID)
	if id := requestid.FromContext(ctx); id != "" {
		req.Header.Set(requestid.Header, id)
	}
	return req, nil
}

// EncodeQuery renders a payload as query parameters. Arrays are joined with
// commas, objects are JSON-encoded and null values are omitted.
func EncodeQuery(payload map[string]any) url.Values {
	q := make(url.Values, len(payload))
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := payload[k]
		if v == nil {
			continue
		}
		if list, ok := v.([]any); ok {
			parts := make([]string, 0, len(list))
			for _, item := range list {
				parts = append(parts, queryScalar(item))
			}
			q.Set(k, strings.Join(parts, ","))
			continue
		}
		q.Set(k, queryScalar(v))
	}
	return q
}

func queryScalar(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	default:
		return fmt.Sprint(x)
	}
}

// extractAccounting reads the optional cost_usd and cached/cache_hit fields.
func extractAccounting(data any) (float64, bool) {
	obj, ok := data.(map[string]any)
	if !ok {
		return 0, false
	}
	cost, _ := obj["cost_usd"].(float64)
	cached, _ := obj["cached"].(bool)
	if !cached {
		cached, _ = obj["cache_hit"].(bool)
	}
	return cost, cached
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}

func snippet(body []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
