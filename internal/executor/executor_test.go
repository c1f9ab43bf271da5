package executor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jhaladik/ai-cto-modular-app-sub001/internal/invoker"
	"github.com/jhaladik/ai-cto-modular-app-sub001/internal/recorder"
	"github.com/jhaladik/ai-cto-modular-app-sub001/internal/registry"
	"github.com/jhaladik/ai-cto-modular-app-sub001/internal/templatestore"
	"github.com/jhaladik/ai-cto-modular-app-sub001/pkg/types"
)

// fakeInvoker answers calls from a per-worker script and records every call.
type fakeInvoker struct {
	mu      sync.Mutex
	calls   []invoker.Call
	replies map[string]func(invoker.Call) *types.WorkerResult
}

func (f *fakeInvoker) Invoke(ctx context.Context, call invoker.Call) *types.WorkerResult {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	reply := f.replies[call.WorkerName]
	f.mu.Unlock()

	if reply == nil {
		return failed(call, "no reply scripted")
	}
	res := reply(call)
	res.WorkerName, res.StepOrder, res.StepName = call.WorkerName, call.StepOrder, call.StepName
	return res
}

func (f *fakeInvoker) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(f.calls))
	for i, c := range f.calls {
		names[i] = c.WorkerName
	}
	return names
}

func ok(data map[string]any) func(invoker.Call) *types.WorkerResult {
	return func(invoker.Call) *types.WorkerResult {
		cost, _ := data["cost_usd"].(float64)
		return &types.WorkerResult{Success: true, Data: data, CostUsd: cost}
	}
}

func failed(call invoker.Call, msg string) *types.WorkerResult {
	return &types.WorkerResult{
		WorkerName:  call.WorkerName,
		StepOrder:   call.StepOrder,
		Error:       &msg,
		Bottlenecks: []string{types.BottleneckHTTPError},
	}
}

func fail(msg string) func(invoker.Call) *types.WorkerResult {
	return func(c invoker.Call) *types.WorkerResult { return failed(c, msg) }
}

// failingRecorder rejects every save.
type failingRecorder struct {
	recorder.Recorder
}

func (failingRecorder) Save(ctx context.Context, exec *types.PipelineExecution) error {
	return errors.New("store down")
}

type fixture struct {
	exec      *Executor
	inv       *fakeInvoker
	rec       *recorder.MemoryRecorder
	templates *templatestore.MemoryStore
	workers   *registry.MemoryRegistry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	workers := registry.NewMemoryRegistry()
	for _, name := range []string{"topic_researcher", "rss_librarian", "feed_fetcher", "content_classifier", "report_builder"} {
		if _, err := workers.Upsert(ctx, &types.WorkerDescriptor{
			Name:       name,
			BindingRef: "BINDING_" + name,
			IsActive:   true,
		}); err != nil {
			t.Fatalf("seed worker: %v", err)
		}
	}

	f := &fixture{
		inv:       &fakeInvoker{replies: map[string]func(invoker.Call) *types.WorkerResult{}},
		rec:       recorder.NewMemoryRecorder(0),
		templates: templatestore.NewMemoryStore(),
		workers:   workers,
	}
	f.exec = New(f.templates, f.workers, f.inv, f.rec, nil, nil)
	return f
}

func (f *fixture) template(t *testing.T, tmpl *types.PipelineTemplate) {
	t.Helper()
	if _, err := f.templates.Upsert(context.Background(), tmpl); err != nil {
		t.Fatalf("seed template: %v", err)
	}
}

// threeStep is researcher -> librarian (optional) -> classifier.
func threeStep() *types.PipelineTemplate {
	return &types.PipelineTemplate{
		Name:     "research",
		IsActive: true,
		Steps: []types.PipelineStep{
			{
				StepOrder:     3,
				WorkerName:    "content_classifier",
				InputMapping:  map[string]any{"sources": "$.all_sources", "topic": "$.topic"},
				OutputMapping: map[string]any{"articles": "$.articles"},
			},
			{
				StepOrder:     1,
				WorkerName:    "topic_researcher",
				InputMapping:  map[string]any{"topic": "$.topic", "depth": "$.source_discovery_depth"},
				OutputMapping: map[string]any{"sources": "$.sources"},
			},
			{
				StepOrder:     2,
				WorkerName:    "rss_librarian",
				IsOptional:    true,
				InputMapping:  map[string]any{"topic": "$.topic"},
				OutputMapping: map[string]any{"additional_sources": "$.feeds"},
			},
		},
	}
}

func TestExecute_AllStepsSucceed(t *testing.T) {
	f := newFixture(t)
	f.template(t, threeStep())

	f.inv.replies["topic_researcher"] = ok(map[string]any{
		"sources":       []any{map[string]any{"url": "https://a"}, map[string]any{"url": "https://b"}},
		"quality_score": 0.8,
		"cost_usd":      0.10,
	})
	f.inv.replies["rss_librarian"] = ok(map[string]any{
		"feeds":    []any{map[string]any{"url": "https://c"}},
		"cost_usd": 0.05,
	})
	f.inv.replies["content_classifier"] = ok(map[string]any{
		"articles":          []any{"x", "y", "z"},
		"avg_quality_score": 0.6,
		"cost_usd":          0.25,
	})

	depth := 5
	exec, err := f.exec.Execute(context.Background(), &types.OrchestrateRequest{
		Topic:                "quantum computing",
		PipelineTemplate:     "research",
		SourceDiscoveryDepth: &depth,
		Extra:                map[string]any{"language": "en"},
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if exec.Status != types.ExecutionCompleted {
		t.Errorf("status = %s, want completed", exec.Status)
	}
	if got := f.inv.called(); len(got) != 3 || got[0] != "topic_researcher" || got[1] != "rss_librarian" || got[2] != "content_classifier" {
		t.Errorf("call order = %v", got)
	}

	first := f.inv.calls[0]
	if first.Payload["depth"] != 5 || first.Payload["topic"] != "quantum computing" {
		t.Errorf("first payload = %v", first.Payload)
	}
	if first.Binding != "BINDING_topic_researcher" {
		t.Errorf("binding = %q", first.Binding)
	}

	third := f.inv.calls[2].Payload
	urls, _ := third["feed_urls"].([]any)
	if len(urls) != 3 || urls[2] != "https://c" {
		t.Errorf("feed_urls = %v, want all three urls", third["feed_urls"])
	}

	if len(exec.WorkerResults) != 3 {
		t.Fatalf("results = %d, want 3", len(exec.WorkerResults))
	}
	for i, r := range exec.WorkerResults {
		if r.StepOrder != i+1 {
			t.Errorf("result %d step order = %d", i, r.StepOrder)
		}
	}

	if got, want := exec.TotalCostUsd, 0.40; got < want-1e-9 || got > want+1e-9 {
		t.Errorf("total cost = %v, want %v", got, want)
	}
	if got, want := exec.FinalQualityScore, 0.7; got < want-1e-9 || got > want+1e-9 {
		t.Errorf("quality = %v, want %v", got, want)
	}
	if exec.SourcesDiscovered != 3 {
		t.Errorf("sources discovered = %d, want 3", exec.SourcesDiscovered)
	}
	if exec.ArticlesProcessed != 3 {
		t.Errorf("articles processed = %d, want 3", exec.ArticlesProcessed)
	}
	if exec.Request["language"] != "en" || exec.Request["max_articles"] != 50 {
		t.Errorf("request state = %v", exec.Request)
	}
	if exec.CompletedAt == nil || exec.CompletedAt.Before(exec.StartedAt) {
		t.Error("completed_at should be set after started_at")
	}

	stored, err := f.rec.Get(context.Background(), exec.ID)
	if err != nil {
		t.Fatalf("recorder Get: %v", err)
	}
	if stored.Status != types.ExecutionCompleted || len(stored.WorkerResults) != 3 {
		t.Errorf("stored = %s with %d results", stored.Status, len(stored.WorkerResults))
	}
}

func TestExecute_RequiredFailureStops(t *testing.T) {
	f := newFixture(t)
	f.template(t, threeStep())

	f.inv.replies["topic_researcher"] = fail("HTTP 503: unavailable")

	exec, err := f.exec.Execute(context.Background(), &types.OrchestrateRequest{Topic: "ai", PipelineTemplate: "research"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if exec.Status != types.ExecutionFailed {
		t.Errorf("status = %s, want failed", exec.Status)
	}
	if got := f.inv.called(); len(got) != 1 {
		t.Errorf("calls = %v, want only the first step", got)
	}
	if len(exec.WorkerResults) != 1 || exec.WorkerResults[0].Success {
		t.Errorf("results = %+v", exec.WorkerResults)
	}
}

func TestExecute_RequiredFailureAfterSuccessIsPartial(t *testing.T) {
	f := newFixture(t)
	f.template(t, threeStep())

	f.inv.replies["topic_researcher"] = ok(map[string]any{"sources": []any{"https://a"}})
	f.inv.replies["rss_librarian"] = ok(map[string]any{})
	f.inv.replies["content_classifier"] = fail("HTTP 500: boom")

	exec, err := f.exec.Execute(context.Background(), &types.OrchestrateRequest{Topic: "ai", PipelineTemplate: "research"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if exec.Status != types.ExecutionPartial {
		t.Errorf("status = %s, want partial", exec.Status)
	}
	if len(exec.WorkerResults) != 3 {
		t.Errorf("results = %d, want 3", len(exec.WorkerResults))
	}
}

func TestExecute_OptionalFailureContinues(t *testing.T) {
	f := newFixture(t)
	f.template(t, threeStep())

	f.inv.replies["topic_researcher"] = ok(map[string]any{"sources": []any{"https://a"}})
	f.inv.replies["rss_librarian"] = fail("timed out")
	f.inv.replies["content_classifier"] = ok(map[string]any{"articles": []any{"x"}})

	exec, err := f.exec.Execute(context.Background(), &types.OrchestrateRequest{Topic: "ai", PipelineTemplate: "research"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if exec.Status != types.ExecutionCompleted {
		t.Errorf("status = %s, want completed", exec.Status)
	}
	if len(exec.WorkerResults) != 3 || exec.WorkerResults[1].Success {
		t.Errorf("results = %+v", exec.WorkerResults)
	}
	// the failed optional step leaves state untouched
	if _, ok := exec.FinalState["additional_sources"]; ok {
		t.Error("additional_sources should be absent after optional failure")
	}
	if exec.SourcesDiscovered != 1 {
		t.Errorf("sources discovered = %d, want 1", exec.SourcesDiscovered)
	}
}

func TestExecute_SingleOptionalFailure(t *testing.T) {
	f := newFixture(t)
	f.template(t, &types.PipelineTemplate{
		Name:     "optional_only",
		IsActive: true,
		Steps: []types.PipelineStep{
			{StepOrder: 1, WorkerName: "rss_librarian", IsOptional: true},
		},
	})
	f.inv.replies["rss_librarian"] = fail("HTTP 500: boom")

	exec, err := f.exec.Execute(context.Background(), &types.OrchestrateRequest{Topic: "ai", PipelineTemplate: "optional_only"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if exec.Status != types.ExecutionFailed {
		t.Errorf("status = %s, want failed", exec.Status)
	}
	if len(exec.WorkerResults) != 1 {
		t.Fatalf("results = %d, want 1", len(exec.WorkerResults))
	}
	if r := exec.WorkerResults[0]; r.Success || r.ErrorMessage() == "" {
		t.Errorf("result = %+v, want an unsuccessful result with an error", r)
	}
}

func TestExecute_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.template(t, threeStep())

	f.inv.replies["topic_researcher"] = ok(map[string]any{"sources": []any{"https://a", "https://b"}})
	f.inv.replies["rss_librarian"] = fail("timed out")
	f.inv.replies["content_classifier"] = ok(map[string]any{"articles": []any{"x", "y"}})

	req := func() *types.OrchestrateRequest {
		return &types.OrchestrateRequest{Topic: "ai", PipelineTemplate: "research"}
	}
	first, err := f.exec.Execute(context.Background(), req())
	if err != nil {
		t.Fatalf("first Execute failed: %v", err)
	}
	second, err := f.exec.Execute(context.Background(), req())
	if err != nil {
		t.Fatalf("second Execute failed: %v", err)
	}

	if first.ID == second.ID {
		t.Error("executions should get distinct ids")
	}
	if first.Status != second.Status {
		t.Errorf("status %s != %s", first.Status, second.Status)
	}
	if first.SourcesDiscovered != second.SourcesDiscovered || first.ArticlesProcessed != second.ArticlesProcessed {
		t.Errorf("counts differ: %d/%d vs %d/%d",
			first.SourcesDiscovered, first.ArticlesProcessed, second.SourcesDiscovered, second.ArticlesProcessed)
	}
	if len(first.WorkerResults) != len(second.WorkerResults) {
		t.Fatalf("results %d != %d", len(first.WorkerResults), len(second.WorkerResults))
	}
	for i := range first.WorkerResults {
		if first.WorkerResults[i].Success != second.WorkerResults[i].Success {
			t.Errorf("step %d success differs", first.WorkerResults[i].StepOrder)
		}
	}
}

func TestExecute_ConditionSkipsStep(t *testing.T) {
	f := newFixture(t)
	tmpl := threeStep()
	tmpl.Steps[2].Conditions = map[string]string{"sources_available": "> 0"} // rss_librarian
	f.template(t, tmpl)

	f.inv.replies["topic_researcher"] = ok(map[string]any{"sources": []any{}})
	f.inv.replies["content_classifier"] = ok(map[string]any{})

	exec, err := f.exec.Execute(context.Background(), &types.OrchestrateRequest{Topic: "ai", PipelineTemplate: "research"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if got := f.inv.called(); len(got) != 2 || got[1] != "content_classifier" {
		t.Errorf("calls = %v, want librarian skipped", got)
	}
	if len(exec.WorkerResults) != 2 {
		t.Errorf("results = %d, want 2 (skipped steps are not recorded)", len(exec.WorkerResults))
	}
	if exec.Status != types.ExecutionCompleted {
		t.Errorf("status = %s, want completed", exec.Status)
	}
}

func TestExecute_InactiveWorker(t *testing.T) {
	tests := []struct {
		name       string
		optional   bool
		wantStatus types.ExecutionStatus
		wantCalls  int
	}{
		{name: "required", optional: false, wantStatus: types.ExecutionPartial, wantCalls: 1},
		{name: "optional", optional: true, wantStatus: types.ExecutionCompleted, wantCalls: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			f.workers.Upsert(ctx, &types.WorkerDescriptor{Name: "feed_fetcher", BindingRef: "X", IsActive: false})
			f.template(t, &types.PipelineTemplate{
				Name:     "fetch",
				IsActive: true,
				Steps: []types.PipelineStep{
					{StepOrder: 1, WorkerName: "topic_researcher"},
					{StepOrder: 2, WorkerName: "feed_fetcher", IsOptional: tt.optional},
					{StepOrder: 3, WorkerName: "missing_worker", IsOptional: true},
					{StepOrder: 4, WorkerName: "report_builder"},
				},
			})
			f.inv.replies["topic_researcher"] = ok(map[string]any{})
			f.inv.replies["report_builder"] = ok(map[string]any{})

			exec, err := f.exec.Execute(ctx, &types.OrchestrateRequest{Topic: "ai", PipelineTemplate: "fetch"})
			if err != nil {
				t.Fatalf("Execute failed: %v", err)
			}

			if exec.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", exec.Status, tt.wantStatus)
			}
			if got := f.inv.called(); len(got) != tt.wantCalls {
				t.Errorf("calls = %v, want %d", got, tt.wantCalls)
			}
			r := exec.WorkerResults[1]
			if r.Success || r.ErrorMessage() != ErrWorkerUnavailable {
				t.Errorf("result = %+v, want worker unavailable", r)
			}
			if len(r.Bottlenecks) != 1 || r.Bottlenecks[0] != types.BottleneckWorkerUnavailable {
				t.Errorf("bottlenecks = %v", r.Bottlenecks)
			}
		})
	}
}

func TestExecute_RequestErrors(t *testing.T) {
	f := newFixture(t)
	f.template(t, threeStep())
	f.template(t, &types.PipelineTemplate{
		Name:  "retired",
		Steps: []types.PipelineStep{{StepOrder: 1, WorkerName: "topic_researcher"}},
	})

	tests := []struct {
		name    string
		req     *types.OrchestrateRequest
		wantErr error
	}{
		{name: "missing topic", req: &types.OrchestrateRequest{PipelineTemplate: "research"}, wantErr: ErrTopicRequired},
		{name: "blank topic", req: &types.OrchestrateRequest{Topic: "  ", PipelineTemplate: "research"}, wantErr: ErrTopicRequired},
		{name: "unknown template", req: &types.OrchestrateRequest{Topic: "ai", PipelineTemplate: "nope"}, wantErr: ErrTemplateNotFound},
		{name: "inactive template", req: &types.OrchestrateRequest{Topic: "ai", PipelineTemplate: "retired"}, wantErr: ErrTemplateNotFound},
		{name: "default template missing", req: &types.OrchestrateRequest{Topic: "ai"}, wantErr: ErrTemplateNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec, err := f.exec.Execute(context.Background(), tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if exec != nil {
				t.Error("execution should be nil on request errors")
			}
		})
	}

	if len(f.inv.called()) != 0 {
		t.Error("no worker should be called for rejected requests")
	}
	if list, _ := f.rec.List(context.Background(), 0); len(list) != 0 {
		t.Errorf("recorded %d executions, want 0", len(list))
	}
}

// emptyStore serves a template with no steps, which MemoryStore refuses to hold.
type emptyStore struct {
	templatestore.Store
}

func (emptyStore) Get(ctx context.Context, name string) (*types.PipelineTemplate, error) {
	return &types.PipelineTemplate{Name: name, IsActive: true}, nil
}

func TestExecute_EmptyTemplate(t *testing.T) {
	f := newFixture(t)
	exec := New(emptyStore{}, f.workers, f.inv, f.rec, nil, nil)

	if _, err := exec.Execute(context.Background(), &types.OrchestrateRequest{Topic: "ai"}); !errors.Is(err, ErrEmptyTemplate) {
		t.Errorf("err = %v, want ErrEmptyTemplate", err)
	}
}

func TestExecute_RecorderFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.template(t, threeStep())
	f.inv.replies["topic_researcher"] = ok(map[string]any{})
	f.inv.replies["rss_librarian"] = ok(map[string]any{})
	f.inv.replies["content_classifier"] = ok(map[string]any{})

	exec := New(f.templates, f.workers, f.inv, failingRecorder{}, nil, nil)
	got, err := exec.Execute(context.Background(), &types.OrchestrateRequest{Topic: "ai", PipelineTemplate: "research"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if got.Status != types.ExecutionCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
}

func TestExecute_CallerCancelStillRecords(t *testing.T) {
	f := newFixture(t)
	f.template(t, &types.PipelineTemplate{
		Name:     "one",
		IsActive: true,
		Steps:    []types.PipelineStep{{StepOrder: 1, WorkerName: "topic_researcher"}},
	})

	ctx, cancel := context.WithCancel(context.Background())
	f.inv.replies["topic_researcher"] = func(invoker.Call) *types.WorkerResult {
		cancel()
		return &types.WorkerResult{Success: true, Data: map[string]any{}}
	}

	exec, err := f.exec.Execute(ctx, &types.OrchestrateRequest{Topic: "ai", PipelineTemplate: "one"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if _, err := f.rec.Get(context.Background(), exec.ID); err != nil {
		t.Errorf("execution not recorded after cancel: %v", err)
	}
}

func TestStepTimeout(t *testing.T) {
	e := New(nil, nil, nil, nil, &Config{DefaultTimeout: 7 * time.Second}, nil)

	tests := []struct {
		name   string
		step   types.PipelineStep
		worker types.WorkerDescriptor
		want   time.Duration
	}{
		{name: "step override wins", step: types.PipelineStep{TimeoutOverrideMs: 1500}, worker: types.WorkerDescriptor{TimeoutMs: 9000}, want: 1500 * time.Millisecond},
		{name: "worker timeout", worker: types.WorkerDescriptor{TimeoutMs: 9000}, want: 9 * time.Second},
		{name: "default", want: 7 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.stepTimeout(&tt.step, &tt.worker); got != tt.want {
				t.Errorf("stepTimeout() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestExecute_EndpointAndMethod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.workers.Upsert(ctx, &types.WorkerDescriptor{
		Name:          "rss_librarian",
		BindingRef:    "LIB",
		IsActive:      true,
		Endpoints:     []string{"/search"},
		DefaultMethod: "GET",
	})
	f.template(t, &types.PipelineTemplate{
		Name:     "lib",
		IsActive: true,
		Steps: []types.PipelineStep{
			{StepOrder: 1, WorkerName: "rss_librarian"},
			{StepOrder: 2, WorkerName: "rss_librarian", Endpoint: "/feeds", Method: "post", TimeoutOverrideMs: 250},
		},
	})
	f.inv.replies["rss_librarian"] = ok(map[string]any{})

	if _, err := f.exec.Execute(ctx, &types.OrchestrateRequest{Topic: "ai", PipelineTemplate: "lib"}); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	calls := f.inv.calls
	if calls[0].Endpoint != "/search" || calls[0].Method != http.MethodGet {
		t.Errorf("first call = %s %s, want GET /search", calls[0].Method, calls[0].Endpoint)
	}
	if calls[1].Endpoint != "/feeds" || calls[1].Method != http.MethodPost || calls[1].Timeout != 250*time.Millisecond {
		t.Errorf("second call = %s %s %s", calls[1].Method, calls[1].Endpoint, calls[1].Timeout)
	}
}

func TestExecutionIDsAreUniqueAndOrdered(t *testing.T) {
	e := New(nil, nil, nil, nil, nil, nil)
	now := time.Now()

	ids := make([]string, 100)
	seen := make(map[string]bool, len(ids))
	for i := range ids {
		ids[i] = e.newID(now)
		if seen[ids[i]] {
			t.Fatalf("duplicate id %s", ids[i])
		}
		seen[ids[i]] = true
	}
	if !sort.StringsAreSorted(ids) {
		t.Error("ids minted in the same millisecond should sort in creation order")
	}
}

func TestExecute_ThroughHTTPWorkers(t *testing.T) {
	var mu sync.Mutex
	var seen []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Method+" "+r.URL.Path)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/discover":
			json.NewEncoder(w).Encode(map[string]any{
				"sources":  []any{map[string]any{"url": "https://feed.example/rss"}},
				"cost_usd": 0.02,
			})
		case "/analyze":
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			urls, _ := body["feed_urls"].([]any)
			json.NewEncoder(w).Encode(map[string]any{
				"articles":      []any{"a"},
				"urls_received": len(urls),
				"quality_score": 0.9,
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	workers := registry.NewMemoryRegistry()
	workers.Upsert(ctx, &types.WorkerDescriptor{Name: "topic_researcher", BindingRef: "RESEARCHER", IsActive: true, Endpoints: []string{"/discover"}})
	workers.Upsert(ctx, &types.WorkerDescriptor{Name: "content_classifier", BindingRef: "CLASSIFIER", IsActive: true, Endpoints: []string{"/analyze"}})

	templates := templatestore.NewMemoryStore()
	templates.Upsert(ctx, &types.PipelineTemplate{
		Name:     "complete_pipeline",
		IsActive: true,
		Steps: []types.PipelineStep{
			{StepOrder: 1, WorkerName: "topic_researcher", InputMapping: map[string]any{"topic": "$.topic"}, OutputMapping: map[string]any{"sources": "$.sources"}},
			{StepOrder: 2, WorkerName: "content_classifier", InputMapping: map[string]any{"sources": "$.sources"}, OutputMapping: map[string]any{"articles": "$.articles", "urls_received": "$.urls_received"}},
		},
	})

	inv := invoker.New(invoker.Config{SharedSecret: "secret"}, invoker.StaticResolver{
		"RESEARCHER": srv.URL,
		"CLASSIFIER": srv.URL,
	}, srv.Client(), nil)
	rec := recorder.NewMemoryRecorder(0)

	exec, err := New(templates, workers, inv, rec, nil, nil).Execute(ctx, &types.OrchestrateRequest{Topic: "ai"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if exec.Status != types.ExecutionCompleted {
		t.Fatalf("status = %s, results = %+v", exec.Status, exec.WorkerResults)
	}
	if exec.TemplateName != "complete_pipeline" {
		t.Errorf("template = %s, want default", exec.TemplateName)
	}
	if got := exec.FinalState["urls_received"]; got != 1.0 {
		t.Errorf("urls_received = %v, want 1", got)
	}
	if exec.FinalQualityScore != 0.9 || exec.TotalCostUsd != 0.02 {
		t.Errorf("aggregates = %v/%v", exec.FinalQualityScore, exec.TotalCostUsd)
	}
	if len(seen) != 2 || seen[0] != "POST /discover" || seen[1] != "POST /analyze" {
		t.Errorf("requests = %v", seen)
	}
}
