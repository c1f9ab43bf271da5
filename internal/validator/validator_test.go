package validator

import (
	"strings"
	"testing"

	"github.com/jhaladik/ai-cto-modular-app-sub001/pkg/types"
)

func newValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return v
}

func TestValidateRequestJSON(t *testing.T) {
	v := newValidator(t)

	tests := []struct {
		name      string
		body      string
		wantValid bool
		wantPath  string
	}{
		{name: "minimal", body: `{"topic":"renewable energy"}`, wantValid: true},
		{name: "mixed-case template name", body: `{"topic":"ai","pipeline_template":"Two-Step"}`, wantValid: true},
		{name: "full", body: `{"topic":"ai","pipeline_template":"research_only","source_discovery_depth":2,"max_articles":10,"optimize_for":"speed","language":"en"}`, wantValid: true},
		{name: "missing topic", body: `{"max_articles":5}`, wantValid: false},
		{name: "blank topic", body: `{"topic":"   "}`, wantValid: false, wantPath: "/topic"},
		{name: "topic not a string", body: `{"topic":42}`, wantValid: false, wantPath: "/topic"},
		{name: "fractional depth", body: `{"topic":"ai","source_discovery_depth":1.5}`, wantValid: false, wantPath: "/source_discovery_depth"},
		{name: "too many articles", body: `{"topic":"ai","max_articles":5000}`, wantValid: false, wantPath: "/max_articles"},
		{name: "not json", body: `{topic:`, wantValid: false, wantPath: "$"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.ValidateRequestJSON([]byte(tt.body))
			if res.Valid != tt.wantValid {
				t.Fatalf("Valid = %v, want %v (errors: %+v)", res.Valid, tt.wantValid, res.Errors)
			}
			if tt.wantPath == "" {
				return
			}
			found := false
			for _, e := range res.Errors {
				if e.Path == tt.wantPath {
					found = true
				}
			}
			if !found {
				t.Errorf("errors = %+v, want one at %s", res.Errors, tt.wantPath)
			}
		})
	}
}

func TestValidateTemplate(t *testing.T) {
	v := newValidator(t)

	valid := &types.PipelineTemplate{
		Name:     "rss_only",
		IsActive: true,
		Steps: []types.PipelineStep{
			{
				StepOrder:     1,
				WorkerName:    "rss_librarian",
				Method:        "get",
				Endpoint:      "/search",
				Conditions:    map[string]string{"sources_available": "> 0"},
				InputMapping:  map[string]any{"topic": "$.topic", "limit": 20},
				OutputMapping: map[string]any{"sources": "$.feeds"},
			},
		},
	}
	if res := v.ValidateTemplate(valid); !res.Valid {
		t.Fatalf("valid template rejected: %+v", res.Errors)
	}

	tests := []struct {
		name   string
		mutate func(*types.PipelineTemplate)
	}{
		{name: "no steps", mutate: func(p *types.PipelineTemplate) { p.Steps = nil }},
		{name: "bad name", mutate: func(p *types.PipelineTemplate) { p.Name = "Has Spaces" }},
		{name: "zero step order", mutate: func(p *types.PipelineTemplate) { p.Steps[0].StepOrder = 0 }},
		{name: "bad method", mutate: func(p *types.PipelineTemplate) { p.Steps[0].Method = "DELETE" }},
		{name: "relative endpoint", mutate: func(p *types.PipelineTemplate) { p.Steps[0].Endpoint = "search" }},
		{name: "literal output mapping", mutate: func(p *types.PipelineTemplate) { p.Steps[0].OutputMapping = map[string]any{"x": 1} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl := *valid
			tmpl.Steps = append([]types.PipelineStep(nil), valid.Steps...)
			tt.mutate(&tmpl)

			res := v.ValidateTemplate(&tmpl)
			if res.Valid {
				t.Error("expected template to be rejected")
			}
			if res.Err() == nil {
				t.Error("Err() should be non-nil for invalid result")
			}
		})
	}
}

func TestValidateWorker(t *testing.T) {
	v := newValidator(t)

	if res := v.ValidateWorker(&types.WorkerDescriptor{Name: "feed_fetcher", BindingRef: "FEED_FETCHER", Endpoints: []string{"/fetch"}}); !res.Valid {
		t.Errorf("valid worker rejected: %+v", res.Errors)
	}

	res := v.ValidateWorker(&types.WorkerDescriptor{Name: "feed_fetcher"})
	if res.Valid {
		t.Fatal("worker without binding_ref accepted")
	}
	if !strings.Contains(res.Err().Error(), "binding_ref") {
		t.Errorf("Err() = %v, want mention of binding_ref", res.Err())
	}
}

func TestValidationResult_Err(t *testing.T) {
	if err := (&ValidationResult{Valid: true}).Err(); err != nil {
		t.Errorf("Err() = %v, want nil", err)
	}
	res := &ValidationResult{Errors: []ValidationError{{Path: "/a", Message: "x"}, {Path: "/b", Message: "y"}}}
	if got := res.Err().Error(); got != "/a: x; /b: y" {
		t.Errorf("Err() = %q", got)
	}
}
