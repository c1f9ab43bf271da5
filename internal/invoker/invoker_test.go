package invoker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jhaladik/ai-cto-modular-app-sub001/internal/requestid"
	"github.com/jhaladik/ai-cto-modular-app-sub001/pkg/types"
)

func newTestInvoker(t *testing.T, handler http.HandlerFunc, cfg Config) (*Invoker, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	inv := New(cfg, StaticResolver{"worker-binding": srv.URL}, srv.Client(), nil)
	return inv, srv
}

func TestInvoke_PostSuccess(t *testing.T) {
	var gotBody map[string]any
	var gotHeaders http.Header
	var gotPath, gotMethod string

	inv, _ := newTestInvoker(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod, gotHeaders = r.URL.Path, r.Method, r.Header.Clone()
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[1,2],"cost_usd":0.25,"cached":true}`))
	}, Config{SharedSecret: "s3cret", CallerID: "bitware_orchestrator"})

	ctx := requestid.NewContext(context.Background(), "req-1")
	res := inv.Invoke(ctx, Call{
		Binding:    "worker-binding",
		WorkerName: "content_classifier",
		Endpoint:   "/analyze",
		Method:     "POST",
		Payload:    map[string]any{"topic": "ai"},
		StepOrder:  4,
	})

	if !res.Success {
		t.Fatalf("Success = false, error = %s", res.ErrorMessage())
	}
	if gotPath != "/analyze" || gotMethod != http.MethodPost {
		t.Errorf("request = %s %s, want POST /analyze", gotMethod, gotPath)
	}
	if gotBody["topic"] != "ai" {
		t.Errorf("body topic = %v, want ai", gotBody["topic"])
	}
	if got := gotHeaders.Get("Authorization"); got != "Bearer s3cret" {
		t.Errorf("Authorization = %q", got)
	}
	if got := gotHeaders.Get("X-Worker-ID"); got != "bitware_orchestrator" {
		t.Errorf("X-Worker-ID = %q", got)
	}
	if got := gotHeaders.Get("X-Request-ID"); got != "req-1" {
		t.Errorf("X-Request-ID = %q", got)
	}
	if got := gotHeaders.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
	if res.CostUsd != 0.25 || !res.CacheHit {
		t.Errorf("cost/cache = %v/%v, want 0.25/true", res.CostUsd, res.CacheHit)
	}
	if res.StepOrder != 4 || res.WorkerName != "content_classifier" {
		t.Errorf("result identity = %d/%s", res.StepOrder, res.WorkerName)
	}
	if res.Error != nil {
		t.Errorf("Error = %v, want nil", *res.Error)
	}
	data, ok := res.Data.(map[string]any)
	if !ok || data["items"] == nil {
		t.Errorf("Data = %v, want parsed body", res.Data)
	}
}

func TestInvoke_GetQuery(t *testing.T) {
	var gotQuery map[string][]string

	inv, _ := newTestInvoker(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		gotQuery = r.URL.Query()
		w.Write([]byte(`{"ok":true,"cache_hit":true}`))
	}, Config{})

	res := inv.Invoke(context.Background(), Call{
		Binding:    "worker-binding",
		WorkerName: "rss_librarian",
		Endpoint:   "search",
		Method:     "get",
		Payload: map[string]any{
			"topic":   "space",
			"tags":    []any{"a", "b", 3.0},
			"limit":   20.0,
			"missing": nil,
		},
	})

	if !res.Success {
		t.Fatalf("Success = false, error = %s", res.ErrorMessage())
	}
	if got := gotQuery["topic"]; len(got) != 1 || got[0] != "space" {
		t.Errorf("topic = %v", got)
	}
	if got := gotQuery["tags"]; len(got) != 1 || got[0] != "a,b,3" {
		t.Errorf("tags = %v, want a,b,3", got)
	}
	if got := gotQuery["limit"]; len(got) != 1 || got[0] != "20" {
		t.Errorf("limit = %v, want 20", got)
	}
	if _, ok := gotQuery["missing"]; ok {
		t.Error("null values should be omitted")
	}
	if !res.CacheHit {
		t.Error("cache_hit should be extracted")
	}
}

func TestInvoke_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		cfg     Config
		timeout time.Duration
		wantTag string
		wantMsg string
	}{
		{
			name: "http 500",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			wantTag: types.BottleneckHTTPError,
			wantMsg: "HTTP 500",
		},
		{
			name: "http 404 empty body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
			wantTag: types.BottleneckHTTPError,
			wantMsg: "HTTP 404 Not Found",
		},
		{
			name: "invalid json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("<html>"))
			},
			wantTag: types.BottleneckInvalidResponse,
			wantMsg: "decode response",
		},
		{
			name: "oversized body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"data":"` + strings.Repeat("x", 64) + `"}`))
			},
			cfg:     Config{MaxResponseBytes: 16},
			wantTag: types.BottleneckInvalidResponse,
			wantMsg: "exceeds 16 bytes",
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			},
			timeout: 50 * time.Millisecond,
			wantTag: types.BottleneckTimeout,
			wantMsg: "timed out",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv, _ := newTestInvoker(t, tt.handler, tt.cfg)

			start := time.Now()
			res := inv.Invoke(context.Background(), Call{
				Binding:    "worker-binding",
				WorkerName: "w",
				Endpoint:   "/",
				Payload:    map[string]any{},
				Timeout:    tt.timeout,
			})

			if res.Success {
				t.Fatal("Success = true, want false")
			}
			if res.Data != nil {
				t.Errorf("Data = %v, want nil", res.Data)
			}
			if res.CostUsd != 0 || res.CacheHit {
				t.Errorf("cost/cache = %v/%v, want zero", res.CostUsd, res.CacheHit)
			}
			if !strings.Contains(res.ErrorMessage(), tt.wantMsg) {
				t.Errorf("error = %q, want substring %q", res.ErrorMessage(), tt.wantMsg)
			}
			if len(res.Bottlenecks) != 1 || res.Bottlenecks[0] != tt.wantTag {
				t.Errorf("bottlenecks = %v, want [%s]", res.Bottlenecks, tt.wantTag)
			}
			if tt.timeout > 0 && time.Since(start) > time.Second {
				t.Errorf("timed-out call took %s", time.Since(start))
			}
		})
	}
}

func TestInvoke_UnknownBinding(t *testing.T) {
	inv := New(Config{}, StaticResolver{}, nil, nil)

	res := inv.Invoke(context.Background(), Call{Binding: "NOPE", WorkerName: "ghost"})

	if res.Success {
		t.Fatal("Success = true, want false")
	}
	if len(res.Bottlenecks) != 1 || res.Bottlenecks[0] != types.BottleneckWorkerUnavailable {
		t.Errorf("bottlenecks = %v", res.Bottlenecks)
	}
}

func TestInvoke_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	inv := New(Config{}, StaticResolver{}, nil, nil)
	res := inv.Invoke(context.Background(), Call{Binding: url, WorkerName: "gone", Endpoint: "/x"})

	if res.Success {
		t.Fatal("Success = true, want false")
	}
	if len(res.Bottlenecks) != 1 || res.Bottlenecks[0] != types.BottleneckTransportError {
		t.Errorf("bottlenecks = %v, want transport_error", res.Bottlenecks)
	}
}

func TestInvoke_SlowResponse(t *testing.T) {
	inv, _ := newTestInvoker(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(20 * time.Millisecond)
		io.WriteString(w, `{}`)
	}, Config{SlowThreshold: time.Millisecond})

	res := inv.Invoke(context.Background(), Call{Binding: "worker-binding", WorkerName: "w"})

	if !res.Success {
		t.Fatalf("Success = false, error = %s", res.ErrorMessage())
	}
	if len(res.Bottlenecks) != 1 || res.Bottlenecks[0] != types.BottleneckSlowResponse {
		t.Errorf("bottlenecks = %v, want [slow_response]", res.Bottlenecks)
	}
}

func TestStaticResolver(t *testing.T) {
	r := StaticResolver{"KEY": "http://worker:8080"}

	tests := []struct {
		name    string
		ref     string
		want    string
		wantErr bool
	}{
		{name: "table", ref: "KEY", want: "http://worker:8080"},
		{name: "absolute url", ref: "https://w.example.com", want: "https://w.example.com"},
		{name: "unknown", ref: "OTHER", wantErr: true},
		{name: "relative", ref: "/path", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.ref)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Resolve() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrUnknownBinding) {
				t.Errorf("error = %v, want ErrUnknownBinding", err)
			}
			if got != tt.want {
				t.Errorf("Resolve() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestJoinURL(t *testing.T) {
	tests := []struct {
		base, endpoint, want string
	}{
		{"http://w", "/a", "http://w/a"},
		{"http://w/", "a", "http://w/a"},
		{"http://w/", "/a", "http://w/a"},
		{"http://w", "", "http://w"},
	}
	for _, tt := range tests {
		if got := joinURL(tt.base, tt.endpoint); got != tt.want {
			t.Errorf("joinURL(%q, %q) = %q, want %q", tt.base, tt.endpoint, got, tt.want)
		}
	}
}
