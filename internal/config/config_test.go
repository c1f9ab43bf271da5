package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.CatalogStore != StoreMemory || cfg.RecorderStore != StoreMemory {
		t.Errorf("stores = %s/%s, want memory", cfg.CatalogStore, cfg.RecorderStore)
	}
	if cfg.DefaultTemplate != "complete_pipeline" {
		t.Errorf("DefaultTemplate = %q", cfg.DefaultTemplate)
	}
	if cfg.DefaultStepTimeout != 30*time.Second || cfg.SlowStepThreshold != 10*time.Second {
		t.Errorf("timeouts = %s/%s", cfg.DefaultStepTimeout, cfg.SlowStepThreshold)
	}
	if cfg.DefaultSourceDiscoveryDepth != 3 || cfg.DefaultMaxArticles != 50 {
		t.Errorf("pipeline defaults = %d/%d", cfg.DefaultSourceDiscoveryDepth, cfg.DefaultMaxArticles)
	}
	if len(cfg.WorkerBindings) != 0 {
		t.Errorf("WorkerBindings = %v, want empty", cfg.WorkerBindings)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("RECORDER_STORE", "redis")
	t.Setenv("DEFAULT_STEP_TIMEOUT", "45s")
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("CORS_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("DEFAULT_MAX_ARTICLES", "not-a-number")

	cfg := Load()

	if cfg.Port != "9090" || cfg.RecorderStore != StoreRedis {
		t.Errorf("Port/RecorderStore = %s/%s", cfg.Port, cfg.RecorderStore)
	}
	if cfg.DefaultStepTimeout != 45*time.Second {
		t.Errorf("DefaultStepTimeout = %s", cfg.DefaultStepTimeout)
	}
	if !cfg.OTelEnabled || cfg.RateLimitRPS != 2.5 {
		t.Errorf("OTelEnabled/RateLimitRPS = %v/%v", cfg.OTelEnabled, cfg.RateLimitRPS)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
	if cfg.DefaultMaxArticles != 50 {
		t.Errorf("unparseable value should fall back to default, got %d", cfg.DefaultMaxArticles)
	}
}

func TestGetStringMap(t *testing.T) {
	t.Setenv("WORKER_BINDINGS", "TOPIC_RESEARCHER=http://researcher:8080, RSS_LIBRARIAN = http://librarian:8080 ,broken,=x")

	got := getStringMap("WORKER_BINDINGS", nil)

	want := map[string]string{
		"TOPIC_RESEARCHER": "http://researcher:8080",
		"RSS_LIBRARIAN":    "http://librarian:8080",
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}
}
