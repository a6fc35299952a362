package app

import (
	"strings"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.DBDriver != "postgres" || !cfg.WorkerEnabled {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.ClerkWebhookTolerance != 5*time.Minute || cfg.JobMaxAttempts != 3 {
		t.Fatalf("unexpected defaults: tolerance=%s attempts=%d", cfg.ClerkWebhookTolerance, cfg.JobMaxAttempts)
	}
	if cfg.FetchMaxBytes != 2<<20 || cfg.FetchAllowPrivate {
		t.Fatalf("unexpected fetch defaults: max=%d allow_private=%v", cfg.FetchMaxBytes, cfg.FetchAllowPrivate)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("WORKER_ENABLED", "false")
	t.Setenv("CORS_ORIGINS", "https://a.example.com,https://b.example.com")
	t.Setenv("CLERK_AUTHORIZED_PARTIES", "https://a.example.com")
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "x-api-key=abc,x-team=core")
	t.Setenv("RATE_LIMIT_RPS", "2.5")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.WorkerEnabled {
		t.Fatalf("worker should be disabled")
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example.com" {
		t.Fatalf("cors origins = %v", cfg.CORSOrigins)
	}
	if cfg.OtelHeaders["x-api-key"] != "abc" || cfg.OtelHeaders["x-team"] != "core" {
		t.Fatalf("otel headers = %v", cfg.OtelHeaders)
	}
	if cfg.RateLimitPerSecond != 2.5 {
		t.Fatalf("rps = %v", cfg.RateLimitPerSecond)
	}
}

func TestLoadConfigError(t *testing.T) {
	t.Setenv("JOB_MAX_ATTEMPTS", "many")
	_, err := LoadConfig()
	if err == nil || !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env error, got %v", err)
	}
}
