package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/secondbrain-backend/internal/pkg/logger"
)

func newTestClient(t *testing.T, srv *httptest.Server, retries int) *client {
	t.Helper()
	c, err := NewClient(logger.Nop(), Config{APIKey: "sk-test", BaseURL: srv.URL, MaxRetries: retries})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	cc := c.(*client)
	cc.baseDelay = time.Millisecond
	return cc
}

const okBody = `{"output":[{"type":"message","role":"assistant","content":[{"type":"output_text","text":"{\"summary\":\"hi\"}"}]}]}`

func TestGenerateJSONRetriesOn5xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/responses" || r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("unexpected request %s auth=%q", r.URL.Path, r.Header.Get("Authorization"))
		}
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		format := body["text"].(map[string]any)["format"].(map[string]any)
		if format["type"] != "json_schema" || format["strict"] != true {
			t.Errorf("unexpected format: %v", format)
		}
		_, _ = w.Write([]byte(okBody))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 2)
	obj, err := c.GenerateJSON(context.Background(), "sys", "user", "summary", map[string]any{"type": "object"})
	if err != nil {
		t.Fatalf("GenerateJSON: %v", err)
	}
	if obj["summary"] != "hi" {
		t.Fatalf("unexpected obj: %v", obj)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestGenerateTextDoesNotRetry4xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 3)
	if _, err := c.GenerateText(context.Background(), "sys", "user"); err == nil {
		t.Fatalf("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 call, got %d", calls.Load())
	}
}

func TestGenerateTextRefusal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"output":[{"type":"message","role":"assistant","content":[{"type":"refusal","refusal":"no"}]}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 0)
	if _, err := c.GenerateText(context.Background(), "sys", "user"); err == nil {
		t.Fatalf("expected refusal error")
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(logger.Nop(), Config{}); err == nil {
		t.Fatalf("expected error without api key")
	}
}
