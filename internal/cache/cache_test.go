package cache

import (
	"context"
	"testing"
	"time"
)

type meta struct {
	Title string `json:"title"`
}

func TestMemoryRoundTripAndExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(10)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	if err := m.SetJSON(ctx, "k", meta{Title: "hello"}, time.Minute); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}
	var got meta
	ok, err := m.GetJSON(ctx, "k", &got)
	if err != nil || !ok || got.Title != "hello" {
		t.Fatalf("GetJSON: ok=%v err=%v got=%+v", ok, err, got)
	}

	now = now.Add(2 * time.Minute)
	ok, err = m.GetJSON(ctx, "k", &got)
	if err != nil || ok {
		t.Fatalf("GetJSON after expiry: ok=%v err=%v", ok, err)
	}
}

func TestMemoryBoundsEntries(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2)
	for _, k := range []string{"a", "b", "c"} {
		if err := m.SetJSON(ctx, k, meta{Title: k}, 0); err != nil {
			t.Fatalf("SetJSON(%s): %v", k, err)
		}
	}
	if n := len(m.entries); n != 2 {
		t.Fatalf("expected 2 entries, got %d", n)
	}
	var got meta
	if ok, _ := m.GetJSON(ctx, "c", &got); !ok {
		t.Fatalf("newest entry should survive eviction")
	}
}

func TestNopAlwaysMisses(t *testing.T) {
	var c Cache = Nop{}
	_ = c.SetJSON(context.Background(), "k", meta{Title: "x"}, time.Minute)
	var got meta
	if ok, err := c.GetJSON(context.Background(), "k", &got); ok || err != nil {
		t.Fatalf("Nop: ok=%v err=%v", ok, err)
	}
}
