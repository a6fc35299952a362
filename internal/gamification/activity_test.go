package gamification

import (
	"testing"
	"time"
)

func ptr(t time.Time) *time.Time { return &t }

func TestTouchActivityFirstTime(t *testing.T) {
	r := Default()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	ch := r.TouchActivity(ActivityState{}, now, "")
	if ch.CurrentStreak != 1 || ch.LongestStreak != 1 || !ch.NewDay || !ch.NewSession {
		t.Fatalf("got %+v", ch)
	}
	if ch.Day != "2026-03-10" {
		t.Fatalf("day: %s", ch.Day)
	}
}

func TestTouchActivityStreaks(t *testing.T) {
	r := Default()
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	same := r.TouchActivity(ActivityState{CurrentStreak: 3, LongestStreak: 5, LastActiveAt: ptr(base)}, base.Add(5*time.Hour), "UTC")
	if same.CurrentStreak != 3 || same.NewDay {
		t.Fatalf("same day: %+v", same)
	}

	next := r.TouchActivity(ActivityState{CurrentStreak: 5, LongestStreak: 5, LastActiveAt: ptr(base)}, base.Add(24*time.Hour), "UTC")
	if next.CurrentStreak != 6 || next.LongestStreak != 6 || !next.NewDay {
		t.Fatalf("next day: %+v", next)
	}

	gap := r.TouchActivity(ActivityState{CurrentStreak: 5, LongestStreak: 9, LastActiveAt: ptr(base)}, base.Add(72*time.Hour), "UTC")
	if gap.CurrentStreak != 1 || gap.LongestStreak != 9 || !gap.NewDay {
		t.Fatalf("gap: %+v", gap)
	}
}

func TestTouchActivityUsesTimezone(t *testing.T) {
	r := Default()
	// 23:30 and 00:30 the next morning in New York are different local days
	// even though both are 2026-03-11 in UTC.
	last := time.Date(2026, 3, 11, 3, 30, 0, 0, time.UTC)
	now := time.Date(2026, 3, 11, 4, 30, 0, 0, time.UTC)
	st := ActivityState{CurrentStreak: 2, LongestStreak: 2, LastActiveAt: &last}

	ny := r.TouchActivity(st, now, "America/New_York")
	if ny.CurrentStreak != 3 || !ny.NewDay {
		t.Fatalf("new york: %+v", ny)
	}
	utc := r.TouchActivity(st, now, "UTC")
	if utc.CurrentStreak != 2 || utc.NewDay {
		t.Fatalf("utc: %+v", utc)
	}
	bad := r.TouchActivity(st, now, "Not/AZone")
	if bad.CurrentStreak != 2 {
		t.Fatalf("unknown zone should fall back to utc: %+v", bad)
	}
}

func TestTouchActivitySessions(t *testing.T) {
	r := Default()
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	st := ActivityState{CurrentStreak: 1, LongestStreak: 1, LastActiveAt: ptr(start.Add(10 * time.Minute)), LastSessionAt: ptr(start)}

	within := r.TouchActivity(st, start.Add(35*time.Minute), "UTC")
	if within.NewSession || !within.SessionAt.Equal(start) {
		t.Fatalf("within idle window: %+v", within)
	}
	after := r.TouchActivity(st, start.Add(41*time.Minute), "UTC")
	if !after.NewSession || !after.SessionAt.Equal(start.Add(41*time.Minute)) {
		t.Fatalf("after idle window: %+v", after)
	}
}
