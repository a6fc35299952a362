package services

import (
	"errors"
	"testing"
	"time"

	"github.com/yungbote/secondbrain-backend/internal/data/repos"
	"github.com/yungbote/secondbrain-backend/internal/data/repos/testutil"
	types "github.com/yungbote/secondbrain-backend/internal/domain"
	"github.com/yungbote/secondbrain-backend/internal/gamification"
	"github.com/yungbote/secondbrain-backend/internal/pkg/dbctx"
)

func TestAwardIsIdempotentPerRef(t *testing.T) {
	e := newEnv(t)
	u := testutil.SeedUser(t, e.db, "a@example.com")
	item := testutil.SeedItem(t, e.db, u.ID, "https://example.com/a")
	ctx := testutil.Ctx()

	first, err := e.game.Award(ctx, u.ID, gamification.ReasonItemSaved, item.ID.String(), &item.ID)
	if err != nil {
		t.Fatalf("Award: %v", err)
	}
	if !first.Awarded || first.Amount != 10 || first.XP != 10 {
		t.Fatalf("first award = %+v", first)
	}
	again, err := e.game.Award(ctx, u.ID, gamification.ReasonItemSaved, item.ID.String(), &item.ID)
	if err != nil {
		t.Fatalf("Award again: %v", err)
	}
	if again.Awarded {
		t.Fatalf("duplicate award was recorded: %+v", again)
	}

	got := e.reloadUser(t, u.ID)
	if got.XP != 10 || got.ItemsSaved != 1 {
		t.Fatalf("user xp=%d items_saved=%d, want 10 and 1", got.XP, got.ItemsSaved)
	}
	sum, err := e.xp.SumForUser(ctx, u.ID)
	if err != nil || sum != 10 {
		t.Fatalf("SumForUser = %d, %v", sum, err)
	}
}

func TestAwardRaisesLevel(t *testing.T) {
	e := newEnv(t)
	u := testutil.SeedUser(t, e.db, "a@example.com")

	res, err := e.game.award(testutil.Ctx(), u.ID, "manual", "grant", 120, nil)
	if err != nil {
		t.Fatalf("award: %v", err)
	}
	if !res.LeveledUp || res.Level != 2 {
		t.Fatalf("award = %+v, want level up to 2", res)
	}
	if got := e.reloadUser(t, u.ID); got.Level != 2 {
		t.Fatalf("stored level = %d", got.Level)
	}
}

func TestTouchTracksStreakAndSessions(t *testing.T) {
	e := newEnv(t)
	u := testutil.SeedUser(t, e.db, "a@example.com")
	ctx := testutil.Ctx()

	ch, err := e.game.Touch(ctx, u.ID)
	if err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if !ch.NewDay || !ch.NewSession || ch.CurrentStreak != 1 {
		t.Fatalf("first touch = %+v", ch)
	}

	e.now = e.now.Add(10 * time.Minute)
	ch, err = e.game.Touch(ctx, u.ID)
	if err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if ch.NewDay || ch.NewSession {
		t.Fatalf("second touch in same session = %+v", ch)
	}

	e.now = e.now.Add(24 * time.Hour)
	if ch, err = e.game.Touch(ctx, u.ID); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if ch.CurrentStreak != 2 || !ch.NewSession {
		t.Fatalf("next day touch = %+v", ch)
	}

	e.now = e.now.Add(72 * time.Hour)
	if ch, err = e.game.Touch(ctx, u.ID); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if ch.CurrentStreak != 1 || ch.LongestStreak != 2 {
		t.Fatalf("after gap = %+v", ch)
	}

	got := e.reloadUser(t, u.ID)
	if got.SessionCount != 3 {
		t.Errorf("session_count = %d, want 3", got.SessionCount)
	}
	// Three distinct days, 3 XP each.
	if got.XP != 9 {
		t.Errorf("xp = %d, want 9", got.XP)
	}
}

func TestCheckBadgesAwardsOnceWithBonus(t *testing.T) {
	e := newEnv(t)
	u := testutil.SeedUser(t, e.db, "a@example.com")
	item := testutil.SeedItem(t, e.db, u.ID, "https://example.com/a")
	ctx := testutil.Ctx()

	if _, err := e.game.Award(ctx, u.ID, gamification.ReasonItemSaved, item.ID.String(), &item.ID); err != nil {
		t.Fatalf("Award: %v", err)
	}
	badges, err := e.game.CheckBadges(ctx, u.ID)
	if err != nil {
		t.Fatalf("CheckBadges: %v", err)
	}
	if len(badges) != 1 || badges[0].Key != "first_save" {
		t.Fatalf("badges = %+v", badges)
	}
	again, err := e.game.CheckBadges(ctx, u.ID)
	if err != nil || len(again) != 0 {
		t.Fatalf("second CheckBadges = %+v, %v", again, err)
	}
	if got := e.reloadUser(t, u.ID); got.XP != 15 {
		t.Fatalf("xp = %d, want 15 with bonus", got.XP)
	}
}

// failingBonusXP rejects badge bonus events and records everything else.
type failingBonusXP struct {
	repos.XPEventRepo
}

func (f failingBonusXP) Insert(dbc dbctx.Context, ev *types.XPEvent) (bool, error) {
	if ev.Reason == gamification.ReasonBadge {
		return false, errors.New("ledger unavailable")
	}
	return f.XPEventRepo.Insert(dbc, ev)
}

func TestCheckBadgesRollsBackBadgeWhenBonusFails(t *testing.T) {
	e := newEnv(t)
	u := testutil.SeedUser(t, e.db, "a@example.com")
	item := testutil.SeedItem(t, e.db, u.ID, "https://example.com/a")
	ctx := testutil.Ctx()

	if _, err := e.game.Award(ctx, u.ID, gamification.ReasonItemSaved, item.ID.String(), &item.ID); err != nil {
		t.Fatalf("Award: %v", err)
	}
	e.game.xpRepo = failingBonusXP{XPEventRepo: e.xp}
	if _, err := e.game.CheckBadges(ctx, u.ID); err == nil {
		t.Fatalf("CheckBadges should fail when the bonus cannot be recorded")
	}
	owned, err := e.badges.ListByUser(ctx, u.ID)
	if err != nil || len(owned) != 0 {
		t.Fatalf("badges after failed bonus = %+v, %v", owned, err)
	}

	e.game.xpRepo = e.xp
	badges, err := e.game.CheckBadges(ctx, u.ID)
	if err != nil || len(badges) != 1 || badges[0].Key != "first_save" {
		t.Fatalf("retry CheckBadges = %+v, %v", badges, err)
	}
	if got := e.reloadUser(t, u.ID); got.XP != 15 {
		t.Fatalf("xp = %d, want 15 with bonus", got.XP)
	}
}
