package gamification

import (
	"testing"
	"time"

	"github.com/yungbote/secondbrain-backend/internal/data/repos/testutil"
	types "github.com/yungbote/secondbrain-backend/internal/domain"
)

func TestXPEventRepoInsertIsIdempotent(t *testing.T) {
	db := testutil.DB(t)
	dbc := testutil.Ctx()
	repo := NewXPEventRepo(db, testutil.Logger(t))
	u := testutil.SeedUser(t, db, "xp@example.com")

	created, err := repo.Insert(dbc, &types.XPEvent{UserID: u.ID, Reason: "item_saved", Ref: "a", Amount: 10})
	if err != nil || !created {
		t.Fatalf("Insert: created=%v err=%v", created, err)
	}
	created, err = repo.Insert(dbc, &types.XPEvent{UserID: u.ID, Reason: "item_saved", Ref: "a", Amount: 10})
	if err != nil || created {
		t.Fatalf("Insert(replay): created=%v err=%v", created, err)
	}
	if _, err := repo.Insert(dbc, &types.XPEvent{UserID: u.ID, Reason: "item_reviewed", Ref: "a", Amount: 5}); err != nil {
		t.Fatalf("Insert(other reason): %v", err)
	}

	total, err := repo.SumForUser(dbc, u.ID)
	if err != nil || total != 15 {
		t.Fatalf("SumForUser: total=%d err=%v", total, err)
	}
	recent, err := repo.ListRecent(dbc, u.ID, 10)
	if err != nil || len(recent) != 2 {
		t.Fatalf("ListRecent: len=%d err=%v", len(recent), err)
	}
}

func TestUserBadgeRepo(t *testing.T) {
	db := testutil.DB(t)
	dbc := testutil.Ctx()
	repo := NewUserBadgeRepo(db, testutil.Logger(t))
	u := testutil.SeedUser(t, db, "badge@example.com")
	now := time.Now().UTC()

	ok, err := repo.Insert(dbc, &types.UserBadge{UserID: u.ID, BadgeKey: "first_save", AwardedAt: now})
	if err != nil || !ok {
		t.Fatalf("Insert: ok=%v err=%v", ok, err)
	}
	ok, err = repo.Insert(dbc, &types.UserBadge{UserID: u.ID, BadgeKey: "first_save", AwardedAt: now})
	if err != nil || ok {
		t.Fatalf("Insert(dupe): ok=%v err=%v", ok, err)
	}
	list, err := repo.ListByUser(dbc, u.ID)
	if err != nil || len(list) != 1 || list[0].BadgeKey != "first_save" {
		t.Fatalf("ListByUser: %v err=%v", list, err)
	}
}
