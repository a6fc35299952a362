package user

import (
	"testing"

	"github.com/yungbote/secondbrain-backend/internal/data/repos/testutil"
	types "github.com/yungbote/secondbrain-backend/internal/domain"
)

func TestUserRepo(t *testing.T) {
	db := testutil.DB(t)
	dbc := testutil.Ctx()
	repo := NewUserRepo(db, testutil.Logger(t))

	u := &types.User{ClerkUserID: "user_abc", Email: "Ada@Example.com", FirstName: "Ada"}
	if err := repo.Create(dbc, u); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if u.InboxToken == "" || u.Level != 1 || u.Timezone != "UTC" {
		t.Fatalf("Create: defaults not applied: %+v", u)
	}

	byClerk, err := repo.GetByClerkID(dbc, "user_abc")
	if err != nil || byClerk == nil || byClerk.ID != u.ID {
		t.Fatalf("GetByClerkID: err=%v got=%v", err, byClerk)
	}
	byEmail, err := repo.GetByEmail(dbc, "ada@example.com")
	if err != nil || byEmail == nil || byEmail.ID != u.ID {
		t.Fatalf("GetByEmail: err=%v got=%v", err, byEmail)
	}
	byToken, err := repo.GetByInboxToken(dbc, u.InboxToken)
	if err != nil || byToken == nil || byToken.ID != u.ID {
		t.Fatalf("GetByInboxToken: err=%v got=%v", err, byToken)
	}
	missing, err := repo.GetByClerkID(dbc, "user_missing")
	if err != nil || missing != nil {
		t.Fatalf("GetByClerkID(missing): err=%v got=%v", err, missing)
	}

	if err := repo.IncrementCounters(dbc, u.ID, map[string]int{"xp": 15, "items_saved": 1}); err != nil {
		t.Fatalf("IncrementCounters: %v", err)
	}
	if err := repo.IncrementCounters(dbc, u.ID, map[string]int{"level": 1}); err == nil {
		t.Fatalf("IncrementCounters: expected error for unsupported column")
	}

	upserted, err := repo.UpsertByClerkID(dbc, &types.User{ClerkUserID: "user_abc", Email: "ada@new.dev", FirstName: "Ada", LastName: "L"})
	if err != nil {
		t.Fatalf("UpsertByClerkID: %v", err)
	}
	if upserted.ID != u.ID || upserted.Email != "ada@new.dev" || upserted.LastName != "L" {
		t.Fatalf("UpsertByClerkID: profile not refreshed: %+v", upserted)
	}
	if upserted.XP != 15 || upserted.ItemsSaved != 1 || upserted.InboxToken != u.InboxToken {
		t.Fatalf("UpsertByClerkID: clobbered owned columns: %+v", upserted)
	}

	deleted, err := repo.SoftDeleteByClerkID(dbc, "user_abc")
	if err != nil || !deleted {
		t.Fatalf("SoftDeleteByClerkID: deleted=%v err=%v", deleted, err)
	}
	if gone, _ := repo.GetByID(dbc, u.ID); gone != nil {
		t.Fatalf("GetByID after delete: expected nil")
	}
	again, err := repo.SoftDeleteByClerkID(dbc, "user_abc")
	if err != nil || again {
		t.Fatalf("SoftDeleteByClerkID(again): deleted=%v err=%v", again, err)
	}

	revived, err := repo.UpsertByClerkID(dbc, &types.User{ClerkUserID: "user_abc", Email: "ada@new.dev"})
	if err != nil || revived == nil || revived.ID != u.ID {
		t.Fatalf("UpsertByClerkID(revive): err=%v got=%v", err, revived)
	}
}
