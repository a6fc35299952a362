package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/secondbrain-backend/internal/data/repos"
	"github.com/yungbote/secondbrain-backend/internal/data/repos/testutil"
	types "github.com/yungbote/secondbrain-backend/internal/domain"
	"github.com/yungbote/secondbrain-backend/internal/pkg/ctxutil"
	"github.com/yungbote/secondbrain-backend/internal/pkg/dbctx"
)

type env struct {
	db     *gorm.DB
	users  repos.UserRepo
	items  repos.ItemRepo
	tags   repos.TagRepo
	xp     repos.XPEventRepo
	badges repos.UserBadgeRepo
	jobs   repos.JobRunRepo

	game    *gamificationService
	jobSvc  JobService
	itemSvc *itemService
	now     time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	e := &env{
		db:     db,
		users:  repos.NewUserRepo(db, log),
		items:  repos.NewItemRepo(db, log),
		tags:   repos.NewTagRepo(db, log),
		xp:     repos.NewXPEventRepo(db, log),
		badges: repos.NewUserBadgeRepo(db, log),
		jobs:   repos.NewJobRunRepo(db, log),
		now:    time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return e.now }
	e.game = NewGamificationService(db, log, nil, e.users, e.items, e.tags, e.xp, e.badges, nil).(*gamificationService)
	e.game.now = clock
	e.jobSvc = NewJobService(db, log, e.jobs, nil)
	e.itemSvc = NewItemService(db, log, e.items, e.tags, e.jobSvc, e.game, nil).(*itemService)
	e.itemSvc.now = clock
	return e
}

// as returns a context authenticated as u.
func as(u *types.User) dbctx.Context {
	ctx := ctxutil.WithRequestData(context.Background(), &ctxutil.RequestData{UserID: u.ID, ClerkUserID: u.ClerkUserID})
	return dbctx.Context{Ctx: ctx}
}

func (e *env) reloadUser(t *testing.T, id uuid.UUID) *types.User {
	t.Helper()
	u, err := e.users.GetByID(testutil.Ctx(), id)
	if err != nil || u == nil {
		t.Fatalf("reload user: %v %v", u, err)
	}
	return u
}

func (e *env) reloadItem(t *testing.T, id uuid.UUID) *types.Item {
	t.Helper()
	it, err := e.items.GetByID(testutil.Ctx(), id)
	if err != nil || it == nil {
		t.Fatalf("reload item: %v %v", it, err)
	}
	return it
}
