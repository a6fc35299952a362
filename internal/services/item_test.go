package services

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/secondbrain-backend/internal/data/repos"
	"github.com/yungbote/secondbrain-backend/internal/data/repos/testutil"
	types "github.com/yungbote/secondbrain-backend/internal/domain"
	"github.com/yungbote/secondbrain-backend/internal/pkg/dbctx"
	apperr "github.com/yungbote/secondbrain-backend/internal/pkg/errors"
	"github.com/yungbote/secondbrain-backend/internal/pkg/pointers"
)

func TestCreateItemQueuesProcessing(t *testing.T) {
	e := newEnv(t)
	u := testutil.SeedUser(t, e.db, "a@example.com")

	res, err := e.itemSvc.Create(as(u), CreateItemInput{
		URL:  "https://www.youtube.com/watch?v=abc&utm_source=share",
		Note: "  watch later ",
		Tags: []string{"Music", "music", "Live Sets"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.Existing || res.Job == nil {
		t.Fatalf("result = %+v", res)
	}
	it := res.Item
	if it.Status != types.ItemStatusPending || it.Source != types.SourceYouTube || it.Origin != types.OriginAPI {
		t.Fatalf("item status=%s source=%s origin=%s", it.Status, it.Source, it.Origin)
	}
	if it.CanonicalURL != "https://youtube.com/watch?v=abc" {
		t.Errorf("canonical = %q", it.CanonicalURL)
	}
	if it.Note != "watch later" {
		t.Errorf("note = %q", it.Note)
	}
	if len(it.Tags) != 2 {
		t.Errorf("tags = %d, want 2 after slug dedupe", len(it.Tags))
	}
	if res.Job.JobType != types.JobTypeItemProcess || res.Job.EntityID == nil || *res.Job.EntityID != it.ID {
		t.Errorf("job = %+v", res.Job)
	}
}

func TestCreateItemDedupesCanonicalURL(t *testing.T) {
	e := newEnv(t)
	u := testutil.SeedUser(t, e.db, "a@example.com")

	first, err := e.itemSvc.Create(as(u), CreateItemInput{URL: "https://example.com/post/"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	second, err := e.itemSvc.Create(as(u), CreateItemInput{URL: "https://WWW.example.com/post?utm_campaign=x"})
	if err != nil {
		t.Fatalf("Create again: %v", err)
	}
	if !second.Existing || second.Item.ID != first.Item.ID || second.Job != nil {
		t.Fatalf("second = %+v", second)
	}

	other := testutil.SeedUser(t, e.db, "b@example.com")
	third, err := e.itemSvc.Create(as(other), CreateItemInput{URL: "https://example.com/post"})
	if err != nil || third.Existing {
		t.Fatalf("other user create = %+v, %v", third, err)
	}
}

// missingLookupItems hides existing rows from the first dedupe lookups, as
// when two saves of the same URL race past the check.
type missingLookupItems struct {
	repos.ItemRepo
	misses int
}

func (m *missingLookupItems) GetByCanonicalURL(dbc dbctx.Context, userID uuid.UUID, canonicalURL string) (*types.Item, error) {
	if m.misses > 0 {
		m.misses--
		return nil, nil
	}
	return m.ItemRepo.GetByCanonicalURL(dbc, userID, canonicalURL)
}

func TestCreateItemConcurrentDuplicateReturnsExisting(t *testing.T) {
	e := newEnv(t)
	u := testutil.SeedUser(t, e.db, "a@example.com")

	first, err := e.itemSvc.Create(as(u), CreateItemInput{URL: "https://example.com/race"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	e.itemSvc.items = &missingLookupItems{ItemRepo: e.items, misses: 1}

	second, err := e.itemSvc.Create(as(u), CreateItemInput{URL: "https://example.com/race/"})
	if err != nil {
		t.Fatalf("Create duplicate: %v", err)
	}
	if !second.Existing || second.Item.ID != first.Item.ID || second.Job != nil {
		t.Fatalf("second = %+v", second)
	}
	var n int64
	if err := e.db.Model(&types.Item{}).Where("user_id = ?", u.ID).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("items = %d, want 1", n)
	}
	var jobs int64
	if err := e.db.Model(&types.JobRun{}).Where("owner_user_id = ?", u.ID).Count(&jobs).Error; err != nil {
		t.Fatalf("count jobs: %v", err)
	}
	if jobs != 1 {
		t.Fatalf("jobs = %d, want 1", jobs)
	}
}

func TestItemRowsUniquePerCanonicalURL(t *testing.T) {
	e := newEnv(t)
	u := testutil.SeedUser(t, e.db, "a@example.com")
	ctx := testutil.Ctx()

	a := &types.Item{UserID: u.ID, URL: "https://example.com/a", CanonicalURL: "https://example.com/a", Source: types.SourceWeb}
	if err := e.items.Create(ctx, a); err != nil {
		t.Fatalf("create: %v", err)
	}
	dup := &types.Item{UserID: u.ID, URL: "https://example.com/a", CanonicalURL: "https://example.com/a", Source: types.SourceWeb}
	if err := e.items.Create(ctx, dup); !repos.IsUniqueViolation(err) {
		t.Fatalf("duplicate insert err = %v, want unique violation", err)
	}

	// Url-less e-mail items and soft-deleted rows are outside the constraint.
	for i := 0; i < 2; i++ {
		if err := e.items.Create(ctx, &types.Item{UserID: u.ID, Source: types.SourceEmail}); err != nil {
			t.Fatalf("email item %d: %v", i, err)
		}
	}
	if err := e.items.SoftDelete(ctx, a.ID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	again := &types.Item{UserID: u.ID, URL: "https://example.com/a", CanonicalURL: "https://example.com/a", Source: types.SourceWeb}
	if err := e.items.Create(ctx, again); err != nil {
		t.Fatalf("recreate after delete: %v", err)
	}
}

func TestItemTitlesKeepCase(t *testing.T) {
	e := newEnv(t)
	u := testutil.SeedUser(t, e.db, "a@example.com")
	ctx := as(u)

	res, err := e.itemSvc.Create(ctx, CreateItemInput{URL: "https://example.com/notes", Title: "  My Go   Notes "})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.Item.Title != "My Go Notes" || !res.Item.TitleLocked {
		t.Fatalf("create title = %q locked=%v", res.Item.Title, res.Item.TitleLocked)
	}

	plain, err := e.itemSvc.Create(ctx, CreateItemInput{URL: "https://example.com/plain"})
	if err != nil {
		t.Fatalf("Create plain: %v", err)
	}
	if plain.Item.TitleLocked {
		t.Fatalf("untitled item should not lock its title")
	}
	title := "Rust vs Go"
	got, err := e.itemSvc.Update(ctx, plain.Item.ID, UpdateItemInput{Title: &title})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Title != "Rust vs Go" || !got.TitleLocked {
		t.Fatalf("update title = %q locked=%v", got.Title, got.TitleLocked)
	}
}

func TestCreateItemRejectsBadInput(t *testing.T) {
	e := newEnv(t)
	u := testutil.SeedUser(t, e.db, "a@example.com")

	if _, err := e.itemSvc.Create(as(u), CreateItemInput{URL: "ftp://example.com/x"}); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("bad url err = %v", err)
	}
	if _, err := e.itemSvc.Create(as(u), CreateItemInput{}); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("empty url err = %v", err)
	}
	if _, err := e.itemSvc.Create(testutil.Ctx(), CreateItemInput{URL: "https://example.com"}); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Errorf("anonymous err = %v", err)
	}
}

func TestGetItemIsScopedToOwner(t *testing.T) {
	e := newEnv(t)
	owner := testutil.SeedUser(t, e.db, "a@example.com")
	other := testutil.SeedUser(t, e.db, "b@example.com")
	it := testutil.SeedItem(t, e.db, owner.ID, "https://example.com/a")

	if _, err := e.itemSvc.Get(as(other), it.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("other user Get err = %v", err)
	}
	got, err := e.itemSvc.Get(as(owner), it.ID)
	if err != nil || got.ID != it.ID {
		t.Fatalf("owner Get = %v, %v", got, err)
	}
}

func TestListItemsFilters(t *testing.T) {
	e := newEnv(t)
	u := testutil.SeedUser(t, e.db, "a@example.com")
	testutil.SeedItem(t, e.db, u.ID, "https://example.com/a", func(i *types.Item) { i.IsFavorite = true })
	testutil.SeedItem(t, e.db, u.ID, "https://example.com/b")

	page, err := e.itemSvc.List(as(u), ListItemsInput{Favorite: pointers.Bool(true)})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Total != 1 || len(page.Items) != 1 || page.Limit != 50 {
		t.Fatalf("page = %+v", page)
	}
	if _, err := e.itemSvc.List(as(u), ListItemsInput{Sort: "random"}); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("bad sort err = %v", err)
	}
}

func TestUpdateItemReplacesTagsAndAwardsFavoriteOnce(t *testing.T) {
	e := newEnv(t)
	u := testutil.SeedUser(t, e.db, "a@example.com")
	it := testutil.SeedItem(t, e.db, u.ID, "https://example.com/a")
	ctx := as(u)

	tags := []string{"go", "databases"}
	if _, err := e.itemSvc.Update(ctx, it.ID, UpdateItemInput{Tags: &tags}); err != nil {
		t.Fatalf("Update tags: %v", err)
	}
	tags = []string{"go", "networking"}
	got, err := e.itemSvc.Update(ctx, it.ID, UpdateItemInput{Tags: &tags, IsFavorite: pointers.Bool(true)})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	slugs := map[string]bool{}
	for _, tg := range got.Tags {
		slugs[tg.Slug] = true
	}
	if len(slugs) != 2 || !slugs["go"] || !slugs["networking"] {
		t.Fatalf("tags = %v", slugs)
	}
	old, err := e.tags.GetBySlug(testutil.Ctx(), u.ID, "databases")
	if err != nil || old == nil || old.UsageCount != 0 {
		t.Fatalf("detached tag = %+v, %v", old, err)
	}

	// Toggling off and on again does not pay twice.
	if _, err := e.itemSvc.Update(ctx, it.ID, UpdateItemInput{IsFavorite: pointers.Bool(false)}); err != nil {
		t.Fatalf("unfavorite: %v", err)
	}
	if _, err := e.itemSvc.Update(ctx, it.ID, UpdateItemInput{IsFavorite: pointers.Bool(true)}); err != nil {
		t.Fatalf("refavorite: %v", err)
	}
	if u2 := e.reloadUser(t, u.ID); u2.XP != 2 {
		t.Fatalf("xp = %d, want 2", u2.XP)
	}

	empty := ""
	if _, err := e.itemSvc.Update(ctx, it.ID, UpdateItemInput{Title: &empty}); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("empty title err = %v", err)
	}
}

func TestDeleteItemReleasesTags(t *testing.T) {
	e := newEnv(t)
	u := testutil.SeedUser(t, e.db, "a@example.com")
	res, err := e.itemSvc.Create(as(u), CreateItemInput{URL: "https://example.com/a", Tags: []string{"go"}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := e.itemSvc.Delete(as(u), res.Item.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := e.itemSvc.Get(as(u), res.Item.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("Get after delete err = %v", err)
	}
	tag, err := e.tags.GetBySlug(testutil.Ctx(), u.ID, "go")
	if err != nil || tag == nil || tag.UsageCount != 0 {
		t.Fatalf("tag after delete = %+v, %v", tag, err)
	}
}

func TestReprocessSkipsWhenQueued(t *testing.T) {
	e := newEnv(t)
	u := testutil.SeedUser(t, e.db, "a@example.com")
	res, err := e.itemSvc.Create(as(u), CreateItemInput{URL: "https://example.com/a"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	out, err := e.itemSvc.Reprocess(as(u), res.Item.ID)
	if err != nil {
		t.Fatalf("Reprocess: %v", err)
	}
	if !out.AlreadyQueued || out.Job != nil {
		t.Fatalf("reprocess with queued job = %+v", out)
	}

	if err := e.jobs.UpdateFields(testutil.Ctx(), res.Job.ID, map[string]any{"status": types.JobStatusSucceeded}); err != nil {
		t.Fatalf("finish job: %v", err)
	}
	if err := e.items.UpdateFields(testutil.Ctx(), res.Item.ID, map[string]any{"status": types.ItemStatusFailed, "processing_error": "boom"}); err != nil {
		t.Fatalf("fail item: %v", err)
	}
	out, err = e.itemSvc.Reprocess(as(u), res.Item.ID)
	if err != nil || out.Job == nil || out.AlreadyQueued {
		t.Fatalf("reprocess = %+v, %v", out, err)
	}
	it := e.reloadItem(t, res.Item.ID)
	if it.Status != types.ItemStatusPending || it.ProcessingError != "" {
		t.Fatalf("item after reprocess status=%s err=%q", it.Status, it.ProcessingError)
	}
}

func TestReviewSchedulesNextReview(t *testing.T) {
	e := newEnv(t)
	u := testutil.SeedUser(t, e.db, "a@example.com")
	it := testutil.SeedItem(t, e.db, u.ID, "https://example.com/a")
	pending := testutil.SeedItem(t, e.db, u.ID, "https://example.com/p", func(i *types.Item) { i.Status = types.ItemStatusPending })

	queue, err := e.itemSvc.ReviewQueue(as(u), 0)
	if err != nil || len(queue) != 1 || queue[0].ID != it.ID {
		t.Fatalf("queue = %v, %v", queue, err)
	}

	res, err := e.itemSvc.Review(as(u), it.ID)
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if res.Item.ReviewCount != 1 || res.Item.NextReviewAt == nil {
		t.Fatalf("reviewed item = %+v", res.Item)
	}
	if want := e.now.Add(24 * time.Hour); !res.Item.NextReviewAt.Equal(want) {
		t.Errorf("next_review_at = %v, want %v", res.Item.NextReviewAt, want)
	}
	if res.XP == nil || !res.XP.Awarded || res.XP.Amount != 5 {
		t.Errorf("xp = %+v", res.XP)
	}
	if got := e.reloadUser(t, u.ID); got.ItemsReviewed != 1 || got.CurrentStreak != 1 {
		t.Errorf("user items_reviewed=%d streak=%d", got.ItemsReviewed, got.CurrentStreak)
	}

	queue, err = e.itemSvc.ReviewQueue(as(u), 0)
	if err != nil || len(queue) != 0 {
		t.Fatalf("queue after review = %v, %v", queue, err)
	}
	if _, err := e.itemSvc.Review(as(u), pending.ID); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("review pending err = %v", err)
	}
}
