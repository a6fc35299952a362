package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/secondbrain-backend/internal/data/repos"
	types "github.com/yungbote/secondbrain-backend/internal/domain"
	"github.com/yungbote/secondbrain-backend/internal/gamification"
	"github.com/yungbote/secondbrain-backend/internal/ingestion/source"
	"github.com/yungbote/secondbrain-backend/internal/normalization"
	"github.com/yungbote/secondbrain-backend/internal/pkg/ctxutil"
	"github.com/yungbote/secondbrain-backend/internal/pkg/dbctx"
	apperr "github.com/yungbote/secondbrain-backend/internal/pkg/errors"
	"github.com/yungbote/secondbrain-backend/internal/pkg/logger"
)

const (
	maxItemTags   = 20
	maxNoteRunes  = 5000
	maxTitleRunes = 500
)

var errDuplicateItem = errors.New("duplicate canonical url")

type CreateItemInput struct {
	URL   string   `json:"url"`
	Title string   `json:"title,omitempty"`
	Note  string   `json:"note,omitempty"`
	Tags  []string `json:"tags,omitempty"`

	// Set by e-mail ingest only.
	Origin  string `json:"-"`
	Content string `json:"-"`
}

type CreateItemResult struct {
	Item *types.Item   `json:"item"`
	Job  *types.JobRun `json:"job,omitempty"`
	// Existing is true when the canonical URL was already saved.
	Existing bool `json:"existing"`
}

type ListItemsInput struct {
	Status   string
	Tag      string
	Category string
	Source   string
	Favorite *bool
	Archived *bool
	Query    string
	Sort     string
	Limit    int
	Offset   int
}

type ItemPage struct {
	Items  []*types.Item `json:"items"`
	Total  int64         `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// UpdateItemInput applies only non-nil fields. Tags replaces the full set.
type UpdateItemInput struct {
	Title      *string   `json:"title"`
	Note       *string   `json:"note"`
	IsFavorite *bool     `json:"is_favorite"`
	IsArchived *bool     `json:"is_archived"`
	Tags       *[]string `json:"tags"`
}

type ReprocessResult struct {
	Job           *types.JobRun `json:"job,omitempty"`
	AlreadyQueued bool          `json:"already_queued"`
}

type ReviewResult struct {
	Item   *types.Item             `json:"item"`
	XP     *AwardResult            `json:"xp,omitempty"`
	Badges []gamification.BadgeDef `json:"badges"`
}

type ItemService interface {
	Create(dbc dbctx.Context, in CreateItemInput) (*CreateItemResult, error)
	CreateForUser(dbc dbctx.Context, userID uuid.UUID, in CreateItemInput) (*CreateItemResult, error)
	List(dbc dbctx.Context, in ListItemsInput) (*ItemPage, error)
	Get(dbc dbctx.Context, id uuid.UUID) (*types.Item, error)
	Update(dbc dbctx.Context, id uuid.UUID, in UpdateItemInput) (*types.Item, error)
	Delete(dbc dbctx.Context, id uuid.UUID) error
	Reprocess(dbc dbctx.Context, id uuid.UUID) (*ReprocessResult, error)
	Review(dbc dbctx.Context, id uuid.UUID) (*ReviewResult, error)
	ReviewQueue(dbc dbctx.Context, limit int) ([]*types.Item, error)
}

type itemService struct {
	db     *gorm.DB
	log    *logger.Logger
	items  repos.ItemRepo
	tags   repos.TagRepo
	jobs   JobService
	game   GamificationService
	notify ItemNotifier
	now    func() time.Time
}

func NewItemService(
	db *gorm.DB,
	baseLog *logger.Logger,
	items repos.ItemRepo,
	tags repos.TagRepo,
	jobs JobService,
	game GamificationService,
	notify ItemNotifier,
) ItemService {
	if notify == nil {
		notify = NewItemNotifier(nil)
	}
	return &itemService{
		db:     db,
		log:    baseLog.With("service", "ItemService"),
		items:  items,
		tags:   tags,
		jobs:   jobs,
		game:   game,
		notify: notify,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func requestUser(dbc dbctx.Context) (uuid.UUID, error) {
	id := ctxutil.UserID(dbc.Ctx)
	if id == uuid.Nil {
		return uuid.Nil, apperr.ErrUnauthorized
	}
	return id, nil
}

func (s *itemService) Create(dbc dbctx.Context, in CreateItemInput) (*CreateItemResult, error) {
	userID, err := requestUser(dbc)
	if err != nil {
		return nil, err
	}
	in.Origin = types.OriginAPI
	in.Content = ""
	return s.CreateForUser(dbc, userID, in)
}

func (s *itemService) CreateForUser(dbc dbctx.Context, userID uuid.UUID, in CreateItemInput) (*CreateItemResult, error) {
	if userID == uuid.Nil {
		return nil, apperr.ErrUnauthorized
	}
	rawURL := strings.TrimSpace(in.URL)
	item := &types.Item{
		UserID: userID,
		Origin: in.Origin,
		Status: types.ItemStatusPending,
		Title:  truncateRunes(normalization.Title(in.Title), maxTitleRunes),
		Note:   truncateRunes(strings.TrimSpace(in.Note), maxNoteRunes),
	}
	item.TitleLocked = item.Title != ""
	if item.Origin == "" {
		item.Origin = types.OriginAPI
	}

	if rawURL != "" {
		canonical, err := source.Canonicalize(rawURL)
		if err != nil {
			return nil, fmt.Errorf("url %q: %w", rawURL, apperr.ErrInvalidArgument)
		}
		existing, err := s.items.GetByCanonicalURL(dbc, userID, canonical)
		if err != nil {
			return nil, fmt.Errorf("dedupe lookup: %w", err)
		}
		if existing != nil {
			return &CreateItemResult{Item: existing, Existing: true}, nil
		}
		item.URL = rawURL
		item.CanonicalURL = canonical
		item.Source = source.Classify(rawURL)
	} else {
		if item.Origin != types.OriginEmail || strings.TrimSpace(in.Content) == "" {
			return nil, fmt.Errorf("url is required: %w", apperr.ErrInvalidArgument)
		}
		item.Source = types.SourceEmail
		item.ContentText = in.Content
	}

	var job *types.JobRun
	err := dbc.Pick(s.db).Transaction(func(tx *gorm.DB) error {
		txc := dbctx.Context{Ctx: dbc.Ctx, Tx: tx}
		if err := s.items.Create(txc, item); err != nil {
			if item.CanonicalURL != "" && repos.IsUniqueViolation(err) {
				return errDuplicateItem
			}
			return fmt.Errorf("create item: %w", err)
		}
		if _, err := s.attachByName(txc, userID, item.ID, in.Tags); err != nil {
			return err
		}
		j, _, err := s.jobs.EnqueueItemProcess(txc, userID, item.ID, "create")
		if err != nil {
			return fmt.Errorf("enqueue: %w", err)
		}
		job = j
		return nil
	})
	if errors.Is(err, errDuplicateItem) {
		// Lost a race with a concurrent save of the same URL.
		existing, lerr := s.items.GetByCanonicalURL(dbc, userID, item.CanonicalURL)
		if lerr != nil {
			return nil, fmt.Errorf("dedupe lookup: %w", lerr)
		}
		if existing != nil {
			return &CreateItemResult{Item: existing, Existing: true}, nil
		}
		return nil, fmt.Errorf("create item: %w", apperr.ErrConflict)
	}
	if err != nil {
		return nil, err
	}
	saved, err := s.items.GetByID(dbc, item.ID)
	if err != nil || saved == nil {
		saved = item
	}
	s.log.Info("item saved", "item_id", item.ID, "user_id", userID, "source", item.Source, "origin", item.Origin)
	s.notify.ItemCreated(userID, saved)
	return &CreateItemResult{Item: saved, Job: job}, nil
}

// attachByName find-or-creates tags by display name and links them.
func (s *itemService) attachByName(dbc dbctx.Context, userID, itemID uuid.UUID, names []string) ([]uuid.UUID, error) {
	ids, err := s.resolveTags(dbc, userID, names)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return ids, nil
	}
	if _, err := s.tags.Attach(dbc, itemID, ids); err != nil {
		return nil, fmt.Errorf("attach tags: %w", err)
	}
	return ids, nil
}

func (s *itemService) resolveTags(dbc dbctx.Context, userID uuid.UUID, names []string) ([]uuid.UUID, error) {
	ids := []uuid.UUID{}
	seen := map[string]bool{}
	for _, raw := range names {
		slug := normalization.Slug(raw)
		if slug == "" || seen[slug] {
			continue
		}
		if len(seen) >= maxItemTags {
			return nil, fmt.Errorf("at most %d tags: %w", maxItemTags, apperr.ErrInvalidArgument)
		}
		seen[slug] = true
		tag, err := s.tags.FindOrCreate(dbc, userID, normalization.TagName(raw), slug)
		if err != nil {
			return nil, fmt.Errorf("tag %q: %w", slug, err)
		}
		if tag != nil {
			ids = append(ids, tag.ID)
		}
	}
	return ids, nil
}

func (s *itemService) List(dbc dbctx.Context, in ListItemsInput) (*ItemPage, error) {
	userID, err := requestUser(dbc)
	if err != nil {
		return nil, err
	}
	if in.Limit <= 0 || in.Limit > 200 {
		in.Limit = 50
	}
	if in.Offset < 0 {
		in.Offset = 0
	}
	switch in.Sort {
	case "", repos.SortNewest, repos.SortOldest, repos.SortTitle:
	default:
		return nil, fmt.Errorf("sort %q: %w", in.Sort, apperr.ErrInvalidArgument)
	}
	tag := ""
	if strings.TrimSpace(in.Tag) != "" {
		tag = normalization.Slug(in.Tag)
	}
	rows, total, err := s.items.List(dbc, repos.ItemFilter{
		UserID:   userID,
		Status:   strings.TrimSpace(in.Status),
		TagSlug:  tag,
		Category: strings.TrimSpace(in.Category),
		Source:   strings.TrimSpace(in.Source),
		Favorite: in.Favorite,
		Archived: in.Archived,
		Query:    in.Query,
		Sort:     in.Sort,
		Limit:    in.Limit,
		Offset:   in.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return &ItemPage{Items: rows, Total: total, Limit: in.Limit, Offset: in.Offset}, nil
}

func (s *itemService) Get(dbc dbctx.Context, id uuid.UUID) (*types.Item, error) {
	userID, err := requestUser(dbc)
	if err != nil {
		return nil, err
	}
	return s.ownItem(dbc, userID, id)
}

func (s *itemService) ownItem(dbc dbctx.Context, userID, id uuid.UUID) (*types.Item, error) {
	item, err := s.items.GetForUser(dbc, userID, id)
	if err != nil {
		return nil, fmt.Errorf("load item: %w", err)
	}
	if item == nil {
		return nil, apperr.ErrNotFound
	}
	return item, nil
}

func (s *itemService) Update(dbc dbctx.Context, id uuid.UUID, in UpdateItemInput) (*types.Item, error) {
	userID, err := requestUser(dbc)
	if err != nil {
		return nil, err
	}
	item, err := s.ownItem(dbc, userID, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if in.Title != nil {
		t := truncateRunes(normalization.Title(*in.Title), maxTitleRunes)
		if t == "" {
			return nil, fmt.Errorf("title cannot be empty: %w", apperr.ErrInvalidArgument)
		}
		updates["title"] = t
		updates["title_locked"] = true
	}
	if in.Note != nil {
		updates["note"] = truncateRunes(strings.TrimSpace(*in.Note), maxNoteRunes)
	}
	favorited := false
	if in.IsFavorite != nil {
		updates["is_favorite"] = *in.IsFavorite
		favorited = *in.IsFavorite && !item.IsFavorite
	}
	if in.IsArchived != nil {
		updates["is_archived"] = *in.IsArchived
	}

	err = dbc.Pick(s.db).Transaction(func(tx *gorm.DB) error {
		txc := dbctx.Context{Ctx: dbc.Ctx, Tx: tx}
		if err := s.items.UpdateFields(txc, item.ID, updates); err != nil {
			return fmt.Errorf("update item: %w", err)
		}
		if in.Tags == nil {
			return nil
		}
		return s.replaceTags(txc, userID, item.ID, *in.Tags)
	})
	if err != nil {
		return nil, err
	}

	if favorited {
		itemID := item.ID
		if _, err := s.game.Award(dbc, userID, gamification.ReasonItemFavorited, item.ID.String(), &itemID); err != nil {
			s.log.Warn("favorite xp failed", "item_id", item.ID, "error", err)
		}
	}
	if favorited || in.Tags != nil {
		if _, err := s.game.CheckBadges(dbc, userID); err != nil {
			s.log.Warn("badge check failed", "item_id", item.ID, "error", err)
		}
	}

	saved, err := s.ownItem(dbc, userID, item.ID)
	if err != nil {
		return nil, err
	}
	s.notify.ItemUpdated(userID, saved)
	return saved, nil
}

func (s *itemService) replaceTags(dbc dbctx.Context, userID, itemID uuid.UUID, names []string) error {
	want, err := s.resolveTags(dbc, userID, names)
	if err != nil {
		return err
	}
	have, err := s.tags.TagIDsForItem(dbc, itemID)
	if err != nil {
		return fmt.Errorf("current tags: %w", err)
	}
	keep := make(map[uuid.UUID]bool, len(want))
	for _, id := range want {
		keep[id] = true
	}
	var drop []uuid.UUID
	for _, id := range have {
		if !keep[id] {
			drop = append(drop, id)
		}
	}
	if _, err := s.tags.Detach(dbc, itemID, drop); err != nil {
		return fmt.Errorf("detach tags: %w", err)
	}
	if _, err := s.tags.Attach(dbc, itemID, want); err != nil {
		return fmt.Errorf("attach tags: %w", err)
	}
	return nil
}

func (s *itemService) Delete(dbc dbctx.Context, id uuid.UUID) error {
	userID, err := requestUser(dbc)
	if err != nil {
		return err
	}
	item, err := s.ownItem(dbc, userID, id)
	if err != nil {
		return err
	}
	err = dbc.Pick(s.db).Transaction(func(tx *gorm.DB) error {
		txc := dbctx.Context{Ctx: dbc.Ctx, Tx: tx}
		if _, err := s.tags.DetachAll(txc, item.ID); err != nil {
			return fmt.Errorf("detach tags: %w", err)
		}
		return s.items.SoftDelete(txc, item.ID)
	})
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	s.notify.ItemDeleted(userID, item.ID)
	return nil
}

func (s *itemService) Reprocess(dbc dbctx.Context, id uuid.UUID) (*ReprocessResult, error) {
	userID, err := requestUser(dbc)
	if err != nil {
		return nil, err
	}
	item, err := s.ownItem(dbc, userID, id)
	if err != nil {
		return nil, err
	}
	out := &ReprocessResult{}
	err = dbc.Pick(s.db).Transaction(func(tx *gorm.DB) error {
		txc := dbctx.Context{Ctx: dbc.Ctx, Tx: tx}
		job, created, err := s.jobs.EnqueueItemProcess(txc, userID, item.ID, "reprocess")
		if err != nil {
			return err
		}
		if !created {
			out.AlreadyQueued = true
			return nil
		}
		out.Job = job
		return s.items.UpdateFields(txc, item.ID, map[string]any{
			"status":           types.ItemStatusPending,
			"processing_error": "",
		})
	})
	if err != nil {
		return nil, fmt.Errorf("reprocess: %w", err)
	}
	return out, nil
}

func (s *itemService) Review(dbc dbctx.Context, id uuid.UUID) (*ReviewResult, error) {
	userID, err := requestUser(dbc)
	if err != nil {
		return nil, err
	}
	item, err := s.ownItem(dbc, userID, id)
	if err != nil {
		return nil, err
	}
	if item.Status != types.ItemStatusReady {
		return nil, fmt.Errorf("item is %s: %w", item.Status, apperr.ErrConflict)
	}
	now := s.now()
	count := item.ReviewCount + 1
	next := s.game.Rules().NextReviewAt(count, now)
	if err := s.items.UpdateFields(dbc, item.ID, map[string]any{
		"review_count":   count,
		"reviewed_at":    now,
		"next_review_at": next,
	}); err != nil {
		return nil, fmt.Errorf("record review: %w", err)
	}

	out := &ReviewResult{Badges: []gamification.BadgeDef{}}
	itemID := item.ID
	ref := fmt.Sprintf("%s:%d", item.ID, count)
	if out.XP, err = s.game.Award(dbc, userID, gamification.ReasonItemReviewed, ref, &itemID); err != nil {
		s.log.Warn("review xp failed", "item_id", item.ID, "error", err)
	}
	if _, err := s.game.Touch(dbc, userID); err != nil {
		s.log.Warn("touch activity failed", "item_id", item.ID, "error", err)
	}
	if badges, err := s.game.CheckBadges(dbc, userID); err != nil {
		s.log.Warn("badge check failed", "item_id", item.ID, "error", err)
	} else {
		out.Badges = badges
	}

	saved, err := s.ownItem(dbc, userID, item.ID)
	if err != nil {
		return nil, err
	}
	out.Item = saved
	return out, nil
}

func (s *itemService) ReviewQueue(dbc dbctx.Context, limit int) ([]*types.Item, error) {
	userID, err := requestUser(dbc)
	if err != nil {
		return nil, err
	}
	rows, err := s.items.ListDueForReview(dbc, userID, s.now(), limit)
	if err != nil {
		return nil, fmt.Errorf("review queue: %w", err)
	}
	return rows, nil
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
