package items

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/secondbrain-backend/internal/domain"
	"github.com/yungbote/secondbrain-backend/internal/pkg/dbctx"
	"github.com/yungbote/secondbrain-backend/internal/pkg/logger"
)

const (
	SortNewest = "newest"
	SortOldest = "oldest"
	SortTitle  = "title"
)

type ItemFilter struct {
	UserID   uuid.UUID
	Status   string
	TagSlug  string
	Category string
	Source   string
	Favorite *bool
	Archived *bool
	Query    string
	Sort     string
	Limit    int
	Offset   int
}

type ItemRepo interface {
	Create(dbc dbctx.Context, item *types.Item) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Item, error)
	GetForUser(dbc dbctx.Context, userID, id uuid.UUID) (*types.Item, error)
	GetByCanonicalURL(dbc dbctx.Context, userID uuid.UUID, canonicalURL string) (*types.Item, error)
	List(dbc dbctx.Context, f ItemFilter) ([]*types.Item, int64, error)
	ListDueForReview(dbc dbctx.Context, userID uuid.UUID, now time.Time, limit int) ([]*types.Item, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]any) error
	SoftDelete(dbc dbctx.Context, id uuid.UUID) error
	CountFavorites(dbc dbctx.Context, userID uuid.UUID) (int64, error)
}

type itemRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewItemRepo(db *gorm.DB, baseLog *logger.Logger) ItemRepo {
	return &itemRepo{db: db, log: baseLog.With("repo", "ItemRepo")}
}

func (r *itemRepo) Create(dbc dbctx.Context, item *types.Item) error {
	if item == nil {
		return nil
	}
	return dbc.Pick(r.db).Omit("Tags").Create(item).Error
}

func (r *itemRepo) firstWithTags(q *gorm.DB) (*types.Item, error) {
	var row types.Item
	if err := q.Preload("Tags").First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *itemRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Item, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	return r.firstWithTags(dbc.Pick(r.db).Where("id = ?", id))
}

func (r *itemRepo) GetForUser(dbc dbctx.Context, userID, id uuid.UUID) (*types.Item, error) {
	if userID == uuid.Nil || id == uuid.Nil {
		return nil, nil
	}
	return r.firstWithTags(dbc.Pick(r.db).Where("id = ? AND user_id = ?", id, userID))
}

func (r *itemRepo) GetByCanonicalURL(dbc dbctx.Context, userID uuid.UUID, canonicalURL string) (*types.Item, error) {
	canonicalURL = strings.TrimSpace(canonicalURL)
	if userID == uuid.Nil || canonicalURL == "" {
		return nil, nil
	}
	return r.firstWithTags(dbc.Pick(r.db).
		Where("user_id = ? AND canonical_url = ?", userID, canonicalURL).
		Order("created_at ASC"))
}

func (r *itemRepo) List(dbc dbctx.Context, f ItemFilter) ([]*types.Item, int64, error) {
	out := []*types.Item{}
	if f.UserID == uuid.Nil {
		return out, 0, nil
	}
	q := dbc.Pick(r.db).Model(&types.Item{}).Where("item.user_id = ?", f.UserID)
	if f.Status != "" {
		q = q.Where("item.status = ?", f.Status)
	}
	if f.Category != "" {
		q = q.Where("item.category = ?", f.Category)
	}
	if f.Source != "" {
		q = q.Where("item.source = ?", f.Source)
	}
	if f.Favorite != nil {
		q = q.Where("item.is_favorite = ?", *f.Favorite)
	}
	if f.Archived != nil {
		q = q.Where("item.is_archived = ?", *f.Archived)
	}
	if f.TagSlug != "" {
		q = q.Where(
			"EXISTS (SELECT 1 FROM item_tag JOIN tag ON tag.id = item_tag.tag_id WHERE item_tag.item_id = item.id AND tag.slug = ?)",
			f.TagSlug,
		)
	}
	if s := strings.ToLower(strings.TrimSpace(f.Query)); s != "" {
		like := "%" + escapeLike(s) + "%"
		q = q.Where(
			"(lower(item.title) LIKE ? ESCAPE '\\' OR lower(item.summary) LIKE ? ESCAPE '\\' OR lower(item.description) LIKE ? ESCAPE '\\' OR lower(item.note) LIKE ? ESCAPE '\\')",
			like, like, like, like,
		)
	}

	q = q.Session(&gorm.Session{})
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	switch f.Sort {
	case SortOldest:
		q = q.Order("item.created_at ASC")
	case SortTitle:
		q = q.Order("lower(item.title) ASC").Order("item.created_at DESC")
	default:
		q = q.Order("item.created_at DESC")
	}
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}
	if err := q.Limit(limit).Preload("Tags").Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// ListDueForReview returns ready, unarchived items never reviewed or whose
// next_review_at has passed, oldest due first.
func (r *itemRepo) ListDueForReview(dbc dbctx.Context, userID uuid.UUID, now time.Time, limit int) ([]*types.Item, error) {
	out := []*types.Item{}
	if userID == uuid.Nil {
		return out, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	err := dbc.Pick(r.db).
		Where("user_id = ? AND status = ? AND is_archived = ?", userID, types.ItemStatusReady, false).
		Where("next_review_at IS NULL OR next_review_at <= ?", now).
		Order("CASE WHEN next_review_at IS NULL THEN 0 ELSE 1 END").
		Order("next_review_at ASC").
		Order("created_at ASC").
		Limit(limit).
		Preload("Tags").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *itemRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]any) error {
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return dbc.Pick(r.db).
		Model(&types.Item{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *itemRepo) SoftDelete(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return nil
	}
	return dbc.Pick(r.db).Where("id = ?", id).Delete(&types.Item{}).Error
}

func (r *itemRepo) CountFavorites(dbc dbctx.Context, userID uuid.UUID) (int64, error) {
	var n int64
	if userID == uuid.Nil {
		return 0, nil
	}
	err := dbc.Pick(r.db).Model(&types.Item{}).
		Where("user_id = ? AND is_favorite = ?", userID, true).
		Count(&n).Error
	return n, err
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
