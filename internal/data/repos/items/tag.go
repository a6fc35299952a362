package items

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/secondbrain-backend/internal/domain"
	"github.com/yungbote/secondbrain-backend/internal/pkg/dbctx"
	"github.com/yungbote/secondbrain-backend/internal/pkg/logger"
)

// TagDrift is a tag whose stored usage_count disagrees with item_tag.
type TagDrift struct {
	TagID  uuid.UUID
	UserID uuid.UUID
	Slug   string
	Stored int
	Actual int
}

type TagRepo interface {
	ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]*types.Tag, error)
	GetForUser(dbc dbctx.Context, userID, id uuid.UUID) (*types.Tag, error)
	GetBySlug(dbc dbctx.Context, userID uuid.UUID, slug string) (*types.Tag, error)
	FindOrCreate(dbc dbctx.Context, userID uuid.UUID, name, slug string) (*types.Tag, error)
	TagIDsForItem(dbc dbctx.Context, itemID uuid.UUID) ([]uuid.UUID, error)
	Attach(dbc dbctx.Context, itemID uuid.UUID, tagIDs []uuid.UUID) ([]uuid.UUID, error)
	Detach(dbc dbctx.Context, itemID uuid.UUID, tagIDs []uuid.UUID) ([]uuid.UUID, error)
	DetachAll(dbc dbctx.Context, itemID uuid.UUID) ([]uuid.UUID, error)
	Rename(dbc dbctx.Context, id uuid.UUID, name, slug string) error
	Delete(dbc dbctx.Context, id uuid.UUID) error
	CountInUse(dbc dbctx.Context, userID uuid.UUID) (int64, error)
	ListDrift(dbc dbctx.Context, userID uuid.UUID) ([]TagDrift, error)
	ReconcileUsageCounts(dbc dbctx.Context, userID uuid.UUID) (int64, error)
}

type tagRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTagRepo(db *gorm.DB, baseLog *logger.Logger) TagRepo {
	return &tagRepo{db: db, log: baseLog.With("repo", "TagRepo")}
}

func (r *tagRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]*types.Tag, error) {
	out := []*types.Tag{}
	if userID == uuid.Nil {
		return out, nil
	}
	err := dbc.Pick(r.db).
		Where("user_id = ?", userID).
		Order("usage_count DESC").
		Order("slug ASC").
		Find(&out).Error
	return out, err
}

func (r *tagRepo) first(q *gorm.DB) (*types.Tag, error) {
	var row types.Tag
	if err := q.First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *tagRepo) GetForUser(dbc dbctx.Context, userID, id uuid.UUID) (*types.Tag, error) {
	if userID == uuid.Nil || id == uuid.Nil {
		return nil, nil
	}
	return r.first(dbc.Pick(r.db).Where("id = ? AND user_id = ?", id, userID))
}

func (r *tagRepo) GetBySlug(dbc dbctx.Context, userID uuid.UUID, slug string) (*types.Tag, error) {
	if userID == uuid.Nil || slug == "" {
		return nil, nil
	}
	return r.first(dbc.Pick(r.db).Where("user_id = ? AND slug = ?", userID, slug))
}

func (r *tagRepo) FindOrCreate(dbc dbctx.Context, userID uuid.UUID, name, slug string) (*types.Tag, error) {
	if userID == uuid.Nil || slug == "" {
		return nil, nil
	}
	if name == "" {
		name = slug
	}
	row := &types.Tag{UserID: userID, Name: name, Slug: slug}
	if err := dbc.Pick(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "slug"}},
			DoNothing: true,
		}).
		Create(row).Error; err != nil {
		return nil, err
	}
	return r.GetBySlug(dbc, userID, slug)
}

func (r *tagRepo) TagIDsForItem(dbc dbctx.Context, itemID uuid.UUID) ([]uuid.UUID, error) {
	out := []uuid.UUID{}
	if itemID == uuid.Nil {
		return out, nil
	}
	err := dbc.Pick(r.db).
		Model(&types.ItemTag{}).
		Where("item_id = ?", itemID).
		Order("created_at ASC").
		Pluck("tag_id", &out).Error
	return out, err
}

// Attach links tags to an item and bumps usage_count for links that did not
// exist yet. It returns the newly attached tag ids.
func (r *tagRepo) Attach(dbc dbctx.Context, itemID uuid.UUID, tagIDs []uuid.UUID) ([]uuid.UUID, error) {
	attached := []uuid.UUID{}
	if itemID == uuid.Nil || len(tagIDs) == 0 {
		return attached, nil
	}
	t := dbc.Pick(r.db)
	now := time.Now().UTC()
	for _, tagID := range dedupeIDs(tagIDs) {
		res := t.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&types.ItemTag{ItemID: itemID, TagID: tagID, CreatedAt: now})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected > 0 {
			attached = append(attached, tagID)
		}
	}
	if err := r.bumpUsage(t, attached, 1); err != nil {
		return nil, err
	}
	return attached, nil
}

// Detach removes links and decrements usage_count for links that existed.
func (r *tagRepo) Detach(dbc dbctx.Context, itemID uuid.UUID, tagIDs []uuid.UUID) ([]uuid.UUID, error) {
	detached := []uuid.UUID{}
	if itemID == uuid.Nil || len(tagIDs) == 0 {
		return detached, nil
	}
	t := dbc.Pick(r.db)
	for _, tagID := range dedupeIDs(tagIDs) {
		res := t.Where("item_id = ? AND tag_id = ?", itemID, tagID).Delete(&types.ItemTag{})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected > 0 {
			detached = append(detached, tagID)
		}
	}
	if err := r.bumpUsage(t, detached, -1); err != nil {
		return nil, err
	}
	return detached, nil
}

func (r *tagRepo) DetachAll(dbc dbctx.Context, itemID uuid.UUID) ([]uuid.UUID, error) {
	ids, err := r.TagIDsForItem(dbc, itemID)
	if err != nil {
		return nil, err
	}
	return r.Detach(dbc, itemID, ids)
}

func (r *tagRepo) bumpUsage(t *gorm.DB, tagIDs []uuid.UUID, delta int) error {
	if len(tagIDs) == 0 || delta == 0 {
		return nil
	}
	expr := gorm.Expr("usage_count + ?", delta)
	if delta < 0 {
		// never below zero; reconcile fixes real drift
		expr = gorm.Expr("CASE WHEN usage_count + ? < 0 THEN 0 ELSE usage_count + ? END", delta, delta)
	}
	return t.Model(&types.Tag{}).
		Where("id IN ?", tagIDs).
		Updates(map[string]any{
			"usage_count": expr,
			"updated_at":  time.Now().UTC(),
		}).Error
}

func (r *tagRepo) Rename(dbc dbctx.Context, id uuid.UUID, name, slug string) error {
	if id == uuid.Nil {
		return nil
	}
	return dbc.Pick(r.db).
		Model(&types.Tag{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"name":       name,
			"slug":       slug,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *tagRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return nil
	}
	t := dbc.Pick(r.db)
	if err := t.Where("tag_id = ?", id).Delete(&types.ItemTag{}).Error; err != nil {
		return err
	}
	return t.Where("id = ?", id).Delete(&types.Tag{}).Error
}

func (r *tagRepo) CountInUse(dbc dbctx.Context, userID uuid.UUID) (int64, error) {
	var n int64
	if userID == uuid.Nil {
		return 0, nil
	}
	err := dbc.Pick(r.db).Model(&types.Tag{}).
		Where("user_id = ? AND usage_count > 0", userID).
		Count(&n).Error
	return n, err
}

const liveTagCount = `(SELECT COUNT(*) FROM item_tag JOIN item ON item.id = item_tag.item_id
	WHERE item_tag.tag_id = tag.id AND item.deleted_at IS NULL)`

func (r *tagRepo) ListDrift(dbc dbctx.Context, userID uuid.UUID) ([]TagDrift, error) {
	type row struct {
		ID         uuid.UUID
		UserID     uuid.UUID
		Slug       string
		UsageCount int
		Actual     int
	}
	var rows []row
	q := dbc.Pick(r.db).
		Model(&types.Tag{}).
		Select("tag.id, tag.user_id, tag.slug, tag.usage_count, " + liveTagCount + " AS actual").
		Where("tag.usage_count <> " + liveTagCount)
	if userID != uuid.Nil {
		q = q.Where("tag.user_id = ?", userID)
	}
	if err := q.Order("tag.slug ASC").Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]TagDrift, 0, len(rows))
	for _, rr := range rows {
		out = append(out, TagDrift{TagID: rr.ID, UserID: rr.UserID, Slug: rr.Slug, Stored: rr.UsageCount, Actual: rr.Actual})
	}
	return out, nil
}

// ReconcileUsageCounts rewrites usage_count from live item_tag rows and
// returns the number of tags corrected. userID == uuid.Nil means all users.
func (r *tagRepo) ReconcileUsageCounts(dbc dbctx.Context, userID uuid.UUID) (int64, error) {
	q := dbc.Pick(r.db).
		Model(&types.Tag{}).
		Where("usage_count <> " + liveTagCount)
	if userID != uuid.Nil {
		q = q.Where("user_id = ?", userID)
	}
	res := q.Updates(map[string]any{
		"usage_count": gorm.Expr(liveTagCount),
		"updated_at":  time.Now().UTC(),
	})
	return res.RowsAffected, res.Error
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
