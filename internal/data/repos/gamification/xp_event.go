package gamification

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/secondbrain-backend/internal/domain"
	"github.com/yungbote/secondbrain-backend/internal/pkg/dbctx"
	"github.com/yungbote/secondbrain-backend/internal/pkg/logger"
)

type XPEventRepo interface {
	// Insert returns false when the (user, reason, ref) triple was already recorded.
	Insert(dbc dbctx.Context, ev *types.XPEvent) (bool, error)
	ListRecent(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.XPEvent, error)
	SumForUser(dbc dbctx.Context, userID uuid.UUID) (int, error)
}

type xpEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewXPEventRepo(db *gorm.DB, baseLog *logger.Logger) XPEventRepo {
	return &xpEventRepo{db: db, log: baseLog.With("repo", "XPEventRepo")}
}

func (r *xpEventRepo) Insert(dbc dbctx.Context, ev *types.XPEvent) (bool, error) {
	if ev == nil || ev.UserID == uuid.Nil || ev.Reason == "" {
		return false, nil
	}
	res := dbc.Pick(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "reason"}, {Name: "ref"}},
			DoNothing: true,
		}).
		Create(ev)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *xpEventRepo) ListRecent(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.XPEvent, error) {
	out := []*types.XPEvent{}
	if userID == uuid.Nil {
		return out, nil
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	err := dbc.Pick(r.db).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *xpEventRepo) SumForUser(dbc dbctx.Context, userID uuid.UUID) (int, error) {
	if userID == uuid.Nil {
		return 0, nil
	}
	var total int
	err := dbc.Pick(r.db).
		Model(&types.XPEvent{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("user_id = ?", userID).
		Scan(&total).Error
	return total, err
}
