package gamification

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/secondbrain-backend/internal/domain"
	"github.com/yungbote/secondbrain-backend/internal/pkg/dbctx"
	"github.com/yungbote/secondbrain-backend/internal/pkg/logger"
)

type UserBadgeRepo interface {
	ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]*types.UserBadge, error)
	Insert(dbc dbctx.Context, b *types.UserBadge) (bool, error)
}

type userBadgeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserBadgeRepo(db *gorm.DB, baseLog *logger.Logger) UserBadgeRepo {
	return &userBadgeRepo{db: db, log: baseLog.With("repo", "UserBadgeRepo")}
}

func (r *userBadgeRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]*types.UserBadge, error) {
	out := []*types.UserBadge{}
	if userID == uuid.Nil {
		return out, nil
	}
	err := dbc.Pick(r.db).
		Where("user_id = ?", userID).
		Order("awarded_at ASC").
		Find(&out).Error
	return out, err
}

func (r *userBadgeRepo) Insert(dbc dbctx.Context, b *types.UserBadge) (bool, error) {
	if b == nil || b.UserID == uuid.Nil || b.BadgeKey == "" {
		return false, nil
	}
	res := dbc.Pick(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "badge_key"}},
			DoNothing: true,
		}).
		Create(b)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
