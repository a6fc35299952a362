package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/secondbrain-backend/internal/data/repos/gamification"
	"github.com/yungbote/secondbrain-backend/internal/data/repos/items"
	"github.com/yungbote/secondbrain-backend/internal/data/repos/jobs"
	"github.com/yungbote/secondbrain-backend/internal/data/repos/user"
	"github.com/yungbote/secondbrain-backend/internal/pkg/logger"
)

type UserRepo = user.UserRepo

type ItemRepo = items.ItemRepo
type ItemFilter = items.ItemFilter
type TagRepo = items.TagRepo
type TagDrift = items.TagDrift

type XPEventRepo = gamification.XPEventRepo
type UserBadgeRepo = gamification.UserBadgeRepo

type JobRunRepo = jobs.JobRunRepo

const (
	SortNewest = items.SortNewest
	SortOldest = items.SortOldest
	SortTitle  = items.SortTitle
)

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo { return user.NewUserRepo(db, baseLog) }

func NewItemRepo(db *gorm.DB, baseLog *logger.Logger) ItemRepo { return items.NewItemRepo(db, baseLog) }
func NewTagRepo(db *gorm.DB, baseLog *logger.Logger) TagRepo   { return items.NewTagRepo(db, baseLog) }

func NewXPEventRepo(db *gorm.DB, baseLog *logger.Logger) XPEventRepo {
	return gamification.NewXPEventRepo(db, baseLog)
}
func NewUserBadgeRepo(db *gorm.DB, baseLog *logger.Logger) UserBadgeRepo {
	return gamification.NewUserBadgeRepo(db, baseLog)
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return jobs.NewJobRunRepo(db, baseLog)
}
