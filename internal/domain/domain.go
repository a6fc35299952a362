package domain

import (
	"github.com/yungbote/secondbrain-backend/internal/domain/gamification"
	"github.com/yungbote/secondbrain-backend/internal/domain/items"
	"github.com/yungbote/secondbrain-backend/internal/domain/jobs"
	"github.com/yungbote/secondbrain-backend/internal/domain/user"
)

type User = user.User

type Item = items.Item
type ItemSource = items.Source
type Tag = items.Tag
type ItemTag = items.ItemTag

type XPEvent = gamification.XPEvent
type UserBadge = gamification.UserBadge

type JobRun = jobs.JobRun

const (
	SourceTwitter   = items.SourceTwitter
	SourcePinterest = items.SourcePinterest
	SourceYouTube   = items.SourceYouTube
	SourceTikTok    = items.SourceTikTok
	SourceInstagram = items.SourceInstagram
	SourceReddit    = items.SourceReddit
	SourceWeb       = items.SourceWeb
	SourceEmail     = items.SourceEmail

	OriginAPI   = items.OriginAPI
	OriginEmail = items.OriginEmail

	ItemStatusPending    = items.StatusPending
	ItemStatusProcessing = items.StatusProcessing
	ItemStatusReady      = items.StatusReady
	ItemStatusFailed     = items.StatusFailed

	JobStatusQueued    = jobs.StatusQueued
	JobStatusRunning   = jobs.StatusRunning
	JobStatusFailed    = jobs.StatusFailed
	JobStatusSucceeded = jobs.StatusSucceeded
	JobStatusCanceled  = jobs.StatusCanceled

	JobTypeItemProcess = jobs.JobTypeItemProcess
	EntityTypeItem     = jobs.EntityTypeItem
)

func NewInboxToken() string { return user.NewInboxToken() }

// AllModels is the migration set, in dependency order.
func AllModels() []any {
	return []any{
		&User{},
		&Item{},
		&Tag{},
		&ItemTag{},
		&XPEvent{},
		&UserBadge{},
		&JobRun{},
	}
}
