package gamification

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// XPEvent is the append-only XP ledger. (UserID, Reason, Ref) is unique so
// replays of the same trigger never award twice.
type XPEvent struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_xp_event_user_reason_ref,priority:1" json:"user_id"`
	Reason    string     `gorm:"column:reason;not null;uniqueIndex:idx_xp_event_user_reason_ref,priority:2" json:"reason"`
	Ref       string     `gorm:"column:ref;not null;uniqueIndex:idx_xp_event_user_reason_ref,priority:3" json:"ref"`
	Amount    int        `gorm:"column:amount;not null" json:"amount"`
	ItemID    *uuid.UUID `gorm:"type:uuid;column:item_id;index" json:"item_id,omitempty"`
	CreatedAt time.Time  `gorm:"not null;index" json:"created_at"`
}

func (XPEvent) TableName() string { return "xp_event" }

func (e *XPEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

type UserBadge struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_user_badge_user_key,priority:1" json:"user_id"`
	BadgeKey  string    `gorm:"column:badge_key;not null;uniqueIndex:idx_user_badge_user_key,priority:2" json:"badge_key"`
	AwardedAt time.Time `gorm:"column:awarded_at;not null" json:"awarded_at"`
}

func (UserBadge) TableName() string { return "user_badge" }

func (b *UserBadge) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}
