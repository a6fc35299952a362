package items

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Tag is per user. UsageCount counts live items carrying the tag and is
// maintained incrementally; cmd/reconcile_tags recomputes it from item_tag.
type Tag struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_tag_user_slug,priority:1" json:"user_id"`
	Name       string    `gorm:"column:name;not null" json:"name"`
	Slug       string    `gorm:"column:slug;not null;uniqueIndex:idx_tag_user_slug,priority:2" json:"slug"`
	UsageCount int       `gorm:"column:usage_count;not null;default:0" json:"usage_count"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time `gorm:"not null" json:"updated_at"`
}

func (Tag) TableName() string { return "tag" }

func (t *Tag) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

type ItemTag struct {
	ItemID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"item_id"`
	TagID     uuid.UUID `gorm:"type:uuid;primaryKey;index" json:"tag_id"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (ItemTag) TableName() string { return "item_tag" }
