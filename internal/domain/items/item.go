package items

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Source string

const (
	SourceTwitter   Source = "twitter"
	SourcePinterest Source = "pinterest"
	SourceYouTube   Source = "youtube"
	SourceTikTok    Source = "tiktok"
	SourceInstagram Source = "instagram"
	SourceReddit    Source = "reddit"
	SourceWeb       Source = "web"
	SourceEmail     Source = "email"
)

// Social reports whether metadata should prefer oEmbed over page scraping.
func (s Source) Social() bool {
	switch s {
	case SourceTwitter, SourcePinterest, SourceYouTube, SourceTikTok, SourceInstagram, SourceReddit:
		return true
	}
	return false
}

const (
	OriginAPI   = "api"
	OriginEmail = "email"
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusReady      = "ready"
	StatusFailed     = "failed"
)

type Item struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       uuid.UUID `gorm:"type:uuid;not null;index:idx_item_user_created,priority:1" json:"user_id"`
	URL          string    `gorm:"column:url" json:"url,omitempty"`
	// Unique per user among live rows; see db.EnsureIndexes.
	CanonicalURL string    `gorm:"column:canonical_url" json:"canonical_url,omitempty"`
	Source       Source    `gorm:"column:source;not null;index" json:"source"`
	Origin       string    `gorm:"column:origin;not null;default:'api'" json:"origin"`
	Status       string    `gorm:"column:status;not null;index" json:"status"`

	Title       string `gorm:"column:title" json:"title"`
	// TitleLocked marks a title the user chose; processing never replaces it.
	TitleLocked bool   `gorm:"column:title_locked;not null;default:false" json:"title_locked"`
	Description string `gorm:"column:description" json:"description,omitempty"`
	Author      string `gorm:"column:author" json:"author,omitempty"`
	SiteName    string `gorm:"column:site_name" json:"site_name,omitempty"`
	ImageURL    string `gorm:"column:image_url" json:"image_url,omitempty"`
	EmbedHTML   string `gorm:"column:embed_html" json:"embed_html,omitempty"`
	ContentText string `gorm:"column:content_text" json:"-"`
	Summary     string `gorm:"column:summary" json:"summary,omitempty"`
	Category    string `gorm:"column:category;index" json:"category,omitempty"`
	Note        string `gorm:"column:note" json:"note,omitempty"`

	IsFavorite   bool       `gorm:"column:is_favorite;not null;default:false" json:"is_favorite"`
	IsArchived   bool       `gorm:"column:is_archived;not null;default:false" json:"is_archived"`
	ReviewCount  int        `gorm:"column:review_count;not null;default:0" json:"review_count"`
	ReviewedAt   *time.Time `gorm:"column:reviewed_at" json:"reviewed_at,omitempty"`
	NextReviewAt *time.Time `gorm:"column:next_review_at;index" json:"next_review_at,omitempty"`

	ProcessedAt     *time.Time     `gorm:"column:processed_at" json:"processed_at,omitempty"`
	ProcessingError string         `gorm:"column:processing_error" json:"processing_error,omitempty"`
	Warnings        datatypes.JSON `gorm:"column:warnings" json:"warnings,omitempty"`
	Metadata        datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`

	Tags []*Tag `gorm:"many2many:item_tag;joinForeignKey:ItemID;joinReferences:TagID" json:"tags,omitempty"`

	CreatedAt time.Time      `gorm:"not null;index:idx_item_user_created,priority:2" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Item) TableName() string { return "item" }

func (i *Item) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	if i.Status == "" {
		i.Status = StatusPending
	}
	if i.Origin == "" {
		i.Origin = OriginAPI
	}
	return nil
}
