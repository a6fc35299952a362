package user

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ClerkUserID string    `gorm:"column:clerk_user_id;uniqueIndex;not null" json:"clerk_user_id"`
	Email       string    `gorm:"column:email;index" json:"email"`
	Username    string    `gorm:"column:username" json:"username,omitempty"`
	FirstName   string    `gorm:"column:first_name" json:"first_name"`
	LastName    string    `gorm:"column:last_name" json:"last_name"`
	ImageURL    string    `gorm:"column:image_url" json:"image_url,omitempty"`
	// InboxToken is the local part users forward e-mail to.
	InboxToken string `gorm:"column:inbox_token;uniqueIndex;not null" json:"inbox_token"`
	Timezone   string `gorm:"column:timezone;not null;default:'UTC'" json:"timezone"`

	XP            int        `gorm:"column:xp;not null;default:0" json:"xp"`
	Level         int        `gorm:"column:level;not null;default:1" json:"level"`
	CurrentStreak int        `gorm:"column:current_streak;not null;default:0" json:"current_streak"`
	LongestStreak int        `gorm:"column:longest_streak;not null;default:0" json:"longest_streak"`
	LastActiveAt  *time.Time `gorm:"column:last_active_at" json:"last_active_at,omitempty"`
	SessionCount  int        `gorm:"column:session_count;not null;default:0" json:"session_count"`
	LastSessionAt *time.Time `gorm:"column:last_session_at" json:"last_session_at,omitempty"`
	ItemsSaved    int        `gorm:"column:items_saved;not null;default:0" json:"items_saved"`
	ItemsReviewed int        `gorm:"column:items_reviewed;not null;default:0" json:"items_reviewed"`

	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (User) TableName() string { return "user" }

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.InboxToken == "" {
		u.InboxToken = NewInboxToken()
	}
	if u.Timezone == "" {
		u.Timezone = "UTC"
	}
	if u.Level == 0 {
		u.Level = 1
	}
	return nil
}

// NewInboxToken returns a short, lowercase, address-safe token.
func NewInboxToken() string {
	raw := uuid.New()
	const alphabet = "abcdefghijkmnpqrstuvwxyz23456789"
	out := make([]byte, 12)
	for i := range out {
		out[i] = alphabet[int(raw[i])%len(alphabet)]
	}
	return string(out)
}
