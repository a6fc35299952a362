package testutil

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/secondbrain-backend/internal/domain"
)

func SeedUser(tb testing.TB, db *gorm.DB, email string) *types.User {
	tb.Helper()
	u := &types.User{
		ClerkUserID: "user_" + uuid.NewString()[:8],
		Email:       email,
		FirstName:   "A",
		LastName:    "B",
	}
	if err := db.Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

func SeedItem(tb testing.TB, db *gorm.DB, userID uuid.UUID, rawURL string, mutate ...func(*types.Item)) *types.Item {
	tb.Helper()
	it := &types.Item{
		UserID:       userID,
		URL:          rawURL,
		CanonicalURL: rawURL,
		Source:       types.SourceWeb,
		Status:       types.ItemStatusReady,
		Title:        "item " + rawURL,
	}
	for _, m := range mutate {
		m(it)
	}
	if err := db.Omit("Tags").Create(it).Error; err != nil {
		tb.Fatalf("seed item: %v", err)
	}
	return it
}

func SeedTag(tb testing.TB, db *gorm.DB, userID uuid.UUID, name, slug string) *types.Tag {
	tb.Helper()
	tag := &types.Tag{UserID: userID, Name: name, Slug: slug}
	if err := db.Create(tag).Error; err != nil {
		tb.Fatalf("seed tag: %v", err)
	}
	return tag
}

func PtrUUID(v uuid.UUID) *uuid.UUID { return &v }

func PtrTime(v time.Time) *time.Time { return &v }
