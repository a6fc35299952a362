package db

import (
	"fmt"

	types "github.com/yungbote/secondbrain-backend/internal/domain"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.SetupJoinTable(&types.Item{}, "Tags", &types.ItemTag{}); err != nil {
		return fmt.Errorf("setup item_tag join table: %w", err)
	}
	if err := db.AutoMigrate(types.AllModels()...); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	return EnsureIndexes(db)
}

// EnsureIndexes creates indexes GORM tags cannot express.
func EnsureIndexes(db *gorm.DB) error {
	// One live item per canonical URL and user. Both dialects support partial indexes.
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS uq_item_user_canonical
		ON item (user_id, canonical_url)
		WHERE deleted_at IS NULL AND canonical_url <> '';
	`).Error; err != nil {
		return fmt.Errorf("create uq_item_user_canonical: %w", err)
	}
	if db.Dialector.Name() != "postgres" {
		return nil
	}
	// Full-text search over saved content.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_item_fts
		ON item
		USING GIN (to_tsvector('english', coalesce(title,'') || ' ' || coalesce(summary,'') || ' ' || coalesce(description,'')))
		WHERE deleted_at IS NULL;
	`).Error; err != nil {
		return fmt.Errorf("create idx_item_fts: %w", err)
	}
	// Review queue scans.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_item_review_due
		ON item (user_id, next_review_at)
		WHERE deleted_at IS NULL AND is_archived = false AND status = 'ready';
	`).Error; err != nil {
		return fmt.Errorf("create idx_item_review_due: %w", err)
	}
	return nil
}
