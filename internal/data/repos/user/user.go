package user

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/secondbrain-backend/internal/domain"
	"github.com/yungbote/secondbrain-backend/internal/pkg/dbctx"
	"github.com/yungbote/secondbrain-backend/internal/pkg/logger"
)

type UserRepo interface {
	Create(dbc dbctx.Context, u *types.User) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.User, error)
	GetByClerkID(dbc dbctx.Context, clerkUserID string) (*types.User, error)
	GetByInboxToken(dbc dbctx.Context, token string) (*types.User, error)
	GetByEmail(dbc dbctx.Context, email string) (*types.User, error)
	UpsertByClerkID(dbc dbctx.Context, u *types.User) (*types.User, error)
	SoftDeleteByClerkID(dbc dbctx.Context, clerkUserID string) (bool, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]any) error
	IncrementCounters(dbc dbctx.Context, id uuid.UUID, deltas map[string]int) error
}

type userRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo {
	return &userRepo{db: db, log: baseLog.With("repo", "UserRepo")}
}

func (r *userRepo) Create(dbc dbctx.Context, u *types.User) error {
	if u == nil {
		return nil
	}
	return dbc.Pick(r.db).Create(u).Error
}

func (r *userRepo) first(dbc dbctx.Context, query string, args ...any) (*types.User, error) {
	var row types.User
	err := dbc.Pick(r.db).Where(query, args...).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *userRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.User, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	return r.first(dbc, "id = ?", id)
}

func (r *userRepo) GetByClerkID(dbc dbctx.Context, clerkUserID string) (*types.User, error) {
	clerkUserID = strings.TrimSpace(clerkUserID)
	if clerkUserID == "" {
		return nil, nil
	}
	return r.first(dbc, "clerk_user_id = ?", clerkUserID)
}

func (r *userRepo) GetByInboxToken(dbc dbctx.Context, token string) (*types.User, error) {
	token = strings.ToLower(strings.TrimSpace(token))
	if token == "" {
		return nil, nil
	}
	return r.first(dbc, "inbox_token = ?", token)
}

func (r *userRepo) GetByEmail(dbc dbctx.Context, email string) (*types.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, nil
	}
	return r.first(dbc, "lower(email) = ?", email)
}

// UpsertByClerkID inserts or refreshes the profile fields Clerk owns.
// Gamification columns are never touched here. A soft-deleted row is revived.
func (r *userRepo) UpsertByClerkID(dbc dbctx.Context, u *types.User) (*types.User, error) {
	if u == nil || strings.TrimSpace(u.ClerkUserID) == "" {
		return nil, nil
	}
	u.UpdatedAt = time.Now().UTC()
	err := dbc.Pick(r.db).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "clerk_user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"email",
				"username",
				"first_name",
				"last_name",
				"image_url",
				"updated_at",
				"deleted_at",
			}),
		}).
		Create(u).Error
	if err != nil {
		return nil, err
	}
	return r.GetByClerkID(dbc, u.ClerkUserID)
}

func (r *userRepo) SoftDeleteByClerkID(dbc dbctx.Context, clerkUserID string) (bool, error) {
	clerkUserID = strings.TrimSpace(clerkUserID)
	if clerkUserID == "" {
		return false, nil
	}
	res := dbc.Pick(r.db).Where("clerk_user_id = ?", clerkUserID).Delete(&types.User{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *userRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]any) error {
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return dbc.Pick(r.db).
		Model(&types.User{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// IncrementCounters applies column = column + delta for each entry.
func (r *userRepo) IncrementCounters(dbc dbctx.Context, id uuid.UUID, deltas map[string]int) error {
	if id == uuid.Nil || len(deltas) == 0 {
		return nil
	}
	updates := make(map[string]any, len(deltas)+1)
	for col, d := range deltas {
		switch col {
		case "xp", "items_saved", "items_reviewed", "session_count":
		default:
			return errors.New("unsupported counter column: " + col)
		}
		updates[col] = gorm.Expr(col+" + ?", d)
	}
	updates["updated_at"] = time.Now().UTC()
	return dbc.Pick(r.db).
		Model(&types.User{}).
		Where("id = ?", id).
		Updates(updates).Error
}
