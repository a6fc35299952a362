package services

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/secondbrain-backend/internal/data/repos"
	types "github.com/yungbote/secondbrain-backend/internal/domain"
	"github.com/yungbote/secondbrain-backend/internal/gamification"
	"github.com/yungbote/secondbrain-backend/internal/pkg/dbctx"
	apperr "github.com/yungbote/secondbrain-backend/internal/pkg/errors"
	"github.com/yungbote/secondbrain-backend/internal/pkg/logger"
)

// LevelProgress places the user's XP inside the current level band.
type LevelProgress struct {
	Level       int `json:"level"`
	XP          int `json:"xp"`
	LevelFloor  int `json:"level_floor"`
	NextLevelAt int `json:"next_level_at"`
	Percent     int `json:"percent"`
}

type MeStats struct {
	Progress      LevelProgress `json:"progress"`
	CurrentStreak int           `json:"current_streak"`
	LongestStreak int           `json:"longest_streak"`
	ItemsSaved    int           `json:"items_saved"`
	ItemsReviewed int           `json:"items_reviewed"`
	SessionCount  int           `json:"session_count"`
	Favorites     int64         `json:"favorites"`
	Tags          int64         `json:"tags"`
	BadgeCount    int           `json:"badge_count"`
}

type Me struct {
	User  *types.User `json:"user"`
	Stats MeStats     `json:"stats"`
}

// EarnedBadge joins a stored award with its rule definition.
type EarnedBadge struct {
	gamification.BadgeDef
	AwardedAt time.Time `json:"awarded_at"`
}

type BadgeBoard struct {
	Earned []EarnedBadge           `json:"earned"`
	Locked []gamification.BadgeDef `json:"locked"`
}

type UpdateMeInput struct {
	Timezone *string `json:"timezone"`
}

type UserService interface {
	GetMe(dbc dbctx.Context) (*Me, error)
	UpdateMe(dbc dbctx.Context, in UpdateMeInput) (*types.User, error)
	RotateInboxToken(dbc dbctx.Context) (*types.User, error)
	Badges(dbc dbctx.Context) (*BadgeBoard, error)
	RecentXP(dbc dbctx.Context, limit int) ([]*types.XPEvent, error)
}

type userService struct {
	db     *gorm.DB
	log    *logger.Logger
	users  repos.UserRepo
	items  repos.ItemRepo
	tags   repos.TagRepo
	xp     repos.XPEventRepo
	badges repos.UserBadgeRepo
	rules  *gamification.Rules
}

func NewUserService(
	db *gorm.DB,
	baseLog *logger.Logger,
	users repos.UserRepo,
	items repos.ItemRepo,
	tags repos.TagRepo,
	xp repos.XPEventRepo,
	badges repos.UserBadgeRepo,
	rules *gamification.Rules,
) UserService {
	if rules == nil {
		rules = gamification.Default()
	}
	return &userService{
		db:     db,
		log:    baseLog.With("service", "UserService"),
		users:  users,
		items:  items,
		tags:   tags,
		xp:     xp,
		badges: badges,
		rules:  rules,
	}
}

func (s *userService) me(dbc dbctx.Context) (*types.User, error) {
	userID, err := requestUser(dbc)
	if err != nil {
		return nil, err
	}
	u, err := s.users.GetByID(dbc, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if u == nil {
		return nil, apperr.ErrNotFound
	}
	return u, nil
}

func (s *userService) GetMe(dbc dbctx.Context) (*Me, error) {
	u, err := s.me(dbc)
	if err != nil {
		return nil, err
	}
	favs, err := s.items.CountFavorites(dbc, u.ID)
	if err != nil {
		return nil, err
	}
	tags, err := s.tags.CountInUse(dbc, u.ID)
	if err != nil {
		return nil, err
	}
	owned, err := s.badges.ListByUser(dbc, u.ID)
	if err != nil {
		return nil, err
	}
	return &Me{
		User: u,
		Stats: MeStats{
			Progress:      levelProgress(u.XP),
			CurrentStreak: u.CurrentStreak,
			LongestStreak: u.LongestStreak,
			ItemsSaved:    u.ItemsSaved,
			ItemsReviewed: u.ItemsReviewed,
			SessionCount:  u.SessionCount,
			Favorites:     favs,
			Tags:          tags,
			BadgeCount:    len(owned),
		},
	}, nil
}

func levelProgress(xp int) LevelProgress {
	level := gamification.LevelForXP(xp)
	floor := gamification.XPForLevel(level)
	next := gamification.XPForLevel(level + 1)
	pct := 0
	if span := next - floor; span > 0 {
		pct = (xp - floor) * 100 / span
	}
	return LevelProgress{Level: level, XP: xp, LevelFloor: floor, NextLevelAt: next, Percent: pct}
}

func (s *userService) UpdateMe(dbc dbctx.Context, in UpdateMeInput) (*types.User, error) {
	u, err := s.me(dbc)
	if err != nil {
		return nil, err
	}
	updates := map[string]any{}
	if in.Timezone != nil {
		tz := strings.TrimSpace(*in.Timezone)
		if _, err := time.LoadLocation(tz); err != nil || tz == "" {
			return nil, fmt.Errorf("timezone %q: %w", tz, apperr.ErrInvalidArgument)
		}
		updates["timezone"] = tz
	}
	if len(updates) == 0 {
		return u, nil
	}
	if err := s.users.UpdateFields(dbc, u.ID, updates); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return s.users.GetByID(dbc, u.ID)
}

func (s *userService) RotateInboxToken(dbc dbctx.Context) (*types.User, error) {
	u, err := s.me(dbc)
	if err != nil {
		return nil, err
	}
	// Tokens are random; a collision is retried a couple of times.
	for attempt := 0; attempt < 3; attempt++ {
		err = s.users.UpdateFields(dbc, u.ID, map[string]any{"inbox_token": types.NewInboxToken()})
		if err == nil || !repos.IsUniqueViolation(err) {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("rotate inbox token: %w", err)
	}
	s.log.Info("inbox token rotated", "user_id", u.ID)
	return s.users.GetByID(dbc, u.ID)
}

func (s *userService) Badges(dbc dbctx.Context) (*BadgeBoard, error) {
	userID, err := requestUser(dbc)
	if err != nil {
		return nil, err
	}
	rows, err := s.badges.ListByUser(dbc, userID)
	if err != nil {
		return nil, fmt.Errorf("list badges: %w", err)
	}
	board := &BadgeBoard{Earned: []EarnedBadge{}, Locked: []gamification.BadgeDef{}}
	owned := make(map[string]bool, len(rows))
	for _, b := range rows {
		owned[b.BadgeKey] = true
		def, ok := s.rules.Badge(b.BadgeKey)
		if !ok {
			// retired from the rules table; keep the award visible
			def = gamification.BadgeDef{Key: b.BadgeKey, Name: b.BadgeKey}
		}
		board.Earned = append(board.Earned, EarnedBadge{BadgeDef: def, AwardedAt: b.AwardedAt})
	}
	for _, def := range s.rules.Badges {
		if !owned[def.Key] {
			board.Locked = append(board.Locked, def)
		}
	}
	return board, nil
}

func (s *userService) RecentXP(dbc dbctx.Context, limit int) ([]*types.XPEvent, error) {
	userID, err := requestUser(dbc)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.xp.ListRecent(dbc, userID, limit)
}
