package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/secondbrain-backend/internal/data/repos"
	types "github.com/yungbote/secondbrain-backend/internal/domain"
	"github.com/yungbote/secondbrain-backend/internal/gamification"
	"github.com/yungbote/secondbrain-backend/internal/pkg/dbctx"
	apperr "github.com/yungbote/secondbrain-backend/internal/pkg/errors"
	"github.com/yungbote/secondbrain-backend/internal/pkg/logger"
)

type AwardResult struct {
	// Awarded is false when the (reason, ref) pair had already been recorded.
	Awarded   bool `json:"awarded"`
	Amount    int  `json:"amount"`
	XP        int  `json:"xp"`
	Level     int  `json:"level"`
	LeveledUp bool `json:"leveled_up"`
}

type GamificationService interface {
	Rules() *gamification.Rules
	// Award records XP for reason once per ref. Amount comes from the rules table.
	Award(dbc dbctx.Context, userID uuid.UUID, reason, ref string, itemID *uuid.UUID) (*AwardResult, error)
	// Touch records activity now: streak, longest streak, session count, and
	// the daily streak XP on the first activity of a local day.
	Touch(dbc dbctx.Context, userID uuid.UUID) (*gamification.ActivityChange, error)
	// CheckBadges awards every newly earned badge and its XP bonus.
	CheckBadges(dbc dbctx.Context, userID uuid.UUID) ([]gamification.BadgeDef, error)
}

// counterFor maps XP reasons to the user counter they also advance.
var counterFor = map[string]string{
	gamification.ReasonItemSaved:    "items_saved",
	gamification.ReasonItemReviewed: "items_reviewed",
}

type gamificationService struct {
	db        *gorm.DB
	log       *logger.Logger
	rules     *gamification.Rules
	userRepo  repos.UserRepo
	itemRepo  repos.ItemRepo
	tagRepo   repos.TagRepo
	xpRepo    repos.XPEventRepo
	badgeRepo repos.UserBadgeRepo
	notify    ProgressNotifier
	now       func() time.Time
}

func NewGamificationService(
	db *gorm.DB,
	baseLog *logger.Logger,
	rules *gamification.Rules,
	userRepo repos.UserRepo,
	itemRepo repos.ItemRepo,
	tagRepo repos.TagRepo,
	xpRepo repos.XPEventRepo,
	badgeRepo repos.UserBadgeRepo,
	notify ProgressNotifier,
) GamificationService {
	if rules == nil {
		rules = gamification.Default()
	}
	if notify == nil {
		notify = NewProgressNotifier(nil)
	}
	return &gamificationService{
		db:        db,
		log:       baseLog.With("service", "GamificationService"),
		rules:     rules,
		userRepo:  userRepo,
		itemRepo:  itemRepo,
		tagRepo:   tagRepo,
		xpRepo:    xpRepo,
		badgeRepo: badgeRepo,
		notify:    notify,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *gamificationService) Rules() *gamification.Rules { return s.rules }

func (s *gamificationService) Award(dbc dbctx.Context, userID uuid.UUID, reason, ref string, itemID *uuid.UUID) (*AwardResult, error) {
	return s.award(dbc, userID, reason, ref, s.rules.XPFor(reason), itemID)
}

func (s *gamificationService) award(dbc dbctx.Context, userID uuid.UUID, reason, ref string, amount int, itemID *uuid.UUID) (*AwardResult, error) {
	if userID == uuid.Nil || reason == "" {
		return nil, fmt.Errorf("award: %w", apperr.ErrInvalidArgument)
	}
	out := &AwardResult{Amount: amount}
	err := s.inTx(dbc, func(txc dbctx.Context) error {
		inserted, err := s.xpRepo.Insert(txc, &types.XPEvent{
			UserID: userID,
			Reason: reason,
			Ref:    ref,
			Amount: amount,
			ItemID: itemID,
		})
		if err != nil {
			return fmt.Errorf("insert xp event: %w", err)
		}
		if !inserted {
			return nil
		}
		out.Awarded = true
		deltas := map[string]int{"xp": amount}
		if col, ok := counterFor[reason]; ok {
			deltas[col] = 1
		}
		if err := s.userRepo.IncrementCounters(txc, userID, deltas); err != nil {
			return fmt.Errorf("increment counters: %w", err)
		}
		u, err := s.userRepo.GetByID(txc, userID)
		if err != nil {
			return err
		}
		if u == nil {
			return apperr.ErrNotFound
		}
		out.XP = u.XP
		out.Level = gamification.LevelForXP(u.XP)
		if out.Level != u.Level {
			out.LeveledUp = out.Level > u.Level
			return s.userRepo.UpdateFields(txc, userID, map[string]any{"level": out.Level})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out.Awarded {
		s.log.Debug("xp awarded", "user_id", userID, "reason", reason, "ref", ref, "amount", amount)
		if amount > 0 {
			s.notify.XPAwarded(userID, reason, amount, out.XP)
		}
		if out.LeveledUp {
			s.notify.LevelUp(userID, out.Level)
		}
	}
	return out, nil
}

func (s *gamificationService) Touch(dbc dbctx.Context, userID uuid.UUID) (*gamification.ActivityChange, error) {
	u, err := s.userRepo.GetByID(dbc, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperr.ErrNotFound
	}
	ch := s.rules.TouchActivity(gamification.ActivityState{
		CurrentStreak: u.CurrentStreak,
		LongestStreak: u.LongestStreak,
		LastActiveAt:  u.LastActiveAt,
		LastSessionAt: u.LastSessionAt,
	}, s.now(), u.Timezone)

	updates := map[string]any{
		"current_streak":  ch.CurrentStreak,
		"longest_streak":  ch.LongestStreak,
		"last_active_at":  ch.ActiveAt,
		"last_session_at": ch.SessionAt,
	}
	if ch.NewSession {
		updates["session_count"] = gorm.Expr("session_count + ?", 1)
	}
	if err := s.userRepo.UpdateFields(dbc, userID, updates); err != nil {
		return nil, fmt.Errorf("update activity: %w", err)
	}
	if ch.NewDay {
		if _, err := s.Award(dbc, userID, gamification.ReasonStreakDay, ch.Day, nil); err != nil {
			s.log.Warn("streak xp failed", "user_id", userID, "day", ch.Day, "error", err)
		}
	}
	return &ch, nil
}

func (s *gamificationService) CheckBadges(dbc dbctx.Context, userID uuid.UUID) ([]gamification.BadgeDef, error) {
	awarded := []gamification.BadgeDef{}
	// A bonus can lift the level and unlock a level badge, so re-evaluate
	// until nothing new is earned.
	for pass := 0; pass < 3; pass++ {
		stats, owned, err := s.snapshot(dbc, userID)
		if err != nil {
			return awarded, err
		}
		earned := s.rules.EvaluateBadges(stats, owned)
		if len(earned) == 0 {
			break
		}
		for _, b := range earned {
			// The badge row and its bonus commit together so a failed bonus
			// leaves the badge unowned and retried on the next check.
			inserted := false
			err := s.inTx(dbc, func(txc dbctx.Context) error {
				ok, err := s.badgeRepo.Insert(txc, &types.UserBadge{
					UserID:    userID,
					BadgeKey:  b.Key,
					AwardedAt: s.now(),
				})
				if err != nil {
					return fmt.Errorf("insert badge %s: %w", b.Key, err)
				}
				if !ok || b.XPBonus <= 0 {
					inserted = ok
					return nil
				}
				if _, err := s.award(txc, userID, gamification.ReasonBadge, b.Key, b.XPBonus, nil); err != nil {
					return fmt.Errorf("badge %s bonus: %w", b.Key, err)
				}
				inserted = true
				return nil
			})
			if err != nil {
				return awarded, err
			}
			if !inserted {
				continue
			}
			awarded = append(awarded, b)
			s.notify.BadgeAwarded(userID, b.Key, b.Name)
		}
	}
	return awarded, nil
}

func (s *gamificationService) snapshot(dbc dbctx.Context, userID uuid.UUID) (gamification.Stats, map[string]bool, error) {
	u, err := s.userRepo.GetByID(dbc, userID)
	if err != nil {
		return gamification.Stats{}, nil, err
	}
	if u == nil {
		return gamification.Stats{}, nil, apperr.ErrNotFound
	}
	tags, err := s.tagRepo.CountInUse(dbc, userID)
	if err != nil {
		return gamification.Stats{}, nil, err
	}
	favs, err := s.itemRepo.CountFavorites(dbc, userID)
	if err != nil {
		return gamification.Stats{}, nil, err
	}
	badges, err := s.badgeRepo.ListByUser(dbc, userID)
	if err != nil {
		return gamification.Stats{}, nil, err
	}
	owned := make(map[string]bool, len(badges))
	for _, b := range badges {
		owned[b.BadgeKey] = true
	}
	return gamification.Stats{
		ItemsSaved:    u.ItemsSaved,
		ItemsReviewed: u.ItemsReviewed,
		LongestStreak: u.LongestStreak,
		DistinctTags:  int(tags),
		Favorites:     int(favs),
		Level:         gamification.LevelForXP(u.XP),
	}, owned, nil
}

// inTx reuses an outer transaction when dbc carries one.
func (s *gamificationService) inTx(dbc dbctx.Context, fn func(txc dbctx.Context) error) error {
	if dbc.Tx != nil {
		return fn(dbc)
	}
	return dbc.Pick(s.db).Transaction(func(tx *gorm.DB) error {
		return fn(dbctx.Context{Ctx: dbc.Ctx, Tx: tx})
	})
}
