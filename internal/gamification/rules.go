// Package gamification holds the XP table, level curve, streak arithmetic,
// badge thresholds and review spacing. It does no I/O.
package gamification

import (
	_ "embed"
	"fmt"
	"math"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ReasonItemSaved     = "item_saved"
	ReasonItemReviewed  = "item_reviewed"
	ReasonItemFavorited = "item_favorited"
	ReasonStreakDay     = "streak_day"
	ReasonEmailImport   = "email_import"
	ReasonBadge         = "badge"
)

const (
	MetricItemsSaved    = "items_saved"
	MetricItemsReviewed = "items_reviewed"
	MetricLongestStreak = "longest_streak"
	MetricDistinctTags  = "distinct_tags"
	MetricFavorites     = "favorites"
	MetricLevel         = "level"
)

//go:embed rules.yaml
var defaultRules []byte

type BadgeDef struct {
	Key         string `yaml:"key" json:"key"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Metric      string `yaml:"metric" json:"metric"`
	Threshold   int    `yaml:"threshold" json:"threshold"`
	XPBonus     int    `yaml:"xp_bonus" json:"xp_bonus"`
}

type Rules struct {
	XP                  map[string]int `yaml:"xp"`
	SessionIdleMinutes  int            `yaml:"session_idle_minutes"`
	ReviewIntervalsDays []int          `yaml:"review_intervals_days"`
	Badges              []BadgeDef     `yaml:"badges"`
}

func Parse(raw []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("parse gamification rules: %w", err)
	}
	if r.SessionIdleMinutes <= 0 {
		r.SessionIdleMinutes = 30
	}
	if len(r.ReviewIntervalsDays) == 0 {
		r.ReviewIntervalsDays = []int{1, 3, 7, 14, 30, 60}
	}
	seen := map[string]bool{}
	for _, b := range r.Badges {
		if b.Key == "" || b.Threshold <= 0 {
			return nil, fmt.Errorf("badge %q: key and positive threshold required", b.Key)
		}
		if seen[b.Key] {
			return nil, fmt.Errorf("duplicate badge %q", b.Key)
		}
		seen[b.Key] = true
	}
	return &r, nil
}

// Default returns the embedded table.
func Default() *Rules {
	r, err := Parse(defaultRules)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Rules) XPFor(reason string) int { return r.XP[reason] }

func (r *Rules) Badge(key string) (BadgeDef, bool) {
	for _, b := range r.Badges {
		if b.Key == key {
			return b, true
		}
	}
	return BadgeDef{}, false
}

// LevelForXP is floor(sqrt(xp/100)) + 1.
func LevelForXP(xp int) int {
	if xp <= 0 {
		return 1
	}
	return int(math.Floor(math.Sqrt(float64(xp)/100))) + 1
}

// XPForLevel is the minimum XP of level.
func XPForLevel(level int) int {
	if level <= 1 {
		return 0
	}
	n := level - 1
	return n * n * 100
}

type Stats struct {
	ItemsSaved    int
	ItemsReviewed int
	LongestStreak int
	DistinctTags  int
	Favorites     int
	Level         int
}

func (s Stats) Metric(name string) int {
	switch name {
	case MetricItemsSaved:
		return s.ItemsSaved
	case MetricItemsReviewed:
		return s.ItemsReviewed
	case MetricLongestStreak:
		return s.LongestStreak
	case MetricDistinctTags:
		return s.DistinctTags
	case MetricFavorites:
		return s.Favorites
	case MetricLevel:
		return s.Level
	}
	return 0
}

// EvaluateBadges returns badges whose metric reached the threshold and that
// are not in owned, ordered by key.
func (r *Rules) EvaluateBadges(stats Stats, owned map[string]bool) []BadgeDef {
	out := []BadgeDef{}
	for _, b := range r.Badges {
		if owned[b.Key] {
			continue
		}
		if stats.Metric(b.Metric) >= b.Threshold {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// NextReviewAt schedules the review after reviewCount completed reviews.
// Counts past the table reuse the last interval.
func (r *Rules) NextReviewAt(reviewCount int, now time.Time) time.Time {
	iv := r.ReviewIntervalsDays
	i := reviewCount - 1
	if i < 0 {
		i = 0
	}
	if i >= len(iv) {
		i = len(iv) - 1
	}
	return now.Add(time.Duration(iv[i]) * 24 * time.Hour)
}
