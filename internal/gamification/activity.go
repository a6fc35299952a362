package gamification

import (
	"time"
	// Zone data for hosts without /usr/share/zoneinfo.
	_ "time/tzdata"
)

type ActivityState struct {
	CurrentStreak int
	LongestStreak int
	LastActiveAt  *time.Time
	LastSessionAt *time.Time
}

type ActivityChange struct {
	CurrentStreak int
	LongestStreak int
	// NewDay is true the first time the user is active on a local calendar day.
	NewDay bool
	// Day is the local calendar day of now, YYYY-MM-DD.
	Day        string
	NewSession bool
	SessionAt  time.Time
	ActiveAt   time.Time
}

// LoadLocation falls back to UTC for unknown or empty zone names.
func LoadLocation(tz string) *time.Location {
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

// TouchActivity applies one unit of activity at now. Streak days are counted
// on the user's local calendar: same day keeps the streak, the next day
// extends it, any gap resets it to 1.
func (r *Rules) TouchActivity(st ActivityState, now time.Time, tz string) ActivityChange {
	loc := LoadLocation(tz)
	local := now.In(loc)
	ch := ActivityChange{
		CurrentStreak: st.CurrentStreak,
		LongestStreak: st.LongestStreak,
		Day:           local.Format("2006-01-02"),
		ActiveAt:      now,
	}

	if st.LastActiveAt == nil {
		ch.CurrentStreak = 1
		ch.NewDay = true
	} else {
		gap := daysBetween(st.LastActiveAt.In(loc), local)
		switch {
		case gap <= 0:
			if ch.CurrentStreak < 1 {
				ch.CurrentStreak = 1
			}
		case gap == 1:
			ch.CurrentStreak++
			ch.NewDay = true
		default:
			ch.CurrentStreak = 1
			ch.NewDay = true
		}
	}
	if ch.CurrentStreak > ch.LongestStreak {
		ch.LongestStreak = ch.CurrentStreak
	}

	idle := time.Duration(r.SessionIdleMinutes) * time.Minute
	if st.LastActiveAt == nil || now.Sub(*st.LastActiveAt) > idle {
		ch.NewSession = true
		ch.SessionAt = now
	} else if st.LastSessionAt != nil {
		ch.SessionAt = *st.LastSessionAt
	} else {
		ch.SessionAt = *st.LastActiveAt
	}
	return ch
}

// daysBetween counts calendar days from a to b, both already in the same location.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}
