package streak

import (
	"time"

	"veriHabitAPI/internal/types/habit"
)

// State is the slice of a habit the evaluator reads. Callers persist the
// Result; the evaluator itself never touches storage.
type State struct {
	Type            habit.Type
	Frequency       habit.Frequency
	CurrentStreak   int
	CompletedDates  []time.Time
	LastStreakCheck *time.Time
}

type Result struct {
	Streak    int
	Reset     bool
	CheckedAt *time.Time
	// Changed reports whether the caller has anything to persist.
	Changed bool
}

// Evaluate lazily expires a habit's streak against wall-clock time in the
// user's timezone. It runs at most once per local calendar day: a repeat call
// on the same local day as LastStreakCheck is a no-op. There is no background
// scheduler; correctness relies on every read path routing through here.
func Evaluate(s State, loc *time.Location, now time.Time) Result {
	unchanged := Result{Streak: s.CurrentStreak, CheckedAt: s.LastStreakCheck}

	if s.LastStreakCheck != nil && DaysBetween(*s.LastStreakCheck, now, loc) == 0 {
		return unchanged
	}

	// Nothing to expire. The check stamp is deliberately not advanced here:
	// the once-per-day guarantee only applies when there was state to check.
	if s.CurrentStreak == 0 || s.Type == habit.TypeOneTime {
		return unchanged
	}

	if len(s.CompletedDates) == 0 {
		return unchanged
	}

	last := s.CompletedDates[len(s.CompletedDates)-1]
	days := DaysBetween(last, now, loc)

	reset := false
	switch s.Frequency {
	case habit.FrequencyDaily:
		// Same-day and "yesterday" keep the chain alive.
		reset = days > 1
	case habit.FrequencyWeekly:
		reset = days > 7
	}

	streak := s.CurrentStreak
	if reset {
		streak = 0
	}

	checked := now
	return Result{Streak: streak, Reset: reset, CheckedAt: &checked, Changed: true}
}

// DaysBetween returns the calendar-day distance from one instant to another,
// where "day" means a calendar date in loc. Anchoring the local dates at UTC
// midnight keeps DST transitions from skewing the division.
func DaysBetween(from, to time.Time, loc *time.Location) int {
	f := from.In(loc)
	t := to.In(loc)
	fd := time.Date(f.Year(), f.Month(), f.Day(), 0, 0, 0, 0, time.UTC)
	td := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return int(td.Sub(fd).Hours() / 24)
}

// LocalDayBounds returns the absolute-time window covering the local calendar
// day containing now. Quota counting uses this so the "day" always matches
// the user's clock.
func LocalDayBounds(now time.Time, loc *time.Location) (time.Time, time.Time) {
	n := now.In(loc)
	start := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}
