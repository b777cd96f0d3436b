package schedule

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Kind enumerates the supported schedule shapes.
type Kind int

const (
	Off Kind = iota
	Daily
	Interval
	Weekdays
)

func (k Kind) String() string {
	switch k {
	case Daily:
		return "daily"
	case Interval:
		return "interval"
	case Weekdays:
		return "weekdays"
	default:
		return "off"
	}
}

// Weekday indices follow the on-disk format: Mon=0 .. Sun=6.
var dayIndex = map[string]int{
	"mon": 0, "tue": 1, "wed": 2, "thu": 3, "fri": 4, "sat": 5, "sun": 6,
}

var dayNames = [7]string{"MON", "TUE", "WED", "THU", "FRI", "SAT", "SUN"}

// Entry is a parsed schedule for one script key.
//
// Daily and Weekdays carry Hour/Minute; Interval carries Every. An Off entry
// carries nothing and is never stored by the Scheduler.
type Entry struct {
	Kind   Kind
	Hour   int
	Minute int
	Every  time.Duration
	Days   []int // sorted ascending, Mon=0 .. Sun=6
}

// Parse turns a raw schedule string into an Entry. It never fails: any
// malformed input yields an Off entry. Recognized forms, case-insensitive:
//
//	off
//	daily|HH:MM
//	interval|<N>[m|h]         (bare N means minutes)
//	weekdays|HH:MM|mon,wed,...
//
// Hour/minute values are intentionally not range-checked; an out-of-range
// time simply never matches the clock, which disables the trigger. Existing
// persisted schedules rely on this, so it stays.
func Parse(raw string) Entry {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "off") {
		return Entry{}
	}
	parts := strings.Split(raw, "|")
	switch strings.ToLower(strings.TrimSpace(parts[0])) {
	case "daily":
		if len(parts) >= 2 {
			if h, m, ok := parseClock(parts[1]); ok {
				return Entry{Kind: Daily, Hour: h, Minute: m}
			}
		}
	case "interval":
		if len(parts) >= 2 {
			if d, ok := parseEvery(parts[1]); ok {
				return Entry{Kind: Interval, Every: d}
			}
		}
	case "weekdays":
		if len(parts) >= 3 {
			h, m, ok := parseClock(parts[1])
			days := parseDays(parts[2])
			if ok && len(days) > 0 {
				return Entry{Kind: Weekdays, Hour: h, Minute: m, Days: days}
			}
		}
	}
	return Entry{}
}

// parseClock parses "HH:MM" into hour and minute.
func parseClock(s string) (int, int, bool) {
	h, m, found := strings.Cut(strings.TrimSpace(s), ":")
	if !found {
		return 0, 0, false
	}
	hour, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil {
		return 0, 0, false
	}
	minute, err := strconv.Atoi(strings.TrimSpace(m))
	if err != nil {
		return 0, 0, false
	}
	return hour, minute, true
}

// parseEvery parses "30m", "2h" or a bare number of minutes.
func parseEvery(s string) (time.Duration, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	unit := time.Minute
	switch {
	case strings.HasSuffix(s, "h"):
		unit = time.Hour
		s = strings.TrimSuffix(s, "h")
	case strings.HasSuffix(s, "m"):
		s = strings.TrimSuffix(s, "m")
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, false
	}
	return time.Duration(n) * unit, true
}

// parseDays parses "mon,wed,fri" into sorted unique day indices. Unknown
// tokens are dropped.
func parseDays(s string) []int {
	seen := make(map[int]bool)
	for _, tok := range strings.Split(strings.ToLower(s), ",") {
		if idx, ok := dayIndex[strings.TrimSpace(tok)]; ok {
			seen[idx] = true
		}
	}
	days := make([]int, 0, len(seen))
	for idx := range seen {
		days = append(days, idx)
	}
	sort.Ints(days)
	return days
}

// String renders a short human-readable summary for display.
func (e Entry) String() string {
	switch e.Kind {
	case Daily:
		return fmt.Sprintf("Daily %02d:%02d", e.Hour, e.Minute)
	case Interval:
		return "Every " + formatEvery(e.Every)
	case Weekdays:
		names := make([]string, 0, len(e.Days))
		for _, d := range e.Days {
			if d >= 0 && d < len(dayNames) {
				names = append(names, dayNames[d])
			}
		}
		return fmt.Sprintf("%s %02d:%02d", strings.Join(names, ","), e.Hour, e.Minute)
	default:
		return "Off"
	}
}

func formatEvery(d time.Duration) string {
	if d >= time.Hour && d%time.Hour == 0 {
		return fmt.Sprintf("%dh", int(d/time.Hour))
	}
	return fmt.Sprintf("%dm", int(d/time.Minute))
}

// weekdayIndex maps Go's Sunday-based weekday onto the Mon=0 convention.
func weekdayIndex(w time.Weekday) int {
	return (int(w) + 6) % 7
}

// due reports whether the entry should fire at now given the last firing
// time. The zero lastFired means the entry has never fired.
//
// Daily and Weekdays match a single exact minute; if no poll lands inside
// that minute (system sleep, oversized poll interval) the trigger is skipped
// for the day. Interval firing is delayed by up to one poll interval past the
// nominal due time. Both are accepted coarseness, not bugs to fix here.
func (e Entry) due(now, lastFired time.Time) bool {
	switch e.Kind {
	case Daily:
		return clockMatches(e.Hour, e.Minute, now, lastFired)
	case Interval:
		if lastFired.IsZero() {
			return true
		}
		return now.Sub(lastFired) >= e.Every
	case Weekdays:
		today := weekdayIndex(now.Weekday())
		for _, d := range e.Days {
			if d == today {
				return clockMatches(e.Hour, e.Minute, now, lastFired)
			}
		}
		return false
	default:
		return false
	}
}

// clockMatches is true when now falls in the target minute and the entry has
// not already fired during that same calendar minute.
func clockMatches(hour, minute int, now, lastFired time.Time) bool {
	if now.Hour() != hour || now.Minute() != minute {
		return false
	}
	if lastFired.IsZero() {
		return true
	}
	return !lastFired.Truncate(time.Minute).Equal(now.Truncate(time.Minute))
}
