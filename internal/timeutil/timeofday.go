package timeutil

import "fmt"

// TimeOfDay is an hour/minute/second triple with no associated date.
type TimeOfDay struct {
	Hour, Minute, Second int
}

// Compare returns -1, 0, or 1 as t is before, equal to, or after other.
func (t TimeOfDay) Compare(other TimeOfDay) int {
	a := t.Hour*3600 + t.Minute*60 + t.Second
	b := other.Hour*3600 + other.Minute*60 + other.Second
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Before reports whether t sorts strictly before other.
func (t TimeOfDay) Before(other TimeOfDay) bool { return t.Compare(other) < 0 }

// InWindow reports whether t lies within the inclusive-start,
// exclusive-end window [start, end), wrapping past midnight when
// start > end.
func (t TimeOfDay) InWindow(start, end TimeOfDay) bool {
	if start.Compare(end) <= 0 {
		return !t.Before(start) && t.Before(end)
	}
	// wraps midnight
	return !t.Before(start) || t.Before(end)
}

// String renders t as HH:MM:SS.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// ParseTimeOfDay parses "HH:MM" or "HH:MM:SS".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var h, m, sec int
	if n, _ := fmt.Sscanf(s, "%d:%d:%d", &h, &m, &sec); n < 3 {
		sec = 0
		if n2, _ := fmt.Sscanf(s, "%d:%d", &h, &m); n2 < 2 {
			return TimeOfDay{}, fmt.Errorf("timeutil: invalid time-of-day %q", s)
		}
	}
	if h < 0 || h > 23 || m < 0 || m > 59 || sec < 0 || sec > 59 {
		return TimeOfDay{}, fmt.Errorf("timeutil: time-of-day out of range %q", s)
	}
	return TimeOfDay{Hour: h, Minute: m, Second: sec}, nil
}
