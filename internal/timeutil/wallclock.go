package timeutil

import "time"

// Disambiguation tags how a wall-clock/instant conversion relates to a DST
// transition.
type Disambiguation int

const (
	// Normal means the wall-clock exists and is unambiguous.
	Normal Disambiguation = iota
	// SpringGap means the requested wall-clock falls in a skipped hour
	// (spring-forward); the returned instant has been advanced past it.
	SpringGap
	// FallOverlap means the requested wall-clock occurs twice (fall-back);
	// DisambiguatePolicy selected which of the two instants was returned.
	FallOverlap
)

// DisambiguatePolicy picks a side when a wall-clock is ambiguous.
type DisambiguatePolicy int

const (
	// Unspecified requires the wall-clock to be unambiguous; FromWallClock
	// returns ErrAmbiguous otherwise.
	Unspecified DisambiguatePolicy = iota
	// Earlier selects the first (pre-transition) of two ambiguous instants.
	Earlier
	// Later selects the second (post-transition) of two ambiguous instants.
	Later
)

// WallClock is a calendar date/time in a given Location, independent of
// whether it denotes zero, one, or two real instants.
type WallClock struct {
	Year       int
	Month      time.Month
	Day        int
	Hour       int
	Minute     int
	Second     int
	Nanosecond int
	Location   *time.Location
}

// Weekday returns the day of week this wall-clock falls on, computed purely
// from the calendar fields (no DST considerations apply to weekday).
func (w WallClock) Weekday() time.Weekday {
	return time.Date(w.Year, w.Month, w.Day, w.Hour, w.Minute, w.Second, w.Nanosecond, w.Location).Weekday()
}

// TimeOfDay returns the hour/minute/second portion of w.
func (w WallClock) TimeOfDay() TimeOfDay {
	return TimeOfDay{Hour: w.Hour, Minute: w.Minute, Second: w.Second}
}

// AddDate returns w with its calendar date shifted by the given number of
// years/months/days, fields otherwise unchanged (normalization of overflow
// follows time.Date's calendar rules).
func (w WallClock) AddDate(years, months, days int) WallClock {
	t := time.Date(w.Year, w.Month, w.Day+days, w.Hour, w.Minute, w.Second, w.Nanosecond, time.UTC)
	t = t.AddDate(years, months, 0)
	return WallClock{
		Year: t.Year(), Month: t.Month(), Day: t.Day(),
		Hour: w.Hour, Minute: w.Minute, Second: w.Second, Nanosecond: w.Nanosecond,
		Location: w.Location,
	}
}

// WithTimeOfDay returns a copy of w with a different time-of-day.
func (w WallClock) WithTimeOfDay(t TimeOfDay) WallClock {
	w.Hour, w.Minute, w.Second = t.Hour, t.Minute, t.Second
	return w
}

func wallMatches(t time.Time, w WallClock) bool {
	return t.Year() == w.Year && t.Month() == w.Month && t.Day() == w.Day &&
		t.Hour() == w.Hour && t.Minute() == w.Minute && t.Second() == w.Second
}

// ToWallClock converts i to its wall-clock representation in tz, along with
// a Disambiguation tag: FallOverlap when that wall-clock is also reachable
// from the other side of a DST transition, Normal otherwise. Every instant
// has exactly one wall-clock, so ToWallClock never returns SpringGap.
func ToWallClock(i Instant, tz *time.Location) (WallClock, Disambiguation) {
	t := i.Time().In(tz)
	wc := WallClock{
		Year: t.Year(), Month: t.Month(), Day: t.Day(),
		Hour: t.Hour(), Minute: t.Minute(), Second: t.Second(), Nanosecond: t.Nanosecond(),
		Location: tz,
	}

	offBefore, offAfter := zoneOffsetsNear(tz, t)
	if offBefore == offAfter {
		return wc, Normal
	}

	// A transition sits within the 3-hour sampling window. Check whether the
	// *other* offset also reproduces this exact wall-clock: if so the
	// wall-clock is a fall-back overlap and i is one of its two instants.
	_, curOff := t.Zone()
	other := offBefore
	if curOff == offBefore {
		other = offAfter
	}
	alt := time.Date(wc.Year, wc.Month, wc.Day, wc.Hour, wc.Minute, wc.Second, wc.Nanosecond, time.FixedZone("", other))
	if wallMatches(alt.In(tz), wc) && !alt.Equal(t) {
		return wc, FallOverlap
	}
	return wc, Normal
}

// FromWallClock converts a wall-clock back to an Instant.
//
//   - If w denotes exactly one instant, that instant is returned with Normal.
//   - If w falls in a spring-forward gap (no instant has that wall-clock),
//     the instant is advanced past the gap, as the recurrence engine
//     requires, and SpringGap is returned with no error.
//   - If w is ambiguous (fall-back overlap), policy selects which of the two
//     instants to return; Unspecified yields ErrAmbiguous.
func FromWallClock(w WallClock, policy DisambiguatePolicy) (Instant, Disambiguation, error) {
	if w.Location == nil {
		w.Location = time.UTC
	}
	approx := time.Date(w.Year, w.Month, w.Day, w.Hour, w.Minute, w.Second, w.Nanosecond, w.Location)

	if !wallMatches(approx, w) {
		// The nominal wall-clock does not exist. Depending on the zone,
		// time.Date resolves it with the offset from either side of the gap;
		// when the result lands before the gap, move it forward by the gap's
		// width so the returned instant is always past the gap.
		offBefore, offAfter := zoneOffsetsNear(w.Location, approx)
		nominal := time.Date(w.Year, w.Month, w.Day, w.Hour, w.Minute, w.Second, w.Nanosecond, time.UTC)
		resolved := time.Date(approx.Year(), approx.Month(), approx.Day(), approx.Hour(), approx.Minute(), approx.Second(), approx.Nanosecond(), time.UTC)
		if resolved.Before(nominal) && offAfter > offBefore {
			approx = approx.Add(time.Duration(offAfter-offBefore) * time.Second)
		}
		return FromTime(approx), SpringGap, nil
	}

	offBefore, offAfter := zoneOffsetsNear(w.Location, approx)
	if offBefore == offAfter {
		return FromTime(approx), Normal, nil
	}

	_, curOff := approx.Zone()
	other := offBefore
	if curOff == offBefore {
		other = offAfter
	}
	alt := time.Date(w.Year, w.Month, w.Day, w.Hour, w.Minute, w.Second, w.Nanosecond, time.FixedZone("", other)).In(w.Location)
	if !wallMatches(alt, w) || alt.Equal(approx) {
		return FromTime(approx), Normal, nil
	}

	// Genuinely ambiguous: approx and alt are two distinct real instants
	// that both render as w.
	earlier, later := approx, alt
	if later.Before(earlier) {
		earlier, later = later, earlier
	}
	switch policy {
	case Earlier:
		return FromTime(earlier), FallOverlap, nil
	case Later:
		return FromTime(later), FallOverlap, nil
	default:
		return 0, FallOverlap, ErrAmbiguous
	}
}

// zoneOffsetsNear samples the zone offset three hours before and after t to
// detect whether a DST transition sits near t. DST transitions are single,
// contiguous jumps, so a 3-hour window always straddles at most one of them.
func zoneOffsetsNear(loc *time.Location, t time.Time) (before, after int) {
	_, before = t.Add(-3 * time.Hour).Zone()
	_, after = t.Add(3 * time.Hour).Zone()
	return
}
