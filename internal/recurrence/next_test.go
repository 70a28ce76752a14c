package recurrence

import (
	"errors"
	"testing"
	"time"

	"utms/internal/timeutil"
	"utms/internal/utmserrors"
)

func loc(t *testing.T) *time.Location {
	t.Helper()
	l, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	return l
}

func instantAt(t *testing.T, tz *time.Location, y int, m time.Month, d, h, min, sec int) timeutil.Instant {
	t.Helper()
	inst, _, err := timeutil.FromWallClock(timeutil.WallClock{
		Year: y, Month: m, Day: d, Hour: h, Minute: min, Second: sec, Location: tz,
	}, timeutil.Unspecified)
	if err != nil {
		t.Fatalf("FromWallClock: %v", err)
	}
	return inst
}

func wantWallClock(t *testing.T, tz *time.Location, inst timeutil.Instant, y int, m time.Month, d, h, min, sec int) {
	t.Helper()
	wc, _ := timeutil.ToWallClock(inst, tz)
	if wc.Year != y || wc.Month != m || wc.Day != d || wc.Hour != h || wc.Minute != min || wc.Second != sec {
		t.Fatalf("got %04d-%02d-%02d %02d:%02d:%02d, want %04d-%02d-%02d %02d:%02d:%02d",
			wc.Year, wc.Month, wc.Day, wc.Hour, wc.Minute, wc.Second, y, m, d, h, min, sec)
	}
}

func TestNextOccurrenceTopOfTheHourAnchor(t *testing.T) {
	tz := loc(t)
	p := Pattern{AtTimes: []AtTime{{Wildcard: true, Minute: 0}}}
	from := instantAt(t, tz, 2025, time.August, 20, 9, 15, 0)
	next, err := NextOccurrence(p, from, tz)
	if err != nil {
		t.Fatalf("NextOccurrence: %v", err)
	}
	wantWallClock(t, tz, next, 2025, time.August, 20, 10, 0, 0)
}

func TestNextOccurrenceHourlyAtSpecificMinute(t *testing.T) {
	tz := loc(t)
	p := Pattern{AtTimes: []AtTime{{Wildcard: true, Minute: 25}}}
	from := instantAt(t, tz, 2025, time.August, 20, 10, 30, 0)
	next, err := NextOccurrence(p, from, tz)
	if err != nil {
		t.Fatalf("NextOccurrence: %v", err)
	}
	wantWallClock(t, tz, next, 2025, time.August, 20, 11, 25, 0)
}

func TestNextOccurrenceDailyWindowSkipsWeekend(t *testing.T) {
	tz := loc(t)
	p := Pattern{
		Interval:   timeutil.Day,
		OnWeekdays: []int{1, 2, 3, 4, 5},
		Between:    &Window{Start: timeutil.TimeOfDay{Hour: 12}, End: timeutil.TimeOfDay{Hour: 13}},
	}
	from := instantAt(t, tz, 2025, time.August, 22, 12, 30, 0) // Friday
	next, err := NextOccurrence(p, from, tz)
	if err != nil {
		t.Fatalf("NextOccurrence: %v", err)
	}
	// A day-scale interval with a between window snaps to the window's
	// start each day, so Friday's 12:30 origin doesn't carry forward: the
	// next candidate is Saturday 12:00 (wrong weekday), then Sunday 12:00
	// (wrong weekday), landing on Monday at the window's opening minute.
	wantWallClock(t, tz, next, 2025, time.August, 25, 12, 0, 0)
}

func TestNextOccurrenceSkipsExceptWindow(t *testing.T) {
	tz := loc(t)
	p := Pattern{
		Interval:      30 * timeutil.Minute,
		Between:       &Window{Start: timeutil.TimeOfDay{Hour: 9}, End: timeutil.TimeOfDay{Hour: 17}},
		ExceptBetween: &Window{Start: timeutil.TimeOfDay{Hour: 12}, End: timeutil.TimeOfDay{Hour: 13}},
	}
	from := instantAt(t, tz, 2025, time.August, 20, 11, 45, 0)
	next, err := NextOccurrence(p, from, tz)
	if err != nil {
		t.Fatalf("NextOccurrence: %v", err)
	}
	// The stride grid is anchored to the window's start (09:00) rather than
	// to the 11:45 origin, so candidates land on 12:00 and 12:30 (both
	// excluded by the lunch break) before the first one that clears it: 13:00.
	wantWallClock(t, tz, next, 2025, time.August, 20, 13, 0, 0)
}

func TestNextOccurrenceDSTSpringForwardSkipsGap(t *testing.T) {
	tz := loc(t)
	p := Pattern{Interval: timeutil.Hour}
	from := instantAt(t, tz, 2025, time.March, 9, 1, 30, 0)
	next, err := NextOccurrence(p, from, tz)
	if err != nil {
		t.Fatalf("NextOccurrence: %v", err)
	}
	wantWallClock(t, tz, next, 2025, time.March, 9, 3, 30, 0)
}

func TestNextOccurrenceDSTFallBackLandsOnSecondInstant(t *testing.T) {
	tz := loc(t)
	p := Pattern{Interval: timeutil.Hour}
	from, _, err := timeutil.FromWallClock(timeutil.WallClock{
		Year: 2025, Month: time.November, Day: 2, Hour: 1, Minute: 30, Location: tz,
	}, timeutil.Earlier)
	if err != nil {
		t.Fatalf("FromWallClock: %v", err)
	}
	next, err := NextOccurrence(p, from, tz)
	if err != nil {
		t.Fatalf("NextOccurrence: %v", err)
	}
	if next.Sub(from) != timeutil.Hour {
		t.Fatalf("expected exactly one physical hour later, got %v", next.Sub(from).Duration())
	}
	wantWallClock(t, tz, next, 2025, time.November, 2, 1, 30, 0)
}

func TestNextOccurrenceNeverReturnsStartInstant(t *testing.T) {
	tz := loc(t)
	p := Pattern{AtTimes: []AtTime{{Time: timeutil.TimeOfDay{Hour: 10}}}}
	from := instantAt(t, tz, 2025, time.August, 20, 10, 0, 0)
	next, err := NextOccurrence(p, from, tz)
	if err != nil {
		t.Fatalf("NextOccurrence: %v", err)
	}
	if !next.After(from) {
		t.Fatalf("expected next occurrence strictly after from, got %v", next)
	}
	wantWallClock(t, tz, next, 2025, time.August, 21, 10, 0, 0)
}

func TestNextOccurrenceInfeasibleWithinHorizonErrors(t *testing.T) {
	tz := loc(t)
	p := Pattern{
		Label:      "impossible",
		Interval:   timeutil.Day,
		OnWeekdays: []int{1},
		Between:    &Window{Start: timeutil.TimeOfDay{Hour: 9}, End: timeutil.TimeOfDay{Hour: 10}},
	}
	// Starting just after the window on a Monday; the next valid Monday
	// window is always reachable within 400 days for this pattern, so
	// force infeasibility with a same-day except-window covering the
	// entire between window instead.
	p.ExceptBetween = &Window{Start: timeutil.TimeOfDay{Hour: 9}, End: timeutil.TimeOfDay{Hour: 10}}
	from := instantAt(t, tz, 2025, time.August, 18, 9, 30, 0) // Monday
	_, err := NextOccurrence(p, from, tz)
	if !errors.Is(err, utmserrors.ErrNoOccurrence) {
		t.Fatalf("expected ErrNoOccurrence, got %v", err)
	}
}
