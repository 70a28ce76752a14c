// Package timeutil implements the core time primitives:
// a signed high-precision Instant, a signed Length forming a ring with it,
// a half-open Range, and exact wall-clock conversion that is explicit about
// DST gaps and overlaps instead of silently picking one side.
package timeutil

import (
	"errors"
	"time"
)

// Instant is a signed count of nanoseconds since the Unix epoch (UTC).
// Arithmetic with Length is exact: Instant - Instant = Length and
// Instant + Length = Instant.
type Instant int64

// Length is a signed count of nanoseconds.
type Length int64

// Common length units, mirroring the unit registry's base names.
const (
	Nanosecond  Length = 1
	Microsecond        = 1000 * Nanosecond
	Millisecond        = 1000 * Microsecond
	Second             = 1000 * Millisecond
	Minute             = 60 * Second
	Hour               = 60 * Minute
	Day                = 24 * Hour
)

// Now returns the current Instant, bound to wall-clock UTC.
func Now() Instant {
	return FromTime(time.Now())
}

// FromTime converts a time.Time to an Instant, discarding monotonic reading.
func FromTime(t time.Time) Instant {
	return Instant(t.UnixNano())
}

// Time returns the UTC time.Time corresponding to i.
func (i Instant) Time() time.Time {
	return time.Unix(0, int64(i)).UTC()
}

// Add returns i + d.
func (i Instant) Add(d Length) Instant {
	return i + Instant(d)
}

// Sub returns i - other as a Length.
func (i Instant) Sub(other Instant) Length {
	return Length(i - other)
}

// Before reports whether i occurs strictly before other.
func (i Instant) Before(other Instant) bool { return i < other }

// After reports whether i occurs strictly after other.
func (i Instant) After(other Instant) bool { return i > other }

// Equal reports whether i and other denote the same instant.
func (i Instant) Equal(other Instant) bool { return i == other }

// String renders i in RFC3339Nano, UTC.
func (i Instant) String() string {
	return i.Time().Format(time.RFC3339Nano)
}

// Seconds returns d as a floating-point number of seconds.
func (d Length) Seconds() float64 {
	return float64(d) / float64(Second)
}

// Duration converts d to a time.Duration (same underlying unit: nanoseconds).
func (d Length) Duration() time.Duration {
	return time.Duration(d)
}

// FromDuration converts a time.Duration to a Length.
func FromDuration(d time.Duration) Length {
	return Length(d)
}

// ErrAmbiguous is returned by FromWallClock when a local time falls in a
// fall-back overlap and no disambiguation policy was supplied.
var ErrAmbiguous = errors.New("timeutil: ambiguous wall-clock time")

// ErrInvalidWallClock is returned when the supplied wall-clock fields do not
// form a valid calendar date/time independent of any DST considerations.
var ErrInvalidWallClock = errors.New("timeutil: invalid wall-clock fields")
