package timeutil

// Range is a half-open interval [Start, Start+Duration).
type Range struct {
	Start    Instant
	Duration Length
}

// End returns the exclusive end of r.
func (r Range) End() Instant {
	return r.Start.Add(r.Duration)
}

// Contains reports whether i falls within [Start, End).
func (r Range) Contains(i Instant) bool {
	return !i.Before(r.Start) && i.Before(r.End())
}

// Overlaps reports whether r and other share any instant.
func (r Range) Overlaps(other Range) bool {
	return r.Start.Before(other.End()) && other.Start.Before(r.End())
}
