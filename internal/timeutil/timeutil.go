package timeutil

import "time"

// Interval is a half-open time span [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether two half-open intervals intersect:
// a overlaps b iff a.Start < b.End && b.Start < a.End.
func (a Interval) Overlaps(b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// Empty reports whether the interval has no positive extent.
func (a Interval) Empty() bool {
	return !a.End.After(a.Start)
}

func AddMinutes(t time.Time, m int) time.Time {
	return t.Add(time.Duration(m) * time.Minute)
}

// CeilToGrid rounds t up to the next step boundary (15-minute steps land on
// :00/:15/:30/:45). A t already on the grid is returned unchanged.
func CeilToGrid(t time.Time, step time.Duration) time.Time {
	if step <= 0 {
		return t
	}
	rounded := t.Truncate(step)
	if rounded.Equal(t) {
		return t
	}
	return rounded.Add(step)
}

func MaxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

// ParseRFC3339 parses an RFC 3339 timestamp, the wire format of every time
// field this service accepts.
func ParseRFC3339(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
