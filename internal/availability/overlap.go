package availability

import "time"

// Interval is a half-open UTC range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps uses the strict comparator a.Start < b.End && a.End > b.Start,
// so back-to-back intervals do not collide.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && a.End.After(b.Start)
}

func OverlapsAny(req Interval, others []Interval) bool {
	for _, o := range others {
		if Overlaps(req, o) {
			return true
		}
	}
	return false
}
