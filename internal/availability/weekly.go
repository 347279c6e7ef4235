package availability

// WeeklySlot is a recurring local-time window, minutes of day in the resource's zone.
type WeeklySlot struct {
	Weekday     int
	StartMinute int
	EndMinute   int
	Enabled     bool
}

// lastMinute is how "all day" slots are usually stored.
const lastMinute = MinutesPerDay - 1

// Covered reports whether a single enabled slot on the segment's weekday contains it.
// Slots are never unioned: a segment straddling two adjacent slots is not covered.
func Covered(seg Segment, slots []WeeklySlot) bool {
	for _, s := range slots {
		if !s.Enabled || s.Weekday != seg.Weekday {
			continue
		}
		end := s.EndMinute
		if end == lastMinute {
			end = MinutesPerDay
		}
		if s.StartMinute <= seg.StartMinute && end >= seg.EndMinute {
			return true
		}
	}
	return false
}

func anyEnabled(slots []WeeklySlot) bool {
	for _, s := range slots {
		if s.Enabled {
			return true
		}
	}
	return false
}
