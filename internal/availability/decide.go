package availability

import (
	"time"

	apperrors "parkspace/internal/errors"
)

// Inputs is everything the aggregator needs about one resource.
// Bookings must already be limited to active (non-cancelled, non-expired) rows.
type Inputs struct {
	Active    bool
	Location  *time.Location
	Slots     []WeeklySlot
	Blackouts []Interval
	Bookings  []Interval

	// EnforceSchedule disables the weekly-schedule step entirely when false.
	EnforceSchedule bool
	MaxSegments     int
}

type Decision struct {
	Available bool
	Reason    apperrors.Code
}

func allow() Decision { return Decision{Available: true} }

func deny(reason apperrors.Code) Decision { return Decision{Reason: reason} }

// Decide evaluates, in order: inactive resource, blackout, weekly schedule,
// booking overlap. The first failing check wins. Malformed or overlong
// intervals are errors, never denials, whatever the schedule policy.
func Decide(req Interval, in Inputs) (Decision, error) {
	segs, err := SplitByLocalDay(req.Start, req.End, in.Location, in.MaxSegments)
	if err != nil {
		return Decision{}, err
	}
	if !in.Active {
		return deny(apperrors.CodeResourceInactive), nil
	}
	if OverlapsAny(req, in.Blackouts) {
		return deny(apperrors.CodeBlackout), nil
	}
	if in.EnforceSchedule && !scheduleAllows(segs, in.Slots) {
		return deny(apperrors.CodeOutsideAvailability), nil
	}
	if OverlapsAny(req, in.Bookings) {
		return deny(apperrors.CodeBookingOverlap), nil
	}
	return allow(), nil
}

// scheduleAllows applies the weekly policy. No rows means the schedule was
// never configured and the resource is open; rows that are all disabled close it.
func scheduleAllows(segs []Segment, slots []WeeklySlot) bool {
	if len(slots) == 0 {
		return true
	}
	if !anyEnabled(slots) {
		return false
	}
	for _, seg := range segs {
		if !Covered(seg, slots) {
			return false
		}
	}
	return true
}
