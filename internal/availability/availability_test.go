package availability

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/require"

	apperrors "parkspace/internal/errors"
)

func rome(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Rome")
	require.NoError(t, err)
	return loc
}

func at(loc *time.Location, y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, loc)
}

func baseInputs(loc *time.Location) Inputs {
	return Inputs{Active: true, Location: loc, EnforceSchedule: true}
}

func TestSplitSingleDay(t *testing.T) {
	loc := rome(t)
	segs, err := SplitByLocalDay(at(loc, 2026, 10, 19, 10, 0), at(loc, 2026, 10, 19, 12, 30), loc, 0)
	require.NoError(t, err)
	require.Len(t, segs, 1)
	require.Equal(t, 1, segs[0].Weekday)
	require.Equal(t, 600, segs[0].StartMinute)
	require.Equal(t, 750, segs[0].EndMinute)
}

func TestSplitAcrossMidnight(t *testing.T) {
	loc := rome(t)
	segs, err := SplitByLocalDay(at(loc, 2026, 10, 19, 20, 0), at(loc, 2026, 10, 20, 2, 0), loc, 0)
	require.NoError(t, err)
	require.Len(t, segs, 2)
	require.Equal(t, Segment{Weekday: 1, StartMinute: 1200, EndMinute: MinutesPerDay,
		StartUTC: time.Date(2026, 10, 19, 18, 0, 0, 0, time.UTC),
		EndUTC:   time.Date(2026, 10, 19, 22, 0, 0, 0, time.UTC)}, segs[0])
	require.Equal(t, 2, segs[1].Weekday)
	require.Equal(t, 0, segs[1].StartMinute)
	require.Equal(t, 120, segs[1].EndMinute)
}

func TestSplitEndingOnMidnight(t *testing.T) {
	loc := rome(t)
	segs, err := SplitByLocalDay(at(loc, 2026, 10, 19, 22, 0), at(loc, 2026, 10, 20, 0, 0), loc, 0)
	require.NoError(t, err)
	require.Len(t, segs, 1)
	require.Equal(t, MinutesPerDay, segs[0].EndMinute)
}

func TestSplitSpringForwardDay(t *testing.T) {
	loc := rome(t)
	// 2026-03-29 has 23 hours in Rome.
	segs, err := SplitByLocalDay(at(loc, 2026, 3, 28, 22, 0), at(loc, 2026, 3, 30, 1, 0), loc, 0)
	require.NoError(t, err)
	require.Len(t, segs, 3)
	require.Equal(t, 7, segs[1].Weekday)
	require.Equal(t, 0, segs[1].StartMinute)
	require.Equal(t, MinutesPerDay, segs[1].EndMinute)
	require.Equal(t, 23*time.Hour, segs[1].EndUTC.Sub(segs[1].StartUTC))
	require.Equal(t, 60, segs[2].EndMinute)
}

func TestSplitFallBackDay(t *testing.T) {
	loc := rome(t)
	// 2026-10-25 has 25 hours in Rome.
	segs, err := SplitByLocalDay(at(loc, 2026, 10, 24, 12, 0), at(loc, 2026, 10, 26, 8, 0), loc, 0)
	require.NoError(t, err)
	require.Len(t, segs, 3)
	require.Equal(t, 25*time.Hour, segs[1].EndUTC.Sub(segs[1].StartUTC))
	require.Equal(t, 1, segs[2].Weekday)
}

func TestSplitSegmentsAreContiguous(t *testing.T) {
	loc := rome(t)
	start, end := at(loc, 2026, 3, 27, 7, 15), at(loc, 2026, 4, 2, 19, 45)
	segs, err := SplitByLocalDay(start, end, loc, 0)
	require.NoError(t, err)
	require.True(t, segs[0].StartUTC.Equal(start))
	require.True(t, segs[len(segs)-1].EndUTC.Equal(end))
	for i := 1; i < len(segs); i++ {
		require.True(t, segs[i].StartUTC.Equal(segs[i-1].EndUTC))
	}
}

func TestSplitTooLong(t *testing.T) {
	loc := rome(t)
	_, err := SplitByLocalDay(at(loc, 2026, 1, 1, 0, 0), at(loc, 2027, 3, 1, 0, 0), loc, 0)
	require.ErrorIs(t, err, ErrIntervalTooLong)

	_, err = SplitByLocalDay(at(loc, 2026, 1, 1, 12, 0), at(loc, 2026, 1, 3, 12, 0), loc, 2)
	require.Equal(t, apperrors.CodeIntervalTooLong, apperrors.CodeOf(err))
}

func TestSplitRejectsEmpty(t *testing.T) {
	loc := rome(t)
	now := at(loc, 2026, 1, 1, 0, 0)
	_, err := SplitByLocalDay(now, now, loc, 0)
	require.ErrorIs(t, err, ErrEmptyInterval)
}

func TestCoveredSingleSlotOnly(t *testing.T) {
	slots := []WeeklySlot{
		{Weekday: 1, StartMinute: 540, EndMinute: 720, Enabled: true},
		{Weekday: 1, StartMinute: 720, EndMinute: 1020, Enabled: true},
	}
	require.True(t, Covered(Segment{Weekday: 1, StartMinute: 600, EndMinute: 700}, slots))
	require.False(t, Covered(Segment{Weekday: 1, StartMinute: 660, EndMinute: 780}, slots))
	require.False(t, Covered(Segment{Weekday: 2, StartMinute: 600, EndMinute: 700}, slots))
}

func TestCoveredTreatsLastMinuteAsEndOfDay(t *testing.T) {
	slots := []WeeklySlot{{Weekday: 3, StartMinute: 0, EndMinute: 1439, Enabled: true}}
	require.True(t, Covered(Segment{Weekday: 3, StartMinute: 1200, EndMinute: MinutesPerDay}, slots))
}

func TestCoveredIgnoresDisabled(t *testing.T) {
	slots := []WeeklySlot{{Weekday: 1, StartMinute: 0, EndMinute: 1439, Enabled: false}}
	require.False(t, Covered(Segment{Weekday: 1, StartMinute: 10, EndMinute: 20}, slots))
}

func TestOverlapsIsStrict(t *testing.T) {
	t0 := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	a := Interval{Start: t0, End: t0.Add(time.Hour)}
	require.False(t, Overlaps(a, Interval{Start: t0.Add(time.Hour), End: t0.Add(2 * time.Hour)}))
	require.False(t, Overlaps(a, Interval{Start: t0.Add(-time.Hour), End: t0}))
	require.True(t, Overlaps(a, Interval{Start: t0.Add(59 * time.Minute), End: t0.Add(2 * time.Hour)}))
	require.True(t, Overlaps(a, Interval{Start: t0.Add(-time.Hour), End: t0.Add(3 * time.Hour)}))
}

func TestDecideWithinSchedule(t *testing.T) {
	loc := rome(t)
	in := baseInputs(loc)
	in.Slots = []WeeklySlot{{Weekday: 1, StartMinute: 540, EndMinute: 1020, Enabled: true}}

	d, err := Decide(Interval{at(loc, 2026, 10, 19, 10, 0), at(loc, 2026, 10, 19, 12, 0)}, in)
	require.NoError(t, err)
	require.True(t, d.Available)
	require.Empty(t, d.Reason)

	d, err = Decide(Interval{at(loc, 2026, 10, 19, 16, 0), at(loc, 2026, 10, 19, 18, 0)}, in)
	require.NoError(t, err)
	require.False(t, d.Available)
	require.Equal(t, apperrors.CodeOutsideAvailability, d.Reason)
}

func TestDecideOvernightWithEndOfDaySlot(t *testing.T) {
	loc := rome(t)
	in := baseInputs(loc)
	in.Slots = []WeeklySlot{
		{Weekday: 1, StartMinute: 1080, EndMinute: 1439, Enabled: true},
		{Weekday: 2, StartMinute: 0, EndMinute: 360, Enabled: true},
	}
	d, err := Decide(Interval{at(loc, 2026, 10, 19, 20, 0), at(loc, 2026, 10, 20, 2, 0)}, in)
	require.NoError(t, err)
	require.True(t, d.Available)

	d, err = Decide(Interval{at(loc, 2026, 10, 19, 20, 0), at(loc, 2026, 10, 20, 7, 0)}, in)
	require.NoError(t, err)
	require.Equal(t, apperrors.CodeOutsideAvailability, d.Reason)
}

func TestDecideScheduleFallback(t *testing.T) {
	loc := rome(t)
	req := Interval{at(loc, 2026, 10, 21, 3, 0), at(loc, 2026, 10, 21, 4, 0)}

	in := baseInputs(loc)
	d, err := Decide(req, in)
	require.NoError(t, err)
	require.True(t, d.Available, "no rows means open")

	in.Slots = []WeeklySlot{{Weekday: 3, StartMinute: 0, EndMinute: 1439, Enabled: false}}
	d, err = Decide(req, in)
	require.NoError(t, err)
	require.Equal(t, apperrors.CodeOutsideAvailability, d.Reason, "all rows disabled means closed")
}

func TestDecideScheduleToggleOff(t *testing.T) {
	loc := rome(t)
	in := baseInputs(loc)
	in.EnforceSchedule = false
	in.Slots = []WeeklySlot{{Weekday: 1, StartMinute: 540, EndMinute: 600, Enabled: true}}
	d, err := Decide(Interval{at(loc, 2026, 10, 22, 20, 0), at(loc, 2026, 10, 22, 21, 0)}, in)
	require.NoError(t, err)
	require.True(t, d.Available)
}

func TestDecideReasonOrder(t *testing.T) {
	loc := rome(t)
	req := Interval{at(loc, 2026, 10, 19, 20, 0), at(loc, 2026, 10, 19, 22, 0)}
	everything := Interval{req.Start.Add(-time.Hour), req.End.Add(time.Hour)}

	in := baseInputs(loc)
	in.Active = false
	in.Blackouts = []Interval{everything}
	in.Slots = []WeeklySlot{{Weekday: 1, StartMinute: 540, EndMinute: 600, Enabled: true}}
	in.Bookings = []Interval{everything}

	d, err := Decide(req, in)
	require.NoError(t, err)
	require.Equal(t, apperrors.CodeResourceInactive, d.Reason)

	in.Active = true
	d, _ = Decide(req, in)
	require.Equal(t, apperrors.CodeBlackout, d.Reason)

	in.Blackouts = nil
	d, _ = Decide(req, in)
	require.Equal(t, apperrors.CodeOutsideAvailability, d.Reason)

	in.Slots = nil
	d, _ = Decide(req, in)
	require.Equal(t, apperrors.CodeBookingOverlap, d.Reason)

	in.Bookings = []Interval{{Start: req.End, End: req.End.Add(time.Hour)}}
	d, _ = Decide(req, in)
	require.True(t, d.Available, "back-to-back bookings do not collide")
}

func TestDecideIsDeterministic(t *testing.T) {
	loc := rome(t)
	in := baseInputs(loc)
	in.Slots = []WeeklySlot{{Weekday: 1, StartMinute: 540, EndMinute: 1020, Enabled: true}}
	req := Interval{at(loc, 2026, 10, 19, 9, 0), at(loc, 2026, 10, 19, 11, 0)}
	first, err := Decide(req, in)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		d, err := Decide(req, in)
		require.NoError(t, err)
		require.Equal(t, first, d)
	}
}

func TestDecideErrors(t *testing.T) {
	loc := rome(t)
	in := baseInputs(loc)
	in.Slots = []WeeklySlot{{Weekday: 1, StartMinute: 0, EndMinute: 1439, Enabled: true}}

	t0 := at(loc, 2026, 10, 19, 9, 0)
	_, err := Decide(Interval{t0, t0}, in)
	require.ErrorIs(t, err, ErrEmptyInterval)

	in.MaxSegments = 3
	long := Interval{t0, t0.Add(10 * 24 * time.Hour)}
	_, err = Decide(long, in)
	require.ErrorIs(t, err, ErrIntervalTooLong)

	in.Slots = nil
	_, err = Decide(long, in)
	require.ErrorIs(t, err, ErrIntervalTooLong, "unconfigured schedule")

	in.EnforceSchedule = false
	_, err = Decide(long, in)
	require.ErrorIs(t, err, ErrIntervalTooLong, "schedule not enforced")

	in.Active = false
	_, err = Decide(long, in)
	require.ErrorIs(t, err, ErrIntervalTooLong, "inactive resource")
}
