package availability

import (
	"time"

	apperrors "parkspace/internal/errors"
)

const (
	MinutesPerDay = 1440

	// DefaultMaxSegments bounds how many local days one request may span.
	DefaultMaxSegments = 366

	// Real zone transitions fall on quarter hours.
	boundaryStep = 15 * time.Minute
)

var (
	ErrEmptyInterval   = apperrors.Validation(apperrors.CodeInvalidInterval, "end must be after start")
	ErrIntervalTooLong = apperrors.Validation(apperrors.CodeIntervalTooLong, "interval spans too many days")
)

// Segment is the part of a UTC interval confined to one local calendar day.
// EndMinute is 1440 when the segment runs up to the following local midnight.
type Segment struct {
	Weekday     int // ISO weekday, 1 = Monday ... 7 = Sunday
	StartMinute int
	EndMinute   int
	StartUTC    time.Time
	EndUTC      time.Time
}

// SplitByLocalDay cuts [start, end) at every local midnight of loc.
func SplitByLocalDay(start, end time.Time, loc *time.Location, maxSegments int) ([]Segment, error) {
	if !end.After(start) {
		return nil, ErrEmptyInterval
	}
	if loc == nil {
		loc = time.UTC
	}
	if maxSegments <= 0 {
		maxSegments = DefaultMaxSegments
	}

	var segs []Segment
	cursor := start
	for cursor.Before(end) {
		if len(segs) == maxSegments {
			return nil, ErrIntervalTooLong
		}
		local := cursor.In(loc)
		next := nextLocalMidnight(local)

		seg := Segment{
			Weekday:     ISOWeekday(local.Weekday()),
			StartMinute: local.Hour()*60 + local.Minute(),
			StartUTC:    cursor.UTC(),
		}
		if next.After(end) {
			seg.EndUTC = end.UTC()
			seg.EndMinute = minuteCeil(end.In(loc))
		} else {
			seg.EndUTC = next.UTC()
			seg.EndMinute = MinutesPerDay
		}
		segs = append(segs, seg)
		cursor = seg.EndUTC
	}
	return segs, nil
}

// nextLocalMidnight returns the first instant whose local date is after t's.
// time.Date may land on either side of a transition when midnight is skipped
// or repeated, so the candidate is nudged onto the real boundary.
func nextLocalMidnight(t time.Time) time.Time {
	y, m, d := t.Date()
	loc := t.Location()
	next := time.Date(y, m, d+1, 0, 0, 0, 0, loc)
	for !sameOrLaterDate(next.In(loc), y, m, d+1) || !next.After(t) {
		next = next.Add(boundaryStep)
	}
	for {
		prev := next.Add(-boundaryStep)
		if !prev.After(t) || !sameOrLaterDate(prev.In(loc), y, m, d+1) {
			return next
		}
		next = prev
	}
}

func sameOrLaterDate(t time.Time, y int, m time.Month, d int) bool {
	want := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	ty, tm, td := t.Date()
	got := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return !got.Before(want)
}

func minuteCeil(t time.Time) int {
	m := t.Hour()*60 + t.Minute()
	if t.Second() > 0 || t.Nanosecond() > 0 {
		m++
	}
	return m
}

// ISOWeekday maps Go's Sunday-first weekday onto 1 (Monday) .. 7 (Sunday).
func ISOWeekday(wd time.Weekday) int {
	if wd == time.Sunday {
		return 7
	}
	return int(wd)
}
