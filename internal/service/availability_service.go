package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"parkspace/internal/availability"
	"parkspace/internal/db"
	apperrors "parkspace/internal/errors"
	"parkspace/internal/repository"
)

// ResourceReader is the read side an availability decision needs.
type ResourceReader interface {
	GetResource(ctx context.Context, id string) (*db.Resource, error)
	ListWeeklySlots(ctx context.Context, resourceID string) ([]db.WeeklySlot, error)
	ListBlackouts(ctx context.Context, resourceID string, start, end time.Time) ([]db.Blackout, error)
	ListActiveBookings(ctx context.Context, resourceID string, start, end time.Time) ([]db.Booking, error)
}

type AvailabilityConfig struct {
	DefaultLocation *time.Location
	EnforceSchedule bool
	MaxSegments     int
}

type AvailabilityService struct {
	repo ResourceReader
	cfg  AvailabilityConfig
	log  *zap.Logger
}

func NewAvailabilityService(repo ResourceReader, cfg AvailabilityConfig, log *zap.Logger) *AvailabilityService {
	if cfg.DefaultLocation == nil {
		cfg.DefaultLocation = time.UTC
	}
	return &AvailabilityService{repo: repo, cfg: cfg, log: log}
}

// Check answers "can this interval be booked right now" for one resource.
func (s *AvailabilityService) Check(ctx context.Context, resourceID string, start, end time.Time) (availability.Decision, error) {
	_, d, err := s.evaluate(ctx, resourceID, start, end)
	return d, err
}

// evaluate also returns the resource so the booking guard can reuse it.
func (s *AvailabilityService) evaluate(ctx context.Context, resourceID string, start, end time.Time) (*db.Resource, availability.Decision, error) {
	if strings.TrimSpace(resourceID) == "" {
		return nil, availability.Decision{}, apperrors.Validation(apperrors.CodeMissingField, "resource_id is required")
	}
	if !end.After(start) {
		return nil, availability.Decision{}, availability.ErrEmptyInterval
	}
	start, end = start.UTC(), end.UTC()

	res, err := s.repo.GetResource(ctx, resourceID)
	if err != nil {
		return nil, availability.Decision{}, storeErr("load resource", err)
	}
	slots, err := s.repo.ListWeeklySlots(ctx, resourceID)
	if err != nil {
		return nil, availability.Decision{}, storeErr("load weekly slots", err)
	}
	blackouts, err := s.repo.ListBlackouts(ctx, resourceID, start, end)
	if err != nil {
		return nil, availability.Decision{}, storeErr("load blackouts", err)
	}
	bookings, err := s.repo.ListActiveBookings(ctx, resourceID, start, end)
	if err != nil {
		return nil, availability.Decision{}, storeErr("load bookings", err)
	}

	in := availability.Inputs{
		Active:          res.Active,
		Location:        s.location(res),
		Slots:           toSlots(slots),
		Blackouts:       make([]availability.Interval, 0, len(blackouts)),
		Bookings:        make([]availability.Interval, 0, len(bookings)),
		EnforceSchedule: s.cfg.EnforceSchedule,
		MaxSegments:     s.cfg.MaxSegments,
	}
	for _, b := range blackouts {
		in.Blackouts = append(in.Blackouts, availability.Interval{Start: b.StartUTC, End: b.EndUTC})
	}
	for _, b := range bookings {
		if b.Status.Active() {
			in.Bookings = append(in.Bookings, availability.Interval{Start: b.StartUTC, End: b.EndUTC})
		}
	}

	d, err := availability.Decide(availability.Interval{Start: start, End: end}, in)
	if err != nil {
		return nil, availability.Decision{}, err
	}
	if !d.Available {
		s.log.Debug("interval denied",
			zap.String("resource_id", resourceID),
			zap.Time("start", start),
			zap.Time("end", end),
			zap.String("reason", string(d.Reason)),
		)
	}
	return res, d, nil
}

func (s *AvailabilityService) location(res *db.Resource) *time.Location {
	if res.Timezone == "" {
		return s.cfg.DefaultLocation
	}
	loc, err := time.LoadLocation(res.Timezone)
	if err != nil {
		s.log.Warn("invalid resource timezone, using reference zone",
			zap.String("resource_id", res.ID), zap.String("timezone", res.Timezone))
		return s.cfg.DefaultLocation
	}
	return loc
}

func toSlots(rows []db.WeeklySlot) []availability.WeeklySlot {
	out := make([]availability.WeeklySlot, 0, len(rows))
	for _, r := range rows {
		out = append(out, availability.WeeklySlot{
			Weekday:     r.Weekday,
			StartMinute: r.StartMinute,
			EndMinute:   r.EndMinute,
			Enabled:     r.Enabled,
		})
	}
	return out
}

// storeErr classifies a repository error: missing rows become NotFound,
// anything else is an upstream store failure.
func storeErr(op string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFound(err.Error())
	}
	return apperrors.Upstream(apperrors.CodeStoreUnavailable, op, err)
}
