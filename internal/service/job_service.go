package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"parkspace/internal/db"
	"parkspace/internal/events"
)

const (
	sweepBatchSize = 200

	// refundLease is how long a requested or claimed refund may stay
	// unresolved before the retry job takes it over.
	refundLease = 10 * time.Minute
)

type SweepStore interface {
	ListStaleHolds(ctx context.Context, before time.Time, limit int) ([]string, error)
	ExpireHolds(ctx context.Context, ids []string, before time.Time) ([]db.Booking, error)
	ListRetryableRefunds(ctx context.Context, staleBefore time.Time, limit int) ([]db.Booking, error)
	ClaimRefundRetry(ctx context.Context, id string, staleBefore time.Time) (bool, error)
}

type JobService struct {
	repo        SweepStore
	bookings    *BookingService
	processor   PaymentProcessor
	publisher   events.Publisher
	holdTimeout time.Duration
	log         *zap.Logger

	now func() time.Time
}

func NewJobService(repo SweepStore, bookings *BookingService, processor PaymentProcessor, publisher events.Publisher, holdTimeout time.Duration, log *zap.Logger) *JobService {
	if holdTimeout <= 0 {
		holdTimeout = 30 * time.Minute
	}
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &JobService{
		repo:        repo,
		bookings:    bookings,
		processor:   processor,
		publisher:   publisher,
		holdTimeout: holdTimeout,
		log:         log,
		now:         time.Now,
	}
}

// ExpireStaleHolds releases unpaid holds older than the hold timeout and
// expires their checkout sessions so they can no longer be paid.
func (s *JobService) ExpireStaleHolds(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.holdTimeout)

	ids, err := s.repo.ListStaleHolds(ctx, cutoff, sweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("sweep: list stale holds: %w", err)
	}
	if len(ids) == 0 {
		s.log.Debug("sweep: no stale holds")
		return 0, nil
	}

	expired, err := s.repo.ExpireHolds(ctx, ids, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep: expire holds: %w", err)
	}
	for i := range expired {
		b := &expired[i]
		if err := s.publisher.Publish(ctx, events.New(events.BookingExpired, b.ID, b.ResourceID, s.now())); err != nil {
			s.log.Warn("sweep: publish expired", zap.String("booking_id", b.ID), zap.Error(err))
		}
		if b.PaymentSessionRef == "" {
			continue
		}
		if err := s.processor.ExpireSession(ctx, b.PaymentSessionRef); err != nil {
			s.log.Warn("sweep: could not expire checkout session",
				zap.String("booking_id", b.ID), zap.String("session_id", b.PaymentSessionRef), zap.Error(err))
		}
	}

	s.log.Info("sweep: expired stale holds", zap.Int("listed", len(ids)), zap.Int("expired", len(expired)))
	return len(expired), nil
}

// RetryFailedRefunds re-issues refunds that failed after cancellation, or whose
// outcome was never stored, using the original idempotency key.
func (s *JobService) RetryFailedRefunds(ctx context.Context) (int, error) {
	staleBefore := s.now().Add(-refundLease)
	failed, err := s.repo.ListRetryableRefunds(ctx, staleBefore, sweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("refund retry: list failed refunds: %w", err)
	}
	refunded := 0
	for i := range failed {
		b := &failed[i]
		claimed, err := s.repo.ClaimRefundRetry(ctx, b.ID, staleBefore)
		if err != nil {
			s.log.Warn("refund retry: claim failed", zap.String("booking_id", b.ID), zap.Error(err))
			continue
		}
		if !claimed {
			continue
		}
		if s.bookings.RetryRefund(ctx, b) == db.RefundRefunded {
			refunded++
		}
	}
	if len(failed) > 0 {
		s.log.Info("refund retry finished", zap.Int("candidates", len(failed)), zap.Int("refunded", refunded))
	}
	return refunded, nil
}

// Schedule registers the sweep and the refund retry on c.
func (s *JobService) Schedule(c *cron.Cron, spec string) error {
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if _, err := s.ExpireStaleHolds(ctx); err != nil {
			s.log.Error("scheduled sweep failed", zap.Error(err))
		}
		if _, err := s.RetryFailedRefunds(ctx); err != nil {
			s.log.Error("scheduled refund retry failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}
	return nil
}
