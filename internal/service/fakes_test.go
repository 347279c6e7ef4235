package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"parkspace/internal/availability"
	"parkspace/internal/db"
	"parkspace/internal/events"
	"parkspace/internal/payment"
	"parkspace/internal/repository"
)

// memStore is an in-memory stand-in for the Postgres repositories. Its
// guarded updates mirror the WHERE clauses of the SQL versions, and Insert
// enforces the same no-overlap rule as the exclusion constraint.
type memStore struct {
	mu        sync.Mutex
	resources map[string]db.Resource
	slots     map[string][]db.WeeklySlot
	blackouts map[string][]db.Blackout
	bookings  map[string]*db.Booking
	payouts   map[string]db.PayoutAccount
	events    map[string]string

	calls       int
	failInserts error
	// failOutcomes makes SetRefundOutcome fail, leaving the row as it was.
	failOutcomes error
	now          func() time.Time
}

func newMemStore() *memStore {
	return &memStore{
		resources: map[string]db.Resource{},
		slots:     map[string][]db.WeeklySlot{},
		blackouts: map[string][]db.Blackout{},
		bookings:  map[string]*db.Booking{},
		payouts:   map[string]db.PayoutAccount{},
		events:    map[string]string{},
		now:       time.Now,
	}
}

func (m *memStore) touch() {
	m.calls++
}

func (m *memStore) GetResource(_ context.Context, id string) (*db.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touch()
	r, ok := m.resources[id]
	if !ok {
		return nil, fmt.Errorf("get resource %s: %w", id, repository.ErrNotFound)
	}
	return &r, nil
}

func (m *memStore) ListWeeklySlots(_ context.Context, resourceID string) ([]db.WeeklySlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touch()
	return append([]db.WeeklySlot(nil), m.slots[resourceID]...), nil
}

func (m *memStore) ListBlackouts(_ context.Context, resourceID string, start, end time.Time) ([]db.Blackout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touch()
	var out []db.Blackout
	for _, b := range m.blackouts[resourceID] {
		if b.StartUTC.Before(end) && b.EndUTC.After(start) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memStore) ListActiveBookings(_ context.Context, resourceID string, start, end time.Time) ([]db.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touch()
	var out []db.Booking
	for _, b := range m.bookings {
		if b.ResourceID == resourceID && b.Status.Active() && b.StartUTC.Before(end) && b.EndUTC.After(start) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (m *memStore) Insert(_ context.Context, b *db.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touch()
	if m.failInserts != nil {
		return m.failInserts
	}
	req := availability.Interval{Start: b.StartUTC, End: b.EndUTC}
	for _, o := range m.bookings {
		if o.ResourceID == b.ResourceID && o.Status.Active() &&
			availability.Overlaps(req, availability.Interval{Start: o.StartUTC, End: o.EndUTC}) {
			return repository.ErrOverlap
		}
	}
	cp := *b
	cp.UpdatedAt = b.CreatedAt
	m.bookings[b.ID] = &cp
	return nil
}

func (m *memStore) Get(_ context.Context, id string) (*db.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touch()
	b, ok := m.bookings[id]
	if !ok {
		return nil, fmt.Errorf("get booking %s: %w", id, repository.ErrNotFound)
	}
	cp := *b
	return &cp, nil
}

func (m *memStore) GetBySessionRef(_ context.Context, ref string) (*db.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bookings {
		if b.PaymentSessionRef == ref {
			cp := *b
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memStore) update(id string, guard func(*db.Booking) bool, apply func(*db.Booking)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok || !guard(b) {
		return false
	}
	apply(b)
	return true
}

func unpaidHold(b *db.Booking) bool {
	return (b.Status == db.StatusPending || b.Status == db.StatusPendingPayment) && b.PaymentStatus == db.PaymentUnpaid
}

func (m *memStore) AttachPaymentSession(_ context.Context, id, ref, url string) (bool, error) {
	return m.update(id,
		func(b *db.Booking) bool { return unpaidHold(b) && b.PaymentSessionRef == "" },
		func(b *db.Booking) {
			b.Status = db.StatusPendingPayment
			b.PaymentSessionRef = ref
			b.PaymentSessionURL = url
		}), nil
}

func (m *memStore) ConfirmPayment(_ context.Context, id, chargeRef string) (bool, error) {
	return m.update(id, unpaidHold, func(b *db.Booking) {
		b.Status = db.StatusConfirmed
		b.PaymentStatus = db.PaymentPaid
		b.PaymentChargeRef = chargeRef
	}), nil
}

func (m *memStore) RecordLatePayment(_ context.Context, id, chargeRef string) (bool, error) {
	return m.update(id,
		func(b *db.Booking) bool {
			return (b.Status == db.StatusExpired || b.Status == db.StatusCancelled) && b.PaymentStatus == db.PaymentUnpaid
		},
		func(b *db.Booking) {
			b.PaymentStatus = db.PaymentPaid
			b.PaymentChargeRef = chargeRef
		}), nil
}

func (m *memStore) Expire(_ context.Context, id, sessionRef string) (bool, error) {
	return m.update(id,
		func(b *db.Booking) bool {
			return unpaidHold(b) && (sessionRef == "" || b.PaymentSessionRef == sessionRef)
		},
		func(b *db.Booking) { b.Status = db.StatusExpired }), nil
}

func (m *memStore) Cancel(_ context.Context, id string, seen db.PaymentStatus, actor db.Actor, refund db.RefundStatus, at time.Time) (*db.Booking, error) {
	var out *db.Booking
	m.update(id,
		func(b *db.Booking) bool { return b.Status != db.StatusCancelled && b.PaymentStatus == seen },
		func(b *db.Booking) {
			b.Status = db.StatusCancelled
			b.RefundStatus = refund
			b.CancelledBy = actor
			b.CancelledAt = &at
			b.UpdatedAt = at
			cp := *b
			out = &cp
		})
	return out, nil
}

func (m *memStore) SetRefundOutcome(_ context.Context, id string, o repository.RefundOutcome) error {
	if m.failOutcomes != nil {
		return m.failOutcomes
	}
	m.update(id,
		func(b *db.Booking) bool { return b.Status == db.StatusCancelled },
		func(b *db.Booking) {
			b.UpdatedAt = m.now()
			b.RefundStatus = o.Status
			if o.RefundRef != "" {
				b.RefundRef = o.RefundRef
			}
			if o.Paid != "" {
				b.PaymentStatus = o.Paid
			}
		})
	return nil
}

func (m *memStore) MarkRefundedByCharge(_ context.Context, chargeRef, refundRef string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bookings {
		if b.PaymentChargeRef == chargeRef && b.RefundStatus != db.RefundRefunded {
			b.RefundStatus = db.RefundRefunded
			b.PaymentStatus = db.PaymentRefunded
			if b.RefundRef == "" {
				b.RefundRef = refundRef
			}
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) GetPayoutAccount(_ context.Context, ownerID string) (*db.PayoutAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.payouts[ownerID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

func (m *memStore) EventProcessed(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.events[id]
	return ok, nil
}

func (m *memStore) RecordEvent(_ context.Context, id, eventType, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[id] = eventType
	return nil
}

func (m *memStore) ListStaleHolds(_ context.Context, before time.Time, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for _, b := range m.bookings {
		if unpaidHold(b) && b.CreatedAt.Before(before) {
			ids = append(ids, b.ID)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (m *memStore) ExpireHolds(_ context.Context, ids []string, before time.Time) ([]db.Booking, error) {
	var out []db.Booking
	for _, id := range ids {
		m.update(id,
			func(b *db.Booking) bool { return unpaidHold(b) && b.CreatedAt.Before(before) },
			func(b *db.Booking) {
				b.Status = db.StatusExpired
				out = append(out, *b)
			})
	}
	return out, nil
}

func retryableRefund(b *db.Booking, staleBefore time.Time) bool {
	if b.Status != db.StatusCancelled || b.PaymentStatus != db.PaymentPaid {
		return false
	}
	switch b.RefundStatus {
	case db.RefundFailed:
		return true
	case db.RefundRequested, db.RefundRefunding:
		return b.UpdatedAt.Before(staleBefore)
	}
	return false
}

func (m *memStore) ListRetryableRefunds(_ context.Context, staleBefore time.Time, limit int) ([]db.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []db.Booking
	for _, b := range m.bookings {
		if retryableRefund(b, staleBefore) {
			out = append(out, *b)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) ClaimRefundRetry(_ context.Context, id string, staleBefore time.Time) (bool, error) {
	return m.update(id,
		func(b *db.Booking) bool { return retryableRefund(b, staleBefore) },
		func(b *db.Booking) {
			b.RefundStatus = db.RefundRefunding
			b.UpdatedAt = m.now()
		}), nil
}

func (m *memStore) booking(id string) db.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.bookings[id]
}

func (m *memStore) storeCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// fakeProcessor records calls; behaviour is overridden through the func fields.
type fakeProcessor struct {
	mu       sync.Mutex
	sessions int
	refunds  []string
	expired  []string

	ready    bool
	refundFn func(paymentRef, key string) (string, error)
}

func (p *fakeProcessor) CreateCheckoutSession(_ context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions++
	id := fmt.Sprintf("cs_%d", p.sessions)
	return &CheckoutSession{ID: id, URL: "https://checkout.test/" + id}, nil
}

func (p *fakeProcessor) PayoutReady(context.Context, string) (bool, error) {
	return p.ready, nil
}

func (p *fakeProcessor) Refund(_ context.Context, paymentRef, key string) (string, error) {
	p.mu.Lock()
	p.refunds = append(p.refunds, key)
	fn := p.refundFn
	p.mu.Unlock()
	if fn != nil {
		return fn(paymentRef, key)
	}
	return "re_" + paymentRef, nil
}

func (p *fakeProcessor) ExpireSession(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expired = append(p.expired, id)
	return nil
}

func (p *fakeProcessor) refundKeys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.refunds...)
}

type capturePublisher struct {
	mu    sync.Mutex
	types []string
}

func (c *capturePublisher) Publish(_ context.Context, e events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.types = append(c.types, e.Type)
	return nil
}

func (c *capturePublisher) Close() error { return nil }

func (c *capturePublisher) published() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.types...)
}

func splitFixture() payment.Split {
	return payment.Split{Currency: "eur", Total: 10000, PlatformFee: 1500, OwnerPayout: 8500}
}

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }
