package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"parkspace/internal/db"
	apperrors "parkspace/internal/errors"
	"parkspace/internal/events"
	"parkspace/internal/payment"
	"parkspace/internal/repository"
	"parkspace/internal/telemetry"
	"parkspace/internal/utils"
)

// Guarded updates that miss re-read the booking and decide again, at most this often.
const (
	paymentAttempts = 2
	cancelAttempts  = 3
)

type BookingStore interface {
	Insert(ctx context.Context, b *db.Booking) error
	Get(ctx context.Context, id string) (*db.Booking, error)
	GetBySessionRef(ctx context.Context, sessionRef string) (*db.Booking, error)
	AttachPaymentSession(ctx context.Context, id, sessionRef, sessionURL string) (bool, error)
	ConfirmPayment(ctx context.Context, id, chargeRef string) (bool, error)
	RecordLatePayment(ctx context.Context, id, chargeRef string) (bool, error)
	Expire(ctx context.Context, id, sessionRef string) (bool, error)
	Cancel(ctx context.Context, id string, seen db.PaymentStatus, actor db.Actor, refund db.RefundStatus, at time.Time) (*db.Booking, error)
	SetRefundOutcome(ctx context.Context, id string, o repository.RefundOutcome) error
	MarkRefundedByCharge(ctx context.Context, chargeRef, refundRef string) (bool, error)
}

// ProcessorRecords is the local bookkeeping kept about the payment processor.
type ProcessorRecords interface {
	GetPayoutAccount(ctx context.Context, ownerID string) (*db.PayoutAccount, error)
	EventProcessed(ctx context.Context, eventID string) (bool, error)
	RecordEvent(ctx context.Context, eventID, eventType, bookingID string) error
}

type CheckoutRequest struct {
	BookingID     string
	Split         payment.Split
	Destination   string
	CustomerEmail string
	ExpiresAt     time.Time
}

type CheckoutSession struct {
	ID  string `json:"session_id"`
	URL string `json:"url"`
}

// PaymentProcessor creates sessions and refunds. Implementations must bound
// every call in time and must not retry anything with side effects.
type PaymentProcessor interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	PayoutReady(ctx context.Context, accountID string) (bool, error)
	Refund(ctx context.Context, paymentRef, idempotencyKey string) (string, error)
	ExpireSession(ctx context.Context, sessionID string) error
}

type Notifier interface {
	BookingConfirmed(ctx context.Context, b db.Booking)
	BookingCancelled(ctx context.Context, b db.Booking)
}

type BookingConfig struct {
	RefundCutoff   time.Duration
	CommissionRate decimal.Decimal
	HoldTimeout    time.Duration
}

type BookingService struct {
	avail     *AvailabilityService
	resources ResourceReader
	store     BookingStore
	records   ProcessorRecords
	processor PaymentProcessor
	publisher events.Publisher
	notifier  Notifier
	cfg       BookingConfig
	log       *zap.Logger
	tracer    trace.Tracer

	now func() time.Time
}

type BookingDeps struct {
	Availability *AvailabilityService
	Resources    ResourceReader
	Store        BookingStore
	Records      ProcessorRecords
	Processor    PaymentProcessor
	Publisher    events.Publisher
	Notifier     Notifier
}

func NewBookingService(deps BookingDeps, cfg BookingConfig, log *zap.Logger) *BookingService {
	if cfg.RefundCutoff <= 0 {
		cfg.RefundCutoff = 12 * time.Hour
	}
	if deps.Publisher == nil {
		deps.Publisher = events.Noop{}
	}
	if deps.Notifier == nil {
		deps.Notifier = noopNotifier{}
	}
	return &BookingService{
		avail:     deps.Availability,
		resources: deps.Resources,
		store:     deps.Store,
		records:   deps.Records,
		processor: deps.Processor,
		publisher: deps.Publisher,
		notifier:  deps.Notifier,
		cfg:       cfg,
		log:       log,
		tracer:    telemetry.Tracer(),
		now:       time.Now,
	}
}

type CreateBookingRequest struct {
	ResourceID  string
	RenterID    string
	StartUTC    time.Time
	EndUTC      time.Time
	QuotedTotal decimal.Decimal
	Currency    string
	RenterEmail string
	RenterPhone string
}

// Create re-runs the availability decision and inserts a pending hold.
// The insert itself is guarded by the store, so two racing requests for the
// same interval cannot both succeed even when both pass the decision.
func (s *BookingService) Create(ctx context.Context, req CreateBookingRequest) (*db.Booking, error) {
	ctx, span := s.tracer.Start(ctx, "booking.create")
	defer span.End()
	span.SetAttributes(attribute.String("resource_id", req.ResourceID))

	if strings.TrimSpace(req.RenterID) == "" {
		return nil, apperrors.Validation(apperrors.CodeMissingField, "renter_id is required")
	}
	currency := utils.NormalizeCurrency(req.Currency)
	if !utils.ValidCurrency(currency) {
		return nil, payment.ErrInvalidCurrency
	}
	total := req.QuotedTotal.Round(utils.MinorUnitExponent(currency))
	if !total.IsPositive() {
		return nil, payment.ErrInvalidAmount
	}
	now := s.now()
	if !req.EndUTC.After(req.StartUTC) {
		return nil, apperrors.Validation(apperrors.CodeInvalidInterval, "end_utc must be after start_utc")
	}
	if !req.StartUTC.After(now) {
		return nil, apperrors.Validation(apperrors.CodeInvalidInterval, "start_utc must be in the future")
	}

	_, decision, err := s.avail.evaluate(ctx, req.ResourceID, req.StartUTC, req.EndUTC)
	if err != nil {
		return nil, err
	}
	if !decision.Available {
		return nil, apperrors.Conflict(decision.Reason)
	}

	b := &db.Booking{
		ID:            uuid.NewString(),
		ResourceID:    req.ResourceID,
		RenterID:      req.RenterID,
		StartUTC:      req.StartUTC.UTC(),
		EndUTC:        req.EndUTC.UTC(),
		Status:        db.StatusPending,
		PaymentStatus: db.PaymentUnpaid,
		RefundStatus:  db.RefundNone,
		TotalAmount:   total,
		Currency:      currency,
		RenterEmail:   strings.TrimSpace(req.RenterEmail),
		RenterPhone:   strings.TrimSpace(req.RenterPhone),
		CreatedAt:     now.UTC(),
	}
	if err := s.store.Insert(ctx, b); err != nil {
		if errors.Is(err, repository.ErrOverlap) {
			s.log.Info("booking rejected by overlap constraint",
				zap.String("resource_id", b.ResourceID), zap.Time("start", b.StartUTC), zap.Time("end", b.EndUTC))
			return nil, apperrors.Conflict(apperrors.CodeBookingOverlap)
		}
		return nil, storeErr("insert booking", err)
	}

	s.log.Info("booking created", zap.String("booking_id", b.ID), zap.String("resource_id", b.ResourceID))
	s.publish(ctx, events.BookingCreated, b)
	return b, nil
}

// Get returns a booking to its renter or to the owner of its resource.
func (s *BookingService) Get(ctx context.Context, id, callerID string) (*db.Booking, error) {
	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.RenterID == callerID {
		return b, nil
	}
	ownerID, err := s.ownerOf(ctx, b.ResourceID)
	if err != nil {
		return nil, err
	}
	if ownerID != callerID {
		return nil, apperrors.Forbidden("caller is neither renter nor owner of this booking")
	}
	return b, nil
}

// InitiatePayment opens a hosted checkout session for an unpaid hold.
// Calling it again while the session is open returns the same session.
func (s *BookingService) InitiatePayment(ctx context.Context, id, callerID string) (*CheckoutSession, error) {
	ctx, span := s.tracer.Start(ctx, "booking.initiate_payment")
	defer span.End()
	span.SetAttributes(attribute.String("booking_id", id))

	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.RenterID != callerID {
		return nil, apperrors.Forbidden("only the renter can pay for a booking")
	}
	if existing := openSession(b); existing != nil {
		return existing, nil
	}
	if b.Status != db.StatusPending || b.PaymentStatus != db.PaymentUnpaid {
		return nil, apperrors.InvalidState("booking is " + string(b.Status) + " and cannot be paid")
	}

	ownerID, err := s.ownerOf(ctx, b.ResourceID)
	if err != nil {
		return nil, err
	}
	acct, err := s.records.GetPayoutAccount(ctx, ownerID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.Conflict(apperrors.CodePayoutNotReady)
	}
	if err != nil {
		return nil, storeErr("load payout account", err)
	}
	ready, err := s.processor.PayoutReady(ctx, acct.AccountID)
	if err != nil {
		return nil, apperrors.Upstream(apperrors.CodeProcessorFailure, "check payout account", err)
	}
	if !ready {
		return nil, apperrors.Conflict(apperrors.CodePayoutNotReady)
	}

	split, err := payment.Calculate(payment.SplitRequest{
		Total:    b.TotalAmount,
		Currency: b.Currency,
		Rate:     s.cfg.CommissionRate,
	})
	if err != nil {
		return nil, err
	}

	sess, err := s.processor.CreateCheckoutSession(ctx, CheckoutRequest{
		BookingID:     b.ID,
		Split:         split,
		Destination:   acct.AccountID,
		CustomerEmail: b.RenterEmail,
		ExpiresAt:     s.now().Add(s.cfg.HoldTimeout),
	})
	if err != nil {
		return nil, apperrors.Upstream(apperrors.CodeProcessorFailure, "create checkout session", err)
	}

	ok, err := s.store.AttachPaymentSession(ctx, b.ID, sess.ID, sess.URL)
	if err != nil {
		s.expireSessionQuietly(ctx, sess.ID)
		return nil, storeErr("attach payment session", err)
	}
	if !ok {
		// Lost a race: another session was attached or the hold expired.
		s.expireSessionQuietly(ctx, sess.ID)
		cur, err := s.load(ctx, b.ID)
		if err != nil {
			return nil, err
		}
		if existing := openSession(cur); existing != nil {
			return existing, nil
		}
		return nil, apperrors.InvalidState("booking is " + string(cur.Status) + " and cannot be paid")
	}

	s.log.Info("payment session opened",
		zap.String("booking_id", b.ID),
		zap.String("session_id", sess.ID),
		zap.Int64("total_minor", split.Total),
		zap.Int64("platform_fee_minor", split.PlatformFee),
	)
	return sess, nil
}

func openSession(b *db.Booking) *CheckoutSession {
	if b.Status == db.StatusPendingPayment && b.PaymentStatus == db.PaymentUnpaid && b.PaymentSessionRef != "" {
		return &CheckoutSession{ID: b.PaymentSessionRef, URL: b.PaymentSessionURL}
	}
	return nil
}

// PaymentCompletion is a verified "payment succeeded" notification.
type PaymentCompletion struct {
	BookingID  string
	SessionRef string
	ChargeRef  string
}

// CompletePayment confirms a paid hold. Replays are no-ops and a confirmed
// booking is never moved back. A payment landing on an expired or cancelled
// booking is recorded and reported as a reconciliation error.
func (s *BookingService) CompletePayment(ctx context.Context, p PaymentCompletion) error {
	ctx, span := s.tracer.Start(ctx, "booking.complete_payment")
	defer span.End()

	b, err := s.lookup(ctx, p.BookingID, p.SessionRef)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("booking_id", b.ID))

	for attempt := 0; attempt < paymentAttempts; attempt++ {
		switch b.Status {
		case db.StatusConfirmed:
			s.log.Debug("payment already applied", zap.String("booking_id", b.ID))
			return nil
		case db.StatusExpired, db.StatusCancelled:
			return s.recordLatePayment(ctx, b, p.ChargeRef)
		}

		ok, err := s.store.ConfirmPayment(ctx, b.ID, p.ChargeRef)
		if err != nil {
			return storeErr("confirm payment", err)
		}
		if ok {
			b.Status = db.StatusConfirmed
			b.PaymentStatus = db.PaymentPaid
			b.PaymentChargeRef = p.ChargeRef
			s.log.Info("booking confirmed", zap.String("booking_id", b.ID), zap.String("charge_ref", p.ChargeRef))
			s.publish(ctx, events.BookingConfirmed, b)
			s.notifyAsync(ctx, func(ctx context.Context) { s.notifier.BookingConfirmed(ctx, *b) })
			return nil
		}
		// The guard did not match: something else moved the booking. Re-read and decide again.
		if b, err = s.load(ctx, b.ID); err != nil {
			return err
		}
	}
	return apperrors.InvalidState("booking changed while applying payment")
}

func (s *BookingService) recordLatePayment(ctx context.Context, b *db.Booking, chargeRef string) error {
	ok, err := s.store.RecordLatePayment(ctx, b.ID, chargeRef)
	if err != nil {
		return storeErr("record late payment", err)
	}
	if !ok {
		return nil
	}
	rerr := apperrors.Reconciliation(apperrors.CodeExpiredPaid,
		"payment received for a booking that is "+string(b.Status), nil)
	s.log.Error("payment needs manual reconciliation",
		zap.String("booking_id", b.ID),
		zap.String("status", string(b.Status)),
		zap.String("charge_ref", chargeRef),
		zap.Error(rerr),
	)
	return rerr
}

// ExpireHold releases one unpaid hold, typically after the processor reports
// its session expired. It is a no-op for paid or already-final bookings, and
// for a session that is not the one attached to the booking.
func (s *BookingService) ExpireHold(ctx context.Context, bookingID, sessionRef string) error {
	b, err := s.lookup(ctx, bookingID, sessionRef)
	if err != nil {
		return err
	}
	if sessionRef != "" && b.PaymentSessionRef != sessionRef {
		s.log.Info("ignoring expiry of a session not attached to the booking",
			zap.String("booking_id", b.ID), zap.String("session_id", sessionRef))
		return nil
	}
	ok, err := s.store.Expire(ctx, b.ID, sessionRef)
	if err != nil {
		return storeErr("expire booking", err)
	}
	if ok {
		b.Status = db.StatusExpired
		s.log.Info("booking expired", zap.String("booking_id", b.ID))
		s.publish(ctx, events.BookingExpired, b)
	}
	return nil
}

type CancelResult struct {
	Refunded         bool            `json:"refunded"`
	AlreadyCancelled bool            `json:"already_cancelled"`
	RefundStatus     db.RefundStatus `json:"refund_status"`
}

// Cancel commits the cancellation first and only then attempts a refund.
// The refund outcome never undoes the cancellation.
func (s *BookingService) Cancel(ctx context.Context, id, callerID string, actor db.Actor) (*CancelResult, error) {
	ctx, span := s.tracer.Start(ctx, "booking.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("booking_id", id), attribute.String("actor", string(actor)))

	if !actor.Valid() {
		return nil, apperrors.Validation(apperrors.CodeInvalidActor, "actor must be renter or owner")
	}
	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeActor(ctx, b, callerID, actor); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < cancelAttempts; attempt++ {
		if b.Status == db.StatusCancelled {
			return &CancelResult{AlreadyCancelled: true, RefundStatus: b.RefundStatus}, nil
		}
		now := s.now()
		eligible := RefundEligible(b, now, s.cfg.RefundCutoff)
		refund := db.RefundNone
		if eligible {
			refund = db.RefundRequested
		}

		cancelled, err := s.store.Cancel(ctx, b.ID, b.PaymentStatus, actor, refund, now.UTC())
		if err != nil {
			return nil, storeErr("cancel booking", err)
		}
		if cancelled == nil {
			if b, err = s.load(ctx, id); err != nil {
				return nil, err
			}
			continue
		}

		s.log.Info("booking cancelled",
			zap.String("booking_id", cancelled.ID),
			zap.String("actor", string(actor)),
			zap.Bool("refund_eligible", eligible),
		)
		s.publish(ctx, events.BookingCancelled, cancelled)
		if cancelled.PaymentStatus == db.PaymentUnpaid && cancelled.PaymentSessionRef != "" {
			s.expireSessionQuietly(ctx, cancelled.PaymentSessionRef)
		}

		res := &CancelResult{RefundStatus: refund}
		if eligible {
			res.RefundStatus = s.refund(ctx, cancelled)
			res.Refunded = res.RefundStatus == db.RefundRefunded
		}
		cancelled.RefundStatus = res.RefundStatus
		s.notifyAsync(ctx, func(ctx context.Context) { s.notifier.BookingCancelled(ctx, *cancelled) })
		return res, nil
	}
	return nil, apperrors.InvalidState("booking changed while cancelling")
}

// RefundEligible: paid, and the booking starts at least cutoff from now.
func RefundEligible(b *db.Booking, now time.Time, cutoff time.Duration) bool {
	return b.PaymentStatus == db.PaymentPaid && b.StartUTC.Sub(now) >= cutoff
}

// RefundIdempotencyKey is stable per booking and cancelling actor, so retries
// of the same refund are collapsed by the processor.
func RefundIdempotencyKey(bookingID string, actor db.Actor) string {
	return "refund:" + bookingID + ":" + string(actor)
}

// RetryRefund re-attempts the refund of a cancelled booking whose earlier attempt failed.
func (s *BookingService) RetryRefund(ctx context.Context, b *db.Booking) db.RefundStatus {
	return s.refund(ctx, b)
}

func (s *BookingService) refund(ctx context.Context, b *db.Booking) db.RefundStatus {
	log := s.log.With(zap.String("booking_id", b.ID))

	if b.PaymentChargeRef == "" {
		log.Error("refund impossible, booking has no charge reference",
			zap.Error(apperrors.Reconciliation(apperrors.CodeRefundFailed, "missing charge reference", nil)))
		s.saveRefundOutcome(ctx, b.ID, repository.RefundOutcome{Status: db.RefundMissingReference})
		s.publish(ctx, events.BookingRefundFailed, b)
		return db.RefundMissingReference
	}

	refundRef, err := s.processor.Refund(ctx, b.PaymentChargeRef, RefundIdempotencyKey(b.ID, b.CancelledBy))
	if err != nil {
		log.Error("refund failed after cancellation",
			zap.Error(apperrors.Reconciliation(apperrors.CodeRefundFailed, "refund request failed", err)))
		s.saveRefundOutcome(ctx, b.ID, repository.RefundOutcome{Status: db.RefundFailed})
		s.publish(ctx, events.BookingRefundFailed, b)
		return db.RefundFailed
	}

	log.Info("refund issued", zap.String("refund_ref", refundRef))
	s.saveRefundOutcome(ctx, b.ID, repository.RefundOutcome{
		Status:    db.RefundRefunded,
		RefundRef: refundRef,
		Paid:      db.PaymentRefunded,
	})
	return db.RefundRefunded
}

func (s *BookingService) saveRefundOutcome(ctx context.Context, id string, o repository.RefundOutcome) {
	if err := s.store.SetRefundOutcome(ctx, id, o); err != nil {
		s.log.Error("could not store refund outcome",
			zap.String("booking_id", id), zap.String("refund_status", string(o.Status)), zap.Error(err))
	}
}

// RefundSettled applies the processor's confirmation that a charge was refunded.
func (s *BookingService) RefundSettled(ctx context.Context, chargeRef, refundRef string) error {
	if chargeRef == "" {
		return nil
	}
	if _, err := s.store.MarkRefundedByCharge(ctx, chargeRef, refundRef); err != nil {
		return storeErr("mark refunded", err)
	}
	return nil
}

func (s *BookingService) authorizeActor(ctx context.Context, b *db.Booking, callerID string, actor db.Actor) error {
	switch actor {
	case db.ActorRenter:
		if b.RenterID == callerID {
			return nil
		}
	case db.ActorOwner:
		ownerID, err := s.ownerOf(ctx, b.ResourceID)
		if err != nil {
			return err
		}
		if ownerID == callerID {
			return nil
		}
	}
	return apperrors.Forbidden("caller cannot act as " + string(actor) + " on this booking")
}

func (s *BookingService) ownerOf(ctx context.Context, resourceID string) (string, error) {
	res, err := s.resources.GetResource(ctx, resourceID)
	if err != nil {
		return "", storeErr("load resource", err)
	}
	return res.OwnerID, nil
}

func (s *BookingService) load(ctx context.Context, id string) (*db.Booking, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperrors.Validation(apperrors.CodeMissingField, "booking id is required")
	}
	b, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, storeErr("load booking", err)
	}
	return b, nil
}

// lookup finds a booking by id, falling back to its processor session.
func (s *BookingService) lookup(ctx context.Context, bookingID, sessionRef string) (*db.Booking, error) {
	if bookingID != "" {
		return s.load(ctx, bookingID)
	}
	if sessionRef == "" {
		return nil, apperrors.Validation(apperrors.CodeMissingField, "booking reference is required")
	}
	b, err := s.store.GetBySessionRef(ctx, sessionRef)
	if err != nil {
		return nil, storeErr("load booking by session", err)
	}
	return b, nil
}

func (s *BookingService) expireSessionQuietly(ctx context.Context, sessionID string) {
	if err := s.processor.ExpireSession(ctx, sessionID); err != nil {
		s.log.Warn("could not expire checkout session", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func (s *BookingService) publish(ctx context.Context, eventType string, b *db.Booking) {
	e := events.New(eventType, b.ID, b.ResourceID, s.now())
	e.Attributes = map[string]string{
		"status":         string(b.Status),
		"payment_status": string(b.PaymentStatus),
		"refund_status":  string(b.RefundStatus),
	}
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.log.Warn("publish event failed", zap.String("event_type", eventType), zap.String("booking_id", b.ID), zap.Error(err))
	}
}

// notifyAsync detaches from the request so notices never delay or fail the lifecycle.
func (s *BookingService) notifyAsync(ctx context.Context, fn func(context.Context)) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		fn(ctx)
	}()
}

type noopNotifier struct{}

func (noopNotifier) BookingConfirmed(context.Context, db.Booking) {}
func (noopNotifier) BookingCancelled(context.Context, db.Booking) {}
