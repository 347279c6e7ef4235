package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"parkspace/internal/db"
)

const bookingColumns = `
	id, resource_id, renter_id, start_utc, end_utc, status, payment_status, refund_status,
	total_amount, currency, payment_session_ref, payment_session_url, payment_charge_ref, refund_ref,
	cancelled_by, cancelled_at, renter_email, renter_phone, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*db.Booking, error) {
	var (
		b                                            db.Booking
		sessionRef, sessionURL, chargeRef, refundRef sql.NullString
		cancelledBy, email, phone                    sql.NullString
		cancelledAt                                  sql.NullTime
	)
	err := row.Scan(
		&b.ID, &b.ResourceID, &b.RenterID, &b.StartUTC, &b.EndUTC, &b.Status, &b.PaymentStatus, &b.RefundStatus,
		&b.TotalAmount, &b.Currency, &sessionRef, &sessionURL, &chargeRef, &refundRef,
		&cancelledBy, &cancelledAt, &email, &phone, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.PaymentSessionRef = sessionRef.String
	b.PaymentSessionURL = sessionURL.String
	b.PaymentChargeRef = chargeRef.String
	b.RefundRef = refundRef.String
	b.CancelledBy = db.Actor(cancelledBy.String)
	if cancelledAt.Valid {
		t := cancelledAt.Time
		b.CancelledAt = &t
	}
	b.RenterEmail = email.String
	b.RenterPhone = phone.String
	return &b, nil
}

type BookingRepository struct {
	DB *sql.DB
}

func NewBookingRepository(db *sql.DB) *BookingRepository {
	return &BookingRepository{DB: db}
}

// Insert stores a new hold. The bookings_no_overlap constraint makes this the
// atomic "insert iff no overlapping active booking"; a rejection is ErrOverlap.
func (r *BookingRepository) Insert(ctx context.Context, b *db.Booking) error {
	query := `
		INSERT INTO bookings
		(id, resource_id, renter_id, start_utc, end_utc, status, payment_status, refund_status,
		 total_amount, currency, renter_email, renter_phone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
		RETURNING created_at, updated_at`
	err := r.DB.QueryRowContext(ctx, query,
		b.ID,
		b.ResourceID,
		b.RenterID,
		b.StartUTC,
		b.EndUTC,
		b.Status,
		b.PaymentStatus,
		b.RefundStatus,
		b.TotalAmount,
		b.Currency,
		nullString(b.RenterEmail),
		nullString(b.RenterPhone),
		b.CreatedAt,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	if isExclusionViolation(err) {
		return ErrOverlap
	}
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

func (r *BookingRepository) Get(ctx context.Context, id string) (*db.Booking, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	b, err := scanBooking(row)
	if err != nil {
		return nil, fmt.Errorf("get booking %s: %w", id, notFound(err))
	}
	return b, nil
}

func (r *BookingRepository) GetBySessionRef(ctx context.Context, sessionRef string) (*db.Booking, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE payment_session_ref = $1`, sessionRef)
	b, err := scanBooking(row)
	if err != nil {
		return nil, fmt.Errorf("get booking by session %s: %w", sessionRef, notFound(err))
	}
	return b, nil
}

// exec runs a guarded update and reports whether a row still matched the guard.
func (r *BookingRepository) exec(ctx context.Context, op, query string, args ...any) (bool, error) {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: rows affected: %w", op, err)
	}
	return n > 0, nil
}

// AttachPaymentSession moves an unpaid hold to pending_payment. It refuses to
// overwrite an existing session so a booking never has two payable sessions.
func (r *BookingRepository) AttachPaymentSession(ctx context.Context, id, sessionRef, sessionURL string) (bool, error) {
	return r.exec(ctx, "attach payment session", `
		UPDATE bookings
		SET status = 'pending_payment', payment_session_ref = $2, payment_session_url = $3, updated_at = NOW()
		WHERE id = $1
		  AND status IN ('pending', 'pending_payment')
		  AND payment_status = 'unpaid'
		  AND payment_session_ref IS NULL`,
		id, sessionRef, sessionURL)
}

// ConfirmPayment applies a completed payment. Only an unpaid, unexpired hold
// matches, so replays and late deliveries are no-ops.
func (r *BookingRepository) ConfirmPayment(ctx context.Context, id, chargeRef string) (bool, error) {
	return r.exec(ctx, "confirm payment", `
		UPDATE bookings
		SET status = 'confirmed', payment_status = 'paid', payment_charge_ref = $2, updated_at = NOW()
		WHERE id = $1
		  AND status IN ('pending', 'pending_payment')
		  AND payment_status = 'unpaid'`,
		id, nullString(chargeRef))
}

// RecordLatePayment stores a payment that arrived after the booking left the
// payable states, without touching its status.
func (r *BookingRepository) RecordLatePayment(ctx context.Context, id, chargeRef string) (bool, error) {
	return r.exec(ctx, "record late payment", `
		UPDATE bookings
		SET payment_status = 'paid', payment_charge_ref = $2, updated_at = NOW()
		WHERE id = $1
		  AND status IN ('expired', 'cancelled')
		  AND payment_status = 'unpaid'`,
		id, nullString(chargeRef))
}

// Expire releases a single unpaid hold. A non-empty sessionRef must be the
// session currently attached to the hold.
func (r *BookingRepository) Expire(ctx context.Context, id, sessionRef string) (bool, error) {
	return r.exec(ctx, "expire booking", `
		UPDATE bookings
		SET status = 'expired', updated_at = NOW()
		WHERE id = $1
		  AND status IN ('pending', 'pending_payment')
		  AND payment_status = 'unpaid'
		  AND ($2::text = '' OR payment_session_ref = $2)`,
		id, sessionRef)
}

// Cancel commits a cancellation computed from a booking read with payment
// status seen. It returns nil when the row is already cancelled or its payment
// status moved since the read; the caller re-reads to tell the two apart.
func (r *BookingRepository) Cancel(ctx context.Context, id string, seen db.PaymentStatus, actor db.Actor, refund db.RefundStatus, at time.Time) (*db.Booking, error) {
	row := r.DB.QueryRowContext(ctx, `
		UPDATE bookings
		SET status = 'cancelled', refund_status = $4, cancelled_by = $3, cancelled_at = $5, updated_at = $5
		WHERE id = $1 AND status <> 'cancelled' AND payment_status = $2
		RETURNING `+bookingColumns,
		id, seen, actor, refund, at)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cancel booking %s: %w", id, err)
	}
	return b, nil
}

// RefundOutcome is the result of one refund attempt on a cancelled booking.
type RefundOutcome struct {
	Status    db.RefundStatus
	RefundRef string
	// Paid is the payment status to store; zero leaves it unchanged.
	Paid db.PaymentStatus
}

func (r *BookingRepository) SetRefundOutcome(ctx context.Context, id string, o RefundOutcome) error {
	_, err := r.exec(ctx, "set refund outcome", `
		UPDATE bookings
		SET refund_status = $2,
		    refund_ref = COALESCE($3, refund_ref),
		    payment_status = COALESCE($4, payment_status),
		    updated_at = NOW()
		WHERE id = $1 AND status = 'cancelled'`,
		id, o.Status, nullString(o.RefundRef), nullString(string(o.Paid)))
	return err
}

// MarkRefundedByCharge applies a processor refund notification.
func (r *BookingRepository) MarkRefundedByCharge(ctx context.Context, chargeRef, refundRef string) (bool, error) {
	return r.exec(ctx, "mark refunded", `
		UPDATE bookings
		SET refund_status = 'refunded', payment_status = 'refunded',
		    refund_ref = COALESCE(refund_ref, $2), updated_at = NOW()
		WHERE payment_charge_ref = $1 AND refund_status <> 'refunded'`,
		chargeRef, nullString(refundRef))
}
