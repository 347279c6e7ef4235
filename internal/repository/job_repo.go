package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"parkspace/internal/db"
)

type JobRepository struct {
	DB *sql.DB
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{DB: db}
}

// ListStaleHolds returns ids of unpaid holds created before the cutoff.
func (r *JobRepository) ListStaleHolds(ctx context.Context, before time.Time, limit int) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id FROM bookings
		WHERE status IN ('pending', 'pending_payment')
		  AND payment_status = 'unpaid'
		  AND created_at < $1
		ORDER BY created_at
		LIMIT $2`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("query stale holds: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan booking id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ExpireHolds expires the listed holds, re-checking the prior state so a hold
// paid since it was listed is left alone. It returns the rows actually expired.
func (r *JobRepository) ExpireHolds(ctx context.Context, ids []string, before time.Time) ([]db.Booking, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.DB.QueryContext(ctx, `
		UPDATE bookings
		SET status = 'expired', updated_at = NOW()
		WHERE id = ANY($1)
		  AND status IN ('pending', 'pending_payment')
		  AND payment_status = 'unpaid'
		  AND created_at < $2
		RETURNING id, resource_id, COALESCE(payment_session_ref, '')`,
		pq.Array(ids), before)
	if err != nil {
		return nil, fmt.Errorf("expire holds: %w", err)
	}
	defer rows.Close()

	var out []db.Booking
	for rows.Next() {
		b := db.Booking{Status: db.StatusExpired}
		if err := rows.Scan(&b.ID, &b.ResourceID, &b.PaymentSessionRef); err != nil {
			return nil, fmt.Errorf("scan expired hold: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// retryableRefund matches cancelled, paid bookings whose refund failed, or
// whose attempt has sat unresolved since before $1.
const retryableRefund = `status = 'cancelled' AND payment_status = 'paid'
		  AND (refund_status = 'failed'
		       OR (refund_status IN ('requested', 'refunding') AND updated_at < $1))`

// ListRetryableRefunds returns cancelled bookings whose refund failed or stalled.
func (r *JobRepository) ListRetryableRefunds(ctx context.Context, staleBefore time.Time, limit int) ([]db.Booking, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+bookingColumns+`
		FROM bookings
		WHERE `+retryableRefund+`
		ORDER BY cancelled_at
		LIMIT $2`, staleBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("query retryable refunds: %w", err)
	}
	defer rows.Close()

	var out []db.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan retryable refund: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// ClaimRefundRetry moves a retryable refund to refunding and renews its lease,
// so only one worker retries it.
func (r *JobRepository) ClaimRefundRetry(ctx context.Context, id string, staleBefore time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE bookings SET refund_status = 'refunding', updated_at = NOW()
		WHERE `+retryableRefund+` AND id = $2`, staleBefore, id)
	if err != nil {
		return false, fmt.Errorf("claim refund retry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim refund retry: rows affected: %w", err)
	}
	return n > 0, nil
}
