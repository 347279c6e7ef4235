package repository

import (
	"context"
	"database/sql"
	"fmt"

	"parkspace/internal/db"
)

// StripeRepository holds processor-side records: owners' connected accounts
// and the ledger of webhook events already applied.
type StripeRepository struct {
	DB *sql.DB
}

func NewStripeRepository(db *sql.DB) *StripeRepository {
	return &StripeRepository{DB: db}
}

func (r *StripeRepository) GetPayoutAccount(ctx context.Context, ownerID string) (*db.PayoutAccount, error) {
	var a db.PayoutAccount
	err := r.DB.QueryRowContext(ctx,
		`SELECT owner_id, stripe_account_id FROM payout_accounts WHERE owner_id = $1`, ownerID,
	).Scan(&a.OwnerID, &a.AccountID)
	if err != nil {
		return nil, fmt.Errorf("get payout account for %s: %w", ownerID, notFound(err))
	}
	return &a, nil
}

func (r *StripeRepository) EventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM payment_events WHERE event_id = $1)`, eventID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check payment event %s: %w", eventID, err)
	}
	return exists, nil
}

// RecordEvent marks an event as applied. Recording twice is not an error.
func (r *StripeRepository) RecordEvent(ctx context.Context, eventID, eventType, bookingID string) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO payment_events (event_id, event_type, booking_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_id) DO NOTHING`,
		eventID, eventType, nullString(bookingID))
	if err != nil && !isUniqueViolation(err) {
		return fmt.Errorf("record payment event %s: %w", eventID, err)
	}
	return nil
}
