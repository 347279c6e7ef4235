package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"parkspace/internal/db"
)

// ResourceRepository reads the inputs of an availability decision.
// Listing management owns these tables; nothing here writes to them.
type ResourceRepository struct {
	DB *sql.DB
}

func NewResourceRepository(db *sql.DB) *ResourceRepository {
	return &ResourceRepository{DB: db}
}

func (r *ResourceRepository) GetResource(ctx context.Context, id string) (*db.Resource, error) {
	var (
		res db.Resource
		tz  sql.NullString
	)
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, owner_id, active, timezone FROM resources WHERE id = $1`, id,
	).Scan(&res.ID, &res.OwnerID, &res.Active, &tz)
	if err != nil {
		return nil, fmt.Errorf("get resource %s: %w", id, notFound(err))
	}
	res.Timezone = tz.String
	return &res, nil
}

func (r *ResourceRepository) ListWeeklySlots(ctx context.Context, resourceID string) ([]db.WeeklySlot, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT resource_id, weekday, start_minute, end_minute, enabled
		FROM weekly_availability
		WHERE resource_id = $1
		ORDER BY weekday, start_minute`, resourceID)
	if err != nil {
		return nil, fmt.Errorf("query weekly slots: %w", err)
	}
	defer rows.Close()

	var slots []db.WeeklySlot
	for rows.Next() {
		var s db.WeeklySlot
		if err := rows.Scan(&s.ResourceID, &s.Weekday, &s.StartMinute, &s.EndMinute, &s.Enabled); err != nil {
			return nil, fmt.Errorf("scan weekly slot: %w", err)
		}
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

// ListBlackouts returns blackouts intersecting [start, end).
func (r *ResourceRepository) ListBlackouts(ctx context.Context, resourceID string, start, end time.Time) ([]db.Blackout, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT resource_id, start_utc, end_utc, COALESCE(reason, '')
		FROM blackouts
		WHERE resource_id = $1 AND start_utc < $3 AND end_utc > $2`, resourceID, start, end)
	if err != nil {
		return nil, fmt.Errorf("query blackouts: %w", err)
	}
	defer rows.Close()

	var out []db.Blackout
	for rows.Next() {
		var b db.Blackout
		if err := rows.Scan(&b.ResourceID, &b.StartUTC, &b.EndUTC, &b.Reason); err != nil {
			return nil, fmt.Errorf("scan blackout: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ListActiveBookings returns active bookings intersecting [start, end).
// Expired and cancelled rows no longer hold their interval.
func (r *ResourceRepository) ListActiveBookings(ctx context.Context, resourceID string, start, end time.Time) ([]db.Booking, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, start_utc, end_utc, status
		FROM bookings
		WHERE resource_id = $1
		  AND status IN ('pending', 'pending_payment', 'confirmed')
		  AND start_utc < $3 AND end_utc > $2`, resourceID, start, end)
	if err != nil {
		return nil, fmt.Errorf("query active bookings: %w", err)
	}
	defer rows.Close()

	var out []db.Booking
	for rows.Next() {
		b := db.Booking{ResourceID: resourceID}
		if err := rows.Scan(&b.ID, &b.StartUTC, &b.EndUTC, &b.Status); err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
