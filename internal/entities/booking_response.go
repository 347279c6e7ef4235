package entities

import (
	"time"

	"github.com/shopspring/decimal"

	"parkspace/internal/db"
)

type CreateBookingResponse struct {
	BookingID string `json:"booking_id"`
}

// BookingResponse is the caller-facing view of a booking. Processor
// references stay internal.
type BookingResponse struct {
	ID            string          `json:"id"`
	ResourceID    string          `json:"resource_id"`
	RenterID      string          `json:"renter_id"`
	StartUTC      time.Time       `json:"start_utc"`
	EndUTC        time.Time       `json:"end_utc"`
	Status        string          `json:"status"`
	PaymentStatus string          `json:"payment_status"`
	RefundStatus  string          `json:"refund_status"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Currency      string          `json:"currency"`
	CheckoutURL   string          `json:"checkout_url,omitempty"`
	CancelledBy   string          `json:"cancelled_by,omitempty"`
	CancelledAt   *time.Time      `json:"cancelled_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

func NewBookingResponse(b *db.Booking) BookingResponse {
	resp := BookingResponse{
		ID:            b.ID,
		ResourceID:    b.ResourceID,
		RenterID:      b.RenterID,
		StartUTC:      b.StartUTC,
		EndUTC:        b.EndUTC,
		Status:        string(b.Status),
		PaymentStatus: string(b.PaymentStatus),
		RefundStatus:  string(b.RefundStatus),
		TotalAmount:   b.TotalAmount,
		Currency:      b.Currency,
		CancelledBy:   string(b.CancelledBy),
		CancelledAt:   b.CancelledAt,
		CreatedAt:     b.CreatedAt,
	}
	if b.Status == db.StatusPendingPayment {
		resp.CheckoutURL = b.PaymentSessionURL
	}
	return resp
}

type ExpireHoldsResponse struct {
	Expired int `json:"expired"`
}
