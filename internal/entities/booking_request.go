package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

type CreateBookingRequest struct {
	ResourceID  string          `json:"resource_id"`
	StartUTC    time.Time       `json:"start_utc"`
	EndUTC      time.Time       `json:"end_utc"`
	QuotedTotal decimal.Decimal `json:"quoted_total"`
	Currency    string          `json:"currency"`
	RenterEmail string          `json:"renter_email,omitempty"`
	RenterPhone string          `json:"renter_phone,omitempty"`
}

type CancelBookingRequest struct {
	Actor string `json:"actor"`
}
