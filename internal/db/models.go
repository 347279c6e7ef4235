package db

import (
	"time"

	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	StatusPending        BookingStatus = "pending"
	StatusPendingPayment BookingStatus = "pending_payment"
	StatusConfirmed      BookingStatus = "confirmed"
	StatusExpired        BookingStatus = "expired"
	StatusCancelled      BookingStatus = "cancelled"
)

// Active statuses hold their interval; the exclusion constraint uses the same set.
func (s BookingStatus) Active() bool {
	return s == StatusPending || s == StatusPendingPayment || s == StatusConfirmed
}

type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

type RefundStatus string

const (
	RefundNone             RefundStatus = "none"
	RefundRequested        RefundStatus = "requested"
	RefundRefunding        RefundStatus = "refunding"
	RefundRefunded         RefundStatus = "refunded"
	RefundFailed           RefundStatus = "failed"
	RefundMissingReference RefundStatus = "missing_reference"
)

type Actor string

const (
	ActorRenter Actor = "renter"
	ActorOwner  Actor = "owner"
)

func (a Actor) Valid() bool { return a == ActorRenter || a == ActorOwner }

type Resource struct {
	ID      string
	OwnerID string
	Active  bool
	// Timezone is empty when the resource uses the platform reference zone.
	Timezone string
}

type WeeklySlot struct {
	ResourceID  string
	Weekday     int
	StartMinute int
	EndMinute   int
	Enabled     bool
}

type Blackout struct {
	ResourceID string
	StartUTC   time.Time
	EndUTC     time.Time
	Reason     string
}

type Booking struct {
	ID            string
	ResourceID    string
	RenterID      string
	StartUTC      time.Time
	EndUTC        time.Time
	Status        BookingStatus
	PaymentStatus PaymentStatus
	RefundStatus  RefundStatus
	TotalAmount   decimal.Decimal
	Currency      string

	PaymentSessionRef string
	PaymentSessionURL string
	PaymentChargeRef  string
	RefundRef         string

	CancelledBy Actor
	CancelledAt *time.Time

	RenterEmail string
	RenterPhone string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PayoutAccount is the owner's connected processor account.
type PayoutAccount struct {
	OwnerID   string
	AccountID string
}
