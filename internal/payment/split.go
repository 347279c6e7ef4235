// Package payment computes how a booking total is divided between the
// marketplace and the resource owner.
package payment

import (
	"github.com/shopspring/decimal"

	apperrors "parkspace/internal/errors"
	"parkspace/internal/utils"
)

var DefaultCommissionRate = decimal.RequireFromString("0.15")

var (
	ErrInvalidAmount   = apperrors.Validation(apperrors.CodeInvalidAmount, "amount must be positive")
	ErrInvalidCurrency = apperrors.Validation(apperrors.CodeInvalidCurrency, "currency must be a 3-letter ISO code")
	ErrInvalidRate     = apperrors.Validation(apperrors.CodeInvalidAmount, "commission rate must be between 0 and 1")
)

// Split is a booking total expressed in the currency's minor units.
// PlatformFee + OwnerPayout == Total always holds.
type Split struct {
	Currency    string
	Total       int64
	PlatformFee int64
	OwnerPayout int64
}

// SplitRequest carries the major-unit amounts as quoted to the renter.
// FeeOverride, when set, replaces the rate-derived fee.
type SplitRequest struct {
	Total       decimal.Decimal
	Currency    string
	Rate        decimal.Decimal
	FeeOverride *decimal.Decimal
}

func Calculate(req SplitRequest) (Split, error) {
	currency := utils.NormalizeCurrency(req.Currency)
	if !utils.ValidCurrency(currency) {
		return Split{}, ErrInvalidCurrency
	}
	if !req.Total.IsPositive() {
		return Split{}, ErrInvalidAmount
	}
	if req.Rate.IsNegative() || req.Rate.GreaterThan(decimal.NewFromInt(1)) {
		return Split{}, ErrInvalidRate
	}

	total := ToMinor(req.Total, currency)
	if total <= 0 {
		return Split{}, ErrInvalidAmount
	}

	var fee int64
	if req.FeeOverride != nil {
		fee = ToMinor(*req.FeeOverride, currency)
	} else {
		fee = decimal.NewFromInt(total).Mul(req.Rate).Round(0).IntPart()
	}
	fee = clamp(fee, 0, total)

	return Split{
		Currency:    currency,
		Total:       total,
		PlatformFee: fee,
		OwnerPayout: total - fee,
	}, nil
}

// ToMinor converts a major-unit amount to integer minor units, rounding half away from zero.
func ToMinor(amount decimal.Decimal, currency string) int64 {
	exp := utils.MinorUnitExponent(currency)
	return amount.Shift(exp).Round(0).IntPart()
}

// FromMinor is the inverse of ToMinor.
func FromMinor(minor int64, currency string) decimal.Decimal {
	return decimal.New(minor, -utils.MinorUnitExponent(currency))
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
