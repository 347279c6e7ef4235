// Package errors holds the error taxonomy shared by the booking engine and its HTTP surface.
// Every business denial carries a stable Code so callers branch without string matching.
package errors

import (
	stderrors "errors"
	"fmt"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindAuthorization
	KindNotFound
	KindUpstream
	KindReconciliation
	KindInvalidState
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindUpstream:
		return "upstream"
	case KindReconciliation:
		return "payment_reconciliation"
	case KindInvalidState:
		return "invalid_state"
	default:
		return "internal"
	}
}

type Code string

const (
	// Availability denials.
	CodeResourceInactive    Code = "RESOURCE_INACTIVE"
	CodeBlackout            Code = "BLACKOUT"
	CodeOutsideAvailability Code = "OUTSIDE_AVAILABILITY"
	CodeBookingOverlap      Code = "BOOKING_OVERLAP"

	CodeIntervalTooLong  Code = "INTERVAL_TOO_LONG"
	CodeInvalidInterval  Code = "INVALID_INTERVAL"
	CodeMissingField     Code = "MISSING_FIELD"
	CodeInvalidAmount    Code = "INVALID_AMOUNT"
	CodeInvalidCurrency  Code = "INVALID_CURRENCY"
	CodeInvalidActor     Code = "INVALID_ACTOR"
	CodeNotFound         Code = "NOT_FOUND"
	CodeForbidden        Code = "FORBIDDEN"
	CodeUnauthenticated  Code = "UNAUTHENTICATED"
	CodePayoutNotReady   Code = "PAYOUT_ACCOUNT_NOT_READY"
	CodeInvalidState     Code = "INVALID_STATE"
	CodeStoreUnavailable Code = "STORE_UNAVAILABLE"
	CodeProcessorFailure Code = "PAYMENT_PROCESSOR_FAILURE"
	CodeRefundFailed     Code = "REFUND_FAILED"
	CodeExpiredPaid      Code = "PAYMENT_FOR_EXPIRED_BOOKING"
	CodeInvalidSignature Code = "INVALID_SIGNATURE"
	CodeRateLimited      Code = "RATE_LIMITED"
	CodeInternal         Code = "INTERNAL"
)

// Error is the concrete error type for every classified failure.
type Error struct {
	Kind    Kind
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(code Code, msg string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: msg}
}

func Conflict(code Code) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: conflictMessages[code]}
}

func Forbidden(msg string) *Error {
	return &Error{Kind: KindAuthorization, Code: CodeForbidden, Message: msg}
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Code: CodeNotFound, Message: msg}
}

func InvalidState(msg string) *Error {
	return &Error{Kind: KindInvalidState, Code: CodeInvalidState, Message: msg}
}

func Upstream(code Code, msg string, err error) *Error {
	return &Error{Kind: KindUpstream, Code: code, Message: msg, Err: err}
}

func Reconciliation(code Code, msg string, err error) *Error {
	return &Error{Kind: KindReconciliation, Code: code, Message: msg, Err: err}
}

var conflictMessages = map[Code]string{
	CodeResourceInactive:    "resource is not active",
	CodeBlackout:            "resource is blacked out for the requested interval",
	CodeOutsideAvailability: "requested interval is outside the weekly availability",
	CodeBookingOverlap:      "requested interval overlaps an existing booking",
	CodePayoutNotReady:      "owner payout account is not ready to receive payments",
}

// CodeOf returns the stable code carried by err, or "" if err is unclassified.
func CodeOf(err error) Code {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ""
}

// KindOf returns the kind carried by err, KindInternal if unclassified.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
