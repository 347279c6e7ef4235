package service

import (
	"context"

	"go.uber.org/zap"

	apperrors "parkspace/internal/errors"
)

const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventCheckoutExpired   = "checkout.session.expired"
	EventChargeRefunded    = "charge.refunded"
)

// PaymentEvent is a processor webhook event whose signature was already verified.
type PaymentEvent struct {
	ID         string
	Type       string
	BookingID  string
	SessionRef string
	ChargeRef  string
	RefundRef  string
}

// ApplyPaymentEvent dispatches a verified event at most once. Events that
// fail for transient reasons are not recorded, so the processor's redelivery
// retries them; every state change they trigger is itself guarded.
func (s *BookingService) ApplyPaymentEvent(ctx context.Context, ev PaymentEvent) error {
	if ev.ID == "" {
		return apperrors.Validation(apperrors.CodeMissingField, "event id is required")
	}
	log := s.log.With(zap.String("event_id", ev.ID), zap.String("event_type", ev.Type))

	seen, err := s.records.EventProcessed(ctx, ev.ID)
	if err != nil {
		return storeErr("check payment event", err)
	}
	if seen {
		log.Debug("payment event already processed")
		return nil
	}

	switch ev.Type {
	case EventCheckoutCompleted:
		err = s.CompletePayment(ctx, PaymentCompletion{BookingID: ev.BookingID, SessionRef: ev.SessionRef, ChargeRef: ev.ChargeRef})
	case EventCheckoutExpired:
		err = s.ExpireHold(ctx, ev.BookingID, ev.SessionRef)
	case EventChargeRefunded:
		err = s.RefundSettled(ctx, ev.ChargeRef, ev.RefundRef)
	default:
		log.Debug("ignoring payment event")
		return nil
	}

	switch apperrors.KindOf(err) {
	case apperrors.KindReconciliation, apperrors.KindNotFound, apperrors.KindValidation:
		// Final outcomes: redelivery would not change them.
	default:
		if err != nil {
			return err
		}
	}
	if recErr := s.records.RecordEvent(ctx, ev.ID, ev.Type, ev.BookingID); recErr != nil {
		log.Warn("could not record payment event", zap.Error(recErr))
	}
	return err
}
