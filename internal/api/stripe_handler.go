package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"

	apperrors "parkspace/internal/errors"
	"parkspace/internal/service"
)

const maxWebhookBytes = int64(65536)

type PaymentEventApplier interface {
	ApplyPaymentEvent(ctx context.Context, ev service.PaymentEvent) error
}

type StripeWebhookHandler struct {
	secret    string
	tolerance time.Duration
	payments  PaymentEventApplier
	log       *zap.Logger
}

func NewStripeWebhookHandler(secret string, tolerance time.Duration, payments PaymentEventApplier, log *zap.Logger) *StripeWebhookHandler {
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &StripeWebhookHandler{secret: secret, tolerance: tolerance, payments: payments, log: log}
}

// HandleWebhook verifies the signature before anything else. Final outcomes
// are acknowledged with 200 so Stripe stops redelivering; transient failures
// answer 500 so it retries.
func (h *StripeWebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		h.log.Warn("webhook: read body", zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	event, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), h.secret,
		webhook.ConstructEventOptions{Tolerance: h.tolerance, IgnoreAPIVersionMismatch: true})
	if err != nil {
		h.log.Warn("webhook: signature verification failed", zap.Error(err))
		apperrors.ToHTTP(apperrors.Validation(apperrors.CodeInvalidSignature, "invalid webhook signature")).Write(w)
		return
	}
	log := h.log.With(zap.String("event_id", event.ID), zap.String("event_type", string(event.Type)))

	ev, handled, err := toPaymentEvent(event)
	if err != nil {
		log.Error("webhook: malformed event payload", zap.Error(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if !handled {
		log.Debug("webhook: unhandled event type")
		w.WriteHeader(http.StatusOK)
		return
	}

	err = h.payments.ApplyPaymentEvent(r.Context(), ev)
	switch apperrors.KindOf(err) {
	case apperrors.KindReconciliation, apperrors.KindNotFound, apperrors.KindValidation:
		log.Error("webhook: event needs attention", zap.String("booking_id", ev.BookingID), zap.Error(err))
	default:
		if err != nil {
			log.Error("webhook: apply event failed, awaiting redelivery", zap.Error(err))
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

func toPaymentEvent(event stripe.Event) (service.PaymentEvent, bool, error) {
	ev := service.PaymentEvent{ID: event.ID}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return ev, false, err
		}
		// Delayed payment methods complete the session before the money arrives.
		if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
			return ev, false, nil
		}
		ev.Type = service.EventCheckoutCompleted
		ev.BookingID = sess.ClientReferenceID
		ev.SessionRef = sess.ID
		if sess.PaymentIntent != nil {
			ev.ChargeRef = sess.PaymentIntent.ID
		}

	case stripe.EventTypeCheckoutSessionExpired:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return ev, false, err
		}
		ev.Type = service.EventCheckoutExpired
		ev.BookingID = sess.ClientReferenceID
		ev.SessionRef = sess.ID

	case stripe.EventTypeChargeRefunded:
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return ev, false, err
		}
		if charge.PaymentIntent == nil || charge.PaymentIntent.ID == "" {
			return ev, false, nil
		}
		ev.Type = service.EventChargeRefunded
		ev.ChargeRef = charge.PaymentIntent.ID
		if charge.Refunds != nil && len(charge.Refunds.Data) > 0 {
			ev.RefundRef = charge.Refunds.Data[0].ID
		}

	default:
		return ev, false, nil
	}
	return ev, true, nil
}
