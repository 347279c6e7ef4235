package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/account"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/refund"
	"go.uber.org/zap"
)

// minCheckoutExpiry is the shortest expires_at Stripe accepts for a session.
const minCheckoutExpiry = 30 * time.Minute

type StripeConfig struct {
	SecretKey   string
	Timeout     time.Duration
	ReadRetries uint
	SuccessURL  string
	CancelURL   string
	// BackendURL points the client at a stripe-mock or test server when set.
	BackendURL string
}

// StripeService is the PaymentProcessor backed by Stripe Checkout and Connect.
type StripeService struct {
	cfg StripeConfig
	log *zap.Logger
}

func NewStripeService(cfg StripeConfig, log *zap.Logger) *StripeService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.ReadRetries == 0 {
		cfg.ReadRetries = 3
	}
	stripe.Key = cfg.SecretKey
	// Retries are decided here, per call kind, never by the SDK.
	backendCfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: cfg.Timeout},
		MaxNetworkRetries: stripe.Int64(0),
	}
	if cfg.BackendURL != "" {
		backendCfg.URL = stripe.String(cfg.BackendURL)
	}
	stripe.SetBackend(stripe.APIBackend, stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg))
	return &StripeService{cfg: cfg, log: log}
}

func (s *StripeService) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(req.BookingID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(req.Split.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("Parking booking " + req.BookingID),
					},
					UnitAmount: stripe.Int64(req.Split.Total),
				},
				Quantity: stripe.Int64(1),
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			ApplicationFeeAmount: stripe.Int64(req.Split.PlatformFee),
			TransferData: &stripe.CheckoutSessionPaymentIntentDataTransferDataParams{
				Destination: stripe.String(req.Destination),
			},
			Metadata: map[string]string{"booking_id": req.BookingID},
		},
		SuccessURL: stripe.String(s.cfg.SuccessURL + "?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(s.cfg.CancelURL + "?session_id={CHECKOUT_SESSION_ID}"),
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	if !req.ExpiresAt.IsZero() && time.Until(req.ExpiresAt) >= minCheckoutExpiry {
		params.ExpiresAt = stripe.Int64(req.ExpiresAt.Unix())
	}
	params.AddMetadata("booking_id", req.BookingID)
	params.Context = ctx

	sess, err := session.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create checkout session: %w", err)
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// PayoutReady reports whether the connected account can receive transfers.
// It is a read, so transient failures are retried with backoff.
func (s *StripeService) PayoutReady(ctx context.Context, accountID string) (bool, error) {
	acct, err := backoff.Retry(ctx, func() (*stripe.Account, error) {
		params := &stripe.AccountParams{}
		params.Context = ctx
		a, err := account.GetByID(accountID, params)
		if err != nil && !retryable(err) {
			return nil, backoff.Permanent(err)
		}
		return a, err
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(s.cfg.ReadRetries))
	if err != nil {
		return false, fmt.Errorf("stripe: get account %s: %w", accountID, err)
	}
	return acct.ChargesEnabled && acct.PayoutsEnabled && acct.DetailsSubmitted, nil
}

// Refund is attempted once; the idempotency key makes a later retry safe.
func (s *StripeService) Refund(ctx context.Context, paymentRef, idempotencyKey string) (string, error) {
	params := &stripe.RefundParams{
		PaymentIntent:        stripe.String(paymentRef),
		ReverseTransfer:      stripe.Bool(true),
		RefundApplicationFee: stripe.Bool(true),
	}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)

	r, err := refund.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe: refund %s: %w", paymentRef, err)
	}
	return r.ID, nil
}

func (s *StripeService) ExpireSession(ctx context.Context, sessionID string) error {
	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx
	if _, err := session.Expire(sessionID, params); err != nil {
		return fmt.Errorf("stripe: expire session %s: %w", sessionID, err)
	}
	return nil
}

// retryable: transport errors and 429/5xx responses.
func retryable(err error) bool {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return true
	}
	return se.HTTPStatusCode == http.StatusTooManyRequests || se.HTTPStatusCode >= http.StatusInternalServerError
}
