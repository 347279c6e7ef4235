package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

type Middleware = func(http.Handler) http.Handler

type Handlers struct {
	Availability *AvailabilityHandler
	Bookings     *UserBookingHandler
	Jobs         *JobHandler
	Stripe       *StripeWebhookHandler
	Health       *HealthHandler
}

// RouterConfig carries the guards. A nil CreateLimit leaves booking creation unthrottled.
type RouterConfig struct {
	Authenticate Middleware
	CronAuth     Middleware
	CreateLimit  Middleware
}

func NewRouter(h Handlers, cfg RouterConfig) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", h.Health.Live).Methods(http.MethodGet)
	r.HandleFunc("/readyz", h.Health.Ready).Methods(http.MethodGet)

	// Public endpoints
	r.HandleFunc("/api/resources/{id}/availability", h.Availability.Check).Methods(http.MethodGet)
	r.HandleFunc("/api/webhooks/stripe", h.Stripe.HandleWebhook).Methods(http.MethodPost)

	// Renter and owner endpoints
	create := http.Handler(http.HandlerFunc(h.Bookings.CreateBooking))
	if cfg.CreateLimit != nil {
		create = cfg.CreateLimit(create)
	}
	r.Handle("/api/bookings", cfg.Authenticate(create)).Methods(http.MethodPost)

	bookings := r.PathPrefix("/api/bookings").Subrouter()
	bookings.Use(cfg.Authenticate)
	bookings.HandleFunc("/{id}", h.Bookings.GetBooking).Methods(http.MethodGet)
	bookings.HandleFunc("/{id}/payment", h.Bookings.InitiatePayment).Methods(http.MethodPost)
	bookings.HandleFunc("/{id}/cancel", h.Bookings.CancelBooking).Methods(http.MethodPost)

	// Scheduler trigger
	jobs := r.PathPrefix("/api/jobs").Subrouter()
	jobs.Use(cfg.CronAuth)
	jobs.HandleFunc("/expire", h.Jobs.ExpireHolds).Methods(http.MethodPost)

	return r
}
