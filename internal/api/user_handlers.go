package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"parkspace/internal/auth"
	"parkspace/internal/db"
	"parkspace/internal/entities"
	apperrors "parkspace/internal/errors"
	"parkspace/internal/service"
)

// Bookings is the lifecycle surface the renter and owner endpoints drive.
type Bookings interface {
	Create(ctx context.Context, req service.CreateBookingRequest) (*db.Booking, error)
	Get(ctx context.Context, id, callerID string) (*db.Booking, error)
	InitiatePayment(ctx context.Context, id, callerID string) (*service.CheckoutSession, error)
	Cancel(ctx context.Context, id, callerID string, actor db.Actor) (*service.CancelResult, error)
}

type UserBookingHandler struct {
	service Bookings
	log     *zap.Logger
}

func NewUserBookingHandler(svc Bookings, log *zap.Logger) *UserBookingHandler {
	return &UserBookingHandler{service: svc, log: log}
}

func (h *UserBookingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	callerID, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req entities.CreateBookingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.log, r, err)
		return
	}

	b, err := h.service.Create(r.Context(), service.CreateBookingRequest{
		ResourceID:  req.ResourceID,
		RenterID:    callerID,
		StartUTC:    req.StartUTC,
		EndUTC:      req.EndUTC,
		QuotedTotal: req.QuotedTotal,
		Currency:    req.Currency,
		RenterEmail: req.RenterEmail,
		RenterPhone: req.RenterPhone,
	})
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entities.CreateBookingResponse{BookingID: b.ID})
}

func (h *UserBookingHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
	callerID, ok := h.caller(w, r)
	if !ok {
		return
	}
	b, err := h.service.Get(r.Context(), mux.Vars(r)["id"], callerID)
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entities.NewBookingResponse(b))
}

func (h *UserBookingHandler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	callerID, ok := h.caller(w, r)
	if !ok {
		return
	}
	sess, err := h.service.InitiatePayment(r.Context(), mux.Vars(r)["id"], callerID)
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *UserBookingHandler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	callerID, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req entities.CancelBookingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.log, r, err)
		return
	}
	res, err := h.service.Cancel(r.Context(), mux.Vars(r)["id"], callerID, db.Actor(req.Actor))
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *UserBookingHandler) caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := auth.UserID(r.Context())
	if !ok {
		apperrors.ErrUnauthorized("authentication required").Write(w)
	}
	return id, ok
}
