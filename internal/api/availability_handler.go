package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"parkspace/internal/availability"
	"parkspace/internal/entities"
	apperrors "parkspace/internal/errors"
)

type AvailabilityChecker interface {
	Check(ctx context.Context, resourceID string, start, end time.Time) (availability.Decision, error)
}

type AvailabilityHandler struct {
	service AvailabilityChecker
	log     *zap.Logger
}

func NewAvailabilityHandler(svc AvailabilityChecker, log *zap.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{service: svc, log: log}
}

// Check handles GET /api/resources/{id}/availability?start=&end= (RFC 3339).
func (h *AvailabilityHandler) Check(w http.ResponseWriter, r *http.Request) {
	resourceID := mux.Vars(r)["id"]
	start, err := parseTimeParam(r, "start")
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	end, err := parseTimeParam(r, "end")
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}

	d, err := h.service.Check(r.Context(), resourceID, start, end)
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entities.AvailabilityResponse{
		ResourceID: resourceID,
		Start:      start.UTC(),
		End:        end.UTC(),
		Available:  d.Available,
		ReasonCode: string(d.Reason),
	})
}

func parseTimeParam(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, apperrors.Validation(apperrors.CodeMissingField, name+" is required")
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, apperrors.Validation(apperrors.CodeInvalidInterval, name+" must be RFC 3339")
	}
	return t, nil
}
