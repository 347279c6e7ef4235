package api

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"parkspace/internal/entities"
	apperrors "parkspace/internal/errors"
)

type HoldSweeper interface {
	ExpireStaleHolds(ctx context.Context) (int, error)
}

type JobHandler struct {
	jobs HoldSweeper
	log  *zap.Logger
}

func NewJobHandler(jobs HoldSweeper, log *zap.Logger) *JobHandler {
	return &JobHandler{jobs: jobs, log: log}
}

// ExpireHolds is the trigger for an external scheduler. It takes no body.
func (h *JobHandler) ExpireHolds(w http.ResponseWriter, r *http.Request) {
	n, err := h.jobs.ExpireStaleHolds(r.Context())
	if err != nil {
		writeError(w, h.log, r, apperrors.Upstream(apperrors.CodeStoreUnavailable, "expire stale holds", err))
		return
	}
	writeJSON(w, http.StatusOK, entities.ExpireHoldsResponse{Expired: n})
}
