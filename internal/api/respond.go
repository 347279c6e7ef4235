package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	apperrors "parkspace/internal/errors"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto its status and stable code. Only unclassified
// and upstream failures are logged; denials are normal traffic.
func writeError(w http.ResponseWriter, log *zap.Logger, r *http.Request, err error) {
	he := apperrors.ToHTTP(err)
	if he.Code >= http.StatusInternalServerError {
		log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("error_code", string(he.ErrorCode)),
			zap.Error(err),
		)
	}
	he.Write(w)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperrors.Validation(apperrors.CodeMissingField, "invalid request body: "+err.Error())
	}
	return nil
}
