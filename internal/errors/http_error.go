package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
)

// HTTPError represents an error with an associated HTTP status code.
type HTTPError struct {
	Code      int    `json:"-"`
	ErrorCode Code   `json:"error_code"`
	Message   string `json:"message"`
}

func (e *HTTPError) Error() string {
	return e.Message
}

// Write sends e as the JSON body of a response with its status code.
func (e *HTTPError) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Code)
	_ = json.NewEncoder(w).Encode(e)
}

// Helper for common errors
var (
	ErrUnauthorized = func(msg string) *HTTPError {
		return &HTTPError{Code: http.StatusUnauthorized, ErrorCode: CodeUnauthenticated, Message: msg}
	}
)

// ToHTTP maps any error onto the response shape handlers write.
// Errors outside the taxonomy become a 500 without leaking their text.
func ToHTTP(err error) *HTTPError {
	var e *Error
	if !stderrors.As(err, &e) {
		return &HTTPError{Code: http.StatusInternalServerError, ErrorCode: CodeInternal, Message: "internal error"}
	}
	return &HTTPError{Code: statusForKind(e.Kind), ErrorCode: e.Code, Message: e.Message}
}

func statusForKind(k Kind) int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict, KindInvalidState:
		return http.StatusConflict
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
