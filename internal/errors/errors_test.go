package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodeOfWrapped(t *testing.T) {
	err := fmt.Errorf("create booking: %w", Conflict(CodeBookingOverlap))
	require.Equal(t, CodeBookingOverlap, CodeOf(err))
	require.Equal(t, KindConflict, KindOf(err))
}

func TestCodeOfUnclassified(t *testing.T) {
	require.Equal(t, Code(""), CodeOf(fmt.Errorf("boom")))
	require.Equal(t, KindInternal, KindOf(fmt.Errorf("boom")))
}

func TestToHTTP(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   Code
	}{
		{Validation(CodeInvalidInterval, "bad"), http.StatusBadRequest, CodeInvalidInterval},
		{Conflict(CodeBlackout), http.StatusConflict, CodeBlackout},
		{Forbidden("no"), http.StatusForbidden, CodeForbidden},
		{NotFound("missing"), http.StatusNotFound, CodeNotFound},
		{Upstream(CodeProcessorFailure, "stripe", fmt.Errorf("timeout")), http.StatusBadGateway, CodeProcessorFailure},
		{fmt.Errorf("raw"), http.StatusInternalServerError, CodeInternal},
	}
	for _, c := range cases {
		h := ToHTTP(c.err)
		require.Equal(t, c.status, h.Code, c.err.Error())
		require.Equal(t, c.code, h.ErrorCode)
	}
}

func TestUpstreamUnwraps(t *testing.T) {
	cause := fmt.Errorf("dial tcp: refused")
	err := Upstream(CodeStoreUnavailable, "db", cause)
	require.ErrorIs(t, err, cause)
}
