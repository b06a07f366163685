package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAPIError_UnwrapsToSentinel(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusNotFound, ErrNotFound},
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusBadRequest, ErrValidation},
		{http.StatusOK, ErrValidation},
	}
	for _, c := range cases {
		err := fmt.Errorf("wrapped: %w", &APIError{Status: c.status, Message: "m"})
		require.ErrorIs(t, err, c.want, "status %d", c.status)
	}
}

func TestAPIError_ServerErrorHasNoSentinel(t *testing.T) {
	err := &APIError{Status: http.StatusBadGateway}
	require.Nil(t, errors.Unwrap(err))
	require.Equal(t, "api: status 502", err.Error())
}
