package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesByCode(t *testing.T) {
	err := Unauthorized("token rejected")

	assert.True(t, Is(err, ErrUnauthorized))
	assert.False(t, Is(err, ErrNotFound))

	wrapped := fmt.Errorf("fetch tags: %w", err)
	assert.True(t, Is(wrapped, ErrUnauthorized))
}

func TestWrap_KeepsCause(t *testing.T) {
	cause := New("connection refused")
	err := Wrap(cause, CodeTransport, "dial subscriptions")

	assert.Equal(t, "dial subscriptions: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrTransport)
}

func TestFromHTTPStatus(t *testing.T) {
	tests := []struct {
		status int
		want   *Error
	}{
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrForbidden},
		{http.StatusNotFound, ErrNotFound},
		{http.StatusBadRequest, ErrValidation},
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusBadGateway, ErrTransport},
		{http.StatusTeapot, ErrTransport},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := FromHTTPStatus(tt.status, "graphql request")
			assert.ErrorIs(t, err, tt.want)
			assert.Contains(t, err.Error(), fmt.Sprintf("status %d", tt.status))
		})
	}
}

func TestCode_HTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, CodeValidation.HTTPStatus())
	assert.Equal(t, http.StatusConflict, CodeStale.HTTPStatus())
	assert.Equal(t, http.StatusBadGateway, CodeTransport.HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, CodeConfig.HTTPStatus())
}
