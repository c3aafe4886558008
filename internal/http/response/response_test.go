package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mapflag/mapflag-client/internal/errors"
	"github.com/mapflag/mapflag-client/internal/logger"
)

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) Body {
	t.Helper()
	var body Body
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestTooManyRequests(t *testing.T) {
	w := httptest.NewRecorder()
	TooManyRequests(w, "slow down", logger.Discard().Logger)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, Body{Status: http.StatusTooManyRequests, Code: "RATE_LIMITED", Message: "slow down"}, decodeBody(t, w))
}

func TestNotFound(t *testing.T) {
	w := httptest.NewRecorder()
	NotFound(w, "no such route", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decodeBody(t, w).Code)
}

func TestHandleError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{"validation", errors.Validation("bad input"), http.StatusBadRequest, "VALIDATION", "bad input"},
		{"stale", errors.Stale("superseded"), http.StatusConflict, "STALE", "superseded"},
		{"wrapped transport", errors.Wrap(errors.New("eof"), errors.CodeTransport, "dial"), http.StatusBadGateway, "TRANSPORT", "dial"},
		{"plain error hides message", errors.New("secret path /root"), http.StatusInternalServerError, "INTERNAL", "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			HandleError(w, tt.err, logger.Discard().Logger)

			assert.Equal(t, tt.wantStatus, w.Code)
			body := decodeBody(t, w)
			assert.Equal(t, tt.wantStatus, body.Status)
			assert.Equal(t, tt.wantCode, body.Code)
			assert.Equal(t, tt.wantMsg, body.Message)
		})
	}
}

func TestHandleError_Details(t *testing.T) {
	w := httptest.NewRecorder()
	HandleError(w, errors.ValidationWithDetails("validation failed", map[string]string{"content": "is required"}), nil)

	body := decodeBody(t, w)
	assert.Equal(t, map[string]any{"content": "is required"}, body.Details)
}
