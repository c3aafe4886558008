// Package response writes JSON error bodies for requests rejected before they reach
// an API operation, in the same shape the operations use.
package response

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/mapflag/mapflag-client/internal/errors"
)

// Body is the error document returned to clients.
type Body struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// JSON writes v with the given status code.
func JSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil && logger != nil {
		logger.Error("Failed to encode JSON response", "error", err)
	}
}

// Error writes a coded error response.
func Error(w http.ResponseWriter, status int, code errors.Code, message string, logger *slog.Logger) {
	JSON(w, status, Body{Status: status, Code: string(code), Message: message}, logger)
}

// TooManyRequests writes a 429 response.
func TooManyRequests(w http.ResponseWriter, message string, logger *slog.Logger) {
	Error(w, http.StatusTooManyRequests, errors.CodeRateLimited, message, logger)
}

// NotFound writes a 404 response.
func NotFound(w http.ResponseWriter, message string, logger *slog.Logger) {
	Error(w, http.StatusNotFound, errors.CodeNotFound, message, logger)
}

// HandleError writes the response for err. Domain errors keep their code and
// status; anything else becomes a 500 without leaking the message.
func HandleError(w http.ResponseWriter, err error, logger *slog.Logger) {
	var domainErr *errors.Error
	if errors.As(err, &domainErr) {
		JSON(w, domainErr.HTTPStatus(), Body{
			Status:  domainErr.HTTPStatus(),
			Code:    string(domainErr.Code),
			Message: domainErr.Message,
			Details: domainErr.Details,
		}, logger)
		return
	}

	if logger != nil {
		logger.Error("Unhandled error", "error", err)
	}
	Error(w, http.StatusInternalServerError, errors.CodeInternal, "internal error", logger)
}
