package api

import (
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/mapflag/mapflag-client/internal/errors"
)

// APIError is the error body of every failed request:
//
//	{"status": 409, "code": "STALE", "message": "...", "details": {...}}
type APIError struct { //nolint:revive // the name mirrors huma's own error model
	Status  int    `json:"status" doc:"HTTP status code"`
	Code    string `json:"code" doc:"Machine-readable error code"`
	Message string `json:"message" doc:"Human-readable error message"`
	Details any    `json:"details,omitempty" doc:"Additional error details"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}

// GetStatus implements huma.StatusError.
func (e *APIError) GetStatus() int {
	return e.Status
}

// ContentType implements huma.ContentTypeFilter.
func (e *APIError) ContentType(_ string) string {
	return "application/json"
}

// statusCodes names the statuses huma produces on its own, such as 422 for
// schema violations.
var statusCodes = map[int]domainerrors.Code{
	http.StatusBadRequest:          domainerrors.CodeValidation,
	http.StatusUnprocessableEntity: domainerrors.CodeValidation,
	http.StatusUnauthorized:        domainerrors.CodeUnauthorized,
	http.StatusForbidden:           domainerrors.CodeForbidden,
	http.StatusNotFound:            domainerrors.CodeNotFound,
	http.StatusConflict:            domainerrors.CodeStale,
	http.StatusTooManyRequests:     domainerrors.CodeRateLimited,
}

// RegisterErrorHandler makes huma render errors as APIError. Call it before
// creating the huma.API.
func RegisterErrorHandler() {
	huma.NewError = newAPIError
}

func newAPIError(status int, message string, errs ...error) huma.StatusError {
	for _, err := range errs {
		var de *domainerrors.Error
		if errors.As(err, &de) {
			return &APIError{
				Status:  de.HTTPStatus(),
				Code:    string(de.Code),
				Message: de.Error(),
				Details: de.Details,
			}
		}
	}

	code, ok := statusCodes[status]
	if !ok {
		code = domainerrors.CodeInternal
	}
	out := &APIError{Status: status, Code: string(code), Message: message}

	// Schema failures arrive as huma.ErrorDetail values; surface them as
	// location -> message like domain validation errors do.
	details := map[string]string{}
	for _, err := range errs {
		var ed *huma.ErrorDetail
		if errors.As(err, &ed) && ed.Location != "" {
			details[ed.Location] = ed.Message
		}
	}
	if len(details) > 0 {
		out.Details = details
	}
	return out
}

// apiError converts a service error into a huma.StatusError carrying the
// domain status. Unclassified errors become a 500 without leaking their text.
func apiError(err error) error {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	return huma.NewError(http.StatusInternalServerError, "internal error", err)
}
