// Package httputil translates domain results and errors into HTTP exactly
// once, at the outermost boundary.
package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "keyline/pkg/domain-errors"
)

// errorResponse is the wire shape of every error the API returns. Internal
// detail never crosses this boundary; the message is the domain error's
// caller-safe message only.
type errorResponse struct {
	Error string `json:"error"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Decode parses the request body into T.
func Decode[T any](r *http.Request) (T, error) {
	var v T
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return v, dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed request body")
	}
	return v, nil
}

// WriteError maps a domain error to its HTTP status and writes the
// caller-safe message. Unknown errors are masked as a generic 500.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := statusOf(code)

	message := "internal error"
	var dErr *dErrors.Error
	if status < http.StatusInternalServerError {
		// Client errors carry their own caller-safe message.
		if ok := asDomainError(err, &dErr); ok {
			message = dErr.Message
		}
	}

	WriteJSON(w, status, errorResponse{Error: message})
}

func statusOf(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeInvalidInput, dErrors.CodeValidation,
		dErrors.CodeOtpInvalid, dErrors.CodeOtpLockedOut:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized, dErrors.CodeInvalidCredentials:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden, dErrors.CodeMethodDisabled, dErrors.CodeRegistrationDisabled:
		return http.StatusForbidden
	case dErrors.CodeNotFound, dErrors.CodeTenantNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeTenantContextMissing, dErrors.CodeInternal, dErrors.CodeUnavailable:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func asDomainError(err error, target **dErrors.Error) bool {
	for err != nil {
		if e, ok := err.(*dErrors.Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
