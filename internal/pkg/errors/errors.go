package errors

import (
	"encoding/json"
	"net/http"
)

type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Code    string      `json:"code"`
	Details interface{} `json:"details,omitempty"`
}

// Codes are part of the public API contract; clients match on them.
const (
	ErrCodeInvalidInput          = "invalid_input"
	ErrCodeUnauthorized          = "unauthorized"
	ErrCodeInvalidCredential     = "invalid_credential"
	ErrCodeForbidden             = "forbidden"
	ErrCodeNotFound              = "not_found"
	ErrCodeCreationLimitExceeded = "creation_limit_exceeded"
	ErrCodeRateLimitExceeded     = "rate_limit_exceeded"
	ErrCodeInternal              = "internal_error"
)

func WriteError(w http.ResponseWriter, status int, code, message string, details interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    code,
		Details: details,
	})
}

func WriteJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
