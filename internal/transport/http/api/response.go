package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Error is the body of every non-2xx JSON response.
type Error struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Warn("write json failed", "err", err)
	}
}

func Success(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, data)
}

func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func Fail(w http.ResponseWriter, status int, code, message, requestID string) {
	WriteJSON(w, status, Error{Code: code, Message: message, RequestID: requestID})
}

func FailWithDetails(w http.ResponseWriter, status int, code, message string, details any, requestID string) {
	WriteJSON(w, status, Error{Code: code, Message: message, Details: details, RequestID: requestID})
}

// Error codes shared by handlers and middleware.
const (
	ErrCodeUnauthorized       = "unauthorized"
	ErrCodeForbidden          = "forbidden"
	ErrCodeInvalidRequest     = "invalid_request"
	ErrCodeValidation         = "validation_failed"
	ErrCodeInvalidCredentials = "invalid_credentials"
	ErrCodeMFARequired        = "mfa_required"
	ErrCodeMFAInvalid         = "mfa_invalid"
	ErrCodeNotFound           = "not_found"
	ErrCodeConflict           = "conflict"
	ErrCodeRateLimited        = "rate_limited"
	ErrCodeInternal           = "internal_error"
	ErrCodeBodyTooLarge       = "body_too_large"
	ErrCodeResetInvalid       = "reset_token_invalid"
	ErrCodeWeakPassword       = "weak_password"
)
