package handlers

import (
	"encoding/json"
	"net/http"
)

// APIError is the structured error payload.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return e.Message
}

// API error codes.
const (
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeRateLimit     = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// ErrorResponse is the error response envelope.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

// SuccessResponse is the generic success envelope.
type SuccessResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

// RespondJSON sends a JSON response with the given status code.
func RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		}
	}
}

// RespondError sends a JSON error response.
func RespondError(w http.ResponseWriter, status int, code, message string) {
	RespondJSON(w, status, ErrorResponse{
		Error: &APIError{
			Code:    code,
			Message: message,
		},
	})
}

// RespondSuccess sends a 200 success envelope.
func RespondSuccess(w http.ResponseWriter, data any) {
	RespondJSON(w, http.StatusOK, SuccessResponse{
		Success: true,
		Data:    data,
	})
}

// RespondBadRequest sends a 400 Bad Request response.
func RespondBadRequest(w http.ResponseWriter, message string) {
	RespondError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// RespondNotFound sends a 404 Not Found response.
func RespondNotFound(w http.ResponseWriter, message string) {
	if message == "" {
		message = "Resource not found"
	}
	RespondError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// RespondInternalError sends a 500 Internal Server Error response.
func RespondInternalError(w http.ResponseWriter, message string) {
	if message == "" {
		message = "An internal error occurred"
	}
	RespondError(w, http.StatusInternalServerError, ErrCodeInternalError, message)
}
