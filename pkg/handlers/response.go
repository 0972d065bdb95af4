package handlers

import (
	"encoding/json"
	"net/http"
)

// ErrorType is the `error.type` value in the admin/provider error envelope.
type ErrorType string

const (
	ErrorTypeAPI        ErrorType = "api_error"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeValidation ErrorType = "validation_error"
	ErrorTypeRateLimit  ErrorType = "rate_limited"
)

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Message string    `json:"message"`
	Type    ErrorType `json:"type"`
}

// WriteError writes the `{error: {message, type}}` envelope required by §6
// of the admin and provider-compatible error shapes.
func WriteError(w http.ResponseWriter, statusCode int, errType ErrorType, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(errorEnvelope{Error: errorBody{Message: message, Type: errType}})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}
