package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/codigix/nobal-casting-sub004/pkg/apperrors"
)

// ApiResponse is the envelope of every successful API response.
type ApiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// writeSuccess wraps data in the success envelope.
func writeSuccess(w http.ResponseWriter, logger *zap.Logger, data any) {
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: data}); err != nil {
		logger.Error("Failed to write response", zap.Error(err))
	}
}

// writeServiceError maps a service error onto a status code.
// Validation errors echo their message; unexpected errors get a generic one.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, errorCode string, err error) {
	status := http.StatusInternalServerError
	code := errorCode
	message := "Internal server error"

	switch {
	case errors.Is(err, apperrors.ErrInvalidLevel),
		errors.Is(err, apperrors.ErrInvalidDate),
		errors.Is(err, apperrors.ErrInvalidArgument):
		status = http.StatusBadRequest
		code = "invalid_request"
		message = err.Error()
	case errors.Is(err, apperrors.ErrNotFound):
		status = http.StatusNotFound
		code = "not_found"
		message = err.Error()
	}

	if status == http.StatusInternalServerError {
		logger.Error("Request failed", zap.String("error_code", errorCode), zap.Error(err))
	}
	if err := ErrorResponse(w, status, code, message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}
