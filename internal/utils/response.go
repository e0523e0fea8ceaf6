package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"ms-booking/internal/models"
)

type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func SuccessResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	}
}

func ErrorResponse(message, error string) APIResponse {
	return APIResponse{
		Success:   false,
		Message:   message,
		Error:     error,
		Timestamp: time.Now(),
	}
}

func WriteJSON(w http.ResponseWriter, status int, body interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(body)
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidRequest), errors.Is(err, models.ErrCapacityExceeded):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, models.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, models.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteError renders err in the response envelope. Capacity rejections carry
// the remaining seat count; unclassified errors are not echoed to clients.
func WriteError(w http.ResponseWriter, err error) int {
	status := StatusFor(err)
	resp := ErrorResponse(http.StatusText(status), err.Error())

	switch {
	case errors.Is(err, models.ErrCapacityExceeded):
		resp.Message = "Not enough seats available"
		if remaining, ok := models.RemainingSeats(err); ok {
			resp.Data = map[string]int{"remaining_seats": remaining}
		}
	case errors.Is(err, models.ErrConflict), errors.Is(err, models.ErrStoreUnavailable):
		w.Header().Set("Retry-After", "1")
	case status == http.StatusInternalServerError:
		resp.Error = "internal error"
	}

	WriteJSON(w, status, resp)
	return status
}
