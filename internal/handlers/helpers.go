package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/harmony-svc/orchestrator/internal/models"
)

// RequireMethod validates that the HTTP request uses the specified method.
// Returns true if the method matches, false otherwise (and writes error response).
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// WriteJSON writes a JSON response with the specified status code and data.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteError writes a standard error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, map[string]string{
		"status": "error",
		"error":  message,
	})
}

// WriteDomainError maps domain errors to HTTP status codes: conflicts are
// 409, missing records and an empty queue are 404, validation problems are
// 400 and anything else is a 500 with a generic message.
func WriteDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrConflict):
		WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrNoWork), errors.Is(err, models.ErrNotFound):
		WriteError(w, http.StatusNotFound, err.Error())
	case models.IsValidationError(err):
		WriteError(w, http.StatusBadRequest, err.Error())
	default:
		WriteError(w, http.StatusInternalServerError, models.InternalFailureMessage)
	}
}

// QueryInt reads an integer query parameter, returning fallback when the
// parameter is absent or malformed.
func QueryInt(r *http.Request, name string, fallback int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
