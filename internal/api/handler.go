// Package api provides HTTP handlers for the sunbrief service.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/ashureev/sunbrief/internal/domain"
)

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// Envelope writes a result envelope with a status code derived from its kind.
func Envelope(w http.ResponseWriter, result domain.Result) {
	JSON(w, StatusFor(result), result)
}

// StatusFor maps an envelope onto an HTTP status code.
func StatusFor(result domain.Result) int {
	if result.OK() {
		return http.StatusOK
	}
	switch result.Kind {
	case domain.KindAuthRequired:
		return http.StatusUnauthorized
	case domain.KindInvalidCode:
		return http.StatusBadRequest
	case domain.KindDataIncomplete:
		return http.StatusUnprocessableEntity
	case domain.KindTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
