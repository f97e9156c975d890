// Package http exposes the REST API: turn handling, proposal confirmation,
// and session lifecycle.
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/steward-labs/steward/internal/domain"
	"github.com/steward-labs/steward/internal/resilience"
)

const maxRequestBodySize = 1 << 20 // 1 MB

// readJSON decodes a JSON request body with a size limit.
func readJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		if err.Error() == "http: request body too large" {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		} else {
			writeError(w, http.StatusBadRequest, "invalid request body")
		}
		return v, false
	}
	return v, true
}

// urlParam is a short alias for chi.URLParam.
func urlParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func writeDomainError(w http.ResponseWriter, err error, fallbackMsg string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, fallbackMsg)
	// Ownership violations deliberately look identical to not-found so a
	// probing session learns nothing about other sessions' proposals.
	case errors.Is(err, domain.ErrAccessDenied):
		writeError(w, http.StatusNotFound, fallbackMsg)
	case errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "action is not pending")
	case errors.Is(err, domain.ErrSessionClosed):
		writeError(w, http.StatusGone, "session is closed")
	case errors.Is(err, domain.ErrBudgetExceeded):
		writeError(w, http.StatusTooManyRequests, "per-turn action limit reached")
	case errors.Is(err, domain.ErrInvalidInput):
		msg := strings.TrimSuffix(err.Error(), ": "+domain.ErrInvalidInput.Error())
		writeError(w, http.StatusBadRequest, msg)
	case errors.Is(err, resilience.ErrCircuitOpen):
		writeError(w, http.StatusServiceUnavailable, "temporarily unavailable, try again shortly")
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, "resource was modified by another request")
	default:
		slog.Error("unhandled domain error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
