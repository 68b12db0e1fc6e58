// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/guestflow/guestflow/internal/journey/orchestrator"
	"github.com/guestflow/guestflow/internal/journey/store"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a generic bad-request error response.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
}

func writeNotFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
}

func writeConflict(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
}

func writeUnauthorized(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
}

func writeInternal(w http.ResponseWriter) {
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

// writeDomainError maps journey errors to HTTP statuses. Lifecycle and
// link violations are conflicts, missing records are 404, unknown
// selections are 400, everything else is a 500 with the detail kept out of
// the response body.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrSessionNotFound),
		errors.Is(err, store.ErrGuestNotFound):
		writeNotFound(w)
	case errors.Is(err, store.ErrNotActive),
		errors.Is(err, store.ErrLinkConflict),
		errors.Is(err, store.ErrAnchorNotFound),
		errors.Is(err, store.ErrAlreadyDispatched):
		writeConflict(w, err)
	case errors.Is(err, orchestrator.ErrUnknownExperience):
		writeError(w, err)
	default:
		writeInternal(w)
	}
}
