// Package handler holds the HTTP handlers for the API server.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"blocktrader/internal/domain"
)

// writeJSON marshals v and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps domain sentinel errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "already exists")
	case errors.Is(err, domain.ErrInvalidLadder):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrLadderActive):
		writeError(w, http.StatusConflict, "ladder has live orders, close out first")
	case errors.Is(err, domain.ErrLockHeld):
		writeError(w, http.StatusConflict, "operation already in progress")
	case errors.Is(err, domain.ErrOrdersStillOpen):
		writeError(w, http.StatusConflict, "open orders did not clear, retry")
	default:
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

// decodeJSON decodes the request body into dst, rejecting unknown fields so
// typos in request payloads fail loudly instead of being silently dropped.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
