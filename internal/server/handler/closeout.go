package handler

import (
	"context"
	"log/slog"
	"net/http"
)

// CloseOutRunner executes the close-out workflow for one (user, symbol).
// The engine's dispatcher implements it, routing the call through the same
// per-ladder serialization as fill reconciliation.
type CloseOutRunner interface {
	CloseOut(ctx context.Context, userID, symbol string) error
}

// CloseOutHandler triggers the close-out workflow.
type CloseOutHandler struct {
	runner CloseOutRunner
	logger *slog.Logger
}

// NewCloseOutHandler creates a CloseOutHandler.
func NewCloseOutHandler(runner CloseOutRunner, logger *slog.Logger) *CloseOutHandler {
	return &CloseOutHandler{runner: runner, logger: logger}
}

// CloseOut runs the full close-out for (user, symbol): disable trading,
// cancel orders, liquidate, condense history, reset blocks. The call is
// synchronous; a long cancel confirmation keeps the request open.
// POST /api/ladders/{user}/{symbol}/close
func (h *CloseOutHandler) CloseOut(w http.ResponseWriter, r *http.Request) {
	user := r.PathValue("user")
	symbol := r.PathValue("symbol")

	if err := h.runner.CloseOut(r.Context(), user, symbol); err != nil {
		h.logger.ErrorContext(r.Context(), "close-out failed",
			slog.String("user", user),
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err, "close-out failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "closed",
		"user":   user,
		"symbol": symbol,
	})
}
