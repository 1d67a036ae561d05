package handler

import (
	"log/slog"
	"net/http"

	"blocktrader/internal/domain"
	"blocktrader/internal/service"
)

// LadderHandler serves the ladder lifecycle endpoints.
type LadderHandler struct {
	ladders *service.LadderService
	stats   *service.StatsService
	logger  *slog.Logger
}

// NewLadderHandler creates a LadderHandler.
func NewLadderHandler(ladders *service.LadderService, stats *service.StatsService, logger *slog.Logger) *LadderHandler {
	return &LadderHandler{ladders: ladders, stats: stats, logger: logger}
}

// ladderRequest is the request body for creating or updating a ladder.
type ladderRequest struct {
	UserID         string  `json:"user_id"`
	Symbol         string  `json:"symbol"`
	SharesPerBlock float64 `json:"shares_per_block"`
	MaxShares      float64 `json:"max_shares"`
	BuyPct         float64 `json:"buy_pct"`
	SellPct        float64 `json:"sell_pct"`
	StopLossPct    float64 `json:"stop_loss_pct"`
}

func (req ladderRequest) toDomain() domain.Ladder {
	return domain.Ladder{
		UserID:         req.UserID,
		Symbol:         req.Symbol,
		SharesPerBlock: req.SharesPerBlock,
		MaxShares:      req.MaxShares,
		BuyPct:         req.BuyPct,
		SellPct:        req.SellPct,
		StopLossPct:    req.StopLossPct,
	}
}

type ladderResponse struct {
	ID             string  `json:"id"`
	UserID         string  `json:"user_id"`
	Symbol         string  `json:"symbol"`
	SharesPerBlock float64 `json:"shares_per_block"`
	MaxShares      float64 `json:"max_shares"`
	BuyPct         float64 `json:"buy_pct"`
	SellPct        float64 `json:"sell_pct"`
	StopLossPct    float64 `json:"stop_loss_pct"`
	BlocksCreated  bool    `json:"blocks_created"`
}

func toLadderResponse(l domain.Ladder) ladderResponse {
	return ladderResponse{
		ID:             l.ID,
		UserID:         l.UserID,
		Symbol:         l.Symbol,
		SharesPerBlock: l.SharesPerBlock,
		MaxShares:      l.MaxShares,
		BuyPct:         l.BuyPct,
		SellPct:        l.SellPct,
		StopLossPct:    l.StopLossPct,
		BlocksCreated:  l.BlocksCreated,
	}
}

// CreateLadder creates a ladder and its block batch.
// POST /api/ladders
func (h *LadderHandler) CreateLadder(w http.ResponseWriter, r *http.Request) {
	var req ladderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.ladders.Setup(r.Context(), req.toDomain())
	if err != nil {
		writeDomainError(w, err, "failed to create ladder")
		return
	}
	writeJSON(w, http.StatusCreated, toLadderResponse(created))
}

// GetLadder returns a single ladder.
// GET /api/ladders/{user}/{symbol}
func (h *LadderHandler) GetLadder(w http.ResponseWriter, r *http.Request) {
	lad, err := h.ladders.Get(r.Context(), r.PathValue("user"), r.PathValue("symbol"))
	if err != nil {
		writeDomainError(w, err, "failed to load ladder")
		return
	}
	writeJSON(w, http.StatusOK, toLadderResponse(lad))
}

// UpdateLadder changes a ladder's parameters.
// PUT /api/ladders/{user}/{symbol}
func (h *LadderHandler) UpdateLadder(w http.ResponseWriter, r *http.Request) {
	var req ladderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.UserID = r.PathValue("user")
	req.Symbol = r.PathValue("symbol")

	updated, err := h.ladders.UpdateParameters(r.Context(), req.toDomain())
	if err != nil {
		writeDomainError(w, err, "failed to update ladder")
		return
	}
	writeJSON(w, http.StatusOK, toLadderResponse(updated))
}

// DeleteLadder tears down an idle ladder.
// DELETE /api/ladders/{user}/{symbol}
func (h *LadderHandler) DeleteLadder(w http.ResponseWriter, r *http.Request) {
	if err := h.ladders.Delete(r.Context(), r.PathValue("user"), r.PathValue("symbol")); err != nil {
		writeDomainError(w, err, "failed to delete ladder")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListBlocks returns the ladder's blocks ordered by buy price.
// GET /api/ladders/{user}/{symbol}/blocks
func (h *LadderHandler) ListBlocks(w http.ResponseWriter, r *http.Request) {
	blocks, err := h.ladders.ListBlocks(r.Context(), r.PathValue("user"), r.PathValue("symbol"))
	if err != nil {
		writeDomainError(w, err, "failed to list blocks")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"blocks": blocks})
}

// GetStats returns the symbol's realized-profit summary.
// GET /api/ladders/{user}/{symbol}/stats
func (h *LadderHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.SymbolStats(r.Context(), r.PathValue("user"), r.PathValue("symbol"))
	if err != nil {
		writeDomainError(w, err, "failed to compute stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
