package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// RiskController is what the risk endpoints need from the risk manager.
type RiskController interface {
	Status(ctx context.Context) (domain.RiskStatus, error)
	RecordPnL(ctx context.Context, delta decimal.Decimal) (domain.RiskState, error)
}

// RiskHandler exposes the risk manager's state and its settlement feedback.
type RiskHandler struct {
	risk   RiskController
	logger *slog.Logger
}

// NewRiskHandler creates a RiskHandler.
func NewRiskHandler(risk RiskController, logger *slog.Logger) *RiskHandler {
	return &RiskHandler{risk: risk, logger: logger}
}

// Status returns the current day state and cycle usage.
// GET /api/risk
func (h *RiskHandler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.risk.Status(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: risk status failed", slog.String("error", err.Error()))
		writeError(w, http.StatusServiceUnavailable, "risk state unavailable")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type recordPnLRequest struct {
	Delta *decimal.Decimal `json:"delta"`
}

// RecordPnL adds a realized profit (positive) or loss (negative) to today's
// total.
// POST /api/risk/pnl {"delta": "-12.5"}
func (h *RiskHandler) RecordPnL(w http.ResponseWriter, r *http.Request) {
	var req recordPnLRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Delta == nil {
		writeError(w, http.StatusBadRequest, "delta is required")
		return
	}

	st, err := h.risk.RecordPnL(r.Context(), *req.Delta)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: record pnl failed", slog.String("error", err.Error()))
		writeError(w, http.StatusServiceUnavailable, "risk state unavailable")
		return
	}
	writeJSON(w, http.StatusOK, st)
}
