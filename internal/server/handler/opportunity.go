package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/alanyoungcy/arbscanner/internal/report"
)

// OpportunityHandler serves the latest report and the signal history.
type OpportunityHandler struct {
	reportPath string
	history    domain.SignalHistory
	logger     *slog.Logger
}

// NewOpportunityHandler creates an OpportunityHandler. history may be nil,
// in which case the recent endpoint answers 501.
func NewOpportunityHandler(reportPath string, history domain.SignalHistory, logger *slog.Logger) *OpportunityHandler {
	return &OpportunityHandler{reportPath: reportPath, history: history, logger: logger}
}

// Latest returns the report written by the most recent cycle.
// GET /api/opportunities/latest?top=10
func (h *OpportunityHandler) Latest(w http.ResponseWriter, r *http.Request) {
	rep, err := report.LoadLatest(h.reportPath)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no report yet")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: load report failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load report")
		return
	}
	if v := r.URL.Query().Get("top"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && n < len(rep.Opportunities) {
			rep.Opportunities = rep.Opportunities[:n]
		}
	}
	if rep.Opportunities == nil {
		rep.Opportunities = []domain.Opportunity{}
	}
	writeJSON(w, http.StatusOK, rep)
}

type recentSignalsResponse struct {
	Signals []domain.Signal `json:"signals"`
}

// Recent returns the most recent gated signals, newest first.
// GET /api/opportunities/recent?limit=50&status=accepted
func (h *OpportunityHandler) Recent(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusNotImplemented, "signal history not configured")
		return
	}
	status := domain.SignalStatus(r.URL.Query().Get("status"))
	if status != "" && status != domain.SignalAccepted && status != domain.SignalRejected {
		writeError(w, http.StatusBadRequest, "status must be accepted or rejected")
		return
	}

	signals, err := h.history.ListRecent(r.Context(), queryLimit(r, 50, 500))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list signals failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list signals")
		return
	}

	out := make([]domain.Signal, 0, len(signals))
	for _, s := range signals {
		if status == "" || s.Status == status {
			out = append(out, s)
		}
	}
	writeJSON(w, http.StatusOK, recentSignalsResponse{Signals: out})
}
