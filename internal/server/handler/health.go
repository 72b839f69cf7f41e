package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger is a dependency the health check probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CycleInfo reports when the scanner last completed a cycle.
type CycleInfo interface {
	LastCycleAt() (time.Time, bool)
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	mode      string
	startedAt time.Time
	deps      map[string]Pinger
	cycles    CycleInfo
	logger    *slog.Logger
}

// NewHealthHandler creates a HealthHandler. deps and cycles may be nil.
func NewHealthHandler(mode string, deps map[string]Pinger, cycles CycleInfo, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		mode:      mode,
		startedAt: time.Now().UTC(),
		deps:      deps,
		cycles:    cycles,
		logger:    logger,
	}
}

// HealthCheck reports liveness and the state of each backing service. Any
// failing dependency turns the response into a 503.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	checks := make(map[string]string, len(h.deps))
	for name, p := range h.deps {
		if err := p.Ping(ctx); err != nil {
			h.logger.WarnContext(ctx, "handler: health dependency failed",
				slog.String("dependency", name),
				slog.String("error", err.Error()),
			)
			checks[name] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	body := map[string]any{
		"status":         status,
		"mode":           h.mode,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"checks":         checks,
	}
	if h.cycles != nil {
		if at, ok := h.cycles.LastCycleAt(); ok {
			body["last_cycle_at"] = at.UTC().Format(time.RFC3339)
		}
	}
	writeJSON(w, code, body)
}
