package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// Denial reasons returned by RiskManager.CanSignal.
const (
	ReasonDailyLossLimit   = "daily loss limit reached"
	ReasonCycleLimit       = "cycle signal limit reached"
	ReasonStateUnavailable = "risk state unavailable"
)

// RiskConfig holds the tunable parameters of the signal throttle.
type RiskConfig struct {
	MaxSignalsPerCycle int
	MaxDailyLoss       decimal.Decimal
	// Location fixes the calendar used for day rollover. Nil means UTC.
	Location *time.Location
}

// Decision is the outcome of a single CanSignal call.
type Decision struct {
	Allowed bool
	Reason  string
	State   domain.RiskState
}

// RiskManager throttles how many opportunities may be signaled per scan cycle
// and blocks signaling for the rest of the trading day once realized losses
// reach the configured limit. Day state is persisted through a
// domain.RiskStateStore; the cycle counter lives in memory.
type RiskManager struct {
	store  domain.RiskStateStore
	audit  domain.AuditStore
	cfg    RiskConfig
	loc    *time.Location
	now    func() time.Time
	logger *slog.Logger

	mu           sync.Mutex
	cycleSignals int
}

// NewRiskManager creates a RiskManager backed by store.
func NewRiskManager(store domain.RiskStateStore, cfg RiskConfig, logger *slog.Logger) *RiskManager {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &RiskManager{
		store:  store,
		cfg:    cfg,
		loc:    loc,
		now:    time.Now,
		logger: logger.With(slog.String("component", "risk_manager")),
	}
}

// SetAudit makes RecordPnL append a pnl_recorded entry to audit.
func (m *RiskManager) SetAudit(audit domain.AuditStore) {
	m.audit = audit
}

// BeginCycle resets the per-cycle signal counter. The scan service calls it
// at the start of every cycle.
func (m *RiskManager) BeginCycle() {
	m.mu.Lock()
	m.cycleSignals = 0
	m.mu.Unlock()
}

// CanSignal decides whether one more opportunity may be signaled. When it is
// allowed the signal is counted against the current cycle. A store failure
// is returned as an error together with a denial.
func (m *RiskManager) CanSignal(ctx context.Context) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, err := m.rollDay(ctx)
	if err != nil {
		return Decision{Reason: ReasonStateUnavailable}, err
	}

	if m.lossLimitReached(state) {
		m.logger.WarnContext(ctx, "daily loss limit reached",
			slog.String("date", state.Date),
			slog.String("realized_pnl", state.RealizedPnL.String()),
			slog.String("max_daily_loss", m.cfg.MaxDailyLoss.String()),
		)
		return Decision{Reason: ReasonDailyLossLimit, State: state}, nil
	}
	if m.cycleSignals >= m.cfg.MaxSignalsPerCycle {
		return Decision{Reason: ReasonCycleLimit, State: state}, nil
	}

	m.cycleSignals++
	return Decision{Allowed: true, State: state}, nil
}

// RecordPnL adds delta to today's realized P&L, rolling the day first if
// needed, and returns the updated state.
func (m *RiskManager) RecordPnL(ctx context.Context, delta decimal.Decimal) (domain.RiskState, error) {
	today := m.today()
	state, err := m.store.Update(ctx, func(s *domain.RiskState) error {
		s.RollTo(today)
		s.RealizedPnL = s.RealizedPnL.Add(delta)
		return nil
	})
	if err != nil {
		return domain.RiskState{}, fmt.Errorf("risk_manager: record pnl: %w", err)
	}
	m.logger.InfoContext(ctx, "realized pnl recorded",
		slog.String("date", state.Date),
		slog.String("delta", delta.String()),
		slog.String("realized_pnl", state.RealizedPnL.String()),
	)
	if m.audit != nil {
		if err := m.audit.Log(ctx, domain.AuditPnLRecorded, map[string]any{
			"date":         state.Date,
			"delta":        delta.String(),
			"realized_pnl": state.RealizedPnL.String(),
		}); err != nil {
			m.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
		}
	}
	return state, nil
}

// Status returns a snapshot of the day state and cycle usage.
func (m *RiskManager) Status(ctx context.Context) (domain.RiskStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, err := m.rollDay(ctx)
	if err != nil {
		return domain.RiskStatus{}, err
	}
	mode := domain.RiskModeActive
	if m.lossLimitReached(state) {
		mode = domain.RiskModeBlocked
	}
	return domain.RiskStatus{
		Date:         state.Date,
		RealizedPnL:  state.RealizedPnL,
		MaxDailyLoss: m.cfg.MaxDailyLoss,
		Mode:         mode,
		CycleSignals: m.cycleSignals,
		CycleLimit:   m.cfg.MaxSignalsPerCycle,
		CheckedAt:    m.now(),
	}, nil
}

func (m *RiskManager) rollDay(ctx context.Context) (domain.RiskState, error) {
	today := m.today()
	state, err := m.store.Update(ctx, func(s *domain.RiskState) error {
		if s.RollTo(today) {
			m.logger.InfoContext(ctx, "risk day rolled over", slog.String("date", today))
		}
		return nil
	})
	if err != nil {
		return domain.RiskState{}, fmt.Errorf("risk_manager: load state: %w", err)
	}
	return state, nil
}

func (m *RiskManager) lossLimitReached(state domain.RiskState) bool {
	return state.RealizedPnL.LessThanOrEqual(m.cfg.MaxDailyLoss.Neg())
}

func (m *RiskManager) today() string {
	return m.now().In(m.loc).Format(domain.DateLayout)
}
