package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar-date format used for persisted risk state.
const DateLayout = "2006-01-02"

// RiskState is the durable day-scoped record backing the risk manager.
// RealizedPnL is signed and expressed in the reference currency.
type RiskState struct {
	Date        string          `json:"date"`
	RealizedPnL decimal.Decimal `json:"realizedPnL"`
}

// UnmarshalJSON reads the canonical record and the older realized_pnl and
// realized_pnl_usdt spellings. The canonical field wins when several are set.
// P&L may be a JSON number or a decimal string.
func (s *RiskState) UnmarshalJSON(data []byte) error {
	var raw struct {
		Date        string           `json:"date"`
		RealizedPnL *decimal.Decimal `json:"realizedPnL"`
		Legacy      *decimal.Decimal `json:"realized_pnl"`
		LegacyUSDT  *decimal.Decimal `json:"realized_pnl_usdt"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.Date = raw.Date
	switch {
	case raw.RealizedPnL != nil:
		s.RealizedPnL = *raw.RealizedPnL
	case raw.Legacy != nil:
		s.RealizedPnL = *raw.Legacy
	case raw.LegacyUSDT != nil:
		s.RealizedPnL = *raw.LegacyUSDT
	default:
		s.RealizedPnL = decimal.Zero
	}
	return nil
}

// RollTo resets the state to a fresh day when its date differs from today.
// It reports whether the state changed.
func (s *RiskState) RollTo(today string) bool {
	if s.Date == today {
		return false
	}
	s.Date = today
	s.RealizedPnL = decimal.Zero
	return true
}

// RiskMode is the day-scoped state of the risk manager.
type RiskMode string

const (
	RiskModeActive  RiskMode = "ACTIVE"
	RiskModeBlocked RiskMode = "BLOCKED"
)

// RiskStatus is a read-only snapshot of the risk manager.
type RiskStatus struct {
	Date         string          `json:"date"`
	RealizedPnL  decimal.Decimal `json:"realizedPnL"`
	MaxDailyLoss decimal.Decimal `json:"max_daily_loss"`
	Mode         RiskMode        `json:"mode"`
	CycleSignals int             `json:"cycle_signals"`
	CycleLimit   int             `json:"cycle_limit"`
	CheckedAt    time.Time       `json:"checked_at"`
}
