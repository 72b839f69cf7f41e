package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// RiskStateStore persists the risk manager's day record. Update runs fn
// against the current state while holding an exclusive scope that covers the
// whole read-modify-write cycle, then persists the state fn left behind.
// A missing or unreadable record is presented to fn as the zero RiskState.
type RiskStateStore interface {
	Update(ctx context.Context, fn func(state *RiskState) error) (RiskState, error)
}

// SignalHistory lists the most recent gated signals, newest first.
type SignalHistory interface {
	ListRecent(ctx context.Context, limit int) ([]Signal, error)
}

// OpportunityStore persists gated opportunities for later inspection.
type OpportunityStore interface {
	SignalHistory
	InsertSignals(ctx context.Context, signals []Signal) error
}

// Audit event names written by the scanner.
const (
	AuditCycleCompleted = "cycle_completed"
	AuditCycleFailed    = "cycle_failed"
	AuditPnLRecorded    = "pnl_recorded"
)

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
