package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// RiskStateStore implements domain.RiskStateStore on a single risk_state row
// locked with SELECT ... FOR UPDATE for the duration of each Update.
type RiskStateStore struct {
	pool   *pgxpool.Pool
	key    string
	logger *slog.Logger
}

// NewRiskStateStore creates a store for the row identified by key.
func NewRiskStateStore(pool *pgxpool.Pool, key string, logger *slog.Logger) *RiskStateStore {
	return &RiskStateStore{
		pool:   pool,
		key:    key,
		logger: logger.With(slog.String("component", "risk_state_postgres")),
	}
}

// Update implements domain.RiskStateStore.
func (s *RiskStateStore) Update(ctx context.Context, fn func(state *domain.RiskState) error) (domain.RiskState, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.RiskState{}, fmt.Errorf("postgres: begin risk state tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`INSERT INTO risk_state (state_key) VALUES ($1) ON CONFLICT (state_key) DO NOTHING`, s.key,
	); err != nil {
		return domain.RiskState{}, fmt.Errorf("postgres: ensure risk state row: %w", err)
	}

	var day, pnl string
	if err := tx.QueryRow(ctx,
		`SELECT trading_day, realized_pnl::text FROM risk_state WHERE state_key = $1 FOR UPDATE`, s.key,
	).Scan(&day, &pnl); err != nil {
		return domain.RiskState{}, fmt.Errorf("postgres: load risk state: %w", err)
	}

	state := domain.RiskState{Date: day}
	if v, perr := decimal.NewFromString(pnl); perr == nil {
		state.RealizedPnL = v
	} else {
		s.logger.Warn("risk state pnl unreadable, starting fresh",
			slog.String("key", s.key),
			slog.String("error", perr.Error()),
		)
		state = domain.RiskState{}
	}

	if err := fn(&state); err != nil {
		return domain.RiskState{}, err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE risk_state SET trading_day = $2, realized_pnl = $3::numeric, updated_at = NOW() WHERE state_key = $1`,
		s.key, state.Date, state.RealizedPnL.String(),
	); err != nil {
		return domain.RiskState{}, fmt.Errorf("postgres: save risk state: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.RiskState{}, fmt.Errorf("postgres: commit risk state: %w", err)
	}
	return state, nil
}

// Compile-time interface check.
var _ domain.RiskStateStore = (*RiskStateStore)(nil)
