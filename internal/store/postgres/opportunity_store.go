package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL. It
// also acts as a domain.SignalSink so the scan service can persist every
// gated signal alongside the other fan-out targets.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates a new OpportunityStore backed by the given
// connection pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

const signalSelectCols = `id::text, opportunity_id::text, symbol, buy_source, sell_source,
	buy_price, sell_price, gross_percent, net_percent, spread_value,
	currency, market_type_buy, market_type_sell, status, reasons,
	detected_at, created_at`

// InsertSignals stores a cycle's signals in one batch. Re-inserting a signal
// with a known ID is a no-op.
func (s *OpportunityStore) InsertSignals(ctx context.Context, signals []domain.Signal) error {
	if len(signals) == 0 {
		return nil
	}

	const query = `
		INSERT INTO opportunity_signals (
			id, opportunity_id, symbol, buy_source, sell_source,
			buy_price, sell_price, gross_percent, net_percent, spread_value,
			currency, market_type_buy, market_type_sell, status, reasons,
			detected_at, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15,
			$16, $17
		)
		ON CONFLICT (id) DO NOTHING`

	batch := &pgx.Batch{}
	for _, sig := range signals {
		o := sig.Opportunity
		reasons := sig.Reasons
		if reasons == nil {
			reasons = []string{}
		}
		batch.Queue(query,
			sig.ID, o.ID, o.Symbol, o.BuySource, o.SellSource,
			o.BuyPrice, o.SellPrice, o.GrossPercent, o.NetPercent, o.SpreadValue,
			o.Currency, string(o.MarketTypeBuy), string(o.MarketTypeSell), string(sig.Status), reasons,
			o.DetectedAt, sig.CreatedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for _, sig := range signals {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert signal %s: %w", sig.ID, err)
		}
	}
	return nil
}

// ListRecent returns the newest signals first.
func (s *OpportunityStore) ListRecent(ctx context.Context, limit int) ([]domain.Signal, error) {
	query := `SELECT ` + signalSelectCols + ` FROM opportunity_signals
		ORDER BY created_at DESC, net_percent DESC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent signals: %w", err)
	}
	defer rows.Close()

	var out []domain.Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list recent signals rows: %w", err)
	}
	return out, nil
}

// Name implements domain.SignalSink.
func (s *OpportunityStore) Name() string { return "postgres" }

// PublishSignals implements domain.SignalSink.
func (s *OpportunityStore) PublishSignals(ctx context.Context, signals []domain.Signal) error {
	return s.InsertSignals(ctx, signals)
}

func scanSignal(row pgx.Row) (domain.Signal, error) {
	var (
		sig           domain.Signal
		o             domain.Opportunity
		mtBuy, mtSell string
		status        string
	)
	err := row.Scan(
		&sig.ID, &o.ID, &o.Symbol, &o.BuySource, &o.SellSource,
		&o.BuyPrice, &o.SellPrice, &o.GrossPercent, &o.NetPercent, &o.SpreadValue,
		&o.Currency, &mtBuy, &mtSell, &status, &sig.Reasons,
		&o.DetectedAt, &sig.CreatedAt,
	)
	if err != nil {
		return domain.Signal{}, fmt.Errorf("postgres: scan signal: %w", err)
	}
	o.MarketTypeBuy = domain.MarketType(mtBuy)
	o.MarketTypeSell = domain.MarketType(mtSell)
	sig.Status = domain.SignalStatus(status)
	sig.Opportunity = o
	return sig, nil
}

var (
	_ domain.OpportunityStore = (*OpportunityStore)(nil)
	_ domain.SignalSink       = (*OpportunityStore)(nil)
)
