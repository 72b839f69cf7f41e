package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/arbscanner/internal/arbitrage"
	"github.com/alanyoungcy/arbscanner/internal/collector"
	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/alanyoungcy/arbscanner/internal/metrics"
	"github.com/alanyoungcy/arbscanner/internal/report"
)

// ErrNoVenues is returned by a cycle in which every venue was unreachable.
var ErrNoVenues = errors.New("all venues unreachable")

// QuoteSource gathers quotes from every configured venue.
type QuoteSource interface {
	Collect(ctx context.Context, symbols []string) ([]domain.Quote, []collector.Result)
}

// ReportWriter persists the per-cycle report.
type ReportWriter interface {
	Write(ctx context.Context, r domain.Report) error
}

// Alerter delivers operator alerts such as failed cycles.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// ScanConfig holds the per-cycle scan parameters.
type ScanConfig struct {
	Symbols            []string
	AllowCrossCurrency bool
	PrintTop           int
}

// ScanDeps bundles the collaborators of a ScanService. Source, Engine,
// Validator and Risk are required; everything else may be nil.
type ScanDeps struct {
	Source    QuoteSource
	Universe  collector.UniverseSource
	Engine    *arbitrage.Engine
	Validator *PreTradeValidator
	Risk      *RiskManager
	Cache     domain.QuoteCache
	Sinks     []domain.SignalSink
	Reports   ReportWriter
	Audit     domain.AuditStore
	Alerter   Alerter
	Metrics   *metrics.Metrics
}

// CycleResult summarizes one scan cycle.
type CycleResult struct {
	StartedAt     time.Time
	Duration      time.Duration
	Symbols       []string
	QuotesCount   int
	Venues        []collector.Result
	Stats         arbitrage.FindStats
	Opportunities []domain.Opportunity
	Signals       []domain.Signal
}

// Accepted counts the accepted signals of the cycle.
func (r CycleResult) Accepted() int {
	var n int
	for _, s := range r.Signals {
		if s.Status == domain.SignalAccepted {
			n++
		}
	}
	return n
}

// ScanService runs scan cycles: collect, match, gate, fan out, report.
type ScanService struct {
	deps   ScanDeps
	cfg    ScanConfig
	logger *slog.Logger
	now    func() time.Time
	newID  func() string

	mu   sync.RWMutex
	last *CycleResult
}

// NewScanService creates a ScanService.
func NewScanService(deps ScanDeps, cfg ScanConfig, logger *slog.Logger) *ScanService {
	return &ScanService{
		deps:   deps,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "scan_service")),
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
}

// Run executes a cycle immediately and then once per interval until ctx is
// cancelled. A failed cycle is logged and the loop waits for the next tick.
func (s *ScanService) Run(ctx context.Context, interval time.Duration) error {
	s.logger.InfoContext(ctx, "scan loop started", slog.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		_, _ = s.RunOnce(ctx)

		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "scan loop stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce executes a single cycle and records its failure, if any, in the
// audit log, the metrics and the alert channel.
func (s *ScanService) RunOnce(ctx context.Context) (CycleResult, error) {
	start := s.now()
	res, err := s.RunCycle(ctx)
	took := s.now().Sub(start)
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveCycle(took, err)
	}
	if err == nil {
		return res, nil
	}
	if ctx.Err() != nil {
		return res, err
	}

	s.logger.ErrorContext(ctx, "scan cycle failed",
		slog.String("error", err.Error()),
		slog.Duration("took", took),
	)
	if s.deps.Audit != nil {
		if auditErr := s.deps.Audit.Log(ctx, domain.AuditCycleFailed, map[string]any{
			"error": err.Error(),
		}); auditErr != nil {
			s.logger.WarnContext(ctx, "audit log failed", slog.String("error", auditErr.Error()))
		}
	}
	if s.deps.Alerter != nil {
		if alertErr := s.deps.Alerter.Notify(ctx, domain.AuditCycleFailed, "Scan cycle failed", err.Error()); alertErr != nil {
			s.logger.WarnContext(ctx, "alert failed", slog.String("error", alertErr.Error()))
		}
	}
	return res, err
}

// RunCycle performs one full scan cycle.
func (s *ScanService) RunCycle(ctx context.Context) (CycleResult, error) {
	res := CycleResult{StartedAt: s.now()}
	s.deps.Risk.BeginCycle()

	res.Symbols = collector.PrepareSymbols(ctx, s.cfg.Symbols, s.deps.Universe, s.logger)
	if len(res.Symbols) == 0 {
		s.logger.WarnContext(ctx, "no symbols to scan")
	}

	quotes, venues := s.deps.Source.Collect(ctx, res.Symbols)
	res.QuotesCount = len(quotes)
	res.Venues = venues
	s.observeVenues(venues)
	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("scan: collect: %w", err)
	}
	if allUnreachable(venues) {
		return res, fmt.Errorf("scan: collect: %w", ErrNoVenues)
	}
	s.logger.InfoContext(ctx, "quotes collected",
		slog.Int("symbols", len(res.Symbols)),
		slog.Int("quotes", len(quotes)),
	)

	if s.deps.Cache != nil && len(quotes) > 0 {
		if err := s.deps.Cache.PutQuotes(ctx, quotes); err != nil {
			s.logger.WarnContext(ctx, "quote cache write failed", slog.String("error", err.Error()))
		}
	}

	opps, stats := s.deps.Engine.FindWithStats(quotes, s.cfg.AllowCrossCurrency)
	res.Stats = stats
	detected := s.now().UTC()
	for i := range opps {
		opps[i].ID = s.newID()
		opps[i].DetectedAt = detected
	}
	res.Opportunities = opps

	res.Signals = s.gate(ctx, opps, s.index(ctx, quotes, opps))
	s.fanOut(ctx, res.Signals)

	if s.deps.Reports != nil {
		if err := s.deps.Reports.Write(ctx, domain.Report{
			Timestamp:     detected,
			QuotesCount:   len(quotes),
			Opportunities: opps,
		}); err != nil {
			return res, fmt.Errorf("scan: %w", err)
		}
	}

	for _, line := range report.SummaryLines(opps, s.cfg.PrintTop) {
		s.logger.InfoContext(ctx, line)
	}

	res.Duration = s.now().Sub(res.StartedAt)
	s.observeCycle(res)
	s.audit(ctx, res)

	s.mu.Lock()
	s.last = &res
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "scan cycle completed",
		slog.Int("opportunities", len(opps)),
		slog.Int("accepted", res.Accepted()),
		slog.Int("pairs_evaluated", stats.PairsEvaluated),
		slog.Duration("took", res.Duration),
	)
	return res, nil
}

// LastCycle returns the most recent successful cycle.
func (s *ScanService) LastCycle() (CycleResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return CycleResult{}, false
	}
	return *s.last, true
}

// LastCycleAt returns when the most recent successful cycle started.
func (s *ScanService) LastCycleAt() (time.Time, bool) {
	res, ok := s.LastCycle()
	return res.StartedAt, ok
}

// index builds the validator's view of the market from this cycle's quotes,
// refreshed with any newer quote the cache holds for an opportunity leg.
func (s *ScanService) index(ctx context.Context, quotes []domain.Quote, opps []domain.Opportunity) domain.QuoteIndex {
	idx := domain.IndexQuotes(quotes)
	if s.deps.Cache == nil || len(opps) == 0 {
		return idx
	}

	seen := make(map[domain.QuoteKey]bool, 2*len(opps))
	keys := make([]domain.QuoteKey, 0, 2*len(opps))
	for _, o := range opps {
		for _, k := range []domain.QuoteKey{
			{Symbol: o.Symbol, Source: o.BuySource},
			{Symbol: o.Symbol, Source: o.SellSource},
		} {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}

	cached, err := s.deps.Cache.Index(ctx, keys)
	if err != nil {
		s.logger.WarnContext(ctx, "quote cache read failed", slog.String("error", err.Error()))
		return idx
	}
	for k, q := range cached {
		if cur, ok := idx[k]; !ok || q.ObservedAt.After(cur.ObservedAt) {
			idx[k] = q
		}
	}
	return idx
}

// gate runs the validator and then the risk manager over each opportunity
// in rank order.
func (s *ScanService) gate(ctx context.Context, opps []domain.Opportunity, idx domain.QuoteIndex) []domain.Signal {
	signals := make([]domain.Signal, 0, len(opps))
	for _, o := range opps {
		sig := domain.Signal{
			ID:          s.newID(),
			Opportunity: o,
			Status:      domain.SignalRejected,
			CreatedAt:   s.now().UTC(),
		}

		ok, reasons := s.deps.Validator.Validate(o, idx)
		if !ok {
			sig.Reasons = reasons
			signals = append(signals, sig)
			continue
		}

		dec, err := s.deps.Risk.CanSignal(ctx)
		if err != nil {
			s.logger.WarnContext(ctx, "risk check failed",
				slog.String("opp_id", o.ID),
				slog.String("error", err.Error()),
			)
		}
		if err == nil && s.deps.Metrics != nil {
			s.deps.Metrics.RealizedPnL.Set(dec.State.RealizedPnL.InexactFloat64())
		}
		if !dec.Allowed {
			sig.Reasons = []string{dec.Reason}
			if s.deps.Metrics != nil {
				s.deps.Metrics.RiskDenials.WithLabelValues(dec.Reason).Inc()
			}
			signals = append(signals, sig)
			continue
		}

		sig.Status = domain.SignalAccepted
		signals = append(signals, sig)
	}
	return signals
}

func (s *ScanService) fanOut(ctx context.Context, signals []domain.Signal) {
	if len(signals) == 0 {
		return
	}
	for _, sink := range s.deps.Sinks {
		if err := sink.PublishSignals(ctx, signals); err != nil {
			s.logger.WarnContext(ctx, "signal sink failed",
				slog.String("sink", sink.Name()),
				slog.String("error", err.Error()),
			)
			if s.deps.Metrics != nil {
				s.deps.Metrics.SinkFailures.WithLabelValues(sink.Name()).Inc()
			}
		}
	}
}

func (s *ScanService) observeVenues(venues []collector.Result) {
	if s.deps.Metrics == nil {
		return
	}
	for _, v := range venues {
		s.deps.Metrics.VenueQuotes.WithLabelValues(v.Venue).Set(float64(v.Quotes))
		s.deps.Metrics.VenueOutcomes.WithLabelValues(v.Venue, string(v.Outcome)).Inc()
	}
}

func (s *ScanService) observeCycle(res CycleResult) {
	m := s.deps.Metrics
	if m == nil {
		return
	}
	m.Opportunities.Set(float64(len(res.Opportunities)))
	best := 0.0
	if len(res.Opportunities) > 0 {
		best = res.Opportunities[0].NetPercent
	}
	m.BestNetPercent.Set(best)
	for _, sig := range res.Signals {
		m.Signals.WithLabelValues(string(sig.Status)).Inc()
	}
	m.DroppedPairs.WithLabelValues("missing_price").Add(float64(res.Stats.MissingPrice))
	m.DroppedPairs.WithLabelValues("currency_mismatch").Add(float64(res.Stats.CurrencyMismatch))
	m.DroppedPairs.WithLabelValues("missing_rate").Add(float64(res.Stats.MissingRate))
	m.DroppedPairs.WithLabelValues("below_min_profit").Add(float64(res.Stats.BelowMinProfit))
}

func (s *ScanService) audit(ctx context.Context, res CycleResult) {
	if s.deps.Audit == nil {
		return
	}
	if err := s.deps.Audit.Log(ctx, domain.AuditCycleCompleted, map[string]any{
		"symbols":       len(res.Symbols),
		"quotes":        res.QuotesCount,
		"opportunities": len(res.Opportunities),
		"accepted":      res.Accepted(),
		"duration_ms":   res.Duration.Milliseconds(),
	}); err != nil {
		s.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
	}
}

func allUnreachable(venues []collector.Result) bool {
	if len(venues) == 0 {
		return false
	}
	for _, v := range venues {
		if v.Outcome != collector.OutcomeUnreachable {
			return false
		}
	}
	return true
}
