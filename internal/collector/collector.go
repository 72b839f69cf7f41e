// Package collector fetches top-of-book quotes from public venue APIs. Each
// venue runs in its own goroutine and reports an explicit Outcome so a cycle
// can tell an empty market apart from an unreachable one.
package collector

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// Outcome classifies the result of one venue collection.
type Outcome string

const (
	OutcomeOK          Outcome = "ok"
	OutcomeNoData      Outcome = "no_data"
	OutcomeUnreachable Outcome = "unreachable"
)

// Collector fetches quotes for the given base symbols from one venue.
type Collector interface {
	Name() string
	Collect(ctx context.Context, symbols []string) ([]domain.Quote, error)
}

// Result describes what a single collector produced during a cycle.
type Result struct {
	Venue    string
	Outcome  Outcome
	Quotes   int
	Err      error
	Duration time.Duration
}

// Set runs a fixed list of collectors concurrently.
type Set struct {
	collectors []Collector
	logger     *slog.Logger
}

// NewSet creates a Set over collectors.
func NewSet(collectors []Collector, logger *slog.Logger) *Set {
	return &Set{
		collectors: collectors,
		logger:     logger.With(slog.String("component", "collector")),
	}
}

// Len returns the number of configured collectors.
func (s *Set) Len() int { return len(s.collectors) }

// Collect queries every venue and concatenates their quotes in collector
// order. A failing venue never fails the set; its error is reported in the
// matching Result.
func (s *Set) Collect(ctx context.Context, symbols []string) ([]domain.Quote, []Result) {
	perVenue := make([][]domain.Quote, len(s.collectors))
	results := make([]Result, len(s.collectors))

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range s.collectors {
		g.Go(func() error {
			start := time.Now()
			quotes, err := c.Collect(gctx, symbols)
			quotes = s.knownMarkets(gctx, c.Name(), quotes)
			res := Result{
				Venue:    c.Name(),
				Outcome:  classify(quotes, err),
				Quotes:   len(quotes),
				Err:      err,
				Duration: time.Since(start),
			}
			if err != nil {
				quotes = nil
				res.Quotes = 0
			}
			perVenue[i] = quotes
			results[i] = res
			s.log(gctx, res)
			return nil
		})
	}
	_ = g.Wait()

	var total int
	for _, q := range perVenue {
		total += len(q)
	}
	out := make([]domain.Quote, 0, total)
	for _, q := range perVenue {
		out = append(out, q...)
	}
	return out, results
}

// knownMarkets drops quotes whose market type is not cex, dex or p2p.
func (s *Set) knownMarkets(ctx context.Context, venue string, quotes []domain.Quote) []domain.Quote {
	kept := make([]domain.Quote, 0, len(quotes))
	for _, q := range quotes {
		if q.MarketType.Valid() {
			kept = append(kept, q)
			continue
		}
		s.logger.WarnContext(ctx, "dropping quote with unknown market type",
			slog.String("venue", venue),
			slog.String("symbol", q.Symbol),
			slog.String("market_type", string(q.MarketType)),
		)
	}
	return kept
}

func (s *Set) log(ctx context.Context, res Result) {
	attrs := []any{
		slog.String("venue", res.Venue),
		slog.String("outcome", string(res.Outcome)),
		slog.Int("quotes", res.Quotes),
		slog.Duration("took", res.Duration),
	}
	switch res.Outcome {
	case OutcomeUnreachable:
		s.logger.WarnContext(ctx, "venue unreachable", append(attrs, slog.String("error", res.Err.Error()))...)
	case OutcomeNoData:
		s.logger.InfoContext(ctx, "venue returned no quotes", attrs...)
	default:
		s.logger.DebugContext(ctx, "venue collected", attrs...)
	}
}

func classify(quotes []domain.Quote, err error) Outcome {
	switch {
	case err == nil && len(quotes) > 0:
		return OutcomeOK
	case err == nil, errors.Is(err, domain.ErrVenueNoData):
		return OutcomeNoData
	default:
		return OutcomeUnreachable
	}
}
