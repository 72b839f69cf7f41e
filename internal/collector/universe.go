package collector

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
)

const universeCacheKey = "coincap:universe"

// Universe discovers the set of actively traded assets from CoinCap and
// caches it for ttl.
type Universe struct {
	req    requester
	limit  int
	ttl    time.Duration
	cache  *ristretto.Cache
	logger *slog.Logger
}

// NewUniverse creates a CoinCap-backed universe. The caller must Close it.
func NewUniverse(baseURL string, limit int, ttl time.Duration, opts HTTPOptions, logger *slog.Logger) (*Universe, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e3,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("collector: universe cache: %w", err)
	}
	if limit <= 0 {
		limit = 30
	}
	return &Universe{
		req:    newRequester("coincap", baseURL, opts),
		limit:  limit,
		ttl:    ttl,
		cache:  cache,
		logger: logger.With(slog.String("component", "universe")),
	}, nil
}

// Symbols returns the top assets by CoinCap rank, upper-cased.
func (u *Universe) Symbols(ctx context.Context) ([]string, error) {
	if v, ok := u.cache.Get(universeCacheKey); ok {
		if symbols, ok := v.([]string); ok {
			return symbols, nil
		}
	}

	var resp struct {
		Data []struct {
			Symbol string `json:"symbol"`
		} `json:"data"`
	}
	if err := u.req.getJSON(ctx, "/v2/assets?limit="+strconv.Itoa(u.limit), &resp); err != nil {
		return nil, err
	}
	symbols := make([]string, 0, len(resp.Data))
	for _, a := range resp.Data {
		if s := strings.ToUpper(strings.TrimSpace(a.Symbol)); s != "" {
			symbols = append(symbols, s)
		}
	}
	if len(symbols) > 0 && u.ttl > 0 {
		u.cache.SetWithTTL(universeCacheKey, symbols, int64(len(symbols)), u.ttl)
		u.cache.Wait()
	}
	return symbols, nil
}

// Close releases the cache.
func (u *Universe) Close() {
	u.cache.Close()
}

// UniverseSource is what PrepareSymbols needs from a universe provider.
type UniverseSource interface {
	Symbols(ctx context.Context) ([]string, error)
}

// PrepareSymbols returns the symbols to scan. With a reachable universe the
// configured symbols are filtered down to the universe, or the universe
// itself is used when none are configured. Without one the configured
// symbols are used unchanged.
func PrepareSymbols(ctx context.Context, configured []string, universe UniverseSource, logger *slog.Logger) []string {
	symbols := make([]string, 0, len(configured))
	for _, s := range configured {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			symbols = append(symbols, s)
		}
	}
	if universe == nil {
		return symbols
	}

	found, err := universe.Symbols(ctx)
	if err != nil || len(found) == 0 {
		if err != nil {
			logger.WarnContext(ctx, "universe unavailable, using configured symbols",
				slog.String("error", err.Error()))
		}
		return symbols
	}
	if len(symbols) == 0 {
		return found
	}

	in := upperSet(found)
	out := symbols[:0]
	for _, s := range symbols {
		if in[s] {
			out = append(out, s)
		}
	}
	return out
}
