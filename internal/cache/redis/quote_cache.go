package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// QuoteCache implements domain.QuoteCache using Redis hashes. Each asset's
// quotes live in a hash at "quotes:{symbol}" keyed by source, each field
// holding the JSON-encoded quote. Hashes expire after ttl without writes.
type QuoteCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewQuoteCache creates a QuoteCache backed by the given Client.
func NewQuoteCache(c *Client, ttl time.Duration) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying(), ttl: ttl}
}

func quoteKey(symbol string) string {
	return "quotes:" + symbol
}

// PutQuotes stores quotes in one pipeline. A quote older than the cached one
// for the same (symbol, source) still overwrites it; readers merge with
// domain.IndexQuotes when freshness matters.
func (qc *QuoteCache) PutQuotes(ctx context.Context, quotes []domain.Quote) error {
	if len(quotes) == 0 {
		return nil
	}

	bySymbol := make(map[string]map[string]interface{})
	for _, q := range quotes {
		payload, err := json.Marshal(q)
		if err != nil {
			return fmt.Errorf("redis: marshal quote %s/%s: %w", q.Symbol, q.Source, err)
		}
		fields, ok := bySymbol[q.Symbol]
		if !ok {
			fields = make(map[string]interface{})
			bySymbol[q.Symbol] = fields
		}
		fields[q.Source] = payload
	}

	pipe := qc.rdb.Pipeline()
	for symbol, fields := range bySymbol {
		key := quoteKey(symbol)
		pipe.HSet(ctx, key, fields)
		if qc.ttl > 0 {
			pipe.Expire(ctx, key, qc.ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: put quotes pipeline: %w", err)
	}
	return nil
}

// Index fetches the cached quotes for keys. Keys with no cached quote are
// omitted from the result.
func (qc *QuoteCache) Index(ctx context.Context, keys []domain.QuoteKey) (domain.QuoteIndex, error) {
	idx := make(domain.QuoteIndex, len(keys))
	if len(keys) == 0 {
		return idx, nil
	}

	pipe := qc.rdb.Pipeline()
	cmds := make(map[domain.QuoteKey]*redis.StringCmd, len(keys))
	for _, k := range keys {
		if _, dup := cmds[k]; dup {
			continue
		}
		cmds[k] = pipe.HGet(ctx, quoteKey(k.Symbol), k.Source)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: index quotes pipeline: %w", err)
	}

	for k, cmd := range cmds {
		raw, err := cmd.Bytes()
		if err != nil {
			continue
		}
		var q domain.Quote
		if err := json.Unmarshal(raw, &q); err != nil {
			continue
		}
		idx[k] = q
	}
	return idx, nil
}

// Compile-time interface check.
var _ domain.QuoteCache = (*QuoteCache)(nil)
