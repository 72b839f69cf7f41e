package domain

import (
	"context"
	"time"
)

// QuoteCache keeps the latest quote per (asset, source) so the pre-trade
// validator can re-check opportunities against data fresher than the scan.
type QuoteCache interface {
	PutQuotes(ctx context.Context, quotes []Quote) error
	Index(ctx context.Context, keys []QuoteKey) (QuoteIndex, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRecent(ctx context.Context, stream string, count int) ([]StreamMessage, error)
}

// SignalSink receives every gated signal of a scan cycle.
type SignalSink interface {
	Name() string
	PublishSignals(ctx context.Context, signals []Signal) error
}

// StreamMessage is one entry read back from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}
