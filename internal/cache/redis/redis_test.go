package redis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	c, err := New(context.Background(), ClientConfig{Addr: mr.Addr(), PoolSize: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_PingFailure(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = New(context.Background(), ClientConfig{Addr: addr})
	require.Error(t, err)
}

func TestQuoteCache_PutAndIndex(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()
	qc := NewQuoteCache(c, time.Minute)
	now := time.Now().UTC().Truncate(time.Millisecond)

	err := qc.PutQuotes(ctx, []domain.Quote{
		{Symbol: "BTC", Source: "mexc", MarketType: domain.MarketTypeCEX, Bid: 100, Ask: 101, Volume: 5000, Currency: "USDT", ObservedAt: now},
		{Symbol: "BTC", Source: "bybit", MarketType: domain.MarketTypeCEX, Bid: 102, Ask: 103, Volume: 7000, Currency: "USDT", ObservedAt: now},
	})
	require.NoError(t, err)
	assert.True(t, mr.Exists("quotes:BTC"))
	assert.Greater(t, mr.TTL("quotes:BTC"), time.Duration(0))

	idx, err := qc.Index(ctx, []domain.QuoteKey{
		{Symbol: "BTC", Source: "mexc"},
		{Symbol: "BTC", Source: "okx"},
		{Symbol: "ETH", Source: "mexc"},
	})
	require.NoError(t, err)
	require.Len(t, idx, 1)
	q, ok := idx.Lookup("BTC", "mexc")
	require.True(t, ok)
	assert.Equal(t, 5000.0, q.Volume)
	assert.True(t, now.Equal(q.ObservedAt))
}

func TestLockManager_AcquireAndRelease(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	lm := NewLockManager(c)

	unlock, err := lm.Acquire(ctx, "risk", time.Second)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, "risk", time.Second)
	require.ErrorIs(t, err, domain.ErrLockHeld)

	unlock()
	unlock()

	unlock2, err := lm.Acquire(ctx, "risk", time.Second)
	require.NoError(t, err)
	unlock2()
}

func TestLockManager_AcquireWaitHonoursContext(t *testing.T) {
	c, _ := newTestClient(t)
	lm := NewLockManager(c)

	unlock, err := lm.Acquire(context.Background(), "busy", time.Minute)
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	_, err = lm.AcquireWait(ctx, "busy", time.Minute, 10*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestRateLimiter_Allow(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	rl := NewRateLimiter(c, 2, time.Minute)

	for i := 0; i < 2; i++ {
		ok, err := rl.Allow(ctx, "mexc", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := rl.Allow(ctx, "mexc", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = rl.Allow(ctx, "bybit", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRateLimiter_WaitCancelled(t *testing.T) {
	c, _ := newTestClient(t)
	rl := NewRateLimiter(c, 1, time.Hour)

	require.NoError(t, rl.Wait(context.Background(), "venue"))

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	err := rl.Wait(ctx, "venue")
	require.Error(t, err)
}

func TestSignalLog_PublishAndListRecent(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	bus := NewSignalBus(c, 100)
	log := NewSignalLog(bus, "arbscan:signals", "arbscan:signals:stream", discardLogger())

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	sub, err := bus.Subscribe(subCtx, "arbscan:signals")
	require.NoError(t, err)

	signals := []domain.Signal{
		{ID: "s1", Status: domain.SignalAccepted, Opportunity: domain.Opportunity{Symbol: "BTC", BuySource: "a", SellSource: "b"}},
		{ID: "s2", Status: domain.SignalRejected, Reasons: []string{"cycle signal limit reached"}},
	}
	require.NoError(t, log.PublishSignals(ctx, signals))

	select {
	case payload := <-sub:
		assert.Contains(t, string(payload), `"id":"s1"`)
	case <-time.After(2 * time.Second):
		t.Fatal("no pub/sub message received")
	}

	recent, err := log.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "s2", recent[0].ID)
	assert.Equal(t, "s1", recent[1].ID)
	assert.Equal(t, "BTC", recent[1].Opportunity.Symbol)

	recent, err = log.ListRecent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "s2", recent[0].ID)
}

func TestSignalBus_StreamRecentMissingStream(t *testing.T) {
	c, _ := newTestClient(t)
	msgs, err := NewSignalBus(c, 0).StreamRecent(context.Background(), "nope", 5)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestRiskStateStore_UpdateRoundTrip(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()
	store := NewRiskStateStore(c, NewLockManager(c), "arbscan:risk", time.Second, discardLogger())

	state, err := store.Update(ctx, func(s *domain.RiskState) error {
		assert.Equal(t, domain.RiskState{}, *s)
		s.RollTo("2024-05-01")
		s.RealizedPnL = decimal.RequireFromString("-12.5")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01", state.Date)

	raw, err := mr.Get("arbscan:risk")
	require.NoError(t, err)
	assert.JSONEq(t, `{"date":"2024-05-01","realizedPnL":"-12.5"}`, raw)
	assert.False(t, mr.Exists("lock:arbscan:risk"))
}

func TestRiskStateStore_CorruptValueStartsFresh(t *testing.T) {
	c, mr := newTestClient(t)
	require.NoError(t, mr.Set("arbscan:risk", "garbage"))
	store := NewRiskStateStore(c, NewLockManager(c), "arbscan:risk", time.Second, discardLogger())

	state, err := store.Update(context.Background(), func(s *domain.RiskState) error {
		s.RollTo("2024-05-02")
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, "2024-05-02", state.Date)
	assert.True(t, state.RealizedPnL.IsZero())
}

func TestRiskStateStore_ConcurrentUpdates(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	store := NewRiskStateStore(c, NewLockManager(c), "arbscan:risk", 5*time.Second, discardLogger())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Update(ctx, func(s *domain.RiskState) error {
				s.RealizedPnL = s.RealizedPnL.Add(decimal.NewFromInt(1))
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	state, err := store.Update(ctx, func(*domain.RiskState) error { return nil })
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(10).Equal(state.RealizedPnL))
}

func TestOptions_Defaults(t *testing.T) {
	opts := options(ClientConfig{Addr: "localhost:6379", PoolSize: 4})
	assert.Empty(t, opts.ClientName)
	assert.Equal(t, 5*time.Second, opts.DialTimeout)
	assert.Nil(t, opts.TLSConfig)

	opts = options(ClientConfig{Addr: "redis:6380", ClientName: "replica-2", DialTimeout: time.Second, TLSEnabled: true})
	assert.Equal(t, "replica-2", opts.ClientName)
	assert.Equal(t, time.Second, opts.DialTimeout)
	require.NotNil(t, opts.TLSConfig)
}
