package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/alanyoungcy/arbscanner/internal/store/file"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memRiskStore is an in-memory domain.RiskStateStore.
type memRiskStore struct {
	mu    sync.Mutex
	state domain.RiskState
	err   error
}

func (s *memRiskStore) Update(_ context.Context, fn func(*domain.RiskState) error) (domain.RiskState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return domain.RiskState{}, s.err
	}
	st := s.state
	if err := fn(&st); err != nil {
		return domain.RiskState{}, err
	}
	s.state = st
	return st, nil
}

func newRiskManager(store domain.RiskStateStore, maxPerCycle int, maxLoss int64, now time.Time) *RiskManager {
	m := NewRiskManager(store, RiskConfig{
		MaxSignalsPerCycle: maxPerCycle,
		MaxDailyLoss:       decimal.NewFromInt(maxLoss),
	}, discardLogger())
	m.now = func() time.Time { return now }
	return m
}

func TestCanSignal_CycleLimitAndReset(t *testing.T) {
	ctx := context.Background()
	m := newRiskManager(&memRiskStore{}, 2, 100, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	for i := 0; i < 2; i++ {
		d, err := m.CanSignal(ctx)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}
	d, err := m.CanSignal(ctx)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonCycleLimit, d.Reason)

	m.BeginCycle()
	d, err = m.CanSignal(ctx)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestCanSignal_ZeroCycleLimitDeniesAll(t *testing.T) {
	m := newRiskManager(&memRiskStore{}, 0, 100, time.Now())

	d, err := m.CanSignal(context.Background())

	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonCycleLimit, d.Reason)
}

func TestCanSignal_DailyLossBlocksUntilRollover(t *testing.T) {
	ctx := context.Background()
	store := &memRiskStore{state: domain.RiskState{Date: "2024-05-01", RealizedPnL: decimal.NewFromInt(-150)}}
	day := time.Date(2024, 5, 1, 23, 0, 0, 0, time.UTC)
	m := newRiskManager(store, 5, 100, day)

	d, err := m.CanSignal(ctx)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonDailyLossLimit, d.Reason)

	status, err := m.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.RiskModeBlocked, status.Mode)

	m.now = func() time.Time { return day.Add(2 * time.Hour) }
	d, err = m.CanSignal(ctx)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, "2024-05-02", d.State.Date)
	assert.True(t, d.State.RealizedPnL.IsZero())
}

func TestCanSignal_LossExactlyAtLimitDenies(t *testing.T) {
	store := &memRiskStore{state: domain.RiskState{Date: "2024-05-01", RealizedPnL: decimal.NewFromInt(-100)}}
	m := newRiskManager(store, 5, 100, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))

	d, err := m.CanSignal(context.Background())

	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonDailyLossLimit, d.Reason)
}

func TestCanSignal_StoreErrorDenies(t *testing.T) {
	boom := errors.New("disk gone")
	m := newRiskManager(&memRiskStore{err: boom}, 5, 100, time.Now())

	d, err := m.CanSignal(context.Background())

	require.ErrorIs(t, err, boom)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonStateUnavailable, d.Reason)
}

func TestCanSignal_UsesConfiguredTimezone(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	store := &memRiskStore{}
	m := NewRiskManager(store, RiskConfig{MaxSignalsPerCycle: 1, MaxDailyLoss: decimal.NewFromInt(1), Location: loc}, discardLogger())
	m.now = func() time.Time { return time.Date(2024, 5, 1, 22, 30, 0, 0, time.UTC) }

	d, err := m.CanSignal(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "2024-05-02", d.State.Date)
}

func TestRecordPnL_AccumulatesAndRolls(t *testing.T) {
	ctx := context.Background()
	store := &memRiskStore{state: domain.RiskState{Date: "2024-04-30", RealizedPnL: decimal.NewFromInt(-500)}}
	m := newRiskManager(store, 5, 100, time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))

	state, err := m.RecordPnL(ctx, decimal.RequireFromString("-60.25"))
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01", state.Date)
	assert.True(t, decimal.RequireFromString("-60.25").Equal(state.RealizedPnL))

	state, err = m.RecordPnL(ctx, decimal.RequireFromString("-39.75"))
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(-100).Equal(state.RealizedPnL))

	d, err := m.CanSignal(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReasonDailyLossLimit, d.Reason)
}

func TestStatus_ReportsCycleUsage(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	m := newRiskManager(&memRiskStore{}, 3, 100, now)

	_, err := m.CanSignal(ctx)
	require.NoError(t, err)

	status, err := m.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01", status.Date)
	assert.Equal(t, domain.RiskModeActive, status.Mode)
	assert.Equal(t, 1, status.CycleSignals)
	assert.Equal(t, 3, status.CycleLimit)
	assert.Equal(t, now, status.CheckedAt)
}

func TestRiskManager_FileBackedRolloverThenLossLimit(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "risk_state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"date":"2099-01-01","realizedPnL":"0"}`), 0o644))
	store := file.NewRiskStateStore(path, discardLogger())
	m := newRiskManager(store, 2, 100, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))

	d, err := m.CanSignal(ctx)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, "2024-05-01", d.State.Date)

	require.NoError(t, os.WriteFile(path, []byte(`{"date":"2024-05-01","realizedPnL":-150}`), 0o644))
	d, err = m.CanSignal(ctx)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonDailyLossLimit, d.Reason)
	assert.True(t, decimal.NewFromInt(-150).Equal(d.State.RealizedPnL))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var stored map[string]any
	require.NoError(t, json.Unmarshal(data, &stored))
	assert.Equal(t, "-150", stored["realizedPnL"])
}
