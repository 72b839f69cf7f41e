package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbscanner/internal/config"
)

func testConfig(t *testing.T, mode string) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	dir := t.TempDir()
	cfg.Mode = mode
	cfg.Scanner.Output = filepath.Join(dir, "latest.json")
	cfg.Risk.StatePath = filepath.Join(dir, "risk_state.json")
	return &cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWire_OnceModeWithoutInfrastructure(t *testing.T) {
	cfg := testConfig(t, "once")
	require.NoError(t, cfg.Validate())

	deps, cleanup, err := Wire(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	defer cleanup()

	assert.Nil(t, deps.Redis)
	assert.Nil(t, deps.Postgres)
	assert.Nil(t, deps.S3)
	assert.Nil(t, deps.Server)
	assert.Nil(t, deps.Hub)
	assert.Empty(t, deps.SignalSinks)
	assert.NotNil(t, deps.Universe)
	assert.NotNil(t, deps.Scanner)
	// mexc, bybit, bitget and dexscreener
	assert.Equal(t, 4, deps.Collectors.Len())
	assert.Equal(t, cfg.Scanner.Output, deps.Reports.Path())
}

func TestWire_FullModeAddsHubSink(t *testing.T) {
	cfg := testConfig(t, "full")
	cfg.Scanner.EnableP2P = true
	cfg.Scanner.UseCoinCapUniverse = false

	deps, cleanup, err := Wire(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	defer cleanup()

	require.NotNil(t, deps.Server)
	require.NotNil(t, deps.Hub)
	assert.Nil(t, deps.Universe)
	assert.Equal(t, 5, deps.Collectors.Len())
	require.Len(t, deps.SignalSinks, 1)
	assert.Equal(t, "ws", deps.SignalSinks[0].Name())
}

func TestWire_NotifierSinkOnlyWithSenders(t *testing.T) {
	cfg := testConfig(t, "once")
	cfg.Notify.DiscordWebhookURL = "http://127.0.0.1:1/webhook"

	deps, cleanup, err := Wire(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	defer cleanup()

	require.Len(t, deps.SignalSinks, 1)
	assert.Equal(t, "notify", deps.SignalSinks[0].Name())
}

func TestWire_RiskBackendNeedsItsStore(t *testing.T) {
	cfg := testConfig(t, "once")
	cfg.Risk.Backend = "redis"

	_, _, err := Wire(context.Background(), cfg, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis is not enabled")
}

func TestServesAPI(t *testing.T) {
	cases := []struct {
		mode    string
		enabled bool
		want    bool
	}{
		{"scan", false, false},
		{"scan", true, true},
		{"once", true, false},
		{"server", false, true},
		{"full", false, true},
	}
	for _, tc := range cases {
		cfg := config.Defaults()
		cfg.Mode = tc.mode
		cfg.Server.Enabled = tc.enabled
		assert.Equal(t, tc.want, servesAPI(&cfg), "mode=%s enabled=%v", tc.mode, tc.enabled)
	}
}
