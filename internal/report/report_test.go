package report

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

type memBlob struct {
	puts map[string][]byte
	err  error
}

func (m *memBlob) Put(_ context.Context, key string, data io.Reader, contentType string) error {
	if m.err != nil {
		return m.err
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if m.puts == nil {
		m.puts = map[string][]byte{}
	}
	m.puts[key] = b
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleReport() domain.Report {
	return domain.Report{
		Timestamp:   time.Date(2026, 3, 1, 9, 30, 15, 0, time.UTC),
		QuotesCount: 4,
		Opportunities: []domain.Opportunity{{
			Symbol: "BTC", BuySource: "mexc", SellSource: "bybit",
			BuyPrice: 100.2, SellPrice: 102, NetPercent: 1.3964, Currency: "USDT",
		}},
	}
}

func TestWriter_WritesAndArchives(t *testing.T) {
	local := filepath.Join(t.TempDir(), "trades", "latest.json")
	blob := &memBlob{}
	w := NewWriter(local, blob, "reports", discardLogger())

	require.NoError(t, w.Write(context.Background(), sampleReport()))

	got, err := LoadLatest(local)
	require.NoError(t, err)
	assert.Equal(t, 4, got.QuotesCount)
	require.Len(t, got.Opportunities, 1)
	assert.Equal(t, "BTC", got.Opportunities[0].Symbol)

	onDisk, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, onDisk, blob.puts["reports/2026/03/01/20260301T093015.000Z.json"])
}

func TestWriter_EmptyOpportunitiesEncodeAsArray(t *testing.T) {
	local := filepath.Join(t.TempDir(), "latest.json")
	w := NewWriter(local, nil, "", discardLogger())

	require.NoError(t, w.Write(context.Background(), domain.Report{Timestamp: time.Now()}))

	data, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"opportunities": []`)
}

func TestWriter_ArchiveFailureKeepsLocalCopy(t *testing.T) {
	local := filepath.Join(t.TempDir(), "latest.json")
	w := NewWriter(local, &memBlob{err: errors.New("s3 down")}, "reports", discardLogger())

	err := w.Write(context.Background(), sampleReport())

	require.NoError(t, err)
	_, statErr := os.Stat(local)
	assert.NoError(t, statErr)
}

func TestLoadLatest_Missing(t *testing.T) {
	_, err := LoadLatest(filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSummaryLines(t *testing.T) {
	opps := []domain.Opportunity{
		{Symbol: "BTC", Currency: "USDT", BuySource: "mexc", BuyPrice: 100.2, SellSource: "bybit", SellPrice: 102, NetPercent: 1.3964},
		{Symbol: "ETH", Currency: "USDT", BuySource: "a", BuyPrice: 1, SellSource: "b", SellPrice: 2, NetPercent: 0.9},
	}

	lines := SummaryLines(opps, 1)

	require.Len(t, lines, 1)
	assert.Equal(t, "BTC [USDT] | buy mexc 100.200000 -> sell bybit 102.000000 | net=1.396%", lines[0])
	assert.Empty(t, SummaryLines(opps, 0))
	assert.Empty(t, SummaryLines(opps, -1))
	assert.Len(t, SummaryLines(opps, 10), 2)
}
