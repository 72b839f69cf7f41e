package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

func testValidator() *PreTradeValidator {
	return NewPreTradeValidator(ValidatorConfig{
		MinVolume:        1000,
		MaxSpreadPercent: 20,
		BlockedSources:   []string{"badex"},
	})
}

func TestValidate_AcceptsHealthyOpportunity(t *testing.T) {
	opp := domain.Opportunity{Symbol: "BTC", BuySource: "mexc", SellSource: "bybit", BuyPrice: 100, SellPrice: 101}
	idx := domain.IndexQuotes([]domain.Quote{
		{Symbol: "BTC", Source: "mexc", Volume: 5000},
		{Symbol: "BTC", Source: "bybit", Volume: 1000},
	})

	ok, reasons := testValidator().Validate(opp, idx)

	assert.True(t, ok)
	assert.Empty(t, reasons)
}

func TestValidate_CollectsEveryReasonInOrder(t *testing.T) {
	opp := domain.Opportunity{Symbol: "BTC", BuySource: "badex", SellSource: "cex", BuyPrice: 100, SellPrice: 130}
	idx := domain.IndexQuotes([]domain.Quote{
		{Symbol: "BTC", Source: "badex", Volume: 10},
		{Symbol: "BTC", Source: "cex", Volume: 10},
	})

	ok, reasons := testValidator().Validate(opp, idx)

	assert.False(t, ok)
	assert.Equal(t, []string{
		"buy source blocked: badex",
		"spread exceeds sanity threshold",
		"insufficient volume on buy: badex",
		"insufficient volume on sell: cex",
	}, reasons)
}

func TestValidate_BothSidesBlocked(t *testing.T) {
	v := NewPreTradeValidator(ValidatorConfig{MaxSpreadPercent: 20, BlockedSources: []string{"a", "b"}})
	opp := domain.Opportunity{Symbol: "ETH", BuySource: "a", SellSource: "b", BuyPrice: 10, SellPrice: 10.1}

	ok, reasons := v.Validate(opp, domain.QuoteIndex{})

	assert.False(t, ok)
	assert.Equal(t, []string{"buy source blocked: a", "sell source blocked: b"}, reasons)
}

func TestValidate_MissingQuoteCountsAsZeroVolume(t *testing.T) {
	opp := domain.Opportunity{Symbol: "SOL", BuySource: "mexc", SellSource: "bitget", BuyPrice: 10, SellPrice: 10.2}
	idx := domain.IndexQuotes([]domain.Quote{{Symbol: "SOL", Source: "bitget", Volume: 1e6}})

	ok, reasons := testValidator().Validate(opp, idx)

	assert.False(t, ok)
	assert.Equal(t, []string{"insufficient volume on buy: mexc"}, reasons)
}

func TestValidate_SpreadAtThresholdPasses(t *testing.T) {
	opp := domain.Opportunity{Symbol: "X", BuySource: "a", SellSource: "b", BuyPrice: 100, SellPrice: 120}
	idx := domain.IndexQuotes([]domain.Quote{
		{Symbol: "X", Source: "a", Volume: 1000},
		{Symbol: "X", Source: "b", Volume: 1000},
	})

	ok, reasons := testValidator().Validate(opp, idx)

	assert.True(t, ok, reasons)
}

func TestValidate_PerSourceVolumeFloor(t *testing.T) {
	v := NewPreTradeValidator(ValidatorConfig{
		MinVolume:         1000,
		MinVolumeBySource: map[string]float64{"bybit_p2p": 100},
		MaxSpreadPercent:  20,
	})
	opp := domain.Opportunity{Symbol: "USDT", BuySource: "bybit_p2p", SellSource: "mexc", BuyPrice: 1, SellPrice: 1.05}
	idx := domain.IndexQuotes([]domain.Quote{
		{Symbol: "USDT", Source: "bybit_p2p", Volume: 150},
		{Symbol: "USDT", Source: "mexc", Volume: 500},
	})

	ok, reasons := v.Validate(opp, idx)

	assert.False(t, ok)
	assert.Equal(t, []string{"insufficient volume on sell: mexc"}, reasons)
}

func TestValidate_UsesNewestIndexedQuote(t *testing.T) {
	now := time.Now()
	opp := domain.Opportunity{Symbol: "BTC", BuySource: "a", SellSource: "b", BuyPrice: 100, SellPrice: 101}
	idx := domain.IndexQuotes([]domain.Quote{
		{Symbol: "BTC", Source: "a", Volume: 5000, ObservedAt: now},
		{Symbol: "BTC", Source: "a", Volume: 1, ObservedAt: now.Add(-time.Minute)},
		{Symbol: "BTC", Source: "b", Volume: 1, ObservedAt: now},
		{Symbol: "BTC", Source: "b", Volume: 5000, ObservedAt: now},
	})

	ok, reasons := testValidator().Validate(opp, idx)

	assert.True(t, ok, reasons)
}
