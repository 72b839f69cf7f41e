package service

import (
	"fmt"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// ValidatorConfig holds the pre-trade sanity thresholds.
type ValidatorConfig struct {
	MinVolume         float64
	MinVolumeBySource map[string]float64
	MaxSpreadPercent  float64
	BlockedSources    []string
}

// PreTradeValidator re-checks an opportunity against the latest venue data
// before it is signaled. It is pure and safe for concurrent use.
type PreTradeValidator struct {
	minVolume   float64
	minBySource map[string]float64
	maxSpread   float64
	blocked     map[string]struct{}
}

// NewPreTradeValidator builds a validator from cfg.
func NewPreTradeValidator(cfg ValidatorConfig) *PreTradeValidator {
	blocked := make(map[string]struct{}, len(cfg.BlockedSources))
	for _, s := range cfg.BlockedSources {
		blocked[s] = struct{}{}
	}
	bySource := make(map[string]float64, len(cfg.MinVolumeBySource))
	for src, v := range cfg.MinVolumeBySource {
		bySource[src] = v
	}
	return &PreTradeValidator{
		minVolume:   cfg.MinVolume,
		minBySource: bySource,
		maxSpread:   cfg.MaxSpreadPercent,
		blocked:     blocked,
	}
}

// Validate runs every check and returns all failure reasons in a fixed order:
// blocklist (buy, sell), spread sanity, then volume floor (buy, sell). The
// opportunity is accepted iff no reason was produced. A leg missing from idx
// is treated as having zero volume.
func (v *PreTradeValidator) Validate(opp domain.Opportunity, idx domain.QuoteIndex) (bool, []string) {
	var reasons []string

	if _, ok := v.blocked[opp.BuySource]; ok {
		reasons = append(reasons, "buy source blocked: "+opp.BuySource)
	}
	if _, ok := v.blocked[opp.SellSource]; ok {
		reasons = append(reasons, "sell source blocked: "+opp.SellSource)
	}

	if opp.BuyPrice > 0 && opp.SpreadPercent() > v.maxSpread {
		reasons = append(reasons, "spread exceeds sanity threshold")
	}

	if v.volumeOf(idx, opp.Symbol, opp.BuySource) < v.minFor(opp.BuySource) {
		reasons = append(reasons, fmt.Sprintf("insufficient volume on buy: %s", opp.BuySource))
	}
	if v.volumeOf(idx, opp.Symbol, opp.SellSource) < v.minFor(opp.SellSource) {
		reasons = append(reasons, fmt.Sprintf("insufficient volume on sell: %s", opp.SellSource))
	}

	return len(reasons) == 0, reasons
}

func (v *PreTradeValidator) minFor(source string) float64 {
	if m, ok := v.minBySource[source]; ok {
		return m
	}
	return v.minVolume
}

func (v *PreTradeValidator) volumeOf(idx domain.QuoteIndex, symbol, source string) float64 {
	q, ok := idx.Lookup(symbol, source)
	if !ok {
		return 0
	}
	return q.Volume
}
