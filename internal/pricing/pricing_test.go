package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goldline/ratedesk/pkg/model"
)

func snap(base model.CurrencyCode, values map[model.CurrencyCode]float64) model.RateSnapshot {
	rates := make(map[model.CurrencyCode]model.CurrencyRate, len(values))
	for c, v := range values {
		rates[c] = model.CurrencyRate{Value: v}
	}
	return model.RateSnapshot{Base: base, Rates: rates}
}

func TestPriceOne_ScenarioC(t *testing.T) {
	s := snap("USD", map[model.CurrencyCode]float64{"AED": 3.6725})
	cfg := model.PartySpreadConfig{PartyID: "P1", Spreads: map[model.CurrencyCode]model.Spread{"AED": {Bid: 0.01, Ask: 0.01}}}

	pp, ok := PriceOne(s, cfg, "AED")
	require.True(t, ok)
	assert.Equal(t, "USD/AED", pp.PairCode)
	assert.InDelta(t, 3.6825, pp.BuyRate, 1e-12)
	assert.InDelta(t, 3.6625, pp.SellRate, 1e-12)
	assert.InDelta(t, 0.02, pp.Spread, 1e-12)
	assert.InDelta(t, 0.02/3.6725*100, pp.SpreadPercent, 1e-12)
}

func TestPrice_IncludesGoldAndSkipsBase(t *testing.T) {
	s := snap("AED", map[model.CurrencyCode]float64{"USD": 0.27228, "INR": 22.736, "XAU": 236.15})
	cfg := model.PartySpreadConfig{Spreads: map[model.CurrencyCode]model.Spread{
		"AED": {Bid: 1, Ask: 1},
		"INR": {Bid: 0.05, Ask: 0.03},
		"USD": {},
		"GBP": {Bid: 0.01, Ask: 0.01},
	}}

	out := Price(s, cfg)
	require.Len(t, out, 3, "AED is the base, GBP is not in the snapshot")
	assert.Equal(t, model.CurrencyCode("INR"), out[0].Quote)
	assert.Equal(t, model.CurrencyCode("USD"), out[1].Quote)
	assert.Equal(t, model.CurrencyCode("XAU"), out[2].Quote, "gold is always last")

	xau := out[2]
	assert.Equal(t, xau.Value, xau.BuyRate, "missing gold spread defaults to zero")
	assert.Equal(t, 0.0, xau.SpreadPercent)
}

func TestPrice_BuyValueSellOrdering(t *testing.T) {
	s := snap("AED", map[model.CurrencyCode]float64{"USD": 0.27228, "INR": 22.736, "XAU": 236.15})
	cfg := model.PartySpreadConfig{Spreads: map[model.CurrencyCode]model.Spread{
		"INR": {Bid: 0.05, Ask: 0.03},
		"USD": {Bid: 0.001, Ask: 0.002},
		"XAU": {Bid: 0.5, Ask: 0.5},
	}}

	for _, pp := range Price(s, cfg) {
		assert.GreaterOrEqual(t, pp.BuyRate, pp.Value, pp.PairCode)
		assert.GreaterOrEqual(t, pp.Value, pp.SellRate, pp.PairCode)
	}
}

func TestPrice_ZeroValueHasZeroSpreadPercent(t *testing.T) {
	s := snap("AED", map[model.CurrencyCode]float64{"EUR": 0})
	cfg := model.PartySpreadConfig{Spreads: map[model.CurrencyCode]model.Spread{"EUR": {Bid: 0.01, Ask: 0.01}}}

	out := Price(s, cfg)
	require.Len(t, out, 1)
	assert.Equal(t, 0.0, out[0].SpreadPercent)
}

func TestPrice_GoldBaseExcludesGold(t *testing.T) {
	s := snap("XAU", map[model.CurrencyCode]float64{"USD": 0.0155})
	out := Price(s, model.PartySpreadConfig{Spreads: map[model.CurrencyCode]model.Spread{"USD": {}}})
	require.Len(t, out, 1)
	assert.Equal(t, "XAU/USD", out[0].PairCode)
}

func TestPrice_EmptyConfigStillPricesGold(t *testing.T) {
	s := snap("AED", map[model.CurrencyCode]float64{"XAU": 236.15, "USD": 0.27})
	out := Price(s, model.PartySpreadConfig{})
	require.Len(t, out, 1)
	assert.Equal(t, model.CurrencyCode("XAU"), out[0].Quote)
}
