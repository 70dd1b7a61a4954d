// Package pricing layers counterparty spreads over mid-market snapshots.
package pricing

import (
	"sort"

	"github.com/goldline/ratedesk/pkg/model"
)

// Price returns a PricedPair for every configured currency except the base,
// plus XAU. Currencies absent from the snapshot are skipped; missing spreads
// count as zero. The result is sorted by quote code with XAU last.
func Price(snap model.RateSnapshot, cfg model.PartySpreadConfig) []model.PricedPair {
	quotes := make(map[model.CurrencyCode]struct{}, len(cfg.Spreads)+1)
	for code := range cfg.Spreads {
		quotes[code] = struct{}{}
	}
	quotes[model.XAU] = struct{}{}

	out := make([]model.PricedPair, 0, len(quotes))
	for code := range quotes {
		if code == snap.Base {
			continue
		}
		pp, ok := PriceOne(snap, cfg, code)
		if !ok {
			continue
		}
		out = append(out, pp)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Quote, out[j].Quote
		if a.IsGold() != b.IsGold() {
			return b.IsGold()
		}
		return a < b
	})
	return out
}

// PriceOne prices a single quote currency against the snapshot base.
func PriceOne(snap model.RateSnapshot, cfg model.PartySpreadConfig, quote model.CurrencyCode) (model.PricedPair, bool) {
	rate, ok := snap.Rate(quote)
	if !ok {
		return model.PricedPair{}, false
	}
	sp := cfg.Spreads[quote]

	pp := model.PricedPair{
		PairCode: model.PairCode(snap.Base, quote),
		Base:     snap.Base,
		Quote:    quote,
		Value:    rate.Value,
		BuyRate:  rate.Value + sp.Bid,
		SellRate: rate.Value - sp.Ask,
		Spread:   sp.Bid + sp.Ask,
	}
	if rate.Value != 0 {
		pp.SpreadPercent = pp.Spread / rate.Value * 100
	}
	return pp, true
}
