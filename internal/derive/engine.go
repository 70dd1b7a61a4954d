// Package derive turns pivots and the gold quote into a full RateSnapshot.
package derive

import (
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/goldline/ratedesk/pkg/model"
)

// ErrNoPivots is returned when there is no pivot set at all.
var ErrNoPivots = errors.New("no pivot rates")

// Engine derives cross rates. It is safe for concurrent use.
type Engine struct {
	logger        *zap.Logger
	fallback      *Graph
	onUnsupported func(base, quote model.CurrencyCode)
	now           func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithFallbackPivots supplies configured pivots (keyed "<FROM>_TO_<TO>")
// used only when the live set cannot resolve a pair.
func WithFallbackPivots(rates map[string]float64) Option {
	return func(e *Engine) {
		if len(rates) == 0 {
			return
		}
		set := model.PivotRateSet{Rates: rates}
		e.fallback = NewGraph(set.Pairs())
	}
}

// WithUnsupportedHook is called once per pair that could not be derived.
func WithUnsupportedHook(fn func(base, quote model.CurrencyCode)) Option {
	return func(e *Engine) { e.onUnsupported = fn }
}

// WithClock replaces the time source used when pivots carry no timestamp.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine constructs an Engine.
func NewEngine(logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{logger: logger, now: time.Now}
	for _, o := range opts {
		o(e)
	}
	return e
}

type resolver struct {
	live     *Graph
	fallback *Graph
	merged   *Graph
	degraded bool
	used     []string
}

func (r *resolver) rate(from, to model.CurrencyCode) (float64, bool) {
	if v, ok := r.live.Rate(from, to); ok {
		return v, true
	}
	if r.fallback == nil {
		return 0, false
	}
	if r.merged == nil {
		r.merged = mergeGraphs(r.live, r.fallback)
	}
	v, ok := r.merged.Rate(from, to)
	if ok {
		r.degraded = true
		r.used = append(r.used, model.PairCode(from, to))
	}
	return v, ok
}

// mergeGraphs overlays live edges on top of fallback edges. A fallback edge
// is dropped when the live set publishes the pair in either direction.
func mergeGraphs(live, fallback *Graph) *Graph {
	var pivots []model.Pivot
	for from, m := range fallback.edges {
		for to, v := range m {
			if _, ok := live.edge(from, to); ok {
				continue
			}
			pivots = append(pivots, model.Pivot{From: from, To: to, Rate: v})
		}
	}
	for from, m := range live.edges {
		for to, v := range m {
			pivots = append(pivots, model.Pivot{From: from, To: to, Rate: v})
		}
	}
	return NewGraph(pivots)
}

// Derive builds the snapshot for base over supported. Only a missing pivot
// set fails the call; unresolvable pairs come back as zero-valued
// Unsupported entries.
func (e *Engine) Derive(
	base model.CurrencyCode,
	pivots *model.PivotRateSet,
	gold model.GoldQuote,
	supported []model.CurrencyCode,
	prev *model.RateSnapshot,
) (model.RateSnapshot, error) {
	if pivots == nil {
		return model.RateSnapshot{}, ErrNoPivots
	}

	at := pivots.FetchedAt
	if at.IsZero() {
		at = e.now().UTC()
	}

	res := &resolver{live: NewGraph(pivots.Pairs()), fallback: e.fallback}
	snap := model.RateSnapshot{
		Base:      base,
		Rates:     make(map[model.CurrencyCode]model.CurrencyRate, len(supported)),
		FetchedAt: at,
	}

	for _, quote := range supported {
		if quote == base {
			continue
		}
		if _, done := snap.Rates[quote]; done {
			continue
		}

		value, ok := e.value(res, base, quote, gold)
		if ok && (math.IsNaN(value) || math.IsInf(value, 0)) {
			e.logger.Warn("derive.non_finite_value",
				zap.String("base", base.String()),
				zap.String("quote", quote.String()))
			value = 0
		}
		if !ok {
			value = 0
			e.logger.Warn("derive.unsupported_pair",
				zap.String("base", base.String()),
				zap.String("quote", quote.String()))
			if e.onUnsupported != nil {
				e.onUnsupported(base, quote)
			}
		}

		cr := model.CurrencyRate{
			Value:       value,
			LastUpdated: at,
			Unsupported: !ok,
			Trend:       model.TrendNeutral,
		}
		if ok && prev != nil && prev.Base == base {
			if p, found := prev.Rate(quote); found && !p.Unsupported {
				cr.Change = value - p.Value
				if p.Value > 0 {
					cr.ChangePercent = cr.Change / p.Value * 100
				}
				cr.Trend = model.TrendOf(cr.Change)
			}
		}
		snap.Rates[quote] = cr
	}

	if res.degraded {
		snap.Degraded = true
		e.logger.Warn("derive.fallback_pivots_used",
			zap.String("base", base.String()),
			zap.Strings("pairs", res.used))
	}
	return snap, nil
}

func (e *Engine) value(res *resolver, base, quote model.CurrencyCode, gold model.GoldQuote) (float64, bool) {
	switch {
	case base.IsGold():
		if !gold.HasBid() {
			return 0, false
		}
		// grams of gold per USD times USD per unit of quote
		gramsPerUSD := model.OzToGrams / gold.Bid
		quoteToUSD, ok := res.rate(quote, model.USD)
		if !ok {
			return 0, false
		}
		return gramsPerUSD * quoteToUSD, true

	case quote.IsGold():
		if !gold.HasBid() {
			return 0, false
		}
		usdToBase, ok := res.rate(model.USD, base)
		if !ok {
			return 0, false
		}
		return gold.Bid * usdToBase / model.OzToGrams, true

	default:
		return res.rate(base, quote)
	}
}
