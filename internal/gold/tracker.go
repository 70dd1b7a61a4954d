// Package gold maintains the live gold quote from raw feed ticks.
package gold

import (
	"math"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/goldline/ratedesk/pkg/model"
)

// Next folds a raw tick into the previous quote. It is pure.
//
// A nil tick or one without a usable bid flips the status to ERROR and keeps
// every other field. The open price is anchored by the first valid tick and
// never moves afterwards.
func Next(prev model.GoldQuote, raw *model.RawGoldTick, now time.Time) model.GoldQuote {
	if raw == nil || raw.Bid == nil || !model.IsUsableRate(*raw.Bid) {
		next := prev
		next.MarketStatus = model.MarketError
		return next
	}

	bid := *raw.Bid
	next := prev
	next.Bid = bid
	next.ObservedAt = now
	next.Ask = pick(raw.Offer, prev.Ask)
	next.High = pick(raw.High, prev.High)
	next.Low = pick(raw.Low, prev.Low)

	if status, ok := model.ParseMarketStatus(raw.MarketStatus); ok {
		next.MarketStatus = status
	} else {
		next.MarketStatus = model.MarketTradeable
	}

	switch {
	case !prev.HasBid():
		next.BidChanged = ""
	case bid > prev.Bid:
		next.BidChanged = model.BidUp
	case bid < prev.Bid:
		next.BidChanged = model.BidDown
	default:
		next.BidChanged = ""
	}

	if prev.OpenPrice <= 0 {
		next.OpenPrice = pick(raw.OpenPrice, bid)
	}
	next.DailyChange = bid - next.OpenPrice
	next.DailyChangePercent = next.DailyChange / next.OpenPrice * 100

	if ts, ok := parseOpenTimestamp(raw.MarketOpenTimestamp); ok {
		next.MarketOpenedAt = ts
	}
	return next
}

func pick(v *float64, fallback float64) float64 {
	if v != nil && model.IsUsableRate(*v) {
		return *v
	}
	return fallback
}

// parseOpenTimestamp accepts RFC3339 or epoch milliseconds.
func parseOpenTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil && ms > 0 && ms < math.MaxInt64/int64(time.Millisecond) {
		return time.UnixMilli(ms).UTC(), true
	}
	return time.Time{}, false
}

// Tracker holds the latest GoldQuote behind a lock. Feeds call Update;
// the refresher and the API read Latest.
type Tracker struct {
	mu     sync.RWMutex
	quote  model.GoldQuote
	logger *zap.Logger
	now    func() time.Time
}

// NewTracker returns a tracker in the LOADING state.
func NewTracker(logger *zap.Logger) *Tracker {
	return &Tracker{
		quote:  model.GoldQuote{MarketStatus: model.MarketLoading},
		logger: logger,
		now:    time.Now,
	}
}

// WithClock replaces the time source; used by tests.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// Update applies a raw tick and returns the resulting quote.
func (t *Tracker) Update(raw *model.RawGoldTick) model.GoldQuote {
	t.mu.Lock()
	prev := t.quote
	next := Next(prev, raw, t.now().UTC())
	t.quote = next
	t.mu.Unlock()

	if next.MarketStatus == model.MarketError && prev.MarketStatus != model.MarketError {
		t.logger.Warn("gold.feed_error", zap.Float64("last_bid", next.Bid))
	}
	if prev.OpenPrice <= 0 && next.OpenPrice > 0 {
		t.logger.Info("gold.open_price_anchored", zap.Float64("open_price", next.OpenPrice))
	}
	return next
}

// Latest returns the current quote.
func (t *Tracker) Latest() model.GoldQuote {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.quote
}
