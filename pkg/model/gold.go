package model

import (
	"fmt"
	"time"
)

// MarketStatus of the gold feed.
type MarketStatus string

const (
	MarketLoading   MarketStatus = "LOADING"
	MarketTradeable MarketStatus = "TRADEABLE"
	MarketError     MarketStatus = "ERROR"
)

// ParseMarketStatus maps wire values; unknown values yield ok=false.
func ParseMarketStatus(s string) (MarketStatus, bool) {
	switch MarketStatus(s) {
	case MarketLoading, MarketTradeable, MarketError:
		return MarketStatus(s), true
	}
	return "", false
}

// BidDirection marks the last bid move; empty when unchanged or unknown.
type BidDirection string

const (
	BidUp   BidDirection = "up"
	BidDown BidDirection = "down"
)

// GoldQuote is the tracked gold state. Prices are USD per troy ounce.
type GoldQuote struct {
	Bid                float64      `json:"bid"`
	Ask                float64      `json:"ask"`
	High               float64      `json:"high"`
	Low                float64      `json:"low"`
	OpenPrice          float64      `json:"openPrice"`
	MarketStatus       MarketStatus `json:"marketStatus"`
	ObservedAt         time.Time    `json:"observedAt"`
	MarketOpenedAt     time.Time    `json:"marketOpenedAt,omitempty"`
	BidChanged         BidDirection `json:"bidChanged,omitempty"`
	DailyChange        float64      `json:"dailyChange"`
	DailyChangePercent float64      `json:"dailyChangePercent"`
}

// HasBid reports whether a usable bid is known.
func (q GoldQuote) HasBid() bool { return IsUsableRate(q.Bid) }

// DailyChangeText renders DailyChange, "0.00" while the open price is unknown.
func (q GoldQuote) DailyChangeText() string {
	if q.OpenPrice <= 0 {
		return "0.00"
	}
	return fmt.Sprintf("%.2f", q.DailyChange)
}

// DailyChangePercentText renders DailyChangePercent, "0.00%" while the open price is unknown.
func (q GoldQuote) DailyChangePercentText() string {
	if q.OpenPrice <= 0 {
		return "0.00%"
	}
	return fmt.Sprintf("%.2f%%", q.DailyChangePercent)
}

// RawGoldTick is the wire shape of the gold feed. "offer" is the ask.
// Pointers distinguish absent fields from zeros.
type RawGoldTick struct {
	Bid                 *float64 `json:"bid"`
	Offer               *float64 `json:"offer"`
	High                *float64 `json:"high"`
	Low                 *float64 `json:"low"`
	OpenPrice           *float64 `json:"openPrice"`
	MarketStatus        string   `json:"marketStatus"`
	MarketOpenTimestamp string   `json:"marketOpenTimestamp"`
}
