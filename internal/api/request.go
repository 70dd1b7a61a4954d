package api

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeRequest is the payload to execute or edit a trade. A missing rate
// takes the party's current buy or sell rate.
type TradeRequest struct {
	Type      string          `json:"type" validate:"required,oneof=BUY SELL buy sell" example:"BUY"`
	PairCode  string          `json:"pairCode" validate:"required" example:"USD/AED"`
	Amount    decimal.Decimal `json:"amount" example:"1000"`
	Rate      decimal.Decimal `json:"rate,omitempty" example:"3.6725"`
	PartyID   string          `json:"partyId" validate:"required" example:"P1"`
	Reference string          `json:"reference,omitempty"`
}

// WatchRequest adds a currency to a watchlist.
type WatchRequest struct {
	Code string `json:"code" validate:"required,len=3,alpha" example:"INR"`
}

// GoldResponse is the latest gold quote with rendered daily change.
type GoldResponse struct {
	Bid                float64    `json:"bid"`
	Ask                float64    `json:"ask"`
	High               float64    `json:"high"`
	Low                float64    `json:"low"`
	OpenPrice          float64    `json:"openPrice"`
	MarketStatus       string     `json:"marketStatus"`
	BidChanged         string     `json:"bidChanged,omitempty"`
	DailyChange        string     `json:"dailyChange"`
	DailyChangePercent string     `json:"dailyChangePercent"`
	ObservedAt         time.Time  `json:"observedAt"`
	MarketOpenedAt     *time.Time `json:"marketOpenedAt,omitempty"`
}
