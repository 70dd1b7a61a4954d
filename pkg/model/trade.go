package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type TradeType string

const (
	TradeBuy  TradeType = "BUY"
	TradeSell TradeType = "SELL"
)

// ParseTradeType accepts buy/sell in any case.
func ParseTradeType(s string) (TradeType, error) {
	switch TradeType(strings.ToUpper(strings.TrimSpace(s))) {
	case TradeBuy:
		return TradeBuy, nil
	case TradeSell:
		return TradeSell, nil
	}
	return "", fmt.Errorf("trade type must be BUY or SELL, got %q", s)
}

type TradeStatus string

const (
	TradeActive  TradeStatus = "ACTIVE"
	TradeDeleted TradeStatus = "DELETED"
)

// Trade is the flat trade record exchanged with the persistence service.
type Trade struct {
	OrderID        string          `json:"orderId"`
	Reference      string          `json:"reference"`
	Type           TradeType       `json:"type"`
	BaseCurrency   CurrencyCode    `json:"baseCurrency"`
	TargetCurrency CurrencyCode    `json:"targetCurrency"`
	Amount         decimal.Decimal `json:"amount"`
	Rate           decimal.Decimal `json:"rate"`
	Converted      decimal.Decimal `json:"converted"`
	PartyID        string          `json:"partyId"`
	CurrentRate    decimal.Decimal `json:"currentRate"`
	BuyRate        decimal.Decimal `json:"buyRate"`
	SellRate       decimal.Decimal `json:"sellRate"`
	Timestamp      time.Time       `json:"timestamp"`
	Status         TradeStatus     `json:"status"`
}

// PairCode returns the trade's "<BASE>/<TARGET>" identifier.
func (t Trade) PairCode() string {
	return PairCode(t.BaseCurrency, t.TargetCurrency)
}
