package model

// Spread is an absolute bid/ask markup for one currency.
type Spread struct {
	Bid float64 `json:"bid"`
	Ask float64 `json:"ask"`
}

// PartySpreadConfig holds a counterparty's spreads per quote currency.
type PartySpreadConfig struct {
	PartyID         string                  `json:"partyId"`
	Name            string                  `json:"name,omitempty"`
	DefaultCurrency CurrencyCode            `json:"defaultCurrency,omitempty"`
	Spreads         map[CurrencyCode]Spread `json:"spreads"`
}

// PricedPair is a tradeable price for one pair.
type PricedPair struct {
	PairCode      string       `json:"pairCode"`
	Base          CurrencyCode `json:"base"`
	Quote         CurrencyCode `json:"quote"`
	Value         float64      `json:"value"`
	BuyRate       float64      `json:"buyRate"`
	SellRate      float64      `json:"sellRate"`
	Spread        float64      `json:"spread"`
	SpreadPercent float64      `json:"spreadPercent"`
}
