package model

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// PivotRateSet holds directly published rates keyed "<FROM>_TO_<TO>".
type PivotRateSet struct {
	Rates     map[string]float64 `json:"rates"`
	FetchedAt time.Time          `json:"fetchedAt"`
}

// Pivot is one parsed entry of a PivotRateSet.
type Pivot struct {
	From CurrencyCode
	To   CurrencyCode
	Rate float64
}

// PivotName renders the wire key for a pivot.
func PivotName(from, to CurrencyCode) string {
	return string(from) + "_TO_" + string(to)
}

// ParsePivotName splits "USD_TO_INR" into its two codes.
func ParsePivotName(name string) (CurrencyCode, CurrencyCode, error) {
	parts := strings.Split(strings.ToUpper(strings.TrimSpace(name)), "_TO_")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid pivot name %q", name)
	}
	from, err := ParseCurrency(parts[0])
	if err != nil {
		return "", "", err
	}
	to, err := ParseCurrency(parts[1])
	if err != nil {
		return "", "", err
	}
	if from == to {
		return "", "", fmt.Errorf("invalid pivot name %q", name)
	}
	return from, to, nil
}

// Pairs returns every usable pivot. Unparsable names and non-positive or
// non-finite rates are skipped.
func (p *PivotRateSet) Pairs() []Pivot {
	if p == nil {
		return nil
	}
	out := make([]Pivot, 0, len(p.Rates))
	for name, rate := range p.Rates {
		from, to, err := ParsePivotName(name)
		if err != nil || !IsUsableRate(rate) {
			continue
		}
		out = append(out, Pivot{From: from, To: to, Rate: rate})
	}
	return out
}

// IsUsableRate reports whether r is a positive finite number.
func IsUsableRate(r float64) bool {
	return r > 0 && !math.IsNaN(r) && !math.IsInf(r, 0)
}

// Trend is the direction of a rate move relative to the previous snapshot.
type Trend string

const (
	TrendUp      Trend = "up"
	TrendDown    Trend = "down"
	TrendNeutral Trend = "neutral"
)

// TrendOf derives a Trend from the sign of change.
func TrendOf(change float64) Trend {
	switch {
	case change > 0:
		return TrendUp
	case change < 0:
		return TrendDown
	default:
		return TrendNeutral
	}
}

// CurrencyRate is one cell of a RateSnapshot.
type CurrencyRate struct {
	Value         float64   `json:"value"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"changePercent"`
	Trend         Trend     `json:"trend"`
	LastUpdated   time.Time `json:"lastUpdated"`
	Unsupported   bool      `json:"unsupported,omitempty"`
}

// RateSnapshot expresses every supported currency against Base:
// 1 unit of Base = Rates[C].Value units of C. For C == XAU under a
// non-gold base, Value is the price of one gram of gold in Base.
type RateSnapshot struct {
	Base      CurrencyCode                  `json:"base"`
	Rates     map[CurrencyCode]CurrencyRate `json:"rates"`
	FetchedAt time.Time                     `json:"fetchedAt"`
	Degraded  bool                          `json:"degraded,omitempty"`
}

// Rate returns the entry for code and whether it exists.
func (s RateSnapshot) Rate(code CurrencyCode) (CurrencyRate, bool) {
	r, ok := s.Rates[code]
	return r, ok
}
