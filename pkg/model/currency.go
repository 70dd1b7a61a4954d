package model

import (
	"fmt"
	"regexp"
	"strings"
)

// CurrencyCode is an upper-case 3-letter code. XAU denotes gold.
type CurrencyCode string

const (
	USD CurrencyCode = "USD"
	AED CurrencyCode = "AED"
	INR CurrencyCode = "INR"
	XAU CurrencyCode = "XAU"
)

// OzToGrams converts a troy-ounce price into a per-gram price.
const OzToGrams = 31.1035

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// ParseCurrency normalizes s to upper case and validates the 3-letter shape.
func ParseCurrency(s string) (CurrencyCode, error) {
	code := strings.ToUpper(strings.TrimSpace(s))
	if !currencyPattern.MatchString(code) {
		return "", fmt.Errorf("invalid currency code %q", s)
	}
	return CurrencyCode(code), nil
}

// MustCurrency is ParseCurrency for literals known to be valid.
func MustCurrency(s string) CurrencyCode {
	c, err := ParseCurrency(s)
	if err != nil {
		panic(err)
	}
	return c
}

// ParseCurrencies parses a list, skipping blanks and duplicates.
func ParseCurrencies(list []string) ([]CurrencyCode, error) {
	out := make([]CurrencyCode, 0, len(list))
	seen := make(map[CurrencyCode]struct{}, len(list))
	for _, s := range list {
		if strings.TrimSpace(s) == "" {
			continue
		}
		c, err := ParseCurrency(s)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out, nil
}

func (c CurrencyCode) String() string { return string(c) }

// IsGold reports whether c is the synthetic gold code.
func (c CurrencyCode) IsGold() bool { return c == XAU }

// PairCode renders the "<BASE>/<QUOTE>" pair identifier.
func PairCode(base, quote CurrencyCode) string {
	return string(base) + "/" + string(quote)
}

// ParsePairCode splits a "<BASE>/<QUOTE>" identifier. ":" and "-" separators are accepted too.
func ParsePairCode(pair string) (CurrencyCode, CurrencyCode, error) {
	sep := strings.IndexAny(pair, "/:-")
	if sep < 0 {
		return "", "", fmt.Errorf("invalid pair code %q", pair)
	}
	base, err := ParseCurrency(pair[:sep])
	if err != nil {
		return "", "", fmt.Errorf("invalid pair code %q: %w", pair, err)
	}
	quote, err := ParseCurrency(pair[sep+1:])
	if err != nil {
		return "", "", fmt.Errorf("invalid pair code %q: %w", pair, err)
	}
	if base == quote {
		return "", "", fmt.Errorf("invalid pair code %q: base equals quote", pair)
	}
	return base, quote, nil
}
