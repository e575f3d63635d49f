package market

import (
	"fmt"
	"strings"
)

// Side is the direction of a trade.
type Side string

const (
	Buy  Side = "Buy"
	Sell Side = "Sell"
)

// ParseSide normalizes the side synonyms used by signal providers.
// Long and Buy map to Buy, Short and Sell map to Sell.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "long":
		return Buy, nil
	case "sell", "short":
		return Sell, nil
	}
	return "", fmt.Errorf("unknown side %q", s)
}

// Sign is +1 for Buy and -1 for Sell.
func (s Side) Sign() float64 {
	if s == Sell {
		return -1
	}
	return 1
}

func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

func (s Side) String() string { return string(s) }

// ProfitPct is the signed percentage move from entry to price in the
// direction of side.
func ProfitPct(side Side, entry, price float64) float64 {
	if entry == 0 {
		return 0
	}
	return side.Sign() * (price - entry) * 100 / entry
}

// Better reports whether a is a more favorable price than b for side.
func Better(side Side, a, b float64) bool {
	if side == Sell {
		return a < b
	}
	return a > b
}
