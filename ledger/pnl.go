package ledger

import (
	"github.com/rustyeddy/propdesk/market"
	"github.com/shopspring/decimal"
)

// PnL is the realized result of closing notional at exit, rounded to cents.
func PnL(side market.Side, entry, exit, notional float64) float64 {
	if entry <= 0 {
		return 0
	}
	e := decimal.NewFromFloat(entry)
	v := decimal.NewFromFloat(exit).Sub(e).
		Mul(decimal.NewFromFloat(side.Sign())).
		Mul(decimal.NewFromFloat(notional)).
		Div(e).
		Round(2)
	f, _ := v.Float64()
	return f
}

func round2(x float64) float64 {
	f, _ := decimal.NewFromFloat(x).Round(2).Float64()
	return f
}
