package risk

import (
	"math"

	"github.com/rustyeddy/propdesk/market"
)

// RiskReward is reward divided by risk measured from entry in the direction
// of side. Levels on the wrong side of entry count as zero distance.
func RiskReward(side market.Side, entry, stop, takeProfit float64) float64 {
	risk := side.Sign() * (entry - stop)
	reward := side.Sign() * (takeProfit - entry)
	if risk <= 0 || reward <= 0 {
		return 0
	}
	return reward / risk
}

// StopDistancePct is |entry - stop| / entry as a fraction.
func StopDistancePct(entry, stop float64) float64 {
	if entry <= 0 {
		return 0
	}
	return math.Abs(entry-stop) / entry
}

// PlannedRisk is the account-currency loss if a position of notional is
// stopped out.
func PlannedRisk(notional, entry, stop float64) float64 {
	return notional * StopDistancePct(entry, stop)
}

func RiskPct(plannedRisk, balance float64) float64 {
	if balance <= 0 {
		return math.Inf(1)
	}
	return plannedRisk / balance
}
