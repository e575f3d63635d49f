package lifecycle

import "time"

const eps = 1e-9

// Evaluate applies one price to p and returns the updated position and the
// exit decision. It is pure; callers decide whether to keep the result.
//
// Precedence: stop-loss, take-profit, one scale-out level, trailing stop,
// profit protection.
func (r Rules) Evaluate(p Position, price float64, at time.Time) (Position, ExitDecision) {
	next := p.clone()
	next.LastTickAt = at

	cur := next.ProfitPct(price)
	if cur > next.HighestProfitPct {
		next.HighestProfitPct = cur
		next.HighestPrice = price
	}
	if next.HighestProfitPct >= r.ActivationPct {
		next.TrailingActivated = true
	}

	d := ExitDecision{Price: price, ProfitPct: cur}

	switch {
	case next.hitStopLoss(price):
		return closeAt(next, d, StopLoss, at)
	case next.hitTakeProfit(price):
		return closeAt(next, d, TakeProfit, at)
	}

	for _, l := range r.levels() {
		if next.taken(l.ThresholdPct) || cur < l.ThresholdPct {
			continue
		}
		next.PartialExits = append(next.PartialExits, l.ThresholdPct)
		size := l.Fraction * next.Notional
		if size >= next.Remaining-eps {
			// last slice of the position
			d.Level = l.ThresholdPct
			return closeAt(next, d, TakeProfit, at)
		}
		next.Remaining -= size
		d.Kind = Partial
		d.Level = l.ThresholdPct
		d.Notional = size
		return next, d
	}

	if next.TrailingActivated && cur <= next.HighestProfitPct-r.TrailDistancePct && cur >= r.MinProfitPct {
		return closeAt(next, d, TrailingStop, at)
	}
	if next.HighestProfitPct >= r.ActivationPct && cur < r.MinProfitPct {
		return closeAt(next, d, ProfitProtection, at)
	}
	return next, d
}

func closeAt(p Position, d ExitDecision, reason Reason, at time.Time) (Position, ExitDecision) {
	d.Kind = Full
	d.Reason = reason
	d.Notional = p.Remaining
	p.Remaining = 0
	p.Status = reason.Status()
	p.ClosedAt = at
	p.ExitPrice = d.Price
	return p, d
}
