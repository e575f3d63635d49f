package risk

import (
	"math"
	"time"
)

// AccountState is the mutable account aggregate. The ledger is its only
// writer; everything else works on copies.
type AccountState struct {
	InitialCapital    float64 `json:"initial_capital"`
	Balance           float64 `json:"balance"`
	PeakBalance       float64 `json:"peak_balance"`
	DailyStartBalance float64 `json:"daily_start_balance"`

	// DailyPnL accumulates losses only and is compared against the daily
	// loss limit. DailyRealized is the net realized result of the day.
	DailyPnL      float64 `json:"daily_pnl"`
	DailyRealized float64 `json:"daily_realized"`
	DailyTrades   int     `json:"daily_trades"`
	DailyWins     int     `json:"daily_wins"`
	DailyLosses   int     `json:"daily_losses"`
	DailyPeak     float64 `json:"daily_peak"`
	DailyTrough   float64 `json:"daily_trough"`
	DailyDrawdown float64 `json:"daily_drawdown"`

	ConsecutiveLosses int     `json:"consecutive_losses"`
	CurrentDrawdown   float64 `json:"current_drawdown"`
	MaxDrawdownSeen   float64 `json:"max_drawdown_seen"`

	IsFunded         bool `json:"is_funded"`
	MonthsFunded     int  `json:"months_funded"`
	EvaluationPassed bool `json:"evaluation_passed"`
	EvaluationFailed bool `json:"evaluation_failed"`

	Mode         Mode      `json:"mode"`
	DailyResetAt time.Time `json:"daily_reset_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Terminal reports whether the evaluation has ended either way.
func (a AccountState) Terminal() bool {
	return a.EvaluationPassed || a.EvaluationFailed
}

// Profit is balance above the starting capital.
func (a AccountState) Profit() float64 {
	return a.Balance - a.InitialCapital
}

// DailyLoss is the absolute loss accumulated today.
func (a AccountState) DailyLoss() float64 {
	return math.Abs(a.DailyPnL)
}

// DailyPerformance is the archived summary of one trading day.
type DailyPerformance struct {
	Date         string  `json:"date"`
	StartBalance float64 `json:"start_balance"`
	EndBalance   float64 `json:"end_balance"`
	PnL          float64 `json:"pnl"`
	PnLPct       float64 `json:"pnl_pct"`
	Trades       int     `json:"trades"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	MaxDrawdown  float64 `json:"max_drawdown"`
	Mode         Mode    `json:"mode"`
}

// NextReset returns the first daily boundary strictly after t. The boundary
// is offset after midnight UTC.
func NextReset(t time.Time, offset time.Duration) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	next := day.Add(offset)
	for !next.After(t) {
		day = day.AddDate(0, 0, 1)
		next = day.Add(offset)
	}
	return next
}

func (a *AccountState) trackBalance() {
	if a.Balance > a.PeakBalance {
		a.PeakBalance = a.Balance
	}
	a.CurrentDrawdown = a.PeakBalance - a.Balance
	if a.CurrentDrawdown > a.MaxDrawdownSeen {
		a.MaxDrawdownSeen = a.CurrentDrawdown
	}
	if a.Balance > a.DailyPeak {
		a.DailyPeak = a.Balance
	}
	if a.Balance < a.DailyTrough {
		a.DailyTrough = a.Balance
	}
	if dd := a.DailyPeak - a.Balance; dd > a.DailyDrawdown {
		a.DailyDrawdown = dd
	}
}
