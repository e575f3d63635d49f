package risk

// Status is a point-in-time report of the account under its active profile.
type Status struct {
	Mode                 Mode     `json:"mode"`
	Balance              float64  `json:"balance"`
	Profit               float64  `json:"profit"`
	Progress             float64  `json:"progress"`
	Drawdown             float64  `json:"drawdown"`
	DrawdownRemaining    float64  `json:"drawdown_remaining"`
	RiskPerTrade         float64  `json:"risk_per_trade"`
	Multiplier           float64  `json:"multiplier"`
	DailyTrades          int      `json:"daily_trades"`
	DailyTradesRemaining int      `json:"daily_trades_remaining"`
	DailyLoss            float64  `json:"daily_loss"`
	DailyLossRemaining   float64  `json:"daily_loss_remaining"`
	DailyRealized        float64  `json:"daily_realized"`
	ConsecutiveLosses    int      `json:"consecutive_losses"`
	MinRiskReward        float64  `json:"min_risk_reward"`
	AllowedSymbols       []string `json:"allowed_symbols"`
	NearLimits           bool     `json:"near_limits"`
	EvaluationPassed     bool     `json:"evaluation_passed"`
	EvaluationFailed     bool     `json:"evaluation_failed"`
	Guidance             string   `json:"guidance"`
	LockProfit           bool     `json:"lock_profit"`
	LockAmount           float64  `json:"lock_amount"`
}

func (e *Engine) Status(a AccountState) Status {
	m := e.CurrentMode(a)
	p := e.profiles[m]
	lock, amt := e.ProfitLock(a)

	return Status{
		Mode:                 m,
		Balance:              a.Balance,
		Profit:               a.Profit(),
		Progress:             e.Progress(a),
		Drawdown:             a.CurrentDrawdown,
		DrawdownRemaining:    e.rules.MaxDrawdown - a.CurrentDrawdown,
		RiskPerTrade:         p.RiskPerTrade,
		Multiplier:           e.Multiplier(a, m),
		DailyTrades:          a.DailyTrades,
		DailyTradesRemaining: max(p.MaxDailyTrades-a.DailyTrades, 0),
		DailyLoss:            a.DailyLoss(),
		DailyLossRemaining:   max(p.MaxDailyLoss-a.DailyLoss(), 0),
		DailyRealized:        a.DailyRealized,
		ConsecutiveLosses:    a.ConsecutiveLosses,
		MinRiskReward:        p.MinRiskReward,
		AllowedSymbols:       append([]string(nil), p.AllowedSymbols...),
		NearLimits:           e.nearLimits(a),
		EvaluationPassed:     a.EvaluationPassed,
		EvaluationFailed:     a.EvaluationFailed,
		Guidance:             Guidance(m),
		LockProfit:           lock,
		LockAmount:           amt,
	}
}

// ProfitLock reports whether a funded account should withdraw profit and
// how much. The share grows with months funded.
func (e *Engine) ProfitLock(a AccountState) (bool, float64) {
	if !a.IsFunded {
		return false, 0
	}
	profit := a.Profit()

	var above, share float64
	switch {
	case a.MonthsFunded <= e.rules.ConservativeMonths:
		above, share = 200, 0.5
	case a.MonthsFunded <= e.rules.GrowthMonths:
		above, share = 300, 0.6
	default:
		above, share = 400, 0.7
	}
	if profit > above {
		return true, profit * share
	}
	return false, 0
}
