package risk

import (
	"fmt"
	"time"

	"github.com/rustyeddy/propdesk/signal"
)

// Reason is the machine-readable outcome of an admission check.
type Reason string

const (
	ReasonAccepted               Reason = "accepted"
	ReasonEvaluationPassed       Reason = "evaluation_passed"
	ReasonEvaluationFailed       Reason = "evaluation_failed"
	ReasonTradingHalted          Reason = "trading_halted"
	ReasonDailyTradeLimit        Reason = "daily_trade_limit"
	ReasonSymbolNotAllowed       Reason = "symbol_not_allowed"
	ReasonInsufficientConfluence Reason = "insufficient_confluence"
	ReasonConsecutiveLossLimit   Reason = "consecutive_loss_limit"
	ReasonRiskRewardTooLow       Reason = "risk_reward_too_low"
	ReasonWouldBreachDrawdown    Reason = "would_breach_drawdown"
	ReasonWouldBreachDailyLoss   Reason = "would_breach_daily_loss"
)

// Rules are the evaluation limits and mode-table thresholds. Money values
// are in account currency, progress values are fractions of the profit
// target.
type Rules struct {
	InitialCapital float64
	ProfitTarget   float64
	MaxDrawdown    float64
	MaxDailyLoss   float64

	RecoveryDrawdown       float64
	FundedRecoveryDrawdown float64
	ConservativeMonths     int
	GrowthMonths           int

	FinalModeProgress     float64
	FinalApproachProgress float64

	WarningThreshold     float64
	ReduceSizeNearLimits bool

	// DailyReset is the reset boundary as an offset after midnight UTC.
	DailyReset time.Duration
	// KeepLossStreak carries ConsecutiveLosses across daily resets.
	KeepLossStreak bool
}

func DefaultRules() Rules {
	return Rules{
		InitialCapital:         10000,
		ProfitTarget:           1000,
		MaxDrawdown:            600,
		MaxDailyLoss:           500,
		RecoveryDrawdown:       500,
		FundedRecoveryDrawdown: 400,
		ConservativeMonths:     3,
		GrowthMonths:           6,
		FinalModeProgress:      0.8,
		FinalApproachProgress:  0.95,
		WarningThreshold:       0.75,
		ReduceSizeNearLimits:   true,
		DailyReset:             30 * time.Minute,
	}
}

func (r Rules) Validate() error {
	switch {
	case r.InitialCapital <= 0:
		return fmt.Errorf("initial capital must be > 0")
	case r.ProfitTarget <= 0:
		return fmt.Errorf("profit target must be > 0")
	case r.MaxDrawdown <= 0 || r.MaxDailyLoss <= 0:
		return fmt.Errorf("max drawdown and max daily loss must be > 0")
	case r.FinalModeProgress <= 0 || r.FinalModeProgress > r.FinalApproachProgress:
		return fmt.Errorf("final mode progress %v must be in (0, %v]", r.FinalModeProgress, r.FinalApproachProgress)
	case r.DailyReset < 0 || r.DailyReset >= 24*time.Hour:
		return fmt.Errorf("daily reset %v outside one day", r.DailyReset)
	}
	return nil
}

// Hints carry the sizing inputs derived during admission.
type Hints struct {
	Multiplier   float64 `json:"multiplier"`
	RiskFraction float64 `json:"risk_fraction"`
	PlannedRisk  float64 `json:"planned_risk"`
}

// Admission is the result of CanAdmit.
type Admission struct {
	Allowed    bool    `json:"allowed"`
	Reason     Reason  `json:"reason"`
	Detail     string  `json:"detail,omitempty"`
	Mode       Mode    `json:"mode"`
	Profile    Profile `json:"-"`
	RiskReward float64 `json:"risk_reward"`
	Progress   float64 `json:"progress"`
	Hints      Hints   `json:"hints"`
}

func (a *Admission) reject(r Reason, format string, args ...any) {
	a.Allowed = false
	a.Reason = r
	a.Detail = fmt.Sprintf(format, args...)
}

// Engine derives the active mode from account telemetry and decides
// admission. It holds only static configuration; account state is passed
// in by the caller.
type Engine struct {
	rules    Rules
	profiles Profiles
}

func NewEngine(rules Rules, profiles Profiles) *Engine {
	if profiles == nil {
		profiles = DefaultProfiles()
	}
	return &Engine{rules: rules, profiles: profiles.Clone()}
}

func (e *Engine) Rules() Rules { return e.rules }

// Profile returns a copy of the profile for m.
func (e *Engine) Profile(m Mode) Profile {
	return e.profiles[m].clone()
}

// NewAccount creates an account at the start of an evaluation or a funded
// period.
func (e *Engine) NewAccount(funded bool, months int, now time.Time) AccountState {
	c := e.rules.InitialCapital
	a := AccountState{
		InitialCapital:    c,
		Balance:           c,
		PeakBalance:       c,
		DailyStartBalance: c,
		DailyPeak:         c,
		DailyTrough:       c,
		IsFunded:          funded,
		MonthsFunded:      months,
		DailyResetAt:      NextReset(now, e.rules.DailyReset),
		UpdatedAt:         now.UTC(),
	}
	a.Mode = e.ModeFor(a)
	return a
}

// Progress is the fraction of the profit target achieved.
func (e *Engine) Progress(a AccountState) float64 {
	if e.rules.ProfitTarget <= 0 {
		return 0
	}
	return (a.Balance - a.InitialCapital) / e.rules.ProfitTarget
}

// ModeFor runs the mode table. It never returns Stopped.
func (e *Engine) ModeFor(a AccountState) Mode {
	dd := a.PeakBalance - a.Balance
	if !a.IsFunded {
		switch {
		case dd > e.rules.RecoveryDrawdown:
			return Recovery
		case e.Progress(a) >= e.rules.FinalModeProgress:
			return EvaluationFinal
		}
		return EvaluationNormal
	}

	switch {
	case dd > e.rules.FundedRecoveryDrawdown:
		return Recovery
	case a.MonthsFunded <= e.rules.ConservativeMonths:
		return FundedConservative
	case a.MonthsFunded <= e.rules.GrowthMonths:
		return FundedGrowth
	}
	return FundedScaled
}

// CurrentMode is Stopped while the halt is in force, otherwise the table.
func (e *Engine) CurrentMode(a AccountState) Mode {
	if a.Mode == Stopped {
		return Stopped
	}
	return e.ModeFor(a)
}

// Refresh stores the current mode on the account.
func (e *Engine) Refresh(a *AccountState) Mode {
	a.Mode = e.CurrentMode(*a)
	return a.Mode
}

// Multiplier is the size multiplier for a new trade in mode m.
func (e *Engine) Multiplier(a AccountState, m Mode) float64 {
	mult := e.profiles[m].SizeMultiplier
	if m == EvaluationFinal && e.Progress(a) >= e.rules.FinalApproachProgress {
		mult /= 2
	}
	if e.rules.ReduceSizeNearLimits && e.nearLimits(a) {
		mult /= 2
	}
	return mult
}

func (e *Engine) nearLimits(a AccountState) bool {
	w := e.rules.WarningThreshold
	if w <= 0 {
		return false
	}
	return a.DailyLoss() >= w*e.rules.MaxDailyLoss || a.CurrentDrawdown >= w*e.rules.MaxDrawdown
}

// Project checks whether losing risk more would exceed the drawdown or
// daily loss limits.
func (e *Engine) Project(a AccountState, risk float64) (Reason, string, bool) {
	if dd := a.CurrentDrawdown + risk; dd > e.rules.MaxDrawdown {
		return ReasonWouldBreachDrawdown,
			fmt.Sprintf("projected drawdown %.2f exceeds max %.2f", dd, e.rules.MaxDrawdown), false
	}
	if dl := a.DailyLoss() + risk; dl > e.rules.MaxDailyLoss {
		return ReasonWouldBreachDailyLoss,
			fmt.Sprintf("projected daily loss %.2f exceeds max %.2f", dl, e.rules.MaxDailyLoss), false
	}
	return ReasonAccepted, "", true
}

// CanAdmit runs the admission chain for intent against a. It does not
// modify the account.
func (e *Engine) CanAdmit(intent signal.TradeIntent, a AccountState) Admission {
	mode := e.CurrentMode(a)
	p := e.profiles[mode]
	adm := Admission{
		Allowed:    true,
		Reason:     ReasonAccepted,
		Mode:       mode,
		Profile:    p.clone(),
		RiskReward: RiskReward(intent.Side, intent.Entry, intent.StopLoss, intent.TakeProfit),
		Progress:   e.Progress(a),
	}

	switch {
	case a.EvaluationPassed:
		adm.reject(ReasonEvaluationPassed, "evaluation passed, no further trades")
		return adm
	case a.EvaluationFailed:
		adm.reject(ReasonEvaluationFailed, "evaluation failed, no further trades")
		return adm
	}

	if mode == Stopped {
		adm.reject(ReasonTradingHalted, "daily loss %.2f reached limit, halted until reset", a.DailyLoss())
		return adm
	}
	if a.DailyTrades >= p.MaxDailyTrades {
		adm.reject(ReasonDailyTradeLimit, "daily trades %d >= max %d", a.DailyTrades, p.MaxDailyTrades)
		return adm
	}
	if !p.Allows(intent.Symbol) {
		adm.reject(ReasonSymbolNotAllowed, "%s not allowed in %s", intent.Symbol, mode)
		return adm
	}
	if intent.Confluence < p.RequiredConfluence {
		adm.reject(ReasonInsufficientConfluence, "confluence %d < required %d", intent.Confluence, p.RequiredConfluence)
		return adm
	}
	if a.ConsecutiveLosses >= p.StopAfterLosses {
		adm.reject(ReasonConsecutiveLossLimit, "consecutive losses %d >= %d", a.ConsecutiveLosses, p.StopAfterLosses)
		return adm
	}
	if adm.RiskReward < p.MinRiskReward {
		adm.reject(ReasonRiskRewardTooLow, "RR %.2f below minimum %.2f", adm.RiskReward, p.MinRiskReward)
		return adm
	}

	adm.Hints.Multiplier = e.Multiplier(a, mode)
	adm.Hints.RiskFraction = p.RiskPerTrade * adm.Hints.Multiplier
	adm.Hints.PlannedRisk = a.Balance * adm.Hints.RiskFraction

	if r, detail, ok := e.Project(a, adm.Hints.PlannedRisk); !ok {
		adm.reject(r, "%s", detail)
	}
	return adm
}

// OnAdmitted reserves a daily trade slot for an accepted intent.
func (e *Engine) OnAdmitted(a *AccountState, at time.Time) {
	a.DailyTrades++
	a.UpdatedAt = at.UTC()
}

// OnTradeClosed records a finished trade. pnl is the realized amount of the
// final fill; won reflects the whole trade including earlier partials.
func (e *Engine) OnTradeClosed(a *AccountState, pnl float64, won bool, at time.Time) {
	if won {
		a.DailyWins++
		a.ConsecutiveLosses = 0
	} else {
		a.DailyLosses++
		a.ConsecutiveLosses++
	}
	e.applyPnL(a, pnl, at)
}

// OnPartialClose applies the money of a partial exit.
func (e *Engine) OnPartialClose(a *AccountState, pnl float64, at time.Time) {
	e.applyPnL(a, pnl, at)
}

func (e *Engine) applyPnL(a *AccountState, pnl float64, at time.Time) {
	// the limit belongs to the mode the trade ran under
	limit := e.profiles[e.CurrentMode(*a)].MaxDailyLoss

	if pnl < 0 {
		a.DailyPnL += pnl
	}
	a.Balance += pnl
	a.DailyRealized += pnl
	a.trackBalance()
	a.UpdatedAt = at.UTC()

	if !a.IsFunded && a.Profit() >= e.rules.ProfitTarget {
		a.EvaluationPassed = true
	}
	if a.CurrentDrawdown >= e.rules.MaxDrawdown {
		a.EvaluationFailed = true
	}

	if a.Mode == Stopped || (limit > 0 && a.DailyLoss() >= limit) {
		a.Mode = Stopped
		return
	}
	a.Mode = e.ModeFor(*a)
}

// ResetDaily closes the trading day if now has reached the reset boundary.
// It returns the archived day and true when a reset happened.
func (e *Engine) ResetDaily(a *AccountState, now time.Time) (DailyPerformance, bool) {
	if now.Before(a.DailyResetAt) {
		return DailyPerformance{}, false
	}

	day := DailyPerformance{
		Date:         a.DailyResetAt.Add(-24 * time.Hour).Format("2006-01-02"),
		StartBalance: a.DailyStartBalance,
		EndBalance:   a.Balance,
		PnL:          a.Balance - a.DailyStartBalance,
		Trades:       a.DailyTrades,
		Wins:         a.DailyWins,
		Losses:       a.DailyLosses,
		MaxDrawdown:  a.DailyDrawdown,
		Mode:         a.Mode,
	}
	if a.DailyStartBalance > 0 {
		day.PnLPct = day.PnL / a.DailyStartBalance * 100
	}

	a.DailyStartBalance = a.Balance
	a.DailyPnL = 0
	a.DailyRealized = 0
	a.DailyTrades = 0
	a.DailyWins = 0
	a.DailyLosses = 0
	a.DailyPeak = a.Balance
	a.DailyTrough = a.Balance
	a.DailyDrawdown = 0
	if !e.rules.KeepLossStreak {
		a.ConsecutiveLosses = 0
	}
	a.DailyResetAt = NextReset(now, e.rules.DailyReset)
	a.UpdatedAt = now.UTC()

	// terminal accounts keep their last mode
	if !a.Terminal() || a.Mode != Stopped {
		a.Mode = e.ModeFor(*a)
	}
	return day, true
}
