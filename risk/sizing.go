package risk

import (
	"fmt"
	"math"

	"github.com/rustyeddy/propdesk/signal"
)

// SizingRules bound the notional of a single position and the portfolio.
type SizingRules struct {
	MinPosition          float64 `yaml:"min_position" json:"min_position"`
	MaxPosition          float64 `yaml:"max_position" json:"max_position"`
	MaxPositionPct       float64 `yaml:"max_position_pct" json:"max_position_pct"`
	PortfolioRiskCeiling float64 `yaml:"portfolio_risk_ceiling" json:"portfolio_risk_ceiling"`
	HardCap              int     `yaml:"hard_cap" json:"hard_cap"`
	BalanceUtilization   float64 `yaml:"balance_utilization" json:"balance_utilization"`
}

func DefaultSizingRules() SizingRules {
	return SizingRules{
		MinPosition:          100,
		MaxPosition:          5000,
		MaxPositionPct:       0.20,
		PortfolioRiskCeiling: 0.10,
		HardCap:              10,
		BalanceUtilization:   0.8,
	}
}

func (r SizingRules) Validate() error {
	switch {
	case r.MinPosition <= 0:
		return fmt.Errorf("min position must be > 0")
	case r.MaxPosition < r.MinPosition:
		return fmt.Errorf("max position %v below min position %v", r.MaxPosition, r.MinPosition)
	case r.MaxPositionPct <= 0 || r.MaxPositionPct > 1:
		return fmt.Errorf("max position pct %v outside (0,1]", r.MaxPositionPct)
	case r.PortfolioRiskCeiling <= 0 || r.PortfolioRiskCeiling > 1:
		return fmt.Errorf("portfolio risk ceiling %v outside (0,1]", r.PortfolioRiskCeiling)
	case r.HardCap <= 0:
		return fmt.Errorf("hard cap must be > 0")
	case r.BalanceUtilization <= 0 || r.BalanceUtilization > 1:
		return fmt.Errorf("balance utilization %v outside (0,1]", r.BalanceUtilization)
	}
	return nil
}

// OpenRisk is the remaining exposure of one open position.
type OpenRisk struct {
	Notional        float64
	StopDistancePct float64
}

// Exposure describes the open positions a new trade joins.
type Exposure struct {
	Positions []OpenRisk
}

func (x Exposure) Risk() float64 {
	var sum float64
	for _, p := range x.Positions {
		sum += p.Notional * p.StopDistancePct
	}
	return sum
}

// Sizing is the full breakdown of a sizing calculation.
type Sizing struct {
	Balance         float64 `json:"balance"`
	RiskFraction    float64 `json:"risk_fraction"`
	RiskAmount      float64 `json:"risk_amount"`
	StopDistancePct float64 `json:"stop_distance_pct"`
	Notional        float64 `json:"notional"`
	ActualRisk      float64 `json:"actual_risk"`
	ActualRiskPct   float64 `json:"actual_risk_pct"`
	OpenPositions   int     `json:"open_positions"`
	MaxPositions    int     `json:"max_positions"`
	OpenRiskPct     float64 `json:"open_risk_pct"`
	NewOpenRiskPct  float64 `json:"new_open_risk_pct"`
	Clamped         string  `json:"clamped,omitempty"`
}

type SizingFailure string

const (
	MaxPositionsReached   SizingFailure = "max_positions_reached"
	PortfolioRiskExceeded SizingFailure = "portfolio_risk_exceeded"
	InvalidStop           SizingFailure = "invalid_stop"
)

// SizingError is returned when no position may be opened. The partial
// breakdown is kept for the decision record.
type SizingError struct {
	Kind   SizingFailure
	Detail string
	Sizing Sizing
}

func (e *SizingError) Error() string {
	return fmt.Sprintf("sizing: %s: %s", e.Kind, e.Detail)
}

func (e *SizingError) Is(target error) bool {
	t, ok := target.(*SizingError)
	return ok && t.Kind == e.Kind
}

var (
	ErrMaxPositionsReached   = &SizingError{Kind: MaxPositionsReached}
	ErrPortfolioRiskExceeded = &SizingError{Kind: PortfolioRiskExceeded}
	ErrInvalidStop           = &SizingError{Kind: InvalidStop}
)

// Sizer computes position notional from account balance and stop
// distance. It is stateless.
type Sizer struct {
	rules SizingRules
}

func NewSizer(rules SizingRules) *Sizer {
	return &Sizer{rules: rules}
}

func (s *Sizer) Rules() SizingRules { return s.rules }

// MaxPositions is the concurrency cap for riskFraction at balance.
func (s *Sizer) MaxPositions(balance, riskFraction float64) int {
	if riskFraction <= 0 || s.rules.MinPosition <= 0 {
		return 0
	}
	byRisk := floor(s.rules.PortfolioRiskCeiling / riskFraction)
	byBalance := floor(balance * s.rules.BalanceUtilization / s.rules.MinPosition)
	return min(byRisk, byBalance, s.rules.HardCap)
}

// Size computes the notional of intent at riskFraction of the balance.
func (s *Sizer) Size(intent signal.TradeIntent, acct AccountState, riskFraction float64, x Exposure) (Sizing, error) {
	out := Sizing{
		Balance:         acct.Balance,
		RiskFraction:    riskFraction,
		RiskAmount:      acct.Balance * riskFraction,
		StopDistancePct: StopDistancePct(intent.Entry, intent.StopLoss),
		OpenPositions:   len(x.Positions),
		MaxPositions:    s.MaxPositions(acct.Balance, riskFraction),
	}
	if acct.Balance > 0 {
		out.OpenRiskPct = x.Risk() / acct.Balance
	}

	if out.StopDistancePct <= 0 {
		return out, &SizingError{Kind: InvalidStop, Detail: "stop distance is zero", Sizing: out}
	}
	if out.OpenPositions >= out.MaxPositions {
		return out, &SizingError{
			Kind:   MaxPositionsReached,
			Detail: fmt.Sprintf("open positions %d >= cap %d", out.OpenPositions, out.MaxPositions),
			Sizing: out,
		}
	}

	notional := out.RiskAmount / out.StopDistancePct
	upper := math.Min(s.rules.MaxPositionPct*acct.Balance, s.rules.MaxPosition)
	switch {
	case notional > upper:
		notional = upper
		out.Clamped = "max"
	case notional < s.rules.MinPosition:
		notional = s.rules.MinPosition
		out.Clamped = "min"
	}
	out.Notional = notional
	out.ActualRisk = PlannedRisk(notional, intent.Entry, intent.StopLoss)
	out.ActualRiskPct = RiskPct(out.ActualRisk, acct.Balance)
	out.NewOpenRiskPct = out.OpenRiskPct + out.ActualRiskPct

	if out.NewOpenRiskPct > s.rules.PortfolioRiskCeiling {
		return out, &SizingError{
			Kind: PortfolioRiskExceeded,
			Detail: fmt.Sprintf("open risk %.2f%% would exceed ceiling %.2f%%",
				100*out.NewOpenRiskPct, 100*s.rules.PortfolioRiskCeiling),
			Sizing: out,
		}
	}
	return out, nil
}

func floor(x float64) int {
	return int(math.Floor(x + 1e-9))
}
