package risk

import (
	"fmt"
	"strings"

	"github.com/rustyeddy/propdesk/market"
)

// Mode is the trading regime the account is in.
type Mode string

const (
	EvaluationNormal   Mode = "evaluation_normal"
	EvaluationFinal    Mode = "evaluation_final"
	FundedConservative Mode = "funded_conservative"
	FundedGrowth       Mode = "funded_growth"
	FundedScaled       Mode = "funded_scaled"
	Recovery           Mode = "recovery"
	Stopped            Mode = "stopped"
)

// Modes lists every mode in table order.
var Modes = []Mode{
	EvaluationNormal,
	EvaluationFinal,
	FundedConservative,
	FundedGrowth,
	FundedScaled,
	Recovery,
	Stopped,
}

func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	for _, v := range Modes {
		if v == m {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// Profile is the risk configuration for one mode.
type Profile struct {
	RiskPerTrade       float64  `yaml:"risk_per_trade" json:"risk_per_trade" validate:"gte=0,lt=1"`
	MaxDailyTrades     int      `yaml:"max_daily_trades" json:"max_daily_trades" validate:"gte=0"`
	MinRiskReward      float64  `yaml:"min_risk_reward" json:"min_risk_reward" validate:"gte=0"`
	MaxDailyLoss       float64  `yaml:"max_daily_loss" json:"max_daily_loss" validate:"gte=0"`
	SizeMultiplier     float64  `yaml:"size_multiplier" json:"size_multiplier" validate:"gte=0,lte=1"`
	AllowedSymbols     []string `yaml:"allowed_symbols" json:"allowed_symbols"`
	RequiredConfluence int      `yaml:"required_confluence" json:"required_confluence" validate:"gte=0"`
	StopAfterLosses    int      `yaml:"stop_after_losses" json:"stop_after_losses" validate:"gte=0"`
}

// Allows reports whether symbol is tradeable under p.
func (p Profile) Allows(symbol string) bool {
	s := market.NormalizeSymbol(symbol)
	for _, a := range p.AllowedSymbols {
		if market.NormalizeSymbol(a) == s {
			return true
		}
	}
	return false
}

func (p Profile) clone() Profile {
	p.AllowedSymbols = append([]string(nil), p.AllowedSymbols...)
	return p
}

// Profiles maps each mode to its profile.
type Profiles map[Mode]Profile

// Clone returns a deep copy.
func (ps Profiles) Clone() Profiles {
	out := make(Profiles, len(ps))
	for m, p := range ps {
		out[m] = p.clone()
	}
	return out
}

// Validate checks that every tradeable mode has a profile.
func (ps Profiles) Validate() error {
	for _, m := range Modes {
		if m == Stopped {
			continue
		}
		p, ok := ps[m]
		if !ok {
			return fmt.Errorf("missing profile for mode %s", m)
		}
		if p.RiskPerTrade <= 0 {
			return fmt.Errorf("profile %s: risk_per_trade must be > 0", m)
		}
		if p.MaxDailyTrades <= 0 {
			return fmt.Errorf("profile %s: max_daily_trades must be > 0", m)
		}
		if len(p.AllowedSymbols) == 0 {
			return fmt.Errorf("profile %s: allowed_symbols is empty", m)
		}
	}
	return nil
}

var (
	coreSymbols   = []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "DOTUSDT", "ADAUSDT"}
	scaledSymbols = []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "DOTUSDT", "ADAUSDT", "LINKUSDT"}
)

// DefaultProfiles is the stock profile table.
func DefaultProfiles() Profiles {
	return Profiles{
		EvaluationNormal: {
			RiskPerTrade: 0.015, MaxDailyTrades: 3, MinRiskReward: 1.5, MaxDailyLoss: 500,
			SizeMultiplier: 1.0, AllowedSymbols: coreSymbols, RequiredConfluence: 2, StopAfterLosses: 3,
		},
		EvaluationFinal: {
			RiskPerTrade: 0.005, MaxDailyTrades: 2, MinRiskReward: 3.0, MaxDailyLoss: 200,
			SizeMultiplier: 0.33, AllowedSymbols: []string{"BTCUSDT", "SOLUSDT", "DOTUSDT"},
			RequiredConfluence: 4, StopAfterLosses: 1,
		},
		FundedConservative: {
			RiskPerTrade: 0.0075, MaxDailyTrades: 2, MinRiskReward: 2.0, MaxDailyLoss: 250,
			SizeMultiplier: 0.5, AllowedSymbols: []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "DOTUSDT"},
			RequiredConfluence: 3, StopAfterLosses: 2,
		},
		FundedGrowth: {
			RiskPerTrade: 0.01, MaxDailyTrades: 3, MinRiskReward: 2.0, MaxDailyLoss: 300,
			SizeMultiplier: 0.75, AllowedSymbols: coreSymbols, RequiredConfluence: 2, StopAfterLosses: 2,
		},
		FundedScaled: {
			RiskPerTrade: 0.0125, MaxDailyTrades: 4, MinRiskReward: 1.5, MaxDailyLoss: 400,
			SizeMultiplier: 1.0, AllowedSymbols: scaledSymbols, RequiredConfluence: 2, StopAfterLosses: 3,
		},
		Recovery: {
			RiskPerTrade: 0.0025, MaxDailyTrades: 1, MinRiskReward: 4.0, MaxDailyLoss: 100,
			SizeMultiplier: 0.2, AllowedSymbols: []string{"BTCUSDT"}, RequiredConfluence: 5, StopAfterLosses: 1,
		},
		Stopped: {},
	}.Clone()
}

// Guidance is the operator note shown for a mode.
func Guidance(m Mode) string {
	switch m {
	case EvaluationFinal:
		return "Near profit target. Take profits quickly, no overnight positions, exit at half of TP if needed."
	case FundedConservative:
		return "First months funded. Focus on consistency over profits and document every trade."
	case Recovery:
		return "Recovery mode. Wait for perfect setups only and consider taking a break."
	case Stopped:
		return "Trading suspended until the daily reset."
	}
	return "Trade normally with proper risk management."
}
