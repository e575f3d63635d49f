package lifecycle

import (
	"fmt"
	"sort"
)

// Level is a scale-out step: when profit reaches ThresholdPct, close
// Fraction of the original notional.
type Level struct {
	ThresholdPct float64 `yaml:"threshold_pct" json:"threshold_pct"`
	Fraction     float64 `yaml:"fraction" json:"fraction"`
}

// Rules configure exits. Percentages are in percent units (4.5 means 4.5%).
type Rules struct {
	ActivationPct    float64 `yaml:"activation_pct" json:"activation_pct"`
	TrailDistancePct float64 `yaml:"trail_distance_pct" json:"trail_distance_pct"`
	MinProfitPct     float64 `yaml:"min_profit_pct" json:"min_profit_pct"`
	ScaleOut         []Level `yaml:"scale_out" json:"scale_out"`
}

func DefaultRules() Rules {
	return Rules{
		ActivationPct:    4.5,
		TrailDistancePct: 1.5,
		MinProfitPct:     3.5,
		ScaleOut: []Level{
			{ThresholdPct: 5, Fraction: 0.5},
			{ThresholdPct: 7, Fraction: 0.3},
			{ThresholdPct: 10, Fraction: 0.2},
		},
	}
}

func (r Rules) Validate() error {
	if r.ActivationPct <= 0 || r.TrailDistancePct <= 0 {
		return fmt.Errorf("activation and trail distance must be > 0")
	}
	if r.MinProfitPct < 0 || r.MinProfitPct >= r.ActivationPct {
		return fmt.Errorf("min profit %v must be in [0, activation %v)", r.MinProfitPct, r.ActivationPct)
	}
	var sum float64
	for i, l := range r.ScaleOut {
		if l.ThresholdPct <= 0 || l.Fraction <= 0 || l.Fraction > 1 {
			return fmt.Errorf("scale-out level %d: threshold and fraction must be positive", i)
		}
		sum += l.Fraction
	}
	if sum > 1+1e-9 {
		return fmt.Errorf("scale-out fractions sum to %v > 1", sum)
	}
	return nil
}

// levels returns the scale-out table ordered by threshold.
func (r Rules) levels() []Level {
	out := append([]Level(nil), r.ScaleOut...)
	sort.Slice(out, func(i, j int) bool { return out[i].ThresholdPct < out[j].ThresholdPct })
	return out
}
