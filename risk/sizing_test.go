package risk

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSizeExample(t *testing.T) {
	rules := DefaultSizingRules()
	rules.MaxPositionPct = 1
	rules.MaxPosition = 10000
	s := NewSizer(rules)

	acct := AccountState{Balance: 10000}
	got, err := s.Size(btcLong(100, 98, 106), acct, 0.015, Exposure{})
	require.NoError(t, err)
	assert.InDelta(t, 150, got.RiskAmount, 1e-9)
	assert.InDelta(t, 0.02, got.StopDistancePct, 1e-12)
	assert.InDelta(t, 7500, got.Notional, 1e-6)
	assert.InDelta(t, 150, got.ActualRisk, 1e-6)
	assert.Empty(t, got.Clamped)
}

func TestSizeClamps(t *testing.T) {
	s := NewSizer(DefaultSizingRules())
	acct := AccountState{Balance: 10000}

	got, err := s.Size(btcLong(100, 98, 106), acct, 0.015, Exposure{})
	require.NoError(t, err)
	assert.InDelta(t, 2000, got.Notional, 1e-9)
	assert.Equal(t, "max", got.Clamped)
	assert.InDelta(t, 40, got.ActualRisk, 1e-9)

	got, err = s.Size(btcLong(100, 50, 200), acct, 0.0025, Exposure{})
	require.NoError(t, err)
	assert.InDelta(t, 100, got.Notional, 1e-9)
	assert.Equal(t, "min", got.Clamped)
}

func TestMaxPositions(t *testing.T) {
	t.Parallel()
	s := NewSizer(DefaultSizingRules())

	tests := []struct {
		name    string
		balance float64
		rf      float64
		want    int
	}{
		{"risk bound", 10000, 0.015, 6},
		{"exact division", 10000, 0.01, 10},
		{"hard cap", 10000, 0.0025, 10},
		{"balance bound", 500, 0.0025, 4},
		{"zero risk", 10000, 0, 0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, s.MaxPositions(tt.balance, tt.rf))
		})
	}
}

func TestSizeFailures(t *testing.T) {
	s := NewSizer(DefaultSizingRules())
	acct := AccountState{Balance: 10000}

	full := Exposure{}
	for i := 0; i < 6; i++ {
		full.Positions = append(full.Positions, OpenRisk{Notional: 500, StopDistancePct: 0.01})
	}
	_, err := s.Size(btcLong(100, 98, 106), acct, 0.015, full)
	assert.True(t, errors.Is(err, ErrMaxPositionsReached), "got %v", err)

	heavy := Exposure{Positions: []OpenRisk{
		{Notional: 3100, StopDistancePct: 0.1},
		{Notional: 3100, StopDistancePct: 0.1},
		{Notional: 3100, StopDistancePct: 0.1},
	}}
	got, err := s.Size(btcLong(100, 96, 110), acct, 0.015, heavy)
	var se *SizingError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, PortfolioRiskExceeded, se.Kind)
	assert.InDelta(t, 0.093, got.OpenRiskPct, 1e-9)
	assert.InDelta(t, 0.101, got.NewOpenRiskPct, 1e-9)

	_, err = s.Size(btcLong(100, 100, 110), acct, 0.015, Exposure{})
	assert.True(t, errors.Is(err, ErrInvalidStop))
}

func TestRiskReward(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		fn   func() float64
		want float64
	}{
		{"buy", func() float64 { return RiskReward("Buy", 45000, 43000, 47000) }, 1},
		{"buy 2R", func() float64 { return RiskReward("Buy", 100, 95, 110) }, 2},
		{"sell 3R", func() float64 { return RiskReward("Sell", 100, 102, 94) }, 3},
		{"wrong side stop", func() float64 { return RiskReward("Buy", 100, 101, 110) }, 0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, tt.fn(), 1e-9)
		})
	}
}
