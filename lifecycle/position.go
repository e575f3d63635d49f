package lifecycle

import (
	"fmt"
	"slices"
	"time"

	"github.com/rustyeddy/propdesk/market"
)

type Status string

const (
	StatusOpen           Status = "open"
	StatusClosedTP       Status = "closed_tp"
	StatusClosedSL       Status = "closed_sl"
	StatusClosedTrailing Status = "closed_trailing"
	StatusClosedManual   Status = "closed_manual"
)

// Position is an open or closed trade and its exit-tracking state.
type Position struct {
	ID         string      `json:"id"`
	Symbol     string      `json:"symbol"`
	Side       market.Side `json:"side"`
	Entry      float64     `json:"entry"`
	StopLoss   float64     `json:"stop_loss"`
	TakeProfit float64     `json:"take_profit"`
	Notional   float64     `json:"notional"`
	Remaining  float64     `json:"remaining"`

	HighestPrice      float64   `json:"highest_price"`
	HighestProfitPct  float64   `json:"highest_profit_pct"`
	TrailingActivated bool      `json:"trailing_activated"`
	PartialExits      []float64 `json:"partial_exits"`
	RealizedPnL       float64   `json:"realized_pnl"`

	Status     Status    `json:"status"`
	OpenedAt   time.Time `json:"opened_at"`
	LastTickAt time.Time `json:"last_tick_at"`
	ClosedAt   time.Time `json:"closed_at,omitempty"`
	ExitPrice  float64   `json:"exit_price,omitempty"`
}

func (p Position) Validate() error {
	switch {
	case p.ID == "":
		return fmt.Errorf("position id is empty")
	case !p.Side.Valid():
		return fmt.Errorf("position %s: invalid side %q", p.ID, p.Side)
	case p.Entry <= 0 || p.Notional <= 0:
		return fmt.Errorf("position %s: entry and notional must be > 0", p.ID)
	}
	return nil
}

func (p Position) IsOpen() bool { return p.Status == StatusOpen }

// ProfitPct is the signed unrealized profit at price, in percent.
func (p Position) ProfitPct(price float64) float64 {
	return market.ProfitPct(p.Side, p.Entry, price)
}

// StopDistancePct is the stop distance as a fraction of entry.
func (p Position) StopDistancePct() float64 {
	if p.Entry <= 0 {
		return 0
	}
	d := (p.Entry - p.StopLoss) / p.Entry
	if d < 0 {
		return -d
	}
	return d
}

func (p Position) taken(threshold float64) bool {
	return slices.Contains(p.PartialExits, threshold)
}

func (p Position) clone() Position {
	p.PartialExits = slices.Clone(p.PartialExits)
	return p
}

func (p Position) hitStopLoss(price float64) bool {
	if p.StopLoss <= 0 {
		return false
	}
	if p.Side == market.Buy {
		return price <= p.StopLoss
	}
	return price >= p.StopLoss
}

func (p Position) hitTakeProfit(price float64) bool {
	if p.TakeProfit <= 0 {
		return false
	}
	if p.Side == market.Buy {
		return price >= p.TakeProfit
	}
	return price <= p.TakeProfit
}
