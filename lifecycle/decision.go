package lifecycle

import "fmt"

// Kind is the variant of an ExitDecision.
type Kind int

const (
	None Kind = iota
	Partial
	Full
)

func (k Kind) String() string {
	switch k {
	case Partial:
		return "partial"
	case Full:
		return "full"
	}
	return "none"
}

// Reason explains a full exit.
type Reason string

const (
	TakeProfit       Reason = "take_profit"
	StopLoss         Reason = "stop_loss"
	TrailingStop     Reason = "trailing_stop"
	ProfitProtection Reason = "profit_protection"
	Manual           Reason = "manual"
)

// Status is the closed status a full exit with r leaves the position in.
func (r Reason) Status() Status {
	switch r {
	case TakeProfit:
		return StatusClosedTP
	case StopLoss:
		return StatusClosedSL
	case TrailingStop, ProfitProtection:
		return StatusClosedTrailing
	}
	return StatusClosedManual
}

// ExitDecision is the outcome of applying one price to a position.
// Level is set for scale-out exits; Notional is the amount being closed.
type ExitDecision struct {
	Kind      Kind    `json:"kind"`
	Reason    Reason  `json:"reason,omitempty"`
	Level     float64 `json:"level,omitempty"`
	Notional  float64 `json:"notional"`
	Price     float64 `json:"price"`
	ProfitPct float64 `json:"profit_pct"`
}

func (d ExitDecision) String() string {
	switch d.Kind {
	case Partial:
		return fmt.Sprintf("partial %.2f at %g (level %g%%)", d.Notional, d.Price, d.Level)
	case Full:
		return fmt.Sprintf("full %s %.2f at %g", d.Reason, d.Notional, d.Price)
	}
	return "none"
}
