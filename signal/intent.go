package signal

import (
	"fmt"
	"time"

	"github.com/rustyeddy/propdesk/market"
)

// TradeIntent is a parsed trade signal. It is a value type and is never
// modified after parsing.
type TradeIntent struct {
	Symbol     string      `json:"symbol"`
	Side       market.Side `json:"side"`
	Entry      float64     `json:"entry"`
	StopLoss   float64     `json:"stop_loss"`
	TakeProfit float64     `json:"take_profit"`
	Confidence float64     `json:"confidence"`
	Confluence int         `json:"confluence"`
	ReceivedAt time.Time   `json:"received_at"`
	Raw        string      `json:"-"`
}

// Validate checks the price ladder: for a Buy take-profit > entry > stop,
// for a Sell take-profit < entry < stop.
func (t TradeIntent) Validate() error {
	if t.Entry <= 0 || t.StopLoss <= 0 || t.TakeProfit <= 0 {
		return fmt.Errorf("prices must be positive (entry=%v sl=%v tp=%v)", t.Entry, t.StopLoss, t.TakeProfit)
	}
	switch t.Side {
	case market.Buy:
		if !(t.TakeProfit > t.Entry && t.Entry > t.StopLoss) {
			return fmt.Errorf("buy needs tp > entry > sl (tp=%v entry=%v sl=%v)", t.TakeProfit, t.Entry, t.StopLoss)
		}
	case market.Sell:
		if !(t.TakeProfit < t.Entry && t.Entry < t.StopLoss) {
			return fmt.Errorf("sell needs tp < entry < sl (tp=%v entry=%v sl=%v)", t.TakeProfit, t.Entry, t.StopLoss)
		}
	default:
		return fmt.Errorf("unknown side %q", t.Side)
	}
	if t.Confidence < 0 || t.Confidence > 1 {
		return fmt.Errorf("confidence %v outside [0,1]", t.Confidence)
	}
	if t.Confluence < 0 {
		return fmt.Errorf("confluence %d is negative", t.Confluence)
	}
	return nil
}

func (t TradeIntent) String() string {
	return fmt.Sprintf("%s %s @ %g tp=%g sl=%g", t.Side, t.Symbol, t.Entry, t.TakeProfit, t.StopLoss)
}
