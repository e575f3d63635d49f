package ledger

import (
	"fmt"
	"time"

	"github.com/rustyeddy/propdesk/lifecycle"
	"github.com/rustyeddy/propdesk/market"
	"github.com/rustyeddy/propdesk/risk"
)

type Decision string

const (
	Accepted Decision = "accepted"
	Rejected Decision = "rejected"
)

// ReasonParseFailure marks a message that did not parse into an intent.
const ReasonParseFailure = "parse_failure"

// DecisionRecord is the write-once outcome of one submitted message.
type DecisionRecord struct {
	ID         string      `json:"id"`
	ChannelID  string      `json:"channel_id"`
	MessageID  string      `json:"message_id"`
	Symbol     string      `json:"symbol"`
	Side       market.Side `json:"side"`
	Entry      float64     `json:"entry"`
	StopLoss   float64     `json:"stop_loss"`
	TakeProfit float64     `json:"take_profit"`
	Decision   Decision    `json:"decision"`
	Reason     string      `json:"reason"`
	Detail     string      `json:"detail,omitempty"`
	Mode       risk.Mode   `json:"mode"`
	RiskReward float64     `json:"risk_reward"`
	Sizing     risk.Sizing `json:"sizing"`
	PositionID string      `json:"position_id,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// IntentRef identifies the source message.
func (r DecisionRecord) IntentRef() string {
	return r.ChannelID + "/" + r.MessageID
}

func (r DecisionRecord) Accepted() bool { return r.Decision == Accepted }

func (r DecisionRecord) String() string {
	if r.Accepted() {
		return fmt.Sprintf("%s accepted %s %s @ %g notional=%.2f", r.IntentRef(), r.Side, r.Symbol, r.Entry, r.Sizing.Notional)
	}
	return fmt.Sprintf("%s rejected %s: %s", r.IntentRef(), r.Reason, r.Detail)
}

type ExitKind string

const (
	ExitPartial ExitKind = "partial"
	ExitFull    ExitKind = "full"
)

// ExitRecord is one fill that reduced or closed a position.
type ExitRecord struct {
	ID         string           `json:"id"`
	PositionID string           `json:"position_id"`
	Symbol     string           `json:"symbol"`
	Side       market.Side      `json:"side"`
	Kind       ExitKind         `json:"kind"`
	Reason     lifecycle.Reason `json:"reason,omitempty"`
	Level      float64          `json:"level,omitempty"`
	Entry      float64          `json:"entry"`
	ExitPrice  float64          `json:"exit_price"`
	Notional   float64          `json:"notional"`
	PnL        float64          `json:"pnl"`
	OpenedAt   time.Time        `json:"opened_at"`
	CreatedAt  time.Time        `json:"created_at"`
}
