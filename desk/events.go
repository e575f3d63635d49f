package desk

import (
	"context"
	"time"

	"github.com/rustyeddy/propdesk/lifecycle"
	"github.com/rustyeddy/propdesk/market"
	"github.com/rustyeddy/propdesk/risk"
	"go.uber.org/zap"
)

type TradeOpened struct {
	PositionID string      `json:"position_id"`
	Symbol     string      `json:"symbol"`
	Side       market.Side `json:"side"`
	Entry      float64     `json:"entry"`
	StopLoss   float64     `json:"stop_loss"`
	TakeProfit float64     `json:"take_profit"`
	Notional   float64     `json:"notional"`
	Risk       float64     `json:"risk"`
	RiskReward float64     `json:"risk_reward"`
	Mode       risk.Mode   `json:"mode"`
	At         time.Time   `json:"at"`
}

type TradePartiallyClosed struct {
	PositionID string      `json:"position_id"`
	Symbol     string      `json:"symbol"`
	Side       market.Side `json:"side"`
	Level      float64     `json:"level"`
	ExitPrice  float64     `json:"exit_price"`
	Notional   float64     `json:"notional"`
	Remaining  float64     `json:"remaining"`
	PnL        float64     `json:"pnl"`
	At         time.Time   `json:"at"`
}

type TradeClosed struct {
	PositionID string           `json:"position_id"`
	Symbol     string           `json:"symbol"`
	Side       market.Side      `json:"side"`
	Reason     lifecycle.Reason `json:"reason"`
	Entry      float64          `json:"entry"`
	ExitPrice  float64          `json:"exit_price"`
	Notional   float64          `json:"notional"`
	PnL        float64          `json:"pnl"`
	TotalPnL   float64          `json:"total_pnl"`
	Balance    float64          `json:"balance"`
	Mode       risk.Mode        `json:"mode"`
	At         time.Time        `json:"at"`
}

// Notifier receives trade events after the desk has released its lock.
// Implementations must not call back into the desk synchronously.
type Notifier interface {
	TradeOpened(ctx context.Context, ev TradeOpened)
	TradePartiallyClosed(ctx context.Context, ev TradePartiallyClosed)
	TradeClosed(ctx context.Context, ev TradeClosed)
}

// NopNotifier drops all events.
type NopNotifier struct{}

func (NopNotifier) TradeOpened(context.Context, TradeOpened)                   {}
func (NopNotifier) TradePartiallyClosed(context.Context, TradePartiallyClosed) {}
func (NopNotifier) TradeClosed(context.Context, TradeClosed)                   {}

// LogNotifier writes events to a zap logger.
type LogNotifier struct {
	Log *zap.Logger
}

func (n LogNotifier) TradeOpened(_ context.Context, ev TradeOpened) {
	n.Log.Info("trade opened",
		zap.String("position", ev.PositionID),
		zap.String("symbol", ev.Symbol),
		zap.String("side", ev.Side.String()),
		zap.Float64("entry", ev.Entry),
		zap.Float64("stop_loss", ev.StopLoss),
		zap.Float64("take_profit", ev.TakeProfit),
		zap.Float64("notional", ev.Notional),
		zap.String("mode", string(ev.Mode)))
}

func (n LogNotifier) TradePartiallyClosed(_ context.Context, ev TradePartiallyClosed) {
	n.Log.Info("trade partially closed",
		zap.String("position", ev.PositionID),
		zap.String("symbol", ev.Symbol),
		zap.Float64("level", ev.Level),
		zap.Float64("price", ev.ExitPrice),
		zap.Float64("notional", ev.Notional),
		zap.Float64("pnl", ev.PnL))
}

func (n LogNotifier) TradeClosed(_ context.Context, ev TradeClosed) {
	n.Log.Info("trade closed",
		zap.String("position", ev.PositionID),
		zap.String("symbol", ev.Symbol),
		zap.String("reason", string(ev.Reason)),
		zap.Float64("price", ev.ExitPrice),
		zap.Float64("pnl", ev.PnL),
		zap.Float64("total_pnl", ev.TotalPnL),
		zap.Float64("balance", ev.Balance))
}

// MultiNotifier fans events out in order.
type MultiNotifier []Notifier

func (m MultiNotifier) TradeOpened(ctx context.Context, ev TradeOpened) {
	for _, n := range m {
		n.TradeOpened(ctx, ev)
	}
}

func (m MultiNotifier) TradePartiallyClosed(ctx context.Context, ev TradePartiallyClosed) {
	for _, n := range m {
		n.TradePartiallyClosed(ctx, ev)
	}
}

func (m MultiNotifier) TradeClosed(ctx context.Context, ev TradeClosed) {
	for _, n := range m {
		n.TradeClosed(ctx, ev)
	}
}

// event is a pending notification; exactly one field is set.
type event struct {
	opened  *TradeOpened
	partial *TradePartiallyClosed
	closed  *TradeClosed
}

func (d *Desk) emit(ctx context.Context, evs []event) {
	for _, ev := range evs {
		switch {
		case ev.opened != nil:
			d.notifier.TradeOpened(ctx, *ev.opened)
		case ev.partial != nil:
			d.notifier.TradePartiallyClosed(ctx, *ev.partial)
		case ev.closed != nil:
			d.notifier.TradeClosed(ctx, *ev.closed)
		}
	}
}
