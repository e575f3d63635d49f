package telegram

import (
	"fmt"
	"html"
	"strings"

	"github.com/rustyeddy/propdesk/desk"
	"github.com/rustyeddy/propdesk/ledger"
	"github.com/rustyeddy/propdesk/risk"
)

// Messages use Telegram's HTML parse mode.

func FormatOpened(ev desk.TradeOpened) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>OPENED</b> %s %s\n", ev.Symbol, strings.ToUpper(ev.Side.String()))
	fmt.Fprintf(&b, "Entry: %g\n", ev.Entry)
	fmt.Fprintf(&b, "SL: %g | TP: %g\n", ev.StopLoss, ev.TakeProfit)
	fmt.Fprintf(&b, "Size: $%.2f (risk $%.2f)\n", ev.Notional, ev.Risk)
	fmt.Fprintf(&b, "RR: %.2f | Mode: %s", ev.RiskReward, ev.Mode)
	return b.String()
}

func FormatPartial(ev desk.TradePartiallyClosed) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>SCALE OUT</b> %s %s at +%g%%\n", ev.Symbol, strings.ToUpper(ev.Side.String()), ev.Level)
	fmt.Fprintf(&b, "Price: %g\n", ev.ExitPrice)
	fmt.Fprintf(&b, "Closed: $%.2f | Remaining: $%.2f\n", ev.Notional, ev.Remaining)
	fmt.Fprintf(&b, "PnL: %s", money(ev.PnL))
	return b.String()
}

func FormatClosed(ev desk.TradeClosed) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>CLOSED</b> %s %s (%s)\n", ev.Symbol, strings.ToUpper(ev.Side.String()), ev.Reason)
	fmt.Fprintf(&b, "Entry: %g | Exit: %g\n", ev.Entry, ev.ExitPrice)
	fmt.Fprintf(&b, "PnL: %s | Trade: %s\n", money(ev.PnL), money(ev.TotalPnL))
	fmt.Fprintf(&b, "Balance: $%.2f | Mode: %s", ev.Balance, ev.Mode)
	return b.String()
}

// FormatDecision is the reply sent to a signal message.
func FormatDecision(rec ledger.DecisionRecord) string {
	if rec.Accepted() {
		return fmt.Sprintf("<b>ACCEPTED</b> %s %s\nSize: $%.2f | RR: %.2f",
			rec.Symbol, strings.ToUpper(rec.Side.String()), rec.Sizing.Notional, rec.RiskReward)
	}
	s := fmt.Sprintf("<b>REJECTED</b> %s", html.EscapeString(rec.Reason))
	if rec.Detail != "" {
		s += "\n" + html.EscapeString(rec.Detail)
	}
	return s
}

func FormatStatus(st risk.Status) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n", st.Mode)
	fmt.Fprintf(&b, "Balance: $%.2f (%s)\n", st.Balance, money(st.Profit))
	fmt.Fprintf(&b, "Progress: %.1f%%\n", 100*st.Progress)
	fmt.Fprintf(&b, "Drawdown: $%.2f ($%.2f left)\n", st.Drawdown, st.DrawdownRemaining)
	fmt.Fprintf(&b, "Daily: %d trades (%d left), loss $%.2f ($%.2f left)\n",
		st.DailyTrades, st.DailyTradesRemaining, st.DailyLoss, st.DailyLossRemaining)
	b.WriteString(html.EscapeString(st.Guidance))
	return b.String()
}

func money(v float64) string {
	if v < 0 {
		return fmt.Sprintf("-$%.2f", -v)
	}
	return fmt.Sprintf("+$%.2f", v)
}
