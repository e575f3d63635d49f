package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/rustyeddy/propdesk/lifecycle"
	"github.com/rustyeddy/propdesk/replay"
	"github.com/rustyeddy/propdesk/risk"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3B82F6")).
			Padding(0, 2)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280")).
			Width(18)

	goodStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F59E0B")).
			Bold(true)

	badStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)
)

func modeStyle(st risk.Status) lipgloss.Style {
	switch {
	case st.EvaluationFailed || st.Mode == risk.Stopped:
		return badStyle
	case st.Mode == risk.Recovery || st.NearLimits:
		return warnStyle
	}
	return goodStyle
}

func row(label, value string) string {
	return labelStyle.Render(label) + value
}

func pnl(v float64) string {
	s := fmt.Sprintf("%+.2f", v)
	if v < 0 {
		return badStyle.Render(s)
	}
	return goodStyle.Render(s)
}

// renderStatus draws the account panel and the open positions.
func renderStatus(st risk.Status, ps []lifecycle.Position) string {
	lines := []string{
		row("Mode", modeStyle(st).Render(string(st.Mode))),
		row("Balance", fmt.Sprintf("$%.2f (%s)", st.Balance, pnl(st.Profit))),
		row("Progress", fmt.Sprintf("%.1f%%", 100*st.Progress)),
		row("Drawdown", fmt.Sprintf("$%.2f ($%.2f left)", st.Drawdown, st.DrawdownRemaining)),
		row("Daily trades", fmt.Sprintf("%d (%d left)", st.DailyTrades, st.DailyTradesRemaining)),
		row("Daily loss", fmt.Sprintf("$%.2f ($%.2f left)", st.DailyLoss, st.DailyLossRemaining)),
		row("Risk per trade", fmt.Sprintf("%.2f%% x%.2f", 100*st.RiskPerTrade, st.Multiplier)),
		row("Min RR", fmt.Sprintf("%.1f", st.MinRiskReward)),
		row("Loss streak", fmt.Sprintf("%d", st.ConsecutiveLosses)),
		row("Symbols", strings.Join(st.AllowedSymbols, " ")),
	}
	switch {
	case st.EvaluationPassed:
		lines = append(lines, goodStyle.Render("Evaluation passed"))
	case st.EvaluationFailed:
		lines = append(lines, badStyle.Render("Evaluation failed"))
	}
	if st.LockProfit {
		lines = append(lines, warnStyle.Render(fmt.Sprintf("Lock in $%.2f of profit", st.LockAmount)))
	}
	if st.Guidance != "" {
		lines = append(lines, "", st.Guidance)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("PROPDESK ACCOUNT"))
	b.WriteString("\n")
	b.WriteString(panelStyle.Render(strings.Join(lines, "\n")))
	b.WriteString("\n")

	if len(ps) == 0 {
		b.WriteString("No open positions\n")
		return b.String()
	}
	b.WriteString(titleStyle.Render(fmt.Sprintf("OPEN POSITIONS (%d)", len(ps))))
	b.WriteString("\n")
	var pl []string
	for _, p := range ps {
		trail := ""
		if p.TrailingActivated {
			trail = " trailing"
		}
		pl = append(pl, fmt.Sprintf("%-10s %-4s entry %-10g SL %-10g TP %-10g $%8.2f / $%8.2f  peak %+.2f%%%s",
			p.Symbol, p.Side, p.Entry, p.StopLoss, p.TakeProfit, p.Remaining, p.Notional, p.HighestProfitPct, trail))
	}
	b.WriteString(panelStyle.Render(strings.Join(pl, "\n")))
	b.WriteString("\n")
	return b.String()
}

func renderSummary(s replay.Summary) string {
	lines := []string{
		row("Rows", fmt.Sprintf("%d", s.Rows)),
		row("Ticks", fmt.Sprintf("%d", s.Ticks)),
		row("Signals", fmt.Sprintf("%d (%s accepted, %s rejected)", s.Signals,
			goodStyle.Render(fmt.Sprint(s.Accepted)), badStyle.Render(fmt.Sprint(s.Rejected)))),
		row("Scale-outs", fmt.Sprintf("%d", s.Partials)),
		row("Closes", fmt.Sprintf("%d", s.Closes)),
		row("Resets", fmt.Sprintf("%d", s.Resets)),
	}
	return titleStyle.Render("REPLAY") + "\n" + panelStyle.Render(strings.Join(lines, "\n")) + "\n"
}
