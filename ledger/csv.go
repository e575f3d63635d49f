package ledger

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/rustyeddy/propdesk/risk"
)

// WriteDecisionsCSV writes decisions with a header row.
func WriteDecisionsCSV(w io.Writer, recs []DecisionRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{
		"id", "channel_id", "message_id", "created_at", "symbol", "side", "entry", "stop_loss",
		"take_profit", "decision", "reason", "mode", "risk_reward", "notional", "actual_risk", "position_id",
	}); err != nil {
		return err
	}
	for _, r := range recs {
		if err := cw.Write([]string{
			r.ID, r.ChannelID, r.MessageID, r.CreatedAt.UTC().Format(time.RFC3339),
			r.Symbol, string(r.Side), f(r.Entry), f(r.StopLoss), f(r.TakeProfit),
			string(r.Decision), r.Reason, string(r.Mode), f(r.RiskReward),
			f(r.Sizing.Notional), f(r.Sizing.ActualRisk), r.PositionID,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteExitsCSV writes exits with a header row.
func WriteExitsCSV(w io.Writer, recs []ExitRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{
		"id", "position_id", "created_at", "symbol", "side", "kind", "reason", "level",
		"entry", "exit_price", "notional", "pnl",
	}); err != nil {
		return err
	}
	for _, r := range recs {
		if err := cw.Write([]string{
			r.ID, r.PositionID, r.CreatedAt.UTC().Format(time.RFC3339), r.Symbol, string(r.Side),
			string(r.Kind), string(r.Reason), f(r.Level), f(r.Entry), f(r.ExitPrice), f(r.Notional), f(r.PnL),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}

// WriteDaysCSV writes archived trading days with a header row.
func WriteDaysCSV(w io.Writer, days []risk.DailyPerformance) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{
		"date", "start_balance", "end_balance", "pnl", "pnl_pct", "trades", "wins", "losses", "max_drawdown", "mode",
	}); err != nil {
		return err
	}
	for _, d := range days {
		if err := cw.Write([]string{
			d.Date, f(d.StartBalance), f(d.EndBalance), f(d.PnL), f(d.PnLPct),
			strconv.Itoa(d.Trades), strconv.Itoa(d.Wins), strconv.Itoa(d.Losses),
			f(d.MaxDrawdown), string(d.Mode),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
