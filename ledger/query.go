package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rustyeddy/propdesk/risk"
)

const decisionCols = `id, channel_id, message_id, symbol, side, entry, stop_loss, take_profit,
	decision, reason, detail, mode, risk_reward, sizing, position_id, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanDecision(row scanner) (DecisionRecord, error) {
	var (
		rec    DecisionRecord
		sizing string
	)
	err := row.Scan(
		&rec.ID, &rec.ChannelID, &rec.MessageID, &rec.Symbol, &rec.Side,
		&rec.Entry, &rec.StopLoss, &rec.TakeProfit,
		&rec.Decision, &rec.Reason, &rec.Detail, &rec.Mode,
		&rec.RiskReward, &sizing, &rec.PositionID, &rec.CreatedAt,
	)
	if err != nil {
		return DecisionRecord{}, err
	}
	if err := json.Unmarshal([]byte(sizing), &rec.Sizing); err != nil {
		return DecisionRecord{}, fmt.Errorf("decode sizing: %w", err)
	}
	return rec, nil
}

// FindDecision returns the decision recorded for a source message.
func (s *SQLiteStore) FindDecision(ctx context.Context, channelID, messageID string) (DecisionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+decisionCols+` FROM decisions WHERE channel_id = ? AND message_id = ?`,
		channelID, messageID)
	rec, err := scanDecision(row)
	if errors.Is(err, sql.ErrNoRows) {
		return DecisionRecord{}, ErrNotFound
	}
	return rec, err
}

// where builds a WHERE clause from the set fields of q.
func (q Query) where(decisions bool) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if decisions && q.Decision != "" {
		conds = append(conds, "decision = ?")
		args = append(args, string(q.Decision))
	}
	if q.Symbol != "" {
		conds = append(conds, "symbol = ?")
		args = append(args, q.Symbol)
	}
	if !decisions && q.PositionID != "" {
		conds = append(conds, "position_id = ?")
		args = append(args, q.PositionID)
	}
	if !q.Since.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, q.Since.UTC())
	}
	clause := ""
	if len(conds) > 0 {
		clause = " WHERE " + strings.Join(conds, " AND ")
	}
	return clause, args
}

func (q Query) limit() string {
	if q.Limit > 0 {
		return fmt.Sprintf(" LIMIT %d", q.Limit)
	}
	return ""
}

// Decisions lists decisions oldest first.
func (s *SQLiteStore) Decisions(ctx context.Context, q Query) ([]DecisionRecord, error) {
	where, args := q.where(true)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+decisionCols+` FROM decisions`+where+` ORDER BY created_at ASC, id ASC`+q.limit(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DecisionRecord
	for rows.Next() {
		rec, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Exits lists exits oldest first.
func (s *SQLiteStore) Exits(ctx context.Context, q Query) ([]ExitRecord, error) {
	where, args := q.where(false)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, position_id, symbol, side, kind, reason, level, entry, exit_price, notional, pnl, opened_at, created_at
		FROM exits`+where+` ORDER BY created_at ASC, id ASC`+q.limit(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ExitRecord
	for rows.Next() {
		var rec ExitRecord
		if err := rows.Scan(
			&rec.ID, &rec.PositionID, &rec.Symbol, &rec.Side, &rec.Kind, &rec.Reason,
			&rec.Level, &rec.Entry, &rec.ExitPrice, &rec.Notional, &rec.PnL,
			&rec.OpenedAt, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Days lists archived days, most recent first.
func (s *SQLiteStore) Days(ctx context.Context, limit int) ([]risk.DailyPerformance, error) {
	q := `SELECT date, start_balance, end_balance, pnl, pnl_pct, trades, wins, losses, max_drawdown, mode
		FROM daily_performance ORDER BY date DESC`
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []risk.DailyPerformance
	for rows.Next() {
		var d risk.DailyPerformance
		if err := rows.Scan(&d.Date, &d.StartBalance, &d.EndBalance, &d.PnL, &d.PnLPct,
			&d.Trades, &d.Wins, &d.Losses, &d.MaxDrawdown, &d.Mode); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
