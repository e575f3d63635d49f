package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rustyeddy/propdesk/lifecycle"
	"github.com/rustyeddy/propdesk/risk"
)

// SQLiteStore is the Store backed by a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	// one writer; sqlite serializes anyway
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// tx runs fn in a transaction and commits only if fn succeeds.
func (s *SQLiteStore) tx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) SaveDecision(ctx context.Context, rec DecisionRecord, pos *lifecycle.Position, acct risk.AccountState) error {
	sizing, err := json.Marshal(rec.Sizing)
	if err != nil {
		return err
	}
	return s.tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO decisions
			(id, channel_id, message_id, symbol, side, entry, stop_loss, take_profit,
			 decision, reason, detail, mode, risk_reward, sizing, position_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.ChannelID, rec.MessageID, rec.Symbol, string(rec.Side),
			rec.Entry, rec.StopLoss, rec.TakeProfit,
			string(rec.Decision), rec.Reason, rec.Detail, string(rec.Mode),
			rec.RiskReward, string(sizing), rec.PositionID, rec.CreatedAt.UTC(),
		)
		if err != nil {
			if isUnique(err) {
				return fmt.Errorf("decision %s: %w", rec.IntentRef(), ErrDuplicate)
			}
			return fmt.Errorf("insert decision: %w", err)
		}
		if pos != nil {
			if err := upsertPosition(ctx, tx, *pos, rec.CreatedAt); err != nil {
				return err
			}
		}
		return insertAccount(ctx, tx, acct)
	})
}

func (s *SQLiteStore) SaveExit(ctx context.Context, rec ExitRecord, pos lifecycle.Position, acct risk.AccountState) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO exits
			(id, position_id, symbol, side, kind, reason, level, entry, exit_price, notional, pnl, opened_at, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.PositionID, rec.Symbol, string(rec.Side), string(rec.Kind), string(rec.Reason),
			rec.Level, rec.Entry, rec.ExitPrice, rec.Notional, rec.PnL, rec.OpenedAt.UTC(), rec.CreatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("insert exit: %w", err)
		}
		if err := upsertPosition(ctx, tx, pos, rec.CreatedAt); err != nil {
			return err
		}
		return insertAccount(ctx, tx, acct)
	})
}

func (s *SQLiteStore) SaveDay(ctx context.Context, day risk.DailyPerformance, acct risk.AccountState) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO daily_performance
			(date, start_balance, end_balance, pnl, pnl_pct, trades, wins, losses, max_drawdown, mode)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			day.Date, day.StartBalance, day.EndBalance, day.PnL, day.PnLPct,
			day.Trades, day.Wins, day.Losses, day.MaxDrawdown, string(day.Mode),
		)
		if err != nil {
			return fmt.Errorf("insert day: %w", err)
		}
		return insertAccount(ctx, tx, acct)
	})
}

func (s *SQLiteStore) SaveAccount(ctx context.Context, acct risk.AccountState) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		return insertAccount(ctx, tx, acct)
	})
}

func (s *SQLiteStore) SavePosition(ctx context.Context, pos lifecycle.Position) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		return upsertPosition(ctx, tx, pos, pos.LastTickAt)
	})
}

func upsertPosition(ctx context.Context, tx *sql.Tx, pos lifecycle.Position, at time.Time) error {
	data, err := json.Marshal(pos)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO positions (id, symbol, status, data, opened_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			data = excluded.data,
			updated_at = excluded.updated_at`,
		pos.ID, pos.Symbol, string(pos.Status), string(data), pos.OpenedAt.UTC(), at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert position %s: %w", pos.ID, err)
	}
	return nil
}

func insertAccount(ctx context.Context, tx *sql.Tx, acct risk.AccountState) error {
	data, err := json.Marshal(acct)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO account_snapshots (data, created_at) VALUES (?, ?)`,
		string(data), acct.UpdatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("insert account snapshot: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadAccount(ctx context.Context) (risk.AccountState, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM account_snapshots ORDER BY seq DESC LIMIT 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return risk.AccountState{}, ErrNotFound
	}
	if err != nil {
		return risk.AccountState{}, err
	}
	var acct risk.AccountState
	if err := json.Unmarshal([]byte(data), &acct); err != nil {
		return risk.AccountState{}, fmt.Errorf("decode account snapshot: %w", err)
	}
	return acct, nil
}

func (s *SQLiteStore) OpenPositions(ctx context.Context) ([]lifecycle.Position, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM positions WHERE status = ? ORDER BY opened_at ASC, id ASC`,
		string(lifecycle.StatusOpen))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []lifecycle.Position
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var p lifecycle.Position
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, fmt.Errorf("decode position: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func isUnique(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}
