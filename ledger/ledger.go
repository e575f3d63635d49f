package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rustyeddy/propdesk/internal/id"
	"github.com/rustyeddy/propdesk/internal/logger"
	"github.com/rustyeddy/propdesk/lifecycle"
	"github.com/rustyeddy/propdesk/risk"
	"go.uber.org/zap"
)

// Ledger records decisions and exits and is the only writer of the
// account. Each change is applied to a copy, persisted together with the
// record, and only then made visible.
type Ledger struct {
	store  Store
	engine *risk.Engine
	log    *zap.Logger

	mu   sync.RWMutex
	acct risk.AccountState
}

// Open restores the latest account snapshot from store, or persists
// initial when the store is empty. It also returns the open positions to
// hand back to the lifecycle manager.
func Open(ctx context.Context, store Store, engine *risk.Engine, initial risk.AccountState, log *zap.Logger) (*Ledger, []lifecycle.Position, error) {
	l := &Ledger{
		store:  store,
		engine: engine,
		log:    logger.Module(log, "ledger"),
	}

	acct, err := store.LoadAccount(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
		acct = initial
		if err := store.SaveAccount(ctx, acct); err != nil {
			return nil, nil, fmt.Errorf("save initial account: %w", err)
		}
		l.log.Info("new account", zap.Float64("balance", acct.Balance), zap.String("mode", string(acct.Mode)))
	case err != nil:
		return nil, nil, fmt.Errorf("load account: %w", err)
	default:
		l.log.Info("restored account",
			zap.Float64("balance", acct.Balance),
			zap.String("mode", string(acct.Mode)),
			zap.Time("daily_reset_at", acct.DailyResetAt))
	}
	l.acct = acct

	open, err := store.OpenPositions(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load open positions: %w", err)
	}
	return l, open, nil
}

// Account returns a copy of the current account state.
func (l *Ledger) Account() risk.AccountState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.acct
}

func (l *Ledger) Store() Store { return l.store }

// Seen returns the decision already recorded for a message, if any.
func (l *Ledger) Seen(ctx context.Context, channelID, messageID string) (DecisionRecord, bool, error) {
	rec, err := l.store.FindDecision(ctx, channelID, messageID)
	if errors.Is(err, ErrNotFound) {
		return DecisionRecord{}, false, nil
	}
	if err != nil {
		return DecisionRecord{}, false, err
	}
	return rec, true, nil
}

// apply runs mutate on a copy of the account, persists it through save and
// swaps it in.
func (l *Ledger) apply(mutate func(a *risk.AccountState), save func(a risk.AccountState) error) (risk.AccountState, error) {
	l.mu.RLock()
	next := l.acct
	l.mu.RUnlock()

	mutate(&next)
	if err := save(next); err != nil {
		return risk.AccountState{}, err
	}

	l.mu.Lock()
	l.acct = next
	l.mu.Unlock()
	return next, nil
}

// RecordDecision writes rec. An accepted decision reserves a daily trade
// slot and persists pos as opened.
func (l *Ledger) RecordDecision(ctx context.Context, rec DecisionRecord, pos *lifecycle.Position) (DecisionRecord, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.ID == "" {
		rec.ID = id.At(rec.CreatedAt)
	}
	if rec.Accepted() && pos == nil {
		return DecisionRecord{}, fmt.Errorf("record decision %s: accepted without position", rec.IntentRef())
	}

	_, err := l.apply(
		func(a *risk.AccountState) {
			if rec.Accepted() {
				l.engine.OnAdmitted(a, rec.CreatedAt)
			}
			if rec.Mode != "" && a.Mode != risk.Stopped {
				a.Mode = rec.Mode
			}
		},
		func(a risk.AccountState) error {
			return l.store.SaveDecision(ctx, rec, pos, a)
		},
	)
	if err != nil {
		return DecisionRecord{}, fmt.Errorf("record decision %s: %w", rec.IntentRef(), err)
	}

	l.log.Info("decision",
		zap.String("id", rec.ID),
		zap.String("ref", rec.IntentRef()),
		zap.String("decision", string(rec.Decision)),
		zap.String("reason", rec.Reason),
		zap.String("symbol", rec.Symbol))
	return rec, nil
}

// RecordPartial books a scale-out fill. pos is the position after the
// partial was applied.
func (l *Ledger) RecordPartial(ctx context.Context, pos lifecycle.Position, d lifecycle.ExitDecision, at time.Time) (ExitRecord, lifecycle.Position, error) {
	if d.Kind != lifecycle.Partial {
		return ExitRecord{}, pos, fmt.Errorf("record partial %s: decision is %s", pos.ID, d.Kind)
	}
	return l.recordExit(ctx, pos, d, ExitPartial, at)
}

// RecordClose books the final fill of a position and reports the trade
// result to the risk engine. It returns the exit record whose PnL is the
// amount realized by this fill.
func (l *Ledger) RecordClose(ctx context.Context, pos lifecycle.Position, d lifecycle.ExitDecision, at time.Time) (ExitRecord, lifecycle.Position, error) {
	if d.Kind != lifecycle.Full {
		return ExitRecord{}, pos, fmt.Errorf("record close %s: decision is %s", pos.ID, d.Kind)
	}
	return l.recordExit(ctx, pos, d, ExitFull, at)
}

func (l *Ledger) recordExit(ctx context.Context, pos lifecycle.Position, d lifecycle.ExitDecision, kind ExitKind, at time.Time) (ExitRecord, lifecycle.Position, error) {
	pnl := PnL(pos.Side, pos.Entry, d.Price, d.Notional)
	rec := ExitRecord{
		ID:         id.At(at),
		PositionID: pos.ID,
		Symbol:     pos.Symbol,
		Side:       pos.Side,
		Kind:       kind,
		Reason:     d.Reason,
		Level:      d.Level,
		Entry:      pos.Entry,
		ExitPrice:  d.Price,
		Notional:   d.Notional,
		PnL:        pnl,
		OpenedAt:   pos.OpenedAt,
		CreatedAt:  at.UTC(),
	}

	pos.RealizedPnL = round2(pos.RealizedPnL + pnl)
	won := pos.RealizedPnL > 0

	_, err := l.apply(
		func(a *risk.AccountState) {
			if kind == ExitFull {
				l.engine.OnTradeClosed(a, pnl, won, at)
				return
			}
			l.engine.OnPartialClose(a, pnl, at)
		},
		func(a risk.AccountState) error {
			return l.store.SaveExit(ctx, rec, pos, a)
		},
	)
	if err != nil {
		return ExitRecord{}, pos, fmt.Errorf("record %s exit %s: %w", kind, pos.ID, err)
	}

	l.log.Info("exit",
		zap.String("position", pos.ID),
		zap.String("symbol", pos.Symbol),
		zap.String("kind", string(kind)),
		zap.String("reason", string(d.Reason)),
		zap.Float64("price", d.Price),
		zap.Float64("notional", d.Notional),
		zap.Float64("pnl", pnl))
	return rec, pos, nil
}

// SavePosition persists lifecycle tracking state of an open position.
func (l *Ledger) SavePosition(ctx context.Context, pos lifecycle.Position) error {
	if err := l.store.SavePosition(ctx, pos); err != nil {
		return fmt.Errorf("save position %s: %w", pos.ID, err)
	}
	return nil
}

// ResetDaily archives the day and resets the daily counters if now has
// reached the reset boundary.
func (l *Ledger) ResetDaily(ctx context.Context, now time.Time) (risk.DailyPerformance, bool, error) {
	var (
		day risk.DailyPerformance
		ok  bool
	)
	_, err := l.apply(
		func(a *risk.AccountState) {
			day, ok = l.engine.ResetDaily(a, now)
		},
		func(a risk.AccountState) error {
			if !ok {
				return nil
			}
			return l.store.SaveDay(ctx, day, a)
		},
	)
	if err != nil {
		return risk.DailyPerformance{}, false, fmt.Errorf("daily reset: %w", err)
	}
	if ok {
		l.log.Info("daily reset",
			zap.String("date", day.Date),
			zap.Float64("pnl", day.PnL),
			zap.Int("trades", day.Trades),
			zap.String("mode", string(l.Account().Mode)))
	}
	return day, ok, nil
}

// SetFunding switches the account between evaluation and funded phases.
func (l *Ledger) SetFunding(ctx context.Context, funded bool, months int, at time.Time) (risk.AccountState, error) {
	acct, err := l.apply(
		func(a *risk.AccountState) {
			a.IsFunded = funded
			a.MonthsFunded = months
			a.UpdatedAt = at.UTC()
			l.engine.Refresh(a)
		},
		func(a risk.AccountState) error {
			return l.store.SaveAccount(ctx, a)
		},
	)
	if err != nil {
		return risk.AccountState{}, fmt.Errorf("set funding: %w", err)
	}
	return acct, nil
}
