package desk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/propdesk/ledger"
	"github.com/rustyeddy/propdesk/lifecycle"
	"github.com/rustyeddy/propdesk/market"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Exit is one non-trivial exit decision produced by a tick or a manual
// close, together with its ledger record.
type Exit struct {
	PositionID string                 `json:"position_id"`
	Decision   lifecycle.ExitDecision `json:"decision"`
	Record     ledger.ExitRecord      `json:"record"`
}

// SubmitPriceTick applies a price to every open position on symbol. The
// positions are evaluated in parallel; each commit runs under the desk
// lock.
func (d *Desk) SubmitPriceTick(ctx context.Context, symbol string, price float64, at time.Time) ([]Exit, error) {
	if price <= 0 {
		return nil, fmt.Errorf("tick %s: price must be > 0", symbol)
	}
	sym := market.NormalizeSymbol(symbol)
	at = at.UTC()
	d.ticks.Set(market.Tick{Symbol: sym, Price: price, Time: at})

	d.mu.Lock()
	err := d.resetLocked(ctx, d.now())
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}

	ids := d.manager.IDsFor(sym)
	if len(ids) == 0 {
		return nil, nil
	}

	type result struct {
		exit *Exit
		evs  []event
	}
	results := make([]result, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	for i, pid := range ids {
		i, pid := i, pid
		g.Go(func() error {
			exit, evs, err := d.applyTick(gctx, pid, price, at)
			if err != nil {
				return err
			}
			results[i] = result{exit: exit, evs: evs}
			return nil
		})
	}
	err = g.Wait()

	var (
		exits []Exit
		evs   []event
	)
	for _, r := range results {
		if r.exit != nil {
			exits = append(exits, *r.exit)
		}
		evs = append(evs, r.evs...)
	}
	d.emit(ctx, evs)
	return exits, err
}

func (d *Desk) applyTick(ctx context.Context, pid string, price float64, at time.Time) (*Exit, []event, error) {
	var (
		exit *Exit
		evs  []event
	)
	dec, err := d.manager.UpdateFunc(pid, price, at, func(next *lifecycle.Position, dec lifecycle.ExitDecision) error {
		d.mu.Lock()
		defer d.mu.Unlock()

		if dec.Kind == lifecycle.None {
			return d.ledger.SavePosition(ctx, *next)
		}
		x, ev, err := d.commitExitLocked(ctx, next, dec, at)
		if err != nil {
			return err
		}
		exit, evs = x, []event{ev}
		return nil
	})
	switch {
	case errors.Is(err, lifecycle.ErrStaleTick):
		d.log.Debug("stale tick", zap.String("position", pid), zap.Time("at", at))
		return nil, nil, nil
	case errors.Is(err, lifecycle.ErrUnknownPosition):
		// closed by a concurrent tick or a manual close
		return nil, nil, nil
	case err != nil:
		return nil, nil, fmt.Errorf("tick %s: %w", pid, err)
	}
	if dec.Kind == lifecycle.None {
		return nil, nil, nil
	}
	return exit, evs, nil
}

// commitExitLocked books a partial or full exit and builds its event.
// next is updated with the realized result.
func (d *Desk) commitExitLocked(ctx context.Context, next *lifecycle.Position, dec lifecycle.ExitDecision, at time.Time) (*Exit, event, error) {
	if dec.Kind == lifecycle.Partial {
		rec, pos, err := d.ledger.RecordPartial(ctx, *next, dec, at)
		if err != nil {
			return nil, event{}, err
		}
		*next = pos
		return &Exit{PositionID: pos.ID, Decision: dec, Record: rec}, event{partial: &TradePartiallyClosed{
			PositionID: pos.ID,
			Symbol:     pos.Symbol,
			Side:       pos.Side,
			Level:      dec.Level,
			ExitPrice:  dec.Price,
			Notional:   dec.Notional,
			Remaining:  pos.Remaining,
			PnL:        rec.PnL,
			At:         at,
		}}, nil
	}

	rec, pos, err := d.ledger.RecordClose(ctx, *next, dec, at)
	if err != nil {
		return nil, event{}, err
	}
	*next = pos
	acct := d.ledger.Account()
	return &Exit{PositionID: pos.ID, Decision: dec, Record: rec}, event{closed: &TradeClosed{
		PositionID: pos.ID,
		Symbol:     pos.Symbol,
		Side:       pos.Side,
		Reason:     dec.Reason,
		Entry:      pos.Entry,
		ExitPrice:  dec.Price,
		Notional:   dec.Notional,
		PnL:        rec.PnL,
		TotalPnL:   pos.RealizedPnL,
		Balance:    acct.Balance,
		Mode:       acct.Mode,
		At:         at,
	}}, nil
}

// ClosePosition closes a position manually. A zero price uses the latest
// tick for the position's symbol.
func (d *Desk) ClosePosition(ctx context.Context, pid string, price float64) (Exit, error) {
	if price <= 0 {
		p, err := d.manager.Get(pid)
		if err != nil {
			return Exit{}, err
		}
		t, err := d.ticks.Get(p.Symbol)
		if err != nil {
			return Exit{}, fmt.Errorf("close %s: %w", pid, err)
		}
		price = t.Price
	}

	now := d.now()
	var (
		exit *Exit
		ev   event
	)
	_, _, err := d.manager.CloseFunc(pid, price, now, func(next *lifecycle.Position, dec lifecycle.ExitDecision) error {
		d.mu.Lock()
		defer d.mu.Unlock()

		var err error
		exit, ev, err = d.commitExitLocked(ctx, next, dec, now)
		return err
	})
	if err != nil {
		return Exit{}, err
	}
	d.emit(ctx, []event{ev})
	return *exit, nil
}

// CloseAll closes every open position at its symbol's latest tick.
// Positions without a tick are skipped.
func (d *Desk) CloseAll(ctx context.Context) ([]Exit, error) {
	var out []Exit
	for _, p := range d.manager.Positions() {
		if _, err := d.ticks.Get(p.Symbol); err != nil {
			d.log.Warn("close all: no price", zap.String("position", p.ID), zap.String("symbol", p.Symbol))
			continue
		}
		x, err := d.ClosePosition(ctx, p.ID, 0)
		if errors.Is(err, lifecycle.ErrUnknownPosition) {
			continue
		}
		if err != nil {
			return out, err
		}
		out = append(out, x)
	}
	return out, nil
}
