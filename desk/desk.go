package desk

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rustyeddy/propdesk/internal/id"
	"github.com/rustyeddy/propdesk/internal/logger"
	"github.com/rustyeddy/propdesk/ledger"
	"github.com/rustyeddy/propdesk/lifecycle"
	"github.com/rustyeddy/propdesk/market"
	"github.com/rustyeddy/propdesk/risk"
	"github.com/rustyeddy/propdesk/signal"
	"go.uber.org/zap"
)

// ReasonDuplicatePosition rejects an intent that repeats an open position.
const ReasonDuplicatePosition = "duplicate_position"

type Options struct {
	Engine   *risk.Engine
	Sizer    *risk.Sizer
	Parser   *signal.Parser
	Manager  *lifecycle.Manager
	Ledger   *ledger.Ledger
	Notifier Notifier
	Log      *zap.Logger

	// DuplicateTolerance is the relative entry distance under which a new
	// intent on the same symbol and side counts as a duplicate.
	DuplicateTolerance float64

	// Clock overrides time.Now, for replays.
	Clock func() time.Time
}

// Desk is the single admission and ledger actor for one account. All
// account mutations happen under mu.
type Desk struct {
	mu sync.Mutex

	engine   *risk.Engine
	sizer    *risk.Sizer
	parser   *signal.Parser
	manager  *lifecycle.Manager
	ledger   *ledger.Ledger
	notifier Notifier
	log      *zap.Logger
	ticks    *market.TickStore
	dupTol   float64
	clock    func() time.Time
}

// New builds a desk and registers the restored open positions with the
// lifecycle manager.
func New(opts Options, open []lifecycle.Position) (*Desk, error) {
	if opts.Engine == nil || opts.Sizer == nil || opts.Parser == nil || opts.Manager == nil || opts.Ledger == nil {
		return nil, errors.New("desk: engine, sizer, parser, manager and ledger are required")
	}
	d := &Desk{
		engine:   opts.Engine,
		sizer:    opts.Sizer,
		parser:   opts.Parser,
		manager:  opts.Manager,
		ledger:   opts.Ledger,
		notifier: opts.Notifier,
		log:      logger.Module(opts.Log, "desk"),
		ticks:    market.NewTickStore(),
		dupTol:   opts.DuplicateTolerance,
		clock:    opts.Clock,
	}
	if d.notifier == nil {
		d.notifier = NopNotifier{}
	}
	if d.clock == nil {
		d.clock = func() time.Time { return time.Now().UTC() }
	}
	for _, p := range open {
		if err := d.manager.Open(p); err != nil {
			return nil, fmt.Errorf("restore position %s: %w", p.ID, err)
		}
	}
	if len(open) > 0 {
		d.log.Info("restored open positions", zap.Int("count", len(open)))
	}
	return d, nil
}

func (d *Desk) now() time.Time { return d.clock().UTC() }

func (d *Desk) Account() risk.AccountState { return d.ledger.Account() }

func (d *Desk) Status() risk.Status { return d.engine.Status(d.ledger.Account()) }

func (d *Desk) Positions() []lifecycle.Position { return d.manager.Positions() }

func (d *Desk) Ticks() *market.TickStore { return d.ticks }

func (d *Desk) Store() ledger.Store { return d.ledger.Store() }

// SubmitSignal parses and decides one message. A message already decided
// returns its original record.
func (d *Desk) SubmitSignal(ctx context.Context, raw, channelID, messageID string) (ledger.DecisionRecord, error) {
	d.mu.Lock()
	rec, evs, err := d.submitLocked(ctx, raw, channelID, messageID)
	d.mu.Unlock()

	d.emit(ctx, evs)
	return rec, err
}

func (d *Desk) submitLocked(ctx context.Context, raw, channelID, messageID string) (ledger.DecisionRecord, []event, error) {
	if prev, seen, err := d.ledger.Seen(ctx, channelID, messageID); err != nil {
		return ledger.DecisionRecord{}, nil, fmt.Errorf("lookup decision: %w", err)
	} else if seen {
		d.log.Debug("duplicate message", zap.String("ref", prev.IntentRef()))
		return prev, nil, nil
	}

	now := d.now()
	if err := d.resetLocked(ctx, now); err != nil {
		return ledger.DecisionRecord{}, nil, err
	}
	acct := d.ledger.Account()

	rec := ledger.DecisionRecord{
		ChannelID: channelID,
		MessageID: messageID,
		Decision:  ledger.Rejected,
		Mode:      d.engine.CurrentMode(acct),
		CreatedAt: now,
	}

	intent, err := d.parser.ParseAt(raw, now)
	if err != nil {
		var pe *signal.ParseError
		if !errors.As(err, &pe) {
			return ledger.DecisionRecord{}, nil, err
		}
		rec.Reason = ledger.ReasonParseFailure
		rec.Detail = pe.Error()
		rec, err = d.ledger.RecordDecision(ctx, rec, nil)
		return rec, nil, err
	}

	rec.Symbol = intent.Symbol
	rec.Side = intent.Side
	rec.Entry = intent.Entry
	rec.StopLoss = intent.StopLoss
	rec.TakeProfit = intent.TakeProfit

	adm := d.engine.CanAdmit(intent, acct)
	rec.Mode = adm.Mode
	rec.RiskReward = adm.RiskReward
	if !adm.Allowed {
		return d.reject(ctx, rec, string(adm.Reason), adm.Detail)
	}

	if dup, ok := d.duplicate(intent); ok {
		return d.reject(ctx, rec, ReasonDuplicatePosition,
			fmt.Sprintf("open position %s on %s at %g within %.2f%%", dup.ID, dup.Symbol, dup.Entry, 100*d.dupTol))
	}

	sizing, err := d.sizer.Size(intent, acct, adm.Hints.RiskFraction, d.exposure())
	rec.Sizing = sizing
	if err != nil {
		var se *risk.SizingError
		if !errors.As(err, &se) {
			return ledger.DecisionRecord{}, nil, err
		}
		return d.reject(ctx, rec, string(se.Kind), se.Detail)
	}
	if reason, detail, ok := d.engine.Project(acct, sizing.ActualRisk); !ok {
		return d.reject(ctx, rec, string(reason), detail)
	}

	pos := lifecycle.Position{
		ID:           id.At(now),
		Symbol:       intent.Symbol,
		Side:         intent.Side,
		Entry:        intent.Entry,
		StopLoss:     intent.StopLoss,
		TakeProfit:   intent.TakeProfit,
		Notional:     sizing.Notional,
		Remaining:    sizing.Notional,
		HighestPrice: intent.Entry,
		Status:       lifecycle.StatusOpen,
		OpenedAt:     now,
		LastTickAt:   now,
	}
	if err := pos.Validate(); err != nil {
		return ledger.DecisionRecord{}, nil, err
	}

	rec.Decision = ledger.Accepted
	rec.Reason = string(risk.ReasonAccepted)
	rec.PositionID = pos.ID
	rec, err = d.ledger.RecordDecision(ctx, rec, &pos)
	if err != nil {
		return ledger.DecisionRecord{}, nil, err
	}
	if err := d.manager.Open(pos); err != nil {
		// persisted but not tracked; a restart restores it
		d.log.Error("register position", zap.String("position", pos.ID), zap.Error(err))
	}

	ev := TradeOpened{
		PositionID: pos.ID,
		Symbol:     pos.Symbol,
		Side:       pos.Side,
		Entry:      pos.Entry,
		StopLoss:   pos.StopLoss,
		TakeProfit: pos.TakeProfit,
		Notional:   pos.Notional,
		Risk:       sizing.ActualRisk,
		RiskReward: adm.RiskReward,
		Mode:       adm.Mode,
		At:         now,
	}
	return rec, []event{{opened: &ev}}, nil
}

func (d *Desk) reject(ctx context.Context, rec ledger.DecisionRecord, reason, detail string) (ledger.DecisionRecord, []event, error) {
	rec.Decision = ledger.Rejected
	rec.Reason = reason
	rec.Detail = detail
	rec, err := d.ledger.RecordDecision(ctx, rec, nil)
	return rec, nil, err
}

// duplicate finds an open position on the same symbol and side whose entry
// is within the duplicate tolerance of intent.
func (d *Desk) duplicate(intent signal.TradeIntent) (lifecycle.Position, bool) {
	if d.dupTol <= 0 {
		return lifecycle.Position{}, false
	}
	for _, p := range d.manager.OpenFor(intent.Symbol) {
		if p.Side != intent.Side {
			continue
		}
		if math.Abs(p.Entry-intent.Entry)/p.Entry <= d.dupTol {
			return p, true
		}
	}
	return lifecycle.Position{}, false
}

func (d *Desk) exposure() risk.Exposure {
	var x risk.Exposure
	for _, p := range d.manager.Positions() {
		x.Positions = append(x.Positions, risk.OpenRisk{
			Notional:        p.Remaining,
			StopDistancePct: p.StopDistancePct(),
		})
	}
	return x
}

// ResetDaily runs the daily reset if now has reached the boundary.
func (d *Desk) ResetDaily(ctx context.Context, now time.Time) (risk.DailyPerformance, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ledger.ResetDaily(ctx, now)
}

func (d *Desk) resetLocked(ctx context.Context, now time.Time) error {
	_, _, err := d.ledger.ResetDaily(ctx, now)
	return err
}

// SetFunding moves the account between evaluation and funded phases.
func (d *Desk) SetFunding(ctx context.Context, funded bool, months int) (risk.AccountState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ledger.SetFunding(ctx, funded, months, d.now())
}

// Run performs the daily reset at each boundary until ctx is done.
func (d *Desk) Run(ctx context.Context) error {
	for {
		wait := time.Until(d.Account().DailyResetAt)
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		if _, _, err := d.ResetDaily(ctx, d.now()); err != nil {
			d.log.Error("daily reset", zap.Error(err))
			return err
		}
	}
}
