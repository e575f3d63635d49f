package desk

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rustyeddy/propdesk/ledger"
	"github.com/rustyeddy/propdesk/lifecycle"
	"github.com/rustyeddy/propdesk/risk"
	"github.com/rustyeddy/propdesk/signal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type recorder struct {
	mu      sync.Mutex
	opened  []TradeOpened
	partial []TradePartiallyClosed
	closed  []TradeClosed
}

func (r *recorder) TradeOpened(_ context.Context, ev TradeOpened) {
	r.mu.Lock()
	r.opened = append(r.opened, ev)
	r.mu.Unlock()
}

func (r *recorder) TradePartiallyClosed(_ context.Context, ev TradePartiallyClosed) {
	r.mu.Lock()
	r.partial = append(r.partial, ev)
	r.mu.Unlock()
}

func (r *recorder) TradeClosed(_ context.Context, ev TradeClosed) {
	r.mu.Lock()
	r.closed = append(r.closed, ev)
	r.mu.Unlock()
}

type harness struct {
	desk  *Desk
	store *ledger.SQLiteStore
	rec   *recorder
	clock *testClock
	path  string
}

func newHarness(t *testing.T, profiles risk.Profiles) *harness {
	t.Helper()
	return openHarness(t, filepath.Join(t.TempDir(), "desk.db"), profiles)
}

func openHarness(t *testing.T, path string, profiles risk.Profiles) *harness {
	t.Helper()
	ctx := context.Background()

	store, err := ledger.NewSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	engine := risk.NewEngine(risk.DefaultRules(), profiles)
	l, open, err := ledger.Open(ctx, store, engine, engine.NewAccount(false, 0, t0), nil)
	require.NoError(t, err)

	clock := &testClock{now: t0}
	rec := &recorder{}
	d, err := New(Options{
		Engine:             engine,
		Sizer:              risk.NewSizer(risk.DefaultSizingRules()),
		Parser:             signal.NewParser(signal.Options{DefaultConfluence: 2, DefaultConfidence: 0.5}),
		Manager:            lifecycle.NewManager(lifecycle.DefaultRules()),
		Ledger:             l,
		Notifier:           rec,
		DuplicateTolerance: 0.01,
		Clock:              clock.Now,
	}, open)
	require.NoError(t, err)

	return &harness{desk: d, store: store, rec: rec, clock: clock, path: path}
}

func longMsg(symbol string, entry, sl, tp float64) string {
	return fmt.Sprintf("%s Long\nEntry: %g\nTP: %g\nSL: %g", symbol, entry, tp, sl)
}

func TestSubmitSignalRejectsLowRiskReward(t *testing.T) {
	h := newHarness(t, nil)

	rec, err := h.desk.SubmitSignal(context.Background(),
		"BTCUSDT Long\nEntry: 45,000\nTP: 47,000\nSL: 43,000", "chan", "1")
	require.NoError(t, err)
	assert.Equal(t, ledger.Rejected, rec.Decision)
	assert.Equal(t, string(risk.ReasonRiskRewardTooLow), rec.Reason)
	assert.InDelta(t, 1.0, rec.RiskReward, 1e-9)
	assert.Equal(t, risk.EvaluationNormal, rec.Mode)
	assert.Empty(t, h.desk.Positions())
	assert.Empty(t, h.rec.opened)
}

func TestSubmitSignalIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	msg := longMsg("BTCUSDT", 45000, 44000, 49500)

	first, err := h.desk.SubmitSignal(ctx, msg, "chan", "7")
	require.NoError(t, err)
	require.Equal(t, ledger.Accepted, first.Decision)

	second, err := h.desk.SubmitSignal(ctx, msg, "chan", "7")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	recs, err := h.store.Decisions(ctx, ledger.Query{})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
	assert.Len(t, h.desk.Positions(), 1)
	assert.Equal(t, 1, h.desk.Account().DailyTrades)
	assert.Len(t, h.rec.opened, 1)
}

func TestParseFailureIsRecorded(t *testing.T) {
	h := newHarness(t, nil)

	rec, err := h.desk.SubmitSignal(context.Background(), "good morning traders", "chan", "1")
	require.NoError(t, err)
	assert.Equal(t, ledger.Rejected, rec.Decision)
	assert.Equal(t, ledger.ReasonParseFailure, rec.Reason)
	assert.Equal(t, 0, h.desk.Account().DailyTrades)
	assert.InDelta(t, 10000, h.desk.Account().Balance, 1e-9)
}

func TestPositionLifecycleThroughDesk(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	rec, err := h.desk.SubmitSignal(ctx, longMsg("BTCUSDT", 45000, 44000, 49500), "chan", "1")
	require.NoError(t, err)
	require.Equal(t, ledger.Accepted, rec.Decision, rec.Detail)
	assert.InDelta(t, 2000, rec.Sizing.Notional, 1e-9)
	assert.Equal(t, "max", rec.Sizing.Clamped)

	require.Len(t, h.rec.opened, 1)
	assert.Equal(t, rec.PositionID, h.rec.opened[0].PositionID)

	exits, err := h.desk.SubmitPriceTick(ctx, "BTCUSDT", 47250, t0.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, exits, 1)
	assert.Equal(t, lifecycle.Partial, exits[0].Decision.Kind)
	assert.InDelta(t, 50, exits[0].Record.PnL, 1e-9)
	require.Len(t, h.rec.partial, 1)
	assert.InDelta(t, 1000, h.rec.partial[0].Remaining, 1e-9)

	exits, err = h.desk.SubmitPriceTick(ctx, "btc/usdt", 44000, t0.Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, exits, 1)
	assert.Equal(t, lifecycle.StopLoss, exits[0].Decision.Reason)
	assert.InDelta(t, -22.22, exits[0].Record.PnL, 1e-9)

	require.Len(t, h.rec.closed, 1)
	assert.InDelta(t, 27.78, h.rec.closed[0].TotalPnL, 1e-9)

	acct := h.desk.Account()
	assert.InDelta(t, 10027.78, acct.Balance, 1e-9)
	assert.Equal(t, 1, acct.DailyWins)
	assert.Empty(t, h.desk.Positions())

	open, err := h.store.OpenPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestDailyTradeCapUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	var wg sync.WaitGroup
	results := make([]ledger.DecisionRecord, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entry := 40000 + float64(i)*1000
			rec, err := h.desk.SubmitSignal(ctx, longMsg("BTCUSDT", entry, entry*0.98, entry*1.06), "chan", fmt.Sprint(i))
			assert.NoError(t, err)
			results[i] = rec
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, r := range results {
		if r.Accepted() {
			accepted++
		} else {
			assert.Equal(t, string(risk.ReasonDailyTradeLimit), r.Reason)
		}
	}
	assert.Equal(t, 3, accepted)
	assert.Equal(t, 3, h.desk.Account().DailyTrades)
	assert.Len(t, h.desk.Positions(), 3)
}

func TestDuplicatePositionRejected(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	_, err := h.desk.SubmitSignal(ctx, longMsg("ETHUSDT", 3000, 2940, 3180), "a", "1")
	require.NoError(t, err)

	rec, err := h.desk.SubmitSignal(ctx, longMsg("ETHUSDT", 3020, 2960, 3200), "b", "1")
	require.NoError(t, err)
	assert.Equal(t, ReasonDuplicatePosition, rec.Reason)

	rec, err = h.desk.SubmitSignal(ctx, longMsg("ETHUSDT", 3100, 3038, 3286), "b", "2")
	require.NoError(t, err)
	assert.True(t, rec.Accepted(), rec.Detail)
}

func TestStoppedUntilDailyReset(t *testing.T) {
	ctx := context.Background()
	profiles := risk.DefaultProfiles()
	p := profiles[risk.EvaluationNormal]
	p.MaxDailyLoss = 30
	profiles[risk.EvaluationNormal] = p
	h := newHarness(t, profiles)

	rec, err := h.desk.SubmitSignal(ctx, longMsg("BTCUSDT", 45000, 44000, 49500), "chan", "1")
	require.NoError(t, err)
	require.True(t, rec.Accepted())

	_, err = h.desk.SubmitPriceTick(ctx, "BTCUSDT", 43900, t0.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, risk.Stopped, h.desk.Account().Mode)

	rec, err = h.desk.SubmitSignal(ctx, longMsg("SOLUSDT", 150, 147, 159), "chan", "2")
	require.NoError(t, err)
	assert.Equal(t, string(risk.ReasonTradingHalted), rec.Reason)

	h.clock.Set(time.Date(2026, 3, 3, 0, 30, 0, 0, time.UTC))
	rec, err = h.desk.SubmitSignal(ctx, longMsg("SOLUSDT", 150, 147, 159), "chan", "3")
	require.NoError(t, err)
	assert.True(t, rec.Accepted(), rec.Detail)
	assert.Equal(t, risk.EvaluationNormal, h.desk.Account().Mode)
	assert.Equal(t, 1, h.desk.Account().DailyTrades)

	days, err := h.store.Days(ctx, 0)
	require.NoError(t, err)
	require.Len(t, days, 1)
	assert.Equal(t, "2026-03-02", days[0].Date)
}

func TestManualCloseUsesLatestTick(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	rec, err := h.desk.SubmitSignal(ctx, longMsg("SOLUSDT", 150, 147, 159), "chan", "1")
	require.NoError(t, err)
	require.True(t, rec.Accepted())

	_, err = h.desk.ClosePosition(ctx, rec.PositionID, 0)
	assert.Error(t, err, "no tick yet")

	_, err = h.desk.SubmitPriceTick(ctx, "SOLUSDT", 151.5, t0.Add(time.Minute))
	require.NoError(t, err)

	x, err := h.desk.ClosePosition(ctx, rec.PositionID, 0)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.Manual, x.Decision.Reason)
	assert.InDelta(t, 151.5, x.Record.ExitPrice, 1e-9)
	assert.InDelta(t, 20, x.Record.PnL, 1e-9)

	_, err = h.desk.ClosePosition(ctx, rec.PositionID, 0)
	assert.ErrorIs(t, err, lifecycle.ErrUnknownPosition)
}

func TestRestartRestoresPositions(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "desk.db")

	h1 := openHarness(t, path, nil)
	rec, err := h1.desk.SubmitSignal(ctx, longMsg("BTCUSDT", 45000, 44000, 49500), "chan", "1")
	require.NoError(t, err)
	_, err = h1.desk.SubmitPriceTick(ctx, "BTCUSDT", 46000, t0.Add(time.Minute))
	require.NoError(t, err)
	require.NoError(t, h1.store.Close())

	h2 := openHarness(t, path, nil)
	ps := h2.desk.Positions()
	require.Len(t, ps, 1)
	assert.Equal(t, rec.PositionID, ps[0].ID)
	assert.InDelta(t, 46000, ps[0].HighestPrice, 1e-9)
	assert.Equal(t, 1, h2.desk.Account().DailyTrades)

	again, err := h2.desk.SubmitSignal(ctx, longMsg("BTCUSDT", 45000, 44000, 49500), "chan", "1")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, again.ID)
}

func TestTerminalEvaluationShortCircuits(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	acct, err := h.desk.SetFunding(ctx, false, 0)
	require.NoError(t, err)
	assert.False(t, acct.IsFunded)

	acct.EvaluationFailed = true
	require.NoError(t, h.store.SaveAccount(ctx, acct))

	h2 := openHarness(t, h.path, nil)
	rec, err := h2.desk.SubmitSignal(ctx, longMsg("BTCUSDT", 45000, 44000, 49500), "chan", "9")
	require.NoError(t, err)
	assert.Equal(t, string(risk.ReasonEvaluationFailed), rec.Reason)
}
