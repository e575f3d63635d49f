package ledger

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rustyeddy/propdesk/lifecycle"
	"github.com/rustyeddy/propdesk/risk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingStore fails exit writes on demand.
type failingStore struct {
	*SQLiteStore
	failExits bool
}

func (f *failingStore) SaveExit(ctx context.Context, rec ExitRecord, pos lifecycle.Position, acct risk.AccountState) error {
	if f.failExits {
		return errors.New("disk I/O error")
	}
	return f.SQLiteStore.SaveExit(ctx, rec, pos, acct)
}

func openTestLedger(t *testing.T, store Store) *Ledger {
	t.Helper()
	engine := risk.NewEngine(risk.DefaultRules(), nil)
	l, open, err := Open(context.Background(), store, engine, engine.NewAccount(false, 0, t0), nil)
	require.NoError(t, err)
	assert.Empty(t, open)
	return l
}

func admit(t *testing.T, l *Ledger, msg string, pos lifecycle.Position) DecisionRecord {
	t.Helper()
	rec, err := l.RecordDecision(context.Background(), DecisionRecord{
		ChannelID: "chan", MessageID: msg, Symbol: pos.Symbol, Side: pos.Side,
		Entry: pos.Entry, StopLoss: pos.StopLoss, TakeProfit: pos.TakeProfit,
		Decision: Accepted, Reason: string(risk.ReasonAccepted), Mode: risk.EvaluationNormal,
		PositionID: pos.ID, CreatedAt: t0,
	}, &pos)
	require.NoError(t, err)
	return rec
}

func TestPnL(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, 88.89, PnL("Buy", 45000, 47000, 2000), 1e-9)
	assert.InDelta(t, -44.44, PnL("Buy", 45000, 44000, 2000), 1e-9)
	assert.InDelta(t, 50, PnL("Sell", 100, 95, 1000), 1e-9)
	assert.InDelta(t, -50, PnL("Sell", 100, 105, 1000), 1e-9)
	assert.Zero(t, PnL("Buy", 0, 105, 1000))
}

func TestRecordDecisionReservesSlot(t *testing.T) {
	s, _ := newTestStore(t)
	l := openTestLedger(t, s)

	rec := admit(t, l, "1", testPosition("P1"))
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, 1, l.Account().DailyTrades)

	_, err := l.RecordDecision(context.Background(), DecisionRecord{
		ChannelID: "chan", MessageID: "2", Decision: Rejected, Reason: ReasonParseFailure,
		Mode: risk.EvaluationNormal, CreatedAt: t0,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, l.Account().DailyTrades, "rejections do not use a slot")

	got, seen, err := l.Seen(context.Background(), "chan", "2")
	require.NoError(t, err)
	assert.True(t, seen)
	assert.Equal(t, ReasonParseFailure, got.Reason)

	_, seen, err = l.Seen(context.Background(), "chan", "3")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestRecordPartialThenClose(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	l := openTestLedger(t, s)

	pos := testPosition("P1")
	admit(t, l, "1", pos)

	pos.Remaining = 1000
	pos.PartialExits = []float64{5}
	partial := lifecycle.ExitDecision{Kind: lifecycle.Partial, Level: 5, Notional: 1000, Price: 47250}
	rec, pos, err := l.RecordPartial(ctx, pos, partial, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.InDelta(t, 50, rec.PnL, 1e-9)
	assert.InDelta(t, 50, pos.RealizedPnL, 1e-9)
	assert.InDelta(t, 10050, l.Account().Balance, 1e-9)
	assert.Zero(t, l.Account().DailyWins, "partials are not finished trades")

	pos.Status = lifecycle.StatusClosedTrailing
	pos.Remaining = 0
	full := lifecycle.ExitDecision{Kind: lifecycle.Full, Reason: lifecycle.ProfitProtection, Notional: 1000, Price: 44550}
	rec, pos, err = l.RecordClose(ctx, pos, full, t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.InDelta(t, -10, rec.PnL, 1e-9)
	assert.InDelta(t, 40, pos.RealizedPnL, 1e-9)

	acct := l.Account()
	assert.InDelta(t, 10040, acct.Balance, 1e-9)
	assert.Equal(t, 1, acct.DailyWins, "trade won overall")
	assert.Equal(t, 0, acct.ConsecutiveLosses)
	assert.InDelta(t, -10, acct.DailyPnL, 1e-9)

	exits, err := s.Exits(ctx, Query{PositionID: "P1"})
	require.NoError(t, err)
	assert.Len(t, exits, 2)

	_, _, err = l.RecordClose(ctx, pos, partial, t0)
	assert.Error(t, err)
}

func TestStoreFailureAppliesNothing(t *testing.T) {
	s, _ := newTestStore(t)
	fs := &failingStore{SQLiteStore: s}
	l := openTestLedger(t, fs)

	pos := testPosition("P1")
	admit(t, l, "1", pos)
	before := l.Account()

	fs.failExits = true
	pos.Status = lifecycle.StatusClosedSL
	_, _, err := l.RecordClose(context.Background(), pos,
		lifecycle.ExitDecision{Kind: lifecycle.Full, Reason: lifecycle.StopLoss, Notional: 2000, Price: 44000}, t0)
	require.Error(t, err)
	assert.Equal(t, before, l.Account())

	open, err := s.OpenPositions(context.Background())
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestReopenRestoresState(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	s1, err := NewSQLite(path)
	require.NoError(t, err)
	l1 := openTestLedger(t, s1)
	admit(t, l1, "1", testPosition("P1"))
	admit(t, l1, "2", testPosition("P2"))
	require.NoError(t, s1.Close())

	s2, err := NewSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s2.Close() })

	engine := risk.NewEngine(risk.DefaultRules(), nil)
	l2, open, err := Open(ctx, s2, engine, engine.NewAccount(false, 0, t0.Add(48*time.Hour)), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, l2.Account().DailyTrades)
	require.Len(t, open, 2)
	assert.Equal(t, "P1", open[0].ID)
}

func TestLedgerResetDaily(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	l := openTestLedger(t, s)
	admit(t, l, "1", testPosition("P1"))

	_, ok, err := l.ResetDaily(ctx, t0)
	require.NoError(t, err)
	assert.False(t, ok)

	day, ok, err := l.ResetDaily(ctx, l.Account().DailyResetAt)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, day.Trades)
	assert.Equal(t, 0, l.Account().DailyTrades)

	days, err := s.Days(ctx, 0)
	require.NoError(t, err)
	require.Len(t, days, 1)
	assert.Equal(t, "2026-03-02", days[0].Date)
}

func TestSetFunding(t *testing.T) {
	s, _ := newTestStore(t)
	l := openTestLedger(t, s)

	acct, err := l.SetFunding(context.Background(), true, 5, t0)
	require.NoError(t, err)
	assert.Equal(t, risk.FundedGrowth, acct.Mode)
	assert.True(t, l.Account().IsFunded)
}

func TestExports(t *testing.T) {
	exit := ExitRecord{
		ID: "E1", PositionID: "01HXYZABCDEFG", Symbol: "BTCUSDT", Side: "Buy", Kind: ExitFull,
		Reason: lifecycle.TakeProfit, Entry: 45000, ExitPrice: 47000, Notional: 2000, PnL: 88.89,
		OpenedAt: t0, CreatedAt: t0.Add(time.Hour),
	}

	org := FormatExitOrg(exit)
	assert.Contains(t, org, "** Trade: BTCUSDT Buy (01HXYZAB)")
	assert.Contains(t, org, ":PNL: 88.89")
	assert.Contains(t, org, ":CLOSE_TIME: 2026-03-02T11:00:00Z")
	assert.Contains(t, org, "*** Review")

	var buf bytes.Buffer
	require.NoError(t, WriteExitsCSV(&buf, []ExitRecord{exit}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "id,position_id"))
	assert.Contains(t, lines[1], "88.89")

	buf.Reset()
	require.NoError(t, WriteDecisionsCSV(&buf, []DecisionRecord{{ID: "D1", Decision: Rejected, Reason: "x", CreatedAt: t0}}))
	assert.Contains(t, buf.String(), "D1,")

	buf.Reset()
	require.NoError(t, WriteDaysCSV(&buf, []risk.DailyPerformance{{Date: "2026-03-02", StartBalance: 10000, EndBalance: 10050, PnL: 50, Trades: 2, Wins: 1, Losses: 1, Mode: risk.EvaluationNormal}}))
	assert.Contains(t, buf.String(), "2026-03-02,10000,10050,50,0,2,1,1,0,evaluation_normal")
}
