package replay

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rustyeddy/propdesk/desk"
	"github.com/rustyeddy/propdesk/ledger"
	"github.com/rustyeddy/propdesk/lifecycle"
	"github.com/rustyeddy/propdesk/risk"
	"github.com/rustyeddy/propdesk/signal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newDesk(t *testing.T, dbPath string, clock *Clock) *desk.Desk {
	t.Helper()
	ctx := context.Background()

	store, err := ledger.NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	engine := risk.NewEngine(risk.DefaultRules(), nil)
	l, open, err := ledger.Open(ctx, store, engine, engine.NewAccount(false, 0, clock.Now()), nil)
	require.NoError(t, err)

	d, err := desk.New(desk.Options{
		Engine:             engine,
		Sizer:              risk.NewSizer(risk.DefaultSizingRules()),
		Parser:             signal.NewParser(signal.Options{DefaultConfluence: 2, DefaultConfidence: 0.5}),
		Manager:            lifecycle.NewManager(lifecycle.DefaultRules()),
		Ledger:             l,
		DuplicateTolerance: 0.01,
		Clock:              clock.Now,
	}, open)
	require.NoError(t, err)
	return d
}

func TestReplayScaleOutThenProtection(t *testing.T) {
	ctx := context.Background()

	tmp := t.TempDir()
	csvPath := filepath.Join(tmp, "session.csv")
	dbPath := filepath.Join(tmp, "propdesk.db")

	// - long BTC opens at 45000
	// - 47250 (+5%) takes the first scale-out and arms the trail
	// - 46000 (+2.2%) falls under the profit floor and closes the rest
	// - a low RR signal is rejected
	// - the next day's reset archives the session
	csv := `time,symbol,price,event,arg1,arg2,arg3
2026-03-02T10:00:00Z,BTCUSDT,45000,SIGNAL,replay,1,"BTCUSDT Long\nEntry: 45000\nTP: 49500\nSL: 44000"
2026-03-02T10:01:00Z,BTCUSDT,47250,,,,
2026-03-02T10:02:00Z,BTCUSDT,46000,,,,
# comments are skipped
2026-03-02T11:00:00Z,,,SIGNAL,replay,2,"ETHUSDT Long
Entry: 3000
TP: 3050
SL: 2900"
2026-03-03T01:00:00Z,,,RESET,,,
`
	require.NoError(t, os.WriteFile(csvPath, []byte(csv), 0o644))

	clock := NewClock(start)
	d := newDesk(t, dbPath, clock)

	sum, err := CSV(ctx, csvPath, d, clock, Options{TickThenEvent: true})
	require.NoError(t, err)
	assert.Equal(t, Summary{
		Rows: 5, Ticks: 3, Signals: 2, Accepted: 1, Rejected: 1,
		Partials: 1, Closes: 1, Resets: 1,
	}, sum)

	acct := d.Account()
	assert.InDelta(t, 10072.22, acct.Balance, 1e-9)
	assert.Equal(t, 0, acct.DailyTrades)
	assert.Empty(t, d.Positions())
	assert.Equal(t, time.Date(2026, 3, 3, 1, 0, 0, 0, time.UTC), clock.Now())

	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	defer db.Close()

	rows, err := db.Query(`SELECT kind, reason FROM exits ORDER BY created_at`)
	require.NoError(t, err)
	defer rows.Close()

	var kinds, reasons []string
	for rows.Next() {
		var k, r string
		require.NoError(t, rows.Scan(&k, &r))
		kinds = append(kinds, k)
		reasons = append(reasons, r)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"partial", "full"}, kinds)
	assert.Equal(t, "profit_protection", reasons[1])

	var trades int
	require.NoError(t, db.QueryRow(`SELECT trades FROM daily_performance WHERE date = ?`, "2026-03-02").Scan(&trades))
	assert.Equal(t, 1, trades)
}

func TestReplayCloseEvents(t *testing.T) {
	ctx := context.Background()
	clock := NewClock(start)
	d := newDesk(t, filepath.Join(t.TempDir(), "propdesk.db"), clock)

	script := `2026-03-02T10:00:00Z,SOLUSDT,150,SIGNAL,c,1,SOLUSDT Long\nEntry: 150\nTP: 159\nSL: 147
2026-03-02T10:00:00Z,,,SIGNAL,c,2,SHORT DOT/USDT\nStop Loss: 7.4\nTake Profit: 6.6\nEntry Price: 7.2
2026-03-02T10:05:00Z,SOLUSDT,151.5,CLOSE_ALL
`
	sum, err := Run(ctx, strings.NewReader(script), d, clock, Options{TickThenEvent: true})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Accepted)
	assert.Equal(t, 1, sum.Closes, "DOT has no tick after entry and stays open")

	ps := d.Positions()
	require.Len(t, ps, 1)
	assert.Equal(t, "DOTUSDT", ps[0].Symbol)

	_, err = Run(ctx, strings.NewReader("2026-03-02T10:06:00Z,,,CLOSE,"+ps[0].ID+",7.0\n"), d, clock, Options{})
	require.NoError(t, err)
	assert.Empty(t, d.Positions())
}

func TestReplayCloseByIndexAndSymbol(t *testing.T) {
	ctx := context.Background()
	clock := NewClock(start)
	d := newDesk(t, filepath.Join(t.TempDir(), "propdesk.db"), clock)

	script := `2026-03-02T10:00:00Z,,,SIGNAL,c,1,SOLUSDT Long\nEntry: 150\nTP: 159\nSL: 147
2026-03-02T10:01:00Z,,,SIGNAL,c,2,SHORT DOT/USDT\nStop Loss: 7.4\nTake Profit: 6.6\nEntry Price: 7.2
2026-03-02T10:05:00Z,,,CLOSE,2,7.0
`
	sum, err := Run(ctx, strings.NewReader(script), d, clock, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Accepted)
	assert.Equal(t, 1, sum.Closes)

	ps := d.Positions()
	require.Len(t, ps, 1)
	assert.Equal(t, "SOLUSDT", ps[0].Symbol, "index 2 is the second position opened")

	_, err = Run(ctx, strings.NewReader("2026-03-02T10:06:00Z,,,CLOSE,3\n"), d, clock, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index 3")

	sum, err = Run(ctx, strings.NewReader("2026-03-02T10:07:00Z,,,CLOSE,sol/usdt,151\n"), d, clock, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Closes)
	assert.Empty(t, d.Positions())

	exits, err := d.Store().Exits(ctx, ledger.Query{Symbol: "SOLUSDT"})
	require.NoError(t, err)
	require.Len(t, exits, 1)
	assert.InDelta(t, 151, exits[0].ExitPrice, 1e-9)
}

func TestReplayErrors(t *testing.T) {
	ctx := context.Background()
	clock := NewClock(start)
	d := newDesk(t, filepath.Join(t.TempDir(), "propdesk.db"), clock)

	tests := []struct {
		name string
		row  string
		msg  string
	}{
		{"bad time", "yesterday,BTCUSDT,1", "bad time"},
		{"bad price", "2026-03-02T10:00:00Z,BTCUSDT,abc", "bad price"},
		{"unknown event", "2026-03-02T10:00:00Z,,,DANCE", "unknown event"},
		{"signal without ids", "2026-03-02T10:00:00Z,,,SIGNAL", "SIGNAL"},
		{"close unknown", "2026-03-02T10:00:00Z,,,CLOSE,nope,1", "CLOSE"},
		{"bad funding", "2026-03-02T10:00:00Z,,,FUNDING,maybe", "FUNDING"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Run(ctx, strings.NewReader(tt.row+"\n"), d, clock, Options{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
			assert.Contains(t, err.Error(), "row 1")
		})
	}
}

func TestReplayFunding(t *testing.T) {
	clock := NewClock(start)
	d := newDesk(t, filepath.Join(t.TempDir(), "propdesk.db"), clock)

	_, err := Run(context.Background(), strings.NewReader("2026-03-02T10:00:00Z,,,FUNDING,true,7\n"), d, clock, Options{})
	require.NoError(t, err)
	assert.Equal(t, risk.FundedScaled, d.Account().Mode)
}

func TestClockIsMonotonic(t *testing.T) {
	c := NewClock(start)
	c.Set(start.Add(time.Hour))
	c.Set(start)
	assert.Equal(t, start.Add(time.Hour), c.Now())
}

func TestFirstTime(t *testing.T) {
	got, err := FirstTime(strings.NewReader("time,symbol,price\n# note\n2026-03-02T10:00:00Z,BTCUSDT,1\n2026-03-02T11:00:00Z,BTCUSDT,2\n"))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), got)

	_, err = FirstTime(strings.NewReader("time,symbol,price\n"))
	assert.Error(t, err)
}
