package cmd

import (
	"testing"
	"time"

	"github.com/rustyeddy/propdesk/lifecycle"
	"github.com/rustyeddy/propdesk/market"
	"github.com/rustyeddy/propdesk/replay"
	"github.com/rustyeddy/propdesk/risk"
	"github.com/stretchr/testify/assert"
)

func TestRenderStatus(t *testing.T) {
	e := risk.NewEngine(risk.DefaultRules(), risk.DefaultProfiles())
	acct := e.NewAccount(false, 0, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))

	out := renderStatus(e.Status(acct), nil)
	assert.Contains(t, out, "PROPDESK ACCOUNT")
	assert.Contains(t, out, "evaluation_normal")
	assert.Contains(t, out, "$10000.00")
	assert.Contains(t, out, "No open positions")

	ps := []lifecycle.Position{{
		ID: "p1", Symbol: "BTCUSDT", Side: market.Buy,
		Entry: 45000, StopLoss: 43000, TakeProfit: 47000,
		Notional: 1000, Remaining: 500, TrailingActivated: true,
	}}
	out = renderStatus(e.Status(acct), ps)
	assert.Contains(t, out, "OPEN POSITIONS (1)")
	assert.Contains(t, out, "BTCUSDT")
	assert.Contains(t, out, "trailing")
	assert.NotContains(t, out, "No open positions")
}

func TestRenderSummary(t *testing.T) {
	out := renderSummary(replay.Summary{Rows: 5, Ticks: 3, Signals: 2, Accepted: 1, Rejected: 1, Closes: 1})
	assert.Contains(t, out, "REPLAY")
	assert.Contains(t, out, "Signals")
	assert.Contains(t, out, "accepted")
}
