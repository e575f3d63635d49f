package signal

import (
	"errors"
	"testing"
	"time"

	"github.com/rustyeddy/propdesk/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestParser() *Parser {
	return NewParser(Options{DefaultConfluence: 2, DefaultConfidence: 0.5})
}

func TestParseFormats(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		msg    string
		symbol string
		side   market.Side
		entry  float64
		tp     float64
		sl     float64
	}{
		{
			name:   "symbol then side",
			msg:    "BTCUSDT Long\nEntry: 45,000\nTP: 47,000\nSL: 43,000",
			symbol: "BTCUSDT", side: market.Buy, entry: 45000, tp: 47000, sl: 43000,
		},
		{
			name:   "side then symbol",
			msg:    "Sell ETHUSDT\nEntry: 3200.5\nTarget: 3000\nStop Loss: 3300",
			symbol: "ETHUSDT", side: market.Sell, entry: 3200.5, tp: 3000, sl: 3300,
		},
		{
			name:   "compact with sigil",
			msg:    "Long $SOL @ 145.2 | TP: 160 | SL: 139.5",
			symbol: "SOL", side: market.Buy, entry: 145.2, tp: 160, sl: 139.5,
		},
		{
			name:   "labels in any order",
			msg:    "SHORT DOT/USDT\nStop Loss: 7.9\nTake Profit: 6.5\nEntry Price: 7.2",
			symbol: "DOTUSDT", side: market.Sell, entry: 7.2, tp: 6.5, sl: 7.9,
		},
		{
			name:   "space grouped levels",
			msg:    "Buy BTCUSDT\nEntry: 45 000\nTP: 47 000\nSL: 43 000",
			symbol: "BTCUSDT", side: market.Buy, entry: 45000, tp: 47000, sl: 43000,
		},
		{
			name:   "space grouped with decimals",
			msg:    "Long $ETH @ 3 000.5 | TP: 3 200 | SL: 2 950.25",
			symbol: "ETH", side: market.Buy, entry: 3000.5, tp: 3200, sl: 2950.25,
		},
		{
			name:   "trailing decimal point",
			msg:    "BTCUSDT Long\nEntry: 45000.\nTP: 47000.\nSL: 43000.",
			symbol: "BTCUSDT", side: market.Buy, entry: 45000, tp: 47000, sl: 43000,
		},
		{
			name:   "symbol then side on one line",
			msg:    "BTCUSDT Long, Entry: 45,000, TP: 47,000, SL: 43,000",
			symbol: "BTCUSDT", side: market.Buy, entry: 45000, tp: 47000, sl: 43000,
		},
		{
			name:   "trailing confluence lines",
			msg:    "SHORT DOT/USDT\nEntry: 7.2\nSL: 7.9\nTP: 6.5\nConfluence: 3",
			symbol: "DOTUSDT", side: market.Sell, entry: 7.2, tp: 6.5, sl: 7.9,
		},
	}

	p := newTestParser()
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := p.ParseAt(tt.msg, at)
			require.NoError(t, err)
			assert.Equal(t, tt.symbol, got.Symbol)
			assert.Equal(t, tt.side, got.Side)
			assert.InDelta(t, tt.entry, got.Entry, 1e-9)
			assert.InDelta(t, tt.tp, got.TakeProfit, 1e-9)
			assert.InDelta(t, tt.sl, got.StopLoss, 1e-9)
			assert.Equal(t, at, got.ReceivedAt)
		})
	}
}

func TestParseDefaultsAndOverrides(t *testing.T) {
	t.Parallel()
	p := newTestParser()

	got, err := p.Parse("BTCUSDT Long\nEntry: 45000\nTP: 47000\nSL: 43000")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Confluence)
	assert.InDelta(t, 0.5, got.Confidence, 1e-9)

	got, err = p.Parse("BTCUSDT Long\nEntry: 45000\nTP: 47000\nSL: 43000\nConfluence: 4\nConfidence: 80%")
	require.NoError(t, err)
	assert.Equal(t, 4, got.Confluence)
	assert.InDelta(t, 0.8, got.Confidence, 1e-9)

	got, err = p.Parse("BTCUSDT Long\nEntry: 45000\nTP: 47000\nSL: 43000\nConfidence: 0.65")
	require.NoError(t, err)
	assert.InDelta(t, 0.65, got.Confidence, 1e-9)
}

func TestParseFailures(t *testing.T) {
	t.Parallel()
	p := newTestParser()

	tests := []struct {
		name string
		msg  string
		want error
	}{
		{"chatter", "gm everyone, markets look spicy today", ErrUnrecognizedFormat},
		{"empty", "   ", ErrUnrecognizedFormat},
		{"bad number", "BTCUSDT Long\nEntry: 45,000.5.1\nTP: 47000\nSL: 43000", ErrInvalidNumber},
		{"buy with stop above entry", "BTCUSDT Long\nEntry: 45000\nTP: 47000\nSL: 46000", ErrInvalidLevels},
		{"sell with target above entry", "Short $ETH @ 3000 | TP: 3100 | SL: 3200", ErrInvalidLevels},
		{"comma decimal after dot grouping", "BTCUSDT Long\nEntry: 45.000,5\nTP: 47000\nSL: 43000", ErrInvalidNumber},
		{"comma decimal after space grouping", "Buy ETHUSDT\nEntry: 3 000,5\nTP: 3200\nSL: 2900", ErrInvalidNumber},
		{"short digit group", "Buy ETHUSDT\nEntry: 3 00\nTP: 3200\nSL: 2900", ErrInvalidNumber},
		{"commentary before the signal",
			"BTCUSDT short squeeze earlier today, nice.\n\nSell ETHUSDT\nEntry: 3000\nTP: 2800\nSL: 3100", ErrUnrecognizedFormat},
		{"commentary after the signal", "Sell ETHUSDT\nEntry: 3000\nTP: 2800\nSL: 3100\ngood luck all", ErrUnrecognizedFormat},
		{"two headers", "Buy BTCUSDT\nSell ETHUSDT\nEntry: 3000\nTP: 2800\nSL: 3100", ErrUnrecognizedFormat},
		{"symbol side then another header", "BTCUSDT Long\nSell ETHUSDT\nEntry: 3000\nTP: 2800\nSL: 3100", ErrUnrecognizedFormat},
		{"repeated label", "SHORT DOT/USDT\nEntry Price: 7.2\nStop Loss: 7.9\nTake Profit: 6.5\nTake Profit: 6.0", ErrUnrecognizedFormat},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := p.Parse(tt.msg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestParseInvalidNumberNamesField(t *testing.T) {
	p := newTestParser()
	_, err := p.Parse("BTCUSDT Long\nEntry: 45000\nTP: 47,000.1.2\nSL: 43000")

	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, InvalidNumber, pe.Kind)
	assert.Equal(t, "take_profit", pe.Field)
	assert.Equal(t, "47,000.1.2", pe.Value)
}

func TestParseIsPure(t *testing.T) {
	p := newTestParser()
	at := time.Unix(1700000000, 0).UTC()
	msg := "Long $SOL @ 145.2 | TP: 160 | SL: 139.5"

	a, errA := p.ParseAt(msg, at)
	b, errB := p.ParseAt(msg, at)
	require.NoError(t, errA)
	require.NoError(t, errB)
	assert.Equal(t, a, b)
}

func TestTemplatesOrder(t *testing.T) {
	assert.Equal(t, []string{"symbol-side", "side-symbol", "compact", "labels"}, newTestParser().Templates())
}
