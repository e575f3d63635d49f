package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rustyeddy/propdesk/desk"
	"github.com/rustyeddy/propdesk/ledger"
	"github.com/rustyeddy/propdesk/lifecycle"
	"github.com/rustyeddy/propdesk/market"
	"github.com/rustyeddy/propdesk/risk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, m)
	}
	return tgbotapi.Message{}, f.err
}

type submission struct {
	raw, chat, msg string
}

type fakeDesk struct {
	mu   sync.Mutex
	subs []submission
	rec  ledger.DecisionRecord
	err  error
}

func (d *fakeDesk) SubmitSignal(_ context.Context, raw, chat, msg string) (ledger.DecisionRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs = append(d.subs, submission{raw, chat, msg})
	return d.rec, d.err
}

func (d *fakeDesk) Status() risk.Status {
	return risk.Status{Mode: risk.EvaluationNormal, Balance: 10250, Profit: 250, Progress: 0.25, Guidance: "trade <normal>"}
}

type fakeUpdates struct {
	ch      chan tgbotapi.Update
	stopped bool
}

func (f *fakeUpdates) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel { return f.ch }

func (f *fakeUpdates) StopReceivingUpdates() { f.stopped = true }

func message(chat int64, id int, text string) *tgbotapi.Message {
	return &tgbotapi.Message{MessageID: id, Chat: &tgbotapi.Chat{ID: chat}, Text: text}
}

func TestHandleSubmitsFromAllowedChats(t *testing.T) {
	d := &fakeDesk{rec: ledger.DecisionRecord{Decision: ledger.Rejected, Reason: "risk_reward_too_low", Detail: "rr 1.00 < 1.50"}}
	s := &fakeSender{}
	p := NewPoller(nil, s, d, PollerOptions{Chats: []int64{-100}, Reply: true})
	ctx := context.Background()

	p.Handle(ctx, tgbotapi.Update{Message: message(-100, 7, " BTCUSDT Long\nEntry: 45000 ")})
	p.Handle(ctx, tgbotapi.Update{ChannelPost: message(-100, 8, "")})
	p.Handle(ctx, tgbotapi.Update{Message: message(-200, 9, "ETHUSDT Long")})
	p.Handle(ctx, tgbotapi.Update{ChannelPost: &tgbotapi.Message{MessageID: 10, Chat: &tgbotapi.Chat{ID: -100}, Caption: "SOLUSDT Short"}})

	require.Len(t, d.subs, 2)
	assert.Equal(t, submission{"BTCUSDT Long\nEntry: 45000", "-100", "7"}, d.subs[0])
	assert.Equal(t, submission{"SOLUSDT Short", "-100", "10"}, d.subs[1])

	require.Len(t, s.sent, 2)
	assert.Equal(t, int64(-100), s.sent[0].ChatID)
	assert.Equal(t, 7, s.sent[0].ReplyToMessageID)
	assert.Equal(t, tgbotapi.ModeHTML, s.sent[0].ParseMode)
	assert.Contains(t, s.sent[0].Text, "REJECTED risk_reward_too_low")
	assert.Contains(t, s.sent[0].Text, "rr 1.00 &lt; 1.50")
}

func TestHandleStatusCommand(t *testing.T) {
	d := &fakeDesk{}
	s := &fakeSender{}
	p := NewPoller(nil, s, d, PollerOptions{})

	m := message(5, 1, "/status")
	m.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 7}}
	p.Handle(context.Background(), tgbotapi.Update{Message: m})

	assert.Empty(t, d.subs)
	require.Len(t, s.sent, 1)
	assert.Contains(t, s.sent[0].Text, "evaluation_normal")
	assert.Contains(t, s.sent[0].Text, "Balance: $10250.00 (+$250.00)")
	assert.Contains(t, s.sent[0].Text, "trade &lt;normal&gt;")
}

func TestHandleDeskErrorDoesNotReply(t *testing.T) {
	d := &fakeDesk{err: errors.New("disk full")}
	s := &fakeSender{}
	p := NewPoller(nil, s, d, PollerOptions{Reply: true})

	p.Handle(context.Background(), tgbotapi.Update{Message: message(1, 1, "BTCUSDT Long")})
	assert.Len(t, d.subs, 1)
	assert.Empty(t, s.sent)
}

func TestRunStopsOnCancel(t *testing.T) {
	up := &fakeUpdates{ch: make(chan tgbotapi.Update, 1)}
	d := &fakeDesk{}
	p := NewPoller(up, nil, d, PollerOptions{})

	up.ch <- tgbotapi.Update{Message: message(1, 1, "BTCUSDT Long")}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		return len(d.subs) == 1
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
	assert.True(t, up.stopped)
}

func TestNotifierFormats(t *testing.T) {
	s := &fakeSender{err: errors.New("blocked")}
	n := NewNotifier(s, 42, nil)
	ctx := context.Background()
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	n.TradeOpened(ctx, desk.TradeOpened{
		PositionID: "p1", Symbol: "BTCUSDT", Side: market.Buy, Entry: 45000, StopLoss: 44000, TakeProfit: 49500,
		Notional: 2000, Risk: 44.44, RiskReward: 4.5, Mode: risk.EvaluationNormal, At: at,
	})
	n.TradePartiallyClosed(ctx, desk.TradePartiallyClosed{
		PositionID: "p1", Symbol: "BTCUSDT", Side: market.Buy, Level: 5, ExitPrice: 47250,
		Notional: 1000, Remaining: 1000, PnL: 50, At: at,
	})
	n.TradeClosed(ctx, desk.TradeClosed{
		PositionID: "p1", Symbol: "BTCUSDT", Side: market.Buy, Reason: lifecycle.StopLoss, Entry: 45000,
		ExitPrice: 44000, Notional: 1000, PnL: -22.22, TotalPnL: 27.78, Balance: 10027.78,
		Mode: risk.EvaluationNormal, At: at,
	})

	require.Len(t, s.sent, 3)
	for _, m := range s.sent {
		assert.Equal(t, int64(42), m.ChatID)
	}
	assert.Equal(t, "<b>OPENED</b> BTCUSDT BUY\nEntry: 45000\nSL: 44000 | TP: 49500\n"+
		"Size: $2000.00 (risk $44.44)\nRR: 4.50 | Mode: evaluation_normal", s.sent[0].Text)
	assert.Contains(t, s.sent[1].Text, "SCALE OUT</b> BTCUSDT BUY at +5%")
	assert.Contains(t, s.sent[1].Text, "Remaining: $1000.00")
	assert.Contains(t, s.sent[2].Text, "(stop_loss)")
	assert.Contains(t, s.sent[2].Text, "PnL: -$22.22 | Trade: +$27.78")
}

func TestFormatDecisionAccepted(t *testing.T) {
	rec := ledger.DecisionRecord{
		Decision: ledger.Accepted, Symbol: "ETHUSDT", Side: market.Sell, RiskReward: 3,
		Sizing: risk.Sizing{Notional: 1500},
	}
	assert.Equal(t, "<b>ACCEPTED</b> ETHUSDT SELL\nSize: $1500.00 | RR: 3.00", FormatDecision(rec))
}
