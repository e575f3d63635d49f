// Package telegram reads trade signals from Telegram chats and sends trade
// alerts back.
package telegram

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rustyeddy/propdesk/internal/logger"
	"github.com/rustyeddy/propdesk/ledger"
	"github.com/rustyeddy/propdesk/risk"
	"go.uber.org/zap"
)

// Sender is the part of *tgbotapi.BotAPI used to send messages.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Updates is the part of *tgbotapi.BotAPI used to long-poll.
type Updates interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Desk is what the poller needs from the trading desk.
type Desk interface {
	SubmitSignal(ctx context.Context, raw, channelID, messageID string) (ledger.DecisionRecord, error)
	Status() risk.Status
}

// NewBot connects to the Bot API. An empty endpoint uses the public one.
func NewBot(token, endpoint string) (*tgbotapi.BotAPI, error) {
	if token == "" {
		return nil, errors.New("telegram: missing bot token")
	}
	if endpoint == "" {
		return tgbotapi.NewBotAPI(token)
	}
	return tgbotapi.NewBotAPIWithClient(token, endpoint, &http.Client{Timeout: 90 * time.Second})
}

type PollerOptions struct {
	// Chats limits intake to these chat ids. Empty accepts every chat.
	Chats   []int64
	Timeout int
	// Reply sends the decision back to the signal chat.
	Reply bool
	Log   *zap.Logger
}

// Poller feeds chat messages into the desk as signals.
type Poller struct {
	updates Updates
	sender  Sender
	desk    Desk
	opts    PollerOptions
	log     *zap.Logger
}

func NewPoller(updates Updates, sender Sender, d Desk, opts PollerOptions) *Poller {
	if opts.Timeout <= 0 {
		opts.Timeout = 30
	}
	return &Poller{
		updates: updates,
		sender:  sender,
		desk:    d,
		opts:    opts,
		log:     logger.Module(opts.Log, "telegram"),
	}
}

// Run long-polls until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = p.opts.Timeout
	u.AllowedUpdates = []string{"message", "channel_post"}
	ch := p.updates.GetUpdatesChan(u)
	defer p.updates.StopReceivingUpdates()

	p.log.Info("polling", zap.Int64s("chats", p.opts.Chats))
	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-ch:
			if !ok {
				return nil
			}
			p.Handle(ctx, up)
		}
	}
}

// Handle processes one update.
func (p *Poller) Handle(ctx context.Context, up tgbotapi.Update) {
	msg := up.Message
	if msg == nil {
		msg = up.ChannelPost
	}
	if msg == nil || msg.Chat == nil {
		return
	}
	if len(p.opts.Chats) > 0 && !slices.Contains(p.opts.Chats, msg.Chat.ID) {
		return
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	if msg.IsCommand() {
		p.command(msg)
		return
	}

	chat := strconv.FormatInt(msg.Chat.ID, 10)
	rec, err := p.desk.SubmitSignal(ctx, text, chat, strconv.Itoa(msg.MessageID))
	if err != nil {
		p.log.Error("submit signal", zap.String("chat", chat), zap.Int("message", msg.MessageID), zap.Error(err))
		return
	}
	p.log.Info("signal decided",
		zap.String("ref", rec.IntentRef()),
		zap.String("decision", string(rec.Decision)),
		zap.String("reason", rec.Reason))

	if p.opts.Reply && p.sender != nil {
		p.reply(msg, FormatDecision(rec))
	}
}

func (p *Poller) command(msg *tgbotapi.Message) {
	switch msg.Command() {
	case "status":
		p.reply(msg, FormatStatus(p.desk.Status()))
	default:
		p.log.Debug("unknown command", zap.String("command", msg.Command()))
	}
}

func (p *Poller) reply(msg *tgbotapi.Message, text string) {
	if p.sender == nil {
		return
	}
	out := tgbotapi.NewMessage(msg.Chat.ID, text)
	out.ParseMode = tgbotapi.ModeHTML
	out.ReplyToMessageID = msg.MessageID
	if _, err := p.sender.Send(out); err != nil {
		p.log.Warn("reply failed", zap.Int64("chat", msg.Chat.ID), zap.Error(err))
	}
}
