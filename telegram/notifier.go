package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rustyeddy/propdesk/desk"
	"github.com/rustyeddy/propdesk/internal/logger"
	"go.uber.org/zap"
)

// Notifier sends desk trade events to one chat.
type Notifier struct {
	sender Sender
	chatID int64
	log    *zap.Logger
}

var _ desk.Notifier = (*Notifier)(nil)

func NewNotifier(sender Sender, chatID int64, log *zap.Logger) *Notifier {
	return &Notifier{sender: sender, chatID: chatID, log: logger.Module(log, "telegram")}
}

func (n *Notifier) TradeOpened(_ context.Context, ev desk.TradeOpened) {
	n.send(FormatOpened(ev))
}

func (n *Notifier) TradePartiallyClosed(_ context.Context, ev desk.TradePartiallyClosed) {
	n.send(FormatPartial(ev))
}

func (n *Notifier) TradeClosed(_ context.Context, ev desk.TradeClosed) {
	n.send(FormatClosed(ev))
}

// send failures are logged only; alerts never block trading.
func (n *Notifier) send(text string) {
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := n.sender.Send(msg); err != nil {
		n.log.Warn("alert failed", zap.Int64("chat", n.chatID), zap.Error(err))
	}
}
