// Package notify mirrors produced signals to a Telegram chat. The mirror is
// best effort: failures are logged and never reach the delivery path.
package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/forid0k/signalx/internal/metrics"
	"github.com/forid0k/signalx/internal/signal"
)

const queueSize = 64

// Notifier fans signals out to one chat through a buffered queue so the
// pipeline never blocks on Telegram.
type Notifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	label  string
	log    zerolog.Logger
	queue  chan signal.Signal
}

// New logs the bot in and prepares the send queue. The endpoint parameter
// exists for tests; an empty string selects the public Bot API.
func New(token string, endpoint string, chatID int64, label string, log zerolog.Logger) (*Notifier, error) {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("telegram login: %w", err)
	}
	if label == "" {
		label = "signalx"
	}
	return &Notifier{
		bot:    bot,
		chatID: chatID,
		label:  label,
		log:    log,
		queue:  make(chan signal.Signal, queueSize),
	}, nil
}

// Run drains the queue until the context ends or, after Close, until the
// queued mirrors are flushed.
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-n.queue:
			if !ok {
				return
			}
			msg := tgbotapi.NewMessage(n.chatID, n.format(sig))
			msg.ParseMode = tgbotapi.ModeHTML
			if _, err := n.bot.Send(msg); err != nil {
				n.log.Warn().Err(err).Str("issue", sig.Issue).Msg("telegram send failed")
				continue
			}
			metrics.NotificationsTotal.Inc()
		}
	}
}

// Close stops intake so Run can finish what is queued and return. One-shot
// callers close after their last Notify; the long-running bot never does.
func (n *Notifier) Close() { close(n.queue) }

// Notify enqueues a signal, dropping it when the queue is full.
func (n *Notifier) Notify(sig signal.Signal) {
	select {
	case n.queue <- sig:
	default:
		n.log.Warn().Str("issue", sig.Issue).Msg("telegram queue full, dropping notification")
	}
}

func (n *Notifier) format(sig signal.Signal) string {
	return fmt.Sprintf("<b>%s</b>\nissue: <code>%s</code>\nnumber: <b>%d</b>\ncall: <b>%s / %s</b>\nconfidence: %.2f",
		n.label, sig.Issue, sig.Number, sig.Size, sig.Parity, sig.Confidence)
}
