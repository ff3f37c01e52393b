// Package telegram exposes the control dispatcher as a Telegram bot.
package telegram

import (
	"context"
	"errors"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"swarmbot/internal/control"
	logx "swarmbot/pkg/logx"
)

type Config struct {
	Token string
	// OwnerUserIDs may issue commands. Empty means nobody.
	OwnerUserIDs []int64
	PollTimeout  time.Duration
}

type Bot struct {
	cfg    Config
	log    logx.Logger
	bot    *tele.Bot
	d      *control.Dispatcher
	owners map[int64]struct{}
}

func New(cfg Config, d *control.Dispatcher, log logx.Logger) (*Bot, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	return newBot(cfg, d, log, b), nil
}

func newBot(cfg Config, d *control.Dispatcher, log logx.Logger, b *tele.Bot) *Bot {
	owners := make(map[int64]struct{}, len(cfg.OwnerUserIDs))
	for _, id := range cfg.OwnerUserIDs {
		owners[id] = struct{}{}
	}
	return &Bot{cfg: cfg, log: log.With(logx.String("comp", "telegram")), bot: b, d: d, owners: owners}
}

func (b *Bot) allowed(id int64) bool {
	_, ok := b.owners[id]
	return ok
}

// reply computes the answer for one message. ok is false when the sender is ignored.
func (b *Bot) reply(ctx context.Context, senderID int64, text string) (string, bool) {
	if !b.allowed(senderID) {
		b.log.Warn("ignored message from non-owner", logx.Int64("user_id", senderID))
		return "", false
	}
	out, err := b.d.Handle(ctx, text)
	if err != nil {
		return "error: " + err.Error(), true
	}
	return out, true
}

// Run polls until ctx is canceled.
func (b *Bot) Run(ctx context.Context) error {
	b.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil || !strings.HasPrefix(m.Text, "/") {
			return nil
		}
		out, ok := b.reply(ctx, m.Sender.ID, m.Text)
		if !ok || out == "" {
			return nil
		}
		return c.Send(out)
	})

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		b.bot.Stop()
	}()

	b.log.Info("polling started", logx.Int("owners", len(b.owners)))
	b.bot.Start() // blocks until Stop
	<-stopped
	b.log.Info("polling stopped")
	return nil
}
