package bot

import (
	"context"
	"fmt"
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	apperrors "github.com/gradewatch/gradewatch/internal/errors"
	"github.com/gradewatch/gradewatch/pkg/config"
)

// Bot binds the conversation engine to the Telegram transport.
type Bot struct {
	telebot    *telebot.Bot
	log        *slog.Logger
	errHandler *apperrors.Handler
}

// New builds a telegram bot instance configured according to the application
// settings. The conversation engine is attached separately via RegisterEngine
// because it needs the bot's Messenger first.
func New(cfg config.BotConfig, log *slog.Logger, errHandler *apperrors.Handler) (*Bot, error) {
	if log == nil {
		log = slog.Default()
	}

	settings := telebot.Settings{
		Token: cfg.Token,
	}

	if cfg.Mode == config.BotModeWebhook {
		settings.Poller = &telebot.Webhook{
			Listen: cfg.WebhookListen,
			Endpoint: &telebot.WebhookEndpoint{
				PublicURL: cfg.WebhookURL,
			},
		}
	} else {
		settings.Poller = &telebot.LongPoller{
			Timeout: cfg.PollTimeout,
		}
	}

	tb, err := telebot.NewBot(settings)
	if err != nil {
		return nil, fmt.Errorf("initialize telebot: %w", err)
	}

	return &Bot{
		telebot:    tb,
		log:        log,
		errHandler: errHandler,
	}, nil
}

// RegisterEngine wires the engine behind the middleware chain for text
// updates.
func (b *Bot) RegisterEngine(engine *Engine) {
	handler := Chain(
		func(c telebot.Context) error {
			if c == nil || c.Chat() == nil {
				b.log.Warn("update without chat information")
				return nil
			}

			return engine.HandleMessage(context.Background(), c.Chat().ID, c.Text())
		},
		RecoveryMiddleware(b.log, b.errHandler),
		LoggingMiddleware(b.log),
		MetricsMiddleware,
	)

	b.telebot.Handle(telebot.OnText, func(c telebot.Context) error {
		return handler(c)
	})
}

// Messenger returns the outbound send capability backed by this bot.
func (b *Bot) Messenger() Messenger {
	return &telebotMessenger{bot: b.telebot}
}

// Start runs the telegram bot event loop.
func (b *Bot) Start() {
	if b.telebot != nil {
		b.telebot.Start()
	}
}

// Stop gracefully stops the telegram bot.
func (b *Bot) Stop() {
	if b.telebot == nil {
		return
	}

	b.log.Info("stopping telegram bot...")
	b.telebot.Stop()
}

// Telebot exposes the underlying telebot.Bot instance for integrations such
// as health checks.
func (b *Bot) Telebot() *telebot.Bot {
	return b.telebot
}

type telebotMessenger struct {
	bot *telebot.Bot
}

func (m *telebotMessenger) Send(chatID int64, text string) error {
	_, err := m.bot.Send(telebot.ChatID(chatID), text)
	return err
}
