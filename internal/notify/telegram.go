package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tradedash/internal/types"
)

const telegramQueueSize = 64

// TelegramNotifier forwards notices to a Telegram chat. Notify only enqueues;
// Run performs the sends so a slow Telegram API never delays an action.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	queue  chan types.Notice
	logger *slog.Logger
}

type telegramOptions struct {
	endpoint string
	client   *http.Client
}

// TelegramOption configures the Telegram notifier
type TelegramOption func(*telegramOptions)

// WithTelegramEndpoint points the bot at a different API endpoint, in the
// tgbotapi format "https://host/bot%s/%s".
func WithTelegramEndpoint(endpoint string, client *http.Client) TelegramOption {
	return func(o *telegramOptions) {
		o.endpoint = endpoint
		o.client = client
	}
}

// NewTelegramNotifier authenticates the bot token and returns a notifier for chatID
func NewTelegramNotifier(token string, chatID int64, logger *slog.Logger, opts ...TelegramOption) (*TelegramNotifier, error) {
	o := telegramOptions{
		endpoint: tgbotapi.APIEndpoint,
		client:   &http.Client{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	bot, err := tgbotapi.NewBotAPIWithClient(token, o.endpoint, o.client)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	logger.Info("[TELEGRAM] Notifier authorized",
		"bot", bot.Self.UserName,
		"chat_id", chatID,
	)

	return &TelegramNotifier{
		bot:    bot,
		chatID: chatID,
		queue:  make(chan types.Notice, telegramQueueSize),
		logger: logger,
	}, nil
}

func (t *TelegramNotifier) Notify(_ context.Context, n types.Notice) {
	select {
	case t.queue <- n:
	default:
		t.logger.Warn("[TELEGRAM] Queue full, dropping notice", "message", n.Message)
	}
}

// Run sends queued notices until ctx is cancelled
func (t *TelegramNotifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-t.queue:
			if err := t.send(n); err != nil {
				t.logger.Error("[TELEGRAM] Failed to send notice",
					"message", n.Message,
					"error", err,
				)
			}
		}
	}
}

func (t *TelegramNotifier) send(n types.Notice) error {
	msg := tgbotapi.NewMessage(t.chatID, FormatNotice(n))
	_, err := t.bot.Send(msg)
	return err
}

// FormatNotice renders a notice as a one-line chat message
func FormatNotice(n types.Notice) string {
	return fmt.Sprintf("[%s] %s", strings.ToUpper(string(n.Level)), n.Message)
}
