package notifier

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/amishk599/applyhook/internal/model"
)

var _ model.Notifier = (*TelegramNotifier)(nil)

// TelegramNotifier sends each payload as an HTML message to one chat.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *slog.Logger
}

// NewTelegramNotifier connects to the Bot API; it fails if the token is invalid.
func NewTelegramNotifier(token string, chatID int64, client *http.Client, logger *slog.Logger) (*TelegramNotifier, error) {
	return newTelegramNotifier(token, chatID, tgbotapi.APIEndpoint, client, logger)
}

func newTelegramNotifier(token string, chatID int64, endpoint string, client *http.Client, logger *slog.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram bot: %w", err)
	}
	return &TelegramNotifier{bot: bot, chatID: chatID, logger: logger}, nil
}

// Notify sends the payload. The Bot API client has no context support, so ctx
// is only checked before sending.
func (t *TelegramNotifier) Notify(ctx context.Context, p model.Payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(t.chatID, formatTelegram(p))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

func formatTelegram(p model.Payload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📨 <b>%s</b>\n", html.EscapeString(p.VacancyTitle))
	fmt.Fprintf(&b, "👤 <a href=\"%s\">%s</a>\n", html.EscapeString(p.Link), html.EscapeString(p.UserName))
	fmt.Fprintf(&b, "🕒 Experience: %d half-years\n", p.Experience)
	if p.Email != nil {
		fmt.Fprintf(&b, "✉️ %s\n", html.EscapeString(*p.Email))
	}
	if p.Telegram != nil {
		fmt.Fprintf(&b, "💬 %s\n", html.EscapeString(*p.Telegram))
	}
	if p.CoverLetter != "" {
		fmt.Fprintf(&b, "\n<i>%s</i>\n", html.EscapeString(p.CoverLetter))
	}
	return strings.TrimRight(b.String(), "\n")
}
