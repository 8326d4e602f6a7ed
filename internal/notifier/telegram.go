package notifier

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"
)

const telegramTextLimit = 4096

// TelegramSender sends plain-text messages through the Bot API.
//
// The bot is created offline: it never polls for updates and does not call
// getMe at construction time.
type TelegramSender struct {
	bot *tele.Bot
}

// NewTelegramSender builds a sender for token. apiURL overrides the Bot API
// endpoint (empty means the public one).
func NewTelegramSender(token, apiURL string) (*TelegramSender, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	b, err := tele.NewBot(tele.Settings{
		URL:     strings.TrimSpace(apiURL),
		Token:   token,
		Offline: true,
		Client:  &http.Client{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, err
	}
	return &TelegramSender{bot: b}, nil
}

func (t *TelegramSender) SendText(ctx context.Context, chatID int64, threadID int, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r := []rune(text); len(r) > telegramTextLimit {
		text = string(r[:telegramTextLimit-1]) + "…"
	}
	_, err := t.bot.Send(&tele.Chat{ID: chatID}, text, &tele.SendOptions{
		DisableWebPagePreview: true,
		ThreadID:              threadID,
	})
	return err
}
