// Package channel holds outbound chat adapters used by the notification
// dispatcher.
package channel

import (
	"context"
	"fmt"

	"messbook/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// BotWrapper adapts *tgbotapi.BotAPI to domain.TelegramSender.
type BotWrapper struct {
	*tgbotapi.BotAPI
}

func (w *BotWrapper) GetSelf() tgbotapi.User {
	return w.Self
}

func NewBotWrapper(bot *tgbotapi.BotAPI) *BotWrapper {
	return &BotWrapper{BotAPI: bot}
}

// NewBotAPI creates the bot client from a token.
func NewBotAPI(token string, debug bool) (*BotWrapper, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	api.Debug = debug
	return NewBotWrapper(api), nil
}

// Telegram posts messages to one chat (typically the operators' group).
type Telegram struct {
	bot       domain.TelegramSender
	chatID    int64
	parseMode string
	logger    *zerolog.Logger
}

func NewTelegram(bot domain.TelegramSender, chatID int64, parseMode string, logger *zerolog.Logger) *Telegram {
	return &Telegram{bot: bot, chatID: chatID, parseMode: parseMode, logger: logger}
}

// Send delivers message or gives up when ctx ends. The underlying HTTP call
// is not cancellable, so it is left to finish in the background.
func (t *Telegram) Send(ctx context.Context, message string) bool {
	msg := tgbotapi.NewMessage(t.chatID, message)
	msg.ParseMode = t.parseMode
	msg.DisableWebPagePreview = true

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("telegram send panicked: %v", r)
			}
		}()
		_, err := t.bot.Send(msg)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.logger.Warn().Err(err).Int64("chat_id", t.chatID).Msg("telegram send failed")
			return false
		}
		return true
	case <-ctx.Done():
		t.logger.Warn().Err(ctx.Err()).Int64("chat_id", t.chatID).Msg("telegram send abandoned")
		return false
	}
}
