package bot

import (
	"context"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const cmdFeed = "feed"

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	callback := tgbotapi.NewCallback(cb.ID, "")
	if _, err := b.api.Send(callback); err != nil {
		b.log.Error("send callback ack", "error", err)
	}
	if cb.Message == nil {
		return
	}

	action, arg, ok := strings.Cut(cb.Data, ":")
	if !ok {
		return
	}
	limit, err := strconv.Atoi(arg)
	if err != nil {
		return
	}

	b.log.Info("callback", "action", action, "limit", limit, "chat_id", cb.Message.Chat.ID)

	if action == cmdFeed {
		b.sendFeed(ctx, cb.Message.Chat.ID, limit, nil)
	}
}
