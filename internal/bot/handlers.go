package bot

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"sitefeed/internal/filter"
	"sitefeed/internal/pipeline"
)

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Welcome to Site Feed Bot!

I turn the site's recently updated list into a feed.

Quick start:
1. /feed — latest articles
2. /feed 20 — latest 20 articles
3. /include <word> — only articles mentioning a word

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, fmt.Sprintf(`Feed:
/feed [limit] — latest articles (default %d, max %d)

Filtered feed:
/include [-n limit] [-s scope] <word> — only matching articles
/exclude [-n limit] [-s scope] <word> — drop matching articles
/include_re [-n limit] [-s scope] <regex> — only regex matches
/exclude_re [-n limit] [-s scope] <regex> — drop regex matches

Scope flag: -s title | content | all (default: all)`, b.cfg.FeedDefaultLimit, b.cfg.FeedMaxLimit))
}

func (b *Bot) handleFeed(ctx context.Context, chatID int64, args string) {
	limit, err := ParseLimitArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /feed [limit]")
		return
	}
	b.sendFeed(ctx, chatID, limit, nil)
}

func (b *Bot) handleFiltered(ctx context.Context, chatID int64, args string, kind filter.Kind) {
	fa, err := ParseFilterCommand(args)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v\nUsage: /%s [-n limit] [-s title|content|all] <value>", err, kind))
		return
	}

	engine, err := filter.New([]filter.Rule{{Kind: kind, Scope: fa.Scope, Value: fa.Value}})
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Invalid regex: %v", err))
		return
	}
	b.sendFeed(ctx, chatID, fa.Limit, engine)
}

func (b *Bot) sendFeed(ctx context.Context, chatID int64, limit int, engine *filter.Engine) {
	feed, err := b.runner.Run(ctx, limit)
	if err != nil {
		b.log.Warn("build feed", "chat_id", chatID, "error", err)
		if errors.Is(err, pipeline.ErrListingFetch) {
			b.reply(chatID, "Could not fetch the listing page. Try again later.")
			return
		}
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	items := engine.Apply(feed.Items)
	if len(items) == 0 {
		b.reply(chatID, "No articles matched.")
		return
	}

	pages := FormatPages(feed.Title, items, pageSize)
	for i, page := range pages {
		msg := tgbotapi.NewMessage(chatID, page)
		if i == len(pages)-1 && engine.Empty() {
			msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
				tgbotapi.NewInlineKeyboardRow(
					tgbotapi.NewInlineKeyboardButtonData("Refresh", fmt.Sprintf("%s:%d", cmdFeed, limit)),
				),
			)
		}
		b.send(msg)
	}
}
