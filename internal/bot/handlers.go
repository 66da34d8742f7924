package bot

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"newsfeed/internal/feed"
	"newsfeed/internal/model"
	"newsfeed/internal/news"
)

type termField int

const (
	termCategories termField = iota
	termKeywords
	termExcluded
)

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Welcome to News Digest Bot!

Get a feed of articles ranked by what you care about.

Quick start:
1. /interests technology, finance to pick categories
2. /keywords startup, funding to boost topics
3. /feed to read your personalized feed

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Reading:
/feed [n] - your personalized feed (1-20 articles)
/search <text> - search all articles
/sources - list news sources

Saving:
/save <id> [folder] - bookmark an article
/saved [folder] - list bookmarks
/hide <id> - show fewer articles like this

Preferences:
/interests <a, b> - set categories
/keywords <a, b> - set boosted keywords
/mute <a, b> - hide articles containing these words
/prefs - show your preferences
Use "none" to clear a list.

Digests:
/digest - today's digest
/digest weekly - this week's digest`)
}

func (b *Bot) handleSources(ctx context.Context, chatID int64) {
	srcs, err := b.svc.ListSources(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatSources(srcs))
}

func (b *Bot) handleFeed(ctx context.Context, chatID, userID int64, args string) {
	n, err := ParseFeedSize(args)
	if err != nil {
		b.reply(chatID, "Usage: /feed [1-20]")
		return
	}

	f, err := b.svc.GetPersonalizedFeed(ctx, userID, n, 0)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	msg := tgbotapi.NewMessage(chatID, FormatFeed(f))
	msg.DisableWebPagePreview = true
	if len(f.Articles) > 0 {
		msg.ReplyMarkup = articleKeyboard(f.Articles)
	}
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send feed", "chat_id", chatID, "error", err)
	}
	for _, a := range f.Articles {
		b.record(ctx, userID, a.ID, model.ActionViewed)
	}
}

func (b *Bot) handleSearch(ctx context.Context, chatID int64, args string) {
	if args == "" {
		b.reply(chatID, "Usage: /search <text>")
		return
	}
	res, err := b.svc.SearchArticles(ctx, feed.SearchFilter{Query: args, Limit: maxFeedSize})
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatSearch(args, res))
}

func (b *Bot) handleSave(ctx context.Context, chatID, userID int64, args string) {
	id, folder, err := ParseSaveArgs(args)
	if err != nil {
		b.reply(chatID, "Usage: /save <id> [folder]")
		return
	}
	if _, err := b.svc.SaveArticle(ctx, userID, id, news.SaveOptions{Folder: folder}); err != nil {
		b.replyError(chatID, id, err)
		return
	}
	if folder != "" {
		b.reply(chatID, fmt.Sprintf("Article #%d saved to %q.", id, folder))
		return
	}
	b.reply(chatID, fmt.Sprintf("Article #%d saved.", id))
}

func (b *Bot) handleSaved(ctx context.Context, chatID, userID int64, folder string) {
	b.reply(chatID, FormatSaved(folder, b.svc.GetSavedArticles(ctx, userID, folder)))
}

func (b *Bot) handleHide(ctx context.Context, chatID, userID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /hide <id>")
		return
	}
	if _, err := b.svc.RecordInteraction(ctx, userID, id, model.ActionHidden, news.InteractionOptions{}); err != nil {
		b.replyError(chatID, id, err)
		return
	}
	b.reply(chatID, fmt.Sprintf("Article #%d hidden. You will see fewer articles like it.", id))
}

func (b *Bot) handleTerms(ctx context.Context, chatID, userID int64, args string, field termField) {
	if args == "" {
		b.reply(chatID, fmt.Sprintf("Usage: /%s <a, b, ...> or /%[1]s none", termCommand(field)))
		return
	}

	terms := ParseTerms(args)
	var patch model.PreferencesPatch
	switch field {
	case termCategories:
		patch.Categories = &terms
	case termKeywords:
		patch.Keywords = &terms
	case termExcluded:
		patch.ExcludedKeywords = &terms
	}

	p, err := b.svc.UpdatePreferences(ctx, userID, patch)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, "Preferences updated.\n\n"+FormatPreferences(p))
}

func (b *Bot) handlePrefs(ctx context.Context, chatID, userID int64) {
	b.reply(chatID, FormatPreferences(b.svc.GetPreferences(ctx, userID)))
}

func (b *Bot) handleDigest(ctx context.Context, chatID, userID int64, args string) {
	generate := b.svc.GenerateDailyDigest
	switch args {
	case "", "daily":
	case "weekly":
		generate = b.svc.GenerateWeeklyDigest
	default:
		b.reply(chatID, "Usage: /digest [daily|weekly]")
		return
	}

	d, err := generate(ctx, userID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	if d == nil {
		b.reply(chatID, "You already have a digest for this period.")
		return
	}
	b.DeliverDigest(ctx, chatID, d)
}

// DeliverDigest sends a digest to the chat and marks it sent.
func (b *Bot) DeliverDigest(ctx context.Context, chatID int64, d *model.Digest) {
	b.reply(chatID, FormatDigest(d))
	if _, err := b.svc.MarkDigestAsSent(ctx, d.UserID, d.ID); err != nil {
		b.log.Error("mark digest sent", "digest_id", d.ID, "user_id", d.UserID, "error", err)
	}
}

func (b *Bot) record(ctx context.Context, userID, articleID int64, action model.Action) {
	if _, err := b.svc.RecordInteraction(ctx, userID, articleID, action, news.InteractionOptions{}); err != nil {
		b.log.Warn("record interaction", "user_id", userID, "article_id", articleID, "action", action, "error", err)
	}
}

func (b *Bot) replyError(chatID, articleID int64, err error) {
	if errors.Is(err, news.ErrNotFound) {
		b.reply(chatID, fmt.Sprintf("Article #%d not found.", articleID))
		return
	}
	b.reply(chatID, fmt.Sprintf("Error: %v", err))
}

func termCommand(field termField) string {
	switch field {
	case termKeywords:
		return "keywords"
	case termExcluded:
		return "mute"
	default:
		return "interests"
	}
}
