// Package bot is the Telegram front end of the news service.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"newsfeed/internal/config"
	"newsfeed/internal/news"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot answers Telegram commands on behalf of the news service.
// The Telegram user ID is the service user ID.
type Bot struct {
	api telegramAPI
	svc *news.Service
	cfg *config.Config
	log *slog.Logger
}

// New creates a Bot with the given Telegram token, service, and config.
func New(token string, svc *news.Service, cfg *config.Config, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	return &Bot{
		api: api,
		svc: svc,
		cfg: cfg,
		log: log,
	}, nil
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			if update.CallbackQuery != nil {
				if !b.cfg.IsUserAllowed(update.CallbackQuery.From.ID) {
					continue
				}
				b.handleCallback(ctx, update.CallbackQuery)
				continue
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if update.Message.From != nil && !b.cfg.IsUserAllowed(update.Message.From.ID) {
				b.reply(update.Message.Chat.ID, "Access denied.")
				continue
			}
			b.handleCommand(ctx, update.Message)
		}
	}
}

// SendMessage sends a text message to the given chat.
func (b *Bot) SendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.SendMessage(chatID, text)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID
	userID := chatID
	if msg.From != nil {
		userID = msg.From.ID
	}

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID, "user_id", userID)

	switch cmd {
	case "start":
		b.handleStart(chatID)
	case "help":
		b.handleHelp(chatID)
	case "sources":
		b.handleSources(ctx, chatID)
	case cmdFeed:
		b.handleFeed(ctx, chatID, userID, args)
	case "search":
		b.handleSearch(ctx, chatID, args)
	case cmdSave:
		b.handleSave(ctx, chatID, userID, args)
	case "saved":
		b.handleSaved(ctx, chatID, userID, args)
	case cmdHide:
		b.handleHide(ctx, chatID, userID, args)
	case "interests":
		b.handleTerms(ctx, chatID, userID, args, termCategories)
	case "keywords":
		b.handleTerms(ctx, chatID, userID, args, termKeywords)
	case "mute":
		b.handleTerms(ctx, chatID, userID, args, termExcluded)
	case "prefs":
		b.handlePrefs(ctx, chatID, userID)
	case "digest":
		b.handleDigest(ctx, chatID, userID, args)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}
