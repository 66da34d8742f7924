package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"newsfeed/internal/model"
)

const (
	cmdFeed = "feed"
	cmdSave = "save"
	cmdHide = "hide"

	// keyboardRows caps the inline keyboard attached to a feed page.
	keyboardRows = 5
)

func articleKeyboard(articles []model.Article) tgbotapi.InlineKeyboardMarkup {
	if len(articles) > keyboardRows {
		articles = articles[:keyboardRows]
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(articles))
	for _, a := range articles {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("Save #%d", a.ID), fmt.Sprintf("%s:%d", cmdSave, a.ID)),
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("Hide #%d", a.ID), fmt.Sprintf("%s:%d", cmdHide, a.ID)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	data := cb.Data
	chatID := cb.Message.Chat.ID
	userID := chatID
	if cb.From != nil {
		userID = cb.From.ID
	}

	callback := tgbotapi.NewCallback(cb.ID, "")
	if _, err := b.api.Send(callback); err != nil {
		b.log.Error("send callback ack", "error", err)
	}

	parts := strings.SplitN(data, ":", 2)
	if len(parts) != 2 {
		return
	}

	action := parts[0]
	idStr := parts[1]
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return
	}

	b.log.Info("callback",
		"action", action,
		"id", id,
		"chat_id", chatID,
		"user_id", userID,
	)

	switch action {
	case cmdSave:
		b.record(ctx, userID, id, model.ActionClicked)
		b.handleSave(ctx, chatID, userID, idStr)
	case cmdHide:
		b.handleHide(ctx, chatID, userID, idStr)
	case cmdFeed:
		b.handleFeed(ctx, chatID, userID, idStr)
	}
}
