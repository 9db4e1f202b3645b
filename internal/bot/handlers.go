package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// handleMessage dispatches a command
func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if !message.IsCommand() {
		return
	}

	switch message.Command() {
	case "start", "help":
		b.handleStart(message)
	case "books":
		b.handleBooks(message)
	case "sync":
		b.handleSync(ctx, message)
	case "pending":
		b.handlePending(message)
	case "search":
		b.handleSearch(ctx, message)
	case "favorites":
		b.handleFavorites(ctx, message)
	case "quotes":
		b.handleQuotes(ctx, message)
	default:
		b.reply(message.Chat.ID, "Unknown command. Use /start to see available commands.")
	}
}

// reply sends plain text to a chat
func (b *Bot) reply(chatID int64, text string) {
	if b.out == nil {
		return
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.out.Send(msg); err != nil {
		b.logger.Warn("Failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
