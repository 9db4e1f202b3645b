package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const maxSearchResults = 10

// handleSearch queries the catalog with the command arguments
func (b *Bot) handleSearch(ctx context.Context, message *tgbotapi.Message) {
	if b.searcher == nil {
		b.reply(message.Chat.ID, "Catalog search is not configured.")
		return
	}
	query := strings.TrimSpace(message.CommandArguments())
	if query == "" {
		b.reply(message.Chat.ID, "Usage: /search <title or author>")
		return
	}

	results, err := b.searcher.Search(ctx, query)
	if err != nil {
		b.logger.Warn("Catalog search failed", zap.String("query", query), zap.Error(err))
		b.reply(message.Chat.ID, fmt.Sprintf("Search failed: %v", err))
		return
	}
	if len(results) == 0 {
		b.reply(message.Chat.ID, "Nothing found.")
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🔎 %d result(s)", len(results)))
	if len(results) > maxSearchResults {
		sb.WriteString(fmt.Sprintf(", first %d", maxSearchResults))
		results = results[:maxSearchResults]
	}
	sb.WriteString(":\n")
	for _, r := range results {
		sb.WriteString(fmt.Sprintf("\n[%s] %s, %s", r.ID, r.Title, r.Author))
	}
	b.reply(message.Chat.ID, sb.String())
}

func (b *Bot) handleFavorites(ctx context.Context, message *tgbotapi.Message) {
	if b.collections == nil {
		b.reply(message.Chat.ID, "Favorites are not available.")
		return
	}
	faves, err := b.collections.Favorites(ctx)
	if err != nil {
		b.logger.Warn("Failed to list favorites", zap.Error(err))
		b.reply(message.Chat.ID, fmt.Sprintf("Could not load favorites: %v", err))
		return
	}
	if len(faves) == 0 {
		b.reply(message.Chat.ID, "No favorites yet.")
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("⭐ %d favorite(s):\n", len(faves)))
	for i, f := range faves {
		sb.WriteString(fmt.Sprintf("\n%d. %s", i+1, f.Title))
		if f.Author != "" {
			sb.WriteString(", " + f.Author)
		}
	}
	b.reply(message.Chat.ID, sb.String())
}

// handleQuotes lists quotes, optionally of the book given as argument
func (b *Bot) handleQuotes(ctx context.Context, message *tgbotapi.Message) {
	if b.collections == nil {
		b.reply(message.Chat.ID, "Quotes are not available.")
		return
	}
	bookID := strings.TrimSpace(message.CommandArguments())
	quotes, err := b.collections.Quotes(ctx, bookID)
	if err != nil {
		b.logger.Warn("Failed to list quotes", zap.String("book_id", bookID), zap.Error(err))
		b.reply(message.Chat.ID, fmt.Sprintf("Could not load quotes: %v", err))
		return
	}
	if len(quotes) == 0 {
		b.reply(message.Chat.ID, "No quotes saved.")
		return
	}

	var sb strings.Builder
	for i, q := range quotes {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("❝ " + q.Text + " ❞")
		if q.BookTitle != "" {
			sb.WriteString("\n" + q.BookTitle)
		}
		if q.Note != "" {
			sb.WriteString("\nNote: " + q.Note)
		}
	}
	b.reply(message.Chat.ID, sb.String())
}
