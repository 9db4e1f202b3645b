package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"bookshelf/internal/syncer"
)

const startText = `Bookshelf 📚

Available commands:
/books - List the library with reading progress
/sync - Synchronize with the remote library now
/pending - Show changes waiting to be uploaded
/search <query> - Search the catalog
/favorites - List favorite books
/quotes [book id] - List saved quotes`

// handleStart shows welcome message and available commands
func (b *Bot) handleStart(message *tgbotapi.Message) {
	b.reply(message.Chat.ID, startText)
}

// handleBooks lists the library
func (b *Bot) handleBooks(message *tgbotapi.Message) {
	b.reply(message.Chat.ID, b.formatBooks())
}

func (b *Bot) formatBooks() string {
	books := b.library.Books()
	if len(books) == 0 {
		return "The library is empty."
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📚 %d book(s):\n", len(books)))
	for i, e := range books {
		info := e.Info()
		title := info.Title
		if title == "" {
			title = info.ID
		}
		sb.WriteString(fmt.Sprintf("\n%d. %s", i+1, title))
		if info.Author != "" {
			sb.WriteString(", " + info.Author)
		}
		if p, ok := b.library.Progress(info.ID); ok && p.TotalPages > 0 {
			sb.WriteString(fmt.Sprintf(" (%d%%)", p.Percentage()))
		}
	}
	return sb.String()
}

// handleSync runs a reconciliation and reports the outcome
func (b *Bot) handleSync(ctx context.Context, message *tgbotapi.Message) {
	report, err := b.syncer.SyncNow(ctx, b.userID)
	if err != nil {
		b.logger.Error("Manual sync failed", zap.Error(err))
		b.reply(message.Chat.ID, fmt.Sprintf("Sync failed: %v", err))
		return
	}
	b.reply(message.Chat.ID, formatReport(report))
}

// handlePending shows the pending queues
func (b *Bot) handlePending(message *tgbotapi.Message) {
	deletions := b.queues.PendingDeletions()
	uploads := b.queues.PendingUploads()
	if len(deletions) == 0 && len(uploads) == 0 {
		b.reply(message.Chat.ID, "✅ Everything is synchronized.")
		return
	}

	var sb strings.Builder
	sb.WriteString("⏳ Waiting for the remote library:\n")
	sb.WriteString(fmt.Sprintf("Uploads: %d\n", len(uploads)))
	for _, id := range uploads {
		sb.WriteString("  + " + id + "\n")
	}
	sb.WriteString(fmt.Sprintf("Deletions: %d\n", len(deletions)))
	for _, id := range deletions {
		sb.WriteString("  - " + id + "\n")
	}
	b.reply(message.Chat.ID, strings.TrimRight(sb.String(), "\n"))
}

func formatReport(r syncer.Report) string {
	var sb strings.Builder
	sb.WriteString("🔄 Sync complete")
	if r.Failures > 0 {
		sb.WriteString(fmt.Sprintf(" with %d failure(s), will retry", r.Failures))
	}
	sb.WriteString(fmt.Sprintf("\nUploaded: %d, deleted remotely: %d", r.UploadsDrained, r.DeletionsDrained))
	sb.WriteString(fmt.Sprintf("\nPulled: %d, removed: %d", len(r.Pulled), len(r.Removed)))
	sb.WriteString(fmt.Sprintf("\nProgress pulled: %d, pushed: %d", r.ProgressPulled, r.ProgressPushed))
	return sb.String()
}
