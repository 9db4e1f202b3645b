package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"bookshelf/internal/catalog"
	"bookshelf/internal/models"
	"bookshelf/internal/syncer"
)

// sender is the part of the Telegram API the bot writes through
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Library is the read side of the local library the bot reports on
type Library interface {
	Books() []models.Entry
	Progress(id string) (models.ReadingProgress, bool)
}

// Queues reports the pending remote writes
type Queues interface {
	PendingDeletions() []string
	PendingUploads() []string
}

// Syncer runs a reconciliation on demand
type Syncer interface {
	SyncNow(ctx context.Context, userID string) (syncer.Report, error)
}

// Collections lists the user's favorites and quotes
type Collections interface {
	Favorites(ctx context.Context) ([]models.Favorite, error)
	Quotes(ctx context.Context, bookID string) ([]models.Quote, error)
}

// Bot is the Telegram front of the reader: it lists the library, triggers
// reconciliations and announces library changes to allowed users
type Bot struct {
	api          *tgbotapi.BotAPI
	out          sender
	library      Library
	queues       Queues
	syncer       Syncer
	collections  Collections
	searcher     catalog.Searcher
	userID       string
	allowedUsers map[int64]bool
	logger       *zap.Logger
}
