package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"bookshelf/internal/catalog"
)

// Deps are the components the bot reports on and drives
type Deps struct {
	Library Library
	Queues  Queues
	Syncer  Syncer
	// Collections and Searcher are optional
	Collections Collections
	Searcher    catalog.Searcher
	// UserID is the library owner whose store is synced
	UserID string
}

// NewBot creates a new Telegram bot
func NewBot(token string, deps Deps, allowedUserIDs []int64, logger *zap.Logger) (*Bot, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		logger.Error("Failed to create bot API", zap.Error(err))
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	logger.Info("Bot created", zap.String("bot_username", api.Self.UserName))

	b := newBot(api, deps, allowedUserIDs, logger)
	b.api = api
	return b, nil
}

func newBot(out sender, deps Deps, allowedUserIDs []int64, logger *zap.Logger) *Bot {
	allowedUsers := make(map[int64]bool)
	for _, id := range allowedUserIDs {
		allowedUsers[id] = true
	}
	return &Bot{
		out:          out,
		library:      deps.Library,
		queues:       deps.Queues,
		syncer:       deps.Syncer,
		collections:  deps.Collections,
		searcher:     deps.Searcher,
		userID:       deps.UserID,
		allowedUsers: allowedUsers,
		logger:       logger,
	}
}
