package library

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"bookshelf/internal/localstore"
	"bookshelf/internal/models"
	"bookshelf/internal/storage"
)

// DefaultQuoteColor is the highlight used when none is chosen
const DefaultQuoteColor = "yellow"

// ErrEmptyQuote is returned for quotes without text
var ErrEmptyQuote = errors.New("library: quote text required")

// CollectionStore is the remote side of favorites and quotes
type CollectionStore interface {
	storage.Favorites
	storage.Quotes
}

// Collections manages the user's favorites and quotes. They are kept in the
// remote store only, so every call goes to the network and nothing is queued.
type Collections struct {
	remote CollectionStore
	local  *localstore.Store
	userID string
	logger *zap.Logger
}

// NewCollections creates the collections of userID. local supplies titles
// and authors for books in the library.
func NewCollections(remote CollectionStore, local *localstore.Store, userID string, logger *zap.Logger) *Collections {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collections{remote: remote, local: local, userID: userID, logger: logger}
}

// AddFavorite stars a book and reports false when it already was a
// favorite. Inline image covers are not stored remotely.
func (c *Collections) AddFavorite(ctx context.Context, info models.BookInfo) (bool, error) {
	if info.ID == "" {
		return false, fmt.Errorf("add favorite: id required")
	}
	cover := info.Cover
	if models.IsInlineImage(cover) {
		cover = ""
	}
	added, err := c.remote.AddFavorite(ctx, c.userID, models.Favorite{
		BookID: info.ID,
		Title:  info.Title,
		Author: info.Author,
		Cover:  cover,
	})
	if err != nil {
		return false, fmt.Errorf("add favorite %s: %w", info.ID, err)
	}
	if added {
		c.logger.Info("Favorite added", zap.String("book_id", info.ID))
	}
	return added, nil
}

// FavoriteBook stars a book of the library
func (c *Collections) FavoriteBook(ctx context.Context, bookID string) (bool, error) {
	e, ok := c.local.Entry(bookID)
	if !ok {
		return false, fmt.Errorf("favorite %s: %w", bookID, ErrNotFound)
	}
	return c.AddFavorite(ctx, e.Info())
}

func (c *Collections) RemoveFavorite(ctx context.Context, bookID string) error {
	if err := c.remote.RemoveFavorite(ctx, c.userID, bookID); err != nil {
		return fmt.Errorf("remove favorite %s: %w", bookID, err)
	}
	return nil
}

// Favorites lists favorites newest first
func (c *Collections) Favorites(ctx context.Context) ([]models.Favorite, error) {
	faves, err := c.remote.ListFavorites(ctx, c.userID)
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	return faves, nil
}

func (c *Collections) IsFavorite(ctx context.Context, bookID string) (bool, error) {
	ok, err := c.remote.IsFavorite(ctx, c.userID, bookID)
	if err != nil {
		return false, fmt.Errorf("check favorite %s: %w", bookID, err)
	}
	return ok, nil
}

// AddQuote saves a passage of bookID. Title and author are taken from the
// library when the book is in it.
func (c *Collections) AddQuote(ctx context.Context, bookID, text, note, color string) (models.Quote, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Quote{}, ErrEmptyQuote
	}
	if color == "" {
		color = DefaultQuoteColor
	}
	q := models.Quote{
		BookID: bookID,
		Text:   text,
		Note:   strings.TrimSpace(note),
		Color:  color,
	}
	if e, ok := c.local.Entry(bookID); ok {
		q.BookTitle = e.Info().Title
		q.BookAuthor = e.Info().Author
	}

	saved, err := c.remote.AddQuote(ctx, c.userID, q)
	if err != nil {
		return models.Quote{}, fmt.Errorf("add quote to %s: %w", bookID, err)
	}
	c.logger.Info("Quote saved", zap.String("book_id", bookID), zap.String("quote_id", saved.ID))
	return saved, nil
}

func (c *Collections) DeleteQuote(ctx context.Context, quoteID string) error {
	if err := c.remote.DeleteQuote(ctx, c.userID, quoteID); err != nil {
		return fmt.Errorf("delete quote %s: %w", quoteID, err)
	}
	return nil
}

// Quotes lists quotes newest first, all of them when bookID is empty
func (c *Collections) Quotes(ctx context.Context, bookID string) ([]models.Quote, error) {
	quotes, err := c.remote.ListQuotes(ctx, c.userID, bookID)
	if err != nil {
		return nil, fmt.Errorf("list quotes: %w", err)
	}
	return quotes, nil
}
