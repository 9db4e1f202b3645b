package storage

import (
	"context"

	"bookshelf/internal/models"
)

// Storage defines the interface for the remote per-user library store
type Storage interface {
	// Book operations

	// ListUserBooks returns every book row of the user (full scan, not incremental)
	ListUserBooks(ctx context.Context, userID string) ([]models.RemoteBook, error)
	// UpsertUserBook inserts or replaces the row keyed by (userID, book.BookID)
	UpsertUserBook(ctx context.Context, userID string, book models.RemoteBook) error
	// DeleteUserBook removes the row; deleting a missing row is not an error
	DeleteUserBook(ctx context.Context, userID, bookID string) error

	// Progress operations
	ListProgress(ctx context.Context, userID string) ([]models.ReadingProgress, error)
	UpsertProgress(ctx context.Context, userID string, progress models.ReadingProgress) error

	Favorites
	Quotes

	// Lifecycle
	Initialize(ctx context.Context) error
	Close() error
}

// Versioner is implemented by stores that can cheaply fingerprint a user's
// book rows. The token changes whenever a row is written or deleted.
type Versioner interface {
	ChangeToken(ctx context.Context, userID string) (string, error)
}

// Favorites stores the books a user starred, one row per (user, book)
type Favorites interface {
	// AddFavorite stores fav and reports false when the book already was a
	// favorite, in which case the stored row is left as is
	AddFavorite(ctx context.Context, userID string, fav models.Favorite) (bool, error)
	// RemoveFavorite unstars the book; removing a missing favorite is not an error
	RemoveFavorite(ctx context.Context, userID, bookID string) error
	// ListFavorites returns the favorites newest first
	ListFavorites(ctx context.Context, userID string) ([]models.Favorite, error)
	IsFavorite(ctx context.Context, userID, bookID string) (bool, error)
}

// Quotes stores passages a user saved while reading
type Quotes interface {
	// AddQuote stores q under a new id and returns the stored row
	AddQuote(ctx context.Context, userID string, q models.Quote) (models.Quote, error)
	// DeleteQuote removes a quote by id; deleting a missing quote is not an error
	DeleteQuote(ctx context.Context, userID, quoteID string) error
	// ListQuotes returns quotes newest first, only those of bookID when it is
	// not empty
	ListQuotes(ctx context.Context, userID, bookID string) ([]models.Quote, error)
}
