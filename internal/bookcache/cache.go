package bookcache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"bookshelf/internal/models"
)

// Backend stores cache records by book id.
// Get reports a missing id with found == false and a nil error.
type Backend interface {
	Put(ctx context.Context, book models.CachedBook) error
	Get(ctx context.Context, id string) (book models.CachedBook, found bool, err error)
	Clear(ctx context.Context) error
}

// Cache holds decoded text, covers and PDF bytes outside the state document.
// It is an optimization only: every backend failure is logged and reported
// to callers as a miss or a no-op.
type Cache struct {
	backend Backend
	logger  *zap.Logger
	now     func() time.Time
}

// New creates a cache over backend
func New(backend Backend, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{backend: backend, logger: logger, now: time.Now}
}

// Put overwrites the record for id
func (c *Cache) Put(ctx context.Context, id, text, cover string, pdfData []byte) {
	book := models.CachedBook{
		ID:        id,
		Text:      text,
		Cover:     cover,
		PDFData:   pdfData,
		Timestamp: c.now().UnixMilli(),
	}
	if err := c.backend.Put(ctx, book); err != nil {
		c.logger.Warn("Failed to cache book", zap.String("book_id", id), zap.Error(err))
	}
}

// PutCover stores a cover for id, keeping any text or PDF already cached.
// Nothing is written when the existing record cannot be read.
func (c *Cache) PutCover(ctx context.Context, id, cover string) {
	existing, _, err := c.backend.Get(ctx, id)
	if err != nil {
		c.logger.Warn("Failed to read cached book, cover not stored", zap.String("book_id", id), zap.Error(err))
		return
	}
	c.Put(ctx, id, existing.Text, cover, existing.PDFData)
}

// Get returns the record for id, or false when it is absent or unreadable
func (c *Cache) Get(ctx context.Context, id string) (models.CachedBook, bool) {
	book, found, err := c.backend.Get(ctx, id)
	if err != nil {
		c.logger.Warn("Failed to read cached book", zap.String("book_id", id), zap.Error(err))
		return models.CachedBook{}, false
	}
	return book, found
}

// Has reports whether a record exists for id
func (c *Cache) Has(ctx context.Context, id string) bool {
	_, found := c.Get(ctx, id)
	return found
}

// Cover returns the cached cover for id, or empty
func (c *Cache) Cover(ctx context.Context, id string) string {
	book, _ := c.Get(ctx, id)
	return book.Cover
}

// Clear removes every record
func (c *Cache) Clear(ctx context.Context) {
	if err := c.backend.Clear(ctx); err != nil {
		c.logger.Warn("Failed to clear book cache", zap.Error(err))
	}
}
