package library

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bookshelf/internal/bookcache"
	"bookshelf/internal/catalog"
	"bookshelf/internal/localstore"
	"bookshelf/internal/models"
	"bookshelf/internal/parser"
)

var (
	// ErrNotFound is returned for books missing from the library
	ErrNotFound = errors.New("library: book not found")
	// ErrUnavailable is returned when content is neither cached nor fetchable
	ErrUnavailable = errors.New("library: book content unavailable")
)

// LocalIDPrefix marks ids generated for uploaded files
const LocalIDPrefix = "local-"

// Content is the readable payload of a book
type Content struct {
	Text      string
	Cover     string
	PDF       []byte
	FromCache bool

	// Metadata found while parsing a freshly fetched file
	Title        string
	Author       string
	Series       string
	SeriesNumber float64
}

// Service applies reader mutations to the local store. Mutations are written
// locally at once and queued for the remote store; they never wait on the
// network and are not serialized with reconciliation.
type Service struct {
	local   *localstore.Store
	cache   *bookcache.Cache
	catalog catalog.Fetcher
	parsers *parser.Registry
	logger  *zap.Logger

	now   func() time.Time
	newID func() string
}

// NewService creates a service. catalog may be nil when no proxy is configured.
func NewService(local *localstore.Store, cache *bookcache.Cache, fetcher catalog.Fetcher, parsers *parser.Registry, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if parsers == nil {
		parsers = parser.NewRegistry()
	}
	return &Service{
		local:   local,
		cache:   cache,
		catalog: fetcher,
		parsers: parsers,
		logger:  logger,
		now:     time.Now,
		newID:   func() string { return LocalIDPrefix + uuid.NewString() },
	}
}

// Books returns the library in insertion order
func (s *Service) Books() []models.Entry {
	doc := s.local.Load()
	books := make([]models.Entry, 0, len(doc.MyBooks))
	for _, id := range doc.MyBooks {
		if e, ok := doc.Entry(id); ok {
			books = append(books, e)
		}
	}
	return books
}

// Book returns one library entry
func (s *Service) Book(id string) (models.Entry, error) {
	e, ok := s.local.Entry(id)
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

// AddBook caches the payload, adds the entry to the library and queues it
// for upload. A pending deletion of the same id is cancelled.
func (s *Service) AddBook(ctx context.Context, entry models.Entry, content Content) error {
	info := entry.Info()
	if info.ID == "" {
		return fmt.Errorf("add book: id required")
	}

	cover := content.Cover
	if cover == "" && models.IsInlineImage(info.Cover) {
		cover = info.Cover
	}
	if content.Text != "" || len(content.PDF) > 0 || cover != "" {
		s.cache.Put(ctx, info.ID, content.Text, cover, content.PDF)
	}

	err := s.local.Update(func(doc *localstore.Document) error {
		doc.PutEntry(entry)
		doc.QueueUpload(info.ID)
		doc.DropPendingDeletion(info.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("add book %s: %w", info.ID, err)
	}

	s.logger.Info("Book added",
		zap.String("book_id", info.ID),
		zap.String("title", info.Title),
		zap.String("format", string(entry.Format())),
	)
	return nil
}

// RemoveBook removes the book locally and queues the remote deletion
func (s *Service) RemoveBook(id string) error {
	err := s.local.Update(func(doc *localstore.Document) error {
		if !doc.HasBook(id) {
			return ErrNotFound
		}
		doc.RemoveEntry(id)
		doc.QueueDeletion(id)
		doc.DropPendingUpload(id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove book %s: %w", id, err)
	}

	s.logger.Info("Book removed", zap.String("book_id", id))
	return nil
}

// Open returns the book's content, from the cache when possible, otherwise
// fetched through the catalog, parsed and cached
func (s *Service) Open(ctx context.Context, id string) (Content, error) {
	if cached, ok := s.cache.Get(ctx, id); ok && cached.HasContent() {
		return Content{Text: cached.Text, Cover: cached.Cover, PDF: cached.PDFData, FromCache: true}, nil
	}
	if s.catalog == nil || strings.HasPrefix(id, LocalIDPrefix) {
		return Content{}, fmt.Errorf("open %s: %w", id, ErrUnavailable)
	}

	data, err := s.catalog.FetchBook(ctx, id)
	if err != nil {
		return Content{}, fmt.Errorf("fetch %s: %w", id, err)
	}

	format := models.FormatFB2
	if e, ok := s.local.Entry(id); ok {
		format = e.Format()
	}
	parsed, err := s.parsers.Parse(format, data)
	if err != nil {
		return Content{}, fmt.Errorf("open %s: %w", id, err)
	}
	if parsed.Text != "" || len(parsed.PDF) > 0 {
		s.cache.Put(ctx, id, parsed.Text, parsed.Cover, parsed.PDF)
	}

	return Content{
		Text:         parsed.Text,
		Cover:        parsed.Cover,
		PDF:          parsed.PDF,
		Title:        parsed.Title,
		Author:       parsed.Author,
		Series:       parsed.Series,
		SeriesNumber: parsed.SeriesNumber,
	}, nil
}

// Import parses a local file and adds it to the library under a new local id
func (s *Service) Import(ctx context.Context, data []byte, format models.Format, filename string) (models.Entry, error) {
	parsed, err := s.parsers.Parse(format, data)
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", filename, err)
	}

	title := parsed.Title
	if title == "" {
		base := filepath.Base(filename)
		title = strings.TrimSuffix(base, filepath.Ext(base))
	}
	entry := models.NewEntry(format, models.BookInfo{
		ID:           s.newID(),
		Title:        title,
		Author:       parsed.Author,
		Cover:        parsed.Cover,
		Series:       parsed.Series,
		SeriesNumber: parsed.SeriesNumber,
	})

	content := Content{Text: parsed.Text, Cover: parsed.Cover, PDF: parsed.PDF}
	if err := s.AddBook(ctx, entry, content); err != nil {
		return nil, err
	}
	return entry, nil
}

// IsCached reports whether the book can be opened offline
func (s *Service) IsCached(ctx context.Context, id string) bool {
	cached, ok := s.cache.Get(ctx, id)
	return ok && cached.HasContent()
}

// Cover returns the cover to display: the stored reference, or the cached
// image when the reference was stripped
func (s *Service) Cover(ctx context.Context, id string) string {
	if e, ok := s.local.Entry(id); ok && e.Info().Cover != "" {
		return e.Info().Cover
	}
	return s.cache.Cover(ctx, id)
}

// Progress returns the saved reading position of a book
func (s *Service) Progress(id string) (models.ReadingProgress, bool) {
	return s.local.Progress(id)
}

// SaveProgress records the reader's position. The position is clamped into
// the book and the timestamp never goes backwards for the same book, so the
// newest local write always wins the merge.
func (s *Service) SaveProgress(id string, position, total int) (models.ReadingProgress, error) {
	if total < 0 {
		total = 0
	}
	switch {
	case total == 0:
		position = 0
	case position >= total:
		position = total - 1
	case position < 0:
		position = 0
	}

	var saved models.ReadingProgress
	err := s.local.Update(func(doc *localstore.Document) error {
		lastRead := s.now().UnixMilli()
		if prev, ok := doc.ReadingProgress[id]; ok && prev.LastRead >= lastRead {
			lastRead = prev.LastRead + 1
		}
		saved = models.ReadingProgress{
			BookID:      id,
			CurrentPage: position,
			TotalPages:  total,
			LastRead:    lastRead,
		}
		saved.ScrollPercentage = float64(saved.Percentage())
		doc.ReadingProgress[id] = saved
		return nil
	})
	if err != nil {
		return models.ReadingProgress{}, fmt.Errorf("save progress %s: %w", id, err)
	}
	return saved, nil
}
