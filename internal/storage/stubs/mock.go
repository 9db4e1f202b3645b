package stubs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"bookshelf/internal/models"
)

// MockDB is an in-memory implementation of the Storage interface for testing.
// Failures can be injected per operation and book id.
type MockDB struct {
	mu       sync.RWMutex
	books    map[string]map[string]models.RemoteBook
	progress map[string]map[string]models.ReadingProgress
	faves    map[string]map[string]models.Favorite
	quotes   map[string]map[string]models.Quote
	version  map[string]int
	lastTS   int64
	failures map[string]int
	calls    map[string]int
}

// Operation names used by FailNext and Calls
const (
	OpListUserBooks  = "ListUserBooks"
	OpUpsertUserBook = "UpsertUserBook"
	OpDeleteUserBook = "DeleteUserBook"
	OpListProgress   = "ListProgress"
	OpUpsertProgress = "UpsertProgress"
	OpAddFavorite    = "AddFavorite"
	OpAddQuote       = "AddQuote"
)

// NewMockDB creates a new mock database
func NewMockDB() *MockDB {
	return &MockDB{
		books:    make(map[string]map[string]models.RemoteBook),
		progress: make(map[string]map[string]models.ReadingProgress),
		faves:    make(map[string]map[string]models.Favorite),
		quotes:   make(map[string]map[string]models.Quote),
		version:  make(map[string]int),
		failures: make(map[string]int),
		calls:    make(map[string]int),
	}
}

// Initialize does nothing for mock DB
func (m *MockDB) Initialize(ctx context.Context) error {
	return nil
}

// FailNext makes the next n calls of op fail. When bookID is not empty only
// calls for that book fail.
func (m *MockDB) FailNext(op, bookID string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op+"/"+bookID] = n
}

// Calls returns how many times op was invoked, failed calls included
func (m *MockDB) Calls(op string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[op]
}

// check records a call and consumes an injected failure. Caller holds the lock.
func (m *MockDB) check(op, bookID string) error {
	m.calls[op]++
	for _, key := range []string{op + "/" + bookID, op + "/"} {
		if m.failures[key] > 0 {
			m.failures[key]--
			return fmt.Errorf("mock %s failure", op)
		}
	}
	return nil
}

// ListUserBooks returns the user's books sorted by id
func (m *MockDB) ListUserBooks(ctx context.Context, userID string) ([]models.RemoteBook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(OpListUserBooks, ""); err != nil {
		return nil, err
	}

	var books []models.RemoteBook
	for _, book := range m.books[userID] {
		books = append(books, book)
	}
	sort.Slice(books, func(i, j int) bool {
		return books[i].BookID < books[j].BookID
	})
	return books, nil
}

// UpsertUserBook inserts or replaces a book row
func (m *MockDB) UpsertUserBook(ctx context.Context, userID string, book models.RemoteBook) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(OpUpsertUserBook, book.BookID); err != nil {
		return err
	}
	if m.books[userID] == nil {
		m.books[userID] = make(map[string]models.RemoteBook)
	}
	m.books[userID][book.BookID] = book
	m.version[userID]++
	return nil
}

// DeleteUserBook removes a book row; missing rows are ignored
func (m *MockDB) DeleteUserBook(ctx context.Context, userID, bookID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(OpDeleteUserBook, bookID); err != nil {
		return err
	}
	if _, ok := m.books[userID][bookID]; ok {
		delete(m.books[userID], bookID)
		m.version[userID]++
	}
	return nil
}

// ListProgress returns the user's progress rows sorted by book id
func (m *MockDB) ListProgress(ctx context.Context, userID string) ([]models.ReadingProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(OpListProgress, ""); err != nil {
		return nil, err
	}

	var rows []models.ReadingProgress
	for _, p := range m.progress[userID] {
		rows = append(rows, p)
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].BookID < rows[j].BookID
	})
	return rows, nil
}

// UpsertProgress stores a progress row unless a row with a newer lastRead
// is already stored
func (m *MockDB) UpsertProgress(ctx context.Context, userID string, progress models.ReadingProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(OpUpsertProgress, progress.BookID); err != nil {
		return err
	}
	if m.progress[userID] == nil {
		m.progress[userID] = make(map[string]models.ReadingProgress)
	}
	if prev, ok := m.progress[userID][progress.BookID]; ok && prev.NewerThan(progress) {
		return nil
	}
	m.progress[userID][progress.BookID] = progress
	m.version[userID]++
	return nil
}

// stamp returns a strictly increasing creation time. Caller holds the lock.
func (m *MockDB) stamp() int64 {
	ts := time.Now().UnixMilli()
	if ts <= m.lastTS {
		ts = m.lastTS + 1
	}
	m.lastTS = ts
	return ts
}

// AddFavorite stars a book unless it already is a favorite
func (m *MockDB) AddFavorite(ctx context.Context, userID string, fav models.Favorite) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(OpAddFavorite, fav.BookID); err != nil {
		return false, err
	}
	if m.faves[userID] == nil {
		m.faves[userID] = make(map[string]models.Favorite)
	}
	if _, ok := m.faves[userID][fav.BookID]; ok {
		return false, nil
	}
	fav.CreatedAt = m.stamp()
	m.faves[userID][fav.BookID] = fav
	return true, nil
}

func (m *MockDB) RemoveFavorite(ctx context.Context, userID, bookID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.faves[userID], bookID)
	return nil
}

// ListFavorites returns the user's favorites newest first
func (m *MockDB) ListFavorites(ctx context.Context, userID string) ([]models.Favorite, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var faves []models.Favorite
	for _, f := range m.faves[userID] {
		faves = append(faves, f)
	}
	sort.Slice(faves, func(i, j int) bool {
		return faves[i].CreatedAt > faves[j].CreatedAt
	})
	return faves, nil
}

func (m *MockDB) IsFavorite(ctx context.Context, userID, bookID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.faves[userID][bookID]
	return ok, nil
}

// AddQuote stores q under a fresh id
func (m *MockDB) AddQuote(ctx context.Context, userID string, q models.Quote) (models.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(OpAddQuote, q.BookID); err != nil {
		return models.Quote{}, err
	}
	if m.quotes[userID] == nil {
		m.quotes[userID] = make(map[string]models.Quote)
	}
	q.ID = uuid.NewString()
	q.CreatedAt = m.stamp()
	m.quotes[userID][q.ID] = q
	return q, nil
}

func (m *MockDB) DeleteQuote(ctx context.Context, userID, quoteID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.quotes[userID], quoteID)
	return nil
}

// ListQuotes returns the user's quotes newest first, filtered by bookID when set
func (m *MockDB) ListQuotes(ctx context.Context, userID, bookID string) ([]models.Quote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var quotes []models.Quote
	for _, q := range m.quotes[userID] {
		if bookID == "" || q.BookID == bookID {
			quotes = append(quotes, q)
		}
	}
	sort.Slice(quotes, func(i, j int) bool {
		return quotes[i].CreatedAt > quotes[j].CreatedAt
	})
	return quotes, nil
}

// ChangeToken changes every time one of the user's rows changes
func (m *MockDB) ChangeToken(ctx context.Context, userID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fmt.Sprintf("%d", m.version[userID]), nil
}

// HasBook reports whether the user's remote library contains bookID
func (m *MockDB) HasBook(userID, bookID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.books[userID][bookID]
	return ok
}

// Book returns a stored row
func (m *MockDB) Book(userID, bookID string) (models.RemoteBook, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	book, ok := m.books[userID][bookID]
	return book, ok
}

// Progress returns a stored progress row
func (m *MockDB) Progress(userID, bookID string) (models.ReadingProgress, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.progress[userID][bookID]
	return p, ok
}

// Close does nothing for mock DB
func (m *MockDB) Close() error {
	return nil
}
