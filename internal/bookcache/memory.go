package bookcache

import (
	"context"
	"sync"

	"bookshelf/internal/models"
)

// MemoryBackend keeps records in a map
type MemoryBackend struct {
	mu    sync.RWMutex
	books map[string]models.CachedBook
}

// NewMemoryBackend creates an empty in-memory backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{books: make(map[string]models.CachedBook)}
}

func (m *MemoryBackend) Put(ctx context.Context, book models.CachedBook) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	book.PDFData = append([]byte(nil), book.PDFData...)
	m.books[book.ID] = book
	return nil
}

func (m *MemoryBackend) Get(ctx context.Context, id string) (models.CachedBook, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	book, ok := m.books[id]
	return book, ok, nil
}

func (m *MemoryBackend) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.books = make(map[string]models.CachedBook)
	return nil
}
