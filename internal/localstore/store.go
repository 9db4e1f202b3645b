// Package localstore is the device-local state of the reader: library
// membership, book metadata, reading progress, settings and the pending
// deletion/upload queues, all kept in one serialized document.
//
// Every mutator is a complete load-mutate-save cycle under the store's lock,
// so callers never observe a partially written document. Large payloads
// (inline covers, text, PDF bytes) are never stored here; see bookcache.
package localstore

import (
	"fmt"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"bookshelf/internal/models"
)

// ConfigCompatibleWithStandardLibrary sorts map keys, so equal documents
// serialize to identical bytes.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Store provides access to the local state document
type Store struct {
	mu      sync.Mutex
	backend Backend
	logger  *zap.Logger
}

// New creates a store on top of backend
func New(backend Backend, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{backend: backend, logger: logger}
}

// Load returns a copy of the current document. A missing, unreadable or
// corrupted record yields the empty default document.
func (s *Store) Load() Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		s.logger.Error("Failed to read local state, using defaults", zap.Error(err))
		return NewDocument()
	}
	return doc
}

// Save replaces the whole document
func (s *Store) Save(doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(doc)
}

// Update runs fn against the current document and saves the result.
// Nothing is written when the backend cannot be read or fn returns an error.
// A corrupted record is replaced starting from the default document.
func (s *Store) Update(fn func(doc *Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		s.logger.Error("Failed to read local state, mutation dropped", zap.Error(err))
		return err
	}
	if err := fn(&doc); err != nil {
		return err
	}
	return s.save(doc)
}

// Raw returns the serialized document as persisted
func (s *Store) Raw() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Read()
}

// load fails only when the backend itself fails. An empty or unparsable
// record decodes to the default document.
func (s *Store) load() (Document, error) {
	data, err := s.backend.Read()
	if err != nil {
		return Document{}, fmt.Errorf("read local state: %w", err)
	}
	if len(data) == 0 {
		return NewDocument(), nil
	}

	// keys absent from the record keep their defaults
	doc := Document{Settings: models.DefaultSettings()}
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Error("Local state is corrupted, using defaults",
			zap.Error(err),
			zap.Int("bytes", len(data)),
		)
		return NewDocument(), nil
	}
	doc.normalize()
	return doc, nil
}

func (s *Store) save(doc Document) error {
	doc.normalize()
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode local state: %w", err)
	}
	if err := s.backend.Write(data); err != nil {
		s.logger.Error("Failed to save local state", zap.Error(err))
		return fmt.Errorf("save local state: %w", err)
	}
	return nil
}

// Settings returns the reader settings
func (s *Store) Settings() models.Settings {
	return s.Load().Settings
}

// SaveSettings replaces the reader settings
func (s *Store) SaveSettings(settings models.Settings) error {
	return s.Update(func(doc *Document) error {
		doc.Settings = settings
		return nil
	})
}

// Progress returns the saved reading position for a book
func (s *Store) Progress(bookID string) (models.ReadingProgress, bool) {
	doc := s.Load()
	p, ok := doc.ReadingProgress[bookID]
	return p, ok
}

// SaveProgress stores the reading position for p.BookID
func (s *Store) SaveProgress(p models.ReadingProgress) error {
	return s.Update(func(doc *Document) error {
		doc.ReadingProgress[p.BookID] = p
		return nil
	})
}

// Entry returns the metadata of a book in the library
func (s *Store) Entry(bookID string) (models.Entry, bool) {
	doc := s.Load()
	return doc.Entry(bookID)
}

// AddEntry adds a book to the library, stripping inline image covers
func (s *Store) AddEntry(e models.Entry) error {
	return s.Update(func(doc *Document) error {
		doc.PutEntry(e)
		return nil
	})
}

// RemoveEntry removes a book from the library
func (s *Store) RemoveEntry(bookID string) error {
	return s.Update(func(doc *Document) error {
		doc.RemoveEntry(bookID)
		return nil
	})
}

// BookIDs lists the library in insertion order
func (s *Store) BookIDs() []string {
	return s.Load().MyBooks
}

// Contains reports whether the book is in the library
func (s *Store) Contains(bookID string) bool {
	doc := s.Load()
	return doc.HasBook(bookID)
}

// PendingDeletions lists books deleted locally but not yet remotely
func (s *Store) PendingDeletions() []string {
	return s.Load().PendingDeletions
}

func (s *Store) AddPendingDeletion(bookID string) error {
	return s.Update(func(doc *Document) error {
		doc.QueueDeletion(bookID)
		return nil
	})
}

func (s *Store) RemovePendingDeletion(bookID string) error {
	return s.Update(func(doc *Document) error {
		doc.DropPendingDeletion(bookID)
		return nil
	})
}

// PendingUploads lists books added locally but not yet confirmed remotely
func (s *Store) PendingUploads() []string {
	return s.Load().PendingUploads
}

func (s *Store) AddPendingUpload(bookID string) error {
	return s.Update(func(doc *Document) error {
		doc.QueueUpload(bookID)
		return nil
	})
}

func (s *Store) RemovePendingUpload(bookID string) error {
	return s.Update(func(doc *Document) error {
		doc.DropPendingUpload(bookID)
		return nil
	})
}
