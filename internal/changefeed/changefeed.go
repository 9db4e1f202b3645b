// Package changefeed carries "something changed in this user's remote
// library" notifications between devices.
//
// Events carry no payload guarantees: receivers re-read the remote store
// instead of applying events. Two transports exist, natsfeed (push) and
// pollfeed (fingerprint polling), plus Local for single-process setups.
package changefeed

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"bookshelf/internal/models"
	"bookshelf/internal/storage"
)

// Operations carried in Event.Op
const (
	OpUpsert   = "upsert"
	OpDelete   = "delete"
	OpProgress = "progress"
	OpChange   = "change"
)

// Event reports a change to a user's remote rows
type Event struct {
	UserID string    `json:"user_id"`
	BookID string    `json:"book_id,omitempty"`
	Op     string    `json:"op"`
	At     time.Time `json:"at"`
}

// Feed delivers change events for one user until ctx ends, then closes the
// channel
type Feed interface {
	Subscribe(ctx context.Context, userID string) (<-chan Event, error)
}

// Publisher announces a change to every subscriber of ev.UserID
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// PublishingStorage decorates a remote store so that every successful
// library or progress write is announced on the feed. Favorites and quotes
// pass through unannounced.
type PublishingStorage struct {
	storage.Storage
	publisher Publisher
	logger    *zap.Logger
}

// Publishing wraps s
func Publishing(s storage.Storage, p Publisher, logger *zap.Logger) *PublishingStorage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublishingStorage{Storage: s, publisher: p, logger: logger}
}

func (p *PublishingStorage) UpsertUserBook(ctx context.Context, userID string, book models.RemoteBook) error {
	if err := p.Storage.UpsertUserBook(ctx, userID, book); err != nil {
		return err
	}
	p.publish(ctx, Event{UserID: userID, BookID: book.BookID, Op: OpUpsert})
	return nil
}

func (p *PublishingStorage) DeleteUserBook(ctx context.Context, userID, bookID string) error {
	if err := p.Storage.DeleteUserBook(ctx, userID, bookID); err != nil {
		return err
	}
	p.publish(ctx, Event{UserID: userID, BookID: bookID, Op: OpDelete})
	return nil
}

func (p *PublishingStorage) UpsertProgress(ctx context.Context, userID string, progress models.ReadingProgress) error {
	if err := p.Storage.UpsertProgress(ctx, userID, progress); err != nil {
		return err
	}
	p.publish(ctx, Event{UserID: userID, BookID: progress.BookID, Op: OpProgress})
	return nil
}

// ChangeToken forwards to the wrapped store when it supports versioning
func (p *PublishingStorage) ChangeToken(ctx context.Context, userID string) (string, error) {
	v, ok := p.Storage.(storage.Versioner)
	if !ok {
		return "", nil
	}
	return v.ChangeToken(ctx, userID)
}

// The write already succeeded; a lost notification only delays other devices
// until their next trigger.
func (p *PublishingStorage) publish(ctx context.Context, ev Event) {
	ev.At = time.Now()
	if err := p.publisher.Publish(ctx, ev); err != nil {
		p.logger.Warn("Failed to publish change event",
			zap.String("user_id", ev.UserID),
			zap.String("book_id", ev.BookID),
			zap.String("op", ev.Op),
			zap.Error(err),
		)
	}
}

// Local is an in-process Feed and Publisher
type Local struct {
	mu   sync.Mutex
	subs map[string][]chan Event
}

// NewLocal creates an empty in-process feed
func NewLocal() *Local {
	return &Local{subs: make(map[string][]chan Event)}
}

func (l *Local) Subscribe(ctx context.Context, userID string) (<-chan Event, error) {
	ch := make(chan Event, 16)

	l.mu.Lock()
	l.subs[userID] = append(l.subs[userID], ch)
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.mu.Lock()
		defer l.mu.Unlock()
		subs := l.subs[userID]
		for i, c := range subs {
			if c == ch {
				l.subs[userID] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch, nil
}

// Publish never blocks; a subscriber with a full buffer already has a
// notification pending
func (l *Local) Publish(ctx context.Context, ev Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ch := range l.subs[ev.UserID] {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}
