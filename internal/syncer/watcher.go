package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"bookshelf/internal/changefeed"
)

// DefaultDebounce is how long the watcher waits for a burst of remote
// changes to settle before reconciling
const DefaultDebounce = time.Second

// Listener is told about every pass the watcher runs
type Listener func(Report)

// Watcher turns remote change notifications into debounced reconciliations
type Watcher struct {
	engine *Engine
	feed   changefeed.Feed
	delay  time.Duration
	logger *zap.Logger

	mu        sync.RWMutex
	listeners []Listener
}

// NewWatcher creates a watcher. A non-positive delay means DefaultDebounce.
func NewWatcher(engine *Engine, feed changefeed.Feed, delay time.Duration, logger *zap.Logger) *Watcher {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{engine: engine, feed: feed, delay: delay, logger: logger}
}

// OnChange registers a listener
func (w *Watcher) OnChange(l Listener) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, l)
}

// SyncNow reconciles immediately and notifies listeners
func (w *Watcher) SyncNow(ctx context.Context, userID string) (Report, error) {
	report, err := w.engine.Reconcile(ctx, userID)
	if err != nil {
		w.logger.Error("Sync failed", zap.String("user_id", userID), zap.Error(err))
		return report, err
	}

	w.mu.RLock()
	listeners := append([]Listener(nil), w.listeners...)
	w.mu.RUnlock()
	for _, l := range listeners {
		l(report)
	}
	return report, nil
}

// Run subscribes to userID's changes and blocks until ctx ends or the feed
// closes. Events arriving within the debounce window of each other cause a
// single reconciliation.
func (w *Watcher) Run(ctx context.Context, userID string) error {
	events, err := w.feed.Subscribe(ctx, userID)
	if err != nil {
		return fmt.Errorf("subscribe to remote changes: %w", err)
	}
	w.logger.Info("Watching remote library", zap.String("user_id", userID), zap.Duration("debounce", w.delay))

	fire := make(chan struct{}, 1)
	timer := time.AfterFunc(time.Hour, func() {
		select {
		case fire <- struct{}{}:
		default:
		}
	})
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			w.logger.Debug("Remote change detected",
				zap.String("book_id", ev.BookID),
				zap.String("op", ev.Op),
			)
			timer.Reset(w.delay)
		case <-fire:
			_, _ = w.SyncNow(ctx, userID)
		}
	}
}
