package pollfeed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"bookshelf/internal/changefeed"
	"bookshelf/internal/storage"
)

// DefaultSchedule is used when no schedule is configured
const DefaultSchedule = "@every 10s"

// Feed detects remote changes by polling the store's change token on a cron
// schedule. It is the fallback when no push transport is configured.
type Feed struct {
	versioner storage.Versioner
	schedule  string
	logger    *zap.Logger
}

var _ changefeed.Feed = (*Feed)(nil)

// New creates a polling feed. An empty schedule means DefaultSchedule.
func New(v storage.Versioner, schedule string, logger *zap.Logger) *Feed {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feed{versioner: v, schedule: schedule, logger: logger}
}

func (f *Feed) Subscribe(ctx context.Context, userID string) (<-chan changefeed.Event, error) {
	p := &poller{
		versioner: f.versioner,
		userID:    userID,
		out:       make(chan changefeed.Event, 1),
		logger:    f.logger,
	}
	// Baseline, so the first change after subscribing is noticed
	p.check(ctx)

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(f.schedule, func() { p.check(ctx) }); err != nil {
		return nil, fmt.Errorf("invalid poll schedule %q: %w", f.schedule, err)
	}
	c.Start()

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
		close(p.out)
	}()
	return p.out, nil
}

type poller struct {
	versioner storage.Versioner
	userID    string
	out       chan changefeed.Event
	logger    *zap.Logger

	mu   sync.Mutex
	last string
	seen bool
}

func (p *poller) check(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	token, err := p.versioner.ChangeToken(ctx, p.userID)
	if err != nil {
		p.logger.Warn("Change poll failed", zap.String("user_id", p.userID), zap.Error(err))
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	changed := p.seen && token != p.last
	p.last = token
	p.seen = true
	if !changed {
		return
	}

	select {
	case p.out <- changefeed.Event{UserID: p.userID, Op: changefeed.OpChange, At: time.Now()}:
	default:
		// a notification is already pending
	}
}
