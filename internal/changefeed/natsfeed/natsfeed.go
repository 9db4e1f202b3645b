package natsfeed

import (
	"context"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"bookshelf/internal/changefeed"
)

const subjectPrefix = "bookshelf.changes."

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Feed publishes and subscribes to change events over NATS, one subject per
// user
type Feed struct {
	conn   *nats.Conn
	logger *zap.Logger
}

var (
	_ changefeed.Feed      = (*Feed)(nil)
	_ changefeed.Publisher = (*Feed)(nil)
)

// Connect dials the NATS server at url
func Connect(url string, logger *zap.Logger) (*Feed, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := nats.Connect(url,
		nats.Name("bookshelf"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("Disconnected from NATS", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("Reconnected to NATS", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return New(conn, logger), nil
}

// New wraps an existing connection
func New(conn *nats.Conn, logger *zap.Logger) *Feed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feed{conn: conn, logger: logger}
}

// Subject returns the subject carrying userID's events
func Subject(userID string) string {
	return subjectPrefix + strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(userID)
}

func (f *Feed) Publish(ctx context.Context, ev changefeed.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode change event: %w", err)
	}
	if err := f.conn.Publish(Subject(ev.UserID), data); err != nil {
		return fmt.Errorf("publish change event: %w", err)
	}
	return nil
}

func (f *Feed) Subscribe(ctx context.Context, userID string) (<-chan changefeed.Event, error) {
	msgs := make(chan *nats.Msg, 64)
	sub, err := f.conn.ChanSubscribe(Subject(userID), msgs)
	if err != nil {
		return nil, fmt.Errorf("subscribe to changes: %w", err)
	}
	if err := f.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("flush subscription: %w", err)
	}

	out := make(chan changefeed.Event, 16)
	go func() {
		defer close(out)
		defer func() { _ = sub.Unsubscribe() }()

		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-msgs:
				ev := changefeed.Event{UserID: userID, Op: changefeed.OpChange}
				if err := json.Unmarshal(msg.Data, &ev); err != nil {
					f.logger.Debug("Undecodable change event, treating as generic change",
						zap.String("subject", msg.Subject),
						zap.Error(err),
					)
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close drains and closes the connection
func (f *Feed) Close() error {
	return f.conn.Drain()
}
