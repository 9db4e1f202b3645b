package changefeed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bookshelf/internal/models"
	"bookshelf/internal/storage/stubs"
)

type failingPublisher struct{ calls int }

func (f *failingPublisher) Publish(ctx context.Context, ev Event) error {
	f.calls++
	return errors.New("broker down")
}

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change event")
		return Event{}
	}
}

func TestPublishing_AnnouncesSuccessfulWrites(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed := NewLocal()
	events, err := feed.Subscribe(ctx, "u1")
	require.NoError(t, err)

	db := stubs.NewMockDB()
	store := Publishing(db, feed, zap.NewNop())

	require.NoError(t, store.UpsertUserBook(ctx, "u1", models.RemoteBook{BookID: "42"}))
	ev := receive(t, events)
	assert.Equal(t, "u1", ev.UserID)
	assert.Equal(t, "42", ev.BookID)
	assert.Equal(t, OpUpsert, ev.Op)
	assert.False(t, ev.At.IsZero())

	require.NoError(t, store.DeleteUserBook(ctx, "u1", "42"))
	assert.Equal(t, OpDelete, receive(t, events).Op)

	require.NoError(t, store.UpsertProgress(ctx, "u1", models.ReadingProgress{BookID: "42", LastRead: 1}))
	assert.Equal(t, OpProgress, receive(t, events).Op)

	assert.False(t, db.HasBook("u1", "42"))
}

func TestPublishing_CollectionsAreForwardedQuietly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed := NewLocal()
	events, err := feed.Subscribe(ctx, "u1")
	require.NoError(t, err)

	db := stubs.NewMockDB()
	store := Publishing(db, feed, zap.NewNop())

	added, err := store.AddFavorite(ctx, "u1", models.Favorite{BookID: "42"})
	require.NoError(t, err)
	assert.True(t, added)
	_, err = store.AddQuote(ctx, "u1", models.Quote{BookID: "42", Text: "quote"})
	require.NoError(t, err)

	ok, err := db.IsFavorite(ctx, "u1", "42")
	require.NoError(t, err)
	assert.True(t, ok)

	// favorites and quotes are not part of the synced library
	select {
	case ev := <-events:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishing_FailedWriteIsSilent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed := NewLocal()
	events, err := feed.Subscribe(ctx, "u1")
	require.NoError(t, err)

	db := stubs.NewMockDB()
	db.FailNext(stubs.OpUpsertUserBook, "", 1)
	store := Publishing(db, feed, nil)

	assert.Error(t, store.UpsertUserBook(ctx, "u1", models.RemoteBook{BookID: "1"}))
	select {
	case ev := <-events:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishing_PublishFailureDoesNotFailWrite(t *testing.T) {
	db := stubs.NewMockDB()
	publisher := &failingPublisher{}
	store := Publishing(db, publisher, zap.NewNop())

	require.NoError(t, store.UpsertUserBook(context.Background(), "u1", models.RemoteBook{BookID: "1"}))
	assert.Equal(t, 1, publisher.calls)
	assert.True(t, db.HasBook("u1", "1"))
}

func TestPublishing_ForwardsChangeToken(t *testing.T) {
	ctx := context.Background()
	db := stubs.NewMockDB()
	store := Publishing(db, NewLocal(), nil)

	before, err := store.ChangeToken(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, store.UpsertUserBook(ctx, "u1", models.RemoteBook{BookID: "1"}))
	after, err := store.ChangeToken(ctx, "u1")
	require.NoError(t, err)
	assert.NotEqual(t, before, after)
}

func TestLocal_RoutesByUser(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed := NewLocal()
	mine, err := feed.Subscribe(ctx, "u1")
	require.NoError(t, err)
	theirs, err := feed.Subscribe(ctx, "u2")
	require.NoError(t, err)

	require.NoError(t, feed.Publish(ctx, Event{UserID: "u1", Op: OpChange}))

	assert.Equal(t, "u1", receive(t, mine).UserID)
	select {
	case ev := <-theirs:
		t.Fatalf("event leaked to another user: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLocal_PublishNeverBlocks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed := NewLocal()
	_, err := feed.Subscribe(ctx, "u1")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			_ = feed.Publish(ctx, Event{UserID: "u1", Op: OpChange})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestLocal_ClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	feed := NewLocal()
	events, err := feed.Subscribe(ctx, "u1")
	require.NoError(t, err)

	cancel()

	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
	// publishing after the subscriber left is harmless
	assert.NoError(t, feed.Publish(context.Background(), Event{UserID: "u1"}))
}
