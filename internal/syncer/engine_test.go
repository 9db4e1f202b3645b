package syncer

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bookshelf/internal/bookcache"
	"bookshelf/internal/localstore"
	"bookshelf/internal/models"
	"bookshelf/internal/storage"
	"bookshelf/internal/storage/stubs"
)

const user = "user-1"

type fixture struct {
	local  *localstore.Store
	cache  *bookcache.Cache
	remote *stubs.MockDB
	engine *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		local:  localstore.New(&localstore.MemoryBackend{}, zap.NewNop()),
		cache:  bookcache.New(bookcache.NewMemoryBackend(), zap.NewNop()),
		remote: stubs.NewMockDB(),
	}
	f.engine = NewEngine(f.local, f.cache, f.remote, zap.NewNop(), nil)
	return f
}

func (f *fixture) reconcile(t *testing.T) Report {
	t.Helper()
	report, err := f.engine.Reconcile(context.Background(), user)
	require.NoError(t, err)
	return report
}

func (f *fixture) addLocal(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, f.local.AddEntry(models.FB2Entry{BookInfo: models.BookInfo{ID: id, Title: "Book " + id}}))
}

func (f *fixture) remoteBook(id string) models.RemoteBook {
	return models.RemoteBook{BookID: id, Title: "Book " + id, Format: models.FormatFB2}
}

func (f *fixture) addRemote(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, f.remote.UpsertUserBook(context.Background(), user, f.remoteBook(id)))
}

func TestReconcile_RequiresUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Reconcile(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoUser)
}

func TestReconcile_SecondPassChangesNothing(t *testing.T) {
	f := newFixture(t)
	f.addLocal(t, "a")
	require.NoError(t, f.local.AddPendingUpload("a"))
	require.NoError(t, f.local.SaveProgress(models.ReadingProgress{BookID: "a", CurrentPage: 4, TotalPages: 10, LastRead: 500}))
	f.addRemote(t, "b")
	require.NoError(t, f.remote.UpsertProgress(context.Background(), user, models.ReadingProgress{BookID: "b", CurrentPage: 1, TotalPages: 3, LastRead: 900}))

	first := f.reconcile(t)
	assert.Equal(t, 1, first.UploadsDrained)
	assert.Equal(t, []string{"b"}, first.Pulled)
	assert.Equal(t, 1, first.ProgressPulled)
	assert.Equal(t, 1, first.ProgressPushed)

	raw1, err := f.local.Raw()
	require.NoError(t, err)
	upserts := f.remote.Calls(stubs.OpUpsertUserBook) + f.remote.Calls(stubs.OpUpsertProgress)

	second := f.reconcile(t)
	raw2, err := f.local.Raw()
	require.NoError(t, err)

	assert.Equal(t, string(raw1), string(raw2))
	assert.False(t, second.LibraryChanged())
	assert.Zero(t, second.ProgressPushed)
	assert.Equal(t, upserts, f.remote.Calls(stubs.OpUpsertUserBook)+f.remote.Calls(stubs.OpUpsertProgress))
}

func TestReconcile_DeletionRetriedUntilConfirmed(t *testing.T) {
	f := newFixture(t)
	f.addRemote(t, "7")
	require.NoError(t, f.local.AddPendingDeletion("7"))
	f.remote.FailNext(stubs.OpDeleteUserBook, "7", 1)

	first := f.reconcile(t)
	assert.Equal(t, 1, first.Failures)
	assert.Equal(t, []string{"7"}, f.local.PendingDeletions())
	// still remote, but the pending deletion keeps it from coming back
	assert.True(t, f.remote.HasBook(user, "7"))
	assert.False(t, f.local.Contains("7"))
	assert.Empty(t, first.Pulled)

	second := f.reconcile(t)
	assert.Equal(t, 1, second.DeletionsDrained)
	assert.Empty(t, f.local.PendingDeletions())
	assert.False(t, f.remote.HasBook(user, "7"))
	assert.False(t, f.local.Contains("7"))
}

func TestReconcile_PendingUploadIsNeverRemoved(t *testing.T) {
	f := newFixture(t)
	f.addLocal(t, "local-42")
	require.NoError(t, f.local.AddPendingUpload("local-42"))
	f.remote.FailNext(stubs.OpUpsertUserBook, "local-42", 1)

	first := f.reconcile(t)
	assert.Equal(t, 1, first.Failures)
	assert.True(t, f.local.Contains("local-42"))
	assert.Equal(t, []string{"local-42"}, f.local.PendingUploads())
	assert.Empty(t, first.Removed)

	second := f.reconcile(t)
	assert.Equal(t, 1, second.UploadsDrained)
	assert.True(t, f.remote.HasBook(user, "local-42"))
	assert.True(t, f.local.Contains("local-42"))
	assert.Empty(t, f.local.PendingUploads())
}

func TestReconcile_RemoteDeletionPropagates(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"A", "B", "C"} {
		f.addLocal(t, id)
	}
	f.addRemote(t, "A")
	f.addRemote(t, "B")

	report := f.reconcile(t)

	assert.Equal(t, []string{"A", "B"}, f.local.BookIDs())
	assert.Equal(t, []string{"C"}, report.Removed)
	assert.True(t, report.LibraryChanged())
}

func TestReconcile_PullsRemoteBooksAndCachesInlineCovers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inline := "data:image/png;base64,iVBORw0KGgo"
	require.NoError(t, f.remote.UpsertUserBook(ctx, user, models.RemoteBook{
		BookID: "9", Title: "Manual", Author: "ACME", Cover: inline, Format: models.FormatPDF,
	}))
	require.NoError(t, f.remote.UpsertUserBook(ctx, user, models.RemoteBook{
		BookID: "10", Title: "Novel", Cover: "https://covers.example/10.jpg",
	}))

	report := f.reconcile(t)
	assert.ElementsMatch(t, []string{"9", "10"}, report.Pulled)

	e, ok := f.local.Entry("9")
	require.True(t, ok)
	assert.Equal(t, models.FormatPDF, e.Format())
	assert.Equal(t, "ACME", e.Info().Author)
	assert.Empty(t, e.Info().Cover)
	assert.Equal(t, inline, f.cache.Cover(ctx, "9"))

	e, ok = f.local.Entry("10")
	require.True(t, ok)
	assert.Equal(t, "https://covers.example/10.jpg", e.Info().Cover)
}

func TestReconcile_UploadRestoresCachedCover(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inline := "data:image/jpeg;base64,/9j/4AAQ"
	f.cache.Put(ctx, "x", "text", inline, nil)
	require.NoError(t, f.local.AddEntry(models.FB2Entry{BookInfo: models.BookInfo{ID: "x", Title: "X", Cover: inline}}))
	require.NoError(t, f.local.AddPendingUpload("x"))

	f.reconcile(t)

	row, ok := f.remote.Book(user, "x")
	require.True(t, ok)
	assert.Equal(t, inline, row.Cover)
	assert.Equal(t, "Unknown", row.Author)
	assert.Equal(t, "reading", row.Status)

	e, _ := f.local.Entry("x")
	assert.Empty(t, e.Info().Cover)
}

func TestReconcile_OrphanUploadIsDropped(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.local.AddPendingUpload("ghost"))

	report := f.reconcile(t)

	assert.Equal(t, 1, report.UploadsDropped)
	assert.Empty(t, f.local.PendingUploads())
	assert.Zero(t, f.remote.Calls(stubs.OpUpsertUserBook))
}

func TestReconcile_ProgressLastWriteWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, id := range []string{"p1", "p2", "p3"} {
		f.addLocal(t, id)
		f.addRemote(t, id)
	}

	// p1: local newer, p2: remote newer, p3: tie
	require.NoError(t, f.local.SaveProgress(models.ReadingProgress{BookID: "p1", CurrentPage: 8, TotalPages: 10, LastRead: 200}))
	require.NoError(t, f.remote.UpsertProgress(ctx, user, models.ReadingProgress{BookID: "p1", CurrentPage: 2, TotalPages: 10, LastRead: 100}))
	require.NoError(t, f.local.SaveProgress(models.ReadingProgress{BookID: "p2", CurrentPage: 1, TotalPages: 10, LastRead: 100}))
	require.NoError(t, f.remote.UpsertProgress(ctx, user, models.ReadingProgress{BookID: "p2", CurrentPage: 6, TotalPages: 10, LastRead: 300}))
	require.NoError(t, f.local.SaveProgress(models.ReadingProgress{BookID: "p3", CurrentPage: 3, TotalPages: 10, LastRead: 400}))
	require.NoError(t, f.remote.UpsertProgress(ctx, user, models.ReadingProgress{BookID: "p3", CurrentPage: 5, TotalPages: 10, LastRead: 400}))

	report := f.reconcile(t)
	assert.Equal(t, 1, report.ProgressPushed)
	assert.Equal(t, 1, report.ProgressPulled)

	remote, _ := f.remote.Progress(user, "p1")
	assert.Equal(t, 8, remote.CurrentPage)
	local, _ := f.local.Progress("p2")
	assert.Equal(t, 6, local.CurrentPage)

	// ties leave both sides alone
	local, _ = f.local.Progress("p3")
	remote, _ = f.remote.Progress(user, "p3")
	assert.Equal(t, 3, local.CurrentPage)
	assert.Equal(t, 5, remote.CurrentPage)
}

func TestReconcile_FailedListKeepsLibrary(t *testing.T) {
	f := newFixture(t)
	f.addLocal(t, "A")
	f.addLocal(t, "B")
	f.remote.FailNext(stubs.OpListUserBooks, "", 1)

	report := f.reconcile(t)

	assert.Equal(t, 1, report.Failures)
	assert.Equal(t, []string{"A", "B"}, f.local.BookIDs())
	assert.Empty(t, report.Removed)
}

func TestReconcile_FailedProgressListSkipsMerge(t *testing.T) {
	f := newFixture(t)
	f.addLocal(t, "A")
	f.addRemote(t, "A")
	require.NoError(t, f.local.SaveProgress(models.ReadingProgress{BookID: "A", LastRead: 10}))
	f.remote.FailNext(stubs.OpListProgress, "", 1)

	report := f.reconcile(t)

	assert.Equal(t, 1, report.Failures)
	assert.Zero(t, report.ProgressPushed)
	assert.Zero(t, f.remote.Calls(stubs.OpUpsertProgress))

	report = f.reconcile(t)
	assert.Equal(t, 1, report.ProgressPushed)
}

// hookStorage runs a callback in the middle of a pass
type hookStorage struct {
	storage.Storage
	onList func()
}

func (h *hookStorage) ListUserBooks(ctx context.Context, userID string) ([]models.RemoteBook, error) {
	books, err := h.Storage.ListUserBooks(ctx, userID)
	if h.onList != nil {
		h.onList()
	}
	return books, err
}

func TestReconcile_KeepsMutationsMadeDuringPass(t *testing.T) {
	f := newFixture(t)
	f.addLocal(t, "old")
	f.addRemote(t, "old")

	hook := &hookStorage{Storage: f.remote}
	hook.onList = func() {
		// a book added while the pass waits on the network
		require.NoError(t, f.local.Update(func(doc *localstore.Document) error {
			doc.PutEntry(models.FB2Entry{BookInfo: models.BookInfo{ID: "new"}})
			doc.QueueUpload("new")
			return nil
		}))
		require.NoError(t, f.local.SaveSettings(models.Settings{FontSize: 24, Brightness: 80}))
	}
	engine := NewEngine(f.local, f.cache, hook, zap.NewNop(), nil)

	_, err := engine.Reconcile(context.Background(), user)
	require.NoError(t, err)

	assert.True(t, f.local.Contains("new"))
	assert.Equal(t, []string{"new"}, f.local.PendingUploads())
	assert.Equal(t, 24, f.local.Settings().FontSize)
}

func TestReconcile_DeletionDuringPassIsNotUndone(t *testing.T) {
	f := newFixture(t)
	f.addRemote(t, "r")

	hook := &hookStorage{Storage: f.remote}
	hook.onList = func() {
		require.NoError(t, f.local.AddPendingDeletion("r"))
	}
	engine := NewEngine(f.local, f.cache, hook, zap.NewNop(), nil)

	report, err := engine.Reconcile(context.Background(), user)
	require.NoError(t, err)

	assert.Empty(t, report.Pulled)
	assert.False(t, f.local.Contains("r"))
}

// slowStorage records how many list calls overlap
type slowStorage struct {
	storage.Storage
	active  atomic.Int32
	maxSeen atomic.Int32
}

func (s *slowStorage) ListUserBooks(ctx context.Context, userID string) ([]models.RemoteBook, error) {
	n := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		m := s.maxSeen.Load()
		if n <= m || s.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	return s.Storage.ListUserBooks(ctx, userID)
}

func TestReconcile_PassesAreSerialized(t *testing.T) {
	f := newFixture(t)
	slow := &slowStorage{Storage: f.remote}
	engine := NewEngine(f.local, f.cache, slow, zap.NewNop(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Reconcile(context.Background(), user)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), slow.maxSeen.Load())
	assert.Equal(t, 5, f.remote.Calls(stubs.OpListUserBooks))
	assert.Zero(t, engine.InProgress())
}

func TestReconcile_WaitingHonoursContext(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.gate.Acquire(context.Background(), 1))
	defer f.engine.gate.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.engine.Reconcile(ctx, user)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer waitCancel()
	assert.Error(t, f.engine.Wait(waitCtx))
}

func TestReconcile_Metrics(t *testing.T) {
	f := newFixture(t)
	reg := prometheus.NewRegistry()
	engine := NewEngine(f.local, f.cache, f.remote, zap.NewNop(), NewMetrics(reg))

	require.NoError(t, f.local.AddPendingDeletion("gone"))
	f.remote.FailNext(stubs.OpDeleteUserBook, "gone", 1)

	_, err := engine.Reconcile(context.Background(), user)
	require.NoError(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(engine.metrics.passes.WithLabelValues("partial")))
	assert.Equal(t, float64(1), testutil.ToFloat64(engine.metrics.remoteFailures.WithLabelValues("delete_book")))
	assert.Equal(t, float64(1), testutil.ToFloat64(engine.metrics.pending.WithLabelValues("deletions")))

	_, err = engine.Reconcile(context.Background(), user)
	require.NoError(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(engine.metrics.passes.WithLabelValues("ok")))
	assert.Equal(t, float64(0), testutil.ToFloat64(engine.metrics.pending.WithLabelValues("deletions")))
}
