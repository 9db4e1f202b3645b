package localstore

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bookshelf/internal/models"
)

type failingBackend struct{}

func (failingBackend) Read() ([]byte, error)   { return nil, errors.New("disk on fire") }
func (failingBackend) Write(data []byte) error { return errors.New("disk on fire") }

// flakyBackend fails the next readFailures reads and then behaves like memory
type flakyBackend struct {
	MemoryBackend
	readFailures int
	writes       int
}

func (f *flakyBackend) Read() ([]byte, error) {
	if f.readFailures > 0 {
		f.readFailures--
		return nil, errors.New("i/o timeout")
	}
	return f.MemoryBackend.Read()
}

func (f *flakyBackend) Write(data []byte) error {
	f.writes++
	return f.MemoryBackend.Write(data)
}

func newMemoryStore() (*Store, *MemoryBackend) {
	backend := &MemoryBackend{}
	return New(backend, zap.NewNop()), backend
}

func TestStore_EmptyLoadsDefaults(t *testing.T) {
	store, _ := newMemoryStore()

	doc := store.Load()
	assert.Empty(t, doc.MyBooks)
	assert.Empty(t, doc.BookMetadata)
	assert.Empty(t, doc.ReadingProgress)
	assert.Empty(t, doc.PendingDeletions)
	assert.Empty(t, doc.PendingUploads)
	assert.Equal(t, models.DefaultSettings(), doc.Settings)
	assert.Equal(t, 18, doc.Settings.FontSize)
	assert.Equal(t, 100, doc.Settings.Brightness)
}

func TestStore_CorruptedStateFallsBackToDefaults(t *testing.T) {
	store, backend := newMemoryStore()
	require.NoError(t, backend.Write([]byte(`{"myBooks": [1, 2`)))

	doc := store.Load()
	assert.Empty(t, doc.MyBooks)
	assert.Equal(t, models.DefaultSettings(), doc.Settings)

	// the next mutation overwrites the corrupt record
	require.NoError(t, store.AddEntry(models.FB2Entry{BookInfo: models.BookInfo{ID: "1", Title: "Dune"}}))
	assert.Equal(t, []string{"1"}, store.BookIDs())
}

func TestStore_UnreadableBackend(t *testing.T) {
	store := New(failingBackend{}, zap.NewNop())

	assert.Equal(t, models.DefaultSettings(), store.Settings())
	assert.Error(t, store.SaveSettings(models.Settings{FontSize: 20, Brightness: 50}))
}

func TestStore_ReadErrorDropsMutation(t *testing.T) {
	backend := &flakyBackend{}
	store := New(backend, zap.NewNop())
	require.NoError(t, store.AddEntry(models.FB2Entry{BookInfo: models.BookInfo{ID: "a", Title: "Dune"}}))
	require.NoError(t, store.AddPendingDeletion("z"))
	writes := backend.writes

	backend.readFailures = 1
	err := store.SaveSettings(models.Settings{FontSize: 20, Brightness: 50})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "i/o timeout")
	assert.Equal(t, writes, backend.writes)

	assert.Equal(t, []string{"a"}, store.BookIDs())
	assert.Equal(t, []string{"z"}, store.PendingDeletions())
	assert.Equal(t, models.DefaultSettings(), store.Settings())

	// the backend recovered, so the retry lands
	require.NoError(t, store.SaveSettings(models.Settings{FontSize: 20, Brightness: 50}))
	assert.Equal(t, 50, store.Settings().Brightness)
	assert.Equal(t, []string{"a"}, store.BookIDs())
}

func TestStore_ReadErrorLoadsDefaults(t *testing.T) {
	backend := &flakyBackend{}
	store := New(backend, zap.NewNop())
	require.NoError(t, store.AddEntry(models.FB2Entry{BookInfo: models.BookInfo{ID: "a"}}))

	backend.readFailures = 1
	assert.Empty(t, store.BookIDs())
	assert.Equal(t, []string{"a"}, store.BookIDs())
}

func TestStore_ZeroBrightnessPersists(t *testing.T) {
	store, _ := newMemoryStore()

	require.NoError(t, store.SaveSettings(models.Settings{FontSize: 16, Brightness: 0, Theme: models.ThemeDark}))
	require.NoError(t, store.AddEntry(models.FB2Entry{BookInfo: models.BookInfo{ID: "1"}}))

	settings := store.Settings()
	assert.Equal(t, 0, settings.Brightness)
	assert.Equal(t, 16, settings.FontSize)
	assert.Equal(t, models.ThemeDark, settings.Theme)
}

func TestStore_PartialDocumentIsNormalized(t *testing.T) {
	store, backend := newMemoryStore()
	require.NoError(t, backend.Write([]byte(`{"myBooks":["1"],"settings":{"fontSize":22}}`)))

	doc := store.Load()
	assert.Equal(t, []string{"1"}, doc.MyBooks)
	assert.NotNil(t, doc.BookMetadata)
	assert.NotNil(t, doc.PendingUploads)
	assert.Equal(t, 22, doc.Settings.FontSize)
	assert.Equal(t, 100, doc.Settings.Brightness)
	assert.Equal(t, models.ThemeLight, doc.Settings.Theme)
}

func TestStore_MissingSettingsKeyUsesDefaults(t *testing.T) {
	store, backend := newMemoryStore()
	require.NoError(t, backend.Write([]byte(`{"myBooks":["1"]}`)))

	assert.Equal(t, models.DefaultSettings(), store.Settings())
}

func TestStore_AddEntryStripsInlineCover(t *testing.T) {
	store, backend := newMemoryStore()
	inline := "data:image/jpeg;base64," + strings.Repeat("A", 4096)

	require.NoError(t, store.AddEntry(models.FB2Entry{BookInfo: models.BookInfo{ID: "1", Title: "Dune", Cover: inline}}))
	require.NoError(t, store.AddEntry(models.PDFEntry{BookInfo: models.BookInfo{ID: "2", Title: "Manual", Cover: "https://covers.example/2.jpg"}}))

	e1, ok := store.Entry("1")
	require.True(t, ok)
	assert.Empty(t, e1.Info().Cover)

	e2, ok := store.Entry("2")
	require.True(t, ok)
	assert.Equal(t, "https://covers.example/2.jpg", e2.Info().Cover)
	assert.Equal(t, models.FormatPDF, e2.Format())

	raw, err := backend.Read()
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "data:image")
	assert.Less(t, len(raw), 1024)
}

func TestStore_AddEntryIsIdempotent(t *testing.T) {
	store, _ := newMemoryStore()
	entry := models.FB2Entry{BookInfo: models.BookInfo{ID: "1", Title: "Dune"}}

	require.NoError(t, store.AddEntry(entry))
	require.NoError(t, store.AddEntry(entry))

	assert.Equal(t, []string{"1"}, store.BookIDs())
}

func TestStore_RemoveEntryKeepsProgress(t *testing.T) {
	store, _ := newMemoryStore()
	require.NoError(t, store.AddEntry(models.FB2Entry{BookInfo: models.BookInfo{ID: "1"}}))
	require.NoError(t, store.SaveProgress(models.ReadingProgress{BookID: "1", CurrentPage: 3, TotalPages: 10, LastRead: 100}))

	require.NoError(t, store.RemoveEntry("1"))

	assert.False(t, store.Contains("1"))
	_, ok := store.Entry("1")
	assert.False(t, ok)
	p, ok := store.Progress("1")
	require.True(t, ok)
	assert.Equal(t, 3, p.CurrentPage)
}

func TestStore_PendingQueuesHaveSetSemantics(t *testing.T) {
	store, _ := newMemoryStore()

	require.NoError(t, store.AddPendingUpload("a"))
	require.NoError(t, store.AddPendingUpload("b"))
	require.NoError(t, store.AddPendingUpload("a"))
	require.NoError(t, store.AddPendingDeletion("c"))
	require.NoError(t, store.AddPendingDeletion("c"))

	assert.Equal(t, []string{"a", "b"}, store.PendingUploads())
	assert.Equal(t, []string{"c"}, store.PendingDeletions())

	require.NoError(t, store.RemovePendingUpload("a"))
	require.NoError(t, store.RemovePendingUpload("missing"))
	require.NoError(t, store.RemovePendingDeletion("c"))

	assert.Equal(t, []string{"b"}, store.PendingUploads())
	assert.Empty(t, store.PendingDeletions())
}

func TestStore_UpdateErrorWritesNothing(t *testing.T) {
	store, backend := newMemoryStore()
	require.NoError(t, store.AddEntry(models.FB2Entry{BookInfo: models.BookInfo{ID: "1"}}))
	before, err := backend.Read()
	require.NoError(t, err)

	err = store.Update(func(doc *Document) error {
		doc.RemoveEntry("1")
		return errors.New("abort")
	})
	require.Error(t, err)

	after, err := backend.Read()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestStore_EqualDocumentsSerializeIdentically(t *testing.T) {
	a, _ := newMemoryStore()
	b, _ := newMemoryStore()

	for _, s := range []*Store{a, b} {
		require.NoError(t, s.AddEntry(models.FB2Entry{BookInfo: models.BookInfo{ID: "1", Title: "One"}}))
		require.NoError(t, s.AddEntry(models.FB2Entry{BookInfo: models.BookInfo{ID: "2", Title: "Two"}}))
	}
	require.NoError(t, a.SaveProgress(models.ReadingProgress{BookID: "1", LastRead: 1}))
	require.NoError(t, a.SaveProgress(models.ReadingProgress{BookID: "2", LastRead: 2}))
	require.NoError(t, b.SaveProgress(models.ReadingProgress{BookID: "2", LastRead: 2}))
	require.NoError(t, b.SaveProgress(models.ReadingProgress{BookID: "1", LastRead: 1}))

	rawA, err := a.Raw()
	require.NoError(t, err)
	rawB, err := b.Raw()
	require.NoError(t, err)
	assert.Equal(t, string(rawA), string(rawB))
}

func TestStore_DocumentKeys(t *testing.T) {
	store, _ := newMemoryStore()
	require.NoError(t, store.AddEntry(models.PDFEntry{BookInfo: models.BookInfo{ID: "1", Title: "Manual"}}))

	raw, err := store.Raw()
	require.NoError(t, err)
	for _, key := range []string{`"myBooks"`, `"bookMetadata"`, `"readingProgress"`, `"settings"`, `"pendingDeletions"`, `"pendingUploads"`, `"format":"pdf"`} {
		assert.Contains(t, string(raw), key)
	}
}

func TestFileBackend_PersistsAcrossStores(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	backend, err := NewFileBackend(path)
	require.NoError(t, err)

	data, err := backend.Read()
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, New(backend, nil).AddEntry(models.FB2Entry{BookInfo: models.BookInfo{ID: "1"}}))

	reopened, err := NewFileBackend(path)
	require.NoError(t, err)
	assert.True(t, New(reopened, nil).Contains("1"))
}

func TestBoltBackend_PersistsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	backend, err := OpenBoltBackend(path)
	require.NoError(t, err)
	data, err := backend.Read()
	require.NoError(t, err)
	assert.Nil(t, data)

	store := New(backend, zap.NewNop())
	require.NoError(t, store.AddEntry(models.FB2Entry{BookInfo: models.BookInfo{ID: "1", Title: "Dune"}}))
	require.NoError(t, store.AddPendingUpload("1"))
	require.NoError(t, backend.Close())

	backend, err = OpenBoltBackend(path)
	require.NoError(t, err)
	defer backend.Close()

	store = New(backend, zap.NewNop())
	e, ok := store.Entry("1")
	require.True(t, ok)
	assert.Equal(t, "Dune", e.Info().Title)
	assert.Equal(t, []string{"1"}, store.PendingUploads())
}
