package localstore

import (
	"bookshelf/internal/models"
)

// Document is the single persisted record holding all local library state
type Document struct {
	MyBooks          []string                          `json:"myBooks"`
	BookMetadata     map[string]models.EntryRecord     `json:"bookMetadata"`
	ReadingProgress  map[string]models.ReadingProgress `json:"readingProgress"`
	Settings         models.Settings                   `json:"settings"`
	PendingDeletions []string                          `json:"pendingDeletions"`
	PendingUploads   []string                          `json:"pendingUploads"`
}

// NewDocument returns the empty default document
func NewDocument() Document {
	return Document{
		MyBooks:          []string{},
		BookMetadata:     make(map[string]models.EntryRecord),
		ReadingProgress:  make(map[string]models.ReadingProgress),
		Settings:         models.DefaultSettings(),
		PendingDeletions: []string{},
		PendingUploads:   []string{},
	}
}

// normalize fills fields an older or partial document left unset.
// Brightness 0 is a valid setting and is kept as is.
func (d *Document) normalize() {
	defaults := models.DefaultSettings()
	if d.MyBooks == nil {
		d.MyBooks = []string{}
	}
	if d.BookMetadata == nil {
		d.BookMetadata = make(map[string]models.EntryRecord)
	}
	if d.ReadingProgress == nil {
		d.ReadingProgress = make(map[string]models.ReadingProgress)
	}
	if d.PendingDeletions == nil {
		d.PendingDeletions = []string{}
	}
	if d.PendingUploads == nil {
		d.PendingUploads = []string{}
	}
	if d.Settings.FontSize <= 0 {
		d.Settings.FontSize = defaults.FontSize
	}
	if d.Settings.Theme == "" {
		d.Settings.Theme = defaults.Theme
	}
	if d.Settings.ReaderMode == "" {
		d.Settings.ReaderMode = defaults.ReaderMode
	}
}

// Clone returns a deep copy
func (d Document) Clone() Document {
	out := Document{
		MyBooks:          append([]string{}, d.MyBooks...),
		BookMetadata:     make(map[string]models.EntryRecord, len(d.BookMetadata)),
		ReadingProgress:  make(map[string]models.ReadingProgress, len(d.ReadingProgress)),
		Settings:         d.Settings,
		PendingDeletions: append([]string{}, d.PendingDeletions...),
		PendingUploads:   append([]string{}, d.PendingUploads...),
	}
	for id, rec := range d.BookMetadata {
		out.BookMetadata[id] = rec
	}
	for id, p := range d.ReadingProgress {
		out.ReadingProgress[id] = p
	}
	return out
}

// HasBook reports library membership
func (d *Document) HasBook(id string) bool {
	return containsID(d.MyBooks, id)
}

// Entry returns the metadata of a book in the library
func (d *Document) Entry(id string) (models.Entry, bool) {
	if !d.HasBook(id) {
		return nil, false
	}
	rec, ok := d.BookMetadata[id]
	if !ok {
		return nil, false
	}
	return rec.Entry(), true
}

// PutEntry adds the book to the library and stores its metadata.
// Inline image covers are stripped; their bytes belong in the book cache.
func (d *Document) PutEntry(e models.Entry) {
	rec := models.RecordOf(e)
	if models.IsInlineImage(rec.Cover) {
		rec.Cover = ""
	}
	d.MyBooks = addID(d.MyBooks, rec.ID)
	d.BookMetadata[rec.ID] = rec
}

// RemoveEntry drops the book from the library. Reading progress is kept so a
// re-added book resumes where it was left.
func (d *Document) RemoveEntry(id string) {
	d.MyBooks = removeID(d.MyBooks, id)
	delete(d.BookMetadata, id)
}

// QueueUpload records that the book must be pushed to the remote store
func (d *Document) QueueUpload(id string) {
	d.PendingUploads = addID(d.PendingUploads, id)
}

// QueueDeletion records that the book must be deleted from the remote store
func (d *Document) QueueDeletion(id string) {
	d.PendingDeletions = addID(d.PendingDeletions, id)
}

func (d *Document) DropPendingUpload(id string) {
	d.PendingUploads = removeID(d.PendingUploads, id)
}

func (d *Document) DropPendingDeletion(id string) {
	d.PendingDeletions = removeID(d.PendingDeletions, id)
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func addID(ids []string, id string) []string {
	if containsID(ids, id) {
		return ids
	}
	return append(ids, id)
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
