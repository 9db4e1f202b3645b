package models

import (
	"fmt"
	"math"
	"strings"
)

// Format identifies how a book's content is stored and rendered
type Format string

const (
	FormatFB2 Format = "fb2"
	FormatPDF Format = "pdf"
)

// ParseFormat normalizes a format name, defaulting to fb2 when empty
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fb2":
		return FormatFB2, nil
	case "pdf":
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("unknown book format %q", s)
	}
}

// inlineImagePrefix marks a cover carried as an embedded data URI
const inlineImagePrefix = "data:image"

// IsInlineImage reports whether a cover value embeds the image bytes
func IsInlineImage(cover string) bool {
	return strings.HasPrefix(cover, inlineImagePrefix)
}

// BookInfo is the metadata shared by every library entry
type BookInfo struct {
	ID           string
	Title        string
	Author       string
	Cover        string // small reference, or empty meaning "look in the book cache"
	Series       string
	SeriesNumber float64
}

// Entry is a book tracked in the user's library.
// Implementations are FB2Entry and PDFEntry.
type Entry interface {
	Info() BookInfo
	Format() Format
	// Reflowable reports whether the text can be re-laid out with reader
	// settings such as font size. PDF pages are fixed.
	Reflowable() bool
	withInfo(BookInfo) Entry
}

// FB2Entry is a reflowable text book
type FB2Entry struct {
	BookInfo
}

func (e FB2Entry) Info() BookInfo { return e.BookInfo }
func (e FB2Entry) Format() Format { return FormatFB2 }
func (e FB2Entry) Reflowable() bool { return true }
func (e FB2Entry) withInfo(info BookInfo) Entry { return FB2Entry{BookInfo: info} }

// PDFEntry is a fixed-layout book whose pages come from the cached PDF bytes
type PDFEntry struct {
	BookInfo
}

func (e PDFEntry) Info() BookInfo { return e.BookInfo }
func (e PDFEntry) Format() Format { return FormatPDF }
func (e PDFEntry) Reflowable() bool { return false }
func (e PDFEntry) withInfo(info BookInfo) Entry { return PDFEntry{BookInfo: info} }

// NewEntry builds the entry variant matching format
func NewEntry(format Format, info BookInfo) Entry {
	if format == FormatPDF {
		return PDFEntry{BookInfo: info}
	}
	return FB2Entry{BookInfo: info}
}

// WithCover returns a copy of e carrying a different cover value
func WithCover(e Entry, cover string) Entry {
	info := e.Info()
	info.Cover = cover
	return e.withInfo(info)
}

// EntryRecord is the flat serialized shape of an Entry, used in the local
// state document and on the wire to the remote library store
type EntryRecord struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Author       string  `json:"author"`
	Cover        string  `json:"cover"`
	Format       Format  `json:"format"`
	Series       string  `json:"series,omitempty"`
	SeriesNumber float64 `json:"seriesNumber,omitempty"`
}

// RecordOf flattens an entry
func RecordOf(e Entry) EntryRecord {
	info := e.Info()
	return EntryRecord{
		ID:           info.ID,
		Title:        info.Title,
		Author:       info.Author,
		Cover:        info.Cover,
		Format:       e.Format(),
		Series:       info.Series,
		SeriesNumber: info.SeriesNumber,
	}
}

// Entry rebuilds the typed variant. Unknown formats fall back to fb2.
func (r EntryRecord) Entry() Entry {
	format, err := ParseFormat(string(r.Format))
	if err != nil {
		format = FormatFB2
	}
	return NewEntry(format, BookInfo{
		ID:           r.ID,
		Title:        r.Title,
		Author:       r.Author,
		Cover:        r.Cover,
		Series:       r.Series,
		SeriesNumber: r.SeriesNumber,
	})
}

// ReadingProgress is the reading position for one book
type ReadingProgress struct {
	BookID           string  `json:"bookId"`
	CurrentPage      int     `json:"currentPage"`
	TotalPages       int     `json:"totalPages"`
	LastRead         int64   `json:"lastRead"` // unix milliseconds, conflict-resolution key
	ScrollPercentage float64 `json:"scrollPercentage,omitempty"`
}

// Percentage is the derived completion in the range 0..100
func (p ReadingProgress) Percentage() int {
	if p.TotalPages <= 0 {
		return 0
	}
	pct := int(math.Round(float64(p.CurrentPage+1) / float64(p.TotalPages) * 100))
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// Valid reports whether the position lies inside the book, or the total is
// still unknown
func (p ReadingProgress) Valid() bool {
	if p.TotalPages == 0 {
		return p.CurrentPage == 0
	}
	return p.CurrentPage >= 0 && p.CurrentPage < p.TotalPages
}

// NewerThan is the last-write-wins comparison: strictly greater timestamp
func (p ReadingProgress) NewerThan(other ReadingProgress) bool {
	return p.LastRead > other.LastRead
}

// Theme is the reader color scheme
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
	ThemeSepia Theme = "sepia"
	ThemeOLED  Theme = "oled"
)

// ReaderMode selects how reflowable text is laid out
type ReaderMode string

const (
	ReaderModeScroll ReaderMode = "scroll"
	ReaderModePaged  ReaderMode = "paged"
)

// Settings are the device-local reader preferences. Never synced.
type Settings struct {
	FontSize   int        `json:"fontSize"`
	Brightness int        `json:"brightness"`
	Theme      Theme      `json:"theme,omitempty"`
	ReaderMode ReaderMode `json:"readerMode,omitempty"`
}

// DefaultSettings returns the settings used before the user changes anything
func DefaultSettings() Settings {
	return Settings{
		FontSize:   18,
		Brightness: 100,
		Theme:      ThemeLight,
		ReaderMode: ReaderModeScroll,
	}
}

// FontSizeFor returns the font size to apply to e, false for fixed-layout books
func (s Settings) FontSizeFor(e Entry) (int, bool) {
	if !e.Reflowable() {
		return 0, false
	}
	return s.FontSize, true
}

// CachedBook is a binary cache record holding a book's large payloads
type CachedBook struct {
	ID        string
	Text      string // paragraphs separated by blank lines
	Cover     string // data URI or empty
	PDFData   []byte
	Timestamp int64 // unix milliseconds of the last write
}

// HasContent reports whether the record carries readable content and not
// just a cover
func (c CachedBook) HasContent() bool {
	return c.Text != "" || len(c.PDFData) > 0
}

// Favorite is a book the user starred. Favorites are kept remotely only and
// do not depend on library membership.
type Favorite struct {
	BookID    string
	Title     string
	Author    string
	Cover     string
	CreatedAt int64 // unix milliseconds
}

// Quote is a passage saved from a book together with an optional note
type Quote struct {
	ID         string
	BookID     string
	BookTitle  string
	BookAuthor string
	Text       string
	Note       string
	Color      string
	CreatedAt  int64 // unix milliseconds
}

// RemoteBook is one row of the remote per-user library
type RemoteBook struct {
	BookID       string
	Title        string
	Author       string
	Cover        string
	Format       Format
	Series       string
	SeriesNumber float64
	Status       string
}

// Entry converts the row into a local library entry
func (b RemoteBook) Entry() Entry {
	return EntryRecord{
		ID:           b.BookID,
		Title:        b.Title,
		Author:       b.Author,
		Cover:        b.Cover,
		Format:       b.Format,
		Series:       b.Series,
		SeriesNumber: b.SeriesNumber,
	}.Entry()
}

// RemoteBookFrom builds the upsert payload for an entry. Empty title and
// author get placeholders.
func RemoteBookFrom(e Entry) RemoteBook {
	info := e.Info()
	title := info.Title
	if title == "" {
		title = "Untitled"
	}
	author := info.Author
	if author == "" {
		author = "Unknown"
	}
	return RemoteBook{
		BookID:       info.ID,
		Title:        title,
		Author:       author,
		Cover:        info.Cover,
		Format:       e.Format(),
		Series:       info.Series,
		SeriesNumber: info.SeriesNumber,
		Status:       "reading",
	}
}
