package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatFB2, "fb2": FormatFB2, " PDF ": FormatPDF} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFormat("epub")
	assert.Error(t, err)
}

func TestReadingProgress(t *testing.T) {
	tests := []struct {
		name    string
		p       ReadingProgress
		percent int
		valid   bool
	}{
		{"unknown total", ReadingProgress{}, 0, true},
		{"position without total", ReadingProgress{CurrentPage: 3}, 0, false},
		{"first page", ReadingProgress{CurrentPage: 0, TotalPages: 4}, 25, true},
		{"last page", ReadingProgress{CurrentPage: 9, TotalPages: 10}, 100, true},
		{"past the end", ReadingProgress{CurrentPage: 10, TotalPages: 10}, 100, false},
		{"negative", ReadingProgress{CurrentPage: -1, TotalPages: 10}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.percent, tt.p.Percentage())
			assert.Equal(t, tt.valid, tt.p.Valid())
		})
	}
}

func TestNewerThan(t *testing.T) {
	a := ReadingProgress{LastRead: 10}
	b := ReadingProgress{LastRead: 20}
	assert.True(t, b.NewerThan(a))
	assert.False(t, a.NewerThan(b))
	assert.False(t, a.NewerThan(a))
}

func TestEntryVariants(t *testing.T) {
	info := BookInfo{ID: "1", Title: "T", Cover: "data:image/png;base64,AA"}

	pdf := NewEntry(FormatPDF, info)
	assert.IsType(t, PDFEntry{}, pdf)
	assert.False(t, pdf.Reflowable())

	stripped := WithCover(pdf, "")
	assert.IsType(t, PDFEntry{}, stripped)
	assert.Empty(t, stripped.Info().Cover)
	assert.Equal(t, info.Cover, pdf.Info().Cover)

	rec := RecordOf(pdf)
	assert.Equal(t, FormatPDF, rec.Format)
	assert.Equal(t, pdf, rec.Entry())

	unknown := EntryRecord{ID: "2", Format: "djvu"}
	assert.Equal(t, FormatFB2, unknown.Entry().Format())
}

func TestFontSizeFor(t *testing.T) {
	s := DefaultSettings()
	size, ok := s.FontSizeFor(FB2Entry{})
	assert.True(t, ok)
	assert.Equal(t, 18, size)

	_, ok = s.FontSizeFor(PDFEntry{})
	assert.False(t, ok)
}

func TestRemoteBookFrom(t *testing.T) {
	b := RemoteBookFrom(FB2Entry{BookInfo: BookInfo{ID: "7", Series: "S", SeriesNumber: 2}})
	assert.Equal(t, "Untitled", b.Title)
	assert.Equal(t, "Unknown", b.Author)
	assert.Equal(t, FormatFB2, b.Format)
	assert.Equal(t, "reading", b.Status)
	assert.Equal(t, float64(2), b.SeriesNumber)

	back := b.Entry()
	assert.Equal(t, "7", back.Info().ID)
	assert.Equal(t, "S", back.Info().Series)
}

func TestIsInlineImage(t *testing.T) {
	assert.True(t, IsInlineImage("data:image/jpeg;base64,/9j"))
	assert.False(t, IsInlineImage("https://example.com/c.jpg"))
	assert.False(t, IsInlineImage(""))
}

func TestCachedBookHasContent(t *testing.T) {
	assert.False(t, CachedBook{Cover: "data:image/png;base64,AA"}.HasContent())
	assert.True(t, CachedBook{Text: "x"}.HasContent())
	assert.True(t, CachedBook{PDFData: []byte("%PDF")}.HasContent())
}
