package library

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"bookshelf/internal/models"
)

const maxExportName = 100

// Export writes every cached book of the library into a ZIP archive and
// returns how many were written. Books without cached content are skipped.
func (s *Service) Export(ctx context.Context, w io.Writer) (int, error) {
	zw := zip.NewWriter(w)
	used := make(map[string]bool)
	written := 0

	for _, entry := range s.Books() {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		info := entry.Info()
		cached, ok := s.cache.Get(ctx, info.ID)
		if !ok || !cached.HasContent() {
			s.logger.Debug("Skipping uncached book in export", zap.String("book_id", info.ID))
			continue
		}

		var data []byte
		ext := "fb2"
		if entry.Format() == models.FormatPDF && len(cached.PDFData) > 0 {
			data, ext = cached.PDFData, "pdf"
		} else if cached.Text != "" {
			data = simpleFB2(info.Title, info.Author, cached.Text)
		} else {
			continue
		}

		name := exportName(info) + "." + ext
		if used[name] {
			name = exportName(info) + "_" + info.ID + "." + ext
		}
		used[name] = true

		f, err := zw.Create(name)
		if err != nil {
			return written, fmt.Errorf("add %s to archive: %w", name, err)
		}
		if _, err := f.Write(data); err != nil {
			return written, fmt.Errorf("write %s to archive: %w", name, err)
		}
		written++
	}

	if err := zw.Close(); err != nil {
		return written, fmt.Errorf("finish archive: %w", err)
	}
	return written, nil
}

func exportName(info models.BookInfo) string {
	title := info.Title
	if title == "" {
		title = "book_" + info.ID
	}
	safe := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`<>:"/\|?*`, r) {
			return '_'
		}
		return r
	}, title)
	if utf8.RuneCountInString(safe) > maxExportName {
		safe = string([]rune(safe)[:maxExportName])
	}
	return safe
}

// simpleFB2 wraps plain paragraphs in a minimal FictionBook document
func simpleFB2(title, author, text string) []byte {
	if title == "" {
		title = "Untitled"
	}
	if author == "" {
		author = "Unknown"
	}
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<FictionBook xmlns="http://www.gribuser.ru/xml/fictionbook/2.0">` + "\n")
	b.WriteString("<description><title-info>")
	b.WriteString("<author><first-name>")
	writeEscaped(&b, author)
	b.WriteString("</first-name></author><book-title>")
	writeEscaped(&b, title)
	b.WriteString("</book-title></title-info></description>\n<body><section>\n")
	for _, p := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(p) == "" {
			continue
		}
		b.WriteString("<p>")
		writeEscaped(&b, p)
		b.WriteString("</p>\n")
	}
	b.WriteString("</section></body>\n</FictionBook>\n")
	return []byte(b.String())
}

func writeEscaped(b *strings.Builder, s string) {
	_ = xml.EscapeText(b, []byte(s))
}
