// Package parser turns raw book files into readable content.
//
// Format parsing itself lives outside this module; hosts register a Parser
// per format. Only PDF is built in, since its content is the raw bytes.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"bookshelf/internal/models"
)

// ErrUnsupportedFormat is returned when no parser is registered for a format
var ErrUnsupportedFormat = errors.New("parser: unsupported format")

// Parsed is the content and metadata extracted from a book file
type Parsed struct {
	Text         string
	Cover        string // data URI or empty
	Title        string
	Author       string
	Series       string
	SeriesNumber float64
	PDF          []byte
}

// Parser extracts content from a raw file
type Parser interface {
	Parse(data []byte) (Parsed, error)
}

// Func adapts a function to the Parser interface
type Func func(data []byte) (Parsed, error)

func (f Func) Parse(data []byte) (Parsed, error) { return f(data) }

// Registry selects a parser by book format
type Registry struct {
	mu      sync.RWMutex
	parsers map[models.Format]Parser
}

// NewRegistry returns a registry with the PDF parser installed
func NewRegistry() *Registry {
	return &Registry{parsers: map[models.Format]Parser{
		models.FormatPDF: Func(ParsePDF),
	}}
}

// Register installs p for format, replacing any previous parser
func (r *Registry) Register(format models.Format, p Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parsers[format] = p
}

// Parse runs the parser registered for format
func (r *Registry) Parse(format models.Format, data []byte) (Parsed, error) {
	r.mu.RLock()
	p, ok := r.parsers[format]
	r.mu.RUnlock()
	if !ok {
		return Parsed{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	parsed, err := p.Parse(data)
	if err != nil {
		return Parsed{}, fmt.Errorf("parse %s: %w", format, err)
	}
	return parsed, nil
}

var pdfMagic = []byte("%PDF-")

// ParsePDF checks the file signature and returns the bytes as content
func ParsePDF(data []byte) (Parsed, error) {
	if !bytes.HasPrefix(data, pdfMagic) {
		return Parsed{}, errors.New("not a PDF file")
	}
	return Parsed{PDF: data}, nil
}
