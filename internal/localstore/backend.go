package localstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Backend persists the serialized state document.
// Read returns nil data and no error when nothing has been stored yet.
type Backend interface {
	Read() ([]byte, error)
	Write(data []byte) error
}

// FileBackend keeps the document in a single JSON file
type FileBackend struct {
	path string
}

// NewFileBackend creates a file backend, creating parent directories as needed
func NewFileBackend(path string) (*FileBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &FileBackend{path: path}, nil
}

func (f *FileBackend) Read() ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}
	return data, nil
}

// Write replaces the file atomically via rename
func (f *FileBackend) Write(data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".state-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// MemoryBackend keeps the document in memory. Used in tests.
type MemoryBackend struct {
	mu   sync.Mutex
	data []byte
}

func (m *MemoryBackend) Read() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, nil
	}
	return append([]byte(nil), m.data...), nil
}

func (m *MemoryBackend) Write(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append([]byte(nil), data...)
	return nil
}
