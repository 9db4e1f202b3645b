package migrations

import (
	"io/fs"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTargetDSN(t *testing.T) {
	dsn := Target{Host: "ch.local", Port: 9440, Database: "books", User: "svc", Password: "p@ss word", TLS: true}.DSN()

	u, err := url.Parse(dsn)
	require.NoError(t, err)
	assert.Equal(t, "clickhouse", u.Scheme)
	assert.Equal(t, "ch.local:9440", u.Host)
	assert.Equal(t, "/books", u.Path)
	pass, _ := u.User.Password()
	assert.Equal(t, "p@ss word", pass)
	assert.Equal(t, "true", u.Query().Get("secure"))

	plain := Target{Host: "localhost", Port: 9000, Database: "default", User: "default"}.DSN()
	u, err = url.Parse(plain)
	require.NoError(t, err)
	assert.Empty(t, u.Query().Get("secure"))
}

func TestEmbeddedMigrations(t *testing.T) {
	files, err := fs.Glob(FS, "*.sql")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"00001_create_user_books.sql",
		"00002_create_reading_progress.sql",
		"00003_create_favorites.sql",
		"00004_create_quotes.sql",
	}, files)

	for _, name := range files {
		data, err := FS.ReadFile(name)
		require.NoError(t, err)
		assert.Contains(t, string(data), "-- +goose Up", name)
		assert.Contains(t, string(data), "-- +goose Down", name)
	}
}
