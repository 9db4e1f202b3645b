// Package migrations embeds the goose migrations of the remote library schema
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"net/url"
	"strconv"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/pressly/goose/v3"
)

//go:embed *.sql
var FS embed.FS

// Dir is where new migration files are created
const Dir = "migrations"

// Target is a ClickHouse server to migrate
type Target struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	TLS      bool
}

// DSN renders the clickhouse:// connection string for database/sql
func (t Target) DSN() string {
	q := url.Values{}
	q.Set("dial_timeout", "10s")
	q.Set("max_execution_time", "60")
	if t.TLS {
		q.Set("secure", "true")
	}
	u := url.URL{
		Scheme:   "clickhouse",
		User:     url.UserPassword(t.User, t.Password),
		Host:     t.Host + ":" + strconv.Itoa(t.Port),
		Path:     "/" + t.Database,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// Open connects and pings the target
func Open(ctx context.Context, t Target) (*sql.DB, error) {
	db, err := sql.Open("clickhouse", t.DSN())
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping clickhouse %s:%d: %w", t.Host, t.Port, err)
	}
	return db, nil
}

// Provider runs the embedded migrations against db
func Provider(db *sql.DB) (*goose.Provider, error) {
	return goose.NewProvider(goose.DialectClickHouse, db, FS)
}

// Up applies every pending embedded migration
func Up(ctx context.Context, db *sql.DB) ([]*goose.MigrationResult, error) {
	p, err := Provider(db)
	if err != nil {
		return nil, err
	}
	return p.Up(ctx)
}
