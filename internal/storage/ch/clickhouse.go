package ch

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"bookshelf/internal/models"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/google/uuid"
)

// ClickHouseDB is the remote library store.
//
// Every table is ReplacingMergeTree keyed by (user_id, book_id), or
// (user_id, quote_id) for quotes, so an upsert is a plain INSERT and reads
// use FINAL. Deleting inserts a tombstone row, which makes deletes idempotent.
type ClickHouseDB struct {
	conn clickhouse.Conn
	now  func() time.Time
}

// NewClickHouseDB creates a new ClickHouse database connection
func NewClickHouseDB(host string, port int, database, user, password string, useTLS bool) (*ClickHouseDB, error) {
	addr := fmt.Sprintf("%s:%d", host, port)

	options := &clickhouse.Options{
		Addr:     []string{addr},
		Protocol: clickhouse.Native,
		Auth: clickhouse.Auth{
			Database: database,
			Username: user,
			Password: password,
		},
		DialTimeout: 10 * time.Second,
	}

	// Configure TLS if enabled
	if useTLS {
		options.TLS = &tls.Config{
			InsecureSkipVerify: false,
		}
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	// Test the connection
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &ClickHouseDB{conn: conn, now: time.Now}, nil
}

// Initialize is a no-op - tables are managed via migrations
func (db *ClickHouseDB) Initialize(ctx context.Context) error {
	// Tables are managed via migrations (see migrations/ directory)
	// This method is kept for interface compatibility
	return nil
}

// ListUserBooks returns the live book rows of a user
func (db *ClickHouseDB) ListUserBooks(ctx context.Context, userID string) ([]models.RemoteBook, error) {
	rows, err := db.conn.Query(ctx, `
		SELECT book_id, title, author, cover, format, series, series_number, status
		FROM user_books FINAL
		WHERE user_id = ? AND deleted = 0
		ORDER BY book_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user books: %w", err)
	}
	defer rows.Close()

	var books []models.RemoteBook
	for rows.Next() {
		var (
			book   models.RemoteBook
			format string
		)
		if err := rows.Scan(&book.BookID, &book.Title, &book.Author, &book.Cover,
			&format, &book.Series, &book.SeriesNumber, &book.Status); err != nil {
			return nil, fmt.Errorf("failed to scan user book: %w", err)
		}
		book.Format = models.Format(format)
		books = append(books, book)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user books: %w", err)
	}
	return books, nil
}

// UpsertUserBook writes the current version of a book row
func (db *ClickHouseDB) UpsertUserBook(ctx context.Context, userID string, book models.RemoteBook) error {
	format := string(book.Format)
	if format == "" {
		format = string(models.FormatFB2)
	}
	err := db.conn.Exec(ctx, `
		INSERT INTO user_books
			(user_id, book_id, title, author, cover, format, series, series_number, status, deleted, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		userID, book.BookID, book.Title, book.Author, book.Cover, format,
		book.Series, book.SeriesNumber, book.Status, db.now())
	if err != nil {
		return fmt.Errorf("failed to upsert user book: %w", err)
	}
	return nil
}

// DeleteUserBook writes a tombstone for the book row
func (db *ClickHouseDB) DeleteUserBook(ctx context.Context, userID, bookID string) error {
	err := db.conn.Exec(ctx, `
		INSERT INTO user_books
			(user_id, book_id, title, author, cover, format, series, series_number, status, deleted, updated_at)
		VALUES (?, ?, '', '', '', 'fb2', '', 0, '', 1, ?)`,
		userID, bookID, db.now())
	if err != nil {
		return fmt.Errorf("failed to delete user book: %w", err)
	}
	return nil
}

// ListProgress returns the reading progress rows of a user
func (db *ClickHouseDB) ListProgress(ctx context.Context, userID string) ([]models.ReadingProgress, error) {
	rows, err := db.conn.Query(ctx, `
		SELECT book_id, current_page, total_pages, last_read, scroll_percentage
		FROM reading_progress FINAL
		WHERE user_id = ?
		ORDER BY book_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list progress: %w", err)
	}
	defer rows.Close()

	var progress []models.ReadingProgress
	for rows.Next() {
		var (
			p                       models.ReadingProgress
			currentPage, totalPages int64
		)
		if err := rows.Scan(&p.BookID, &currentPage, &totalPages, &p.LastRead, &p.ScrollPercentage); err != nil {
			return nil, fmt.Errorf("failed to scan progress: %w", err)
		}
		p.CurrentPage = int(currentPage)
		p.TotalPages = int(totalPages)
		progress = append(progress, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate progress: %w", err)
	}
	return progress, nil
}

// UpsertProgress writes a progress row. The table is versioned by last_read,
// so an older write arriving late never replaces a newer one.
func (db *ClickHouseDB) UpsertProgress(ctx context.Context, userID string, p models.ReadingProgress) error {
	err := db.conn.Exec(ctx, `
		INSERT INTO reading_progress
			(user_id, book_id, current_page, total_pages, last_read, scroll_percentage)
		VALUES (?, ?, ?, ?, ?, ?)`,
		userID, p.BookID, int64(p.CurrentPage), int64(p.TotalPages), p.LastRead, p.ScrollPercentage)
	if err != nil {
		return fmt.Errorf("failed to upsert progress: %w", err)
	}
	return nil
}

// AddFavorite stars a book. The existence check and the insert are not
// atomic; two racing adds both write, and the table keeps one row.
func (db *ClickHouseDB) AddFavorite(ctx context.Context, userID string, fav models.Favorite) (bool, error) {
	exists, err := db.IsFavorite(ctx, userID, fav.BookID)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	now := db.now()
	err = db.conn.Exec(ctx, `
		INSERT INTO favorites
			(user_id, book_id, book_title, book_author, book_cover, created_at, deleted, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)`,
		userID, fav.BookID, fav.Title, fav.Author, fav.Cover, now, now)
	if err != nil {
		return false, fmt.Errorf("failed to add favorite: %w", err)
	}
	return true, nil
}

// RemoveFavorite writes a tombstone for the favorite
func (db *ClickHouseDB) RemoveFavorite(ctx context.Context, userID, bookID string) error {
	now := db.now()
	err := db.conn.Exec(ctx, `
		INSERT INTO favorites
			(user_id, book_id, book_title, book_author, book_cover, created_at, deleted, updated_at)
		VALUES (?, ?, '', '', '', ?, 1, ?)`,
		userID, bookID, now, now)
	if err != nil {
		return fmt.Errorf("failed to remove favorite: %w", err)
	}
	return nil
}

// ListFavorites returns the live favorites of a user, newest first
func (db *ClickHouseDB) ListFavorites(ctx context.Context, userID string) ([]models.Favorite, error) {
	rows, err := db.conn.Query(ctx, `
		SELECT book_id, book_title, book_author, book_cover, created_at
		FROM favorites FINAL
		WHERE user_id = ? AND deleted = 0
		ORDER BY created_at DESC, book_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list favorites: %w", err)
	}
	defer rows.Close()

	var faves []models.Favorite
	for rows.Next() {
		var (
			f       models.Favorite
			created time.Time
		)
		if err := rows.Scan(&f.BookID, &f.Title, &f.Author, &f.Cover, &created); err != nil {
			return nil, fmt.Errorf("failed to scan favorite: %w", err)
		}
		f.CreatedAt = created.UnixMilli()
		faves = append(faves, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate favorites: %w", err)
	}
	return faves, nil
}

func (db *ClickHouseDB) IsFavorite(ctx context.Context, userID, bookID string) (bool, error) {
	var live uint64
	err := db.conn.QueryRow(ctx, `
		SELECT count()
		FROM favorites FINAL
		WHERE user_id = ? AND book_id = ? AND deleted = 0`, userID, bookID).Scan(&live)
	if err != nil {
		return false, fmt.Errorf("failed to check favorite: %w", err)
	}
	return live > 0, nil
}

// AddQuote stores q under a new id
func (db *ClickHouseDB) AddQuote(ctx context.Context, userID string, q models.Quote) (models.Quote, error) {
	now := db.now()
	q.ID = uuid.NewString()
	q.CreatedAt = now.UnixMilli()
	err := db.conn.Exec(ctx, `
		INSERT INTO quotes
			(user_id, quote_id, book_id, book_title, book_author, text, note, color, created_at, deleted, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		userID, q.ID, q.BookID, q.BookTitle, q.BookAuthor, q.Text, q.Note, q.Color, now, now)
	if err != nil {
		return models.Quote{}, fmt.Errorf("failed to add quote: %w", err)
	}
	return q, nil
}

// DeleteQuote writes a tombstone for the quote
func (db *ClickHouseDB) DeleteQuote(ctx context.Context, userID, quoteID string) error {
	now := db.now()
	err := db.conn.Exec(ctx, `
		INSERT INTO quotes
			(user_id, quote_id, book_id, book_title, book_author, text, note, color, created_at, deleted, updated_at)
		VALUES (?, ?, '', '', '', '', '', '', ?, 1, ?)`,
		userID, quoteID, now, now)
	if err != nil {
		return fmt.Errorf("failed to delete quote: %w", err)
	}
	return nil
}

// ListQuotes returns the live quotes of a user newest first, only those of
// bookID when it is not empty
func (db *ClickHouseDB) ListQuotes(ctx context.Context, userID, bookID string) ([]models.Quote, error) {
	rows, err := db.conn.Query(ctx, `
		SELECT quote_id, book_id, book_title, book_author, text, note, color, created_at
		FROM quotes FINAL
		WHERE user_id = ? AND deleted = 0 AND (? = '' OR book_id = ?)
		ORDER BY created_at DESC, quote_id`, userID, bookID, bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to list quotes: %w", err)
	}
	defer rows.Close()

	var quotes []models.Quote
	for rows.Next() {
		var (
			q       models.Quote
			created time.Time
		)
		if err := rows.Scan(&q.ID, &q.BookID, &q.BookTitle, &q.BookAuthor, &q.Text, &q.Note, &q.Color, &created); err != nil {
			return nil, fmt.Errorf("failed to scan quote: %w", err)
		}
		q.CreatedAt = created.UnixMilli()
		quotes = append(quotes, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate quotes: %w", err)
	}
	return quotes, nil
}

// ChangeToken fingerprints the user's book rows, tombstones included, and
// progress rows
func (db *ClickHouseDB) ChangeToken(ctx context.Context, userID string) (string, error) {
	var (
		books, progress uint64
		updated         time.Time
		lastRead        int64
	)
	err := db.conn.QueryRow(ctx,
		`SELECT count(), max(updated_at) FROM user_books WHERE user_id = ?`, userID).
		Scan(&books, &updated)
	if err != nil {
		return "", fmt.Errorf("failed to read book change token: %w", err)
	}
	err = db.conn.QueryRow(ctx,
		`SELECT count(), max(last_read) FROM reading_progress WHERE user_id = ?`, userID).
		Scan(&progress, &lastRead)
	if err != nil {
		return "", fmt.Errorf("failed to read progress change token: %w", err)
	}
	return fmt.Sprintf("%d-%d-%d-%d", books, updated.UnixMilli(), progress, lastRead), nil
}

// Close closes the database connection
func (db *ClickHouseDB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
