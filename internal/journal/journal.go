// Package journal appends one row per scheduler tick to a sqlite database.
// The relay never reads it back; it exists for operators.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// started_at is stored fixed-width in UTC so text order is time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Entry is one tick.
type Entry struct {
	ID        string
	StartedAt time.Time
	Category  string
	Title     string
	MediaURL  string
	MediaID   string
	Outcome   string
	Error     string
}

// Journal is a sqlite-backed tick log.
type Journal struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies migrations.
// ":memory:" works for tests.
func Open(ctx context.Context, path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	// one connection: keeps ":memory:" a single database and serialises writes
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping journal %s: %w", path, err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

func migrate(db *sql.DB) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Record appends e, assigning an ID when empty.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now()
	}
	_, err := j.db.ExecContext(ctx, `
INSERT INTO ticks (id, started_at, category, title, media_url, media_id, outcome, error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.StartedAt.UTC().Format(timeLayout), e.Category, e.Title, e.MediaURL, e.MediaID, e.Outcome, e.Error)
	if err != nil {
		return fmt.Errorf("record tick: %w", err)
	}
	return nil
}

// Recent returns up to n entries, newest first.
func (j *Journal) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		return nil, errors.New("n must be positive")
	}
	rows, err := j.db.QueryContext(ctx, `
SELECT id, started_at, category, title, media_url, media_id, outcome, error
FROM ticks
ORDER BY started_at DESC
LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query ticks: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			started string
		)
		if err := rows.Scan(&e.ID, &started, &e.Category, &e.Title, &e.MediaURL, &e.MediaID, &e.Outcome, &e.Error); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		e.StartedAt, err = time.Parse(timeLayout, started)
		if err != nil {
			return nil, fmt.Errorf("parse started_at %q: %w", started, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}
