// Package store persists captured clipboard text in a single SQLite file.
//
// The store is a dumb append log: it assigns ids and timestamps, returns the
// most recent records, and can be cleared. It does not deduplicate; that is
// the poller's job. Ids come from an AUTOINCREMENT column, so SQLite keeps the
// high-water mark in sqlite_sequence and a cleared table never reuses an id.
//
// All access goes through one RWMutex: Insert and Clear are exclusive,
// Recent/Get/Stats may run together. Releasing the write lock after a
// committed insert is what makes the record visible to any reader that is
// woken by a change pulse afterwards.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const (
	// DefaultLimit is used by Recent when the caller passes limit <= 0.
	DefaultLimit = 50
	// MaxLimit caps a single Recent call.
	MaxLimit = 1000

	busyTimeout = 5 * time.Second
)

var (
	ErrEmptyContent = errors.New("store: empty content")
	ErrNotFound     = errors.New("store: record not found")
	// ErrBusy is matched (via errors.Is) by write failures caused by SQLite
	// lock contention. Callers may retry these.
	ErrBusy = errors.New("store: database busy")
)

const schema = `
CREATE TABLE IF NOT EXISTS clipboard (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	content     TEXT NOT NULL CHECK (content <> ''),
	captured_at TEXT NOT NULL
);
`

// Record is one captured clipboard value. Records are never updated.
type Record struct {
	ID         int64
	Content    string
	CapturedAt time.Time
}

// Stats summarises the store for status output.
type Stats struct {
	Count int64
	// LastID is the highest id ever assigned, including ids of cleared records.
	LastID int64
}

type options struct {
	clock func() time.Time
}

// Option customises Open.
type Option func(*options)

// WithClock overrides the clock used for CapturedAt. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// Store is the SQLite-backed record log.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	now    func() time.Time
	logger *slog.Logger
}

// Open opens (creating if needed) the database file at path. Parent
// directories are created. Any error here means the store is unusable.
func Open(path string, opts ...Option) (*Store, error) {
	o := options{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	logger := slog.Default().With("component", "store")

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	logger.Info("store opened", "path", path)
	return &Store{db: db, path: path, now: o.clock, logger: logger}, nil
}

// dsn builds a modernc.org/sqlite DSN. Pragmas go in the DSN so that every
// pooled connection gets them, not just the first.
func dsn(path string) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeout.Milliseconds()))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	return "file:" + path + "?" + q.Encode()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Insert appends content and returns the stored record.
func (s *Store) Insert(ctx context.Context, content string) (Record, error) {
	if content == "" {
		return Record{}, ErrEmptyContent
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	at := s.now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO clipboard (content, captured_at) VALUES (?, ?)`,
		content, at.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Record{}, classify("insert", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Record{}, fmt.Errorf("insert: last id: %w", err)
	}
	return Record{ID: id, Content: content, CapturedAt: at}, nil
}

// Recent returns up to limit records, newest first. limit <= 0 selects
// DefaultLimit; larger values are capped at MaxLimit.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, captured_at FROM clipboard ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, min(limit, 64))
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("recent: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recent: %w", err)
	}
	return out, nil
}

// Get returns the record with the given id.
func (s *Store) Get(ctx context.Context, id int64) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, content, captured_at FROM clipboard WHERE id = ?`, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get %d: %w", id, err)
	}
	return r, nil
}

// Clear deletes every record and returns how many were removed. The id
// sequence is left untouched.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM clipboard`)
	if err != nil {
		return 0, classify("clear", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear: rows affected: %w", err)
	}
	s.logger.Info("history cleared", "removed", n)
	return n, nil
}

// Stats returns the record count and the id high-water mark.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM clipboard`).Scan(&st.Count); err != nil {
		return Stats{}, fmt.Errorf("stats: count: %w", err)
	}
	// sqlite_sequence has no row until the first insert.
	err := s.db.QueryRowContext(ctx,
		`SELECT seq FROM sqlite_sequence WHERE name = 'clipboard'`).Scan(&st.LastID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Stats{}, fmt.Errorf("stats: sequence: %w", err)
	}
	return st, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (Record, error) {
	var (
		r  Record
		ts string
	)
	if err := sc.Scan(&r.ID, &r.Content, &ts); err != nil {
		return Record{}, err
	}
	at, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return Record{}, fmt.Errorf("record %d: captured_at %q: %w", r.ID, ts, err)
	}
	r.CapturedAt = at
	return r, nil
}

// classify wraps a write error, tagging lock contention with ErrBusy.
func classify(op string, err error) error {
	if isBusy(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrBusy, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}
