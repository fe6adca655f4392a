// Package sqlite keeps dated snapshots of the raw scrip master so a run can
// start from the last good master when the download fails.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNoSnapshot is returned by Latest on an empty store.
var ErrNoSnapshot = errors.New("sqlite: no master snapshot")

// WriterConfig configures the snapshot store.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/scripmaster.db"
	Keep   int    // snapshots retained by Prune; default 5
}

// SnapshotStore is a single-connection SQLite store of raw master bodies.
type SnapshotStore struct {
	mu   sync.Mutex
	db   *sql.DB
	keep int
}

// DB returns the underlying sql.DB for health checks.
func (s *SnapshotStore) DB() *sql.DB { return s.db }

// New opens the database with WAL mode and creates the schema.
func New(cfg WriterConfig) (*SnapshotStore, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	keep := cfg.Keep
	if keep <= 0 {
		keep = 5
	}
	slog.Info("sqlite: opened snapshot store", "path", cfg.DBPath)
	return &SnapshotStore{db: db, keep: keep}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS master_snapshots (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			fetched_at INTEGER NOT NULL,
			source     TEXT    NOT NULL,
			size       INTEGER NOT NULL,
			body       BLOB    NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_master_snapshots_fetched ON master_snapshots(fetched_at);
	`)
	return err
}

// Save stores body and prunes old snapshots. Returns the new snapshot id.
func (s *SnapshotStore) Save(ctx context.Context, fetchedAt time.Time, source string, body []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO master_snapshots (fetched_at, source, size, body) VALUES (?, ?, ?, ?)`,
		fetchedAt.UnixMilli(), source, len(body), body,
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite insert snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM master_snapshots WHERE id NOT IN (
			SELECT id FROM master_snapshots ORDER BY fetched_at DESC, id DESC LIMIT ?
		)`, s.keep,
	); err != nil {
		return 0, fmt.Errorf("sqlite prune snapshots: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite commit: %w", err)
	}
	slog.Debug("sqlite: snapshot saved", "id", id, "bytes", len(body), "source", source)
	return id, nil
}

// Latest returns the newest snapshot body and when it was fetched.
func (s *SnapshotStore) Latest(ctx context.Context) ([]byte, time.Time, error) {
	var (
		ms   int64
		body []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT fetched_at, body FROM master_snapshots ORDER BY fetched_at DESC, id DESC LIMIT 1`,
	).Scan(&ms, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, ErrNoSnapshot
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("sqlite latest snapshot: %w", err)
	}
	return body, time.UnixMilli(ms), nil
}

// Count returns the number of retained snapshots.
func (s *SnapshotStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM master_snapshots`).Scan(&n)
	return n, err
}

// Ping checks the database is reachable.
func (s *SnapshotStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close closes the database.
func (s *SnapshotStore) Close() error { return s.db.Close() }
