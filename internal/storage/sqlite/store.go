package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"kanban/internal/models"
	"kanban/internal/snapshot"
)

// Store persists manager snapshots in a SQLite database file.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open initializes a new SQLite store and runs the required migrations.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("empty database path")
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if err := ensureDir(dbPath); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=ON", dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(0)

	s := &Store{db: conn, logger: logger}
	if err := s.migrate(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return s, nil
}

// Close releases the database resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func ensureDir(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS items (
            id INTEGER PRIMARY KEY,
            kind TEXT NOT NULL,
            title TEXT NOT NULL DEFAULT '',
            description TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'NEW',
            start_time DATETIME,
            duration_minutes INTEGER NOT NULL DEFAULT 0,
            end_time DATETIME,
            parent_id INTEGER
        );`,
		`CREATE INDEX IF NOT EXISTS idx_items_parent ON items(parent_id);`,
		`CREATE TABLE IF NOT EXISTS history (
            position INTEGER PRIMARY KEY,
            item_id INTEGER NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS meta (
            key TEXT PRIMARY KEY,
            value TEXT NOT NULL
        );`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Save replaces the stored snapshot with snap in a single transaction.
func (s *Store) Save(ctx context.Context, snap snapshot.Snapshot) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range []string{`DELETE FROM items`, `DELETE FROM history`, `DELETE FROM meta`} {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clear snapshot: %w", err)
		}
	}

	insertItem, err := tx.PrepareContext(ctx, `INSERT INTO items(id, kind, title, description, status, start_time, duration_minutes, end_time, parent_id)
        VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare item insert: %w", err)
	}
	defer insertItem.Close()

	for _, r := range snap.Records {
		_, err = insertItem.ExecContext(ctx, r.ID, string(r.Kind), r.Title, r.Description, string(r.Status),
			nullTime(r.StartTime), r.DurationMinutes, nullTime(r.EndTime), nullInt(r.ParentID))
		if err != nil {
			return fmt.Errorf("insert item %d: %w", r.ID, err)
		}
	}

	for pos, id := range snap.History {
		if _, err = tx.ExecContext(ctx, `INSERT INTO history(position, item_id) VALUES(?, ?)`, pos, id); err != nil {
			return fmt.Errorf("insert history: %w", err)
		}
	}

	if _, err = tx.ExecContext(ctx, `INSERT INTO meta(key, value) VALUES('last_id', ?)`, strconv.FormatInt(snap.LastID, 10)); err != nil {
		return fmt.Errorf("insert last id: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	s.logger.Debug("snapshot saved", slog.Int("items", len(snap.Records)), slog.Int("history", len(snap.History)))
	return nil
}

// Load reads the stored snapshot. An empty database yields an empty snapshot.
func (s *Store) Load(ctx context.Context) (snapshot.Snapshot, error) {
	var snap snapshot.Snapshot

	rows, err := s.db.QueryContext(ctx, `SELECT id, kind, title, description, status, start_time, duration_minutes, end_time, parent_id
        FROM items ORDER BY id`)
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r          snapshot.Record
			kind       string
			status     string
			start, end sql.NullTime
			parent     sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &kind, &r.Title, &r.Description, &status, &start, &r.DurationMinutes, &end, &parent); err != nil {
			return snapshot.Snapshot{}, fmt.Errorf("scan item: %w", err)
		}
		r.Kind = models.Kind(kind)
		r.Status = models.Status(status)
		r.StartTime = timePtr(start)
		r.EndTime = timePtr(end)
		if parent.Valid {
			p := parent.Int64
			r.ParentID = &p
		}
		snap.Records = append(snap.Records, r)
	}
	if err := rows.Err(); err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("list items: %w", err)
	}

	history, err := s.db.QueryContext(ctx, `SELECT item_id FROM history ORDER BY position`)
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("list history: %w", err)
	}
	defer history.Close()
	for history.Next() {
		var id int64
		if err := history.Scan(&id); err != nil {
			return snapshot.Snapshot{}, fmt.Errorf("scan history: %w", err)
		}
		snap.History = append(snap.History, id)
	}
	if err := history.Err(); err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("list history: %w", err)
	}

	var lastID string
	err = s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'last_id'`).Scan(&lastID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return snapshot.Snapshot{}, fmt.Errorf("get last id: %w", err)
	default:
		if snap.LastID, err = strconv.ParseInt(lastID, 10, 64); err != nil {
			return snapshot.Snapshot{}, fmt.Errorf("parse last id: %w", err)
		}
	}
	return snap, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
