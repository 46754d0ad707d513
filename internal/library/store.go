package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("asset not found")

// Store is the SQLite index of saved assets.
// All methods are safe for concurrent use.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// OpenStore opens (and creates) the index at dbPath. ":memory:" is supported for tests.
func OpenStore(dbPath string) (*Store, error) {
	connStr := dbPath
	if dbPath == ":memory:" {
		connStr = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One connection keeps every caller on the same in-memory database
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS assets (
		id TEXT PRIMARY KEY,
		uri TEXT NOT NULL UNIQUE,
		filename TEXT NOT NULL,
		album TEXT NOT NULL,
		kind TEXT NOT NULL,
		duration_seconds REAL DEFAULT 0,
		size_bytes INTEGER DEFAULT 0,
		width INTEGER DEFAULT 0,
		height INTEGER DEFAULT 0,
		remote_url TEXT DEFAULT '',
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_assets_created ON assets(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_assets_album ON assets(album);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Insert adds an asset to the index
func (s *Store) Insert(ctx context.Context, a Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO assets (
			id, uri, filename, album, kind, duration_seconds, size_bytes,
			width, height, remote_url, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.URI, a.Filename, a.Album, a.Kind, a.DurationSeconds, a.SizeBytes,
		a.Width, a.Height, a.RemoteURL, a.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert asset: %w", err)
	}
	return nil
}

// SetRemoteURL records where the asset was mirrored
func (s *Store) SetRemoteURL(ctx context.Context, id, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `UPDATE assets SET remote_url = ? WHERE id = ?`, url, id); err != nil {
		return fmt.Errorf("update remote url: %w", err)
	}
	return nil
}

// Recent returns up to count assets of kind (all kinds when empty), newest first
func (s *Store) Recent(ctx context.Context, kind string, count int) ([]Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, uri, filename, album, kind, duration_seconds, size_bytes,
		width, height, remote_url, created_at FROM assets`
	var args []any
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, count)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query assets: %w", err)
	}
	defer rows.Close()

	var assets []Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

// Get returns one asset by ID
func (s *Store) Get(ctx context.Context, id string) (Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT id, uri, filename, album, kind, duration_seconds, size_bytes,
		width, height, remote_url, created_at FROM assets WHERE id = ?`, id)
	a, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Asset{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return a, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAsset(row scanner) (Asset, error) {
	var a Asset
	var created int64
	err := row.Scan(&a.ID, &a.URI, &a.Filename, &a.Album, &a.Kind, &a.DurationSeconds,
		&a.SizeBytes, &a.Width, &a.Height, &a.RemoteURL, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Asset{}, err
		}
		return Asset{}, fmt.Errorf("scan asset: %w", err)
	}
	a.CreatedAt = time.Unix(0, created)
	return a, nil
}
