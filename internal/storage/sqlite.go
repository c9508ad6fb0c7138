//go:build sqlite

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

const sqliteAvailable = true

// SQLiteSeries stores rows in a shared "series" table keyed by series name
// and tick. Several series may live in one database file.
type SQLiteSeries struct {
	path  string
	name  string
	width int

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteSeries(path, name string, width int) *SQLiteSeries {
	return &SQLiteSeries{path: path, name: name, width: width}
}

func newSQLiteSeries(path, name string, width int) (Series, error) {
	return NewSQLiteSeries(path, name, width), nil
}

func openSQLiteReader(path, name string) (RangeReader, error) {
	s := NewSQLiteSeries(path, name, -1)
	if err := s.Init(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteSeries) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}
	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}
	s.db = db
	return nil
}

func (s *SQLiteSeries) Append(ctx context.Context, tick int64, row []float64) error {
	if err := checkWidth(s.width, row); err != nil {
		return err
	}
	db, err := s.getDB()
	if err != nil {
		return err
	}
	rec := NewRow(tick, row)
	payload, err := EncodeRow(rec)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO series (name, tick, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name, tick) DO UPDATE SET
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, s.name, tick, rec.SchemaVersion, rec.CodecVersion, payload)
	return err
}

func (s *SQLiteSeries) Count(ctx context.Context) (int, error) {
	db, err := s.getDB()
	if err != nil {
		return 0, err
	}
	var n int
	err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM series WHERE name = ?`, s.name).Scan(&n)
	return n, err
}

func (s *SQLiteSeries) Range(ctx context.Context, start, n int) ([][]float64, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT payload FROM series WHERE name = ?
		ORDER BY tick LIMIT ? OFFSET ?
	`, s.name, n, start)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][]float64
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		row, err := DecodeRow(payload)
		if err != nil {
			return nil, fmt.Errorf("decode series %s: %w", s.name, err)
		}
		out = append(out, row.Values)
	}
	return out, rows.Err()
}

func (s *SQLiteSeries) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteSeries) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ErrNotInitialized
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS series (
			name TEXT NOT NULL,
			tick INTEGER NOT NULL,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (name, tick)
		);
	`)
	return err
}
