package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/woxQAQ/subgraph-abi/pkg/graph"
)

// SQLiteConfig holds SQLite connection options.
type SQLiteConfig struct {
	Path        string
	JournalMode string // WAL, DELETE, TRUNCATE
	Synchronous string // OFF, NORMAL, FULL
	BusyTimeout int    // in milliseconds
}

// DefaultSQLiteConfig returns the configuration used for a store under dataDir.
func DefaultSQLiteConfig(dataDir string) SQLiteConfig {
	return SQLiteConfig{
		Path:        filepath.Join(dataDir, "entities.db"),
		JournalMode: "WAL",
		Synchronous: "NORMAL",
		BusyTimeout: 5000,
	}
}

// SQLiteStore persists entities as JSON documents keyed by type and id.
type SQLiteStore struct {
	conn *sql.DB
}

// OpenSQLite opens or creates the database at cfg.Path.
func OpenSQLite(cfg SQLiteConfig) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_journal_mode=%s&_synchronous=%s&_busy_timeout=%d",
		cfg.Path, cfg.JournalMode, cfg.Synchronous, cfg.BusyTimeout)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	const schema = `
	CREATE TABLE IF NOT EXISTS entities (
		entity_type TEXT NOT NULL,
		id TEXT NOT NULL,
		data JSON NOT NULL,
		PRIMARY KEY (entity_type, id)
	);`
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStore{conn: conn}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, entityType, id string) (*graph.Entity, bool, error) {
	var data []byte
	err := s.conn.QueryRowContext(ctx,
		`SELECT data FROM entities WHERE entity_type = ? AND id = ?`, entityType, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s %q: %w", entityType, id, err)
	}
	e := graph.NewEntity()
	if err := json.Unmarshal(data, e); err != nil {
		return nil, false, fmt.Errorf("decode %s %q: %w", entityType, id, err)
	}
	return e, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, entityType, id string, e *graph.Entity) error {
	if e == nil {
		e = graph.NewEntity()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode %s %q: %w", entityType, id, err)
	}
	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO entities (entity_type, id, data) VALUES (?, ?, ?)
		ON CONFLICT (entity_type, id) DO UPDATE SET data = excluded.data`,
		entityType, id, data)
	if err != nil {
		return fmt.Errorf("set %s %q: %w", entityType, id, err)
	}
	return nil
}

func (s *SQLiteStore) Remove(ctx context.Context, entityType, id string) error {
	_, err := s.conn.ExecContext(ctx,
		`DELETE FROM entities WHERE entity_type = ? AND id = ?`, entityType, id)
	if err != nil {
		return fmt.Errorf("remove %s %q: %w", entityType, id, err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, entityType string) ([]*graph.Entity, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT data FROM entities WHERE entity_type = ? ORDER BY id`, entityType)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", entityType, err)
	}
	defer rows.Close()

	var out []*graph.Entity
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		e := graph.NewEntity()
		if err := json.Unmarshal(data, e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", entityType, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}
