package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/bassista/go_docstore/internal/logger"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS records (
		id         TEXT PRIMARY KEY,
		kind       TEXT NOT NULL,
		attributes TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		position   INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_records_position ON records(position);
`

// SQLiteEngine stores a document in a SQLite database file.
type SQLiteEngine struct{}

func NewSQLiteEngine() *SQLiteEngine {
	return &SQLiteEngine{}
}

func (e *SQLiteEngine) Name() string { return "sqlite" }

func (e *SQLiteEngine) Ext() string { return ".sqlite" }

// Open binds to an existing database and checks it against schema.
func (e *SQLiteEngine) Open(ctx context.Context, path string, schema Schema) (Store, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrStoreNotFound, path)
		}
		return nil, fmt.Errorf("stat database: %w", err)
	}

	s, err := openSQLite(ctx, path)
	if err != nil {
		return nil, err
	}

	var tables int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('meta', 'records')`).Scan(&tables)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("inspecting database: %w", err)
	}
	if tables != 2 {
		s.Close()
		return nil, fmt.Errorf("%w: %s is not a document store", ErrSchemaMismatch, path)
	}

	doc, err := s.Load(ctx)
	if err != nil {
		s.Close()
		return nil, err
	}
	if err := doc.CheckSchema(schema); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Create initializes a new database for schema at path.
func (e *SQLiteEngine) Create(ctx context.Context, path string, schema Schema) (Store, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrStoreExists, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	s, err := openSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		s.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	if err := s.Save(ctx, NewDocument(schema)); err != nil {
		s.Close()
		return nil, fmt.Errorf("writing initial document: %w", err)
	}

	logger.WithComponent("sqlite-store").Infof("created database at %s", path)
	return s, nil
}

// SQLiteRepository is an open SQLite-backed store.
type SQLiteRepository struct {
	path string
	db   *sql.DB

	mu     sync.Mutex
	closed bool
}

func openSQLite(ctx context.Context, path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	return &SQLiteRepository{path: path, db: db}, nil
}

func (s *SQLiteRepository) Path() string { return s.path }

// Load reads metadata and records in stored order.
func (s *SQLiteRepository) Load(ctx context.Context) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	meta := map[string]string{}
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return nil, fmt.Errorf("querying metadata: %w", err)
	}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning metadata: %w", err)
		}
		meta[k] = v
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("reading metadata: %w", err)
	}

	doc := Document{Metadata: Metadata{Model: meta["model"]}}
	if doc.Metadata.Version, err = atoiOrZero(meta["version"]); err != nil {
		return nil, fmt.Errorf("parsing version: %w", err)
	}
	lastUpdate, err := atoiOrZero(meta["last_update"])
	if err != nil {
		return nil, fmt.Errorf("parsing last update: %w", err)
	}
	doc.Metadata.LastUpdate = int64(lastUpdate)

	rows, err = s.db.QueryContext(ctx,
		`SELECT id, kind, attributes, updated_at FROM records ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec Record
		var attrs string
		if err := rows.Scan(&rec.ID, &rec.Kind, &attrs, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		if err := json.Unmarshal([]byte(attrs), &rec.Attributes); err != nil {
			return nil, fmt.Errorf("decoding attributes of %s: %w", rec.ID, err)
		}
		doc.Records = append(doc.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}

	doc.ApplyDefaults()
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("validate database: %w", err)
	}
	return &doc, nil
}

// Save replaces the stored document inside one transaction.
func (s *SQLiteRepository) Save(ctx context.Context, doc *Document) error {
	if doc == nil {
		return errors.New("document is nil")
	}
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("validate before save: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM records`); err != nil {
		return fmt.Errorf("clearing records: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO records (id, kind, attributes, updated_at, position) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, rec := range doc.Records {
		attrs, err := json.Marshal(rec.Attributes)
		if err != nil {
			return fmt.Errorf("encoding attributes of %s: %w", rec.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, rec.ID, rec.Kind, string(attrs), rec.UpdatedAt, i); err != nil {
			return fmt.Errorf("inserting record %s: %w", rec.ID, err)
		}
	}

	meta := map[string]string{
		"model":       doc.Metadata.Model,
		"version":     strconv.Itoa(doc.Metadata.Version),
		"last_update": strconv.FormatInt(doc.Metadata.LastUpdate, 10),
	}
	for k, v := range meta {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`, k, v)
		if err != nil {
			return fmt.Errorf("writing metadata %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing document: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteRepository) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func atoiOrZero(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
