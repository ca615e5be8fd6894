package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/dshills/codescope/internal/embedder"
	"github.com/dshills/codescope/pkg/types"
)

// ErrClosed is returned by operations on a closed store
var ErrClosed = errors.New("store closed")

// maxHashesPerQuery keeps IN (...) lists well below SQLite's variable limit
const maxHashesPerQuery = 500

// Store is a SQLite-backed embedding store. It implements
// embedder.VectorStore and is safe for concurrent use.
type Store struct {
	db   *sql.DB
	path string
}

var _ embedder.VectorStore = (*Store)(nil)

// Stats describes the contents of a store
type Stats struct {
	Path          string `json:"path"`
	SchemaVersion string `json:"schema_version"`
	BuildMode     string `json:"build_mode"`
	VecVersion    string `json:"vec_version,omitempty"`
	Embeddings    int    `json:"embeddings"`
	Models        int    `json:"models"`
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return db, nil
}

// Open opens (creating if needed) the store at path and applies pending
// migrations. Parent directories are created.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create store dir: %v", types.ErrIO, err)
		}
	}
	db, err := openDatabase(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open store %s: %v", types.ErrIO, path, err)
	}
	if err := ApplyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Path returns the database file path
func (s *Store) Path() string { return s.path }

// GetEmbeddings returns the stored vectors for hashes produced by the given
// provider and model. Hashes with no stored vector are absent from the map.
func (s *Store) GetEmbeddings(ctx context.Context, provider, model string, hashes []string) (map[string][]float32, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	out := make(map[string][]float32, len(hashes))
	for batch := range batches(hashes, maxHashesPerQuery) {
		query := `SELECT hash, vector FROM embeddings WHERE provider = ? AND model = ? AND hash IN (` + placeholders(len(batch)) + `)`
		args := make([]any, 0, len(batch)+2)
		args = append(args, provider, model)
		for _, h := range batch {
			args = append(args, h)
		}

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to query embeddings: %w", err)
		}
		for rows.Next() {
			var hash string
			var blob []byte
			if err := rows.Scan(&hash, &blob); err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("failed to scan embedding: %w", err)
			}
			out[hash] = deserializeVector(blob)
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// PutEmbeddings upserts embeddings in a single transaction
func (s *Store) PutEmbeddings(ctx context.Context, embeddings []*embedder.Embedding) error {
	if s.db == nil {
		return ErrClosed
	}
	if len(embeddings) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO embeddings (hash, provider, model, dimension, vector)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(hash, provider, model) DO UPDATE SET
			dimension = excluded.dimension,
			vector = excluded.vector
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, e := range embeddings {
		if e == nil || e.Hash == "" || len(e.Vector) == 0 {
			return fmt.Errorf("%w: embedding without hash or vector", types.ErrInvalidArgument)
		}
		if _, err := stmt.ExecContext(ctx, e.Hash, e.Provider, e.Model, len(e.Vector), serializeVector(e.Vector)); err != nil {
			return fmt.Errorf("failed to upsert embedding %s: %w", e.Hash, err)
		}
	}
	return tx.Commit()
}

// Prune deletes every embedding for provider/model whose hash is not in keep
// and returns the number of rows removed.
func (s *Store) Prune(ctx context.Context, provider, model string, keep []string) (int, error) {
	if s.db == nil {
		return 0, ErrClosed
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `CREATE TEMP TABLE IF NOT EXISTS keep_hashes (hash TEXT PRIMARY KEY)`); err != nil {
		return 0, fmt.Errorf("failed to create keep table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM keep_hashes`); err != nil {
		return 0, err
	}
	for _, h := range keep {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO keep_hashes (hash) VALUES (?)`, h); err != nil {
			return 0, err
		}
	}
	res, err := tx.ExecContext(ctx, `
		DELETE FROM embeddings
		WHERE provider = ? AND model = ? AND hash NOT IN (SELECT hash FROM keep_hashes)
	`, provider, model)
	if err != nil {
		return 0, fmt.Errorf("failed to prune embeddings: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), tx.Commit()
}

// Meta returns a metadata value, or "" when unset
func (s *Store) Meta(ctx context.Context, key string) (string, error) {
	if s.db == nil {
		return "", ErrClosed
	}
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return v, err
}

// SetMeta sets a metadata key
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	if s.db == nil {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// Stats reports row counts and build information
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	st := &Stats{Path: s.path, BuildMode: BuildMode}

	v, err := SchemaVersion(ctx, s.db)
	if err != nil {
		return nil, err
	}
	st.SchemaVersion = v.String()

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&st.Embeddings); err != nil {
		return nil, fmt.Errorf("failed to count embeddings: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT provider || '/' || model) FROM embeddings`).Scan(&st.Models); err != nil {
		return nil, fmt.Errorf("failed to count models: %w", err)
	}
	if VectorExtensionAvailable {
		if err := s.db.QueryRowContext(ctx, `SELECT vec_version()`).Scan(&st.VecVersion); err != nil {
			return nil, fmt.Errorf("failed to read vec_version: %w", err)
		}
	}
	return st, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

// batches yields consecutive sub-slices of at most size elements
func batches(items []string, size int) iter.Seq[[]string] {
	return func(yield func([]string) bool) {
		for start := 0; start < len(items); start += size {
			end := min(start+size, len(items))
			if !yield(items[start:end]) {
				return
			}
		}
	}
}
