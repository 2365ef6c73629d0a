// Package store is a small document store for waste items and categories.
// Documents are kept as JSON in SQLite; there are no cross-call transactions.
package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/menta2k/waste-sorter/pkg/catalog"
	"github.com/menta2k/waste-sorter/pkg/types"
)

var (
	// ErrNotFound is returned when a search matches no document.
	ErrNotFound = errors.New("item not found")
	// ErrSeedFileMissing is returned when the seed JSON file does not exist.
	ErrSeedFileMissing = errors.New("seed file missing")
)

// Store manages the item and category collections.
type Store struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
	mu     sync.RWMutex
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for informational messages.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Open creates or opens the database at path. Use ":memory:" for a
// throwaway store.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS items (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		search_text TEXT NOT NULL DEFAULT '',
		doc TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_items_name ON items(name);

	CREATE TABLE IF NOT EXISTS categories (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		doc TEXT NOT NULL
	);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return err
	}
	return s.migrateSearchText(ctx)
}

// migrateSearchText adds and backfills search_text on databases created
// before the column existed.
func (s *Store) migrateSearchText(ctx context.Context) error {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pragma_table_info('items') WHERE name = 'search_text'`).Scan(&n)
	if err != nil {
		return fmt.Errorf("failed to inspect items table: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := s.db.ExecContext(ctx,
		`ALTER TABLE items ADD COLUMN search_text TEXT NOT NULL DEFAULT ''`); err != nil {
		return fmt.Errorf("failed to add search_text: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT seq, doc FROM items`)
	if err != nil {
		return fmt.Errorf("failed to query items: %w", err)
	}
	texts := map[int64]string{}
	for rows.Next() {
		var seq int64
		var doc string
		if err := rows.Scan(&seq, &doc); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan item: %w", err)
		}
		var item types.WasteItem
		if err := json.Unmarshal([]byte(doc), &item); err != nil {
			rows.Close()
			return fmt.Errorf("failed to decode item: %w", err)
		}
		texts[seq] = searchText(item)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for seq, text := range texts {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE items SET search_text = ? WHERE seq = ?`, text, seq); err != nil {
			return fmt.Errorf("failed to backfill search_text: %w", err)
		}
	}
	if len(texts) > 0 {
		s.logger.Info("backfilled search text", zap.Int("items", len(texts)))
	}
	return nil
}

// searchText is the normalized name followed by the normalized associates,
// one per line. Normalize strips newlines, so a query never spans two entries.
func searchText(item types.WasteItem) string {
	parts := make([]string, 0, len(item.Associates)+1)
	parts = append(parts, catalog.Normalize(item.Name))
	for _, a := range item.Associates {
		parts = append(parts, catalog.Normalize(a))
	}
	return strings.Join(parts, "\n")
}

// Count returns the number of items.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count items: %w", err)
	}
	return n, nil
}

// AddItem inserts item, assigning a new ID when it has none. The stored item
// is returned.
func (s *Store) AddItem(ctx context.Context, item types.WasteItem) (types.WasteItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.insertItem(ctx, s.db, &item); err != nil {
		return types.WasteItem{}, err
	}
	return item, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) insertItem(ctx context.Context, ex execer, item *types.WasteItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	doc, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}
	_, err = ex.ExecContext(ctx,
		`INSERT INTO items (id, name, search_text, doc) VALUES (?, ?, ?, ?)`,
		item.ID, item.Name, searchText(*item), string(doc))
	if err != nil {
		return fmt.Errorf("failed to insert item %q: %w", item.Name, err)
	}
	return nil
}

// InsertItems inserts items in one batch.
func (s *Store) InsertItems(ctx context.Context, items []types.WasteItem) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin insert: %w", err)
	}
	for i := range items {
		if err := s.insertItem(ctx, tx, &items[i]); err != nil {
			tx.Rollback()
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit insert: %w", err)
	}
	return len(items), nil
}

// LoadItemsFromJSON seeds the item collection from a JSON array file, but
// only when the collection is empty. It returns the number of inserted items.
func (s *Store) LoadItemsFromJSON(ctx context.Context, path string) (int, error) {
	n, err := s.Count(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("store already contains data", zap.Int("items", n))
		return 0, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("%s: %w", path, ErrSeedFileMissing)
		}
		return 0, fmt.Errorf("failed to read seed file: %w", err)
	}

	var items []types.WasteItem
	if err := json.Unmarshal(data, &items); err != nil {
		return 0, fmt.Errorf("failed to parse seed file: %w", err)
	}

	inserted, err := s.InsertItems(ctx, items)
	if err != nil {
		return 0, err
	}
	s.logger.Info("inserted items", zap.Int("count", inserted), zap.String("source", path))
	return inserted, nil
}

// SearchItem returns the first item whose name or any associate contains
// query. Both sides are compared in catalog.Normalize form.
func (s *Store) SearchItem(ctx context.Context, query string) (*types.WasteItem, error) {
	q := catalog.Normalize(query)
	if q == "" {
		return nil, ErrNotFound
	}
	pattern := "%" + escapeLike(q) + "%"

	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT doc FROM items
		WHERE search_text LIKE ? ESCAPE '\'
		ORDER BY seq
		LIMIT 1`, pattern)

	var doc string
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to search items: %w", err)
	}

	var item types.WasteItem
	if err := json.Unmarshal([]byte(doc), &item); err != nil {
		return nil, fmt.Errorf("failed to decode item: %w", err)
	}
	return &item, nil
}

// AllItems returns every item in insertion order.
func (s *Store) AllItems(ctx context.Context) ([]types.WasteItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM items ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	items := []types.WasteItem{}
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		var item types.WasteItem
		if err := json.Unmarshal([]byte(doc), &item); err != nil {
			return nil, fmt.Errorf("failed to decode item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ExportToJSON writes every item to path as an indented JSON array and
// returns the number written.
func (s *Store) ExportToJSON(ctx context.Context, path string) (int, error) {
	items, err := s.AllItems(ctx)
	if err != nil {
		return 0, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(items); err != nil {
		return 0, fmt.Errorf("failed to encode items: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("failed to create export directory: %w", err)
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return 0, fmt.Errorf("failed to write export file: %w", err)
	}
	s.logger.Info("exported items", zap.Int("count", len(items)), zap.String("path", path))
	return len(items), nil
}

// SeedCategories replaces all categories with categories.
func (s *Store) SeedCategories(ctx context.Context, categories []types.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin seed: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM categories`); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to clear categories: %w", err)
	}
	for _, c := range categories {
		doc, err := json.Marshal(c)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to marshal category: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO categories (name, doc) VALUES (?, ?)`, c.Name, string(doc)); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert category %q: %w", c.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit categories: %w", err)
	}
	s.logger.Info("categories seeded", zap.Int("count", len(categories)))
	return nil
}

// Categories returns all categories in insertion order.
func (s *Store) Categories(ctx context.Context) ([]types.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM categories ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	cats := []types.Category{}
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		var c types.Category
		if err := json.Unmarshal([]byte(doc), &c); err != nil {
			return nil, fmt.Errorf("failed to decode category: %w", err)
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
