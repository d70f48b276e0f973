// Package recipestore caches built recipe sets in SQLite, keyed by mask
// digest and search parameters, so restarts skip the neighbour search.
package recipestore

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/e7canasta/orion-care-sensor/modules/pixelheal/internal/recipe"
)

// schema.sql creates the recipe_sets table.
//
//go:embed schema.sql
var schemaSQL string

// Store is a SQLite-backed recipe cache.
type Store struct {
	db *sql.DB
}

// Entry describes one cached recipe set.
type Entry struct {
	Key         string
	Width       int
	Height      int
	RecipeCount int
	Degenerate  int
	CreatedAt   time.Time
}

// Open opens (or creates) the cache database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("recipestore: open %s: %w", path, err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("recipestore: init schema: %w", err)
	}

	slog.Debug("recipestore: cache opened", "path", path)
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the set stored under key. A miss is (nil, false, nil).
func (s *Store) Get(key string) (*recipe.Set, bool, error) {
	var payload []byte
	err := s.db.QueryRow(`SELECT payload FROM recipe_sets WHERE cache_key = ?`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("recipestore: get %s: %w", key, err)
	}

	set, err := Decode(payload)
	if err != nil {
		return nil, false, fmt.Errorf("recipestore: get %s: %w", key, err)
	}
	return set, true, nil
}

// Put stores set under key, replacing any previous value.
func (s *Store) Put(key string, set *recipe.Set) error {
	data, err := Encode(set)
	if err != nil {
		return err
	}

	query := `
		INSERT OR REPLACE INTO recipe_sets (cache_key, width, height, recipe_count, degenerate, payload)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.Exec(query, key, set.Width, set.Height, set.Len(), set.Degenerate(), data)
	if err != nil {
		return fmt.Errorf("recipestore: put %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	if _, err := s.db.Exec(`DELETE FROM recipe_sets WHERE cache_key = ?`, key); err != nil {
		return fmt.Errorf("recipestore: delete %s: %w", key, err)
	}
	return nil
}

// Entries lists cached sets, newest first.
func (s *Store) Entries() ([]Entry, error) {
	rows, err := s.db.Query(`
		SELECT cache_key, width, height, recipe_count, degenerate, created_at
		FROM recipe_sets
		ORDER BY created_at DESC, cache_key
	`)
	if err != nil {
		return nil, fmt.Errorf("recipestore: list: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var created float64
		if err := rows.Scan(&e.Key, &e.Width, &e.Height, &e.RecipeCount, &e.Degenerate, &created); err != nil {
			return nil, fmt.Errorf("recipestore: list: %w", err)
		}
		sec, frac := int64(created), created-float64(int64(created))
		e.CreatedAt = time.Unix(sec, int64(frac*1e9))
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
