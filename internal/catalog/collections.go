package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ziadkadry99/docindex/internal/errdefs"
)

// EnsureCollection creates the collection if it does not exist. A non-empty
// metadata map replaces the stored one.
func (s *Store) EnsureCollection(ctx context.Context, name string, md map[string]string) error {
	if name == "" {
		return s.wrap("ensure_collection", name, "", fmt.Errorf("%w: collection name is required", errdefs.ErrInvalidInput))
	}
	return s.wrap("ensure_collection", name, "", ensureCollection(ctx, s.db, name, md, s.now().UTC()))
}

func ensureCollection(ctx context.Context, q querier, name string, md map[string]string, now time.Time) error {
	mdJSON := "{}"
	if len(md) > 0 {
		b, err := json.Marshal(md)
		if err != nil {
			return fmt.Errorf("marshalling collection metadata: %w", err)
		}
		mdJSON = string(b)
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO collections (name, metadata, created_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET metadata = excluded.metadata
		WHERE excluded.metadata != '{}'`,
		name, mdJSON, formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("ensuring collection %q: %w", name, err)
	}
	return nil
}

// GetCollection returns one collection with its document count.
func (s *Store) GetCollection(ctx context.Context, name string) (*Collection, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT c.name, c.metadata, c.created_at, COUNT(d.id)
		FROM collections c LEFT JOIN documents d ON d.collection = c.name
		WHERE c.name = ?
		GROUP BY c.name`, name)
	c, err := scanCollection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.wrap("get_collection", name, "", errdefs.ErrNotFound)
	}
	if err != nil {
		return nil, s.wrap("get_collection", name, "", err)
	}
	return c, nil
}

// ListCollections returns every collection ordered by name.
func (s *Store) ListCollections(ctx context.Context) ([]Collection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.name, c.metadata, c.created_at, COUNT(d.id)
		FROM collections c LEFT JOIN documents d ON d.collection = c.name
		GROUP BY c.name
		ORDER BY c.name`)
	if err != nil {
		return nil, s.wrap("list_collections", "", "", err)
	}
	defer rows.Close()

	var out []Collection
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, s.wrap("list_collections", "", "", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap("list_collections", "", "", err)
	}
	return out, nil
}

func scanCollection(row rowScanner) (*Collection, error) {
	var (
		c         Collection
		mdJSON    string
		createdAt string
	)
	if err := row.Scan(&c.Name, &mdJSON, &createdAt, &c.DocumentCount); err != nil {
		return nil, err
	}
	c.Metadata = map[string]string{}
	if err := json.Unmarshal([]byte(mdJSON), &c.Metadata); err != nil {
		return nil, fmt.Errorf("decoding metadata of collection %q: %w", c.Name, err)
	}
	c.CreatedAt, _ = parseTime(createdAt)
	return &c, nil
}

// CollectionStats reports document counts, the latest update and how often
// each metadata key occurs in the collection.
func (s *Store) CollectionStats(ctx context.Context, name string) (*CollectionStats, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM collections WHERE name = ?`, name).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.wrap("collection_stats", name, "", errdefs.ErrNotFound)
	}
	if err != nil {
		return nil, s.wrap("collection_stats", name, "", err)
	}

	stats := &CollectionStats{Name: name, MetadataKeys: map[string]int{}}
	var latest sql.NullString
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(vectorized), 0), MAX(last_updated)
		FROM documents WHERE collection = ?`, name).
		Scan(&stats.Documents, &stats.Vectorized, &latest)
	if err != nil {
		return nil, s.wrap("collection_stats", name, "", err)
	}
	if latest.Valid {
		if t, err := parseTime(latest.String); err == nil {
			stats.LastUpdated = &t
		}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.key, COUNT(*)
		FROM document_metadata m JOIN documents d ON d.id = m.document_id
		WHERE d.collection = ?
		GROUP BY m.key`, name)
	if err != nil {
		return nil, s.wrap("collection_stats", name, "", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			key   string
			count int
		)
		if err := rows.Scan(&key, &count); err != nil {
			return nil, s.wrap("collection_stats", name, "", err)
		}
		stats.MetadataKeys[key] = count
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap("collection_stats", name, "", err)
	}
	return stats, nil
}
