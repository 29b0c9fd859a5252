package catalog

import (
	"context"
	"fmt"

	"github.com/ziadkadry99/docindex/internal/metadata"
)

// exportVersion is bumped when the Export layout changes.
const exportVersion = 1

// ExportAll copies every collection. Each collection is read inside its own
// transaction so its documents and metadata are consistent with each other.
func (s *Store) ExportAll(ctx context.Context) (*Export, error) {
	collections, err := s.ListCollections(ctx)
	if err != nil {
		return nil, err
	}

	exp := &Export{Version: exportVersion, ExportedAt: s.now().UTC()}
	for _, c := range collections {
		ce, err := s.exportCollection(ctx, c)
		if err != nil {
			return nil, s.wrap("export", c.Name, "", err)
		}
		exp.Collections = append(exp.Collections, *ce)
	}
	return exp, nil
}

func (s *Store) exportCollection(ctx context.Context, c Collection) (*CollectionExport, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	docs, err := queryDocuments(ctx, tx, `SELECT `+documentColumns+` FROM documents WHERE collection = ? ORDER BY id`, c.Name)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	entries, err := loadEntries(ctx, tx, ids)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	ce := &CollectionExport{Name: c.Name, Metadata: c.Metadata, Documents: make([]ExportedDocument, 0, len(docs))}
	for _, d := range docs {
		ed := ExportedDocument{
			ID:          d.ID,
			Filename:    d.Filename,
			SourcePath:  d.SourcePath,
			ContentHash: d.ContentHash,
			Vectorized:  d.Vectorized,
			CreatedAt:   d.CreatedAt,
			LastUpdated: d.LastUpdated,
			Metadata:    entries[d.ID],
		}
		if d.Content != "" {
			content := d.Content
			ed.Content = &content
		}
		if ed.Metadata == nil {
			ed.Metadata = []metadata.Entry{}
		}
		ce.Documents = append(ce.Documents, ed)
	}
	return ce, nil
}

// ImportAll writes an export back into the catalog, replacing documents with
// the same id. Each collection is imported atomically; a failed collection
// is reported in the result and does not stop the others.
func (s *Store) ImportAll(ctx context.Context, exp *Export) (*ImportResult, error) {
	if exp == nil {
		return &ImportResult{}, nil
	}
	if exp.Version > exportVersion {
		return nil, fmt.Errorf("unsupported export version %d", exp.Version)
	}

	res := &ImportResult{}
	for _, ce := range exp.Collections {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		n, skipped, err := s.importCollection(ctx, ce)
		res.Errors = append(res.Errors, skipped...)
		if err != nil {
			s.logger.Warn("collection import failed", "collection", ce.Name, "error", err)
			res.Errors = append(res.Errors, fmt.Sprintf("collection %s: %v", ce.Name, err))
			continue
		}
		res.Collections++
		res.Documents += n
	}
	return res, nil
}

func (s *Store) importCollection(ctx context.Context, ce CollectionExport) (int, []string, error) {
	if ce.Name == "" {
		return 0, nil, fmt.Errorf("collection without a name")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := s.now().UTC()
	if err := ensureCollection(ctx, tx, ce.Name, ce.Metadata, now); err != nil {
		return 0, nil, err
	}

	var skipped []string
	for _, ed := range ce.Documents {
		if ed.ID == "" {
			return 0, nil, fmt.Errorf("document without an id")
		}
		created, updated := ed.CreatedAt, ed.LastUpdated
		if created.IsZero() {
			created = now
		}
		if updated.IsZero() {
			updated = created
		}
		var content string
		if ed.Content != nil {
			content = *ed.Content
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO documents (`+documentColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				filename = excluded.filename, collection = excluded.collection,
				content = excluded.content, source_path = excluded.source_path,
				content_hash = excluded.content_hash, vectorized = excluded.vectorized,
				created_at = excluded.created_at, last_updated = excluded.last_updated`,
			ed.ID, ed.Filename, ce.Name, nullString(content), ed.SourcePath, ed.ContentHash,
			boolInt(ed.Vectorized), formatTime(created), formatTime(updated),
		)
		if err != nil {
			return 0, nil, fmt.Errorf("importing document %s: %w", ed.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM document_metadata WHERE document_id = ?`, ed.ID); err != nil {
			return 0, nil, fmt.Errorf("clearing metadata of %s: %w", ed.ID, err)
		}

		valid := make([]metadata.Entry, 0, len(ed.Metadata))
		for _, e := range ed.Metadata {
			if _, err := metadata.Decode(e.Value, e.Type); err != nil {
				skipped = append(skipped, fmt.Sprintf("document %s: key %s: %v", ed.ID, e.Key, err))
				continue
			}
			valid = append(valid, e)
		}
		if err := insertEntries(ctx, tx, ed.ID, valid); err != nil {
			return 0, nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, nil, fmt.Errorf("commit: %w", err)
	}
	return len(ce.Documents), skipped, nil
}
