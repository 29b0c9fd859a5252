// Package catalog is the metadata store: the authoritative SQLite catalog
// of documents, their typed metadata and their collections.
package catalog

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ziadkadry99/docindex/internal/db"
	"github.com/ziadkadry99/docindex/internal/errdefs"
	"github.com/ziadkadry99/docindex/internal/logging"
	"github.com/ziadkadry99/docindex/internal/metadata"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// maxBatchParams keeps IN (...) lists below SQLite's variable limit.
const maxBatchParams = 500

const documentColumns = `id, filename, collection, content, source_path, content_hash, vectorized, created_at, last_updated`

// Store provides CRUD operations over the document catalog.
type Store struct {
	db     *db.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB, logger *slog.Logger) *Store {
	return &Store{
		db:     database,
		logger: logging.OrDiscard(logger).With("store", errdefs.StoreMetadata),
		now:    time.Now,
	}
}

// SetClock replaces the time source used for created_at and last_updated.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Check verifies the catalog database is reachable.
func (s *Store) Check(ctx context.Context) error {
	return s.wrap("check", "", "", s.db.Check(ctx))
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type putMode int

const (
	modeCreate putMode = iota
	modeUpdate
	modeSave
)

// CreateDocument inserts doc and its metadata in one transaction. The
// collection row is created when missing. Fails with ErrAlreadyExists when
// the id is taken.
func (s *Store) CreateDocument(ctx context.Context, doc *Document) error {
	return s.put(ctx, "create", doc, modeCreate)
}

// UpdateDocument replaces an existing document row and all of its metadata.
func (s *Store) UpdateDocument(ctx context.Context, doc *Document) error {
	return s.put(ctx, "update", doc, modeUpdate)
}

// SaveDocument creates doc or replaces the existing row with the same id.
// created_at of an existing row is preserved.
func (s *Store) SaveDocument(ctx context.Context, doc *Document) error {
	return s.put(ctx, "save", doc, modeSave)
}

func (s *Store) put(ctx context.Context, op string, doc *Document, mode putMode) error {
	if doc.ID == "" || doc.Collection == "" {
		return s.wrap(op, doc.Collection, doc.ID, fmt.Errorf("%w: id and collection are required", errdefs.ErrInvalidInput))
	}
	entries, err := metadata.EncodeMap(doc.Metadata)
	if err != nil {
		return s.wrap(op, doc.Collection, doc.ID, fmt.Errorf("%w: %w", errdefs.ErrInvalidInput, err))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.wrap(op, doc.Collection, doc.ID, fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback() //nolint:errcheck

	now := s.now().UTC()
	if err := ensureCollection(ctx, tx, doc.Collection, nil, now); err != nil {
		return s.wrap(op, doc.Collection, doc.ID, err)
	}

	var createdAt, lastUpdated string
	err = tx.QueryRowContext(ctx, `SELECT created_at, last_updated FROM documents WHERE id = ?`, doc.ID).
		Scan(&createdAt, &lastUpdated)
	exists := err == nil
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return s.wrap(op, doc.Collection, doc.ID, fmt.Errorf("reading existing row: %w", err))
	}

	switch {
	case exists && mode == modeCreate:
		return s.wrap(op, doc.Collection, doc.ID, errdefs.ErrAlreadyExists)
	case !exists && mode == modeUpdate:
		return s.wrap(op, doc.Collection, doc.ID, errdefs.ErrNotFound)
	}

	if exists {
		if prev, err := parseTime(lastUpdated); err == nil && now.Before(prev) {
			now = prev
		}
		if created, err := parseTime(createdAt); err == nil {
			doc.CreatedAt = created
		} else {
			doc.CreatedAt = now
		}
		doc.LastUpdated = now

		_, err = tx.ExecContext(ctx, `
			UPDATE documents SET filename = ?, collection = ?, content = ?, source_path = ?,
				content_hash = ?, vectorized = ?, created_at = ?, last_updated = ?
			WHERE id = ?`,
			doc.Filename, doc.Collection, nullString(doc.Content), doc.SourcePath,
			doc.ContentHash, boolInt(doc.Vectorized), formatTime(doc.CreatedAt), formatTime(doc.LastUpdated),
			doc.ID,
		)
		if err != nil {
			return s.wrap(op, doc.Collection, doc.ID, fmt.Errorf("updating document: %w", err))
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM document_metadata WHERE document_id = ?`, doc.ID); err != nil {
			return s.wrap(op, doc.Collection, doc.ID, fmt.Errorf("clearing metadata: %w", err))
		}
	} else {
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = now
		}
		doc.LastUpdated = now

		_, err = tx.ExecContext(ctx, `
			INSERT INTO documents (`+documentColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			doc.ID, doc.Filename, doc.Collection, nullString(doc.Content), doc.SourcePath,
			doc.ContentHash, boolInt(doc.Vectorized), formatTime(doc.CreatedAt), formatTime(doc.LastUpdated),
		)
		if err != nil {
			return s.wrap(op, doc.Collection, doc.ID, fmt.Errorf("inserting document: %w", err))
		}
	}

	if err := insertEntries(ctx, tx, doc.ID, entries); err != nil {
		return s.wrap(op, doc.Collection, doc.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return s.wrap(op, doc.Collection, doc.ID, fmt.Errorf("commit: %w", err))
	}
	return nil
}

func insertEntries(ctx context.Context, q querier, docID string, entries []metadata.Entry) error {
	for _, e := range entries {
		_, err := q.ExecContext(ctx, `
			INSERT INTO document_metadata (document_id, key, value, value_type)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(document_id, key) DO UPDATE SET value = excluded.value, value_type = excluded.value_type`,
			docID, e.Key, e.Value, string(e.Type),
		)
		if err != nil {
			return fmt.Errorf("writing metadata %q: %w", e.Key, err)
		}
	}
	return nil
}

// GetDocument returns the document with the given id, or ErrNotFound.
// Metadata fields that fail to decode are dropped and logged.
func (s *Store) GetDocument(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.wrap("get", "", id, errdefs.ErrNotFound)
	}
	if err != nil {
		return nil, s.wrap("get", "", id, err)
	}

	if err := s.attachMetadata(ctx, s.db, []*Document{doc}); err != nil {
		return nil, s.wrap("get", doc.Collection, id, err)
	}
	return doc, nil
}

// GetDocuments returns the documents that exist among ids, keyed by id.
func (s *Store) GetDocuments(ctx context.Context, ids []string) (map[string]*Document, error) {
	out := make(map[string]*Document, len(ids))
	for start := 0; start < len(ids); start += maxBatchParams {
		end := min(start+maxBatchParams, len(ids))
		chunk := ids[start:end]

		query := `SELECT ` + documentColumns + ` FROM documents WHERE id IN (` + placeholders(len(chunk)) + `)`
		docs, err := queryDocuments(ctx, s.db, query, stringArgs(chunk)...)
		if err != nil {
			return nil, s.wrap("get_many", "", "", err)
		}
		if err := s.attachMetadata(ctx, s.db, docs); err != nil {
			return nil, s.wrap("get_many", "", "", err)
		}
		for _, d := range docs {
			out[d.ID] = d
		}
	}
	return out, nil
}

// ListDocuments returns the documents of a collection ordered by id. An
// empty collection lists every collection.
func (s *Store) ListDocuments(ctx context.Context, collection string, filter *Filter) ([]*Document, error) {
	var (
		clauses []string
		args    []any
	)

	if collection != "" {
		clauses = append(clauses, "d.collection = ?")
		args = append(args, collection)
	}
	if filter == nil {
		filter = &Filter{}
	}
	if filter.Vectorized != nil {
		clauses = append(clauses, "d.vectorized = ?")
		args = append(args, boolInt(*filter.Vectorized))
	}
	if filter.Key != "" {
		value, typ, err := metadata.Encode(filter.Value)
		if err != nil {
			return nil, s.wrap("list", collection, "", fmt.Errorf("%w: %w", errdefs.ErrInvalidInput, err))
		}
		clauses = append(clauses, `EXISTS (SELECT 1 FROM document_metadata m
			WHERE m.document_id = d.id AND m.key = ? AND m.value = ? AND m.value_type = ?)`)
		args = append(args, filter.Key, value, string(typ))
	}

	query := "SELECT " + prefixed("d.", documentColumns) + " FROM documents d"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY d.id"

	switch {
	case filter.Limit > 0:
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	case filter.Offset > 0:
		query += fmt.Sprintf(" LIMIT -1 OFFSET %d", filter.Offset)
	}

	docs, err := queryDocuments(ctx, s.db, query, args...)
	if err != nil {
		return nil, s.wrap("list", collection, "", err)
	}
	if err := s.attachMetadata(ctx, s.db, docs); err != nil {
		return nil, s.wrap("list", collection, "", err)
	}
	return docs, nil
}

// ListSummaries returns one Summary per document of the collection, or of
// every collection when collection is empty.
func (s *Store) ListSummaries(ctx context.Context, collection string) ([]Summary, error) {
	query := `SELECT id, collection, vectorized,
			CASE WHEN content IS NULL OR content = '' THEN 0 ELSE 1 END,
			content_hash, source_path
		FROM documents`
	var args []any
	if collection != "" {
		query += " WHERE collection = ?"
		args = append(args, collection)
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.wrap("list_summaries", collection, "", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum                    Summary
			vectorized, hasContent int
		)
		if err := rows.Scan(&sum.ID, &sum.Collection, &vectorized, &hasContent, &sum.ContentHash, &sum.SourcePath); err != nil {
			return nil, s.wrap("list_summaries", collection, "", fmt.Errorf("scanning summary: %w", err))
		}
		sum.Vectorized = vectorized != 0
		sum.HasContent = hasContent != 0
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap("list_summaries", collection, "", err)
	}
	return out, nil
}

// UpsertMetadata inserts or replaces the given metadata keys of a document
// and bumps its last_updated.
func (s *Store) UpsertMetadata(ctx context.Context, id string, m metadata.Map) error {
	entries, err := metadata.EncodeMap(m)
	if err != nil {
		return s.wrap("upsert_metadata", "", id, fmt.Errorf("%w: %w", errdefs.ErrInvalidInput, err))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.wrap("upsert_metadata", "", id, fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback() //nolint:errcheck

	var lastUpdated string
	err = tx.QueryRowContext(ctx, `SELECT last_updated FROM documents WHERE id = ?`, id).Scan(&lastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return s.wrap("upsert_metadata", "", id, errdefs.ErrNotFound)
	}
	if err != nil {
		return s.wrap("upsert_metadata", "", id, err)
	}

	if err := insertEntries(ctx, tx, id, entries); err != nil {
		return s.wrap("upsert_metadata", "", id, err)
	}

	now := s.now().UTC()
	if prev, err := parseTime(lastUpdated); err == nil && now.Before(prev) {
		now = prev
	}
	if _, err := tx.ExecContext(ctx, `UPDATE documents SET last_updated = ? WHERE id = ?`, formatTime(now), id); err != nil {
		return s.wrap("upsert_metadata", "", id, fmt.Errorf("touching document: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return s.wrap("upsert_metadata", "", id, fmt.Errorf("commit: %w", err))
	}
	return nil
}

// SetVectorized records whether an embedding for the document is stored.
func (s *Store) SetVectorized(ctx context.Context, id string, vectorized bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE documents SET vectorized = ? WHERE id = ?`, boolInt(vectorized), id)
	if err != nil {
		return s.wrap("set_vectorized", "", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.wrap("set_vectorized", "", id, errdefs.ErrNotFound)
	}
	return nil
}

// DeleteDocument removes a document and its metadata in one transaction.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.wrap("delete", "", id, fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_metadata WHERE document_id = ?`, id); err != nil {
		return s.wrap("delete", "", id, fmt.Errorf("deleting metadata: %w", err))
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return s.wrap("delete", "", id, fmt.Errorf("deleting document: %w", err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.wrap("delete", "", id, errdefs.ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return s.wrap("delete", "", id, fmt.Errorf("commit: %w", err))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var (
		doc                    Document
		content                sql.NullString
		vectorized             int
		createdAt, lastUpdated string
	)
	err := row.Scan(&doc.ID, &doc.Filename, &doc.Collection, &content, &doc.SourcePath,
		&doc.ContentHash, &vectorized, &createdAt, &lastUpdated)
	if err != nil {
		return nil, err
	}
	doc.Content = content.String
	doc.Vectorized = vectorized != 0
	doc.CreatedAt, _ = parseTime(createdAt)
	doc.LastUpdated, _ = parseTime(lastUpdated)
	return &doc, nil
}

// queryDocuments reads every row before returning so the connection is
// free for the metadata query that follows.
func queryDocuments(ctx context.Context, q querier, query string, args ...any) ([]*Document, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func loadEntries(ctx context.Context, q querier, ids []string) (map[string][]metadata.Entry, error) {
	out := make(map[string][]metadata.Entry, len(ids))
	for start := 0; start < len(ids); start += maxBatchParams {
		end := min(start+maxBatchParams, len(ids))
		chunk := ids[start:end]

		rows, err := q.QueryContext(ctx, `
			SELECT document_id, key, value, value_type FROM document_metadata
			WHERE document_id IN (`+placeholders(len(chunk))+`)
			ORDER BY document_id, key`, stringArgs(chunk)...)
		if err != nil {
			return nil, fmt.Errorf("querying metadata: %w", err)
		}
		for rows.Next() {
			var (
				docID string
				e     metadata.Entry
				typ   string
			)
			if err := rows.Scan(&docID, &e.Key, &e.Value, &typ); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scanning metadata: %w", err)
			}
			e.Type = metadata.Type(typ)
			out[docID] = append(out[docID], e)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) attachMetadata(ctx context.Context, q querier, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	entries, err := loadEntries(ctx, q, ids)
	if err != nil {
		return err
	}
	for _, d := range docs {
		m, errs := metadata.DecodeEntries(entries[d.ID])
		for _, err := range errs {
			s.logger.Warn("dropping malformed metadata field", "doc_id", d.ID, "collection", d.Collection, "error", err)
		}
		d.Metadata = m
	}
	return nil
}

func (s *Store) wrap(op, collection, id string, err error) error {
	if err == nil {
		return nil
	}
	if isTransient(err) {
		err = errdefs.Unavailable(err)
	}
	return errdefs.Wrap(errdefs.StoreMetadata, op, collection, id, err)
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	msg := err.Error()
	for _, s := range []string{"database is locked", "SQLITE_BUSY", "database is closed", "database table is locked"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func stringArgs(ss []string) []any {
	args := make([]any, len(ss))
	for i, s := range ss {
		args[i] = s
	}
	return args
}

func prefixed(prefix, columns string) string {
	parts := strings.Split(columns, ", ")
	for i, p := range parts {
		parts[i] = prefix + p
	}
	return strings.Join(parts, ", ")
}
