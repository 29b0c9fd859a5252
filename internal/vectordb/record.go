package vectordb

import (
	"fmt"
	"strings"
	"time"

	"github.com/ziadkadry99/docindex/internal/metadata"
)

// Engine metadata keys. User metadata key k is stored as "m.k" (encoded
// value) and "t.k" (type tag).
const (
	keyFilename    = "_filename"
	keySourcePath  = "_source_path"
	keyContentHash = "_content_hash"
	keyCreatedAt   = "_created_at"
	keyLastUpdated = "_last_updated"

	valuePrefix = "m."
	typePrefix  = "t."
)

// Record is the typed view of a vector document, carrying enough of the
// catalog row to rebuild it from the vector store alone.
type Record struct {
	ID          string
	Filename    string
	Content     string
	SourcePath  string
	ContentHash string
	Metadata    metadata.Map
	CreatedAt   time.Time
	LastUpdated time.Time
}

// ToDocument encodes r into an engine document with the given embedding.
func (r Record) ToDocument(embedding []float32) (Document, error) {
	md, err := EncodeMetadata(r)
	if err != nil {
		return Document{}, err
	}
	return Document{ID: r.ID, Content: r.Content, Embedding: embedding, Metadata: md}, nil
}

// EncodeMetadata flattens the record fields and typed metadata into the
// engine's string map.
func EncodeMetadata(r Record) (map[string]string, error) {
	md := map[string]string{
		keyFilename:    r.Filename,
		keySourcePath:  r.SourcePath,
		keyContentHash: r.ContentHash,
	}
	if !r.CreatedAt.IsZero() {
		md[keyCreatedAt] = r.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	if !r.LastUpdated.IsZero() {
		md[keyLastUpdated] = r.LastUpdated.UTC().Format(time.RFC3339Nano)
	}

	entries, err := metadata.EncodeMap(r.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encoding vector metadata: %w", err)
	}
	for _, e := range entries {
		md[valuePrefix+e.Key] = e.Value
		md[typePrefix+e.Key] = string(e.Type)
	}
	return md, nil
}

// DecodeRecord rebuilds the typed record of an engine document. Fields that
// fail to decode are dropped and returned as errors.
func DecodeRecord(d Document) (Record, []error) {
	r := Record{
		ID:          d.ID,
		Content:     d.Content,
		Filename:    d.Metadata[keyFilename],
		SourcePath:  d.Metadata[keySourcePath],
		ContentHash: d.Metadata[keyContentHash],
	}
	if v, ok := d.Metadata[keyCreatedAt]; ok {
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, v)
	}
	if v, ok := d.Metadata[keyLastUpdated]; ok {
		r.LastUpdated, _ = time.Parse(time.RFC3339Nano, v)
	}

	var entries []metadata.Entry
	var errs []error
	for k, v := range d.Metadata {
		key, ok := strings.CutPrefix(k, valuePrefix)
		if !ok {
			continue
		}
		typ, ok := d.Metadata[typePrefix+key]
		if !ok {
			errs = append(errs, fmt.Errorf("metadata %q has no type tag", key))
			continue
		}
		entries = append(entries, metadata.Entry{Key: key, Value: v, Type: metadata.Type(typ)})
	}
	m, decodeErrs := metadata.DecodeEntries(entries)
	r.Metadata = m
	return r, append(errs, decodeErrs...)
}

// UserMetadata decodes only the user metadata of an engine map.
func UserMetadata(md map[string]string) (metadata.Map, []error) {
	r, errs := DecodeRecord(Document{Metadata: md})
	return r.Metadata, errs
}

// WhereClause translates a typed equality filter into engine metadata keys.
func WhereClause(where metadata.Map) (map[string]string, error) {
	if len(where) == 0 {
		return nil, nil
	}
	entries, err := metadata.EncodeMap(where)
	if err != nil {
		return nil, fmt.Errorf("encoding filter: %w", err)
	}
	out := make(map[string]string, 2*len(entries))
	for _, e := range entries {
		out[valuePrefix+e.Key] = e.Value
		out[typePrefix+e.Key] = string(e.Type)
	}
	return out, nil
}
