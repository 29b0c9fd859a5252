package reconcile

import (
	"sort"

	"github.com/ziadkadry99/docindex/internal/catalog"
	"github.com/ziadkadry99/docindex/internal/walker"
)

// Kind names the disagreement found for one document.
type Kind string

const (
	// KindMissingMetadata: on the filesystem, no catalog row.
	KindMissingMetadata Kind = "missing_from_metadata"
	// KindContentChanged: catalog content hash differs from the file.
	KindContentChanged Kind = "content_changed"
	// KindNotVectorized: catalog row with content but vectorized=false.
	KindNotVectorized Kind = "not_vectorized"
	// KindMissingVector: vectorized=true but no vector record.
	KindMissingVector Kind = "missing_from_vector"
	// KindStaleVector: vector record for a catalog row without content.
	KindStaleVector Kind = "stale_vector"
	// KindVectorOnly: vector record without a catalog row.
	KindVectorOnly Kind = "vector_only"
	// KindIntegrity: the id maps to different collections across stores.
	KindIntegrity Kind = "integrity_violation"
)

// Action is the repair planned for a discrepancy.
type Action string

const (
	ActionIngest   Action = "ingest"
	ActionReembed  Action = "reembed"
	ActionBackfill Action = "backfill"
	ActionNone     Action = "none"
)

// Discrepancy is one planned repair and, after the run, its outcome.
type Discrepancy struct {
	ID          string       `json:"id"`
	Collection  string       `json:"collection"`
	Collections []string     `json:"collections,omitempty"`
	Kind        Kind         `json:"kind"`
	Action      Action       `json:"action"`
	Path        string       `json:"path,omitempty"`
	Status      RepairStatus `json:"status"`
	Error       string       `json:"error,omitempty"`

	entry *walker.Entry
}

// RepairStatus is the outcome of one repair.
type RepairStatus string

const (
	StatusPending    RepairStatus = "pending"
	StatusRepaired   RepairStatus = "repaired"
	StatusFailed     RepairStatus = "failed"
	StatusSkipped    RepairStatus = "skipped"
	StatusUnresolved RepairStatus = "unresolved"
)

// Orphan is a stored document whose file is gone from a covered root.
type Orphan struct {
	ID         string `json:"id"`
	Collection string `json:"collection"`
	SourcePath string `json:"source_path,omitempty"`
	InMetadata bool   `json:"in_metadata"`
	InVector   bool   `json:"in_vector"`
}

// Inventory is what enumeration found in the three places a document can
// live. Maps are keyed by document id.
type Inventory struct {
	Files   map[string]walker.Entry
	Catalog map[string]catalog.Summary
	// Vectors lists the vector collections holding each id.
	Vectors map[string][]string
	// Covered collections are fed by a filesystem root that scanned
	// completely; orphans are only reported for them.
	Covered map[string]bool
}

// Plan is the ordered repair list for one run.
type Plan struct {
	Discrepancies []Discrepancy
	Orphans       []Orphan
}

// ComputePlan diffs the inventory. Ids are visited in sorted order and
// each id gets at most one repair.
func ComputePlan(inv Inventory) Plan {
	ids := make(map[string]struct{}, len(inv.Catalog))
	for id := range inv.Files {
		ids[id] = struct{}{}
	}
	for id := range inv.Catalog {
		ids[id] = struct{}{}
	}
	for id := range inv.Vectors {
		ids[id] = struct{}{}
	}
	sorted := make([]string, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	var plan Plan
	for _, id := range sorted {
		file, onDisk := inv.Files[id]
		sum, inCatalog := inv.Catalog[id]
		vecCols := inv.Vectors[id]
		inVector := len(vecCols) > 0

		cols := collectionsOf(onDisk, file, inCatalog, sum, vecCols)
		if len(cols) > 1 {
			plan.Discrepancies = append(plan.Discrepancies, Discrepancy{
				ID:          id,
				Collection:  cols[0],
				Collections: cols,
				Kind:        KindIntegrity,
				Action:      ActionNone,
				Status:      StatusUnresolved,
			})
			continue
		}
		col := cols[0]

		if !onDisk && inv.Covered[col] {
			plan.Orphans = append(plan.Orphans, Orphan{
				ID:         id,
				Collection: col,
				SourcePath: sum.SourcePath,
				InMetadata: inCatalog,
				InVector:   inVector,
			})
		}

		d := Discrepancy{ID: id, Collection: col, Status: StatusPending}
		switch {
		case onDisk && !inCatalog:
			d.Kind, d.Action = KindMissingMetadata, ActionIngest
		case onDisk && sum.ContentHash != file.ContentHash:
			d.Kind, d.Action = KindContentChanged, ActionIngest
		case inCatalog && sum.HasContent && !sum.Vectorized:
			d.Kind, d.Action = KindNotVectorized, ActionReembed
		case inCatalog && sum.Vectorized && !inVector:
			d.Kind, d.Action = KindMissingVector, ActionReembed
		case inCatalog && !sum.HasContent && inVector:
			d.Kind, d.Action = KindStaleVector, ActionReembed
		case !inCatalog && inVector:
			d.Kind, d.Action = KindVectorOnly, ActionBackfill
		default:
			continue
		}
		if onDisk {
			e := file
			d.entry = &e
			d.Path = file.Path
		}
		plan.Discrepancies = append(plan.Discrepancies, d)
	}
	return plan
}

func collectionsOf(onDisk bool, file walker.Entry, inCatalog bool, sum catalog.Summary, vecCols []string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(c string) {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	if onDisk {
		add(file.Collection)
	}
	if inCatalog {
		add(sum.Collection)
	}
	for _, c := range vecCols {
		add(c)
	}
	return out
}
