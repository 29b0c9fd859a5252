package reconcile

import (
	"context"
	"errors"

	"github.com/ziadkadry99/docindex/internal/coordinator"
	"github.com/ziadkadry99/docindex/internal/errdefs"
)

// PurgeResult lists what PurgeOrphans deleted and what it left alone.
type PurgeResult struct {
	Purged  []string    `json:"purged"`
	Skipped []PurgeSkip `json:"skipped"`
}

// PurgeSkip explains why an id was not deleted.
type PurgeSkip struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// PurgeOrphans deletes the given documents from both stores after
// re-checking that each one is still an orphan: stored, in a collection
// fed by a filesystem root, and absent from that root.
func (j *Job) PurgeOrphans(ctx context.Context, ids []string) (*PurgeResult, error) {
	if !j.acquire("purge") {
		return nil, errdefs.ErrRunInProgress
	}
	defer j.release(nil)

	res := &PurgeResult{Purged: []string{}, Skipped: []PurgeSkip{}}
	onDisk := make(map[string]map[string]bool)

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		st, err := j.coord.State(ctx, id, "")
		if err != nil {
			return res, err
		}
		if st.State == coordinator.StateAbsent {
			res.Skipped = append(res.Skipped, PurgeSkip{ID: id, Reason: "not stored"})
			continue
		}
		if j.source == nil || !j.source.Covers(st.Collection) {
			res.Skipped = append(res.Skipped, PurgeSkip{ID: id, Reason: "collection " + st.Collection + " has no source root"})
			continue
		}

		files, ok := onDisk[st.Collection]
		if !ok {
			files, err = j.scanIDs(ctx, st.Collection)
			if err != nil {
				res.Skipped = append(res.Skipped, PurgeSkip{ID: id, Reason: "source scan incomplete: " + err.Error()})
				continue
			}
			onDisk[st.Collection] = files
		}
		if files[id] {
			res.Skipped = append(res.Skipped, PurgeSkip{ID: id, Reason: "present on filesystem"})
			continue
		}

		if err := j.coord.DeleteDocument(ctx, id); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return res, err
			}
			res.Skipped = append(res.Skipped, PurgeSkip{ID: id, Reason: "delete failed: " + err.Error()})
			continue
		}
		j.logger.Info("orphan purged", "doc_id", id, "collection", st.Collection)
		res.Purged = append(res.Purged, id)
	}
	return res, nil
}

// scanIDs returns the ids present on disk for collection. Any scan error
// fails the whole scan so a partial view never causes a deletion.
func (j *Job) scanIDs(ctx context.Context, collection string) (map[string]bool, error) {
	ids := make(map[string]bool)
	for entry, err := range j.source.ScanCollection(ctx, collection) {
		if err != nil {
			return nil, err
		}
		ids[entry.ID] = true
	}
	return ids, nil
}
