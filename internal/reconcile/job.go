// Package reconcile restores agreement between the filesystem, the catalog
// and the vector store.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ziadkadry99/docindex/internal/catalog"
	"github.com/ziadkadry99/docindex/internal/coordinator"
	"github.com/ziadkadry99/docindex/internal/errdefs"
	"github.com/ziadkadry99/docindex/internal/logging"
	"github.com/ziadkadry99/docindex/internal/walker"
)

// Summaries lists the catalog cheaply.
type Summaries interface {
	ListSummaries(ctx context.Context, collection string) ([]catalog.Summary, error)
}

// Options tunes a Job.
type Options struct {
	// RepairsPerSecond caps repair throughput; <= 0 is unlimited.
	RepairsPerSecond float64
	RepairAttempts   int
	RetryBackoff     time.Duration
	Logger           *slog.Logger
	// OnProgress, when set, is called after every repair.
	OnProgress func(Progress)
}

// Progress reports how far the repair phase of a run is.
type Progress struct {
	Total int `json:"total"`
	Done  int `json:"done"`
}

// Summary counts the outcome of a run.
type Summary struct {
	Discrepancies int `json:"discrepancies"`
	Repaired      int `json:"repaired"`
	Failed        int `json:"failed"`
	Skipped       int `json:"skipped"`
	Unresolved    int `json:"unresolved"`
	Orphans       int `json:"orphans"`
}

// Report is the result of one run.
type Report struct {
	JobID         string        `json:"job_id"`
	Trigger       Trigger       `json:"trigger"`
	State         JobState      `json:"state"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    time.Time     `json:"finished_at"`
	FilesScanned  int           `json:"files_scanned"`
	Discrepancies []Discrepancy `json:"discrepancies"`
	Orphans       []Orphan      `json:"orphans"`
	ScanErrors    []string      `json:"scan_errors,omitempty"`
	Summary       Summary       `json:"summary"`
}

// Empty reports whether the run found nothing to repair. Standing orphans
// do not count.
func (r *Report) Empty() bool {
	return len(r.Discrepancies) == 0
}

// Status is a snapshot of the job.
type Status struct {
	Running      bool       `json:"running"`
	CurrentJobID string     `json:"current_job_id,omitempty"`
	Progress     *Progress  `json:"progress,omitempty"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	NextRun      *time.Time `json:"next_run,omitempty"`
	LastReport   *Report    `json:"last_report,omitempty"`
}

// Job runs reconciliation passes, one at a time.
type Job struct {
	coord   *coordinator.Coordinator
	catalog Summaries
	source  *walker.Source
	store   *Store
	opts    Options
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	running  bool
	current  string
	progress Progress
	last     *Report
	nextRun  time.Time
}

// NewJob creates a Job. source may be nil when no filesystem roots are
// configured; store may be nil to skip history.
func NewJob(coord *coordinator.Coordinator, summaries Summaries, source *walker.Source, store *Store, opts Options) *Job {
	if opts.RepairAttempts <= 0 {
		opts.RepairAttempts = 3
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 200 * time.Millisecond
	}
	return &Job{
		coord:   coord,
		catalog: summaries,
		source:  source,
		store:   store,
		opts:    opts,
		logger:  logging.OrDiscard(opts.Logger).With("component", "reconcile"),
		now:     time.Now,
	}
}

// Source returns the filesystem source, or nil.
func (j *Job) Source() *walker.Source { return j.source }

// SetNextRun records when the scheduler will next start a run.
func (j *Job) SetNextRun(t time.Time) {
	j.mu.Lock()
	j.nextRun = t
	j.mu.Unlock()
}

// Status returns the current state of the job.
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()

	st := Status{Running: j.running, CurrentJobID: j.current, LastReport: j.last}
	if j.running {
		p := j.progress
		st.Progress = &p
	}
	if j.last != nil {
		t := j.last.FinishedAt
		st.LastRun = &t
	}
	if !j.nextRun.IsZero() {
		t := j.nextRun
		st.NextRun = &t
	}
	return st
}

// History returns persisted runs, newest first.
func (j *Job) History(ctx context.Context, limit int) ([]JobRecord, error) {
	if j.store == nil {
		return nil, nil
	}
	return j.store.List(ctx, limit)
}

// GetJob returns one persisted run.
func (j *Job) GetJob(ctx context.Context, id string) (*JobRecord, error) {
	if j.store == nil {
		return nil, fmt.Errorf("reconciliation job %s: %w", id, errdefs.ErrNotFound)
	}
	return j.store.Get(ctx, id)
}

func (j *Job) acquire(id string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		return false
	}
	j.running = true
	j.current = id
	j.progress = Progress{}
	return true
}

func (j *Job) release(rep *Report) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.running = false
	j.current = ""
	if rep != nil {
		j.last = rep
	}
}

// RunOnce performs a full pass. It fails with ErrRunInProgress when
// another pass or a purge is active. A cancelled run returns its partial
// report together with the context error.
func (j *Job) RunOnce(ctx context.Context, trigger Trigger) (*Report, error) {
	id := uuid.NewString()
	if !j.acquire(id) {
		return nil, errdefs.ErrRunInProgress
	}

	rep := &Report{
		JobID:         id,
		Trigger:       trigger,
		State:         JobRunning,
		StartedAt:     j.now().UTC(),
		Discrepancies: []Discrepancy{},
		Orphans:       []Orphan{},
	}
	defer func() { j.release(rep) }()

	log := j.logger.With("job_id", id, "trigger", trigger)
	log.Info("reconciliation started")

	if j.store != nil {
		if err := j.store.Begin(ctx, JobRecord{ID: id, Trigger: trigger, StartedAt: rep.StartedAt}); err != nil {
			log.Warn("cannot record job start", "error", err)
		}
	}

	err := j.run(ctx, rep)
	rep.FinishedAt = j.now().UTC()
	switch {
	case err == nil:
		rep.State = JobCompleted
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		rep.State = JobCancelled
	default:
		rep.State = JobFailed
	}

	j.persist(rep, err)
	log.Info("reconciliation finished",
		"state", rep.State,
		"files", rep.FilesScanned,
		"discrepancies", rep.Summary.Discrepancies,
		"repaired", rep.Summary.Repaired,
		"failed", rep.Summary.Failed,
		"orphans", rep.Summary.Orphans,
		"duration", rep.FinishedAt.Sub(rep.StartedAt),
	)
	if err != nil {
		return rep, err
	}
	return rep, nil
}

func (j *Job) run(ctx context.Context, rep *Report) error {
	inv, err := j.enumerate(ctx, rep)
	if err != nil {
		return err
	}

	plan := ComputePlan(inv)
	rep.Discrepancies = plan.Discrepancies
	rep.Orphans = plan.Orphans
	rep.Summary.Discrepancies = len(plan.Discrepancies)
	rep.Summary.Orphans = len(plan.Orphans)
	for _, o := range plan.Orphans {
		j.logger.Warn("orphaned document", "doc_id", o.ID, "collection", o.Collection, "source_path", o.SourcePath)
	}

	return j.apply(ctx, rep)
}

// enumerate reads the filesystem, the catalog and the vector store
// concurrently.
func (j *Job) enumerate(ctx context.Context, rep *Report) (Inventory, error) {
	inv := Inventory{
		Files:   map[string]walker.Entry{},
		Catalog: map[string]catalog.Summary{},
		Vectors: map[string][]string{},
		Covered: map[string]bool{},
	}
	var scanErrors []string

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if j.source == nil {
			return nil
		}
		for _, col := range j.source.Collections() {
			complete := true
			for entry, err := range j.source.ScanCollection(gctx, col) {
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					complete = false
					scanErrors = append(scanErrors, err.Error())
					continue
				}
				inv.Files[entry.ID] = entry
			}
			inv.Covered[col] = complete
		}
		return nil
	})

	g.Go(func() error {
		sums, err := j.catalog.ListSummaries(gctx, "")
		if err != nil {
			return fmt.Errorf("listing catalog: %w", err)
		}
		for _, s := range sums {
			inv.Catalog[s.ID] = s
		}
		return nil
	})

	vectors := make(map[string][]string)
	g.Go(func() error {
		vec := j.coord.Vector()
		cols, err := vec.ListCollections(gctx)
		if err != nil {
			return fmt.Errorf("listing vector collections: %w", err)
		}
		for _, col := range cols {
			ids, err := vec.ListIDs(gctx, col)
			if err != nil {
				return fmt.Errorf("listing vector ids of %s: %w", col, err)
			}
			for _, id := range ids {
				vectors[id] = append(vectors[id], col)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return inv, err
	}
	inv.Vectors = vectors
	rep.FilesScanned = len(inv.Files)
	rep.ScanErrors = scanErrors
	for _, e := range scanErrors {
		j.logger.Warn("filesystem scan error", "error", e)
	}
	return inv, nil
}

func (j *Job) apply(ctx context.Context, rep *Report) error {
	limit := rate.Inf
	if j.opts.RepairsPerSecond > 0 {
		limit = rate.Limit(j.opts.RepairsPerSecond)
	}
	limiter := rate.NewLimiter(limit, 1)

	total := 0
	for _, d := range rep.Discrepancies {
		if d.Action != ActionNone {
			total++
		}
	}
	j.setProgress(Progress{Total: total})

	done := 0
	for i := range rep.Discrepancies {
		d := &rep.Discrepancies[i]
		if d.Action == ActionNone {
			rep.Summary.Unresolved++
			j.logger.Error("integrity violation", "doc_id", d.ID, "collections", d.Collections)
			continue
		}
		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		err := j.repairWithRetry(ctx, d)
		switch {
		case err == nil:
		case errors.Is(err, errdefs.ErrIntegrityViolation):
			d.Status = StatusUnresolved
			d.Error = err.Error()
		case ctx.Err() != nil:
			d.Error = err.Error()
			return ctx.Err()
		default:
			d.Status = StatusFailed
			d.Error = err.Error()
			j.logger.Warn("repair failed", "doc_id", d.ID, "kind", d.Kind, "error", err)
		}

		switch d.Status {
		case StatusRepaired:
			rep.Summary.Repaired++
		case StatusFailed:
			rep.Summary.Failed++
		case StatusSkipped:
			rep.Summary.Skipped++
		case StatusUnresolved:
			rep.Summary.Unresolved++
		}
		done++
		j.setProgress(Progress{Total: total, Done: done})
	}
	return nil
}

func (j *Job) setProgress(p Progress) {
	j.mu.Lock()
	j.progress = p
	j.mu.Unlock()
	if j.opts.OnProgress != nil {
		j.opts.OnProgress(p)
	}
}

func (j *Job) repairWithRetry(ctx context.Context, d *Discrepancy) error {
	backoff := j.opts.RetryBackoff
	for attempt := 1; ; attempt++ {
		err := j.repair(ctx, d)
		if err == nil || !errdefs.IsTransient(err) || attempt >= j.opts.RepairAttempts || ctx.Err() != nil {
			return err
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return err
		}
		backoff *= 2
	}
}

// repair applies one planned action. The coordinator re-checks state under
// the id lock, so a concurrent user write turns the repair into a no-op.
func (j *Job) repair(ctx context.Context, d *Discrepancy) error {
	switch d.Action {
	case ActionIngest:
		_, outcome, err := j.coord.SyncFromSource(ctx, sourceOf(*d.entry))
		if err != nil {
			return err
		}
		if outcome == coordinator.OutcomeUnchanged {
			d.Status = StatusSkipped
		} else {
			d.Status = StatusRepaired
		}

	case ActionReembed:
		_, err := j.coord.Reembed(ctx, d.ID)
		if errors.Is(err, errdefs.ErrNotFound) {
			d.Status = StatusSkipped
			return nil
		}
		if err != nil {
			return err
		}
		d.Status = StatusRepaired

	case ActionBackfill:
		_, err := j.coord.Backfill(ctx, d.ID, d.Collection)
		if errors.Is(err, errdefs.ErrDocumentNotFound) {
			d.Status = StatusSkipped
			return nil
		}
		if err != nil {
			return err
		}
		d.Status = StatusRepaired

	default:
		return fmt.Errorf("unknown action %q", d.Action)
	}
	return nil
}

func (j *Job) persist(rep *Report, runErr error) {
	if j.store == nil {
		return
	}
	finished := rep.FinishedAt
	rec := JobRecord{
		ID:            rep.JobID,
		State:         rep.State,
		FinishedAt:    &finished,
		FilesScanned:  rep.FilesScanned,
		Discrepancies: rep.Summary.Discrepancies,
		Repaired:      rep.Summary.Repaired,
		Failed:        rep.Summary.Failed,
		Orphans:       rep.Summary.Orphans,
	}
	if runErr != nil {
		rec.ErrorMessage = runErr.Error()
	}
	// The run context may already be cancelled; history is still written.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := j.store.Finish(ctx, rec); err != nil {
		j.logger.Warn("cannot record job result", "job_id", rep.JobID, "error", err)
	}
}

// SyncFile applies one watcher event. Changed files are re-ingested;
// removed files are only reported as orphans.
func (j *Job) SyncFile(ctx context.Context, ev walker.Event) (coordinator.Outcome, error) {
	switch ev.Kind {
	case walker.EventChanged:
		_, outcome, err := j.coord.SyncFromSource(ctx, sourceOf(ev.Entry))
		if err != nil {
			j.logger.Warn("file sync failed", "path", ev.Path, "doc_id", ev.ID, "error", err)
			return "", err
		}
		if outcome != coordinator.OutcomeUnchanged {
			j.logger.Info("file synced", "path", ev.Path, "doc_id", ev.ID, "outcome", outcome)
		}
		return outcome, nil
	case walker.EventRemoved:
		j.logger.Warn("source file removed, document is now orphaned", "path", ev.Path, "doc_id", ev.ID, "collection", ev.Collection)
		return coordinator.OutcomeUnchanged, nil
	default:
		return "", fmt.Errorf("%w: unknown event kind %q", errdefs.ErrInvalidInput, ev.Kind)
	}
}

func sourceOf(e walker.Entry) coordinator.Source {
	return coordinator.Source{
		ID:          e.ID,
		Collection:  e.Collection,
		Filename:    filepath.Base(e.Path),
		SourcePath:  e.Path,
		Content:     e.Content,
		ContentHash: e.ContentHash,
	}
}
