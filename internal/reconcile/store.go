package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ziadkadry99/docindex/internal/db"
	"github.com/ziadkadry99/docindex/internal/errdefs"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Trigger records what started a run.
type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerScheduled Trigger = "scheduled"
	TriggerStartup   Trigger = "startup"
)

// JobState is the lifecycle state of a persisted run.
type JobState string

const (
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
)

// JobRecord is one row of run history.
type JobRecord struct {
	ID            string     `json:"id"`
	Trigger       Trigger    `json:"trigger"`
	State         JobState   `json:"state"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	FilesScanned  int        `json:"files_scanned"`
	Discrepancies int        `json:"discrepancies"`
	Repaired      int        `json:"repaired"`
	Failed        int        `json:"failed"`
	Orphans       int        `json:"orphans"`
	ErrorMessage  string     `json:"error_message,omitempty"`
}

// Store persists run history.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Begin records a run as started.
func (s *Store) Begin(ctx context.Context, rec JobRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reconciliation_jobs (id, trigger, status, started_at)
		VALUES (?, ?, ?, ?)`,
		rec.ID, string(rec.Trigger), string(JobRunning), rec.StartedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting reconciliation job: %w", err)
	}
	return nil
}

// Finish stores the final counters and state of a run.
func (s *Store) Finish(ctx context.Context, rec JobRecord) error {
	var finished sql.NullString
	if rec.FinishedAt != nil {
		finished = sql.NullString{String: rec.FinishedAt.UTC().Format(timeLayout), Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE reconciliation_jobs SET status = ?, finished_at = ?, files_scanned = ?,
			discrepancies = ?, repaired = ?, failed = ?, orphans = ?, error_message = ?
		WHERE id = ?`,
		string(rec.State), finished, rec.FilesScanned,
		rec.Discrepancies, rec.Repaired, rec.Failed, rec.Orphans, rec.ErrorMessage,
		rec.ID,
	)
	if err != nil {
		return fmt.Errorf("updating reconciliation job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("reconciliation job %s: %w", rec.ID, errdefs.ErrNotFound)
	}
	return nil
}

// Get returns one run.
func (s *Store) Get(ctx context.Context, id string) (*JobRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM reconciliation_jobs WHERE id = ?`, id)
	rec, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reconciliation job %s: %w", id, errdefs.ErrNotFound)
	}
	return rec, err
}

// List returns the most recent runs first. limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]JobRecord, error) {
	query := `SELECT ` + jobColumns + ` FROM reconciliation_jobs ORDER BY started_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying reconciliation jobs: %w", err)
	}
	defer rows.Close()

	var out []JobRecord
	for rows.Next() {
		rec, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// AbandonRunning marks runs left in the running state by a previous
// process as failed.
func (s *Store) AbandonRunning(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE reconciliation_jobs SET status = ?, finished_at = ?, error_message = ?
		WHERE status = ?`,
		string(JobFailed), now.UTC().Format(timeLayout), "interrupted", string(JobRunning),
	)
	if err != nil {
		return 0, fmt.Errorf("abandoning running jobs: %w", err)
	}
	return res.RowsAffected()
}

const jobColumns = `id, trigger, status, started_at, finished_at, files_scanned,
	discrepancies, repaired, failed, orphans, error_message`

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(sc scanner) (*JobRecord, error) {
	var (
		rec            JobRecord
		trigger, state string
		started        string
		finished       sql.NullString
	)
	err := sc.Scan(&rec.ID, &trigger, &state, &started, &finished, &rec.FilesScanned,
		&rec.Discrepancies, &rec.Repaired, &rec.Failed, &rec.Orphans, &rec.ErrorMessage)
	if err != nil {
		return nil, err
	}
	rec.Trigger = Trigger(trigger)
	rec.State = JobState(state)
	if rec.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return nil, fmt.Errorf("parsing started_at of job %s: %w", rec.ID, err)
	}
	if finished.Valid {
		t, err := time.Parse(timeLayout, finished.String)
		if err != nil {
			return nil, fmt.Errorf("parsing finished_at of job %s: %w", rec.ID, err)
		}
		rec.FinishedAt = &t
	}
	return &rec, nil
}
