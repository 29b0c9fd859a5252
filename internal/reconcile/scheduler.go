package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ziadkadry99/docindex/internal/errdefs"
	"github.com/ziadkadry99/docindex/internal/logging"
)

// DefaultScheduleTime is the local time of the daily run.
const DefaultScheduleTime = "03:00"

// ParseClock parses "HH:MM" in 24-hour form.
func ParseClock(hhmm string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: schedule time %q must be HH:MM", errdefs.ErrInvalidInput, hhmm)
	}
	return t.Hour(), t.Minute(), nil
}

// NextRun returns the first instant strictly after now at the given clock
// time in now's location. An empty clock uses DefaultScheduleTime.
func NextRun(now time.Time, hhmm string) (time.Time, error) {
	if hhmm == "" {
		hhmm = DefaultScheduleTime
	}
	hour, minute, err := ParseClock(hhmm)
	if err != nil {
		return time.Time{}, err
	}
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = time.Date(now.Year(), now.Month(), now.Day()+1, hour, minute, 0, 0, now.Location())
	}
	return next, nil
}

// Scheduler starts a run once a day.
type Scheduler struct {
	job    *Job
	clock  string
	logger *slog.Logger
	now    func() time.Time
}

// NewScheduler validates the clock time.
func NewScheduler(job *Job, hhmm string, logger *slog.Logger) (*Scheduler, error) {
	if hhmm == "" {
		hhmm = DefaultScheduleTime
	}
	if _, _, err := ParseClock(hhmm); err != nil {
		return nil, err
	}
	return &Scheduler{
		job:    job,
		clock:  hhmm,
		logger: logging.OrDiscard(logger).With("component", "scheduler"),
		now:    time.Now,
	}, nil
}

// Run blocks until ctx ends, starting a scheduled run at each daily tick.
// A tick that finds a run in progress is skipped.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		next, err := NextRun(s.now(), s.clock)
		if err != nil {
			return err
		}
		s.job.SetNextRun(next)
		s.logger.Info("next reconciliation scheduled", "at", next)

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		_, err = s.job.RunOnce(ctx, TriggerScheduled)
		switch {
		case errors.Is(err, errdefs.ErrRunInProgress):
			s.logger.Warn("scheduled run skipped, another run is active")
		case err != nil && ctx.Err() == nil:
			s.logger.Error("scheduled run failed", "error", err)
		}
	}
}
