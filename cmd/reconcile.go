package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/docindex/internal/progress"
	"github.com/ziadkadry99/docindex/internal/reconcile"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Compare the source directories, the catalog and the vector store and repair drift",
	Long: `Runs one reconciliation pass. Files missing from the catalog are ingested,
changed files are re-ingested, unembedded documents are re-embedded, and
vectors without a catalog row are written back to the catalog.

Documents whose source file is gone are reported as orphans and never
deleted automatically. Pass --purge-orphans with their ids and --yes to
delete them after they are re-checked against the filesystem.`,
	Args: cobra.NoArgs,
	RunE: runReconcile,
}

var reconcileStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last reconciliation run and the next scheduled one",
	Args:  cobra.NoArgs,
	RunE:  runReconcileStatus,
}

var reconcileHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List past reconciliation runs",
	Args:  cobra.NoArgs,
	RunE:  runReconcileHistory,
}

func init() {
	reconcileCmd.Flags().StringSlice("purge-orphans", nil, "orphaned document ids to delete instead of running a pass")
	reconcileCmd.Flags().Bool("yes", false, "confirm --purge-orphans")
	reconcileCmd.Flags().Bool("json", false, "output the report as JSON")
	reconcileHistoryCmd.Flags().Int("limit", 20, "maximum number of runs")

	reconcileCmd.AddCommand(reconcileStatusCmd, reconcileHistoryCmd)
	rootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, args []string) error {
	purge, _ := cmd.Flags().GetStringSlice("purge-orphans")
	yes, _ := cmd.Flags().GetBool("yes")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	if len(purge) > 0 && !yes {
		return errors.New("--purge-orphans deletes documents from both stores; pass --yes to confirm")
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	if len(purge) > 0 {
		res, err := a.newJob(nil).PurgeOrphans(ctx, purge)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(res)
		}
		for _, id := range res.Purged {
			fmt.Printf("purged  %s\n", id)
		}
		for _, s := range res.Skipped {
			fmt.Printf("skipped %s: %s\n", s.ID, s.Reason)
		}
		return nil
	}

	var job *reconcile.Job
	reporter := progress.NewReporter()
	if jsonOutput {
		job = a.newJob(nil)
	} else {
		step := progress.Counter(reporter, "repaired")
		job = a.newJob(func(p reconcile.Progress) { step(p.Done, p.Total) })
	}

	rep, runErr := job.RunOnce(ctx, reconcile.TriggerManual)
	if !jsonOutput {
		reporter.Finish()
	}
	if rep == nil {
		return runErr
	}

	if jsonOutput {
		if err := printJSON(rep); err != nil {
			return err
		}
		return runErr
	}
	printReport(rep)
	return runErr
}

func printReport(rep *reconcile.Report) {
	s := rep.Summary
	fmt.Printf("Run %s %s in %s\n", rep.JobID, rep.State, rep.FinishedAt.Sub(rep.StartedAt).Round(time.Millisecond))
	fmt.Printf("  Files scanned:  %d\n", rep.FilesScanned)
	fmt.Printf("  Discrepancies:  %d\n", s.Discrepancies)
	fmt.Printf("  Repaired:       %d\n", s.Repaired)
	fmt.Printf("  Failed:         %d\n", s.Failed)
	fmt.Printf("  Skipped:        %d\n", s.Skipped)
	fmt.Printf("  Unresolved:     %d\n", s.Unresolved)
	fmt.Printf("  Orphans:        %d\n", s.Orphans)

	for _, d := range rep.Discrepancies {
		if d.Status == reconcile.StatusRepaired {
			continue
		}
		line := fmt.Sprintf("  %-10s %s %s", d.Status, d.ID, d.Kind)
		if d.Error != "" {
			line += ": " + d.Error
		}
		fmt.Println(line)
	}
	for _, o := range rep.Orphans {
		fmt.Printf("  orphan     %s (%s) %s\n", o.ID, o.Collection, o.SourcePath)
	}
	for _, e := range rep.ScanErrors {
		fmt.Printf("  scan error %s\n", e)
	}
	if rep.Empty() && s.Orphans == 0 {
		fmt.Println("Stores are consistent.")
	}
}

func runReconcileStatus(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	jobs, err := a.jobs.List(cmd.Context(), 1)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Println("Last run: never")
	} else {
		j := jobs[0]
		fmt.Printf("Last run: %s (%s, %s)\n", j.StartedAt.Local().Format(time.DateTime), j.State, j.Trigger)
		fmt.Printf("  Discrepancies: %d, repaired: %d, failed: %d, orphans: %d\n",
			j.Discrepancies, j.Repaired, j.Failed, j.Orphans)
		if j.ErrorMessage != "" {
			fmt.Printf("  Error: %s\n", j.ErrorMessage)
		}
	}

	if a.cfg.Reconcile.ScheduleEnabled {
		next, err := reconcile.NextRun(time.Now(), a.cfg.Reconcile.ScheduleTime)
		if err != nil {
			return err
		}
		fmt.Printf("Next run: %s (while `docindex server` is running)\n", next.Format(time.DateTime))
	} else {
		fmt.Println("Next run: not scheduled")
	}
	return nil
}

func runReconcileHistory(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	jobs, err := a.jobs.List(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Println("No reconciliation runs recorded.")
		return nil
	}
	fmt.Printf("%-36s  %-19s  %-9s  %-9s  %6s  %6s  %6s\n", "ID", "STARTED", "TRIGGER", "STATE", "FOUND", "FIXED", "FAILED")
	for _, j := range jobs {
		fmt.Printf("%-36s  %-19s  %-9s  %-9s  %6d  %6d  %6d\n",
			j.ID, j.StartedAt.Local().Format(time.DateTime), j.Trigger, j.State,
			j.Discrepancies, j.Repaired, j.Failed)
	}
	return nil
}
