package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ziadkadry99/docindex/internal/errdefs"
	"github.com/ziadkadry99/docindex/internal/reconcile"
	"github.com/ziadkadry99/docindex/internal/server"
	"github.com/ziadkadry99/docindex/internal/walker"
)

var serverPort int

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the HTTP API, the reconciliation schedule and the file watcher",
	Long: `Starts the docindex HTTP server. Alongside the API it runs the daily
reconciliation schedule and, when enabled, a file watcher that re-syncs
changed source files as they are saved.`,
	RunE: runServer,
}

func init() {
	serverCmd.Flags().IntVar(&serverPort, "port", 0, "port to listen on (default from config)")
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	port := a.cfg.Server.Port
	if serverPort != 0 {
		port = serverPort
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A previous process may have died mid-run.
	if n, err := a.jobs.AbandonRunning(ctx, time.Now()); err != nil {
		a.logger.Warn("cannot close abandoned jobs", "error", err)
	} else if n > 0 {
		a.logger.Warn("marked interrupted reconciliation jobs as failed", "count", n)
	}

	job := a.newJob(nil)
	srv := server.New(server.Config{
		Port:     port,
		AllowAll: a.cfg.Server.AllowAllOrigins,
	}, a.coord, job, a.catalog, a.logger)

	g, gctx := errgroup.WithContext(ctx)

	if a.cfg.Reconcile.ScheduleEnabled {
		sched, err := reconcile.NewScheduler(job, a.cfg.Reconcile.ScheduleTime, a.logger)
		if err != nil {
			return err
		}
		g.Go(func() error { return sched.Run(gctx) })
	}

	if a.cfg.Reconcile.Watch && a.source != nil {
		w, err := walker.NewWatcher(a.source, 500*time.Millisecond, a.logger)
		if err != nil {
			return fmt.Errorf("starting file watcher: %w", err)
		}
		defer w.Close()
		g.Go(func() error {
			return w.Run(gctx, func(ctx context.Context, ev walker.Event) {
				// Errors are logged by SyncFile; the next full run retries.
				_, _ = job.SyncFile(ctx, ev)
			})
		})
	}

	if a.cfg.Reconcile.OnStartup {
		g.Go(func() error {
			_, err := job.RunOnce(gctx, reconcile.TriggerStartup)
			if err != nil && !errors.Is(err, errdefs.ErrRunInProgress) && gctx.Err() == nil {
				a.logger.Error("startup reconciliation failed", "error", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "\nShutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	fmt.Fprintf(os.Stderr, "docindex server %s starting on port %d\n", Version, port)
	fmt.Fprintf(os.Stderr, "  Catalog: %s\n", a.cfg.DBPath())
	fmt.Fprintf(os.Stderr, "  Vectors: %s\n", a.cfg.VectorDir())
	if a.source != nil {
		for _, r := range a.source.Roots() {
			fmt.Fprintf(os.Stderr, "  Source: %s -> %s\n", r.Path, r.Collection)
		}
	}

	return g.Wait()
}
