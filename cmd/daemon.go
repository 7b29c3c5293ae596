package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjrosen/autohub/internal/catalog"
	"github.com/zjrosen/autohub/internal/log"
	"github.com/zjrosen/autohub/internal/presentation"
	"github.com/zjrosen/autohub/internal/scheduler"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run scheduled workflows and keep the catalog current",
	Long: `Run the scheduler in the foreground. Enabled tasks fire on their
schedules, and the catalog is rescanned whenever a workflow file under the
configured roots changes.

Example:
  autohub daemon
  autohub daemon --follow-logs --log-level info
  AUTOHUB_DEBUG=1 autohub daemon`,
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

var daemonFollowLogs bool

func init() {
	daemonCmd.Flags().BoolVar(&daemonFollowLogs, "follow-logs", false, "copy log entries to stderr")
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer closeApp(a)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if daemonFollowLogs {
		defer followLogs(ctx, cmd.ErrOrStderr())()
	}

	snap, err := a.Scan(ctx)
	if err != nil {
		return err
	}
	sched, err := a.Scheduler()
	if err != nil {
		return err
	}
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}

	out := cmd.OutOrStdout()
	f := presentation.NewFormatter(out, presentation.FormatText)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Watch(ctx, func(older, newer *catalog.Snapshot) {
			_ = f.FormatChanges(presentation.FromChanges(newer.Version, catalog.Diff(older, newer)))
		})
	}()

	tasks, _ := sched.List(ctx)
	fmt.Fprintf(out, "autohub daemon started: %d workflows, %d tasks\n", snap.Len(), len(tasks))
	warnOrphans(cmd.ErrOrStderr(), snap, tasks)
	go func() {
		for ev := range a.Snapshots().Subscribe(ctx) {
			tasks, err := sched.List(ctx)
			if err != nil {
				continue
			}
			warnOrphans(cmd.ErrOrStderr(), ev.Payload, tasks)
		}
	}()
	fmt.Fprintln(out, "Press Ctrl+C to stop")

	select {
	case sig := <-sigCh:
		fmt.Fprintf(out, "\nReceived %s, shutting down...\n", sig)
	case err := <-errCh:
		// The watcher is optional; keep scheduling without it.
		if err != nil && !errors.Is(err, context.Canceled) {
			log.ErrorErr(log.CatWatcher, "Watcher stopped", err)
			fmt.Fprintf(cmd.ErrOrStderr(), "watching disabled: %v\n", err)
			sig := <-sigCh
			fmt.Fprintf(out, "\nReceived %s, shutting down...\n", sig)
		}
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := sched.Stop(shutdownCtx); err != nil {
		log.ErrorErr(log.CatScheduler, "Error stopping scheduler", err)
	}

	fmt.Fprintln(out, "Daemon stopped")
	return nil
}

// followLogs copies log entries to w until ctx is done. When no log file is
// open the logger writes to w directly and the returned func uninstalls it.
func followLogs(ctx context.Context, w io.Writer) func() {
	entries := log.Subscribe(ctx)
	if entries == nil {
		restore := log.InitWithWriter(w)
		log.SetMinLevel(log.ParseLevel(logLevel))
		return restore
	}
	go func() {
		for ev := range entries {
			_, _ = io.WriteString(w, ev.Payload)
		}
	}()
	return func() {}
}

// orphanedTasks returns the tasks whose workflow is not in snap.
func orphanedTasks(snap *catalog.Snapshot, tasks []*scheduler.Task) []*scheduler.Task {
	var out []*scheduler.Task
	for _, t := range tasks {
		if _, err := snap.Lookup(t.WorkflowID); err != nil {
			out = append(out, t)
		}
	}
	return out
}

func warnOrphans(w io.Writer, snap *catalog.Snapshot, tasks []*scheduler.Task) {
	for _, t := range orphanedTasks(snap, tasks) {
		fmt.Fprintf(w, "warning: task %q runs workflow %q, which is not in catalog version %d\n",
			t.Name, t.WorkflowID, snap.Version)
	}
}
