package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjrosen/autohub/internal/catalog"
	"github.com/zjrosen/autohub/internal/presentation"
	"github.com/zjrosen/autohub/internal/scheduler"
	"github.com/zjrosen/autohub/internal/schema"
	"github.com/zjrosen/autohub/internal/workflow"
)

var (
	schedSpec     string
	schedName     string
	schedTimeout  time.Duration
	schedArgs     []string
	schedDisabled bool

	historyLimit int
	exportFile   string
)

var scheduleAddCmd = &cobra.Command{
	Use:   "schedule:add <workflow>",
	Short: "Schedule a workflow",
	Long: `Store a task that runs a workflow on a schedule. Tasks fire while
"autohub daemon" is running.

Schedules are 5-field cron expressions, "@every <duration>", descriptors
such as "@hourly" or "@daily", or "@once <RFC3339 time>".

Examples:
  autohub schedule:add organize_files --schedule "0 9 * * 1-5" -a source_folder=~/Downloads
  autohub schedule:add backup --schedule "@every 6h" --timeout 20m
  autohub schedule:add report --schedule "@once 2025-07-01T08:00:00Z"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer closeApp(a)

		if _, err := a.Scan(cmd.Context()); err != nil {
			return err
		}
		d, err := a.Catalog().Lookup(args[0])
		if err != nil {
			return fmt.Errorf("workflow %q: %w", args[0], err)
		}
		raw, err := parseKeyValues(schedArgs)
		if err != nil {
			return err
		}
		values, err := schema.Coerce(d.Parameters(), raw)
		if err != nil {
			return err
		}

		sched, err := a.Scheduler()
		if err != nil {
			return err
		}
		t, err := sched.Add(cmd.Context(), &scheduler.Task{
			Name:       schedName,
			WorkflowID: d.ID(),
			Arguments:  values,
			Schedule:   schedSpec,
			Timeout:    schedTimeout,
			Enabled:    !schedDisabled,
		})
		if err != nil {
			return err
		}
		f, err := formatter(cmd)
		if err != nil {
			return err
		}
		return f.FormatTasks([]presentation.TaskDTO{presentation.FromTask(t)})
	},
}

var scheduleListCmd = &cobra.Command{
	Use:   "schedule:list",
	Short: "List scheduled tasks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer closeApp(a)

		sched, err := a.Scheduler()
		if err != nil {
			return err
		}
		tasks, err := sched.List(cmd.Context())
		if err != nil {
			return err
		}
		f, err := formatter(cmd)
		if err != nil {
			return err
		}
		return f.FormatTasks(presentation.FromTasks(tasks))
	},
}

var scheduleRemoveCmd = &cobra.Command{
	Use:   "schedule:remove <task-id>",
	Short: "Remove a scheduled task and its history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer closeApp(a)

		sched, err := a.Scheduler()
		if err != nil {
			return err
		}
		if err := sched.Remove(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed task %s\n", args[0])
		return nil
	},
}

func setEnabledCmd(use, short string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <task-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer closeApp(a)

			sched, err := a.Scheduler()
			if err != nil {
				return err
			}
			t, err := sched.SetEnabled(cmd.Context(), args[0], enabled)
			if err != nil {
				return err
			}
			f, err := formatter(cmd)
			if err != nil {
				return err
			}
			return f.FormatTasks([]presentation.TaskDTO{presentation.FromTask(t)})
		},
	}
}

var (
	scheduleEnableCmd  = setEnabledCmd("schedule:enable", "Enable a scheduled task", true)
	scheduleDisableCmd = setEnabledCmd("schedule:disable", "Disable a scheduled task", false)
)

var scheduleRunCmd = &cobra.Command{
	Use:   "schedule:run <task-id>",
	Short: "Run a scheduled task now",
	Long: `Fire a task immediately with its stored arguments and timeout. The run is
recorded in the task's history like a scheduled firing.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer closeApp(a)

		if _, err := a.Scan(cmd.Context()); err != nil {
			return err
		}
		sched, err := a.Scheduler()
		if err != nil {
			return err
		}
		run, err := sched.RunNow(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		f, err := formatter(cmd)
		if err != nil {
			return err
		}
		if err := f.FormatRuns(presentation.FromRuns([]*scheduler.Run{run})); err != nil {
			return err
		}
		if run.Status != workflow.StatusSuccess {
			return errRunFailed
		}
		return nil
	},
}

var scheduleHistoryCmd = &cobra.Command{
	Use:   "schedule:history <task-id>",
	Short: "Show recent runs of a scheduled task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer closeApp(a)

		sched, err := a.Scheduler()
		if err != nil {
			return err
		}
		runs, err := sched.History(cmd.Context(), args[0], historyLimit)
		if err != nil {
			return err
		}
		f, err := formatter(cmd)
		if err != nil {
			return err
		}
		return f.FormatRuns(presentation.FromRuns(runs))
	},
}

var scheduleExportCmd = &cobra.Command{
	Use:   "schedule:export",
	Short: "Export scheduled tasks as YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer closeApp(a)

		sched, err := a.Scheduler()
		if err != nil {
			return err
		}
		tasks, err := sched.List(cmd.Context())
		if err != nil {
			return err
		}
		data, err := scheduler.MarshalTasks(tasks)
		if err != nil {
			return err
		}
		if exportFile == "" {
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}
		if err := os.WriteFile(exportFile, data, 0o600); err != nil {
			return fmt.Errorf("writing %s: %w", exportFile, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d task(s) to %s\n", len(tasks), exportFile)
		return nil
	},
}

var scheduleImportCmd = &cobra.Command{
	Use:   "schedule:import <file>",
	Short: "Import scheduled tasks from a YAML file",
	Long: `Import tasks written by schedule:export. Tasks whose id already exists
are replaced. Tasks naming a workflow that is not in the catalog are still
imported, with a warning.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}
		tasks, err := scheduler.UnmarshalTasks(data)
		if err != nil {
			return err
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer closeApp(a)

		if _, err := a.Scan(cmd.Context()); err != nil {
			return err
		}
		sched, err := a.Scheduler()
		if err != nil {
			return err
		}
		for _, t := range tasks {
			if _, err := a.Catalog().Lookup(t.WorkflowID); errors.Is(err, catalog.ErrNotFound) {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: workflow %q is not in the catalog\n", t.WorkflowID)
			}
			if _, err := sched.Add(cmd.Context(), t); err != nil {
				return fmt.Errorf("importing task for %s: %w", t.WorkflowID, err)
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d task(s)\n", len(tasks))
		return nil
	},
}

func init() {
	scheduleAddCmd.Flags().StringVarP(&schedSpec, "schedule", "s", "", "cron expression, @every <duration>, @daily or @once <time> (required)")
	scheduleAddCmd.Flags().StringVar(&schedName, "name", "", "task name (default: the workflow id)")
	scheduleAddCmd.Flags().DurationVar(&schedTimeout, "timeout", 0, "cancel a run after this long (default: scheduler.default_timeout)")
	scheduleAddCmd.Flags().StringArrayVarP(&schedArgs, "arg", "a", nil, "argument as key=value (repeatable)")
	scheduleAddCmd.Flags().BoolVar(&schedDisabled, "disabled", false, "store the task without scheduling it")
	_ = scheduleAddCmd.MarkFlagRequired("schedule")
	addOutputFlag(scheduleAddCmd)

	addOutputFlag(scheduleListCmd)
	addOutputFlag(scheduleEnableCmd)
	addOutputFlag(scheduleDisableCmd)
	addOutputFlag(scheduleRunCmd)

	scheduleHistoryCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of runs to show")
	addOutputFlag(scheduleHistoryCmd)

	scheduleExportCmd.Flags().StringVar(&exportFile, "file", "", "write to this file instead of stdout")

	rootCmd.AddCommand(scheduleAddCmd, scheduleListCmd, scheduleRemoveCmd,
		scheduleEnableCmd, scheduleDisableCmd, scheduleRunCmd,
		scheduleHistoryCmd, scheduleExportCmd, scheduleImportCmd)
}
