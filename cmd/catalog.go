package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zjrosen/autohub/internal/catalog"
	"github.com/zjrosen/autohub/internal/config"
	"github.com/zjrosen/autohub/internal/flags"
	"github.com/zjrosen/autohub/internal/presentation"
)

var catalogScanCmd = &cobra.Command{
	Use:   "catalog:scan",
	Short: "Scan the workflow roots and report what was found",
	Long: `Scan every configured root and print the resulting catalog, including
files that could not be loaded and duplicate-id warnings.

With the strict-scan flag enabled, any error or warning makes the command
exit non-zero.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer closeApp(a)

		snap, err := a.Scan(cmd.Context())
		if err != nil {
			return err
		}
		f, err := formatter(cmd)
		if err != nil {
			return err
		}
		if err := f.FormatScan(presentation.FromSnapshot(snap)); err != nil {
			return err
		}
		if a.Flags().Enabled(flags.FlagStrictScan) && (len(snap.Errors) > 0 || len(snap.Warnings) > 0) {
			return fmt.Errorf("scan found %d error(s) and %d warning(s)", len(snap.Errors), len(snap.Warnings))
		}
		return nil
	},
}

var catalogWatchCmd = &cobra.Command{
	Use:   "catalog:watch",
	Short: "Watch the workflow roots and print catalog changes",
	Long: `Scan the roots, then rescan whenever a workflow file is created, edited,
renamed or removed, printing the workflows that were added, removed or
changed. Stop with Ctrl+C.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer closeApp(a)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		snap, err := a.Scan(ctx)
		if err != nil {
			return err
		}
		f, err := formatter(cmd)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "watching %s (%d workflows)\n", strings.Join(snap.Roots, ", "), snap.Len())
		return a.Watch(ctx, func(older, newer *catalog.Snapshot) {
			_ = f.FormatChanges(presentation.FromChanges(newer.Version, catalog.Diff(older, newer)))
		})
	},
}

var catalogAddRootCmd = &cobra.Command{
	Use:   "catalog:add-root <dir>",
	Short: "Add a workflow root to the config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfgErr != nil {
			return cfgErr
		}
		root, err := rootArg(args[0])
		if err != nil {
			return err
		}
		path := configFilePath()
		if err := config.AddRoot(path, root, cfg.Roots); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added root %s (%s)\n", root, path)
		return nil
	},
}

var catalogRemoveRootCmd = &cobra.Command{
	Use:   "catalog:remove-root <dir>",
	Short: "Remove a workflow root from the config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfgErr != nil {
			return cfgErr
		}
		root := args[0]
		path := configFilePath()
		if err := config.RemoveRoot(path, root, cfg.Roots); err != nil {
			abs, absErr := rootArg(root)
			if absErr != nil || abs == root {
				return err
			}
			if err := config.RemoveRoot(path, abs, cfg.Roots); err != nil {
				return err
			}
			root = abs
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed root %s (%s)\n", root, path)
		return nil
	},
}

// rootArg makes a relative directory absolute. Paths starting with ~ are
// kept so the config stays portable.
func rootArg(dir string) (string, error) {
	if strings.HasPrefix(dir, "~") || filepath.IsAbs(dir) {
		return dir, nil
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", dir, err)
	}
	return abs, nil
}

func init() {
	addOutputFlag(catalogScanCmd)
	addOutputFlag(catalogWatchCmd)

	rootCmd.AddCommand(catalogScanCmd, catalogWatchCmd, catalogAddRootCmd, catalogRemoveRootCmd)
}
