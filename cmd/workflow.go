package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjrosen/autohub/internal/generate"
	"github.com/zjrosen/autohub/internal/presentation"
	"github.com/zjrosen/autohub/internal/schema"
	"github.com/zjrosen/autohub/internal/workflow"
)

// errRunFailed makes the process exit non-zero after a failed run has
// been printed.
var errRunFailed = errors.New("workflow run failed")

var (
	listCategory   string
	listCategories bool

	showRender bool
	showForm   bool

	runArgs     []string
	runArgsJSON string
	runTimeout  time.Duration

	genDescription string
	genCategory    string
	genExamples    bool
	genOut         string
	genForce       bool
	genDryRun      bool
)

var workflowListCmd = &cobra.Command{
	Use:   "workflow:list",
	Short: "List discovered workflows",
	Long: `List every workflow found under the configured roots, grouped by category.

Examples:
  autohub workflow:list
  autohub workflow:list -c Files
  autohub workflow:list --categories
  autohub workflow:list -o json | jq '.[].id'`,
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
		if n := len(snap.Errors); n > 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "%d file(s) could not be loaded; run catalog:scan for details\n", n)
		}

		f, err := formatter(cmd)
		if err != nil {
			return err
		}
		if listCategories {
			return f.FormatCategories(a.Catalog().Categories())
		}

		listed := snap.List(listCategory)
		if listCategory != "" && len(listed) == 0 {
			return fmt.Errorf("no workflows in category %q (categories: %s)",
				listCategory, strings.Join(a.Catalog().Categories(), ", "))
		}
		return f.FormatWorkflows(presentation.FromDescriptors(listed))
	},
}

var workflowShowCmd = &cobra.Command{
	Use:   "workflow:show <id>",
	Short: "Show a workflow and its parameters",
	Long: `Show a workflow's metadata and parameters.

Use --render for a markdown view, or --form for the parameter form
description as JSON.`,
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
		dto := presentation.FromDescriptor(d)

		switch {
		case showForm:
			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(schema.FormFields(d.Parameters()))
		case showRender:
			r, err := presentation.NewRenderer(100, "dark")
			if err != nil {
				return err
			}
			out, err := r.Render(presentation.WorkflowMarkdown(dto))
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), out)
			return err
		}

		f, err := formatter(cmd)
		if err != nil {
			return err
		}
		return f.FormatWorkflow(dto)
	},
}

var workflowRunCmd = &cobra.Command{
	Use:   "workflow:run <id>",
	Short: "Run a workflow",
	Long: `Validate arguments against the workflow's parameters and run it.

Arguments given with -a are coerced by parameter type; --args-json takes a
JSON object and is applied first.

Examples:
  autohub workflow:run echo -a msg=hello
  autohub workflow:run organize_files -a source_folder=~/Downloads -a dry_run=no
  autohub workflow:run report --args-json '{"month": "2025-01"}' --timeout 5m`,
	Args: cobra.ExactArgs(1),
	RunE: runWorkflow,
}

func runWorkflow(cmd *cobra.Command, args []string) error {
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

	values := map[string]any{}
	if runArgsJSON != "" {
		if err := json.Unmarshal([]byte(runArgsJSON), &values); err != nil {
			return fmt.Errorf("--args-json: %w", err)
		}
	}
	raw, err := parseKeyValues(runArgs)
	if err != nil {
		return err
	}
	coerced, err := schema.Coerce(d.Parameters(), raw)
	if err != nil {
		return err
	}
	maps.Copy(values, coerced)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runTimeout)
		defer cancel()
	}

	res := a.Engine().Execute(ctx, d, values)
	f, err := formatter(cmd)
	if err != nil {
		return err
	}
	if err := f.FormatResult(res); err != nil {
		return err
	}
	if !res.Succeeded() {
		return errRunFailed
	}
	return nil
}

var workflowGenerateCmd = &cobra.Command{
	Use:   "workflow:generate",
	Short: "Generate a new workflow script from a description",
	Long: `Generate a catalog-compatible workflow script from a plain-language
description.

The remote model is tried first when an API key is configured, then the
keyword template. If every strategy fails a minimal skeleton is written.
The output is written to generation.output_dir unless --out is given, and an
existing file is only replaced with --force.

Examples:
  autohub workflow:generate -d "move old pdf files to the archive folder"
  autohub workflow:generate -d "weekly excel sales report" -c Reports --examples
  autohub workflow:generate -d "send a reminder email" --dry-run`,
	Args: cobra.NoArgs,
	RunE: runGenerate,
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	if genDescription == "" {
		return fmt.Errorf("--description is required")
	}
	a, err := openApp()
	if err != nil {
		return err
	}
	defer closeApp(a)

	req := generate.Request{
		Description: genDescription,
		Category:    genCategory,
		UseExamples: genExamples,
	}
	if genExamples {
		if _, err := a.Scan(cmd.Context()); err != nil {
			return err
		}
		req.Examples = exampleScripts(a.Catalog().List(""))
	}

	out, err := a.Generator().Generate(cmd.Context(), req)
	if err != nil {
		return err
	}

	if genDryRun {
		_, err := fmt.Fprint(cmd.OutOrStdout(), out.Script)
		return err
	}

	path := genOut
	if path == "" {
		path = filepath.Join(a.Config().OutputDir(), scriptFileName(out.Metadata))
	}
	if existing, err := os.ReadFile(path); err == nil { //nolint:gosec // path is user-controlled output path
		if diff := presentation.LineDiff(path, string(existing), out.Script); diff != "" {
			fmt.Fprint(cmd.OutOrStdout(), diff)
		}
		if !genForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(out.Script), 0o600); err != nil {
		return fmt.Errorf("writing script: %w", err)
	}

	f, err := formatter(cmd)
	if err != nil {
		return err
	}
	return f.FormatGenerate(presentation.FromOutput(path, out))
}

// exampleScripts returns up to three user scripts from the catalog.
func exampleScripts(descs []*workflow.Descriptor) []string {
	var out []string
	for _, d := range descs {
		if d.Source() != workflow.SourceUser {
			continue
		}
		content, err := os.ReadFile(d.SourcePath())
		if err != nil {
			continue
		}
		out = append(out, string(content))
		if len(out) == 3 {
			break
		}
	}
	return out
}

// scriptFileName derives a snake_case .py file name from the workflow name.
func scriptFileName(m *workflow.Metadata) string {
	name := "generated_workflow"
	if m != nil && m.Name != "" {
		name = m.Name
	}
	b := make([]rune, 0, len(name))
	underscore := false
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b = append(b, r)
			underscore = false
		case r >= 'A' && r <= 'Z':
			b = append(b, r+('a'-'A'))
			underscore = false
		default:
			if !underscore && len(b) > 0 {
				b = append(b, '_')
				underscore = true
			}
		}
	}
	for len(b) > 0 && b[len(b)-1] == '_' {
		b = b[:len(b)-1]
	}
	if len(b) == 0 {
		return "generated_workflow.py"
	}
	return string(b) + ".py"
}

func init() {
	workflowListCmd.Flags().StringVarP(&listCategory, "category", "c", "", "only list workflows in this category")
	workflowListCmd.Flags().BoolVar(&listCategories, "categories", false, "print the category names instead of workflows")
	addOutputFlag(workflowListCmd)

	workflowShowCmd.Flags().BoolVar(&showRender, "render", false, "render as markdown")
	workflowShowCmd.Flags().BoolVar(&showForm, "form", false, "print the parameter form description as JSON")
	addOutputFlag(workflowShowCmd)

	workflowRunCmd.Flags().StringArrayVarP(&runArgs, "arg", "a", nil, "argument as key=value (repeatable)")
	workflowRunCmd.Flags().StringVar(&runArgsJSON, "args-json", "", "arguments as a JSON object")
	workflowRunCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "cancel the run after this long")
	addOutputFlag(workflowRunCmd)

	workflowGenerateCmd.Flags().StringVarP(&genDescription, "description", "d", "", "what the workflow should do (required)")
	workflowGenerateCmd.Flags().StringVarP(&genCategory, "category", "c", "", "category for the generated workflow (default: Custom)")
	workflowGenerateCmd.Flags().BoolVar(&genExamples, "examples", false, "include existing scripts as examples for the model")
	workflowGenerateCmd.Flags().StringVar(&genOut, "out", "", "output path (default: generation.output_dir/<name>.py)")
	workflowGenerateCmd.Flags().BoolVar(&genForce, "force", false, "overwrite an existing file")
	workflowGenerateCmd.Flags().BoolVar(&genDryRun, "dry-run", false, "print the script instead of writing it")
	addOutputFlag(workflowGenerateCmd)

	rootCmd.AddCommand(workflowListCmd, workflowShowCmd, workflowRunCmd, workflowGenerateCmd)
}
