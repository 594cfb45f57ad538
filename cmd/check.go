package cmd

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/catflap/catflap/internal/config"
	"github.com/catflap/catflap/internal/errors"
)

var checkSnapshot string

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check every configured template",
	Long: `Check every configured template.

Each template is loaded in order and rendered against a snapshot without
writing anything. Reports:
  - Templates that fail to load, e.g. a missing required variable
  - Templates that fail to render
  - Templates that never generate (nop)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		result, err := runChecks(cfg)
		if err != nil {
			return err
		}

		printCheckResults(cmd.OutOrStdout(), result)
		if result.Failed() {
			return fmt.Errorf("%d template(s) rejected", len(result.LoadErrors)+len(result.RenderErrors))
		}
		return nil
	},
}

func init() {
	checkCmd.Flags().StringVar(&checkSnapshot, "snapshot", "", "state snapshot file (yaml)")
	rootCmd.AddCommand(checkCmd)
}

// CheckResult holds the results of all template checks.
type CheckResult struct {
	Checked      int
	LoadErrors   []CheckFailure // Templates rejected at load time
	RenderErrors []CheckFailure // Templates that fail to render
	Disabled     []string       // Templates with %!nop
}

// CheckFailure is a template that did not pass a check.
type CheckFailure struct {
	File string
	Code errors.ErrorCode
	Err  error
}

// Failed reports whether any template was rejected.
func (r *CheckResult) Failed() bool {
	return len(r.LoadErrors) > 0 || len(r.RenderErrors) > 0
}

// runChecks loads and renders every configured template.
func runChecks(cfg *config.Config) (*CheckResult, error) {
	engine, err := newEngine(cfg)
	if err != nil {
		return nil, err
	}

	snap, err := buildSnapshot(cfg, checkSnapshot)
	if err != nil {
		return nil, err
	}

	files, err := cfg.TemplateFiles(configDir())
	if err != nil {
		return nil, fmt.Errorf("listing templates: %w", err)
	}

	result := &CheckResult{}
	for _, file := range files {
		result.Checked++

		t, err := engine.LoadFile(file)
		if err != nil {
			result.LoadErrors = append(result.LoadErrors, CheckFailure{File: file, Code: errors.GetErrorCode(err), Err: err})
			continue
		}
		if t.Settings.Nop {
			result.Disabled = append(result.Disabled, file)
		}
	}

	for _, t := range engine.Templates() {
		if _, err := engine.RenderTemplate(snap, "check", t); err != nil {
			result.RenderErrors = append(result.RenderErrors, CheckFailure{File: t.Source, Code: errors.GetErrorCode(err), Err: err})
		}
	}

	return result, nil
}

// printCheckResults prints the check results in a formatted way.
func printCheckResults(w io.Writer, result *CheckResult) {
	fmt.Fprintln(w, "## 🐈 Template Status")
	fmt.Fprintln(w)

	printFailures(w, "Rejected at Load", result.LoadErrors)
	printFailures(w, "Failed to Render", result.RenderErrors)

	if len(result.Disabled) > 0 {
		fmt.Fprintf(w, "### Disabled (%d)\n", len(result.Disabled))
		fmt.Fprintln(w)
		for _, file := range result.Disabled {
			fmt.Fprintf(w, "- `%s`\n", filepath.Base(file))
		}
		fmt.Fprintln(w)
	}

	if !result.Failed() {
		fmt.Fprintf(w, "✅ All %d templates passed\n", result.Checked)
	}
}

func printFailures(w io.Writer, title string, failures []CheckFailure) {
	if len(failures) == 0 {
		return
	}
	fmt.Fprintf(w, "### %s (%d)\n", title, len(failures))
	fmt.Fprintln(w)
	for _, f := range failures {
		fmt.Fprintf(w, "- [ ] `%s` %s: %v\n", filepath.Base(f.File), f.Code, f.Err)
	}
	fmt.Fprintln(w)
}
