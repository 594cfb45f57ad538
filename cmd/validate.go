package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/catflap/catflap/internal/config"
)

var validateSnapshot string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and templates",
	Long:  "Validate the configuration file and template files without writing any output.",
}

var validateConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Validate the configuration file",
	Long:  "Validate the configuration file for required fields and correct format.",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Load() calls Validate() automatically
		if _, err := config.Load(GetConfigPath()); err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), "✅ Config is valid")
		return nil
	},
}

var validateTemplateCmd = &cobra.Command{
	Use:   "template <file>...",
	Short: "Validate template files",
	Long: `Validate template files.

Each file is loaded after the configured templates, so named template
references resolve, and then rendered against a snapshot. Nothing is written.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return validateTemplates(cmd, cfg, args)
	},
}

func init() {
	validateTemplateCmd.Flags().StringVar(&validateSnapshot, "snapshot", "", "state snapshot file (yaml)")
	validateCmd.AddCommand(validateConfigCmd)
	validateCmd.AddCommand(validateTemplateCmd)
	rootCmd.AddCommand(validateCmd)
}

// validateTemplates loads and renders every file in paths.
func validateTemplates(cmd *cobra.Command, cfg *config.Config, paths []string) error {
	snap, err := buildSnapshot(cfg, validateSnapshot)
	if err != nil {
		return err
	}

	failed := 0
	for _, path := range paths {
		engine, err := newEngine(cfg)
		if err != nil {
			return err
		}
		if err := loadTemplates(engine, cfg, path); err != nil {
			return err
		}

		t, err := engine.LoadFile(path)
		if err == nil {
			_, err = engine.RenderTemplate(snap, "validate", t)
		}
		if err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", path, err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✅ %s\n", path)
	}

	if failed > 0 {
		return fmt.Errorf("%d template(s) invalid", failed)
	}
	return nil
}
