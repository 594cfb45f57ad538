package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	renderEvent    string
	renderSnapshot string
	renderAll      bool
)

var renderCmd = &cobra.Command{
	Use:   "render <template-file>",
	Short: "Render a template to stdout",
	Long: `Render a template to stdout without writing any output.

The template is rendered against the snapshot given with --snapshot, or an
idle snapshot built from the configuration. Use --all to also load the
configured templates, so that %template_path:NAME% can refer to them.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		engine, err := newEngine(cfg)
		if err != nil {
			return err
		}
		if renderAll {
			if err := loadTemplates(engine, cfg, args[0]); err != nil {
				return err
			}
		}

		snap, err := buildSnapshot(cfg, renderSnapshot)
		if err != nil {
			return err
		}

		content, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading template: %w", err)
		}

		output, err := engine.Render(snap, renderEvent, string(content))
		if err != nil {
			return fmt.Errorf("rendering %s: %w", args[0], err)
		}

		fmt.Fprint(cmd.OutOrStdout(), output)
		return nil
	},
}

func init() {
	renderCmd.Flags().StringVar(&renderEvent, "event", "preview", "event name exposed as %event%")
	renderCmd.Flags().StringVar(&renderSnapshot, "snapshot", "", "state snapshot file (yaml)")
	renderCmd.Flags().BoolVar(&renderAll, "all", false, "load the configured templates first")
	rootCmd.AddCommand(renderCmd)
}
