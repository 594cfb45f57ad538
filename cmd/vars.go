package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/catflap/catflap/internal/reference"
	"github.com/catflap/catflap/internal/template"
)

var (
	varsMarkdown bool
	varsFilter   string
	varsTemplate string
)

var varsCmd = &cobra.Command{
	Use:   "vars",
	Short: "List the built-in template variables",
	Long: `List the built-in template variables.

Indexed families are shown with N for the match index and M for the step
index, e.g. matchN_stepM_path.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format := reference.Text
		if varsMarkdown {
			format = reference.Markdown
		}

		gen := reference.NewTableGenerator(format)
		if varsTemplate != "" {
			gen.WithTemplate(varsTemplate)
		}
		if err := gen.LoadTemplate(); err != nil {
			return fmt.Errorf("loading table template: %w", err)
		}

		output, err := gen.Generate("template variables", reference.Filter(template.Variables(), varsFilter))
		if err != nil {
			return fmt.Errorf("generating table: %w", err)
		}

		fmt.Fprint(cmd.OutOrStdout(), output)
		return nil
	},
}

func init() {
	varsCmd.Flags().BoolVar(&varsMarkdown, "markdown", false, "print a markdown table")
	varsCmd.Flags().StringVar(&varsFilter, "filter", "", "only list variables whose name contains this text")
	varsCmd.Flags().StringVar(&varsTemplate, "template", "", "custom table template (text/template)")
	rootCmd.AddCommand(varsCmd)
}
