package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	scaffoldTemplate string
	scaffoldOutput   string
	scaffoldEvent    string
	scaffoldForce    bool
)

var scaffoldCmd = &cobra.Command{
	Use:   "scaffold <name>",
	Short: "Generate a starter output template",
	Long: `Generate a starter output template.

Creates a template with a settings header that lists every match of the
group as JSON. The file is written to templates/<name>.json unless --output
is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return scaffoldTemplateFile(cmd, args[0])
	},
}

func init() {
	scaffoldCmd.Flags().StringVar(&scaffoldTemplate, "template", "", "path to scaffold template (default: built-in)")
	scaffoldCmd.Flags().StringVar(&scaffoldOutput, "output", "", "output path override")
	scaffoldCmd.Flags().StringVar(&scaffoldEvent, "event", "match_group_done", "event the template listens for")
	scaffoldCmd.Flags().BoolVar(&scaffoldForce, "force", false, "overwrite existing file if present")
	rootCmd.AddCommand(scaffoldCmd)
}

// ScaffoldData contains data for the scaffold template.
type ScaffoldData struct {
	Name  string // e.g., "door_log"
	Title string // e.g., "Door Log"
	Event string // e.g., "match_group_done"
}

// scaffoldTemplateFile creates a new template file.
func scaffoldTemplateFile(cmd *cobra.Command, name string) error {
	outputPath := scaffoldOutput
	if outputPath == "" {
		outputPath = filepath.Join("templates", name+".json")
	}

	// Check if file already exists
	if _, err := os.Stat(outputPath); err == nil && !scaffoldForce {
		return fmt.Errorf("file %s already exists (use --force to overwrite)", outputPath)
	}

	titleCaser := cases.Title(language.English)
	data := ScaffoldData{
		Name:  name,
		Title: titleCaser.String(strings.NewReplacer("_", " ", "-", " ").Replace(name)),
		Event: scaffoldEvent,
	}

	var tmpl *template.Template
	var err error
	if scaffoldTemplate == "" {
		tmpl, err = template.New("scaffold").Parse(defaultScaffoldTemplate())
		if err != nil {
			return fmt.Errorf("parsing default template: %w", err)
		}
	} else {
		tmpl, err = template.ParseFiles(scaffoldTemplate)
		if err != nil {
			return fmt.Errorf("parsing template file: %w", err)
		}
	}

	// Ensure output directory exists
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer file.Close()

	if err := tmpl.Execute(file, data); err != nil {
		return fmt.Errorf("executing template: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", outputPath)
	return nil
}

// defaultScaffoldTemplate returns the built-in scaffold template.
func defaultScaffoldTemplate() string {
	return `%!event {{.Event}}
%!name {{.Name}}
%!filename {{.Name}}_%time:@Y@m@d_@H@M@S%.json
%!topic catflap/{{.Name}}
{
  "title": "{{.Title}}",
  "event": "%event%",
  "time": "%time%",
  "id": "%match_group_id:8%",
  "success": %match_group_success%,
  "matches": [
%for i in 1..match_count%
    {"path": "%match$i$_path|rel%", "result": %match$i$_result%, "success": %match$i$_success%},
%endfor%
    null
  ]
}
`
}
