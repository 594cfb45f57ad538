// Package reference renders the catalogue of built-in template variables.
package reference

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	catflap "github.com/catflap/catflap/internal/template"
	"github.com/catflap/catflap/internal/types"
)

// Format selects one of the built-in table layouts.
type Format string

const (
	Markdown Format = "markdown"
	Text     Format = "text"
)

const markdownTable = `## {{ .Title }}

| Variable | Type | Description |
| -------- | ---- | ----------- |
{{- range .Rows }}
| ` + "`%{{ .Name }}%`" + ` | {{ .Kind }} | {{ .Description }}{{ if .Arg }} ({{ .Arg }}){{ end }} |
{{- end }}
`

const textTable = `{{ title .Title }}
{{ range .Rows -}}
{{ printf "%-34s" .Name }} {{ printf "%-7s" (keyword .Kind) }} {{ .Description }}
{{ end -}}
`

// Row is one variable in the table.
type Row struct {
	Name        string
	Kind        string
	Arg         string
	Description string
}

// TableData holds data for the table template.
type TableData struct {
	Title string
	Rows  []Row
}

var templateFuncs = template.FuncMap{
	"keyword": types.Keyword,
	"title":   cases.Title(language.English).String,
}

// TableGenerator renders variable tables.
type TableGenerator struct {
	templatePath string
	format       Format
	tmpl         *template.Template
}

// NewTableGenerator creates a generator using one of the built-in formats.
func NewTableGenerator(format Format) *TableGenerator {
	return &TableGenerator{format: format}
}

// LoadTemplate parses the table template, from templatePath if one was
// set with WithTemplate, or from the built-in layout.
func (g *TableGenerator) LoadTemplate() error {
	var content string
	switch {
	case g.templatePath != "":
		data, err := os.ReadFile(g.templatePath)
		if err != nil {
			return fmt.Errorf("reading template: %w", err)
		}
		content = string(data)
	case g.format == Markdown:
		content = markdownTable
	case g.format == Text || g.format == "":
		content = textTable
	default:
		return fmt.Errorf("unknown table format %q", g.format)
	}

	tmpl, err := template.New("reference").Funcs(templateFuncs).Parse(content)
	if err != nil {
		return fmt.Errorf("parsing template: %w", err)
	}

	g.tmpl = tmpl
	return nil
}

// WithTemplate makes LoadTemplate read a custom table template.
func (g *TableGenerator) WithTemplate(path string) *TableGenerator {
	g.templatePath = path
	return g
}

// Generate renders the table for vars. Returns an empty string if vars is
// empty.
func (g *TableGenerator) Generate(title string, vars []catflap.VariableInfo) (string, error) {
	if len(vars) == 0 {
		return "", nil
	}
	if g.tmpl == nil {
		return "", fmt.Errorf("template not loaded")
	}

	data := TableData{Title: title, Rows: make([]Row, 0, len(vars))}
	for _, v := range vars {
		data.Rows = append(data.Rows, Row{
			Name:        v.Name,
			Kind:        v.Kind,
			Arg:         types.ArgHint(v.Kind),
			Description: strings.ReplaceAll(v.Description, "|", `\|`),
		})
	}

	var buf bytes.Buffer
	if err := g.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("executing template: %w", err)
	}

	return buf.String(), nil
}

// Filter returns the variables whose name contains substr.
func Filter(vars []catflap.VariableInfo, substr string) []catflap.VariableInfo {
	if substr == "" {
		return vars
	}
	var out []catflap.VariableInfo
	for _, v := range vars {
		if strings.Contains(v.Name, substr) {
			out = append(out, v)
		}
	}
	return out
}
