package reference

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	catflap "github.com/catflap/catflap/internal/template"
	"github.com/catflap/catflap/internal/types"
)

var sampleVars = []catflap.VariableInfo{
	{Name: "match_group_id", Kind: types.Hash, Description: "Match group hash"},
	{Name: "state", Kind: types.String, Description: "Current state | machine"},
	{Name: "match_success", Kind: types.Bool, Description: "Match group success"},
}

func TestMarkdownTable(t *testing.T) {
	g := NewTableGenerator(Markdown)
	require.NoError(t, g.LoadTemplate())

	out, err := g.Generate("Variables", sampleVars)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "## Variables\n"))
	assert.Contains(t, out, "| `%match_group_id%` | hash | Match group hash (:K keeps the first K hex characters) |")
	assert.Contains(t, out, `| `+"`%state%`"+` | string | Current state \| machine |`)
	assert.Contains(t, out, "| `%match_success%` | bool (1/0) | Match group success |")
}

func TestTextTable(t *testing.T) {
	g := NewTableGenerator(Text)
	require.NoError(t, g.LoadTemplate())

	out, err := g.Generate("template variables", sampleVars)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Template Variables", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "match_group_id "))
	assert.Contains(t, lines[3], " bool ")
	assert.NotContains(t, lines[3], "(1/0)")
}

func TestGenerateEmpty(t *testing.T) {
	g := NewTableGenerator(Markdown)
	require.NoError(t, g.LoadTemplate())

	out, err := g.Generate("Variables", nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestGenerateWithoutTemplate(t *testing.T) {
	_, err := NewTableGenerator(Markdown).Generate("Variables", sampleVars)
	assert.Error(t, err)
}

func TestUnknownFormat(t *testing.T) {
	assert.Error(t, NewTableGenerator("html").LoadTemplate())
}

func TestCustomTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.tmpl")
	require.NoError(t, os.WriteFile(path, []byte(`{{ range .Rows }}{{ .Name }}={{ keyword .Kind }};{{ end }}`), 0644))

	g := NewTableGenerator(Markdown).WithTemplate(path)
	require.NoError(t, g.LoadTemplate())

	out, err := g.Generate("", sampleVars)
	require.NoError(t, err)
	assert.Equal(t, "match_group_id=hash;state=string;match_success=bool;", out)

	missing := NewTableGenerator(Markdown).WithTemplate(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, missing.LoadTemplate())
}

func TestCatalogueRenders(t *testing.T) {
	g := NewTableGenerator(Markdown)
	require.NoError(t, g.LoadTemplate())

	out, err := g.Generate("Variables", catflap.Variables())
	require.NoError(t, err)
	assert.Contains(t, out, "`%matchN_path%`")
	assert.Contains(t, out, "`%snoutN%`")
}

func TestFilter(t *testing.T) {
	assert.Len(t, Filter(sampleVars, ""), 3)
	got := Filter(sampleVars, "match")
	require.Len(t, got, 2)
	assert.Equal(t, "match_group_id", got[0].Name)
	assert.Empty(t, Filter(sampleVars, "zzz"))
}
