package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"text/template"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catflap/catflap/internal/config"
	"github.com/catflap/catflap/internal/errors"
	"github.com/catflap/catflap/internal/runtime"
	"github.com/catflap/catflap/internal/snapshot"
	catflap "github.com/catflap/catflap/internal/template"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestBuildSnapshotFromConfig(t *testing.T) {
	cfg := &config.Config{
		Paths:  snapshot.Paths{Output: "/var/catflap"},
		Device: snapshot.Settings{Matcher: "haar", LockoutTime: 30},
	}

	snap, err := buildSnapshot(cfg, "")
	require.NoError(t, err)
	assert.Equal(t, "/var/catflap", snap.Paths.Output)
	assert.Equal(t, "haar", snap.Settings.Matcher)
	assert.False(t, snap.Time.IsZero())
	assert.Equal(t, runtime.Version, snap.Build.Version)
}

func TestBuildSnapshotFromFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "snap.yml", `
time: 2024-03-09T14:05:07Z
state: Lockout
build:
  version: 1.2.3
`)

	cfg := &config.Config{Paths: snapshot.Paths{Output: "out"}}
	snap, err := buildSnapshot(cfg, path)
	require.NoError(t, err)
	assert.Equal(t, "Lockout", snap.State)
	assert.Equal(t, "out", snap.Paths.Output)
	assert.Equal(t, "1.2.3", snap.Build.Version)
	assert.True(t, snap.Time.Equal(time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)))

	_, err = buildSnapshot(cfg, filepath.Join(dir, "missing.yml"))
	assert.Error(t, err)
}

func TestLoadTemplatesSkipsFiles(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "%!name a\nfirst")
	writeFile(t, dir, "b.txt", "%!name b\nsecond")

	cfg := &config.Config{Templates: []string{filepath.Join(dir, "*.txt")}}

	engine, err := newEngine(cfg)
	require.NoError(t, err)
	require.NoError(t, loadTemplates(engine, cfg, a))

	templates := engine.Templates()
	require.Len(t, templates, 1)
	assert.Equal(t, "b", templates[0].Name)

	// Loading the skipped file afterwards does not collide with itself.
	_, err = engine.LoadFile(a)
	assert.NoError(t, err)
}

func TestNewEngineUserVariables(t *testing.T) {
	cfg := &config.Config{UserVars: []string{"site back door"}}
	engine, err := newEngine(cfg)
	require.NoError(t, err)

	v, ok := engine.UserVariable("site")
	require.True(t, ok)
	assert.Equal(t, "back door", v)
}

func TestRunChecks(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "1_good.txt", "hello %state%")
	writeFile(t, dir, "2_required.txt", "%!required nosuch\nbody")
	writeFile(t, dir, "3_render.txt", "%match9_path%")
	writeFile(t, dir, "4_nop.txt", "%!nop\nbody")

	cfg := &config.Config{Templates: []string{filepath.Join(dir, "*.txt")}}
	result, err := runChecks(cfg)
	require.NoError(t, err)

	assert.Equal(t, 4, result.Checked)
	assert.True(t, result.Failed())

	require.Len(t, result.LoadErrors, 1)
	assert.Equal(t, errors.ErrMissingRequiredVariable, result.LoadErrors[0].Code)

	require.Len(t, result.RenderErrors, 1)
	assert.Equal(t, errors.ErrIndexOutOfRange, result.RenderErrors[0].Code)
	assert.Equal(t, "3_render.txt", filepath.Base(result.RenderErrors[0].File))

	require.Len(t, result.Disabled, 1)

	var buf bytes.Buffer
	printCheckResults(&buf, result)
	assert.Contains(t, buf.String(), "### Rejected at Load (1)")
	assert.Contains(t, buf.String(), "### Failed to Render (1)")
	assert.Contains(t, buf.String(), "`4_nop.txt`")
}

func TestScaffoldTemplateRenders(t *testing.T) {
	tmpl, err := template.New("scaffold").Parse(defaultScaffoldTemplate())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, tmpl.Execute(&buf, ScaffoldData{Name: "door_log", Title: "Door Log", Event: "match_group_done"}))

	engine := catflap.New()
	tpl, err := engine.Add(buf.String(), "unused")
	require.NoError(t, err)
	assert.Equal(t, "door_log", tpl.Name)
	assert.True(t, tpl.Settings.MatchesEvent("match_group_done"))
	assert.False(t, tpl.Settings.MatchesEvent("obstruct"))

	snap := &snapshot.Snapshot{
		Group: snapshot.MatchGroup{
			Success: true,
			Matches: []snapshot.Match{
				{Path: snapshot.SplitPath("a.png"), Success: true},
				{Path: snapshot.SplitPath("b.png")},
			},
		},
	}
	out, err := engine.RenderTemplate(snap, "match_group_done", tpl)
	require.NoError(t, err)

	assert.Contains(t, out, `"title": "Door Log"`)
	assert.Contains(t, out, `"event": "match_group_done"`)
	assert.Contains(t, out, `"success": 1,`)
	assert.Equal(t, 2, strings.Count(out, `{"path": `))
	assert.Contains(t, out, `{"path": "a.png", "result": 0.000000, "success": 1},`)
}
