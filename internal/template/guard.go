package template

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/catflap/catflap/internal/errors"
	"github.com/catflap/catflap/internal/snapshot"
)

// call holds the state of one Generate or Render invocation. Nothing in
// it outlives the invocation.
type call struct {
	eng   *Engine
	snap  *snapshot.Snapshot
	event string

	busy     map[string]struct{}  // Variables currently being resolved
	settings map[string]string    // Resolved output path settings
	paths    map[*Template]string // Resolved template output paths
	roots    map[*Template]string
	cwd      string
}

func newCall(e *Engine, snap *snapshot.Snapshot, event string) *call {
	if snap == nil {
		snap = &snapshot.Snapshot{}
	}
	return &call{
		eng:      e,
		snap:     snap,
		event:    event,
		busy:     make(map[string]struct{}),
		settings: make(map[string]string),
		paths:    make(map[*Template]string),
		roots:    make(map[*Template]string),
	}
}

// enter marks key as being resolved. The returned func must be called
// once resolution of key finishes, successfully or not.
func (c *call) enter(key string) (func(), error) {
	if _, ok := c.busy[key]; ok {
		return nil, errors.Newf(errors.ErrRecursiveDefinition, "%s refers back to itself", key).WithDetail("variable", key)
	}
	c.busy[key] = struct{}{}
	return func() { delete(c.busy, key) }, nil
}

// expandPattern renders a path or topic pattern. Patterns allow variable
// substitution only.
func (c *call) expandPattern(t *Template, pattern string) (string, error) {
	nodes, err := parse(pattern)
	if err != nil {
		return "", err
	}
	for _, n := range nodes {
		if n.kind == forNode || n.kind == ifNode {
			return "", errors.Newf(errors.ErrSyntax, "control blocks are not allowed in pattern %q", pattern)
		}
	}

	var b strings.Builder
	r := &renderer{call: c, tmpl: t}
	if err := r.render(nodes, &b); err != nil {
		return "", err
	}
	return b.String(), nil
}

// outputSetting resolves one of the output path settings, such as
// output_path or match_output_path.
func (c *call) outputSetting(name string) (string, error) {
	if s, ok := c.settings[name]; ok {
		return s, nil
	}

	done, err := c.enter(name)
	if err != nil {
		return "", err
	}
	defer done()

	s, err := c.expandPattern(nil, settingPattern(c.snap.Paths, name))
	if err != nil {
		return "", err
	}
	c.settings[name] = s
	return s, nil
}

func settingPattern(p snapshot.Paths, name string) string {
	var pattern string
	switch name {
	case "output_path":
		return p.Output
	case "match_output_path":
		pattern = p.Match
	case "steps_output_path":
		pattern = p.Steps
	case "obstruct_output_path":
		pattern = p.Obstruct
	case "template_output_path":
		pattern = p.Template
	}
	if pattern == "" {
		pattern = "%output_path%"
	}
	return pattern
}

// templatePath resolves the output path of t once per call.
func (c *call) templatePath(t *Template) (string, error) {
	if p, ok := c.paths[t]; ok {
		return p, nil
	}

	done, err := c.enter("template_path:" + t.ID())
	if err != nil {
		return "", err
	}
	defer done()

	if t.Pattern == "" {
		return "", errors.Newf(errors.ErrUnknownTemplate, "template %s has no output pattern", t)
	}

	dir, err := c.outputSetting("template_output_path")
	if err != nil {
		return "", err
	}
	name, err := c.expandPattern(t, t.Pattern)
	if err != nil {
		return "", err
	}
	name = strings.ReplaceAll(name, " ", "_")

	p := name
	if dir != "" && !filepath.IsAbs(name) {
		p = filepath.Join(dir, name)
	}
	c.paths[t] = p
	return p, nil
}

// rootPath returns the base directory for t's relative paths.
func (c *call) rootPath(t *Template) (string, error) {
	if t == nil {
		return ".", nil
	}
	if p, ok := c.roots[t]; ok {
		return p, nil
	}

	done, err := c.enter("root_path:" + t.ID())
	if err != nil {
		return "", err
	}
	defer done()

	var root string
	switch {
	case t.Settings.RootPath != "":
		root, err = c.expandPattern(t, t.Settings.RootPath)
	case t.Pattern != "":
		var p string
		p, err = c.templatePath(t)
		root = snapshot.SplitPath(p).Dir
	}
	if err != nil {
		return "", err
	}
	if root == "" {
		root = "."
	}
	c.roots[t] = root
	return root, nil
}

func (c *call) workingDir() string {
	if c.cwd == "" {
		wd, err := os.Getwd()
		if err != nil {
			wd = "."
		}
		c.cwd = wd
	}
	return c.cwd
}
