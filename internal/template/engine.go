package template

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/catflap/catflap/internal/errors"
	"github.com/catflap/catflap/internal/logging"
	"github.com/catflap/catflap/internal/sink"
	"github.com/catflap/catflap/internal/snapshot"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// UserVariable is a configured name/value pair.
type UserVariable struct {
	Name  string
	Value string
}

// Engine handles template loading, rendering and generation.
type Engine struct {
	registry *Registry
	userVars []UserVariable
	userIdx  map[string]int
	sinks    []sink.Sink
	topic    string
	log      zerolog.Logger
}

// New creates a new template engine.
func New() *Engine {
	return &Engine{
		registry: &Registry{},
		userIdx:  make(map[string]int),
		log:      logging.GetLogger("template"),
	}
}

// AddSink registers a sink that receives generated output.
func (e *Engine) AddSink(s sink.Sink) {
	e.sinks = append(e.sinks, s)
}

// SetTopic sets the topic pattern for templates without a topic setting.
func (e *Engine) SetTopic(pattern string) {
	e.topic = pattern
}

// AddUserVariable adds or replaces a user variable.
func (e *Engine) AddUserVariable(name, value string) error {
	if !identPattern.MatchString(name) {
		return errors.Newf(errors.ErrInvalidArgument, "invalid user variable name %q", name)
	}
	if i, ok := e.userIdx[name]; ok {
		e.userVars[i].Value = value
		return nil
	}
	e.userIdx[name] = len(e.userVars)
	e.userVars = append(e.userVars, UserVariable{Name: name, Value: value})
	return nil
}

// ParseUserVariable splits a "name value" definition.
func ParseUserVariable(def string) (UserVariable, error) {
	name, value, ok := strings.Cut(strings.TrimSpace(def), " ")
	if !ok || strings.TrimSpace(value) == "" {
		return UserVariable{}, errors.Newf(errors.ErrInvalidArgument, "user variable %q needs a value, want \"name value\"", def)
	}
	if !identPattern.MatchString(name) {
		return UserVariable{}, errors.Newf(errors.ErrInvalidArgument, "invalid user variable name %q", name)
	}
	return UserVariable{Name: name, Value: strings.TrimSpace(value)}, nil
}

// UserVariable returns the value of a user variable.
func (e *Engine) UserVariable(name string) (string, bool) {
	i, ok := e.userIdx[name]
	if !ok {
		return "", false
	}
	return e.userVars[i].Value, true
}

// UserVariables returns the user variables in insertion order.
func (e *Engine) UserVariables() []UserVariable {
	out := make([]UserVariable, len(e.userVars))
	copy(out, e.userVars)
	return out
}

// Known reports whether name is a built-in or user variable. Indexed
// names are checked for structure only, not against live counts.
func (e *Engine) Known(name string) bool {
	if _, ok := globalVars[name]; ok {
		return true
	}
	if _, ok := parseKey(name); ok {
		return true
	}
	_, ok := e.userIdx[name]
	return ok
}

// LoadFile loads a template from a file path. The file's base name is the
// output pattern unless the settings header sets a filename.
func (e *Engine) LoadFile(path string) (*Template, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrLoad, "reading template file %s", path)
	}

	return e.load(string(content), filepath.Base(path), path)
}

// Add registers a template from a string. The pattern may start with
// "[name]" to name the template.
func (e *Engine) Add(content, pattern string) (*Template, error) {
	return e.load(content, pattern, "")
}

func (e *Engine) load(content, pattern, source string) (*Template, error) {
	settings, body, err := ParseSettings(content)
	if err != nil {
		return nil, err
	}

	name := settings.Name
	if strings.HasPrefix(pattern, "[") {
		end := strings.IndexByte(pattern, ']')
		if end < 0 {
			return nil, errors.Newf(errors.ErrLoad, "unterminated name in output pattern %q", pattern)
		}
		if name == "" {
			name = pattern[1:end]
		}
		pattern = pattern[end+1:]
	}
	if settings.Filename != "" {
		pattern = settings.Filename
	}
	if strings.TrimSpace(pattern) == "" {
		return nil, errors.New(errors.ErrLoad, "template has no output pattern")
	}

	if strings.HasPrefix(name, "#") {
		return nil, errors.Newf(errors.ErrLoad, "template name %q must not start with #", name)
	}
	if name != "" {
		if _, exists := e.registry.Lookup(name); exists {
			return nil, errors.Newf(errors.ErrLoad, "a template named %q is already loaded", name)
		}
	}

	if err := e.checkRequired(settings); err != nil {
		return nil, err
	}

	t := &Template{
		Name:     name,
		Source:   source,
		Body:     body,
		Pattern:  pattern,
		Settings: settings,
	}
	e.registry.Add(t)

	e.log.Debug().
		Str("template", t.String()).
		Str("pattern", t.Pattern).
		Strs("events", settings.Events).
		Msg("Loaded template")
	return t, nil
}

func (e *Engine) checkRequired(s *Settings) error {
	var missing []string
	for _, name := range s.Required {
		if !e.Known(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return errors.Newf(errors.ErrMissingRequiredVariable, "required variables not defined: %s", strings.Join(missing, ", ")).
			WithDetail("missing", missing)
	}
	return nil
}

// Templates returns the registered templates in load order.
func (e *Engine) Templates() []*Template {
	return e.registry.All()
}

// Lookup finds a template by explicit name.
func (e *Engine) Lookup(name string) (*Template, bool) {
	return e.registry.Lookup(name)
}

// Render renders template text against snap without writing any output.
// The text may carry a settings header, which is validated but not
// registered.
func (e *Engine) Render(snap *snapshot.Snapshot, event, text string) (string, error) {
	settings, body, err := ParseSettings(text)
	if err != nil {
		return "", err
	}
	if err := e.checkRequired(settings); err != nil {
		return "", err
	}

	preview := &Template{Body: body, Pattern: settings.Filename, Settings: settings, index: -1}
	return newCall(e, snap, event).render(preview)
}

// RenderTemplate renders a registered template without writing any output.
func (e *Engine) RenderTemplate(snap *snapshot.Snapshot, event string, t *Template) (string, error) {
	return newCall(e, snap, event).render(t)
}

// render evaluates the body of t. No partial output is returned on error.
func (c *call) render(t *Template) (string, error) {
	nodes, err := parse(t.Body)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	r := &renderer{call: c, tmpl: t}
	if err := r.render(nodes, &b); err != nil {
		return "", err
	}
	return b.String(), nil
}
