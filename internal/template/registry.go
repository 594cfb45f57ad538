package template

import "fmt"

// Template is a loaded output template.
type Template struct {
	Name     string // Explicit name, empty for default templates
	Source   string // File the template was loaded from, if any
	Body     string
	Pattern  string // Output path pattern
	Settings *Settings

	index int
}

// ID identifies the template in guard keys and logs.
func (t *Template) ID() string {
	if t.Name != "" {
		return t.Name
	}
	return fmt.Sprintf("#%d", t.index)
}

func (t *Template) String() string {
	switch {
	case t.Name != "":
		return t.Name
	case t.Source != "":
		return t.Source
	default:
		return t.ID()
	}
}

// Registry is an ordered, append-only collection of templates.
type Registry struct {
	templates []*Template
}

// Add appends t.
func (r *Registry) Add(t *Template) {
	t.index = len(r.templates)
	r.templates = append(r.templates, t)
}

// Lookup finds a template by explicit name.
func (r *Registry) Lookup(name string) (*Template, bool) {
	if name == "" {
		return nil, false
	}
	for _, t := range r.templates {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// Default returns the first template loaded without an explicit name.
func (r *Registry) Default() (*Template, bool) {
	for _, t := range r.templates {
		if t.Name == "" {
			return t, true
		}
	}
	return nil, false
}

// All returns the templates in insertion order.
func (r *Registry) All() []*Template {
	out := make([]*Template, len(r.templates))
	copy(out, r.templates)
	return out
}

// Len returns the number of templates.
func (r *Registry) Len() int {
	return len(r.templates)
}
