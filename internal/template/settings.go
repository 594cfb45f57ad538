package template

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/catflap/catflap/internal/errors"
	"github.com/catflap/catflap/internal/sink"
)

// headerMarker starts every settings line at the top of a template.
const headerMarker = "%!"

// Settings represents the parsed settings header of a template.
type Settings struct {
	Events   []string // Empty, "*" or "all" matches every event
	Nop      bool     // Never generate
	Filename string   // Output path pattern override
	Name     string   // Explicit name for template_path:NAME lookups
	Required []string // Variables that must resolve at load time
	RootPath string   // Base pattern for bare rel and root_path
	Topic    string   // Message bus topic pattern
	Suppress map[sink.Kind]bool
}

// ParseSettings extracts the settings header from template content.
// Returns the settings, the remaining body, and any error.
func ParseSettings(content string) (*Settings, string, error) {
	s := &Settings{Suppress: make(map[sink.Kind]bool)}
	rest := content
	line := 0

	for strings.HasPrefix(rest, headerMarker) {
		line++
		raw := rest
		if end := strings.IndexByte(rest, '\n'); end >= 0 {
			raw, rest = rest[:end], rest[end+1:]
		} else {
			rest = ""
		}

		directive := strings.TrimSuffix(raw[len(headerMarker):], "\r")
		if err := s.apply(directive); err != nil {
			return nil, content, errors.Wrapf(err, errors.ErrLoad, "settings line %d", line)
		}
	}

	return s, rest, nil
}

func (s *Settings) apply(directive string) error {
	directive = strings.TrimSpace(directive)
	key, value := directive, ""
	if i := strings.IndexFunc(directive, unicode.IsSpace); i >= 0 {
		key, value = directive[:i], directive[i+1:]
	}
	value = strings.TrimSpace(value)

	var err error
	switch key {
	case "event":
		s.Events, err = requireList(key, value)
	case "required":
		s.Required, err = requireList(key, value)
	case "nop":
		s.Nop, err = parseFlag(key, value)
	case "filename":
		s.Filename, err = requireValue(key, value)
	case "name":
		s.Name, err = requireValue(key, value)
	case "rootpath":
		s.RootPath, err = requireValue(key, value)
	case "topic":
		s.Topic, err = requireValue(key, value)
	case "nofile":
		err = s.suppress(sink.KindFile, key, value)
	case "nobus", "nozmq":
		err = s.suppress(sink.KindBus, key, value)
	case "noarchive":
		err = s.suppress(sink.KindArchive, key, value)
	case "":
		err = errors.New(errors.ErrLoad, "empty settings directive")
	default:
		err = errors.Newf(errors.ErrLoad, "unknown settings directive %q", key)
	}
	return err
}

func (s *Settings) suppress(kind sink.Kind, key, value string) error {
	on, err := parseFlag(key, value)
	if err != nil {
		return err
	}
	s.Suppress[kind] = on
	return nil
}

// MatchesEvent reports whether the template should render for event.
func (s *Settings) MatchesEvent(event string) bool {
	if len(s.Events) == 0 {
		return true
	}
	for _, e := range s.Events {
		if e == "*" || e == "all" || e == event {
			return true
		}
	}
	return false
}

// Suppressed reports whether output to the given sink kind is disabled.
func (s *Settings) Suppressed(kind sink.Kind) bool {
	return s.Suppress[kind]
}

func requireValue(key, value string) (string, error) {
	if value == "" {
		return "", errors.Newf(errors.ErrLoad, "%s requires a value", key)
	}
	return value, nil
}

func requireList(key, value string) ([]string, error) {
	items := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	if len(items) == 0 {
		return nil, errors.Newf(errors.ErrLoad, "%s requires at least one value", key)
	}
	return items, nil
}

func parseFlag(key, value string) (bool, error) {
	if value == "" {
		return true, nil
	}
	on, err := strconv.ParseBool(value)
	if err != nil {
		return false, errors.Newf(errors.ErrLoad, "%s expects a boolean, got %q", key, value)
	}
	return on, nil
}
