// Package types defines the value kinds produced by template variables.
package types

// Value kind constants for consistent catalogue output.
const (
	String = "string"
	Int    = "int"
	Float  = "float"
	Bool   = "bool (1/0)"

	// Kinds that accept a ":ARG" suffix
	Hash     = "hash"
	Time     = "time"
	Template = "path (template)"

	// Path kinds accept path filters
	Path = "path"
)

// IsPath reports whether filters such as dir and rel apply to the kind.
func IsPath(kind string) bool {
	return kind == Path || kind == Template
}

// ArgHint returns a short description of the ":ARG" suffix a kind accepts.
func ArgHint(kind string) string {
	switch kind {
	case Hash:
		return ":K keeps the first K hex characters"
	case Time:
		return ":FMT strftime layout with @ instead of %"
	case Template:
		return ":NAME selects a named template"
	default:
		return ""
	}
}

// Keyword extracts just the kind keyword for use in compact listings.
// For example "bool (1/0)" -> "bool", "path (template)" -> "path"
func Keyword(kind string) string {
	if kind == "" {
		return String
	}
	for i, ch := range kind {
		if ch == ' ' || ch == '(' {
			return kind[:i]
		}
	}
	return kind
}
