package template

import (
	"path/filepath"
	"strings"

	"github.com/catflap/catflap/internal/errors"
	"github.com/catflap/catflap/internal/snapshot"
)

// value is a resolved variable. Path values keep their directory and
// file name apart so path filters can operate on them.
type value struct {
	text   string
	path   snapshot.Path
	isPath bool
}

func textValue(s string) value {
	return value{text: s}
}

func pathValue(p snapshot.Path) value {
	return value{path: p, isPath: true}
}

// dirValue is a path that names a directory.
func dirValue(dir string) value {
	return pathValue(snapshot.Path{Dir: dir})
}

func (v value) String() string {
	if v.isPath {
		return v.path.Full()
	}
	return v.text
}

// applyFilters runs a comma separated filter chain left to right.
func (r *renderer) applyFilters(v value, chain string) (value, error) {
	filters, err := splitFilters(chain)
	if err != nil {
		return value{}, err
	}

	for _, f := range filters {
		name, arg, hasArg, err := parseFilter(f)
		if err != nil {
			return value{}, err
		}
		if !v.isPath {
			return value{}, errors.Newf(errors.ErrInvalidFilterTarget, "filter %q applied to non-path value %q", name, v.text)
		}

		switch name {
		case "dir":
			v = dirValue(v.path.Dir)
		case "full":
			v = pathValue(snapshot.SplitPath(v.path.Full()))
		case "abs":
			v, err = absPath(v.path)
		case "rel":
			var base string
			base, err = r.relBase(arg, hasArg)
			if err == nil {
				v, err = relPath(v.path, base)
			}
		default:
			err = errors.Newf(errors.ErrInvalidArgument, "unknown filter %q", name)
		}
		if err != nil {
			return value{}, err
		}
	}
	return v, nil
}

// relBase resolves the argument of rel. An @expr@ argument is resolved as
// a variable expression, anything else is a literal path. Without an
// argument the template's root path is used.
func (r *renderer) relBase(arg string, hasArg bool) (string, error) {
	arg = strings.TrimSpace(arg)
	if !hasArg || arg == "" {
		return r.call.rootPath(r.tmpl)
	}
	if n := len(arg); n >= 2 && arg[0] == '@' && arg[n-1] == '@' {
		v, err := r.resolve(arg[1 : n-1])
		if err != nil {
			return "", err
		}
		return v.String(), nil
	}
	return arg, nil
}

func absPath(p snapshot.Path) (value, error) {
	abs, err := filepath.Abs(p.Full())
	if err != nil {
		return value{}, errors.Wrapf(err, errors.ErrInvalidArgument, "making %q absolute", p.Full())
	}
	if p.Filename == "" {
		return dirValue(withSlash(abs, p.Dir)), nil
	}
	return pathValue(snapshot.SplitPath(abs)), nil
}

func relPath(p snapshot.Path, base string) (value, error) {
	target, err := filepath.Abs(p.Full())
	if err != nil {
		return value{}, errors.Wrapf(err, errors.ErrInvalidArgument, "making %q absolute", p.Full())
	}
	from, err := filepath.Abs(base)
	if err != nil {
		return value{}, errors.Wrapf(err, errors.ErrInvalidArgument, "making %q absolute", base)
	}
	rel, err := filepath.Rel(from, target)
	if err != nil {
		return value{}, errors.Wrapf(err, errors.ErrInvalidArgument, "%q relative to %q", p.Full(), base)
	}
	rel = filepath.ToSlash(rel)
	if p.Filename == "" {
		return dirValue(withSlash(rel, p.Dir)), nil
	}
	return pathValue(snapshot.SplitPath(rel)), nil
}

// withSlash restores the trailing separator of like on p.
func withSlash(p, like string) string {
	if strings.HasSuffix(like, "/") && !strings.HasSuffix(p, "/") {
		return p + "/"
	}
	return p
}

// splitFilters splits a chain on commas outside rel(...) arguments and
// @...@ expressions.
func splitFilters(chain string) ([]string, error) {
	var parts []string
	depth, inExpr, start := 0, false, 0

	for i := 0; i < len(chain); i++ {
		c := chain[i]
		switch {
		case c == '@':
			inExpr = !inExpr
		case inExpr:
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth < 0 {
				return nil, errors.Newf(errors.ErrSyntax, "unbalanced ) in filters %q", chain)
			}
		case c == ',' && depth == 0:
			parts = append(parts, chain[start:i])
			start = i + 1
		}
	}
	if depth != 0 || inExpr {
		return nil, errors.Newf(errors.ErrSyntax, "unterminated filter argument in %q", chain)
	}
	return append(parts, chain[start:]), nil
}

func parseFilter(f string) (name, arg string, hasArg bool, err error) {
	f = strings.TrimSpace(f)
	open := strings.IndexByte(f, '(')
	if open < 0 {
		if f == "" {
			return "", "", false, errors.New(errors.ErrSyntax, "empty filter")
		}
		return f, "", false, nil
	}
	if !strings.HasSuffix(f, ")") {
		return "", "", false, errors.Newf(errors.ErrSyntax, "filter %q is missing )", f)
	}
	return strings.TrimSpace(f[:open]), f[open+1 : len(f)-1], true, nil
}
