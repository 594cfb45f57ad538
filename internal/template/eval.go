package template

import (
	"strconv"
	"strings"

	"github.com/catflap/catflap/internal/errors"
)

// MaxLoopIterations bounds the length of a numeric %for% range.
const MaxLoopIterations = 100000

// frame binds one loop variable while its block renders.
type frame struct {
	name  string
	value string
}

// renderer evaluates a node tree for one template within a call.
type renderer struct {
	call   *call
	tmpl   *Template // nil when rendering a bare pattern
	frames []frame
}

func (r *renderer) render(nodes []node, out *strings.Builder) error {
	for _, n := range nodes {
		switch n.kind {
		case textNode:
			out.WriteString(n.text)
		case varNode:
			s, err := r.expand(n.text)
			if err != nil {
				return err
			}
			out.WriteString(s)
		case forNode:
			if err := r.renderLoop(n, out); err != nil {
				return err
			}
		case ifNode:
			ok, err := r.test(n.cond)
			if err != nil {
				return err
			}
			if ok {
				if err := r.render(n.body, out); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// expand resolves a variable token after splicing loop values into it.
func (r *renderer) expand(tok string) (string, error) {
	expr, err := r.splice(tok)
	if err != nil {
		return "", err
	}
	v, err := r.resolve(expr)
	if err != nil {
		return "", err
	}
	return v.String(), nil
}

func (r *renderer) renderLoop(n node, out *strings.Builder) error {
	hdr := n.loop
	if hdr.isList {
		for _, v := range hdr.items {
			if err := r.renderIteration(n, v, out); err != nil {
				return err
			}
		}
		return nil
	}

	from, err := r.bound(hdr.from)
	if err != nil {
		return err
	}
	to, err := r.bound(hdr.to)
	if err != nil {
		return err
	}
	if from > to {
		return errors.Newf(errors.ErrInvalidRange, "range %d..%d is decreasing", from, to)
	}
	if to-from >= MaxLoopIterations {
		return errors.Newf(errors.ErrInvalidRange, "range %d..%d has more than %d iterations", from, to, MaxLoopIterations)
	}

	for i := from; ; i++ {
		if err := r.renderIteration(n, strconv.Itoa(i), out); err != nil {
			return err
		}
		if i == to {
			return nil
		}
	}
}

func (r *renderer) renderIteration(n node, value string, out *strings.Builder) error {
	r.frames = append(r.frames, frame{name: n.loop.name, value: value})
	err := r.render(n.body, out)
	r.frames = r.frames[:len(r.frames)-1]
	return err
}

// bound evaluates one end of a range: an integer literal or a variable.
func (r *renderer) bound(s string) (int, error) {
	spliced, err := r.splice(s)
	if err != nil {
		return 0, err
	}
	spliced = strings.TrimSpace(spliced)

	text := spliced
	if _, err := strconv.Atoi(spliced); err != nil {
		v, err := r.resolve(spliced)
		if err != nil {
			return 0, err
		}
		text = v.String()
	}

	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, errors.Newf(errors.ErrInvalidRange, "range bound %q is not an integer", s)
	}
	if n < 0 {
		return 0, errors.Newf(errors.ErrInvalidRange, "range bound %q is negative", s)
	}
	return n, nil
}

func (r *renderer) test(c *condition) (bool, error) {
	lhs, err := r.operand(c.lhs)
	if err != nil {
		return false, err
	}
	rhs, err := r.operand(c.rhs)
	if err != nil {
		return false, err
	}

	switch c.op {
	case "==":
		return lhs == rhs, nil
	case "!=":
		return lhs != rhs, nil
	}

	a, errA := strconv.ParseFloat(lhs, 64)
	b, errB := strconv.ParseFloat(rhs, 64)
	if errA != nil || errB != nil {
		return false, errors.Newf(errors.ErrInvalidComparison, "%q %s %q needs numeric operands", lhs, c.op, rhs)
	}

	switch c.op {
	case ">=":
		return a >= b, nil
	case ">":
		return a > b, nil
	case "<=":
		return a <= b, nil
	default:
		return a < b, nil
	}
}

// operand evaluates one side of a condition: a quoted string, a number,
// or a variable expression.
func (r *renderer) operand(s string) (string, error) {
	spliced, err := r.splice(s)
	if err != nil {
		return "", err
	}
	spliced = strings.TrimSpace(spliced)

	if n := len(spliced); n >= 2 && (spliced[0] == '"' || spliced[0] == '\'') && spliced[n-1] == spliced[0] {
		return spliced[1 : n-1], nil
	}
	if _, err := strconv.ParseFloat(spliced, 64); err == nil {
		return spliced, nil
	}

	v, err := r.resolve(spliced)
	if err != nil {
		return "", err
	}
	return v.String(), nil
}

// splice replaces every $name$ in s with the value of name. "$$" is a
// literal dollar sign.
func (r *renderer) splice(s string) (string, error) {
	if !strings.Contains(s, "$") {
		return s, nil
	}

	var b strings.Builder
	rest := s
	for {
		i := strings.IndexByte(rest, '$')
		if i < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}
		b.WriteString(rest[:i])

		j := strings.IndexByte(rest[i+1:], '$')
		if j < 0 {
			return "", errors.Newf(errors.ErrSyntax, "unclosed $ in %q", s)
		}

		name := rest[i+1 : i+1+j]
		if name == "" {
			b.WriteByte('$')
		} else {
			v, err := r.resolve(name)
			if err != nil {
				return "", err
			}
			b.WriteString(v.String())
		}
		rest = rest[i+j+2:]
	}
}
