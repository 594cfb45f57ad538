package template

import (
	"regexp"
	"strings"

	"github.com/catflap/catflap/internal/errors"
)

type nodeKind int

const (
	textNode nodeKind = iota
	varNode
	forNode
	ifNode
)

// node is one element of a parsed template body.
type node struct {
	kind nodeKind
	text string // Literal text, or the raw expression of a variable
	loop *loopHeader
	cond *condition
	body []node
}

type loopHeader struct {
	name     string
	isList   bool
	items    []string
	from, to string
}

type condition struct {
	lhs, op, rhs string
}

var (
	loopPattern = regexp.MustCompile(`^for\s+([A-Za-z_][A-Za-z0-9_]*)\s+in\s+(.+?)\s*$`)
	condPattern = regexp.MustCompile(`^if\s+(.+?)\s*(==|!=|>=|<=|>|<)\s*(.+?)\s*$`)
)

type parser struct {
	src   string
	pos   int
	loops []string // Names bound by the enclosing loops
}

// parse turns a template body into a node tree.
func parse(src string) ([]node, error) {
	p := &parser{src: src}
	nodes, closer, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	if closer != "" {
		return nil, errors.Newf(errors.ErrUnterminatedBlock, "%%%s%% without an opening block", closer)
	}
	return nodes, nil
}

// parseBlock reads nodes until the end of input or a closing marker,
// which is returned.
func (p *parser) parseBlock() ([]node, string, error) {
	var nodes []node
	var text strings.Builder

	flush := func() {
		if text.Len() > 0 {
			nodes = append(nodes, node{kind: textNode, text: text.String()})
			text.Reset()
		}
	}

	for p.pos < len(p.src) {
		i := strings.IndexByte(p.src[p.pos:], '%')
		if i < 0 {
			text.WriteString(p.src[p.pos:])
			p.pos = len(p.src)
			break
		}
		text.WriteString(p.src[p.pos : p.pos+i])
		p.pos += i

		if strings.HasPrefix(p.src[p.pos:], "%%") {
			text.WriteByte('%')
			p.pos += 2
			continue
		}

		start := p.pos
		j := strings.IndexByte(p.src[start+1:], '%')
		if j < 0 {
			return nil, "", errors.Newf(errors.ErrUnterminatedBlock, "unterminated variable at offset %d: %q", start, clip(p.src[start:]))
		}
		tok := strings.TrimSpace(p.src[start+1 : start+1+j])
		p.pos = start + j + 2

		switch {
		case tok == "endfor":
			flush()
			p.skipNewline()
			return nodes, tok, nil
		case tok == "endif":
			flush()
			return nodes, tok, nil
		case isKeyword(tok, "for"):
			flush()
			n, err := p.parseFor(tok)
			if err != nil {
				return nil, "", err
			}
			nodes = append(nodes, n)
		case isKeyword(tok, "if"):
			flush()
			n, err := p.parseIf(tok)
			if err != nil {
				return nil, "", err
			}
			nodes = append(nodes, n)
		default:
			flush()
			nodes = append(nodes, node{kind: varNode, text: tok})
		}
	}

	flush()
	return nodes, "", nil
}

func (p *parser) parseFor(tok string) (node, error) {
	hdr, err := parseLoopHeader(tok)
	if err != nil {
		return node{}, err
	}
	if !p.skipNewline() {
		return node{}, errors.Newf(errors.ErrSyntax, "%%%s%% must be followed by a newline", tok)
	}
	for _, name := range p.loops {
		if name == hdr.name {
			return node{}, errors.Newf(errors.ErrDuplicateLoopVariable, "loop variable %q is already bound by an enclosing loop", hdr.name)
		}
	}

	p.loops = append(p.loops, hdr.name)
	body, closer, err := p.parseBlock()
	p.loops = p.loops[:len(p.loops)-1]
	if err != nil {
		return node{}, err
	}
	if closer != "endfor" {
		return node{}, unterminated(tok, "endfor", closer)
	}
	return node{kind: forNode, loop: hdr, body: body}, nil
}

func (p *parser) parseIf(tok string) (node, error) {
	m := condPattern.FindStringSubmatch(tok)
	if m == nil {
		return node{}, errors.Newf(errors.ErrSyntax, "malformed condition %q", tok)
	}

	body, closer, err := p.parseBlock()
	if err != nil {
		return node{}, err
	}
	if closer != "endif" {
		return node{}, unterminated(tok, "endif", closer)
	}
	return node{kind: ifNode, cond: &condition{lhs: m[1], op: m[2], rhs: m[3]}, body: body}, nil
}

// skipNewline consumes one line break at the current position.
func (p *parser) skipNewline() bool {
	switch {
	case strings.HasPrefix(p.src[p.pos:], "\r\n"):
		p.pos += 2
	case strings.HasPrefix(p.src[p.pos:], "\n"):
		p.pos++
	default:
		return false
	}
	return true
}

func parseLoopHeader(tok string) (*loopHeader, error) {
	m := loopPattern.FindStringSubmatch(tok)
	if m == nil {
		return nil, errors.Newf(errors.ErrSyntax, "malformed loop header %q, want \"for VAR in A..B\" or \"for VAR in [a,b]\"", tok)
	}
	hdr := &loopHeader{name: m[1]}
	iter := m[2]

	if strings.HasPrefix(iter, "[") {
		if !strings.HasSuffix(iter, "]") {
			return nil, errors.Newf(errors.ErrSyntax, "unterminated list in %q", tok)
		}
		hdr.isList = true
		if inner := strings.TrimSpace(iter[1 : len(iter)-1]); inner != "" {
			for _, item := range strings.Split(inner, ",") {
				hdr.items = append(hdr.items, strings.TrimSpace(item))
			}
		}
		return hdr, nil
	}

	from, to, ok := strings.Cut(iter, "..")
	hdr.from, hdr.to = strings.TrimSpace(from), strings.TrimSpace(to)
	if !ok || hdr.from == "" || hdr.to == "" {
		return nil, errors.Newf(errors.ErrSyntax, "malformed range in %q", tok)
	}
	return hdr, nil
}

func isKeyword(tok, keyword string) bool {
	if !strings.HasPrefix(tok, keyword) {
		return false
	}
	rest := tok[len(keyword):]
	return rest == "" || rest[0] == ' ' || rest[0] == '\t'
}

func unterminated(tok, want, got string) error {
	if got == "" {
		return errors.Newf(errors.ErrUnterminatedBlock, "%%%s%% is missing %%%s%%", tok, want)
	}
	return errors.Newf(errors.ErrUnterminatedBlock, "%%%s%% is closed by %%%s%%", tok, got)
}

func clip(s string) string {
	if len(s) > 32 {
		return s[:32] + "..."
	}
	return s
}
