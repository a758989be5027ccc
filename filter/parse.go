package filter

import (
	"strings"

	apperrors "github.com/kbukum/svckit/errors"
)

type parser struct {
	text string
	pos  int
}

func (p *parser) fail(reason string) error {
	return apperrors.InvalidFilter(p.text, p.pos, reason)
}

func (p *parser) skipSpace() {
	for p.pos < len(p.text) && isSpace(p.text[p.pos]) {
		p.pos++
	}
}

func (p *parser) peek() byte {
	if p.pos >= len(p.text) {
		return 0
	}
	return p.text[p.pos]
}

func (p *parser) expect(c byte) error {
	p.skipSpace()
	if p.peek() != c {
		if p.pos >= len(p.text) {
			return p.fail("unexpected end of filter, expected '" + string(c) + "'")
		}
		return p.fail("expected '" + string(c) + "', found '" + string(p.peek()) + "'")
	}
	p.pos++
	return nil
}

// parseFilter reads '(' (and | or | not | item) ')'.
func (p *parser) parseFilter() (*node, error) {
	if err := p.expect('('); err != nil {
		return nil, err
	}
	p.skipSpace()

	var (
		n   *node
		err error
	)
	switch p.peek() {
	case '&':
		p.pos++
		n, err = p.parseList(opAnd)
	case '|':
		p.pos++
		n, err = p.parseList(opOr)
	case '!':
		p.pos++
		n, err = p.parseNot()
	default:
		n, err = p.parseItem()
	}
	if err != nil {
		return nil, err
	}

	if err := p.expect(')'); err != nil {
		return nil, err
	}
	return n, nil
}

func (p *parser) parseList(kind op) (*node, error) {
	n := &node{op: kind}
	for {
		p.skipSpace()
		if p.peek() != '(' {
			break
		}
		child, err := p.parseFilter()
		if err != nil {
			return nil, err
		}
		n.children = append(n.children, child)
	}
	if len(n.children) == 0 {
		return nil, p.fail("'" + kind.String() + "' requires at least one operand")
	}
	return n, nil
}

func (p *parser) parseNot() (*node, error) {
	p.skipSpace()
	if p.peek() != '(' {
		return nil, p.fail("'!' requires exactly one operand")
	}
	child, err := p.parseFilter()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.peek() == '(' {
		return nil, p.fail("'!' requires exactly one operand")
	}
	return &node{op: opNot, children: []*node{child}}, nil
}

func (p *parser) parseItem() (*node, error) {
	start := p.pos
	for p.pos < len(p.text) && !strings.ContainsRune("=<>~()", rune(p.text[p.pos])) {
		p.pos++
	}
	attr := strings.TrimSpace(p.text[start:p.pos])
	if attr == "" {
		return nil, p.fail("missing attribute name")
	}

	var kind op
	switch p.peek() {
	case '=':
		kind = opEqual
		p.pos++
	case '~':
		kind = opApprox
		p.pos++
	case '>':
		kind = opGreaterEq
		p.pos++
	case '<':
		kind = opLessEq
		p.pos++
	case 0:
		return nil, p.fail("unexpected end of filter after attribute")
	default:
		return nil, p.fail("unknown operator starting with '" + string(p.peek()) + "'")
	}
	if kind != opEqual {
		if p.peek() != '=' {
			return nil, p.fail("unknown operator '" + string(p.text[p.pos-1]) + "', expected '" + string(p.text[p.pos-1]) + "='")
		}
		p.pos++
	}

	parts, err := p.parseValue()
	if err != nil {
		return nil, err
	}

	n := &node{op: kind, attr: attr}
	switch {
	case kind == opEqual && len(parts) == 2 && parts[0] == "" && parts[1] == "":
		n.op = opPresent
	case kind == opEqual || kind == opApprox:
		n.parts = parts
		n.value = strings.Join(parts, "*")
	default:
		// '*' has no special meaning for ordering comparisons.
		n.value = strings.Join(parts, "*")
	}
	return n, nil
}

// parseValue reads up to the closing ')' and splits the value on unescaped
// '*'. A value without wildcards yields a single part.
func (p *parser) parseValue() ([]string, error) {
	var (
		parts []string
		cur   strings.Builder
	)
	for {
		if p.pos >= len(p.text) {
			return nil, p.fail("unexpected end of filter, expected ')'")
		}
		c := p.text[p.pos]
		switch c {
		case ')':
			return append(parts, cur.String()), nil
		case '(':
			return nil, p.fail("unescaped '(' in value")
		case '*':
			parts = append(parts, cur.String())
			cur.Reset()
			p.pos++
		case '\\':
			p.pos++
			if p.pos >= len(p.text) {
				return nil, p.fail("dangling escape at end of filter")
			}
			cur.WriteByte(p.text[p.pos])
			p.pos++
		default:
			cur.WriteByte(c)
			p.pos++
		}
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
