// Package filter compiles and evaluates LDAP-style filter expressions over
// service properties.
//
//	f, err := filter.Compile("(&(objectclass=org.example.Greeter)(service.ranking>=5))")
//	if err != nil {
//	    return err
//	}
//	if f.Matches(props) { ... }
//
// Supported operators are '=' (with '*' wildcards and the presence test
// "attr=*"), '~=' (approximate), '>=' and '<=', combined with '&', '|' and
// '!'. Attribute names are matched case-insensitively. A compiled Filter is
// immutable and safe for concurrent use.
package filter

import (
	"strings"
)

type op int

const (
	opAnd op = iota
	opOr
	opNot
	opEqual
	opApprox
	opGreaterEq
	opLessEq
	opPresent
)

func (o op) String() string {
	switch o {
	case opAnd:
		return "&"
	case opOr:
		return "|"
	case opNot:
		return "!"
	case opEqual, opPresent:
		return "="
	case opApprox:
		return "~="
	case opGreaterEq:
		return ">="
	case opLessEq:
		return "<="
	default:
		return "?"
	}
}

type node struct {
	op       op
	attr     string
	value    string   // unescaped comparison value
	parts    []string // value split on wildcards, for '=' and '~='
	children []*node
}

// Getter is the read side of a property bag. *properties.Properties
// satisfies it; lookups are expected to fold key case.
type Getter interface {
	Get(key string) (any, bool)
}

// Filter is a compiled filter expression.
type Filter struct {
	root *node
	text string
}

// Compile parses text into a Filter. Malformed input yields an
// *errors.AppError with code INVALID_FILTER.
func Compile(text string) (*Filter, error) {
	p := &parser{text: text}
	p.skipSpace()
	if p.pos >= len(text) {
		return nil, p.fail("empty filter")
	}
	root, err := p.parseFilter()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos < len(text) {
		return nil, p.fail("unexpected trailing characters")
	}
	f := &Filter{root: root}
	f.text = f.root.render()
	return f, nil
}

// MustCompile is like Compile but panics on malformed input. Intended for
// package-level filters built from constant text.
func MustCompile(text string) *Filter {
	f, err := Compile(text)
	if err != nil {
		panic(err)
	}
	return f
}

// Matches evaluates the filter against props. A nil Filter matches
// everything; a nil props is treated as empty.
func (f *Filter) Matches(props Getter) bool {
	if f == nil {
		return true
	}
	if props == nil {
		props = emptyGetter{}
	}
	return f.root.eval(props)
}

// MatchesMap evaluates the filter against a plain map, folding key case.
func (f *Filter) MatchesMap(m map[string]any) bool {
	return f.Matches(mapGetter(m))
}

// String returns the normalized filter text.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.text
}

// Escape quotes the characters that have meaning inside a filter value.
func Escape(value string) string {
	var b strings.Builder
	for i := 0; i < len(value); i++ {
		switch c := value[i]; c {
		case '\\', '*', '(', ')':
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Equals builds the filter (attr=value) with value escaped.
func Equals(attr, value string) *Filter {
	return MustCompile("(" + attr + "=" + Escape(value) + ")")
}

func (n *node) render() string {
	var b strings.Builder
	n.writeTo(&b)
	return b.String()
}

func (n *node) writeTo(b *strings.Builder) {
	b.WriteByte('(')
	switch n.op {
	case opAnd, opOr, opNot:
		b.WriteString(n.op.String())
		for _, c := range n.children {
			c.writeTo(b)
		}
	case opPresent:
		b.WriteString(n.attr)
		b.WriteString("=*")
	case opEqual, opApprox:
		b.WriteString(n.attr)
		b.WriteString(n.op.String())
		for i, part := range n.parts {
			if i > 0 {
				b.WriteByte('*')
			}
			b.WriteString(Escape(part))
		}
	default:
		b.WriteString(n.attr)
		b.WriteString(n.op.String())
		b.WriteString(Escape(n.value))
	}
	b.WriteByte(')')
}

type emptyGetter struct{}

func (emptyGetter) Get(string) (any, bool) { return nil, false }

type mapGetter map[string]any

func (m mapGetter) Get(key string) (any, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}
