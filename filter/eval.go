package filter

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

func (n *node) eval(props Getter) bool {
	switch n.op {
	case opAnd:
		for _, c := range n.children {
			if !c.eval(props) {
				return false
			}
		}
		return true
	case opOr:
		for _, c := range n.children {
			if c.eval(props) {
				return true
			}
		}
		return false
	case opNot:
		return !n.children[0].eval(props)
	case opPresent:
		_, ok := props.Get(n.attr)
		return ok
	}

	v, ok := props.Get(n.attr)
	if !ok || v == nil {
		return false
	}
	return n.compare(v)
}

// compare applies the item test to v; for slices and arrays any element
// satisfying the test is a match.
func (n *node) compare(v any) bool {
	rv := reflect.ValueOf(v)
	if k := rv.Kind(); k == reflect.Slice || k == reflect.Array {
		for i := 0; i < rv.Len(); i++ {
			if n.compareScalar(scalarString(rv.Index(i).Interface())) {
				return true
			}
		}
		return false
	}
	return n.compareScalar(scalarString(v))
}

func (n *node) compareScalar(s string) bool {
	switch n.op {
	case opEqual:
		return matchParts(s, n.parts, false)
	case opApprox:
		return matchParts(s, n.parts, true)
	case opGreaterEq:
		return order(s, n.value) >= 0
	case opLessEq:
		return order(s, n.value) <= 0
	default:
		return false
	}
}

// matchParts matches s against wildcard parts. A single part is plain
// equality, numeric when both sides parse as numbers.
func matchParts(s string, parts []string, approx bool) bool {
	norm := normalize
	if approx {
		norm = approximate
	}
	s = norm(s)
	if len(parts) == 1 {
		want := norm(parts[0])
		if c, ok := compareNumbers(s, want); ok {
			return c == 0
		}
		return s == want
	}

	last := len(parts) - 1
	piece := func(i int) string {
		if approx {
			return approximate(parts[i])
		}
		p := strings.ToLower(parts[i])
		if i == 0 {
			p = strings.TrimLeft(p, " \t")
		}
		if i == last {
			p = strings.TrimRight(p, " \t")
		}
		return p
	}

	first, end := piece(0), piece(last)
	if !strings.HasPrefix(s, first) {
		return false
	}
	s = s[len(first):]
	for i := 1; i < last; i++ {
		mid := piece(i)
		if mid == "" {
			continue
		}
		j := strings.Index(s, mid)
		if j < 0 {
			return false
		}
		s = s[j+len(mid):]
	}
	return strings.HasSuffix(s, end)
}

// order compares a property value with a filter value, numerically when both
// parse as numbers and lexicographically on the normalized text otherwise.
func order(s, value string) int {
	a, b := normalize(s), normalize(value)
	if c, ok := compareNumbers(a, b); ok {
		return c
	}
	return strings.Compare(a, b)
}

func compareNumbers(a, b string) (int, bool) {
	if x, err := strconv.ParseInt(a, 10, 64); err == nil {
		if y, err := strconv.ParseInt(b, 10, 64); err == nil {
			switch {
			case x < y:
				return -1, true
			case x > y:
				return 1, true
			default:
				return 0, true
			}
		}
	}
	x, err := strconv.ParseFloat(a, 64)
	if err != nil {
		return 0, false
	}
	y, err := strconv.ParseFloat(b, 64)
	if err != nil {
		return 0, false
	}
	switch {
	case x < y:
		return -1, true
	case x > y:
		return 1, true
	default:
		return 0, true
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func approximate(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.FormatInt(int64(t), 10)
	case int8:
		return strconv.FormatInt(int64(t), 10)
	case int16:
		return strconv.FormatInt(int64(t), 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case uint:
		return strconv.FormatUint(uint64(t), 10)
	case uint8:
		return strconv.FormatUint(uint64(t), 10)
	case uint16:
		return strconv.FormatUint(uint64(t), 10)
	case uint32:
		return strconv.FormatUint(uint64(t), 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case float32:
		return strconv.FormatFloat(float64(t), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}
