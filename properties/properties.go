// Package properties implements the metadata bag attached to every service
// registration: an ordered mapping from string keys to typed values with
// case-insensitive key lookup.
package properties

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// Reserved keys stamped by the registry. Lookups are case-insensitive, so
// "OBJECTCLASS" and "objectclass" address the same entry.
const (
	// ObjectClass holds the []string of interface names a service is published under.
	ObjectClass = "objectclass"
	// ServiceID holds the int64 registration id.
	ServiceID = "service.id"
	// ServiceRanking holds the int ranking; absent means 0.
	ServiceRanking = "service.ranking"
)

type entry struct {
	key   string
	value any
}

// Properties is an ordered key/value bag. Keys keep the spelling they were
// first set with; lookups fold case. The zero value is ready to use. A
// Properties is not safe for concurrent mutation; the registry only shares
// copies.
type Properties struct {
	entries []entry
	index   map[string]int
}

// New returns an empty bag.
func New() *Properties {
	return &Properties{}
}

// FromMap builds a bag from m, inserting keys in sorted order so the result
// is deterministic.
func FromMap(m map[string]any) *Properties {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	p := New()
	for _, k := range keys {
		p.Set(k, m[k])
	}
	return p
}

// Of builds a bag from alternating key/value pairs, keeping argument order.
//
//	properties.Of(properties.ServiceRanking, 7, "color", "blue")
func Of(kvs ...any) *Properties {
	p := New()
	for i := 0; i+1 < len(kvs); i += 2 {
		key, ok := kvs[i].(string)
		if !ok {
			continue
		}
		p.Set(key, kvs[i+1])
	}
	return p
}

func fold(key string) string {
	return strings.ToLower(key)
}

// Set stores value under key. Setting an existing key (in any case) replaces
// its value in place.
func (p *Properties) Set(key string, value any) {
	if p.index == nil {
		p.index = make(map[string]int)
	}
	k := fold(key)
	if i, ok := p.index[k]; ok {
		p.entries[i].value = value
		return
	}
	p.index[k] = len(p.entries)
	p.entries = append(p.entries, entry{key: key, value: value})
}

// Get returns the value stored under key.
func (p *Properties) Get(key string) (any, bool) {
	if p == nil || p.index == nil {
		return nil, false
	}
	i, ok := p.index[fold(key)]
	if !ok {
		return nil, false
	}
	return p.entries[i].value, true
}

// Has reports whether key is present.
func (p *Properties) Has(key string) bool {
	_, ok := p.Get(key)
	return ok
}

// Delete removes key, reporting whether it was present.
func (p *Properties) Delete(key string) bool {
	if p == nil || p.index == nil {
		return false
	}
	k := fold(key)
	i, ok := p.index[k]
	if !ok {
		return false
	}
	p.entries = slices.Delete(p.entries, i, i+1)
	delete(p.index, k)
	for j := i; j < len(p.entries); j++ {
		p.index[fold(p.entries[j].key)] = j
	}
	return true
}

// Len returns the number of entries.
func (p *Properties) Len() int {
	if p == nil {
		return 0
	}
	return len(p.entries)
}

// Keys returns the keys in insertion order.
func (p *Properties) Keys() []string {
	if p == nil {
		return nil
	}
	keys := make([]string, len(p.entries))
	for i, e := range p.entries {
		keys[i] = e.key
	}
	return keys
}

// Range calls fn for each entry in insertion order until fn returns false.
func (p *Properties) Range(fn func(key string, value any) bool) {
	if p == nil {
		return
	}
	for _, e := range p.entries {
		if !fn(e.key, e.value) {
			return
		}
	}
}

// Clone returns a copy. Slice values are copied so the clone can be handed
// out without exposing the original's backing arrays.
func (p *Properties) Clone() *Properties {
	c := New()
	p.Range(func(k string, v any) bool {
		c.Set(k, cloneValue(v))
		return true
	})
	return c
}

// Map returns the entries as a plain map keyed by their stored spelling.
func (p *Properties) Map() map[string]any {
	m := make(map[string]any, p.Len())
	p.Range(func(k string, v any) bool {
		m[k] = cloneValue(v)
		return true
	})
	return m
}

// String renders the bag as {k=v, ...} in insertion order.
func (p *Properties) String() string {
	var b strings.Builder
	b.WriteByte('{')
	first := true
	p.Range(func(k string, v any) bool {
		if !first {
			b.WriteString(", ")
		}
		first = false
		fmt.Fprintf(&b, "%s=%v", k, v)
		return true
	})
	b.WriteByte('}')
	return b.String()
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case []string:
		return slices.Clone(t)
	case []any:
		return slices.Clone(t)
	case []int:
		return slices.Clone(t)
	case []int64:
		return slices.Clone(t)
	case []float64:
		return slices.Clone(t)
	case []bool:
		return slices.Clone(t)
	default:
		return v
	}
}
