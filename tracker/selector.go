package tracker

import (
	"strconv"

	"github.com/kbukum/svckit/filter"
	"github.com/kbukum/svckit/properties"
	"github.com/kbukum/svckit/registry"
)

// Selector decides which services a tracker follows.
type Selector struct {
	filter *filter.Filter
	ref    registry.Reference
}

// ForReference tracks at most the one registration ref names.
func ForReference(ref registry.Reference) Selector {
	f := filter.Equals(properties.ServiceID, strconv.FormatInt(ref.ID(), 10))
	return Selector{filter: f, ref: ref}
}

// ForInterface tracks every service published under name.
func ForInterface(name string) Selector {
	return Selector{filter: filter.Equals(properties.ObjectClass, name)}
}

// ForFilter tracks every service whose properties match f. A nil f tracks
// everything.
func ForFilter(f *filter.Filter) Selector {
	return Selector{filter: f}
}

// Filter returns the filter the tracker subscribes with.
func (s Selector) Filter() *filter.Filter { return s.filter }

func (s Selector) accepts(ref registry.Reference) bool {
	return s.ref == (registry.Reference{}) || s.ref == ref
}

func (s Selector) String() string {
	if s.filter == nil {
		return "*"
	}
	return s.filter.String()
}
