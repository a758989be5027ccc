package registry

import (
	"fmt"
	"slices"

	"github.com/kbukum/svckit/properties"
)

// registration is the registry's record for one published service. id,
// interfaces, moduleID, instance and owner never change; props and ranking
// are replaced under the registry lock and the bag itself is never mutated
// once stored.
type registration struct {
	owner      *Registry
	id         int64
	interfaces []string
	moduleID   int64
	instance   any

	props         *properties.Properties
	ranking       int
	unregistering bool
	removed       bool
}

// Reference is a non-owning handle to a registration. References are
// comparable with == and usable as map keys; two references are equal when
// they name the same registration. The zero Reference is absent.
type Reference struct {
	reg *registration
}

// ID returns the registration id, or 0 for the zero Reference.
func (r Reference) ID() int64 {
	if r.reg == nil {
		return 0
	}
	return r.reg.id
}

// IsValid reports whether the registration still exists.
func (r Reference) IsValid() bool {
	if r.reg == nil {
		return false
	}
	r.reg.owner.mu.RLock()
	defer r.reg.owner.mu.RUnlock()
	return !r.reg.removed
}

func (r Reference) liveProps() *properties.Properties {
	if r.reg == nil {
		return nil
	}
	r.reg.owner.mu.RLock()
	defer r.reg.owner.mu.RUnlock()
	if r.reg.removed {
		return nil
	}
	return r.reg.props
}

// Property looks up a property by case-insensitive key. It reports absent
// once the service is unregistered.
func (r Reference) Property(key string) (any, bool) {
	return r.liveProps().Get(key)
}

// Get is Property under the name filters expect, so a Reference can be
// matched directly.
func (r Reference) Get(key string) (any, bool) {
	return r.Property(key)
}

// Properties returns a copy of the current properties, or nil once the
// service is unregistered.
func (r Reference) Properties() *properties.Properties {
	p := r.liveProps()
	if p == nil {
		return nil
	}
	return p.Clone()
}

// PropertyKeys returns the property keys in insertion order.
func (r Reference) PropertyKeys() []string {
	return r.liveProps().Keys()
}

// Interfaces returns the interface names the service was registered under.
// They remain available after unregistration.
func (r Reference) Interfaces() []string {
	if r.reg == nil {
		return nil
	}
	return slices.Clone(r.reg.interfaces)
}

// InterfaceID returns the first interface name, or "".
func (r Reference) InterfaceID() string {
	if r.reg == nil || len(r.reg.interfaces) == 0 {
		return ""
	}
	return r.reg.interfaces[0]
}

// IsConvertibleTo reports whether the service was published under iface,
// ignoring case.
func (r Reference) IsConvertibleTo(iface string) bool {
	return r.reg != nil && publishes(r.reg.interfaces, iface)
}

// Ranking returns the service ranking last seen by the registry. Unlike
// properties it stays readable after unregistration so ranked collections of
// stale references still sort consistently.
func (r Reference) Ranking() int {
	if r.reg == nil {
		return 0
	}
	r.reg.owner.mu.RLock()
	defer r.reg.owner.mu.RUnlock()
	return r.reg.ranking
}

// ModuleID returns the id of the module that registered the service; 0 is
// the framework itself.
func (r Reference) ModuleID() int64 {
	if r.reg == nil {
		return 0
	}
	return r.reg.moduleID
}

// Compare orders references by ranking: it is negative when r ranks ahead of
// other. Higher ranking wins; equal rankings go to the lower id.
//
//	slices.SortFunc(refs, registry.Reference.Compare)
func (r Reference) Compare(other Reference) int {
	ra, rb := r.Ranking(), other.Ranking()
	switch {
	case ra > rb:
		return -1
	case ra < rb:
		return 1
	}
	ia, ib := r.ID(), other.ID()
	switch {
	case ia < ib:
		return -1
	case ia > ib:
		return 1
	default:
		return 0
	}
}

func (r Reference) String() string {
	if r.reg == nil {
		return "Reference(absent)"
	}
	return fmt.Sprintf("Reference(id=%d, interfaces=%v)", r.reg.id, r.reg.interfaces)
}

// SortByRanking sorts refs into ranking order in place.
func SortByRanking(refs []Reference) {
	slices.SortFunc(refs, Reference.Compare)
}

// SortByID sorts refs by ascending id in place.
func SortByID(refs []Reference) {
	slices.SortFunc(refs, func(a, b Reference) int {
		switch {
		case a.ID() < b.ID():
			return -1
		case a.ID() > b.ID():
			return 1
		default:
			return 0
		}
	})
}
