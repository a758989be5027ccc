package registry

import (
	"github.com/kbukum/svckit/filter"
	"github.com/kbukum/svckit/properties"
)

// Context is the registry handle given to one module. Services and
// listeners added through it are owned by the module; UpdateProperties and
// Unregister only act on the module's own services.
type Context struct {
	registry *Registry
	moduleID int64
}

// ModuleID returns the owning module's id.
func (c *Context) ModuleID() int64 { return c.moduleID }

// Registry returns the underlying registry.
func (c *Context) Registry() *Registry { return c.registry }

// Register publishes instance on behalf of the module.
func (c *Context) Register(interfaces []string, instance any, props *properties.Properties) (Reference, error) {
	return c.registry.register(c.moduleID, interfaces, instance, props)
}

// GetServiceReference returns the highest-ranked service published under iface.
func (c *Context) GetServiceReference(iface string) (Reference, bool) {
	return c.registry.GetServiceReference(iface)
}

// GetServiceReferences returns matching services in ranking order.
func (c *Context) GetServiceReferences(iface string, f *filter.Filter) []Reference {
	return c.registry.GetServiceReferences(iface, f)
}

// FindServiceReferences is GetServiceReferences with filter text.
func (c *Context) FindServiceReferences(iface, filterText string) ([]Reference, error) {
	return c.registry.FindServiceReferences(iface, filterText)
}

// GetService resolves ref to its instance.
func (c *Context) GetService(ref Reference) (any, bool) {
	return c.registry.GetService(ref)
}

// UpdateProperties replaces the properties of one of the module's services.
func (c *Context) UpdateProperties(ref Reference, props *properties.Properties) bool {
	if ref.ModuleID() != c.moduleID {
		return false
	}
	return c.registry.UpdateProperties(ref, props)
}

// Unregister removes one of the module's services.
func (c *Context) Unregister(ref Reference) bool {
	if ref.ModuleID() != c.moduleID {
		return false
	}
	return c.registry.Unregister(ref)
}

// AddListener adds a listener owned by the module.
func (c *Context) AddListener(f *filter.Filter, l Listener) ListenerToken {
	return c.registry.addListener(c.moduleID, f, l)
}

// RemoveListener removes a listener.
func (c *Context) RemoveListener(token ListenerToken) bool {
	return c.registry.RemoveListener(token)
}

// Subscribe adds a listener owned by the module and seeds it with the
// currently matching services.
func (c *Context) Subscribe(f *filter.Filter, l Listener, initial func([]Reference)) ListenerToken {
	return c.registry.subscribe(c.moduleID, f, l, initial)
}
