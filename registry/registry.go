// Package registry implements the in-process service registry: modules
// publish instances under interface names with a property bag, and consumers
// look them up by name, by filter, or by listening for service events.
//
//	reg := registry.New()
//	ref, err := reg.Register([]string{"org.example.Greeter"}, greeter,
//	    properties.Of(properties.ServiceRanking, 5))
//	if err != nil {
//	    return err
//	}
//	best, ok := reg.GetServiceReference("org.example.Greeter")
//
// Every mutation and the synchronous delivery of its events are serialized
// registry-wide, so all listeners observe one global order of events.
// Operations addressed to a stale Reference report absence rather than
// failing.
package registry

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/kbukum/svckit/errors"
	"github.com/kbukum/svckit/filter"
	"github.com/kbukum/svckit/logger"
	"github.com/kbukum/svckit/observability"
	"github.com/kbukum/svckit/properties"
)

// FrameworkModuleID owns registrations made directly on the Registry rather
// than through a module Context.
const FrameworkModuleID int64 = 0

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for registry diagnostics.
func WithLogger(l *logger.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// WithMetrics records registry activity into m.
func WithMetrics(m *observability.RegistryMetrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithFilterCache sets the cache used to compile filter text passed to
// FindServiceReferences.
func WithFilterCache(c *filter.Cache) Option {
	return func(r *Registry) { r.filters = c }
}

// UnloadNotifier announces module unloads. The module manager implements it.
type UnloadNotifier interface {
	OnUnload(fn func(moduleID int64))
}

// Stats is a point-in-time summary of the registry.
type Stats struct {
	Services         int   `json:"services"`
	Listeners        int   `json:"listeners"`
	NextID           int64 `json:"next_id"`
	EventsDispatched int64 `json:"events_dispatched"`
	Closed           bool  `json:"closed"`
}

// Registry is the authoritative store of registered services. It is safe
// for concurrent use.
type Registry struct {
	// eventMu is held across each mutation and its event dispatch.
	eventMu sync.Mutex

	mu        sync.RWMutex
	services  map[int64]*registration
	listeners []*listenerEntry
	nextID    int64
	nextToken ListenerToken
	closed    bool

	dispatched atomic.Int64

	log     *logger.Logger
	metrics *observability.RegistryMetrics
	filters *filter.Cache
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		services: make(map[int64]*registration),
		log:      logger.WithComponent("registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register publishes instance under interfaces on behalf of the framework.
// props is copied; objectclass and service.id are stamped by the registry
// and override any caller-supplied values. Every listener whose filter
// matches receives a Registered event before Register returns.
//
// An empty or blank interface list, or a nil instance, fails with
// INVALID_REGISTRATION and leaves the registry unchanged.
func (r *Registry) Register(interfaces []string, instance any, props *properties.Properties) (Reference, error) {
	return r.register(FrameworkModuleID, interfaces, instance, props)
}

func (r *Registry) register(moduleID int64, interfaces []string, instance any, props *properties.Properties) (Reference, error) {
	names, err := normalizeInterfaces(interfaces)
	if err != nil {
		return Reference{}, err
	}
	if instance == nil {
		return Reference{}, apperrors.InvalidRegistration("service instance is nil")
	}

	r.eventMu.Lock()
	defer r.eventMu.Unlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return Reference{}, apperrors.InvalidRegistration("registry is closed")
	}
	r.nextID++
	reg := &registration{
		owner:      r,
		id:         r.nextID,
		interfaces: names,
		moduleID:   moduleID,
		instance:   instance,
	}
	reg.props = stamp(names, reg.id, props)
	reg.ranking = properties.Ranking(reg.props)
	r.services[reg.id] = reg
	current := reg.props
	listeners := slices.Clone(r.listeners)
	r.mu.Unlock()

	r.metrics.RecordRegistered(context.Background())
	r.log.Debug("service registered", logger.Fields(
		logger.FieldServiceID, reg.id,
		logger.FieldInterface, names,
		logger.FieldModuleID, moduleID,
	))

	ref := Reference{reg: reg}
	r.dispatch(listeners, ref, Registered, func(f *filter.Filter) (EventType, bool) {
		return Registered, f.Matches(current)
	})
	return ref, nil
}

// GetServiceReference returns the highest-ranked service published under
// iface.
func (r *Registry) GetServiceReference(iface string) (Reference, bool) {
	refs := r.GetServiceReferences(iface, nil)
	if len(refs) == 0 {
		return Reference{}, false
	}
	return refs[0], true
}

// GetServiceReferences returns every service published under iface whose
// properties match f, in ranking order. An empty iface matches any
// interface; a nil f matches all properties.
func (r *Registry) GetServiceReferences(iface string, f *filter.Filter) []Reference {
	r.mu.RLock()
	regs := make([]*registration, 0, len(r.services))
	for _, reg := range r.services {
		if iface != "" && !publishes(reg.interfaces, iface) {
			continue
		}
		if !f.Matches(reg.props) {
			continue
		}
		regs = append(regs, reg)
	}
	slices.SortFunc(regs, compareRegs)
	r.mu.RUnlock()

	refs := make([]Reference, len(regs))
	for i, reg := range regs {
		refs[i] = Reference{reg: reg}
	}
	return refs
}

// FindServiceReferences is GetServiceReferences with filter text. Blank text
// matches everything; malformed text fails with INVALID_FILTER.
func (r *Registry) FindServiceReferences(iface, filterText string) ([]Reference, error) {
	var f *filter.Filter
	if strings.TrimSpace(filterText) != "" {
		var err error
		if f, err = r.filters.Compile(filterText); err != nil {
			return nil, err
		}
	}
	return r.GetServiceReferences(iface, f), nil
}

// GetService resolves ref to its instance. It reports absent once the
// service is unregistered; during Unregistering delivery it still resolves.
func (r *Registry) GetService(ref Reference) (any, bool) {
	if !r.owns(ref) {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if ref.reg.removed {
		return nil, false
	}
	return ref.reg.instance, true
}

// UpdateProperties replaces the properties of ref, keeping its objectclass
// and service.id. Each listener receives Registered, Modified or
// ModifiedEndMatch depending on whether it matched before and after, and
// nothing if it matched neither. It reports false for a stale reference.
func (r *Registry) UpdateProperties(ref Reference, props *properties.Properties) bool {
	if !r.owns(ref) {
		return false
	}

	r.eventMu.Lock()
	defer r.eventMu.Unlock()

	reg := ref.reg
	r.mu.Lock()
	if reg.removed || reg.unregistering {
		r.mu.Unlock()
		return false
	}
	previous := reg.props
	current := stamp(reg.interfaces, reg.id, props)
	reg.props = current
	reg.ranking = properties.Ranking(current)
	listeners := slices.Clone(r.listeners)
	r.mu.Unlock()

	r.metrics.RecordModified(context.Background())
	r.log.Debug("service properties updated", logger.Fields(
		logger.FieldServiceID, reg.id,
	))

	r.dispatch(listeners, ref, Modified, func(f *filter.Filter) (EventType, bool) {
		was, is := f.Matches(previous), f.Matches(current)
		switch {
		case was && is:
			return Modified, true
		case is:
			return Registered, true
		case was:
			return ModifiedEndMatch, true
		default:
			return 0, false
		}
	})
	return true
}

// Unregister delivers Unregistering to every matching listener while the
// service still resolves, then removes it. The id is never reused. It
// reports false if the service was already unregistered.
func (r *Registry) Unregister(ref Reference) bool {
	if !r.owns(ref) {
		return false
	}
	r.eventMu.Lock()
	defer r.eventMu.Unlock()
	return r.unregisterLocked(ref.reg)
}

// unregisterLocked requires eventMu.
func (r *Registry) unregisterLocked(reg *registration) bool {
	r.mu.Lock()
	if reg.removed || reg.unregistering {
		r.mu.Unlock()
		return false
	}
	reg.unregistering = true
	current := reg.props
	listeners := slices.Clone(r.listeners)
	r.mu.Unlock()

	ref := Reference{reg: reg}
	r.dispatch(listeners, ref, Unregistering, func(f *filter.Filter) (EventType, bool) {
		return Unregistering, f.Matches(current)
	})

	r.mu.Lock()
	delete(r.services, reg.id)
	reg.removed = true
	r.mu.Unlock()

	r.metrics.RecordUnregistered(context.Background())
	r.log.Debug("service unregistered", logger.Fields(
		logger.FieldServiceID, reg.id,
		logger.FieldModuleID, reg.moduleID,
	))
	return true
}

// AddListener registers l for events on services matching f (nil matches
// everything). Events already being delivered when AddListener returns may
// or may not reach l.
func (r *Registry) AddListener(f *filter.Filter, l Listener) ListenerToken {
	return r.addListener(FrameworkModuleID, f, l)
}

func (r *Registry) addListener(moduleID int64, f *filter.Filter, l Listener) ListenerToken {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addListenerLocked(moduleID, f, l)
}

func (r *Registry) addListenerLocked(moduleID int64, f *filter.Filter, l Listener) ListenerToken {
	if l == nil {
		return 0
	}
	r.nextToken++
	e := &listenerEntry{token: r.nextToken, moduleID: moduleID, filter: f, listener: l}
	e.active.Store(true)
	r.listeners = append(r.listeners, e)
	return e.token
}

// RemoveListener removes a listener. It reports false for unknown tokens.
// Once RemoveListener returns no new delivery to the listener starts,
// though one already running on another goroutine may still complete.
func (r *Registry) RemoveListener(token ListenerToken) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.listeners {
		if e.token == token {
			e.active.Store(false)
			r.listeners = slices.Delete(r.listeners, i, i+1)
			return true
		}
	}
	return false
}

// Subscribe adds l like AddListener and, atomically with respect to every
// mutation, passes the currently matching services in ascending id order to
// initial. Nothing is missed or seen twice between the snapshot and the
// first event l receives.
func (r *Registry) Subscribe(f *filter.Filter, l Listener, initial func([]Reference)) ListenerToken {
	return r.subscribe(FrameworkModuleID, f, l, initial)
}

func (r *Registry) subscribe(moduleID int64, f *filter.Filter, l Listener, initial func([]Reference)) ListenerToken {
	r.eventMu.Lock()
	defer r.eventMu.Unlock()

	r.mu.Lock()
	token := r.addListenerLocked(moduleID, f, l)
	regs := make([]*registration, 0)
	for _, reg := range r.services {
		if !reg.unregistering && f.Matches(reg.props) {
			regs = append(regs, reg)
		}
	}
	r.mu.Unlock()

	slices.SortFunc(regs, func(a, b *registration) int { return compareIDs(a.id, b.id) })
	refs := make([]Reference, len(regs))
	for i, reg := range regs {
		refs[i] = Reference{reg: reg}
	}
	if initial != nil {
		initial(refs)
	}
	return token
}

// BindModules arranges for UnregisterModule to run whenever src announces a
// module unload.
func (r *Registry) BindModules(src UnloadNotifier) {
	src.OnUnload(func(moduleID int64) {
		r.UnregisterModule(moduleID)
	})
}

// UnregisterModule unregisters the remaining services of moduleID newest
// first, exactly as Unregister would, so every matching listener sees
// Unregistering, the module's own included. It then drops the listeners the
// module owns. It returns the number of services unregistered.
func (r *Registry) UnregisterModule(moduleID int64) int {
	r.eventMu.Lock()
	defer r.eventMu.Unlock()

	r.mu.RLock()
	var owned []*registration
	for _, reg := range r.services {
		if reg.moduleID == moduleID && !reg.unregistering {
			owned = append(owned, reg)
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(owned, func(a, b *registration) int { return compareIDs(b.id, a.id) })
	count := 0
	for _, reg := range owned {
		if r.unregisterLocked(reg) {
			count++
		}
	}

	r.mu.Lock()
	kept := r.listeners[:0]
	dropped := 0
	for _, e := range r.listeners {
		if e.moduleID == moduleID {
			e.active.Store(false)
			dropped++
			continue
		}
		kept = append(kept, e)
	}
	clear(r.listeners[len(kept):])
	r.listeners = kept
	r.mu.Unlock()

	if count > 0 || dropped > 0 {
		r.log.Info("module services released", logger.Fields(
			logger.FieldModuleID, moduleID,
			logger.FieldCount, count,
			"listeners", dropped,
		))
	}
	return count
}

// Context returns the registry handle for moduleID. Services registered
// through it are owned by the module and released when it unloads.
func (r *Registry) Context(moduleID int64) *Context {
	return &Context{registry: r, moduleID: moduleID}
}

// Stats returns a summary of the registry.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{
		Services:         len(r.services),
		Listeners:        len(r.listeners),
		NextID:           r.nextID + 1,
		EventsDispatched: r.dispatched.Load(),
		Closed:           r.closed,
	}
}

// CheckHealth reports the registry as down once closed.
func (r *Registry) CheckHealth(_ context.Context) observability.Health {
	s := r.Stats()
	h := observability.Health{
		Name:   "registry",
		Status: observability.HealthStatusUp,
		Details: map[string]string{
			"services":  fmt.Sprint(s.Services),
			"listeners": fmt.Sprint(s.Listeners),
		},
	}
	if s.Closed {
		h.Status = observability.HealthStatusDown
		h.Message = "registry closed"
	}
	return h
}

// Close unregisters every service newest first and drops all listeners.
// Further registrations fail. Calling Close again is a no-op.
func (r *Registry) Close() {
	r.eventMu.Lock()
	defer r.eventMu.Unlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	regs := make([]*registration, 0, len(r.services))
	for _, reg := range r.services {
		regs = append(regs, reg)
	}
	r.mu.Unlock()

	slices.SortFunc(regs, func(a, b *registration) int { return compareIDs(b.id, a.id) })
	for _, reg := range regs {
		r.unregisterLocked(reg)
	}

	r.mu.Lock()
	for _, e := range r.listeners {
		e.active.Store(false)
	}
	r.listeners = nil
	r.mu.Unlock()

	r.log.Info("registry closed", logger.Fields(logger.FieldCount, len(regs)))
}

func (r *Registry) owns(ref Reference) bool {
	return ref.reg != nil && ref.reg.owner == r
}

// dispatch delivers one mutation's events. classify decides, per listener
// filter, which event (if any) that listener receives.
func (r *Registry) dispatch(listeners []*listenerEntry, ref Reference, kind EventType, classify func(*filter.Filter) (EventType, bool)) {
	start := time.Now()
	delivered := 0
	for _, e := range listeners {
		if !e.active.Load() {
			continue
		}
		t, ok := classify(e.filter)
		if !ok {
			continue
		}
		r.deliver(e, Event{Type: t, Reference: ref})
		delivered++
	}
	r.metrics.RecordDispatch(context.Background(), kind.String(), delivered, time.Since(start))
}

func (r *Registry) deliver(e *listenerEntry, ev Event) {
	r.dispatched.Add(1)
	defer func() {
		if rec := recover(); rec != nil {
			r.metrics.RecordListenerPanic(context.Background(), ev.Type.String())
			r.log.Error("service listener panicked", logger.Fields(
				logger.FieldEvent, ev.Type.String(),
				logger.FieldServiceID, ev.Reference.ID(),
				"listener", int64(e.token),
				"panic", fmt.Sprint(rec),
			))
		}
	}()
	e.listener.ServiceChanged(ev)
}

func normalizeInterfaces(interfaces []string) ([]string, error) {
	if len(interfaces) == 0 {
		return nil, apperrors.InvalidRegistration("at least one interface name is required")
	}
	names := make([]string, 0, len(interfaces))
	for _, name := range interfaces {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, apperrors.InvalidRegistration("interface names must not be blank")
		}
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	return names, nil
}

// publishes reports whether names contains iface. Interface names compare
// trimmed and case-insensitively, the way an objectclass filter does.
func publishes(names []string, iface string) bool {
	iface = strings.TrimSpace(iface)
	return slices.ContainsFunc(names, func(n string) bool { return strings.EqualFold(n, iface) })
}

// stamp builds the stored bag: reserved keys first, then the caller's
// entries in their order.
func stamp(interfaces []string, id int64, props *properties.Properties) *properties.Properties {
	p := properties.New()
	p.Set(properties.ObjectClass, slices.Clone(interfaces))
	p.Set(properties.ServiceID, id)
	props.Clone().Range(func(k string, v any) bool {
		if !strings.EqualFold(k, properties.ObjectClass) && !strings.EqualFold(k, properties.ServiceID) {
			p.Set(k, v)
		}
		return true
	})
	return p
}

// compareRegs orders by ranking descending, then id ascending. Callers hold
// the registry lock.
func compareRegs(a, b *registration) int {
	switch {
	case a.ranking > b.ranking:
		return -1
	case a.ranking < b.ranking:
		return 1
	}
	return compareIDs(a.id, b.id)
}

func compareIDs(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
