// Package tracker maintains live, ranked views of the services in a
// registry that match a selector.
//
//	t := tracker.New[Greeter](reg, tracker.ForInterface("org.example.Greeter"))
//	t.Open()
//	defer t.Close()
//
//	if g, ok := t.WaitForService(5 * time.Second); ok {
//	    g.Greet()
//	}
//
// A Tracker is safe for concurrent use. Queries on a closed tracker report
// empty or absent.
package tracker

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/kbukum/svckit/filter"
	"github.com/kbukum/svckit/logger"
	"github.com/kbukum/svckit/observability"
	"github.com/kbukum/svckit/registry"
)

// Source is the registry surface a tracker needs. *registry.Registry and
// *registry.Context implement it.
type Source interface {
	GetService(ref registry.Reference) (any, bool)
	Subscribe(f *filter.Filter, l registry.Listener, initial func([]registry.Reference)) registry.ListenerToken
	RemoveListener(token registry.ListenerToken) bool
}

type config struct {
	customizer any
	log        *logger.Logger
	metrics    *observability.TrackerMetrics
	name       string
}

// Option configures a Tracker.
type Option func(*config)

// WithCustomizer installs c. Its type parameter must match the tracker's.
func WithCustomizer[T any](c Customizer[T]) Option {
	return func(cfg *config) { cfg.customizer = c }
}

// WithLogger sets the tracker's logger.
func WithLogger(l *logger.Logger) Option {
	return func(cfg *config) { cfg.log = l }
}

// WithMetrics records tracker activity into m.
func WithMetrics(m *observability.TrackerMetrics) Option {
	return func(cfg *config) { cfg.metrics = m }
}

// WithName labels the tracker in logs and metrics. It defaults to the
// selector's filter text.
func WithName(name string) Option {
	return func(cfg *config) { cfg.name = name }
}

// Tracker follows the services a Selector picks out and holds one T for
// each, produced by its Customizer.
type Tracker[T any] struct {
	src        Source
	sel        Selector
	customizer Customizer[T]
	log        *logger.Logger
	metrics    *observability.TrackerMetrics
	name       string

	mu      sync.Mutex
	open    bool
	gen     uint64
	token   registry.ListenerToken
	tracked map[registry.Reference]T
	adding  map[registry.Reference]bool
	count   int

	// ready is closed while the tracker holds at least one service, or is
	// closed. It is replaced each time the snapshot empties.
	ready       chan struct{}
	readyClosed bool
}

// New creates a closed tracker over src. It panics if a customizer for a
// different type parameter is supplied.
func New[T any](src Source, sel Selector, opts ...Option) *Tracker[T] {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	t := &Tracker[T]{
		src:     src,
		sel:     sel,
		metrics: cfg.metrics,
		name:    cfg.name,
		tracked: make(map[registry.Reference]T),
		adding:  make(map[registry.Reference]bool),
		ready:   make(chan struct{}),
	}
	if t.name == "" {
		t.name = sel.String()
	}
	t.log = cfg.log
	if t.log == nil {
		t.log = logger.WithComponent("tracker")
	}
	t.log = t.log.WithFields(logger.Fields("tracker", t.name))

	def := defaultCustomizer[T]{src: src}
	switch c := cfg.customizer.(type) {
	case nil:
		t.customizer = def
	case defaultBinder[T]:
		t.customizer = c.withDefault(def)
	case Customizer[T]:
		t.customizer = c
	default:
		var zero T
		panic(fmt.Sprintf("tracker: customizer %T does not customize %T", cfg.customizer, zero))
	}
	return t
}

type listener[T any] struct {
	t   *Tracker[T]
	gen uint64
}

func (l listener[T]) ServiceChanged(e registry.Event) {
	if !l.t.sel.accepts(e.Reference) {
		return
	}
	switch e.Type {
	case registry.Registered:
		l.t.track(l.gen, e.Reference, false)
	case registry.Modified:
		l.t.track(l.gen, e.Reference, true)
	case registry.ModifiedEndMatch, registry.Unregistering:
		l.t.untrack(l.gen, e.Reference, true)
	}
}

// Open subscribes to the registry and adds every currently matching service
// in ascending id order. Opening an open tracker does nothing.
func (t *Tracker[T]) Open() {
	t.mu.Lock()
	if t.open {
		t.mu.Unlock()
		return
	}
	t.open = true
	t.gen++
	gen := t.gen
	t.count = 0
	t.resetReadyLocked()
	t.mu.Unlock()

	token := t.src.Subscribe(t.sel.filter, listener[T]{t: t, gen: gen}, func(refs []registry.Reference) {
		for _, ref := range refs {
			if t.sel.accepts(ref) {
				t.track(gen, ref, false)
			}
		}
	})

	t.mu.Lock()
	if t.open && t.gen == gen {
		t.token = token
		t.mu.Unlock()
		t.log.Debug("tracker opened", logger.Fields(logger.FieldCount, t.Size()))
		return
	}
	t.mu.Unlock()
	// Closed while subscribing.
	t.src.RemoveListener(token)
}

// Close unsubscribes and calls RemovedService for every tracked service,
// newest last. Waiters are woken and report absent. Closing a closed
// tracker does nothing.
func (t *Tracker[T]) Close() {
	t.mu.Lock()
	if !t.open {
		t.mu.Unlock()
		return
	}
	t.open = false
	token := t.token
	t.token = 0
	tracked := t.tracked
	t.tracked = make(map[registry.Reference]T)
	clear(t.adding)
	t.signalReadyLocked()
	t.mu.Unlock()

	if token != 0 {
		t.src.RemoveListener(token)
	}

	refs := make([]registry.Reference, 0, len(tracked))
	for ref := range tracked {
		refs = append(refs, ref)
	}
	registry.SortByID(refs)
	for _, ref := range refs {
		t.removed(ref, tracked[ref])
	}
	t.log.Debug("tracker closed", logger.Fields(logger.FieldCount, len(refs)))
}

func (t *Tracker[T]) track(gen uint64, ref registry.Reference, modified bool) {
	t.mu.Lock()
	if !t.open || t.gen != gen {
		t.mu.Unlock()
		return
	}
	if svc, ok := t.tracked[ref]; ok {
		t.count++
		t.mu.Unlock()
		if modified {
			t.customizer.ModifiedService(ref, svc)
			t.metrics.RecordHook(context.Background(), t.name, "modified", 0)
		}
		return
	}
	if t.adding[ref] {
		t.mu.Unlock()
		return
	}
	t.adding[ref] = true
	t.mu.Unlock()

	svc, ok := t.customizer.AddingService(ref)

	t.mu.Lock()
	wanted := t.adding[ref] && t.open && t.gen == gen
	delete(t.adding, ref)
	if !ok {
		t.mu.Unlock()
		t.log.Debug("service skipped", logger.Fields(logger.FieldServiceID, ref.ID()))
		return
	}
	if !wanted {
		t.mu.Unlock()
		// Removed or closed while adding.
		t.customizer.RemovedService(ref, svc)
		return
	}
	t.tracked[ref] = svc
	t.count++
	t.signalReadyLocked()
	t.mu.Unlock()

	t.metrics.RecordHook(context.Background(), t.name, "adding", 1)
	t.log.Debug("service tracked", logger.Fields(logger.FieldServiceID, ref.ID()))
}

func (t *Tracker[T]) untrack(gen uint64, ref registry.Reference, checkGen bool) {
	t.mu.Lock()
	if checkGen && (!t.open || t.gen != gen) {
		t.mu.Unlock()
		return
	}
	if t.adding[ref] {
		// The in-flight add sees this and releases its value.
		delete(t.adding, ref)
		t.mu.Unlock()
		return
	}
	svc, ok := t.tracked[ref]
	if !ok {
		t.mu.Unlock()
		return
	}
	delete(t.tracked, ref)
	t.count++
	if len(t.tracked) == 0 && t.open {
		t.resetReadyLocked()
	}
	t.mu.Unlock()

	t.removed(ref, svc)
	t.log.Debug("service untracked", logger.Fields(logger.FieldServiceID, ref.ID()))
}

func (t *Tracker[T]) removed(ref registry.Reference, svc T) {
	t.customizer.RemovedService(ref, svc)
	t.metrics.RecordHook(context.Background(), t.name, "removed", -1)
}

func (t *Tracker[T]) signalReadyLocked() {
	if !t.readyClosed {
		close(t.ready)
		t.readyClosed = true
	}
}

func (t *Tracker[T]) resetReadyLocked() {
	if t.readyClosed {
		t.ready = make(chan struct{})
		t.readyClosed = false
	}
}

// Remove stops tracking ref without waiting for the registry, calling
// RemovedService. Removing an untracked reference does nothing.
func (t *Tracker[T]) Remove(ref registry.Reference) {
	t.untrack(0, ref, false)
}

// Size returns the number of tracked services.
func (t *Tracker[T]) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tracked)
}

// IsEmpty reports whether no service is tracked.
func (t *Tracker[T]) IsEmpty() bool {
	return t.Size() == 0
}

// TrackingCount increases every time a service is added, modified or
// removed while open. It is -1 when the tracker is closed.
func (t *Tracker[T]) TrackingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.open {
		return -1
	}
	return t.count
}

func (t *Tracker[T]) snapshot() map[registry.Reference]T {
	t.mu.Lock()
	defer t.mu.Unlock()
	m := make(map[registry.Reference]T, len(t.tracked))
	for ref, svc := range t.tracked {
		m[ref] = svc
	}
	return m
}

func sortedRefs[T any](m map[registry.Reference]T) []registry.Reference {
	refs := make([]registry.Reference, 0, len(m))
	for ref := range m {
		refs = append(refs, ref)
	}
	registry.SortByID(refs)
	return refs
}

// GetServiceReferences returns the tracked references in ascending id order.
func (t *Tracker[T]) GetServiceReferences() []registry.Reference {
	return sortedRefs(t.snapshot())
}

// GetServiceReference returns the highest-ranked tracked reference.
func (t *Tracker[T]) GetServiceReference() (registry.Reference, bool) {
	ref, _, ok := best(t.snapshot())
	return ref, ok
}

func best[T any](m map[registry.Reference]T) (registry.Reference, T, bool) {
	var zero T
	if len(m) == 0 {
		return registry.Reference{}, zero, false
	}
	refs := sortedRefs(m)
	top := slices.MinFunc(refs, registry.Reference.Compare)
	return top, m[top], true
}

// GetServiceFor returns the value tracked for ref.
func (t *Tracker[T]) GetServiceFor(ref registry.Reference) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	svc, ok := t.tracked[ref]
	return svc, ok
}

// GetService returns the value of the highest-ranked tracked service.
func (t *Tracker[T]) GetService() (T, bool) {
	_, svc, ok := best(t.snapshot())
	return svc, ok
}

// GetServices returns every tracked value, in GetServiceReferences order.
func (t *Tracker[T]) GetServices() []T {
	m := t.snapshot()
	refs := sortedRefs(m)
	out := make([]T, len(refs))
	for i, ref := range refs {
		out[i] = m[ref]
	}
	return out
}

// Tracked returns a copy of the tracked references and their values.
func (t *Tracker[T]) Tracked() map[registry.Reference]T {
	return t.snapshot()
}

// WaitForService blocks until a service is tracked, then returns what
// GetService returns. A timeout of zero or less waits indefinitely. It
// reports absent on timeout, or if the tracker is or becomes closed.
func (t *Tracker[T]) WaitForService(timeout time.Duration) (T, bool) {
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return t.WaitForServiceContext(ctx)
}

// WaitForServiceContext is WaitForService bounded by ctx.
func (t *Tracker[T]) WaitForServiceContext(ctx context.Context) (T, bool) {
	start := time.Now()
	svc, ok := t.wait(ctx)
	t.metrics.RecordWait(context.Background(), t.name, ok, time.Since(start))
	return svc, ok
}

func (t *Tracker[T]) wait(ctx context.Context) (T, bool) {
	var zero T
	for {
		t.mu.Lock()
		if !t.open {
			t.mu.Unlock()
			return zero, false
		}
		if len(t.tracked) > 0 {
			t.mu.Unlock()
			if svc, ok := t.GetService(); ok {
				return svc, true
			}
			continue
		}
		ready := t.ready
		t.mu.Unlock()

		select {
		case <-ready:
		case <-ctx.Done():
			return zero, false
		}
	}
}
