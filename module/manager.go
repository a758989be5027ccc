package module

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/kbukum/svckit/errors"
	"github.com/kbukum/svckit/logger"
	"github.com/kbukum/svckit/observability"
	"github.com/kbukum/svckit/registry"
)

const defaultStopTimeout = 10 * time.Second

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(l *logger.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithStopTimeout bounds each module's Stop call. Zero or less means no
// bound beyond the caller's context.
func WithStopTimeout(d time.Duration) Option {
	return func(m *Manager) { m.stopTimeout = d }
}

// Manager installs, loads and unloads modules against one registry.
// Modules load in install order and unload in reverse.
type Manager struct {
	reg         *registry.Registry
	log         *logger.Logger
	stopTimeout time.Duration

	mu       sync.RWMutex
	entries  []*entry
	lookup   map[string]*entry
	nextID   int64
	onUnload []func(moduleID int64)
}

// NewManager creates a manager and binds reg to its unload notifications,
// so a module's leftover services are released when it unloads.
func NewManager(reg *registry.Registry, opts ...Option) *Manager {
	m := &Manager{
		reg:         reg,
		log:         logger.WithComponent("module"),
		stopTimeout: defaultStopTimeout,
		lookup:      make(map[string]*entry),
		nextID:      registry.FrameworkModuleID,
	}
	for _, opt := range opts {
		opt(m)
	}
	reg.BindModules(m)
	return m
}

// OnUnload registers fn to run after each module stops, with the module's id.
func (m *Manager) OnUnload(fn func(moduleID int64)) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUnload = append(m.onUnload, fn)
}

// Install adds a module without starting it and returns its id. Names must
// be unique.
func (m *Manager) Install(name string, a Activator) (int64, error) {
	if name == "" {
		return 0, apperrors.InvalidInput("name", "module name must not be empty")
	}
	if a == nil {
		return 0, apperrors.InvalidInput("activator", "module activator must not be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.lookup[name]; exists {
		return 0, apperrors.AlreadyExists("module").WithDetail("name", name)
	}
	m.nextID++
	e := &entry{id: m.nextID, name: name, activator: a}
	e.rc = m.reg.Context(e.id)
	m.entries = append(m.entries, e)
	m.lookup[name] = e

	m.log.Debug("module installed", logger.Fields(logger.FieldModule, name, logger.FieldModuleID, e.id))
	return e.id, nil
}

// Load starts the named module. Loading an active module does nothing. If
// Start fails, anything the module registered is released and it returns to
// installed.
func (m *Manager) Load(ctx context.Context, name string) error {
	e, err := m.transition(name, StateInstalled, StateStarting)
	if err != nil || e == nil {
		return err
	}

	ctx, span := observability.StartSpan(ctx, observability.SpanModuleLoad)
	defer span.End()
	observability.SetSpanAttribute(ctx, observability.AttrModuleName, e.name)
	observability.SetSpanAttribute(ctx, observability.AttrModuleID, e.id)

	start := time.Now()
	if err := m.call(e, "start", func() error { return e.activator.Start(ctx, e.rc) }); err != nil {
		observability.SetSpanError(ctx, err)
		m.notifyUnload(e.id)
		m.setState(e, StateInstalled)
		m.log.Error("module start failed", logger.Fields(
			logger.FieldModule, e.name,
			logger.FieldError, err.Error(),
		))
		return apperrors.Internal(err).WithDetail("module", e.name)
	}
	m.setState(e, StateActive)

	m.log.Info("module loaded", logger.Fields(
		logger.FieldModule, e.name,
		logger.FieldModuleID, e.id,
		"duration_ms", time.Since(start).Milliseconds(),
	))
	return nil
}

// Unload stops the named module, then announces the unload so the registry
// releases what it still holds. Unloading an installed module does nothing.
// A Stop error is returned after the module's services are released.
func (m *Manager) Unload(ctx context.Context, name string) error {
	e, err := m.transition(name, StateActive, StateStopping)
	if err != nil || e == nil {
		return err
	}

	ctx, span := observability.StartSpan(ctx, observability.SpanModuleUnload)
	defer span.End()
	observability.SetSpanAttribute(ctx, observability.AttrModuleName, e.name)
	observability.SetSpanAttribute(ctx, observability.AttrModuleID, e.id)

	stopCtx := ctx
	if m.stopTimeout > 0 {
		var cancel context.CancelFunc
		stopCtx, cancel = context.WithTimeout(ctx, m.stopTimeout)
		defer cancel()
	}
	stopErr := m.call(e, "stop", func() error { return e.activator.Stop(stopCtx, e.rc) })

	m.notifyUnload(e.id)
	m.setState(e, StateInstalled)

	if stopErr != nil {
		observability.SetSpanError(ctx, stopErr)
		m.log.Error("module stop failed", logger.Fields(
			logger.FieldModule, e.name,
			logger.FieldError, stopErr.Error(),
		))
		return apperrors.Internal(stopErr).WithDetail("module", e.name)
	}
	m.log.Info("module unloaded", logger.Fields(logger.FieldModule, e.name, logger.FieldModuleID, e.id))
	return nil
}

// LoadAll loads every installed module in install order, stopping at the
// first failure.
func (m *Manager) LoadAll(ctx context.Context) error {
	names := m.names()
	m.log.Info("loading modules", logger.Fields(logger.FieldCount, len(names)))
	for _, name := range names {
		if err := m.Load(ctx, name); err != nil {
			return fmt.Errorf("failed to load %s: %w", name, err)
		}
	}
	return nil
}

// UnloadAll unloads every module in reverse install order. All modules are
// attempted; their errors are joined.
func (m *Manager) UnloadAll(ctx context.Context) error {
	names := m.names()
	var errs []error
	for i := len(names) - 1; i >= 0; i-- {
		if err := m.Unload(ctx, names[i]); err != nil {
			errs = append(errs, fmt.Errorf("failed to unload %s: %w", names[i], err))
		}
	}
	return errors.Join(errs...)
}

// Get returns a snapshot of the named module.
func (m *Manager) Get(name string) (Info, bool) {
	m.mu.RLock()
	e, ok := m.lookup[name]
	if !ok {
		m.mu.RUnlock()
		return Info{}, false
	}
	info := Info{ID: e.id, Name: e.name, State: e.state}
	m.mu.RUnlock()

	info.Services = m.countServices(info.ID)
	return info, true
}

// List returns every installed module in install order.
func (m *Manager) List() []Info {
	m.mu.RLock()
	infos := make([]Info, 0, len(m.entries))
	for _, e := range m.entries {
		infos = append(infos, Info{ID: e.id, Name: e.name, State: e.state})
	}
	m.mu.RUnlock()

	counts := make(map[int64]int)
	for _, ref := range m.reg.GetServiceReferences("", nil) {
		counts[ref.ModuleID()]++
	}
	for i := range infos {
		infos[i].Services = counts[infos[i].ID]
	}
	return infos
}

// Context returns the registry context of the named module.
func (m *Manager) Context(name string) (*registry.Context, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.lookup[name]
	if !ok {
		return nil, false
	}
	return e.rc, true
}

// CheckHealth reports degraded while any module is mid-transition.
func (m *Manager) CheckHealth(_ context.Context) observability.Health {
	m.mu.RLock()
	defer m.mu.RUnlock()

	active, busy := 0, 0
	for _, e := range m.entries {
		switch e.state {
		case StateActive:
			active++
		case StateStarting, StateStopping:
			busy++
		}
	}
	h := observability.Health{
		Name:   "modules",
		Status: observability.HealthStatusUp,
		Details: map[string]string{
			"installed": fmt.Sprint(len(m.entries)),
			"active":    fmt.Sprint(active),
		},
	}
	if busy > 0 {
		h.Status = observability.HealthStatusDegraded
		h.Message = fmt.Sprintf("%d module(s) starting or stopping", busy)
	}
	return h
}

// transition moves the named module from one state to another. It returns
// a nil entry when the module is already where the caller wants it.
func (m *Manager) transition(name string, from, to State) (*entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.lookup[name]
	if !ok {
		return nil, apperrors.NotFound("module", name)
	}
	switch {
	case e.state == from:
		e.state = to
		return e, nil
	case from == StateInstalled && e.state == StateActive,
		from == StateActive && e.state == StateInstalled:
		return nil, nil
	default:
		return nil, apperrors.Conflict(fmt.Sprintf("module %s is %s", name, e.state))
	}
}

// call runs an activator hook and turns a panic into an error, so the module
// still leaves its transitional state.
func (m *Manager) call(e *entry, hook string, fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("module %s panicked in %s: %v", e.name, hook, rec)
		}
	}()
	return fn()
}

func (m *Manager) setState(e *entry, s State) {
	m.mu.Lock()
	e.state = s
	m.mu.Unlock()
}

func (m *Manager) notifyUnload(id int64) {
	m.mu.RLock()
	fns := append([]func(int64){}, m.onUnload...)
	m.mu.RUnlock()
	for _, fn := range fns {
		fn(id)
	}
}

func (m *Manager) names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, len(m.entries))
	for i, e := range m.entries {
		names[i] = e.name
	}
	return names
}

func (m *Manager) countServices(id int64) int {
	n := 0
	for _, ref := range m.reg.GetServiceReferences("", nil) {
		if ref.ModuleID() == id {
			n++
		}
	}
	return n
}
