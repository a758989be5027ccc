// Package framework assembles a running svckit process: configuration,
// logging, telemetry, the service registry, the module manager and the
// optional admin console.
//
//	cfg, err := framework.LoadConfig("orders")
//	fw, err := framework.New(*cfg)
//	fw.Modules().Install("billing", billing.Activator{})
//	if err := fw.Start(ctx); err != nil { ... }
//	defer fw.Stop(context.Background())
package framework

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/kbukum/svckit/console"
	apperrors "github.com/kbukum/svckit/errors"
	"github.com/kbukum/svckit/filter"
	"github.com/kbukum/svckit/logger"
	"github.com/kbukum/svckit/module"
	"github.com/kbukum/svckit/observability"
	"github.com/kbukum/svckit/properties"
	"github.com/kbukum/svckit/registry"
)

const (
	// InterfaceName is the interface the framework registers itself under.
	InterfaceName = "svckit.Framework"
	// PropUUID carries the framework instance id on its own registration.
	PropUUID    = "framework.uuid"
	PropName    = "framework.name"
	PropVersion = "framework.version"

	meterName = "github.com/kbukum/svckit"
)

// Option configures a Framework.
type Option func(*options)

type options struct {
	logger        *logger.Logger
	meterProvider metric.MeterProvider
}

// WithLogger uses l instead of initialising the global logger from config.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMeterProvider records registry and tracker metrics into mp instead of
// the global provider. OTLP metric export is skipped when set.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = mp }
}

type state int

const (
	stateNew state = iota
	stateRunning
	stateStopped
)

// Framework owns the registry and everything around it for one process.
type Framework struct {
	cfg     Config
	id      uuid.UUID
	log     *logger.Logger
	reg     *registry.Registry
	modules *module.Manager
	console *console.Console

	trackerMetrics *observability.TrackerMetrics
	customMeter    bool

	mu             sync.Mutex
	state          state
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
}

// New applies defaults to cfg, validates it and builds the framework. Nothing
// runs until Start.
func New(cfg Config, opts ...Option) (*Framework, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	base := o.logger
	if base == nil {
		logger.Init(cfg.Logging)
		base = logger.GetGlobalLogger()
	}

	var mp metric.MeterProvider = otel.GetMeterProvider()
	if o.meterProvider != nil {
		mp = o.meterProvider
	}
	meter := mp.Meter(meterName)
	regMetrics, err := observability.NewRegistryMetrics(meter)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	trackerMetrics, err := observability.NewTrackerMetrics(meter)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	f := &Framework{
		cfg:            cfg,
		id:             uuid.New(),
		log:            base.WithComponent("framework"),
		trackerMetrics: trackerMetrics,
		customMeter:    o.meterProvider != nil,
	}
	f.reg = registry.New(
		registry.WithLogger(base.WithComponent("registry")),
		registry.WithMetrics(regMetrics),
		registry.WithFilterCache(filter.NewCache(cfg.Registry.FilterCacheTTL, cfg.Registry.FilterCacheCleanup)),
	)
	f.modules = module.NewManager(f.reg, module.WithLogger(base.WithComponent("module")))
	if cfg.Console.Enabled {
		f.console = console.New(cfg.Console, f.reg,
			console.WithModules(f.modules),
			console.WithHealth(f.Health),
			console.WithLogger(base.WithComponent("console")),
		)
	}
	return f, nil
}

// Start brings up telemetry, registers the framework as a service, loads
// every installed module in install order and starts the console. If a
// module fails to load, the modules already loaded are unloaded again.
// Starting a running framework does nothing; a stopped one cannot restart.
func (f *Framework) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch f.state {
	case stateRunning:
		return nil
	case stateStopped:
		return apperrors.Conflict("framework already stopped")
	}

	if err := f.startTelemetry(ctx); err != nil {
		return err
	}

	ctx, span := observability.StartSpan(ctx, observability.SpanFrameworkStart)
	defer span.End()
	observability.SetSpanAttribute(ctx, observability.AttrServiceName, f.cfg.Name)

	self, err := f.reg.Register([]string{InterfaceName}, f, properties.Of(
		PropUUID, f.id.String(),
		PropName, f.cfg.Name,
		PropVersion, f.cfg.Version,
	))
	if err != nil {
		return err
	}

	if err := f.modules.LoadAll(ctx); err != nil {
		observability.SetSpanError(ctx, err)
		if uerr := f.modules.UnloadAll(ctx); uerr != nil {
			f.log.Warn("rollback unload failed", logger.Fields(logger.FieldError, uerr.Error()))
		}
		f.reg.Unregister(self)
		f.shutdownTelemetry(ctx)
		return err
	}

	if f.console != nil {
		if err := f.console.Start(ctx); err != nil {
			observability.SetSpanError(ctx, err)
			f.modules.UnloadAll(ctx)
			f.reg.Unregister(self)
			f.shutdownTelemetry(ctx)
			return err
		}
	}

	f.state = stateRunning
	f.log.Info("framework started", logger.Fields(
		"uuid", f.id.String(),
		"name", f.cfg.Name,
		"version", f.cfg.Version,
		"modules", len(f.modules.List()),
	))
	return nil
}

// Stop stops the console, unloads modules in reverse install order, closes
// the registry and flushes telemetry. Errors from each step are joined.
func (f *Framework) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != stateRunning {
		return nil
	}
	f.state = stateStopped

	ctx, span := observability.StartSpan(ctx, observability.SpanFrameworkStop)
	var errs []error
	if f.console != nil {
		errs = append(errs, f.console.Stop(ctx))
	}
	errs = append(errs, f.modules.UnloadAll(ctx))
	f.reg.Close()
	span.End()

	errs = append(errs, f.shutdownTelemetry(ctx))
	err := errors.Join(errs...)
	if err != nil {
		f.log.Error("framework stopped with errors", logger.Fields(logger.FieldError, err.Error()))
		return err
	}
	f.log.Info("framework stopped", logger.Fields("uuid", f.id.String()))
	return nil
}

func (f *Framework) startTelemetry(ctx context.Context) error {
	oc := f.cfg.Observability
	if !oc.Enabled {
		return nil
	}
	ec := observability.ExportConfig{
		ServiceName:    f.cfg.Name,
		ServiceVersion: f.cfg.Version,
		Environment:    f.cfg.Environment,
		Endpoint:       oc.Endpoint,
		Insecure:       oc.Insecure,
		SampleRate:     oc.SampleRate,
		Interval:       oc.Interval,
	}
	tp, err := observability.InitTracer(ctx, ec)
	if err != nil {
		return apperrors.Internal(err).WithDetail("component", "tracer")
	}
	f.tracerProvider = tp

	if f.customMeter {
		return nil
	}
	mp, err := observability.InitMeter(ctx, ec)
	if err != nil {
		f.shutdownTelemetry(ctx)
		return apperrors.Internal(err).WithDetail("component", "meter")
	}
	f.meterProvider = mp
	return nil
}

func (f *Framework) shutdownTelemetry(ctx context.Context) error {
	var errs []error
	if f.meterProvider != nil {
		errs = append(errs, f.meterProvider.Shutdown(ctx))
		f.meterProvider = nil
	}
	if f.tracerProvider != nil {
		errs = append(errs, f.tracerProvider.Shutdown(ctx))
		f.tracerProvider = nil
	}
	return errors.Join(errs...)
}

// Registry returns the service registry.
func (f *Framework) Registry() *registry.Registry { return f.reg }

// Modules returns the module manager. Install modules before Start.
func (f *Framework) Modules() *module.Manager { return f.modules }

// Context returns the framework's own registry context. Services registered
// through it live until the registry closes.
func (f *Framework) Context() *registry.Context { return f.reg.Context(registry.FrameworkModuleID) }

// UUID identifies this framework instance.
func (f *Framework) UUID() uuid.UUID { return f.id }

// Config returns the effective configuration.
func (f *Framework) Config() Config { return f.cfg }

// Console returns the admin console, or nil when disabled.
func (f *Framework) Console() *console.Console { return f.console }

// Health aggregates registry and module health.
func (f *Framework) Health(ctx context.Context) *observability.ServiceHealth {
	return observability.Collect(ctx, f.cfg.Name, f.cfg.Version, f.reg, f.modules)
}
