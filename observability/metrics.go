package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instrument names.
const (
	MetricRegistrations    = "svckit.registry.registrations"
	MetricUnregistrations  = "svckit.registry.unregistrations"
	MetricModifications    = "svckit.registry.modifications"
	MetricServices         = "svckit.registry.services"
	MetricEvents           = "svckit.registry.events"
	MetricListenerPanics   = "svckit.registry.listener_panics"
	MetricDispatchDuration = "svckit.registry.dispatch.duration"

	MetricTracked      = "svckit.tracker.tracked"
	MetricHookCalls    = "svckit.tracker.hook_calls"
	MetricWaitDuration = "svckit.tracker.wait.duration"
)

// RegistryMetrics holds the instruments a service registry records into.
// All methods are safe on a nil receiver, which records nothing.
type RegistryMetrics struct {
	registrations    metric.Int64Counter
	unregistrations  metric.Int64Counter
	modifications    metric.Int64Counter
	services         metric.Int64UpDownCounter
	events           metric.Int64Counter
	listenerPanics   metric.Int64Counter
	dispatchDuration metric.Float64Histogram
}

// NewRegistryMetrics creates registry instruments on the given meter.
func NewRegistryMetrics(meter metric.Meter) (*RegistryMetrics, error) {
	registrations, err := meter.Int64Counter(MetricRegistrations,
		metric.WithDescription("Total number of service registrations"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricRegistrations, err)
	}

	unregistrations, err := meter.Int64Counter(MetricUnregistrations,
		metric.WithDescription("Total number of service unregistrations"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricUnregistrations, err)
	}

	modifications, err := meter.Int64Counter(MetricModifications,
		metric.WithDescription("Total number of property updates"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricModifications, err)
	}

	services, err := meter.Int64UpDownCounter(MetricServices,
		metric.WithDescription("Number of currently registered services"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s gauge: %w", MetricServices, err)
	}

	events, err := meter.Int64Counter(MetricEvents,
		metric.WithDescription("Service events delivered to listeners, by type"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricEvents, err)
	}

	listenerPanics, err := meter.Int64Counter(MetricListenerPanics,
		metric.WithDescription("Listener callbacks that panicked"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricListenerPanics, err)
	}

	dispatchDuration, err := meter.Float64Histogram(MetricDispatchDuration,
		metric.WithDescription("Time spent delivering one event to all listeners"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s histogram: %w", MetricDispatchDuration, err)
	}

	return &RegistryMetrics{
		registrations:    registrations,
		unregistrations:  unregistrations,
		modifications:    modifications,
		services:         services,
		events:           events,
		listenerPanics:   listenerPanics,
		dispatchDuration: dispatchDuration,
	}, nil
}

// RecordRegistered counts a new registration.
func (m *RegistryMetrics) RecordRegistered(ctx context.Context) {
	if m == nil {
		return
	}
	m.registrations.Add(ctx, 1)
	m.services.Add(ctx, 1)
}

// RecordUnregistered counts a removed registration.
func (m *RegistryMetrics) RecordUnregistered(ctx context.Context) {
	if m == nil {
		return
	}
	m.unregistrations.Add(ctx, 1)
	m.services.Add(ctx, -1)
}

// RecordModified counts a property update.
func (m *RegistryMetrics) RecordModified(ctx context.Context) {
	if m == nil {
		return
	}
	m.modifications.Add(ctx, 1)
}

// RecordDispatch records one event fanned out to delivered listeners.
func (m *RegistryMetrics) RecordDispatch(ctx context.Context, eventType string, delivered int, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(AttrEventType, eventType))
	if delivered > 0 {
		m.events.Add(ctx, int64(delivered), attrs)
	}
	m.dispatchDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordListenerPanic counts a recovered listener panic.
func (m *RegistryMetrics) RecordListenerPanic(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	m.listenerPanics.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrEventType, eventType)))
}

// TrackerMetrics holds the instruments service trackers record into. One
// instance may be shared by many trackers; each records under its own name.
// All methods are safe on a nil receiver.
type TrackerMetrics struct {
	tracked      metric.Int64UpDownCounter
	hookCalls    metric.Int64Counter
	waitDuration metric.Float64Histogram
}

// NewTrackerMetrics creates tracker instruments on the given meter.
func NewTrackerMetrics(meter metric.Meter) (*TrackerMetrics, error) {
	tracked, err := meter.Int64UpDownCounter(MetricTracked,
		metric.WithDescription("Number of currently tracked services"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s gauge: %w", MetricTracked, err)
	}

	hookCalls, err := meter.Int64Counter(MetricHookCalls,
		metric.WithDescription("Customizer hook invocations, by hook"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricHookCalls, err)
	}

	waitDuration, err := meter.Float64Histogram(MetricWaitDuration,
		metric.WithDescription("Time spent blocked waiting for a service"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s histogram: %w", MetricWaitDuration, err)
	}

	return &TrackerMetrics{
		tracked:      tracked,
		hookCalls:    hookCalls,
		waitDuration: waitDuration,
	}, nil
}

// RecordHook counts a customizer hook call and adjusts the tracked gauge for
// "adding" and "removed".
func (m *TrackerMetrics) RecordHook(ctx context.Context, tracker, hook string, delta int64) {
	if m == nil {
		return
	}
	m.hookCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrTracker, tracker),
		attribute.String(AttrHook, hook),
	))
	if delta != 0 {
		m.tracked.Add(ctx, delta, metric.WithAttributes(attribute.String(AttrTracker, tracker)))
	}
}

// RecordWait records a completed blocking wait.
func (m *TrackerMetrics) RecordWait(ctx context.Context, tracker string, found bool, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "found"
	if !found {
		outcome = "absent"
	}
	m.waitDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String(AttrTracker, tracker),
		attribute.String(AttrOutcome, outcome),
	))
}
