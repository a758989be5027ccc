package tracker

import "github.com/kbukum/svckit/registry"

// Customizer controls what a tracker stores for each service and observes
// its lifecycle. Hooks run on the goroutine delivering the registry event,
// or on the caller of Open, Close and Remove, and never while the tracker
// holds its own lock.
type Customizer[T any] interface {
	// AddingService returns the value to track for ref, or false to skip it.
	AddingService(ref registry.Reference) (T, bool)
	// ModifiedService is called when a tracked service's properties change
	// and it still matches.
	ModifiedService(ref registry.Reference, service T)
	// RemovedService is called once for every value AddingService produced,
	// when the service stops being tracked. The registration may already be
	// gone; service is the value captured at adoption.
	RemovedService(ref registry.Reference, service T)
}

// CustomizerFuncs builds a Customizer from functions. Nil fields fall back
// to the tracker's default behaviour: adopt the registered instance when it
// is a T, and do nothing on modify or remove.
type CustomizerFuncs[T any] struct {
	Adding   func(ref registry.Reference) (T, bool)
	Modified func(ref registry.Reference, service T)
	Removed  func(ref registry.Reference, service T)
}

// AddingService calls Adding, or skips the service when Adding is nil and
// no tracker default has been bound.
func (c CustomizerFuncs[T]) AddingService(ref registry.Reference) (T, bool) {
	if c.Adding == nil {
		var zero T
		return zero, false
	}
	return c.Adding(ref)
}

// ModifiedService calls Modified if set.
func (c CustomizerFuncs[T]) ModifiedService(ref registry.Reference, service T) {
	if c.Modified != nil {
		c.Modified(ref, service)
	}
}

// RemovedService calls Removed if set.
func (c CustomizerFuncs[T]) RemovedService(ref registry.Reference, service T) {
	if c.Removed != nil {
		c.Removed(ref, service)
	}
}

func (c CustomizerFuncs[T]) withDefault(def Customizer[T]) Customizer[T] {
	if c.Adding == nil {
		c.Adding = def.AddingService
	}
	if c.Modified == nil {
		c.Modified = def.ModifiedService
	}
	if c.Removed == nil {
		c.Removed = def.RemovedService
	}
	return c
}

type defaultBinder[T any] interface {
	withDefault(def Customizer[T]) Customizer[T]
}

// defaultCustomizer adopts the registered instance if it is a T.
type defaultCustomizer[T any] struct {
	src Source
}

func (d defaultCustomizer[T]) AddingService(ref registry.Reference) (T, bool) {
	var zero T
	v, ok := d.src.GetService(ref)
	if !ok {
		return zero, false
	}
	s, ok := v.(T)
	if !ok {
		return zero, false
	}
	return s, true
}

func (defaultCustomizer[T]) ModifiedService(registry.Reference, T) {}

func (defaultCustomizer[T]) RemovedService(registry.Reference, T) {}
