// Package module manages the lifecycle of the modules that publish and
// consume services. Each loaded module gets a registry context scoped to its
// id; when it unloads, the registry drops its listeners and releases any
// services it left behind.
package module

import (
	"context"
	"fmt"

	"github.com/kbukum/svckit/registry"
)

// State is the lifecycle state of an installed module.
type State int

const (
	StateInstalled State = iota
	StateStarting
	StateActive
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateInstalled:
		return "installed"
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Activator starts and stops a module. Start receives the module's scoped
// registry context; services it registers there belong to the module.
type Activator interface {
	Start(ctx context.Context, rc *registry.Context) error
	Stop(ctx context.Context, rc *registry.Context) error
}

// ActivatorFuncs builds an Activator from functions. Nil fields do nothing.
type ActivatorFuncs struct {
	StartFunc func(ctx context.Context, rc *registry.Context) error
	StopFunc  func(ctx context.Context, rc *registry.Context) error
}

// Start calls StartFunc if set.
func (a ActivatorFuncs) Start(ctx context.Context, rc *registry.Context) error {
	if a.StartFunc == nil {
		return nil
	}
	return a.StartFunc(ctx, rc)
}

// Stop calls StopFunc if set.
func (a ActivatorFuncs) Stop(ctx context.Context, rc *registry.Context) error {
	if a.StopFunc == nil {
		return nil
	}
	return a.StopFunc(ctx, rc)
}

// Info is a snapshot of one installed module.
type Info struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	State    State  `json:"state"`
	Services int    `json:"services"`
}

type entry struct {
	id        int64
	name      string
	activator Activator
	state     State
	rc        *registry.Context
}
