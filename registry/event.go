package registry

import (
	"fmt"
	"sync/atomic"

	"github.com/kbukum/svckit/filter"
)

// EventType identifies what happened to a registration.
type EventType int

const (
	// Registered is delivered when a service appears, or when a property
	// update makes it match a listener's filter for the first time.
	Registered EventType = iota + 1
	// Modified is delivered when a property update keeps a service matching.
	Modified
	// ModifiedEndMatch is delivered when a property update makes a
	// previously matching service stop matching.
	ModifiedEndMatch
	// Unregistering is delivered before a service is removed. The service
	// still resolves while listeners run.
	Unregistering
)

func (t EventType) String() string {
	switch t {
	case Registered:
		return "REGISTERED"
	case Modified:
		return "MODIFIED"
	case ModifiedEndMatch:
		return "MODIFIED_ENDMATCH"
	case Unregistering:
		return "UNREGISTERING"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// Event is delivered synchronously to listeners on the goroutine that
// performed the mutation.
type Event struct {
	Type      EventType
	Reference Reference
}

func (e Event) String() string {
	return e.Type.String() + " " + e.Reference.String()
}

// Listener receives service events.
//
// Listeners run while the registry holds its event lock. They may read from
// the registry but must not call Register, UpdateProperties, Unregister or
// Subscribe on it; doing so deadlocks.
type Listener interface {
	ServiceChanged(Event)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(Event)

// ServiceChanged calls f(e).
func (f ListenerFunc) ServiceChanged(e Event) { f(e) }

// ListenerToken identifies an added listener for removal.
type ListenerToken int64

type listenerEntry struct {
	token    ListenerToken
	moduleID int64
	filter   *filter.Filter
	listener Listener
	active   atomic.Bool
}
