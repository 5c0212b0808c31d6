package heap

import "github.com/wippyai/wasm-bridge/value"

// Handle is the guest-visible index of a host value.
// Handle 0 is a reserved slot and doubles as "none" for optional results.
type Handle uint32

// Handles of the constant values
const (
	Undefined Handle = 32
	Null      Handle = 33
	True      Handle = 34
	False     Handle = 35

	// Reserved is the number of slots that are never released.
	Reserved = 36
)

// EventType tags a lifecycle notification
type EventType uint8

const (
	EventMinted EventType = iota
	EventReleased
)

func (t EventType) String() string {
	switch t {
	case EventMinted:
		return "minted"
	case EventReleased:
		return "released"
	}
	return "unknown"
}

// Event describes a handle lifecycle change
type Event struct {
	Value  value.Value
	Handle Handle
	Type   EventType
}

// Observer receives handle lifecycle events
type Observer interface {
	OnHeapEvent(Event)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(Event)

func (f ObserverFunc) OnHeapEvent(e Event) { f(e) }

// Entry is a live slot reported by Snapshot
type Entry struct {
	Value  value.Value
	Handle Handle
}

// Dropper is optionally implemented by host objects that hold resources
// which must be freed when the table is cleared.
type Dropper interface {
	Drop()
}
