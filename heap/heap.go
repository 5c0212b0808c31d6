package heap

import (
	"github.com/wippyai/wasm-bridge/value"
)

type subscription struct {
	o  Observer
	id int
}

type slot struct {
	value value.Value
	next  uint32
	live  bool
}

// Heap is the handle table
type Heap struct {
	slots     []slot
	observers []subscription
	next      uint32
	live      int
	nextSub   int
}

// New creates a table holding only the reserved slots
func New() *Heap {
	h := &Heap{slots: make([]slot, Reserved, 128)}
	h.reset()
	return h
}

func (h *Heap) reset() {
	h.slots = h.slots[:Reserved]
	for i := range h.slots {
		h.slots[i] = slot{live: true}
	}
	h.slots[Null].value = value.Null()
	h.slots[True].value = value.Bool(true)
	h.slots[False].value = value.Bool(false)
	h.next = Reserved
	h.live = 0
}

// Mint stores v in a vacant slot and returns its handle. It never fails;
// the table grows as needed.
func (h *Heap) Mint(v value.Value) Handle {
	if int(h.next) == len(h.slots) {
		h.slots = append(h.slots, slot{next: h.next + 1})
	}
	idx := h.next
	h.next = h.slots[idx].next
	h.slots[idx] = slot{value: v, live: true}
	h.live++

	h.notify(Event{Type: EventMinted, Handle: Handle(idx), Value: v})
	return Handle(idx)
}

// Peek returns the value at handle without releasing it. Vacant or unknown
// handles read as undefined.
func (h *Heap) Peek(handle Handle) value.Value {
	if int(handle) >= len(h.slots) {
		return value.Undefined()
	}
	return h.slots[handle].value
}

// Release frees handle. Reserved and vacant handles are left alone.
func (h *Heap) Release(handle Handle) {
	if handle < Reserved || int(handle) >= len(h.slots) {
		return
	}
	s := &h.slots[handle]
	if !s.live {
		return
	}
	v := s.value
	*s = slot{next: h.next}
	h.next = uint32(handle)
	h.live--

	h.notify(Event{Type: EventReleased, Handle: handle, Value: v})
}

// Take returns the value at handle and releases it.
func (h *Heap) Take(handle Handle) value.Value {
	v := h.Peek(handle)
	h.Release(handle)
	return v
}

// Live reports whether handle currently refers to a value.
func (h *Heap) Live(handle Handle) bool {
	return int(handle) < len(h.slots) && h.slots[handle].live
}

// Len returns the number of live non-reserved handles.
func (h *Heap) Len() int {
	return h.live
}

// Cap returns the number of slots, reserved ones included.
func (h *Heap) Cap() int {
	return len(h.slots)
}

// Snapshot lists live non-reserved handles in ascending order.
func (h *Heap) Snapshot() []Entry {
	out := make([]Entry, 0, h.live)
	for i := Reserved; i < len(h.slots); i++ {
		if h.slots[i].live {
			out = append(out, Entry{Handle: Handle(i), Value: h.slots[i].value})
		}
	}
	return out
}

// Clear releases every non-reserved handle, dropping objects that
// implement Dropper, and shrinks the table back to its reserved slots.
func (h *Heap) Clear() {
	for i := Reserved; i < len(h.slots); i++ {
		s := h.slots[i]
		if !s.live {
			continue
		}
		if o, ok := s.value.AsObject(); ok {
			if d, ok := o.(Dropper); ok {
				d.Drop()
			}
		}
		h.notify(Event{Type: EventReleased, Handle: Handle(i), Value: s.value})
	}
	h.reset()
}

// Subscribe registers o for lifecycle events and returns a function that
// removes it.
func (h *Heap) Subscribe(o Observer) (unsubscribe func()) {
	h.nextSub++
	id := h.nextSub
	h.observers = append(h.observers, subscription{id: id, o: o})
	return func() {
		for i, s := range h.observers {
			if s.id == id {
				h.observers = append(h.observers[:i], h.observers[i+1:]...)
				return
			}
		}
	}
}

func (h *Heap) notify(e Event) {
	for _, s := range h.observers {
		s.o.OnHeapEvent(e)
	}
}
