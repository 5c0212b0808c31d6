// Package errslot relays host failures to the guest.
//
// A boundary function can return only numbers, so a guarded host call that
// fails returns zeroed results and parks the failure, as a handle to an
// error value, in a single slot. The guest checks the slot after the call
// returns. A second failure before the guest collects the first overwrites
// it.
package errslot

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/heap"
	"github.com/wippyai/wasm-bridge/value"
)

// ExnStoreExport is the optional guest export that keeps captured failures
// on the guest side.
const ExnStoreExport = "__wbindgen_exn_store"

// Slot holds at most one pending failure handle
type Slot struct {
	handle  heap.Handle
	pending bool
}

// Store parks h, replacing any failure still pending.
func (s *Slot) Store(h heap.Handle) {
	if s.pending {
		Logger().Warn("pending host failure overwritten before the guest collected it",
			zap.Uint32("lost", uint32(s.handle)),
			zap.Uint32("handle", uint32(h)))
	}
	s.handle = h
	s.pending = true
}

// Take returns the pending handle and clears the slot.
func (s *Slot) Take() (heap.Handle, bool) {
	if !s.pending {
		return 0, false
	}
	h := s.handle
	s.handle, s.pending = 0, false
	return h, true
}

// Pending reports whether a failure is waiting to be collected.
func (s *Slot) Pending() bool {
	return s.pending
}

// Capture converts host failures into error values and stores their
// handles, either in a Slot or through the guest's exn_store export.
type Capture struct {
	heap  *heap.Heap
	slot  *Slot
	store api.Function
}

// NewCapture creates a capture that mints into hp and parks in slot.
func NewCapture(hp *heap.Heap, slot *Slot) *Capture {
	return &Capture{heap: hp, slot: slot}
}

// ForwardTo sends captured handles to the guest exn_store export instead of
// the host slot. A nil fn restores the host slot.
func (c *Capture) ForwardTo(fn api.Function) {
	c.store = fn
}

// Forwarding reports whether captures go to the guest.
func (c *Capture) Forwarding() bool {
	return c.store != nil
}

// OnFailure records err for the guest.
func (c *Capture) OnFailure(ctx context.Context, err error) {
	h := c.heap.Mint(value.ErrorOf(err))
	if c.store != nil {
		_, serr := c.store.Call(ctx, api.EncodeU32(uint32(h)))
		if serr == nil {
			return
		}
		Logger().Warn("guest exn_store failed, keeping failure in host slot", zap.Error(serr))
	}
	c.slot.Store(h)
}

// Handler is a host function body that may fail
type Handler func(ctx context.Context, mod api.Module, stack []uint64) error

// Guard wraps h as a wazero host function. When h returns an error or
// panics, the results on stack are zeroed and onFailure receives the
// failure; the guest sees a normal return.
func Guard(h Handler, onFailure func(ctx context.Context, err error)) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		if err := run(h, ctx, mod, stack); err != nil {
			clear(stack)
			onFailure(ctx, err)
		}
	}
}

func run(h Handler, ctx context.Context, mod api.Module, stack []uint64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
			} else {
				err = fmt.Errorf("host panic: %v", r)
			}
		}
	}()
	return h(ctx, mod, stack)
}
