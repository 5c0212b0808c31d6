package bridge

import (
	"context"

	"github.com/google/uuid"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/calltable"
	"github.com/wippyai/wasm-bridge/closure"
	"github.com/wippyai/wasm-bridge/codec"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/errslot"
	"github.com/wippyai/wasm-bridge/heap"
	"github.com/wippyai/wasm-bridge/memview"
	"github.com/wippyai/wasm-bridge/value"
)

// Bridge is the boundary state of one guest instance
type Bridge struct {
	id      uuid.UUID
	log     *zap.Logger
	cfg     Config
	heap    *heap.Heap
	views   *memview.Cache
	codec   *codec.Codec
	slot    *errslot.Slot
	capture *errslot.Capture
	guest   api.Module
	alloc   *codec.ExportAllocator
	dtor    closure.Destructor
	unsub   func()
}

var _ calltable.Boundary = (*Bridge)(nil)

// New creates a bridge with no guest bound.
func New(cfg Config) *Bridge {
	cfg = cfg.withDefaults()
	id := uuid.New()
	b := &Bridge{
		id:   id,
		log:  Logger().With(zap.String("bridge", id.String())),
		cfg:  cfg,
		heap: heap.New(),
		slot: &errslot.Slot{},
	}
	b.views = memview.New(guestMemory{b})
	b.codec = codec.New(b.views)
	b.capture = errslot.NewCapture(b.heap, b.slot)
	b.dtor = closure.DestructorFunc(b.missingDispatch)

	if b.log.Core().Enabled(zap.DebugLevel) {
		b.unsub = b.heap.Subscribe(heap.ObserverFunc(func(e heap.Event) {
			b.log.Debug("heap event",
				zap.Stringer("type", e.Type),
				zap.Uint32("handle", uint32(e.Handle)),
				zap.Stringer("kind", e.Value.Kind()),
				zap.Int("live", b.heap.Len()))
		}))
	}
	return b
}

// guestMemory exposes the bound guest's linear memory to the view cache
type guestMemory struct {
	b *Bridge
}

func (g guestMemory) Backing() []byte {
	if g.b.guest == nil {
		return nil
	}
	return memview.WazeroBuffer{Mem: g.b.guest.Memory()}.Backing()
}

// ID returns the bridge's unique identifier
func (b *Bridge) ID() uuid.UUID {
	return b.id
}

// Heap returns the handle table
func (b *Bridge) Heap() *heap.Heap {
	return b.heap
}

// Codec returns the string codec
func (b *Bridge) Codec() *codec.Codec {
	return b.codec
}

// Views returns the memory view cache
func (b *Bridge) Views() *memview.Cache {
	return b.views
}

// Slot returns the error slot
func (b *Bridge) Slot() *errslot.Slot {
	return b.slot
}

// Table returns the forwarding table
func (b *Bridge) Table() *calltable.Table {
	return b.cfg.Table
}

// Guest returns the bound guest module, or nil before Bind.
func (b *Bridge) Guest() api.Module {
	return b.guest
}

// Bind attaches the guest instance: its memory, allocator, destructor
// dispatch and exn_store exports. Binding the same module again is a no-op.
func (b *Bridge) Bind(guest api.Module) error {
	if guest == nil {
		return errors.InvalidInput(errors.PhaseLinking, "guest module is nil")
	}
	if b.guest != nil {
		if b.guest == guest {
			return nil
		}
		return errors.InvalidState(errors.PhaseLinking, "bridge already bound to another guest")
	}

	if malloc := guest.ExportedFunction(b.cfg.MallocExport); malloc != nil {
		alloc, err := codec.NewExportAllocator(malloc, guest.ExportedFunction(b.cfg.ReallocExport))
		if err != nil {
			return err
		}
		b.alloc = alloc
	}

	if fn := guest.ExportedFunction(b.cfg.DtorDispatchExport); fn != nil {
		d, err := closure.NewExportDispatcher(fn)
		if err != nil {
			return err
		}
		b.dtor = d
	}

	if !b.cfg.DisableExnStore {
		if fn := guest.ExportedFunction(b.cfg.ExnStoreExport); fn != nil {
			b.capture.ForwardTo(fn)
		}
	}

	b.guest = guest
	b.log.Debug("guest bound",
		zap.String("module", guest.Name()),
		zap.Bool("allocator", b.alloc != nil),
		zap.Bool("realloc", b.alloc != nil && b.alloc.ReallocFunc() != nil),
		zap.Bool("exn_store", b.capture.Forwarding()))
	return nil
}

// attach binds the calling module on its first host call. Host functions
// can run before Bind when the guest calls them from its start section.
func (b *Bridge) attach(mod api.Module) {
	if b.guest != nil || mod == nil {
		return
	}
	if err := b.Bind(mod); err != nil {
		panic(err)
	}
}

func (b *Bridge) missingDispatch(context.Context, uint32, uint32, uint32) error {
	return errors.MissingExport(errors.PhaseClosure, b.cfg.DtorDispatchExport)
}

// EncodeString copies s into guest memory through the guest allocator.
func (b *Bridge) EncodeString(ctx context.Context, s string) (ptr, n uint32, err error) {
	if b.alloc == nil {
		return 0, 0, errors.MissingExport(errors.PhaseEncode, b.cfg.MallocExport)
	}
	ptr, err = b.codec.Encode(ctx, s, b.alloc.Malloc, b.alloc.ReallocFunc())
	if err != nil {
		return 0, 0, err
	}
	return ptr, b.codec.WrittenLen(), nil
}

// EncodeBytes copies data into guest memory through the guest allocator.
func (b *Bridge) EncodeBytes(ctx context.Context, data []byte) (ptr, n uint32, err error) {
	if b.alloc == nil {
		return 0, 0, errors.MissingExport(errors.PhaseEncode, b.cfg.MallocExport)
	}
	ptr, err = b.codec.EncodeBytes(ctx, data, b.alloc.Malloc)
	if err != nil {
		return 0, 0, err
	}
	return ptr, uint32(len(data)), nil
}

// Mint stores v for the guest and returns its handle.
func (b *Bridge) Mint(v value.Value) heap.Handle {
	return b.heap.Mint(v)
}

// Take returns the value behind h and releases the handle.
func (b *Bridge) Take(h heap.Handle) value.Value {
	return b.heap.Take(h)
}

// Call invokes a guest export with raw boundary values.
func (b *Bridge) Call(ctx context.Context, export string, params ...uint64) ([]uint64, error) {
	if b.guest == nil {
		return nil, errors.NotInitialized(errors.PhaseHost, "guest")
	}
	fn := b.guest.ExportedFunction(export)
	if fn == nil {
		return nil, errors.MissingExport(errors.PhaseHost, export)
	}
	return fn.Call(ctx, params...)
}

// TakeError collects a failure parked by a guarded host call, for hosts
// that call guest exports which do not collect it themselves.
func (b *Bridge) TakeError() (error, bool) {
	h, ok := b.slot.Take()
	if !ok {
		return nil, false
	}
	v := b.heap.Take(h)
	if err, ok := v.AsError(); ok {
		return err, true
	}
	return errors.Thrown(value.Debug(v)), true
}

// Close releases every live handle. The guest module is owned by the
// caller and is not closed.
func (b *Bridge) Close() {
	live := b.heap.Len()
	if b.unsub != nil {
		b.unsub()
		b.unsub = nil
	}
	b.heap.Clear()
	b.log.Debug("bridge closed", zap.Int("released", live))
}
