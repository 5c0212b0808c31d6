package closure

import (
	"context"

	"github.com/davidmdm/x/xerr"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/heap"
	"github.com/wippyai/wasm-bridge/value"
)

// State is the lifecycle position of a Closure
type State uint8

const (
	Live State = iota
	Invoking
	Destroyed
)

func (s State) String() string {
	switch s {
	case Live:
		return "live"
	case Invoking:
		return "invoking"
	case Destroyed:
		return "destroyed"
	}
	return "unknown"
}

// Invoker runs the guest shim for one call. args are already lowered to
// raw boundary values.
type Invoker interface {
	Invoke(ctx context.Context, a, b uint32, args []uint64) error
}

// Destructor frees the guest closure environment identified by (a, b)
// using the guest destructor at index.
type Destructor interface {
	Destroy(ctx context.Context, index, a, b uint32) error
}

// Closure is a host callable backed by a guest closure
type Closure struct {
	heap     *heap.Heap
	invoker  Invoker
	dtor     Destructor
	a        uint32
	b        uint32
	dtorIdx  uint32
	refcount uint32
	state    State
}

// Wrap creates a Live closure with a reference count of one, held by the
// guest. Arguments that are not numbers are passed to the shim as handles
// minted in hp.
func Wrap(hp *heap.Heap, a, b, dtorIdx uint32, invoker Invoker, dtor Destructor) *Closure {
	return &Closure{
		heap:     hp,
		invoker:  invoker,
		dtor:     dtor,
		a:        a,
		b:        b,
		dtorIdx:  dtorIdx,
		refcount: 1,
		state:    Live,
	}
}

// State returns the current lifecycle state
func (c *Closure) State() State {
	return c.state
}

// Refcount returns the number of outstanding references
func (c *Closure) Refcount() uint32 {
	return c.refcount
}

// Tokens returns the guest tokens. a reads as 0 while an invocation is in
// flight and after destruction.
func (c *Closure) Tokens() (a, b uint32) {
	return c.a, c.b
}

// Name implements value.Callable. Guest closures are anonymous.
func (c *Closure) Name() string {
	return ""
}

// Call invokes the guest closure. It implements value.Callable and always
// returns undefined on success.
func (c *Closure) Call(ctx context.Context, args ...value.Value) (value.Value, error) {
	switch c.state {
	case Destroyed:
		return value.Undefined(), errors.ClosureDestroyed(c.a, c.b)
	case Invoking:
		return value.Undefined(), errors.InvalidState(errors.PhaseClosure, "closure invoked recursively")
	}

	raw := make([]uint64, len(args))
	for i, arg := range args {
		if n, ok := arg.AsNumber(); ok {
			raw[i] = api.EncodeF64(n)
		} else {
			raw[i] = uint64(c.heap.Mint(arg))
		}
	}

	c.refcount++
	a := c.a
	c.a = 0
	c.state = Invoking

	err := c.invoke(ctx, a, raw)

	c.refcount--
	if c.refcount == 0 {
		c.state = Destroyed
		Logger().Debug("destroying closure after final invocation",
			zap.Uint32("a", a), zap.Uint32("b", c.b), zap.Uint32("dtor", c.dtorIdx))
		if derr := c.dtor.Destroy(ctx, c.dtorIdx, a, c.b); derr != nil {
			err = xerr.MultiErrFrom("", err, errors.Wrap(errors.PhaseClosure, errors.KindHostFailure, derr, "run destructor"))
		}
	} else {
		c.a = a
		c.state = Live
	}

	return value.Undefined(), err
}

// invoke runs the shim, converting a panic escaping a nested host call into
// an error so the reference count is always rebalanced.
func (c *Closure) invoke(ctx context.Context, a uint32, raw []uint64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
				return
			}
			panic(r)
		}
	}()
	return c.invoker.Invoke(ctx, a, c.b, raw)
}

// Drop releases the guest's reference. It reports true when the closure
// became empty, in which case the guest frees its environment itself. While
// an invocation is in flight Drop only decrements, and the in-flight call
// runs the destructor when it finishes.
func (c *Closure) Drop() bool {
	if c.state == Destroyed {
		return false
	}
	if c.refcount == 1 {
		c.refcount = 0
		c.a = 0
		c.state = Destroyed
		Logger().Debug("closure dropped while idle", zap.Uint32("b", c.b))
		return true
	}
	c.refcount--
	return false
}
