package closure

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/heap"
	"github.com/wippyai/wasm-bridge/internal/wasmtest"
	"github.com/wippyai/wasm-bridge/value"
)

type dtorCall struct {
	index, a, b uint32
}

type recorder struct {
	dtors []dtorCall
	seen  [][]uint64
	as    []uint32
}

func (r *recorder) destructor() Destructor {
	return DestructorFunc(func(_ context.Context, index, a, b uint32) error {
		r.dtors = append(r.dtors, dtorCall{index, a, b})
		return nil
	})
}

func TestClosure_CallForwardsTokens(t *testing.T) {
	r := &recorder{}
	var c *Closure
	invoker := InvokerFunc(func(_ context.Context, a, b uint32, args []uint64) error {
		r.as = append(r.as, a)
		r.seen = append(r.seen, args)
		ia, _ := c.Tokens()
		assert.Zero(t, ia, "a is zeroed during invocation")
		assert.Equal(t, Invoking, c.State())
		assert.Equal(t, uint32(2), c.Refcount())
		return nil
	})

	hp := heap.New()
	c = Wrap(hp, 100, 200, 7, invoker, r.destructor())

	_, err := c.Call(context.Background(), value.Number(1.5), value.String("x"))
	require.NoError(t, err)

	assert.Equal(t, []uint32{100}, r.as)
	require.Len(t, r.seen[0], 2)
	assert.Equal(t, 1.5, api.DecodeF64(r.seen[0][0]))
	h := heap.Handle(r.seen[0][1])
	s, _ := hp.Peek(h).AsString()
	assert.Equal(t, "x", s)

	a, b := c.Tokens()
	assert.Equal(t, uint32(100), a)
	assert.Equal(t, uint32(200), b)
	assert.Equal(t, Live, c.State())
	assert.Equal(t, uint32(1), c.Refcount())
	assert.Empty(t, r.dtors)
}

func TestClosure_DropWhileIdle(t *testing.T) {
	r := &recorder{}
	c := Wrap(heap.New(), 1, 2, 3, InvokerFunc(func(context.Context, uint32, uint32, []uint64) error {
		return nil
	}), r.destructor())

	assert.True(t, c.Drop(), "guest frees the environment itself")
	assert.Equal(t, Destroyed, c.State())
	assert.Empty(t, r.dtors, "host must not run the destructor")

	_, err := c.Call(context.Background())
	assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseClosure, Kind: errors.KindClosureDestroyed})
	assert.False(t, c.Drop())
}

func TestClosure_DropDuringNthInvocation(t *testing.T) {
	r := &recorder{}
	var c *Closure
	calls := 0
	invoker := InvokerFunc(func(_ context.Context, _, _ uint32, _ []uint64) error {
		calls++
		if calls == 3 {
			assert.False(t, c.Drop(), "drop during a call must not report empty")
			assert.Empty(t, r.dtors, "destructor must wait for the frame")
		}
		return nil
	})
	c = Wrap(heap.New(), 11, 22, 5, invoker, r.destructor())

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := c.Call(ctx)
		require.NoError(t, err)
	}

	require.Len(t, r.dtors, 1)
	assert.Equal(t, dtorCall{index: 5, a: 11, b: 22}, r.dtors[0])
	assert.Equal(t, Destroyed, c.State())

	_, err := c.Call(ctx)
	assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseClosure, Kind: errors.KindClosureDestroyed})
	assert.Equal(t, 3, calls)
	assert.Len(t, r.dtors, 1)
}

func TestClosure_FailureStillRebalances(t *testing.T) {
	r := &recorder{}
	boom := stderrors.New("boom")
	var c *Closure
	c = Wrap(heap.New(), 1, 2, 0, InvokerFunc(func(context.Context, uint32, uint32, []uint64) error {
		c.Drop()
		return boom
	}), r.destructor())

	_, err := c.Call(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Len(t, r.dtors, 1)
	assert.Equal(t, Destroyed, c.State())
}

func TestClosure_PanicWithErrorIsRecovered(t *testing.T) {
	r := &recorder{}
	boom := stderrors.New("unguarded")
	c := Wrap(heap.New(), 1, 2, 0, InvokerFunc(func(context.Context, uint32, uint32, []uint64) error {
		panic(boom)
	}), r.destructor())

	_, err := c.Call(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, Live, c.State())
	assert.Equal(t, uint32(1), c.Refcount())
}

func TestClosure_RecursiveCallRejected(t *testing.T) {
	var c *Closure
	var inner error
	c = Wrap(heap.New(), 1, 2, 0, InvokerFunc(func(ctx context.Context, _, _ uint32, _ []uint64) error {
		_, inner = c.Call(ctx)
		return nil
	}), (&recorder{}).destructor())

	_, err := c.Call(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, inner, &errors.Error{Phase: errors.PhaseClosure, Kind: errors.KindInvalidState})
}

func TestClosure_DestructorErrorSurfaces(t *testing.T) {
	var c *Closure
	c = Wrap(heap.New(), 1, 2, 0, InvokerFunc(func(context.Context, uint32, uint32, []uint64) error {
		c.Drop()
		return nil
	}), DestructorFunc(func(context.Context, uint32, uint32, uint32) error {
		return stderrors.New("dtor failed")
	}))

	_, err := c.Call(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dtor failed")
}

func TestClosure_IsCallableValue(t *testing.T) {
	c := Wrap(heap.New(), 1, 2, 0, nil, nil)
	v := value.Func(c)
	got, ok := v.AsCallable()
	require.True(t, ok)
	assert.Same(t, c, got)
	assert.Equal(t, "Function", value.Debug(v))
}

// guest exports:
//
//	shim(a, b, x f64): memory[a] = x
//	__wbindgen_dtor_dispatch(index, a, b): memory[0] = index, memory[4] = a
//	f64_tokens(x f64, a, b): no-op
func guest(t *testing.T) api.Module {
	t.Helper()
	m := wasmtest.New()
	m.Memory(1)
	m.Func("shim", wasmtest.Params(wasmtest.I32, wasmtest.I32, wasmtest.F64), nil, nil, wasmtest.Code().
		LocalGet(0).LocalGet(2).F64Store(0))
	m.Func(DtorDispatchExport, wasmtest.Params(wasmtest.I32, wasmtest.I32, wasmtest.I32), nil, nil, wasmtest.Code().
		I32Const(0).LocalGet(0).I32Store(0).
		I32Const(4).LocalGet(1).I32Store(0))
	m.Func("f64_tokens", wasmtest.Params(wasmtest.F64, wasmtest.I32, wasmtest.I32), nil, nil, wasmtest.Code())

	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	t.Cleanup(func() { rt.Close(ctx) })
	mod, err := rt.InstantiateWithConfig(ctx, m.Bytes(), wazero.NewModuleConfig())
	require.NoError(t, err)
	return mod
}

func TestExportAdapters(t *testing.T) {
	mod := guest(t)
	ctx := context.Background()

	inv, err := NewExportInvoker(mod.ExportedFunction("shim"), 1)
	require.NoError(t, err)
	disp, err := NewExportDispatcher(mod.ExportedFunction(DtorDispatchExport))
	require.NoError(t, err)

	c := Wrap(heap.New(), 64, 9, 3, inv, disp)
	_, err = c.Call(ctx, value.Number(6.25))
	require.NoError(t, err)

	got, ok := mod.Memory().ReadFloat64Le(64)
	require.True(t, ok)
	assert.Equal(t, 6.25, got)

	// drop while idle: the guest would free the environment itself
	assert.True(t, c.Drop())
	idx, _ := mod.Memory().ReadUint32Le(0)
	assert.Zero(t, idx)

	// drop during a call: the host runs the destructor
	var c2 *Closure
	c2 = Wrap(heap.New(), 128, 9, 4, InvokerFunc(func(ctx context.Context, a, b uint32, args []uint64) error {
		c2.Drop()
		return inv.Invoke(ctx, 128, b, args)
	}), disp)
	_, err = c2.Call(ctx, value.Number(1))
	require.NoError(t, err)

	idx, _ = mod.Memory().ReadUint32Le(0)
	a, _ := mod.Memory().ReadUint32Le(4)
	assert.Equal(t, uint32(4), idx)
	assert.Equal(t, uint32(128), a)
}

func TestExportAdapters_SignatureChecks(t *testing.T) {
	mod := guest(t)

	_, err := NewExportInvoker(mod.ExportedFunction("shim"), 2)
	assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseLinking, Kind: errors.KindInvalidInput})

	_, err = NewExportInvoker(nil, 0)
	assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseLinking, Kind: errors.KindNotFound})

	_, err = NewExportDispatcher(mod.ExportedFunction("shim"))
	assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseLinking, Kind: errors.KindInvalidInput})

	_, err = NewExportDispatcher(nil)
	assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseLinking, Kind: errors.KindMissingExport})

	// right param count, wrong types
	_, err = NewExportInvoker(mod.ExportedFunction("f64_tokens"), 1)
	assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseLinking, Kind: errors.KindInvalidInput})
	assert.ErrorContains(t, err, "(f64, i32)")

	_, err = NewExportDispatcher(mod.ExportedFunction("f64_tokens"))
	assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseLinking, Kind: errors.KindInvalidInput})
	assert.ErrorContains(t, err, "(f64, i32, i32)")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "live", Live.String())
	assert.Equal(t, "invoking", Invoking.String())
	assert.Equal(t, "destroyed", Destroyed.String())
}
