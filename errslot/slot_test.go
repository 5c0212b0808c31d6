package errslot

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/wasm-bridge/heap"
	"github.com/wippyai/wasm-bridge/internal/wasmtest"
)

func TestSlot_TakeClears(t *testing.T) {
	var s Slot
	_, ok := s.Take()
	assert.False(t, ok)

	s.Store(40)
	assert.True(t, s.Pending())

	h, ok := s.Take()
	assert.True(t, ok)
	assert.Equal(t, heap.Handle(40), h)
	assert.False(t, s.Pending())

	_, ok = s.Take()
	assert.False(t, ok)
}

func TestSlot_OverwriteWarns(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	prev := Logger()
	SetLogger(zap.New(core))
	defer SetLogger(prev)

	var s Slot
	s.Store(40)
	s.Store(41)

	h, _ := s.Take()
	assert.Equal(t, heap.Handle(41), h, "second failure wins")
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, uint32(40), logs.All()[0].ContextMap()["lost"])
}

func TestGuard_SuccessLeavesResults(t *testing.T) {
	failures := 0
	fn := Guard(func(_ context.Context, _ api.Module, stack []uint64) error {
		stack[0] = 7
		return nil
	}, func(context.Context, error) { failures++ })

	stack := []uint64{1}
	fn(context.Background(), nil, stack)
	assert.Equal(t, uint64(7), stack[0])
	assert.Zero(t, failures)
}

func TestGuard_FailureZeroesAndCaptures(t *testing.T) {
	hp := heap.New()
	var slot Slot
	capture := NewCapture(hp, &slot)
	boom := errors.New("boom")

	tests := []struct {
		name string
		body Handler
		want string
	}{
		{"returned error", func(_ context.Context, _ api.Module, stack []uint64) error {
			stack[0] = 99
			return boom
		}, "boom"},
		{"panic with error", func(context.Context, api.Module, []uint64) error {
			panic(boom)
		}, "boom"},
		{"panic with value", func(context.Context, api.Module, []uint64) error {
			panic("oops")
		}, "host panic: oops"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stack := []uint64{5, 6}
			Guard(tt.body, capture.OnFailure)(context.Background(), nil, stack)
			assert.Equal(t, []uint64{0, 0}, stack)

			h, ok := slot.Take()
			require.True(t, ok)
			err, ok := hp.Take(h).AsError()
			require.True(t, ok)
			assert.EqualError(t, err, tt.want)
		})
	}
}

func TestCapture_ForwardsToGuest(t *testing.T) {
	// __wbindgen_exn_store(h): memory[0] = h
	m := wasmtest.New()
	m.Memory(1)
	m.Func(ExnStoreExport, wasmtest.Params(wasmtest.I32), nil, nil, wasmtest.Code().
		I32Const(0).LocalGet(0).I32Store(0))

	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)
	mod, err := rt.InstantiateWithConfig(ctx, m.Bytes(), wazero.NewModuleConfig())
	require.NoError(t, err)

	hp := heap.New()
	var slot Slot
	capture := NewCapture(hp, &slot)
	capture.ForwardTo(mod.ExportedFunction(ExnStoreExport))
	assert.True(t, capture.Forwarding())

	capture.OnFailure(ctx, errors.New("denied"))
	assert.False(t, slot.Pending())

	stored, ok := mod.Memory().ReadUint32Le(0)
	require.True(t, ok)
	err, isErr := hp.Peek(heap.Handle(stored)).AsError()
	require.True(t, isErr)
	assert.EqualError(t, err, "denied")

	capture.ForwardTo(nil)
	capture.OnFailure(ctx, errors.New("local"))
	assert.True(t, slot.Pending())
}
