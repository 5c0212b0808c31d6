package memview

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/internal/wasmtest"
)

func TestCache_LazyViews(t *testing.T) {
	buf := &SliceBuffer{Data: make([]byte, 64)}
	c := New(buf)

	assert.Nil(t, c.u8)
	assert.Nil(t, c.f64)

	assert.Len(t, c.Uint8(), 64)
	assert.Nil(t, c.f64, "float64 view should not be built by a byte request")
	assert.Len(t, c.Int32(), 16)
	assert.Len(t, c.Float32(), 16)
	assert.Len(t, c.Float64(), 8)
	assert.Equal(t, uint64(0), c.Generation())
}

func TestCache_ViewsShareBacking(t *testing.T) {
	buf := &SliceBuffer{Data: make([]byte, 32)}
	c := New(buf)

	c.Int32()[1] = 0x01020304
	assert.Equal(t, []byte{0x04, 0x03, 0x02, 0x01}, buf.Data[4:8])

	c.Float64()[2] = 1.5
	f, err := c.Float64At(16)
	require.NoError(t, err)
	assert.Equal(t, 1.5, f)
}

func TestCache_RebuildsAfterGrowth(t *testing.T) {
	buf := &SliceBuffer{Data: make([]byte, 16)}
	c := New(buf)

	old := c.Uint8()
	oldF64 := c.Float64()
	buf.Grow(16)

	fresh := c.Float64()
	require.Len(t, fresh, 4)
	assert.Equal(t, uint64(1), c.Generation())

	fresh[3] = math.Pi
	got, err := c.Float64At(24)
	require.NoError(t, err)
	assert.Equal(t, math.Pi, got)

	assert.Len(t, old, 16, "old views keep the detached backing")
	assert.Len(t, oldF64, 2)
	assert.Len(t, c.Uint8(), 32)
}

func TestCache_Ranges(t *testing.T) {
	buf := &SliceBuffer{Data: make([]byte, 64)}
	copy(buf.Data[10:], "hello")
	c := New(buf)

	b, err := c.Bytes(10, 5)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))
	assert.Equal(t, 5, cap(b), "range must not expose trailing memory")

	require.NoError(t, c.PutInt32(8, -7))
	ints, err := c.Int32s(8, 2)
	require.NoError(t, err)
	assert.Equal(t, int32(-7), ints[0])

	require.NoError(t, c.PutUint32(12, math.MaxUint32))
	v, err := c.Int32At(12)
	require.NoError(t, err)
	assert.Equal(t, int32(-1), v)

	floats, err := c.Float32s(0, 16)
	require.NoError(t, err)
	assert.Len(t, floats, 16)

	empty, err := c.Bytes(64, 0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestCache_RangeErrors(t *testing.T) {
	c := New(&SliceBuffer{Data: make([]byte, 32)})

	tests := []struct {
		name string
		kind errors.Kind
		fn   func() error
	}{
		{"bytes past end", errors.KindOutOfBounds, func() error { _, err := c.Bytes(30, 4); return err }},
		{"bytes overflow", errors.KindOutOfBounds, func() error { _, err := c.Bytes(math.MaxUint32, 2); return err }},
		{"int32 past end", errors.KindOutOfBounds, func() error { _, err := c.Int32s(28, 2); return err }},
		{"float64 past end", errors.KindOutOfBounds, func() error { _, err := c.Float64s(24, 2); return err }},
		{"int32 misaligned", errors.KindInvalidInput, func() error { _, err := c.Int32s(2, 1); return err }},
		{"float64 misaligned", errors.KindInvalidInput, func() error { return c.PutFloat64(4, 1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn()
			require.Error(t, err)
			assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseMemory, Kind: tt.kind})
		})
	}
}

func TestCache_WazeroGrowth(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	m := wasmtest.New()
	m.Memory(1)
	mod, err := rt.InstantiateWithConfig(ctx, m.Bytes(), wazero.NewModuleConfig())
	require.NoError(t, err)

	mem := mod.Memory()
	c := New(WazeroBuffer{Mem: mem})
	require.Len(t, c.Uint8(), 65536)
	require.Len(t, c.Float64(), 8192)

	_, ok := mem.Grow(1)
	require.True(t, ok)

	// Writes through the refreshed view land in the grown memory.
	require.NoError(t, c.PutFloat64(65536+8, 42.5))
	raw, ok := mem.ReadFloat64Le(65536 + 8)
	require.True(t, ok)
	assert.Equal(t, 42.5, raw)
	assert.Len(t, c.Uint8(), 2*65536)
	assert.Equal(t, uint64(1), c.Generation())
}

func TestWazeroBuffer_Nil(t *testing.T) {
	assert.Nil(t, WazeroBuffer{}.Backing())
}
