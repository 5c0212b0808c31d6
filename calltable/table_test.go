package calltable

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-bridge/codec"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/heap"
	"github.com/wippyai/wasm-bridge/memview"
	"github.com/wippyai/wasm-bridge/value"
)

type fakeBoundary struct {
	hp    *heap.Heap
	buf   *memview.SliceBuffer
	views *memview.Cache
	codec *codec.Codec
	top   uint32
}

type ctxKey struct{}

func newBoundary() *fakeBoundary {
	buf := &memview.SliceBuffer{Data: make([]byte, 1024)}
	views := memview.New(buf)
	return &fakeBoundary{hp: heap.New(), buf: buf, views: views, codec: codec.New(views), top: 512}
}

func (b *fakeBoundary) Heap() *heap.Heap      { return b.hp }
func (b *fakeBoundary) Codec() *codec.Codec   { return b.codec }
func (b *fakeBoundary) Views() *memview.Cache { return b.views }

func (b *fakeBoundary) EncodeString(ctx context.Context, s string) (uint32, uint32, error) {
	ptr, err := b.codec.Encode(ctx, s, func(_ context.Context, n uint32) (uint32, error) {
		p := b.top
		b.top += n
		return p, nil
	}, nil)
	return ptr, b.codec.WrittenLen(), err
}

func (b *fakeBoundary) put(ptr uint32, s string) {
	copy(b.buf.Data[ptr:], s)
}

func TestRegister_Signatures(t *testing.T) {
	i32, i64, f32, f64 := api.ValueTypeI32, api.ValueTypeI64, api.ValueTypeF32, api.ValueTypeF64

	tests := []struct {
		name    string
		fn      any
		params  []api.ValueType
		results []api.ValueType
	}{
		{"empty", func() {}, nil, nil},
		{"context and boundary are free", func(context.Context, Boundary) {}, nil, nil},
		{"handle in handle out", func(value.Value) value.Value { return value.Null() }, []api.ValueType{i32}, []api.ValueType{i32}},
		{"string is ptr len", func(Str, string) {}, []api.ValueType{i32, i32, i32, i32}, nil},
		{"bytes", func(Bytes, []byte) {}, []api.ValueType{i32, i32, i32, i32}, nil},
		{"numbers", func(int32, uint32, int64, uint64, float32, float64, bool) {}, []api.ValueType{i32, i32, i64, i64, f32, f64, i32}, nil},
		{"retptr and owned", func(RetPtr, Owned) {}, []api.ValueType{i32, i32}, nil},
		{"result with error", func() (float64, error) { return 0, nil }, nil, []api.ValueType{f64}},
		{"error only", func() error { return nil }, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := New()
			require.NoError(t, tbl.Register("f", tt.fn))
			e, ok := tbl.Lookup("f")
			require.True(t, ok)
			assert.Equal(t, tt.params, e.Params)
			assert.Equal(t, tt.results, e.Results)
		})
	}
}

func TestRegister_Rejects(t *testing.T) {
	tests := []struct {
		name string
		fn   any
	}{
		{"not a function", 42},
		{"nil", nil},
		{"variadic", func(...int32) {}},
		{"unsupported param", func(map[string]int) {}},
		{"context not first", func(int32, context.Context) {}},
		{"two results", func() (int32, int32) { return 0, 0 }},
		{"string result", func() string { return "" }},
		{"owned result", func() Owned { return Owned{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New().Register("f", tt.fn)
			assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseLinking, Kind: errors.KindRegistration})
		})
	}

	err := New().Register("", func() {})
	assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseLinking, Kind: errors.KindInvalidInput})
}

func TestInvoke_LiftsAndLowers(t *testing.T) {
	b := newBoundary()
	tbl := New()

	var gotCtx context.Context
	var gotMsg string
	var gotFlag bool
	var gotScale float32
	var gotBound Boundary
	require.NoError(t, tbl.Register("concat", func(ctx context.Context, bd Boundary, target value.Value, msg Str, flag bool, scale float32) (value.Value, error) {
		gotCtx, gotBound = ctx, bd
		gotMsg, gotFlag, gotScale = string(msg), flag, scale
		s, _ := target.AsString()
		return value.String(s + string(msg)), nil
	}))

	target := b.hp.Mint(value.String("hello "))
	b.put(100, "wörld")

	e, _ := tbl.Lookup("concat")
	stack := []uint64{uint64(target), 100, 6, 1, api.EncodeF32(0.5)}
	ctx := context.WithValue(context.Background(), ctxKey{}, "marker")
	require.NoError(t, e.Invoke(ctx, b, stack))

	assert.Equal(t, ctx, gotCtx)
	assert.Same(t, b, gotBound)
	assert.Equal(t, "wörld", gotMsg)
	assert.True(t, gotFlag)
	assert.Equal(t, float32(0.5), gotScale)

	result := heap.Handle(stack[0])
	s, ok := b.hp.Take(result).AsString()
	require.True(t, ok)
	assert.Equal(t, "hello wörld", s)
	assert.True(t, b.hp.Live(target), "borrowed handles stay live")
}

func TestInvoke_OwnedReleases(t *testing.T) {
	b := newBoundary()
	tbl := New()
	var got value.Value
	tbl.MustRegister("drop", func(o Owned) { got = o.Value })

	h := b.hp.Mint(value.Number(3))
	e, _ := tbl.Lookup("drop")
	require.NoError(t, e.Invoke(context.Background(), b, []uint64{uint64(h)}))

	n, _ := got.AsNumber()
	assert.Equal(t, 3.0, n)
	assert.False(t, b.hp.Live(h))
}

func TestInvoke_OptionalResult(t *testing.T) {
	b := newBoundary()
	tbl := New()
	tbl.MustRegister("find", func(found bool) value.Value {
		if found {
			return value.String("x")
		}
		return value.Undefined()
	}, Optional())
	tbl.MustRegister("find_required", func() value.Value { return value.Null() })

	e, _ := tbl.Lookup("find")
	assert.True(t, e.Optional)

	stack := []uint64{0}
	require.NoError(t, e.Invoke(context.Background(), b, stack))
	assert.Zero(t, stack[0])

	stack = []uint64{1}
	require.NoError(t, e.Invoke(context.Background(), b, stack))
	assert.NotZero(t, stack[0])

	req, _ := tbl.Lookup("find_required")
	stack = []uint64{0}
	require.NoError(t, req.Invoke(context.Background(), b, stack))
	assert.True(t, b.hp.Peek(heap.Handle(stack[0])).IsNull())
	assert.GreaterOrEqual(t, stack[0], uint64(heap.Reserved))
}

func TestInvoke_NumericResults(t *testing.T) {
	b := newBoundary()
	tbl := New()
	tbl.MustRegister("neg", func(v int32) int32 { return -v })
	tbl.MustRegister("half", func(v float64) float64 { return v / 2 })
	tbl.MustRegister("not", func(v bool) bool { return !v })
	tbl.MustRegister("wide", func(v int64) int64 { return v * 2 })

	run := func(name string, in uint64) uint64 {
		e, ok := tbl.Lookup(name)
		require.True(t, ok)
		stack := []uint64{in}
		require.NoError(t, e.Invoke(context.Background(), b, stack))
		return stack[0]
	}

	assert.Equal(t, int32(-5), api.DecodeI32(run("neg", api.EncodeI32(5))))
	assert.Equal(t, 1.25, api.DecodeF64(run("half", api.EncodeF64(2.5))))
	assert.Equal(t, uint64(0), run("not", 1))
	assert.Equal(t, uint64(1), run("not", 0))
	assert.Equal(t, int64(-8), int64(run("wide", api.EncodeI64(-4))))
}

func TestInvoke_Errors(t *testing.T) {
	b := newBoundary()
	tbl := New()
	boom := stderrors.New("boom")
	tbl.MustRegister("fail", func() (value.Value, error) { return value.Undefined(), boom }, Guarded())
	tbl.MustRegister("text", func(Str) {})

	e, _ := tbl.Lookup("fail")
	assert.True(t, e.Guarded)
	stack := []uint64{77}
	assert.ErrorIs(t, e.Invoke(context.Background(), b, stack), boom)
	assert.Equal(t, uint64(77), stack[0], "results untouched on failure")

	b.buf.Data[10] = 0xff
	txt, _ := tbl.Lookup("text")
	err := txt.Invoke(context.Background(), b, []uint64{10, 1})
	assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseDecode, Kind: errors.KindInvalidUTF8})
}

func TestWriteHelpers(t *testing.T) {
	b := newBoundary()
	require.NoError(t, WriteString(context.Background(), b, 64, "héllo"))

	ptr, err := b.views.Int32At(64)
	require.NoError(t, err)
	n, err := b.views.Int32At(68)
	require.NoError(t, err)
	s, err := b.codec.Decode(uint32(ptr), uint32(n))
	require.NoError(t, err)
	assert.Equal(t, "héllo", s)

	require.NoError(t, WriteOptionalNumber(b, 128, 2.5, true))
	flag, _ := b.views.Int32At(128)
	f, _ := b.views.Float64At(136)
	assert.Equal(t, int32(1), flag)
	assert.Equal(t, 2.5, f)

	require.NoError(t, WriteOptionalNumber(b, 128, 9, false))
	flag, _ = b.views.Int32At(128)
	f, _ = b.views.Float64At(136)
	assert.Zero(t, flag)
	assert.Zero(t, f)
}

func TestLookup_HashedNames(t *testing.T) {
	tbl := New()
	tbl.MustRegister("log", func(Str) {})
	tbl.MustRegister("__wbg_log_0000000000000000", func() {})

	e, ok := tbl.Lookup("__wbg_log_0123456789abcdef")
	require.True(t, ok)
	assert.Equal(t, "log", e.Name)

	e, ok = tbl.Lookup("__wbg_log_0000000000000000")
	require.True(t, ok)
	assert.Equal(t, "__wbg_log_0000000000000000", e.Name, "exact names win")

	_, ok = tbl.Lookup("__wbg_warn_0123456789abcdef")
	assert.False(t, ok)
	_, ok = tbl.Lookup("__wbg_log_short")
	assert.False(t, ok)

	assert.Equal(t, []string{"__wbg_log_0000000000000000", "log"}, tbl.Names())
	assert.Equal(t, 2, tbl.Len())
}

func TestRegisterRaw(t *testing.T) {
	tbl := New()
	require.NoError(t, tbl.RegisterRaw("raw", []api.ValueType{api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32},
		func(_ context.Context, _ Boundary, stack []uint64) error {
			stack[0]++
			return nil
		}, Guarded()))

	e, _ := tbl.Lookup("raw")
	assert.True(t, e.Guarded)
	stack := []uint64{41}
	require.NoError(t, e.Invoke(context.Background(), nil, stack))
	assert.Equal(t, uint64(42), stack[0])

	assert.Error(t, tbl.RegisterRaw("nil", nil, nil, nil))
}

const manifestYAML = `
closures:
  - import: __wbindgen_closure_wrapper101
    invoke: __wbg_adapter_18
    dtor: 45
    args: 1
  - import: __wbindgen_closure_wrapper7
    invoke: __wbg_adapter_21
    dtor: 45
    args: 0
`

func TestManifest(t *testing.T) {
	m, err := ParseManifest([]byte(manifestYAML))
	require.NoError(t, err)
	require.Len(t, m.Closures, 2)
	assert.Equal(t, ClosureSpec{Import: "__wbindgen_closure_wrapper101", Invoke: "__wbg_adapter_18", Dtor: 45, Args: 1}, m.Closures[0])

	tbl := New()
	tbl.AddClosures(m)
	spec, ok := tbl.Closure("__wbindgen_closure_wrapper7")
	require.True(t, ok)
	assert.Equal(t, "__wbg_adapter_21", spec.Invoke)
	assert.Equal(t, "__wbindgen_closure_wrapper101", tbl.Closures()[0].Import)

	dir := t.TempDir()
	path := filepath.Join(dir, "closures.yaml")
	require.NoError(t, os.WriteFile(path, []byte(manifestYAML), 0o600))
	loaded, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, m, loaded)

	_, err = LoadManifest(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestManifest_Invalid(t *testing.T) {
	for _, doc := range []string{
		"closures: [",
		"closures:\n  - import: x\n",
		"closures:\n  - import: x\n    invoke: y\n    args: -1\n",
	} {
		_, err := ParseManifest([]byte(doc))
		assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseLinking, Kind: errors.KindInvalidData}, doc)
	}
}

func TestResolve(t *testing.T) {
	tbl := New()
	tbl.MustRegister("log", func(Str) {})
	tbl.AddClosures(&Manifest{Closures: []ClosureSpec{{Import: "__wbindgen_closure_wrapper3", Invoke: "shim"}}})

	core := func(name string) bool { return name == "__wbindgen_object_drop_ref" }
	res := tbl.Resolve([]Import{
		{Module: "wbg", Name: "__wbindgen_object_drop_ref"},
		{Module: "wbg", Name: "__wbg_log_0123456789abcdef"},
		{Module: "wbg", Name: "__wbindgen_closure_wrapper3"},
		{Module: "wbg", Name: "__wbg_alert_0123456789abcdef"},
		{Module: "env", Name: "abort"},
	}, core)

	assert.Len(t, res.Core, 1)
	assert.Len(t, res.Forwarded, 1)
	assert.Len(t, res.Closures, 1)
	require.Len(t, res.Missing, 2)

	err := res.MissingError()
	var missing *errors.MissingImportsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "__wbg_alert_0123456789abcdef", missing.Imports[0].Function)
	assert.Contains(t, err.Error(), "- alert")
	assert.Equal(t, "env", missing.Imports[1].Namespace)

	assert.NoError(t, Resolution{}.MissingError())
	assert.True(t, IsClosureWrapper("__wbindgen_closure_wrapper99"))
}
