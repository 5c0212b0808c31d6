package bridge

import (
	"context"
	"sort"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-bridge/calltable"
	"github.com/wippyai/wasm-bridge/closure"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/heap"
	"github.com/wippyai/wasm-bridge/value"
)

// Core import names provided by every bridge
const (
	ObjectDropRef  = "__wbindgen_object_drop_ref"
	ObjectCloneRef = "__wbindgen_object_clone_ref"
	StringNew      = "__wbindgen_string_new"
	NumberNew      = "__wbindgen_number_new"
	CbDrop         = "__wbindgen_cb_drop"
	IsUndefined    = "__wbindgen_is_undefined"
	IsNull         = "__wbindgen_is_null"
	IsFunction     = "__wbindgen_is_function"
	IsString       = "__wbindgen_is_string"
	IsObject       = "__wbindgen_is_object"
	JsvalEq        = "__wbindgen_jsval_eq"
	NumberGet      = "__wbindgen_number_get"
	StringGet      = "__wbindgen_string_get"
	BooleanGet     = "__wbindgen_boolean_get"
	DebugString    = "__wbindgen_debug_string"
	Throw          = "__wbindgen_throw"
	Rethrow        = "__wbindgen_rethrow"
	ErrorNew       = "__wbindgen_error_new"
	TakeLastError  = "__wbindgen_take_last_error"
)

const (
	i32 = api.ValueTypeI32
	f64 = api.ValueTypeF64
)

type coreFunc struct {
	params  []api.ValueType
	results []api.ValueType
	fn      func(b *Bridge, ctx context.Context, stack []uint64)
}

var coreImports = map[string]coreFunc{
	ObjectDropRef:  {[]api.ValueType{i32}, nil, (*Bridge).objectDropRef},
	ObjectCloneRef: {[]api.ValueType{i32}, []api.ValueType{i32}, (*Bridge).objectCloneRef},
	StringNew:      {[]api.ValueType{i32, i32}, []api.ValueType{i32}, (*Bridge).stringNew},
	NumberNew:      {[]api.ValueType{f64}, []api.ValueType{i32}, (*Bridge).numberNew},
	CbDrop:         {[]api.ValueType{i32}, []api.ValueType{i32}, (*Bridge).cbDrop},
	IsUndefined:    {[]api.ValueType{i32}, []api.ValueType{i32}, predicate(value.Value.IsUndefined)},
	IsNull:         {[]api.ValueType{i32}, []api.ValueType{i32}, predicate(value.Value.IsNull)},
	IsFunction:     {[]api.ValueType{i32}, []api.ValueType{i32}, predicate(value.Value.IsFunction)},
	IsString:       {[]api.ValueType{i32}, []api.ValueType{i32}, predicate(isString)},
	IsObject:       {[]api.ValueType{i32}, []api.ValueType{i32}, predicate(value.Value.IsObject)},
	JsvalEq:        {[]api.ValueType{i32, i32}, []api.ValueType{i32}, (*Bridge).jsvalEq},
	NumberGet:      {[]api.ValueType{i32, i32}, nil, (*Bridge).numberGet},
	StringGet:      {[]api.ValueType{i32, i32}, nil, (*Bridge).stringGet},
	BooleanGet:     {[]api.ValueType{i32}, []api.ValueType{i32}, (*Bridge).booleanGet},
	DebugString:    {[]api.ValueType{i32, i32}, nil, (*Bridge).debugString},
	Throw:          {[]api.ValueType{i32, i32}, nil, (*Bridge).throw},
	Rethrow:        {[]api.ValueType{i32}, nil, (*Bridge).rethrow},
	ErrorNew:       {[]api.ValueType{i32, i32}, []api.ValueType{i32}, (*Bridge).errorNew},
	TakeLastError:  {nil, []api.ValueType{i32}, (*Bridge).takeLastError},
}

// closureWrapperParams is the signature of every closure wrapper import:
// (a, b, unused) -> handle.
var (
	closureWrapperParams  = []api.ValueType{i32, i32, i32}
	closureWrapperResults = []api.ValueType{i32}
)

// IsCore reports whether name is a core import the bridge provides itself.
func IsCore(name string) bool {
	_, ok := coreImports[name]
	return ok
}

// CoreImports lists the core import names in sorted order.
func CoreImports() []string {
	names := make([]string, 0, len(coreImports))
	for name := range coreImports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func handleAt(stack []uint64, i int) heap.Handle {
	return heap.Handle(api.DecodeU32(stack[i]))
}

func flag(ok bool) uint64 {
	if ok {
		return 1
	}
	return 0
}

func isString(v value.Value) bool {
	return v.Kind() == value.KindString
}

func predicate(test func(value.Value) bool) func(*Bridge, context.Context, []uint64) {
	return func(b *Bridge, _ context.Context, stack []uint64) {
		stack[0] = flag(test(b.heap.Peek(handleAt(stack, 0))))
	}
}

// decode reads a (ptr, len) string parameter pair. Decode failures abort
// the guest call.
func (b *Bridge) decode(stack []uint64, i int) string {
	s, err := b.codec.Decode(api.DecodeU32(stack[i]), api.DecodeU32(stack[i+1]))
	if err != nil {
		panic(err)
	}
	return s
}

func (b *Bridge) mintResult(stack []uint64, v value.Value) {
	stack[0] = api.EncodeU32(uint32(b.heap.Mint(v)))
}

func (b *Bridge) objectDropRef(_ context.Context, stack []uint64) {
	b.heap.Release(handleAt(stack, 0))
}

func (b *Bridge) objectCloneRef(_ context.Context, stack []uint64) {
	b.mintResult(stack, b.heap.Peek(handleAt(stack, 0)))
}

func (b *Bridge) stringNew(_ context.Context, stack []uint64) {
	b.mintResult(stack, value.String(b.decode(stack, 0)))
}

func (b *Bridge) numberNew(_ context.Context, stack []uint64) {
	b.mintResult(stack, value.Number(api.DecodeF64(stack[0])))
}

// cbDrop releases the guest's reference to a closure and reports whether
// the guest must free the environment itself.
func (b *Bridge) cbDrop(_ context.Context, stack []uint64) {
	v := b.heap.Take(handleAt(stack, 0))
	fn, _ := v.AsCallable()
	c, ok := fn.(*closure.Closure)
	if !ok {
		panic(errors.InvalidInput(errors.PhaseClosure, "cb_drop on a value that is not a closure: "+value.Debug(v)))
	}
	stack[0] = flag(c.Drop())
}

func (b *Bridge) jsvalEq(_ context.Context, stack []uint64) {
	stack[0] = flag(value.Equal(b.heap.Peek(handleAt(stack, 0)), b.heap.Peek(handleAt(stack, 1))))
}

func (b *Bridge) numberGet(_ context.Context, stack []uint64) {
	ret := calltable.RetPtr(api.DecodeU32(stack[0]))
	n, ok := b.heap.Peek(handleAt(stack, 1)).AsNumber()
	if err := calltable.WriteOptionalNumber(b, ret, n, ok); err != nil {
		panic(err)
	}
}

func (b *Bridge) stringGet(ctx context.Context, stack []uint64) {
	ret := calltable.RetPtr(api.DecodeU32(stack[0]))
	s, ok := b.heap.Peek(handleAt(stack, 1)).AsString()
	var err error
	if ok {
		err = calltable.WriteString(ctx, b, ret, s)
	} else {
		err = b.views.PutUint32(uint32(ret), 0)
		if err == nil {
			err = b.views.PutUint32(uint32(ret)+4, 0)
		}
	}
	if err != nil {
		panic(err)
	}
}

func (b *Bridge) booleanGet(_ context.Context, stack []uint64) {
	v, ok := b.heap.Peek(handleAt(stack, 0)).AsBool()
	if !ok {
		stack[0] = 2
		return
	}
	stack[0] = flag(v)
}

func (b *Bridge) debugString(ctx context.Context, stack []uint64) {
	ret := calltable.RetPtr(api.DecodeU32(stack[0]))
	if err := calltable.WriteString(ctx, b, ret, value.Debug(b.heap.Peek(handleAt(stack, 1)))); err != nil {
		panic(err)
	}
}

func (b *Bridge) throw(_ context.Context, stack []uint64) {
	panic(errors.Thrown(b.decode(stack, 0)))
}

func (b *Bridge) rethrow(_ context.Context, stack []uint64) {
	v := b.heap.Take(handleAt(stack, 0))
	if err, ok := v.AsError(); ok {
		panic(err)
	}
	panic(errors.Thrown(value.Debug(v)))
}

func (b *Bridge) errorNew(_ context.Context, stack []uint64) {
	b.mintResult(stack, value.ErrorOf(value.NewException(b.decode(stack, 0))))
}

func (b *Bridge) takeLastError(_ context.Context, stack []uint64) {
	h, _ := b.slot.Take()
	stack[0] = api.EncodeU32(uint32(h))
}
