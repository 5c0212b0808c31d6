package calltable

import (
	"context"
	"fmt"
	"reflect"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/heap"
	"github.com/wippyai/wasm-bridge/value"
)

type paramKind uint8

const (
	kindContext paramKind = iota
	kindBoundary
	kindValue
	kindOwned
	kindString
	kindBytes
	kindRetPtr
	kindI32
	kindU32
	kindI64
	kindU64
	kindF32
	kindF64
	kindBool
)

var (
	contextType  = reflect.TypeOf((*context.Context)(nil)).Elem()
	boundaryType = reflect.TypeOf((*Boundary)(nil)).Elem()
	errorType    = reflect.TypeOf((*error)(nil)).Elem()
	valueType    = reflect.TypeOf(value.Value{})
	ownedType    = reflect.TypeOf(Owned{})
	retPtrType   = reflect.TypeOf(RetPtr(0))
)

// classify maps a Go type to its parameter kind and boundary value types
func classify(t reflect.Type) (paramKind, []api.ValueType, bool) {
	switch t {
	case contextType:
		return kindContext, nil, true
	case boundaryType:
		return kindBoundary, nil, true
	case valueType:
		return kindValue, []api.ValueType{api.ValueTypeI32}, true
	case ownedType:
		return kindOwned, []api.ValueType{api.ValueTypeI32}, true
	case retPtrType:
		return kindRetPtr, []api.ValueType{api.ValueTypeI32}, true
	}

	switch t.Kind() {
	case reflect.String:
		return kindString, []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, true
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return kindBytes, []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, true
		}
	case reflect.Int32:
		return kindI32, []api.ValueType{api.ValueTypeI32}, true
	case reflect.Uint32:
		return kindU32, []api.ValueType{api.ValueTypeI32}, true
	case reflect.Int64:
		return kindI64, []api.ValueType{api.ValueTypeI64}, true
	case reflect.Uint64:
		return kindU64, []api.ValueType{api.ValueTypeI64}, true
	case reflect.Float32:
		return kindF32, []api.ValueType{api.ValueTypeF32}, true
	case reflect.Float64:
		return kindF64, []api.ValueType{api.ValueTypeF64}, true
	case reflect.Bool:
		return kindBool, []api.ValueType{api.ValueTypeI32}, true
	}
	return 0, nil, false
}

// bindFunc builds the boundary signature and body for a typed Go function
func bindFunc(name string, fn any, optional bool) ([]api.ValueType, []api.ValueType, RawFunc, error) {
	rv := reflect.ValueOf(fn)
	if !rv.IsValid() || rv.Kind() != reflect.Func {
		return nil, nil, nil, errors.New(errors.PhaseLinking, errors.KindRegistration).
			Import(name).
			Detail("handler must be a function, got %T", fn).
			Build()
	}
	rt := rv.Type()
	if rt.IsVariadic() {
		return nil, nil, nil, errors.New(errors.PhaseLinking, errors.KindRegistration).
			Import(name).
			Detail("variadic handlers are not supported").
			Build()
	}

	kinds := make([]paramKind, rt.NumIn())
	var params []api.ValueType
	for i := 0; i < rt.NumIn(); i++ {
		in := rt.In(i)
		k, vts, ok := classify(in)
		if !ok {
			return nil, nil, nil, errors.New(errors.PhaseLinking, errors.KindRegistration).
				Import(name).
				Path(fmt.Sprintf("param%d", i)).
				Detail("unsupported parameter type %s", in).
				Build()
		}
		if k == kindContext && i != 0 {
			return nil, nil, nil, errors.New(errors.PhaseLinking, errors.KindRegistration).
				Import(name).
				Detail("context.Context must be the first parameter").
				Build()
		}
		kinds[i] = k
		params = append(params, vts...)
	}

	numOut := rt.NumOut()
	hasErr := numOut > 0 && rt.Out(numOut-1) == errorType
	if hasErr {
		numOut--
	}
	if numOut > 1 {
		return nil, nil, nil, errors.New(errors.PhaseLinking, errors.KindRegistration).
			Import(name).
			Detail("at most one result besides error is allowed").
			Build()
	}

	var results []api.ValueType
	resultKind := paramKind(0)
	if numOut == 1 {
		k, vts, ok := classify(rt.Out(0))
		if !ok || len(vts) != 1 || k == kindOwned || k == kindRetPtr {
			return nil, nil, nil, errors.New(errors.PhaseLinking, errors.KindRegistration).
				Import(name).
				Detail("unsupported result type %s", rt.Out(0)).
				Build()
		}
		resultKind = k
		results = vts
	}

	body := func(ctx context.Context, b Boundary, stack []uint64) error {
		args := make([]reflect.Value, len(kinds))
		pos := 0
		for i, k := range kinds {
			in := rt.In(i)
			switch k {
			case kindContext:
				args[i] = reflect.ValueOf(&ctx).Elem()
			case kindBoundary:
				args[i] = reflect.ValueOf(&b).Elem()
			case kindValue:
				args[i] = reflect.ValueOf(b.Heap().Peek(heap.Handle(api.DecodeU32(stack[pos]))))
				pos++
			case kindOwned:
				args[i] = reflect.ValueOf(Owned{b.Heap().Take(heap.Handle(api.DecodeU32(stack[pos])))})
				pos++
			case kindString:
				s, err := b.Codec().Decode(api.DecodeU32(stack[pos]), api.DecodeU32(stack[pos+1]))
				if err != nil {
					return err
				}
				args[i] = reflect.ValueOf(s).Convert(in)
				pos += 2
			case kindBytes:
				raw, err := b.Codec().CopyBytes(api.DecodeU32(stack[pos]), api.DecodeU32(stack[pos+1]))
				if err != nil {
					return err
				}
				args[i] = reflect.ValueOf(raw).Convert(in)
				pos += 2
			case kindRetPtr:
				args[i] = reflect.ValueOf(RetPtr(api.DecodeU32(stack[pos])))
				pos++
			case kindI32:
				args[i] = reflect.ValueOf(api.DecodeI32(stack[pos])).Convert(in)
				pos++
			case kindU32:
				args[i] = reflect.ValueOf(api.DecodeU32(stack[pos])).Convert(in)
				pos++
			case kindI64:
				args[i] = reflect.ValueOf(int64(stack[pos])).Convert(in)
				pos++
			case kindU64:
				args[i] = reflect.ValueOf(stack[pos]).Convert(in)
				pos++
			case kindF32:
				args[i] = reflect.ValueOf(api.DecodeF32(stack[pos])).Convert(in)
				pos++
			case kindF64:
				args[i] = reflect.ValueOf(api.DecodeF64(stack[pos])).Convert(in)
				pos++
			case kindBool:
				args[i] = reflect.ValueOf(api.DecodeU32(stack[pos]) != 0).Convert(in)
				pos++
			}
		}

		out := rv.Call(args)

		if hasErr {
			if errv := out[len(out)-1]; !errv.IsNil() {
				return errv.Interface().(error)
			}
		}
		if numOut == 1 {
			stack[0] = lowerResult(b, resultKind, out[0], optional)
		}
		return nil
	}

	return params, results, body, nil
}

func lowerResult(b Boundary, k paramKind, v reflect.Value, optional bool) uint64 {
	switch k {
	case kindValue:
		val := v.Interface().(value.Value)
		if optional && val.IsLikeNone() {
			return 0
		}
		return api.EncodeU32(uint32(b.Heap().Mint(val)))
	case kindI32:
		return api.EncodeI32(int32(v.Int()))
	case kindU32:
		return api.EncodeU32(uint32(v.Uint()))
	case kindI64:
		return uint64(v.Int())
	case kindU64:
		return v.Uint()
	case kindF32:
		return api.EncodeF32(float32(v.Float()))
	case kindF64:
		return api.EncodeF64(v.Float())
	case kindBool:
		if v.Bool() {
			return 1
		}
		return 0
	}
	return 0
}
