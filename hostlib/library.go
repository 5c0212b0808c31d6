package hostlib

import (
	"context"
	"fmt"
	"strconv"
	"time"
	"unicode/utf16"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/calltable"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/value"
)

// Library holds the state behind the hostlib entries
type Library struct {
	Scheduler *Scheduler
	console   *zap.Logger
}

// New creates a library with its own scheduler
func New() *Library {
	return &Library{
		Scheduler: NewScheduler(),
		console:   Logger().Named("console"),
	}
}

type registration struct {
	fn   any
	name string
	opts []calltable.Option
}

// Install registers the library's forwarding entries in t.
func (l *Library) Install(t *calltable.Table) error {
	guarded := []calltable.Option{calltable.Guarded()}
	entries := []registration{
		{name: "new", fn: l.newObject},
		{name: "newArray", fn: l.newArray},
		{name: "newUint8Array", fn: l.newUint8Array},
		{name: "get", fn: l.get, opts: guarded},
		{name: "set", fn: l.set, opts: guarded},
		{name: "deleteProperty", fn: l.deleteProperty, opts: guarded},
		{name: "keys", fn: l.keys, opts: guarded},
		{name: "push", fn: l.push, opts: guarded},
		{name: "at", fn: l.at, opts: guarded},
		{name: "length", fn: l.length, opts: guarded},
		{name: "copyTo", fn: l.copyTo, opts: guarded},
		{name: "parse", fn: l.parse, opts: guarded},
		{name: "stringify", fn: l.stringify, opts: guarded},
		{name: "query", fn: l.query, opts: []calltable.Option{calltable.Guarded(), calltable.Optional()}},
		{name: "call0", fn: l.call0, opts: guarded},
		{name: "call1", fn: l.call1, opts: guarded},
		{name: "log", fn: l.consoleLog},
		{name: "warn", fn: l.consoleWarn},
		{name: "error", fn: l.consoleError},
		{name: "logValue", fn: l.logValue},
		{name: "requestAnimationFrame", fn: l.requestAnimationFrame, opts: guarded},
		{name: "cancelAnimationFrame", fn: l.Scheduler.CancelFrame},
		{name: "setTimeout", fn: l.setTimeout, opts: guarded},
		{name: "clearTimeout", fn: l.Scheduler.ClearTimeout},
		{name: "now", fn: l.now},
	}
	for _, e := range entries {
		if err := t.Register(e.name, e.fn, e.opts...); err != nil {
			return err
		}
	}
	Logger().Debug("host library installed", zap.Int("entries", len(entries)))
	return nil
}

func typeError(op string, v value.Value) error {
	return errors.New(errors.PhaseHost, errors.KindInvalidInput).
		Path(op).
		Value(v).
		Detail("unsupported receiver %s", value.Debug(v)).
		Build()
}

func (l *Library) newObject() value.Value {
	return value.ObjectOf(NewProps())
}

func (l *Library) newArray() value.Value {
	return value.ObjectOf(value.NewArray())
}

func (l *Library) newUint8Array(data []byte) value.Value {
	return value.Bytes(data)
}

func (l *Library) get(obj value.Value, key string) (value.Value, error) {
	o, ok := obj.AsObject()
	if !ok {
		return value.Undefined(), typeError("get", obj)
	}
	switch o := o.(type) {
	case *Props:
		return o.Get(key), nil
	case *Document:
		return o.Get(escapeKey(key)), nil
	case *value.Array:
		if key == "length" {
			return value.Number(float64(o.Len())), nil
		}
		if i, err := strconv.Atoi(key); err == nil {
			return o.At(i), nil
		}
	}
	return value.Undefined(), nil
}

func (l *Library) set(obj value.Value, key string, v value.Value) error {
	o, ok := obj.AsObject()
	if !ok {
		return typeError("set", obj)
	}
	switch o := o.(type) {
	case *Props:
		o.Set(key, v)
		return nil
	case *Document:
		return o.Set(escapeKey(key), v)
	case *value.Array:
		i, err := strconv.Atoi(key)
		switch {
		case err != nil || i < 0 || i > o.Len():
			return errors.InvalidInput(errors.PhaseHost, fmt.Sprintf("array index %q out of range", key))
		case i == o.Len():
			o.Push(v)
		default:
			o.Items[i] = v
		}
		return nil
	}
	return typeError("set", obj)
}

func (l *Library) deleteProperty(obj value.Value, key string) (bool, error) {
	o, _ := obj.AsObject()
	switch o := o.(type) {
	case *Props:
		return o.Delete(key), nil
	case *Document:
		had := gjson.Get(o.raw, escapeKey(key)).Exists()
		return had, o.Delete(escapeKey(key))
	}
	return false, typeError("deleteProperty", obj)
}

func (l *Library) keys(obj value.Value) (value.Value, error) {
	var names []string
	o, _ := obj.AsObject()
	switch o := o.(type) {
	case *Props:
		names = o.Keys()
	case *Document:
		names = o.Keys()
	case *value.Array:
		for i := range o.Items {
			names = append(names, strconv.Itoa(i))
		}
	default:
		return value.Undefined(), typeError("keys", obj)
	}
	arr := value.NewArray()
	for _, name := range names {
		arr.Push(value.String(name))
	}
	return value.ObjectOf(arr), nil
}

func (l *Library) push(obj value.Value, v value.Value) (uint32, error) {
	o, _ := obj.AsObject()
	arr, ok := o.(*value.Array)
	if !ok {
		return 0, typeError("push", obj)
	}
	return uint32(arr.Push(v)), nil
}

func (l *Library) at(obj value.Value, i int32) (value.Value, error) {
	o, _ := obj.AsObject()
	switch o := o.(type) {
	case *value.Array:
		if i < 0 {
			i += int32(o.Len())
		}
		return o.At(int(i)), nil
	case *Document:
		return o.Get(strconv.Itoa(int(i))), nil
	}
	return value.Undefined(), typeError("at", obj)
}

// length follows the guest's notion of length: UTF-16 code units for
// strings.
func (l *Library) length(v value.Value) (uint32, error) {
	if s, ok := v.AsString(); ok {
		return uint32(len(utf16.Encode([]rune(s)))), nil
	}
	if b, ok := v.AsBytes(); ok {
		return uint32(len(b)), nil
	}
	o, _ := v.AsObject()
	switch o := o.(type) {
	case *value.Array:
		return uint32(o.Len()), nil
	case *Document:
		return uint32(o.Len()), nil
	case *Props:
		return uint32(o.Len()), nil
	}
	return 0, typeError("length", v)
}

// copyTo copies a byte buffer into guest memory at ptr. The guest sizes
// the destination from length.
func (l *Library) copyTo(b calltable.Boundary, v value.Value, ptr uint32) error {
	data, ok := v.AsBytes()
	if !ok {
		return typeError("copyTo", v)
	}
	dst, err := b.Views().Bytes(ptr, uint32(len(data)))
	if err != nil {
		return err
	}
	copy(dst, data)
	return nil
}

func (l *Library) parse(text string) (value.Value, error) {
	if !gjson.Valid(text) {
		return value.Undefined(), errors.InvalidData(errors.PhaseHost, "invalid JSON")
	}
	return fromResult(gjson.Parse(text)), nil
}

func (l *Library) stringify(ctx context.Context, b calltable.Boundary, ret calltable.RetPtr, v value.Value) error {
	s, err := Stringify(v)
	if err != nil {
		return err
	}
	return calltable.WriteString(ctx, b, ret, s)
}

func (l *Library) query(doc value.Value, path string) (value.Value, error) {
	o, _ := doc.AsObject()
	d, ok := o.(*Document)
	if !ok {
		return value.Undefined(), typeError("query", doc)
	}
	return d.Get(path), nil
}

func (l *Library) call0(ctx context.Context, fn value.Value) (value.Value, error) {
	c, ok := fn.AsCallable()
	if !ok {
		return value.Undefined(), typeError("call", fn)
	}
	return c.Call(ctx)
}

func (l *Library) call1(ctx context.Context, fn, arg value.Value) (value.Value, error) {
	c, ok := fn.AsCallable()
	if !ok {
		return value.Undefined(), typeError("call", fn)
	}
	return c.Call(ctx, arg)
}

func (l *Library) consoleLog(msg string)   { l.console.Info(msg) }
func (l *Library) consoleWarn(msg string)  { l.console.Warn(msg) }
func (l *Library) consoleError(msg string) { l.console.Error(msg) }

func (l *Library) logValue(v value.Value) {
	l.console.Info(value.Debug(v), zap.Stringer("kind", v.Kind()))
}

func (l *Library) requestAnimationFrame(fn value.Value) (int32, error) {
	c, ok := fn.AsCallable()
	if !ok {
		return 0, typeError("requestAnimationFrame", fn)
	}
	return l.Scheduler.RequestFrame(c), nil
}

func (l *Library) setTimeout(fn value.Value, ms float64) (int32, error) {
	c, ok := fn.AsCallable()
	if !ok {
		return 0, typeError("setTimeout", fn)
	}
	return l.Scheduler.SetTimeout(c, time.Duration(ms*float64(time.Millisecond))), nil
}

func (l *Library) now() float64 {
	return millis(l.Scheduler.Now())
}
