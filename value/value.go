// Package value defines the host-side representation of values that cross
// the guest boundary by handle.
//
// Value is a closed tagged union. The zero Value is Undefined.
package value

import (
	"context"
	"math"
	"reflect"
	"unsafe"
)

// Kind is the tag of a Value
type Kind uint8

const (
	KindUndefined Kind = iota
	KindNull
	KindBool
	KindNumber
	KindString
	KindBytes
	KindObject
	KindCallable
	KindError
)

var kindNames = [...]string{
	KindUndefined: "undefined",
	KindNull:      "null",
	KindBool:      "boolean",
	KindNumber:    "number",
	KindString:    "string",
	KindBytes:     "bytes",
	KindObject:    "object",
	KindCallable:  "function",
	KindError:     "error",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Object is an opaque host object. Implementations should be pointer types
// so that equality is by identity.
type Object interface {
	ClassName() string
}

// Callable is a host value the guest or host can invoke
type Callable interface {
	Name() string
	Call(ctx context.Context, args ...Value) (Value, error)
}

// Value is a host value referenced from guest code through a handle
type Value struct {
	obj  any
	s    string
	n    float64
	kind Kind
}

func Undefined() Value { return Value{} }

func Null() Value { return Value{kind: KindNull} }

func Bool(b bool) Value {
	if b {
		return Value{kind: KindBool, n: 1}
	}
	return Value{kind: KindBool}
}

func Number(f float64) Value { return Value{kind: KindNumber, n: f} }

func String(s string) Value { return Value{kind: KindString, s: s} }

// Bytes wraps b without copying. Callers that hand out guest memory must
// copy first.
func Bytes(b []byte) Value {
	if b == nil {
		b = []byte{}
	}
	return Value{kind: KindBytes, obj: b}
}

// ObjectOf wraps a host object. A nil object yields Null.
func ObjectOf(o Object) Value {
	if o == nil {
		return Null()
	}
	return Value{kind: KindObject, obj: o}
}

// Func wraps a callable. A nil callable yields Null.
func Func(c Callable) Value {
	if c == nil {
		return Null()
	}
	return Value{kind: KindCallable, obj: c}
}

// ErrorOf wraps a Go error. A nil error yields Undefined.
func ErrorOf(err error) Value {
	if err == nil {
		return Undefined()
	}
	return Value{kind: KindError, obj: err}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsUndefined() bool { return v.kind == KindUndefined }

func (v Value) IsNull() bool { return v.kind == KindNull }

// IsLikeNone reports whether v is Undefined or Null
func (v Value) IsLikeNone() bool {
	return v.kind == KindUndefined || v.kind == KindNull
}

// IsObject reports whether v is a non-null object in the host sense:
// objects, byte buffers and errors. Callables are functions, not objects.
func (v Value) IsObject() bool {
	switch v.kind {
	case KindObject, KindBytes, KindError:
		return true
	}
	return false
}

// IsFunction reports whether v is callable
func (v Value) IsFunction() bool {
	return v.kind == KindCallable
}

func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.n != 0, true
}

func (v Value) AsNumber() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.n, true
}

func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

func (v Value) AsBytes() ([]byte, bool) {
	if v.kind != KindBytes {
		return nil, false
	}
	return v.obj.([]byte), true
}

func (v Value) AsObject() (Object, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	return v.obj.(Object), true
}

func (v Value) AsCallable() (Callable, bool) {
	if v.kind != KindCallable {
		return nil, false
	}
	return v.obj.(Callable), true
}

func (v Value) AsError() (error, bool) {
	if v.kind != KindError {
		return nil, false
	}
	return v.obj.(error), true
}

// Truthy applies the host language's truthiness rules
func (v Value) Truthy() bool {
	switch v.kind {
	case KindUndefined, KindNull:
		return false
	case KindBool:
		return v.n != 0
	case KindNumber:
		return v.n != 0 && !math.IsNaN(v.n)
	case KindString:
		return v.s != ""
	}
	return true
}

// Equal reports strict equality: primitives compare by value, everything
// else by identity. NaN is not equal to itself.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindUndefined, KindNull:
		return true
	case KindBool, KindNumber:
		return a.n == b.n
	case KindString:
		return a.s == b.s
	case KindBytes:
		x, y := a.obj.([]byte), b.obj.([]byte)
		return unsafe.SliceData(x) == unsafe.SliceData(y) && len(x) == len(y)
	}
	return sameIdentity(a.obj, b.obj)
}

func sameIdentity(x, y any) bool {
	tx, ty := reflect.TypeOf(x), reflect.TypeOf(y)
	if tx != ty || !tx.Comparable() {
		return false
	}
	return x == y
}

// Array is an ordered list object
type Array struct {
	Items []Value
}

func NewArray(items ...Value) *Array {
	return &Array{Items: items}
}

func (a *Array) ClassName() string { return "Array" }

// Len returns the number of items
func (a *Array) Len() int { return len(a.Items) }

// At returns the item at i, or Undefined when out of range
func (a *Array) At(i int) Value {
	if i < 0 || i >= len(a.Items) {
		return Undefined()
	}
	return a.Items[i]
}

// Push appends v and returns the new length
func (a *Array) Push(v Value) int {
	a.Items = append(a.Items, v)
	return len(a.Items)
}

// FuncOf adapts a Go function into a Callable
func FuncOf(name string, fn func(ctx context.Context, args ...Value) (Value, error)) Callable {
	return &goFunc{name: name, fn: fn}
}

type goFunc struct {
	fn   func(ctx context.Context, args ...Value) (Value, error)
	name string
}

func (f *goFunc) Name() string { return f.name }

func (f *goFunc) Call(ctx context.Context, args ...Value) (Value, error) {
	return f.fn(ctx, args...)
}

// Exception is an error value created from guest-supplied text
type Exception struct {
	Class   string
	Message string
}

// NewException creates an Exception of class Error
func NewException(msg string) *Exception {
	return &Exception{Class: "Error", Message: msg}
}

func (e *Exception) Error() string { return e.Message }

// Name returns the error class used by Debug
func (e *Exception) Name() string { return e.Class }
