package hostlib

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/value"
)

const maxDepth = 64

// Stringify renders v as JSON. Undefined, callables and non-finite numbers
// become null; object properties holding undefined or a callable are
// omitted.
func Stringify(v value.Value) (string, error) {
	return marshal(v, 0)
}

func marshal(v value.Value, depth int) (string, error) {
	if depth > maxDepth {
		return "", errors.InvalidInput(errors.PhaseHost, "value is too deeply nested or cyclic")
	}

	switch v.Kind() {
	case value.KindUndefined, value.KindNull, value.KindCallable:
		return "null", nil
	case value.KindBool:
		b, _ := v.AsBool()
		return strconv.FormatBool(b), nil
	case value.KindNumber:
		n, _ := v.AsNumber()
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return "null", nil
		}
		return value.FormatNumber(n), nil
	case value.KindString:
		s, _ := v.AsString()
		return quote(s), nil
	case value.KindBytes:
		data, _ := v.AsBytes()
		var b strings.Builder
		b.WriteByte('[')
		for i, c := range data {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Itoa(int(c)))
		}
		b.WriteByte(']')
		return b.String(), nil
	case value.KindError:
		return "{}", nil
	}

	obj, _ := v.AsObject()
	switch o := obj.(type) {
	case *value.Array:
		out := "[]"
		for _, item := range o.Items {
			raw, err := marshal(item, depth+1)
			if err != nil {
				return "", err
			}
			if out, err = sjson.SetRaw(out, "-1", raw); err != nil {
				return "", errors.Wrap(errors.PhaseHost, errors.KindInvalidData, err, "append array item")
			}
		}
		return out, nil
	case *Props:
		return o.marshal(depth)
	case *Document:
		return o.raw, nil
	case json.Marshaler:
		data, err := o.MarshalJSON()
		if err != nil {
			return "", errors.Wrap(errors.PhaseHost, errors.KindInvalidData, err, "marshal json")
		}
		return string(data), nil
	}
	return "{}", nil
}

func quote(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}

// escapeKey makes a property name usable as a single path component.
func escapeKey(key string) string {
	if !strings.ContainsAny(key, `\.*?|#@!:`) {
		return key
	}
	var b strings.Builder
	for _, r := range key {
		if strings.ContainsRune(`\.*?|#@!:`, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// fromResult converts a query result. Objects and arrays stay documents so
// nested paths can be queried without reparsing into host values.
func fromResult(r gjson.Result) value.Value {
	if !r.Exists() {
		return value.Undefined()
	}
	switch r.Type {
	case gjson.Null:
		return value.Null()
	case gjson.False:
		return value.Bool(false)
	case gjson.True:
		return value.Bool(true)
	case gjson.Number:
		return value.Number(r.Num)
	case gjson.String:
		return value.String(r.Str)
	}
	return value.ObjectOf(&Document{raw: r.Raw})
}

// Document is a JSON value kept in its encoded form and queried with
// gjson paths ("user.name", "items.#", "items.0.id").
type Document struct {
	raw string
}

// ParseDocument validates text and wraps it.
func ParseDocument(text string) (*Document, error) {
	if !gjson.Valid(text) {
		return nil, errors.InvalidData(errors.PhaseHost, "invalid JSON document")
	}
	return &Document{raw: text}, nil
}

// ClassName reports "Array" for array documents and "Object" otherwise.
func (d *Document) ClassName() string {
	if gjson.Parse(d.raw).IsArray() {
		return "Array"
	}
	return "Object"
}

// Raw returns the encoded document
func (d *Document) Raw() string {
	return d.raw
}

// MarshalJSON implements json.Marshaler
func (d *Document) MarshalJSON() ([]byte, error) {
	return []byte(d.raw), nil
}

// Get queries path. Missing paths yield undefined.
func (d *Document) Get(path string) value.Value {
	return fromResult(gjson.Get(d.raw, path))
}

// Set stores v at path, creating intermediate objects.
func (d *Document) Set(path string, v value.Value) error {
	raw, err := Stringify(v)
	if err != nil {
		return err
	}
	next, err := sjson.SetRaw(d.raw, path, raw)
	if err != nil {
		return errors.Wrap(errors.PhaseHost, errors.KindInvalidInput, err, "set "+path)
	}
	d.raw = next
	return nil
}

// Delete removes path. Deleting a missing path is not an error.
func (d *Document) Delete(path string) error {
	next, err := sjson.Delete(d.raw, path)
	if err != nil {
		return errors.Wrap(errors.PhaseHost, errors.KindInvalidInput, err, "delete "+path)
	}
	d.raw = next
	return nil
}

// Keys lists the top-level keys of an object document in document order.
func (d *Document) Keys() []string {
	root := gjson.Parse(d.raw)
	if !root.IsObject() {
		return nil
	}
	var keys []string
	root.ForEach(func(key, _ gjson.Result) bool {
		keys = append(keys, key.Str)
		return true
	})
	return keys
}

// Len returns the element count of an array document, or the key count of
// an object document.
func (d *Document) Len() int {
	root := gjson.Parse(d.raw)
	if root.IsArray() {
		return len(root.Array())
	}
	return len(d.Keys())
}
