package hostlib

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/wasm-bridge/calltable"
	"github.com/wippyai/wasm-bridge/value"
)

func TestStringify(t *testing.T) {
	nested := NewProps()
	nested.Set("ok", value.Bool(true))

	props := NewProps()
	props.Set("name", value.String("wasm \"bridge\""))
	props.Set("count", value.Number(3))
	props.Set("skip", value.Undefined())
	props.Set("fn", value.Func(value.FuncOf("f", nil)))
	props.Set("nested", value.ObjectOf(nested))
	props.Set("a.b", value.Null())

	tests := []struct {
		name string
		v    value.Value
		want string
	}{
		{"undefined", value.Undefined(), "null"},
		{"null", value.Null(), "null"},
		{"bool", value.Bool(false), "false"},
		{"integer", value.Number(42), "42"},
		{"fraction", value.Number(0.5), "0.5"},
		{"nan", value.Number(math.NaN()), "null"},
		{"infinity", value.Number(math.Inf(1)), "null"},
		{"string", value.String("héllo"), `"héllo"`},
		{"bytes", value.Bytes([]byte{1, 2, 255}), "[1,2,255]"},
		{"error", value.ErrorOf(fmt.Errorf("x")), "{}"},
		{"array", value.ObjectOf(value.NewArray(value.Number(1), value.String("a"), value.Undefined())), `[1,"a",null]`},
		{"empty array", value.ObjectOf(value.NewArray()), "[]"},
		{"props", value.ObjectOf(props), `{"name":"wasm \"bridge\"","count":3,"nested":{"ok":true},"a.b":null}`},
		{"empty props", value.ObjectOf(NewProps()), "{}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Stringify(tt.v)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStringify_Cycle(t *testing.T) {
	p := NewProps()
	p.Set("self", value.ObjectOf(p))

	_, err := Stringify(value.ObjectOf(p))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cyclic")
}

type rawJSON string

func (r rawJSON) ClassName() string            { return "Object" }
func (r rawJSON) MarshalJSON() ([]byte, error) { return []byte(r), nil }

type brokenJSON struct{}

func (brokenJSON) ClassName() string            { return "Broken" }
func (brokenJSON) MarshalJSON() ([]byte, error) { return nil, fmt.Errorf("no encoding") }

func TestStringify_Marshaler(t *testing.T) {
	got, err := Stringify(value.ObjectOf(rawJSON(`{"k":[1,2]}`)))
	require.NoError(t, err)
	assert.Equal(t, `{"k":[1,2]}`, got)

	_, err = Stringify(value.ObjectOf(value.NewArray(value.ObjectOf(brokenJSON{}))))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "marshal json")
	assert.Contains(t, err.Error(), "no encoding")
}

func TestProps(t *testing.T) {
	p := NewProps()
	assert.True(t, p.Get("missing").IsUndefined())

	p.Set("b", value.Number(1))
	p.Set("a", value.Number(2))
	p.Set("b", value.Number(3))
	assert.Equal(t, []string{"b", "a"}, p.Keys())
	assert.Equal(t, value.Number(3), p.Get("b"))
	assert.True(t, p.Has("a"))

	assert.True(t, p.Delete("b"))
	assert.False(t, p.Delete("b"))
	assert.Equal(t, []string{"a"}, p.Keys())
	assert.Equal(t, 1, p.Len())

	assert.Equal(t, `Object({"a":2})`, value.Debug(value.ObjectOf(p)))
}

func TestDocument(t *testing.T) {
	_, err := ParseDocument("{nope")
	require.Error(t, err)

	doc, err := ParseDocument(`{"user":{"name":"ann","tags":["x","y"]},"n":1.5,"ok":true,"none":null}`)
	require.NoError(t, err)

	assert.Equal(t, value.String("ann"), doc.Get("user.name"))
	assert.Equal(t, value.Number(2), doc.Get("user.tags.#"))
	assert.Equal(t, value.String("y"), doc.Get("user.tags.1"))
	assert.Equal(t, value.Number(1.5), doc.Get("n"))
	assert.Equal(t, value.Bool(true), doc.Get("ok"))
	assert.True(t, doc.Get("none").IsNull())
	assert.True(t, doc.Get("missing").IsUndefined())

	tags, ok := doc.Get("user.tags").AsObject()
	require.True(t, ok)
	assert.Equal(t, "Array", tags.ClassName())
	assert.Equal(t, 2, tags.(*Document).Len())

	require.NoError(t, doc.Set("user.age", value.Number(30)))
	require.NoError(t, doc.Set("extra.deep", value.String("v")))
	assert.Equal(t, value.Number(30), doc.Get("user.age"))
	assert.Equal(t, value.String("v"), doc.Get("extra.deep"))

	require.NoError(t, doc.Delete("ok"))
	assert.Equal(t, []string{"user", "n", "none", "extra"}, doc.Keys())
	assert.Equal(t, "Object", doc.ClassName())
	assert.Contains(t, value.Debug(value.ObjectOf(doc)), `"name":"ann"`)
}

func TestEscapeKey(t *testing.T) {
	assert.Equal(t, "plain", escapeKey("plain"))
	assert.Equal(t, `a\.b`, escapeKey("a.b"))
	assert.Equal(t, `x\*\?`, escapeKey("x*?"))

	doc, err := ParseDocument(`{}`)
	require.NoError(t, err)
	lib := New()
	require.NoError(t, lib.set(value.ObjectOf(doc), "a.b", value.Number(1)))
	assert.Equal(t, `{"a.b":1}`, doc.Raw())

	got, err := lib.get(value.ObjectOf(doc), "a.b")
	require.NoError(t, err)
	assert.Equal(t, value.Number(1), got)
}

func recorder(calls *[]string, name string) value.Callable {
	return value.FuncOf(name, func(_ context.Context, args ...value.Value) (value.Value, error) {
		entry := name
		for _, a := range args {
			entry += " " + value.Debug(a)
		}
		*calls = append(*calls, entry)
		return value.Undefined(), nil
	})
}

func TestScheduler_Frames(t *testing.T) {
	s := NewScheduler()
	ctx := context.Background()
	var calls []string

	s.RequestFrame(recorder(&calls, "a"))
	cancelled := s.RequestFrame(recorder(&calls, "b"))
	s.RequestFrame(value.FuncOf("requeue", func(context.Context, ...value.Value) (value.Value, error) {
		s.RequestFrame(recorder(&calls, "next"))
		return value.Undefined(), nil
	}))
	s.CancelFrame(cancelled)

	require.NoError(t, s.Advance(ctx, 16*time.Millisecond))
	require.NoError(t, s.RunFrame(ctx))
	assert.Equal(t, []string{"a 16"}, calls)

	frames, _ := s.Pending()
	assert.Equal(t, 1, frames, "callbacks requested during a frame wait for the next one")

	require.NoError(t, s.RunFrame(ctx))
	assert.Equal(t, []string{"a 16", "next 16"}, calls)
	require.NoError(t, s.RunFrame(ctx))
}

func TestScheduler_Timers(t *testing.T) {
	s := NewScheduler()
	ctx := context.Background()
	var calls []string

	s.SetTimeout(recorder(&calls, "late"), 50*time.Millisecond)
	s.SetTimeout(recorder(&calls, "early"), 10*time.Millisecond)
	s.SetTimeout(recorder(&calls, "tie"), 10*time.Millisecond)
	cleared := s.SetTimeout(recorder(&calls, "cleared"), 5*time.Millisecond)
	s.ClearTimeout(cleared)
	s.SetTimeout(value.FuncOf("chain", func(context.Context, ...value.Value) (value.Value, error) {
		s.SetTimeout(recorder(&calls, "chained"), 0)
		return value.Undefined(), nil
	}), 20*time.Millisecond)

	require.NoError(t, s.Advance(ctx, 5*time.Millisecond))
	assert.Empty(t, calls)

	require.NoError(t, s.Advance(ctx, 20*time.Millisecond))
	assert.Equal(t, []string{"early", "tie", "chained"}, calls)

	_, timers := s.Pending()
	assert.Equal(t, 1, timers)

	require.NoError(t, s.Advance(ctx, time.Second))
	assert.Equal(t, []string{"early", "tie", "chained", "late"}, calls)
	assert.Equal(t, 1025*time.Millisecond, s.Now())
}

func TestScheduler_CallbackErrors(t *testing.T) {
	s := NewScheduler()
	ctx := context.Background()
	var calls []string

	fail := value.FuncOf("fail", func(context.Context, ...value.Value) (value.Value, error) {
		return value.Undefined(), fmt.Errorf("frame broke")
	})
	s.RequestFrame(fail)
	s.RequestFrame(recorder(&calls, "after"))

	err := s.RunFrame(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frame broke")
	assert.Equal(t, []string{"after 0"}, calls)
}

func TestLibrary_Objects(t *testing.T) {
	lib := New()

	obj := lib.newObject()
	require.NoError(t, lib.set(obj, "x", value.Number(1)))
	got, err := lib.get(obj, "x")
	require.NoError(t, err)
	assert.Equal(t, value.Number(1), got)

	keys, err := lib.keys(obj)
	require.NoError(t, err)
	assert.Equal(t, `["x"]`, value.Debug(keys))

	had, err := lib.deleteProperty(obj, "x")
	require.NoError(t, err)
	assert.True(t, had)

	arr := lib.newArray()
	n, err := lib.push(arr, value.String("a"))
	require.NoError(t, err)
	assert.Equal(t, uint32(1), n)
	require.NoError(t, lib.set(arr, "1", value.String("b")))
	require.Error(t, lib.set(arr, "5", value.String("c")))

	last, err := lib.at(arr, -1)
	require.NoError(t, err)
	assert.Equal(t, value.String("b"), last)

	length, err := lib.get(arr, "length")
	require.NoError(t, err)
	assert.Equal(t, value.Number(2), length)

	_, err = lib.get(value.Number(1), "x")
	require.Error(t, err)
	_, err = lib.push(obj, value.Null())
	require.Error(t, err)
}

func TestLibrary_Length(t *testing.T) {
	lib := New()

	tests := []struct {
		v    value.Value
		want uint32
	}{
		{value.String("héllo"), 5},
		{value.String("😀"), 2},
		{value.Bytes([]byte{1, 2, 3}), 3},
		{value.ObjectOf(value.NewArray(value.Null())), 1},
	}
	for _, tt := range tests {
		got, err := lib.length(tt.v)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, value.Debug(tt.v))
	}

	_, err := lib.length(value.Number(1))
	require.Error(t, err)
}

func TestLibrary_Parse(t *testing.T) {
	lib := New()

	v, err := lib.parse(`{"a":[1,2]}`)
	require.NoError(t, err)
	got, err := lib.query(v, "a.1")
	require.NoError(t, err)
	assert.Equal(t, value.Number(2), got)

	v, err = lib.parse(`"text"`)
	require.NoError(t, err)
	assert.Equal(t, value.String("text"), v)

	_, err = lib.parse(`{`)
	require.Error(t, err)
}

func TestLibrary_Calls(t *testing.T) {
	lib := New()
	ctx := context.Background()

	double := value.Func(value.FuncOf("double", func(_ context.Context, args ...value.Value) (value.Value, error) {
		n, _ := args[0].AsNumber()
		return value.Number(n * 2), nil
	}))
	got, err := lib.call1(ctx, double, value.Number(4))
	require.NoError(t, err)
	assert.Equal(t, value.Number(8), got)

	_, err = lib.call0(ctx, value.Number(1))
	require.Error(t, err)

	_, err = lib.requestAnimationFrame(value.Null())
	require.Error(t, err)

	id, err := lib.setTimeout(double, 10)
	require.NoError(t, err)
	assert.NotZero(t, id)
	assert.Equal(t, 0.0, lib.now())
}

func TestLibrary_Console(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	SetLogger(zap.New(core))
	defer SetLogger(zap.NewNop())

	lib := New()
	lib.consoleLog("hello")
	lib.consoleWarn("careful")
	lib.consoleError("broken")
	lib.logValue(value.Number(1.5))

	entries := logs.FilterLoggerName("console").All()
	require.Len(t, entries, 4)
	assert.Equal(t, "hello", entries[0].Message)
	assert.Equal(t, zap.WarnLevel, entries[1].Level)
	assert.Equal(t, zap.ErrorLevel, entries[2].Level)
	assert.Equal(t, "1.5", entries[3].Message)
}

func TestLibrary_Install(t *testing.T) {
	table := calltable.New()
	require.NoError(t, New().Install(table))

	for _, name := range []string{"new", "get", "set", "stringify", "requestAnimationFrame", "now"} {
		_, ok := table.Lookup(name)
		assert.True(t, ok, name)
	}

	e, ok := table.Lookup("__wbg_get_0123456789abcdef")
	require.True(t, ok)
	assert.True(t, e.Guarded)

	e, ok = table.Lookup("log")
	require.True(t, ok)
	assert.False(t, e.Guarded)
}
