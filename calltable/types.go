package calltable

import (
	"context"

	"github.com/wippyai/wasm-bridge/codec"
	"github.com/wippyai/wasm-bridge/heap"
	"github.com/wippyai/wasm-bridge/memview"
	"github.com/wippyai/wasm-bridge/value"
)

// Boundary is the marshalling state a forwarding entry runs against
type Boundary interface {
	Heap() *heap.Heap
	Codec() *codec.Codec
	Views() *memview.Cache

	// EncodeString copies s into guest memory and returns its address and
	// byte length.
	EncodeString(ctx context.Context, s string) (ptr, n uint32, err error)
}

// Owned is a handle parameter whose slot is released once lifted
type Owned struct {
	value.Value
}

// Str is a string parameter passed as (ptr, len)
type Str string

// Bytes is a byte buffer parameter passed as (ptr, len) and copied
type Bytes []byte

// RetPtr is the guest address of a result area
type RetPtr uint32

// RawFunc is a forwarding body working directly on the boundary stack.
// Parameters occupy the front of stack and results are written from index 0.
type RawFunc func(ctx context.Context, b Boundary, stack []uint64) error

// WriteString encodes s into guest memory and stores (ptr, len) at ret.
func WriteString(ctx context.Context, b Boundary, ret RetPtr, s string) error {
	ptr, n, err := b.EncodeString(ctx, s)
	if err != nil {
		return err
	}
	if err := b.Views().PutUint32(uint32(ret), ptr); err != nil {
		return err
	}
	return b.Views().PutUint32(uint32(ret)+4, n)
}

// WriteOptionalNumber stores the number layout used for optional f64
// results: a presence flag at ret and the value at ret+8.
func WriteOptionalNumber(b Boundary, ret RetPtr, n float64, ok bool) error {
	flag := int32(0)
	if ok {
		flag = 1
	} else {
		n = 0
	}
	if err := b.Views().PutFloat64(uint32(ret)+8, n); err != nil {
		return err
	}
	return b.Views().PutInt32(uint32(ret), flag)
}
