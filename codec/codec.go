// Package codec moves strings and typed arrays across the guest boundary.
//
// Decoding reads a (ptr, len) range of guest memory and is strict: invalid
// UTF-8 is an error, never replaced. Encoding allocates guest memory through
// the guest's own allocator and reports the written byte length out of band
// through WrittenLen, because a boundary call can return only one number.
package codec

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/memview"
)

// MallocFunc allocates size bytes of guest memory
type MallocFunc func(ctx context.Context, size uint32) (uint32, error)

// ReallocFunc resizes a guest allocation, possibly moving it
type ReallocFunc func(ctx context.Context, ptr, oldSize, newSize uint32) (uint32, error)

// Codec encodes and decodes against one guest memory.
// It is not safe for concurrent use.
type Codec struct {
	views   *memview.Cache
	written uint32
}

// New creates a codec reading and writing through views
func New(views *memview.Cache) *Codec {
	return &Codec{views: views}
}

// WrittenLen returns the byte length produced by the most recent Encode or
// EncodeBytes.
func (c *Codec) WrittenLen() uint32 {
	return c.written
}

// Decode reads n bytes at ptr as strict UTF-8.
func (c *Codec) Decode(ptr, n uint32) (string, error) {
	if n == 0 {
		return "", nil
	}
	raw, err := c.views.Bytes(ptr, n)
	if err != nil {
		return "", errors.Wrap(errors.PhaseDecode, errors.KindOutOfBounds, err, "read string")
	}
	if !utf8.Valid(raw) {
		return "", errors.InvalidUTF8(errors.PhaseDecode, ptr, raw)
	}
	return string(raw), nil
}

// Encode writes text into newly allocated guest memory and returns its
// address. The byte length is available from WrittenLen.
//
// Without realloc the exact UTF-8 length is allocated up front. With
// realloc the first allocation is sized in UTF-16 code units, the ASCII
// prefix is copied directly, and the allocation only grows if a non-ASCII
// character is reached.
func (c *Codec) Encode(ctx context.Context, text string, malloc MallocFunc, realloc ReallocFunc) (uint32, error) {
	text = strings.ToValidUTF8(text, "\uFFFD")

	if realloc == nil {
		n := uint32(len(text))
		ptr, err := malloc(ctx, n)
		if err != nil {
			return 0, errors.AllocationFailed(errors.PhaseEncode, n, err)
		}
		dst, err := c.views.Bytes(ptr, n)
		if err != nil {
			return 0, errors.Wrap(errors.PhaseEncode, errors.KindOutOfBounds, err, "write string")
		}
		copy(dst, text)
		c.written = n
		return ptr, nil
	}

	size := utf16Len(text)
	ptr, err := malloc(ctx, size)
	if err != nil {
		return 0, errors.AllocationFailed(errors.PhaseEncode, size, err)
	}
	dst, err := c.views.Bytes(ptr, size)
	if err != nil {
		return 0, errors.Wrap(errors.PhaseEncode, errors.KindOutOfBounds, err, "write string")
	}

	offset := uint32(0)
	for int(offset) < len(text) && text[offset] < utf8.RuneSelf {
		dst[offset] = text[offset]
		offset++
	}

	if int(offset) != len(text) {
		rest := text[offset:]
		grown := offset + 3*utf16Len(rest)
		if ptr, err = realloc(ctx, ptr, size, grown); err != nil {
			return 0, errors.AllocationFailed(errors.PhaseEncode, grown, err)
		}
		size = grown

		// realloc may have grown memory, so take a fresh range
		dst, err = c.views.Bytes(ptr+offset, uint32(len(rest)))
		if err != nil {
			return 0, errors.Wrap(errors.PhaseEncode, errors.KindOutOfBounds, err, "write string")
		}
		offset += uint32(copy(dst, rest))

		if offset != size {
			if ptr, err = realloc(ctx, ptr, size, offset); err != nil {
				return 0, errors.AllocationFailed(errors.PhaseEncode, offset, err)
			}
		}
	}

	c.written = offset
	return ptr, nil
}

// EncodeBytes copies b into newly allocated guest memory.
func (c *Codec) EncodeBytes(ctx context.Context, b []byte, malloc MallocFunc) (uint32, error) {
	n := uint32(len(b))
	ptr, err := malloc(ctx, n)
	if err != nil {
		return 0, errors.AllocationFailed(errors.PhaseEncode, n, err)
	}
	dst, err := c.views.Bytes(ptr, n)
	if err != nil {
		return 0, errors.Wrap(errors.PhaseEncode, errors.KindOutOfBounds, err, "write bytes")
	}
	copy(dst, b)
	c.written = n
	return ptr, nil
}

// utf16Len counts the UTF-16 code units needed for s, which is the length
// the guest toolchain uses for its first string allocation.
func utf16Len(s string) uint32 {
	var n uint32
	for _, r := range s {
		if r >= 0x10000 {
			n += 2
		} else {
			n++
		}
	}
	return n
}

// CopyBytes returns a host-owned copy of n bytes at ptr.
func (c *Codec) CopyBytes(ptr, n uint32) ([]byte, error) {
	src, err := c.views.Bytes(ptr, n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, src)
	return out, nil
}

// CopyInt32s returns a host-owned copy of count int32 elements at ptr.
func (c *Codec) CopyInt32s(ptr, count uint32) ([]int32, error) {
	src, err := c.views.Int32s(ptr, count)
	if err != nil {
		return nil, err
	}
	return append([]int32(nil), src...), nil
}

// CopyFloat32s returns a host-owned copy of count float32 elements at ptr.
func (c *Codec) CopyFloat32s(ptr, count uint32) ([]float32, error) {
	src, err := c.views.Float32s(ptr, count)
	if err != nil {
		return nil, err
	}
	return append([]float32(nil), src...), nil
}

// CopyFloat64s returns a host-owned copy of count float64 elements at ptr.
func (c *Codec) CopyFloat64s(ptr, count uint32) ([]float64, error) {
	src, err := c.views.Float64s(ptr, count)
	if err != nil {
		return nil, err
	}
	return append([]float64(nil), src...), nil
}
