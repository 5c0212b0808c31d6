package memview

import (
	"math"
	"unsafe"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/errors"
)

// Buffer exposes the current backing bytes of a linear memory.
// The returned slice must alias the memory, not copy it.
type Buffer interface {
	Backing() []byte
}

// Cache holds lazily created overlays over a Buffer and drops them when the
// backing array changes.
type Cache struct {
	buf Buffer

	base unsafe.Pointer
	size int
	cap  int

	u8  []byte
	i32 []int32
	f32 []float32
	f64 []float64

	generation uint64
}

// New creates a cache over buf. No view is built until first requested.
func New(buf Buffer) *Cache {
	return &Cache{buf: buf}
}

// Generation counts the backing reallocations observed so far.
func (c *Cache) Generation() uint64 {
	return c.generation
}

// refresh drops all overlays if the backing array moved or resized and
// returns the current backing.
func (c *Cache) refresh() []byte {
	b := c.buf.Backing()
	base := unsafe.Pointer(unsafe.SliceData(b))
	if base == c.base && len(b) == c.size && cap(b) == c.cap {
		return b
	}

	if c.base != nil || c.size != 0 {
		c.generation++
		Logger().Debug("linear memory reallocated, dropping views",
			zap.Int("old_size", c.size),
			zap.Int("new_size", len(b)),
			zap.Uint64("generation", c.generation))
	}

	c.base, c.size, c.cap = base, len(b), cap(b)
	c.u8, c.i32, c.f32, c.f64 = nil, nil, nil, nil
	return b
}

// Uint8 returns a byte view over all of linear memory.
func (c *Cache) Uint8() []byte {
	b := c.refresh()
	if c.u8 == nil {
		c.u8 = b
	}
	return c.u8
}

// Int32 returns an int32 view over all of linear memory.
func (c *Cache) Int32() []int32 {
	b := c.refresh()
	if c.i32 == nil {
		c.i32 = overlay[int32](b)
	}
	return c.i32
}

// Float32 returns a float32 view over all of linear memory.
func (c *Cache) Float32() []float32 {
	b := c.refresh()
	if c.f32 == nil {
		c.f32 = overlay[float32](b)
	}
	return c.f32
}

// Float64 returns a float64 view over all of linear memory.
func (c *Cache) Float64() []float64 {
	b := c.refresh()
	if c.f64 == nil {
		c.f64 = overlay[float64](b)
	}
	return c.f64
}

func overlay[T int32 | float32 | float64](b []byte) []T {
	var zero T
	n := len(b) / int(unsafe.Sizeof(zero))
	if n == 0 {
		return []T{}
	}
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(b))), n)
}

// Bytes returns the n bytes at ptr without copying.
func (c *Cache) Bytes(ptr, n uint32) ([]byte, error) {
	u8 := c.Uint8()
	if uint64(ptr)+uint64(n) > uint64(len(u8)) {
		return nil, errors.OutOfBounds(errors.PhaseMemory, ptr, n, len(u8))
	}
	return u8[ptr : ptr+n : ptr+n], nil
}

// Int32s returns count int32 elements starting at byte address ptr.
func (c *Cache) Int32s(ptr, count uint32) ([]int32, error) {
	if err := c.check(ptr, count, 4); err != nil {
		return nil, err
	}
	i := ptr / 4
	return c.Int32()[i : i+count : i+count], nil
}

// Float32s returns count float32 elements starting at byte address ptr.
func (c *Cache) Float32s(ptr, count uint32) ([]float32, error) {
	if err := c.check(ptr, count, 4); err != nil {
		return nil, err
	}
	i := ptr / 4
	return c.Float32()[i : i+count : i+count], nil
}

// Float64s returns count float64 elements starting at byte address ptr.
func (c *Cache) Float64s(ptr, count uint32) ([]float64, error) {
	if err := c.check(ptr, count, 8); err != nil {
		return nil, err
	}
	i := ptr / 8
	return c.Float64()[i : i+count : i+count], nil
}

func (c *Cache) check(ptr, count, stride uint32) error {
	if ptr%stride != 0 {
		return errors.Misaligned(errors.PhaseMemory, ptr, stride)
	}
	size := len(c.refresh())
	if uint64(ptr)+uint64(count)*uint64(stride) > uint64(size) {
		return errors.OutOfBounds(errors.PhaseMemory, ptr, count*stride, size)
	}
	return nil
}

// PutInt32 stores v at the 4-byte aligned address addr.
func (c *Cache) PutInt32(addr uint32, v int32) error {
	s, err := c.Int32s(addr, 1)
	if err != nil {
		return err
	}
	s[0] = v
	return nil
}

// PutUint32 stores v at the 4-byte aligned address addr.
func (c *Cache) PutUint32(addr, v uint32) error {
	return c.PutInt32(addr, int32(v))
}

// PutFloat64 stores v at the 8-byte aligned address addr.
func (c *Cache) PutFloat64(addr uint32, v float64) error {
	s, err := c.Float64s(addr, 1)
	if err != nil {
		return err
	}
	s[0] = v
	return nil
}

// Int32At loads the int32 at the 4-byte aligned address addr.
func (c *Cache) Int32At(addr uint32) (int32, error) {
	s, err := c.Int32s(addr, 1)
	if err != nil {
		return 0, err
	}
	return s[0], nil
}

// Float64At loads the float64 at the 8-byte aligned address addr.
func (c *Cache) Float64At(addr uint32) (float64, error) {
	s, err := c.Float64s(addr, 1)
	if err != nil {
		return math.NaN(), err
	}
	return s[0], nil
}
