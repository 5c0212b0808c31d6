package memview

import (
	"github.com/tetratelabs/wazero/api"
)

// WazeroBuffer adapts a wazero memory to Buffer.
type WazeroBuffer struct {
	Mem api.Memory
}

// Backing returns the whole of linear memory. wazero hands out a slice of
// its internal buffer, so writes through it are visible to the guest.
func (w WazeroBuffer) Backing() []byte {
	if w.Mem == nil {
		return nil
	}
	b, _ := w.Mem.Read(0, w.Mem.Size())
	return b
}

// SliceBuffer is a Buffer over a plain byte slice that callers may replace
// to simulate growth.
type SliceBuffer struct {
	Data []byte
}

// Backing returns the current slice.
func (s *SliceBuffer) Backing() []byte {
	return s.Data
}

// Grow replaces the backing with a larger copy, the way a memory.grow
// reallocates.
func (s *SliceBuffer) Grow(delta int) {
	next := make([]byte, len(s.Data)+delta)
	copy(next, s.Data)
	s.Data = next
}
