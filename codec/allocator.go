package codec

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-bridge/errors"
)

// Default export names of the guest allocator
const (
	MallocExport  = "__wbindgen_malloc"
	ReallocExport = "__wbindgen_realloc"
)

// ExportAllocator calls the guest's exported allocator functions.
// Both the (size) and (size, align) malloc signatures are accepted, and
// likewise for realloc.
type ExportAllocator struct {
	malloc       api.Function
	realloc      api.Function
	mallocAlign  bool
	reallocAlign bool
}

// NewExportAllocator wraps the malloc export and the optional realloc
// export. It fails if malloc is nil or either signature is unrecognized.
func NewExportAllocator(malloc, realloc api.Function) (*ExportAllocator, error) {
	if malloc == nil {
		return nil, errors.MissingExport(errors.PhaseLinking, MallocExport)
	}
	a := &ExportAllocator{malloc: malloc, realloc: realloc}

	switch n := len(malloc.Definition().ParamTypes()); n {
	case 1:
	case 2:
		a.mallocAlign = true
	default:
		return nil, errors.InvalidInput(errors.PhaseLinking, "malloc export must take (size) or (size, align)")
	}

	if realloc != nil {
		switch n := len(realloc.Definition().ParamTypes()); n {
		case 3:
		case 4:
			a.reallocAlign = true
		default:
			return nil, errors.InvalidInput(errors.PhaseLinking, "realloc export must take (ptr, old, new) or (ptr, old, new, align)")
		}
	}
	return a, nil
}

// Malloc allocates size bytes in guest memory.
func (a *ExportAllocator) Malloc(ctx context.Context, size uint32) (uint32, error) {
	var (
		res []uint64
		err error
	)
	if a.mallocAlign {
		res, err = a.malloc.Call(ctx, api.EncodeU32(size), 1)
	} else {
		res, err = a.malloc.Call(ctx, api.EncodeU32(size))
	}
	if err != nil {
		return 0, errors.AllocationFailed(errors.PhaseEncode, size, err)
	}
	return api.DecodeU32(res[0]), nil
}

// Realloc resizes the allocation at ptr from oldSize to newSize bytes.
func (a *ExportAllocator) Realloc(ctx context.Context, ptr, oldSize, newSize uint32) (uint32, error) {
	if a.realloc == nil {
		return 0, errors.MissingExport(errors.PhaseEncode, ReallocExport)
	}
	var (
		res []uint64
		err error
	)
	if a.reallocAlign {
		res, err = a.realloc.Call(ctx, api.EncodeU32(ptr), api.EncodeU32(oldSize), api.EncodeU32(newSize), 1)
	} else {
		res, err = a.realloc.Call(ctx, api.EncodeU32(ptr), api.EncodeU32(oldSize), api.EncodeU32(newSize))
	}
	if err != nil {
		return 0, errors.AllocationFailed(errors.PhaseEncode, newSize, err)
	}
	return api.DecodeU32(res[0]), nil
}

// ReallocFunc returns Realloc, or nil when the guest exports no realloc so
// that Encode takes the exact-size path.
func (a *ExportAllocator) ReallocFunc() ReallocFunc {
	if a.realloc == nil {
		return nil
	}
	return a.Realloc
}
