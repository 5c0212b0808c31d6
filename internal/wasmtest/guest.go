package wasmtest

// Allocator names the functions added by BumpAllocator
type Allocator struct {
	Malloc  uint32
	Realloc uint32
	Top     uint32 // global holding the next free address
}

// BumpAllocator adds a bump allocator exported as __wbindgen_malloc(size)
// and __wbindgen_realloc(ptr, old, new). Allocations are 8-byte aligned
// and grow memory on demand. realloc only supports the most recent
// allocation, which is all the string encoder ever resizes.
func BumpAllocator(m *Module, base int32) Allocator {
	return bumpAllocator(m, base, false)
}

// AlignedBumpAllocator is BumpAllocator with the newer signatures that take
// a trailing alignment argument: malloc(size, align) and
// realloc(ptr, old, new, align). The alignment is ignored.
func AlignedBumpAllocator(m *Module, base int32) Allocator {
	return bumpAllocator(m, base, true)
}

func bumpAllocator(m *Module, base int32, aligned bool) Allocator {
	top := m.Global(base, true)

	mallocParams := Params(I32)
	reallocParams := Params(I32, I32, I32)
	if aligned {
		mallocParams = Params(I32, I32)
		reallocParams = Params(I32, I32, I32, I32)
	}
	ptr := uint32(len(mallocParams))
	limit := ptr + 1

	malloc := m.Func("__wbindgen_malloc", mallocParams, Params(I32), Params(I32, I32), Code().
		GlobalGet(top).LocalSet(ptr).
		GlobalGet(top).LocalGet(0).I32Add().I32Const(7).I32Add().I32Const(-8).I32And().GlobalSet(top).
		MemorySize().I32Const(16).I32Shl().LocalSet(limit).
		GlobalGet(top).LocalGet(limit).I32GtU().
		If().
		GlobalGet(top).LocalGet(limit).I32Sub().I32Const(16).I32ShrU().I32Const(1).I32Add().
		MemoryGrow().Drop().
		End().
		LocalGet(ptr))

	body := Code().LocalGet(0).GlobalSet(top).LocalGet(2)
	if aligned {
		body.LocalGet(3)
	}
	realloc := m.Func("__wbindgen_realloc", reallocParams, Params(I32), nil, body.Call(malloc))

	return Allocator{Malloc: malloc, Realloc: realloc, Top: top}
}
