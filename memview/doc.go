// Package memview caches typed views over guest linear memory.
//
// Linear memory may be reallocated whenever the guest grows it, which
// invalidates every slice previously taken over the old backing array. A
// Cache records the identity of the backing array its overlays were built
// from and rebuilds them on the first request after a change:
//
//	views := memview.New(memview.WazeroBuffer{Mem: mod.Memory()})
//	raw, err := views.Bytes(ptr, n)
//	nums, err := views.Float64s(ptr, count)
//
// Slices returned by a Cache alias guest memory. They are valid until the
// next call into the guest; copy anything that must outlive it.
//
// Typed overlays use the host's native byte order, which matches guest
// memory on little-endian hosts only.
//
// A Cache is not safe for concurrent use.
package memview
