// Package heap implements the handle table that lets guest code refer to
// host values by small integers.
//
// Slots 0 through 31 are reserved and slots 32 through 35 hold the constant
// values undefined, null, true and false. These reserved handles are never
// released. Every other handle is minted on demand and reused through a
// free list threaded through the vacant slots, so the next Mint after a
// Release returns the handle just released.
//
//	h := hp.Mint(value.String("hello"))
//	v := hp.Take(h) // releases h
//
// Handles carry no generation: a stale handle that has been reused silently
// refers to the new value. The table is not safe for concurrent use; the
// guest boundary is single-threaded.
package heap
