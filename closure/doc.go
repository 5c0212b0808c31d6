// Package closure lets guest closures be called from the host.
//
// A guest closure is identified by two opaque tokens (a, b) and a
// destructor index. Wrapping it produces a Closure, a host callable that
// forwards each invocation to a guest shim as (a, b, args...). The guest
// environment must stay alive while an invocation is in flight even if the
// guest drops its last reference during that invocation, so a Closure keeps
// a reference count: the invocation holds one, and the destructor runs only
// when the count reaches zero.
//
// States:
//
//	Live -> Invoking -> Live         normal call
//	Live -> Destroyed                guest drop while idle
//	Invoking -> Destroyed            drop during a call, destructor after it returns
//
// Invoking a destroyed closure fails with a closure_destroyed error, and a
// reentrant call while Invoking is rejected. Closures are not safe for
// concurrent use.
package closure
