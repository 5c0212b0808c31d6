// Package calltable holds the forwarding entries a guest imports to reach
// host operations.
//
// Each entry maps one boundary import to a Go function. Functions are bound
// by reflection: their parameter and result types decide how raw boundary
// numbers are lifted and lowered.
//
//	t := calltable.New()
//	t.Register("log", func(msg calltable.Str) { fmt.Println(msg) })
//	t.Register("get_element", func(doc value.Value, id calltable.Str) (value.Value, error) {
//		...
//	}, calltable.Guarded(), calltable.Optional())
//
// Parameter types:
//
//	context.Context    first parameter only, no boundary value
//	calltable.Boundary injected marshalling state, no boundary value
//	value.Value        i32 handle, borrowed
//	calltable.Owned    i32 handle, released after lifting
//	string kinds       i32 ptr, i32 len, strict UTF-8
//	[]byte kinds       i32 ptr, i32 len, copied
//	calltable.RetPtr   i32 address for out-of-band results
//	int32, uint32      i32
//	int64, uint64      i64
//	float32            f32
//	float64            f64
//	bool               i32, nonzero is true
//
// At most one result is allowed, optionally followed by an error. A
// value.Value result is minted and returned as a handle; with Optional,
// undefined and null come back as handle 0.
//
// Generated import names carry a hash suffix, "__wbg_<name>_<16 hex>". An
// import resolves to the entry registered under its exact name first, then
// under <name>.
package calltable
