// Package wasmbridge runs wasm-bindgen style core WebAssembly modules on
// wazero with a Go host on the other side of the boundary.
//
// A guest compiled by wasm-bindgen does not see host values directly. It
// holds 32-bit handles into a host-side table, passes strings as pointer and
// length pairs in its linear memory, and calls back into the host through
// imports from the "wbg" namespace. This module provides that host side.
//
// # Architecture Overview
//
//	wasmbridge/          Root package, documentation only
//	├── value/           Host values: the tagged union behind every handle
//	├── heap/            Handle table with reserved constants and a free list
//	├── memview/         Cached typed views over guest linear memory
//	├── codec/           UTF-8 string transfer with guest-side allocation
//	├── closure/         Extern closures and their destroy-during-call rules
//	├── errslot/         Capture of host failures for the guest to collect
//	├── calltable/       Forwarded host functions and closure manifests
//	├── bridge/          Core intrinsics and the "wbg" import module
//	├── hostlib/         A small object, JSON, console and timer library
//	├── loader/          Fetch, compile, instantiate and start
//	├── errors/          Structured error types for debugging
//	└── cmd/run/         The wbg command line runner
//
// # Quick Start
//
//	table := calltable.New()
//	table.MustRegister("add", func(a, b uint32) uint32 { return a + b })
//
//	l := loader.New(loader.Config{Bridge: bridge.Config{Table: table}})
//	defer l.Close(ctx)
//
//	if err := l.Load(ctx, loader.FromFile("app_bg.wasm")); err != nil {
//	    log.Fatal(err)
//	}
//	res, err := l.Bridge().Call(ctx, "compute", 5, 3)
//
// Imports named "__wbg_add_<hash>" resolve to the "add" entry. Every import
// the guest declares must resolve before instantiation starts; unresolved
// ones are reported together in one error.
//
// # Thread Safety
//
// A bridge and everything it owns is used by one goroutine at a time. Host
// functions run on the goroutine that called into the guest, so no locking
// is done at the boundary.
//
// # Memory Model
//
// Guest memory can grow during any call into the guest. Views over it are
// revalidated against the current buffer before each use, so a host function
// never reads through a view made stale by growth.
package wasmbridge
