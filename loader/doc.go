// Package loader fetches, compiles and instantiates a guest module together
// with its bridge, then runs the guest's start export.
//
// A Loader moves through a fixed sequence of states:
//
//	Unloaded -> Fetching -> Instantiating -> Running
//	                \              \
//	                 +-> Failed     +-> Failed
//
// Failed is terminal. Each Loader owns its own wazero runtime, so several
// loaders may run side by side, but a single Loader must be driven by one
// goroutine.
//
// Sources are raw bytes, files or http(s) URLs. A URL response served as
// application/wasm is validated while it streams in and fails as soon as
// the header is wrong. Any other content type is tolerated: the loader logs
// a warning and buffers the whole body before validating it. Concurrent
// fetches of the same URL within a process share one request.
package loader
