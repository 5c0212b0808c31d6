// Package errors provides structured error types for the bridge.
//
// Errors are categorized by Phase (where on the boundary the error occurred)
// and Kind (error category). The Error type carries the boundary function
// name, a field path and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseHost, errors.KindHostFailure).
//		Import("__wbg_fetch_0123456789abcdef").
//		Detail("request rejected").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.InvalidUTF8(errors.PhaseDecode, ptr, raw)
//	err := errors.OutOfBounds(errors.PhaseMemory, ptr, n, size)
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
