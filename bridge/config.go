package bridge

import (
	"github.com/wippyai/wasm-bridge/calltable"
	"github.com/wippyai/wasm-bridge/closure"
	"github.com/wippyai/wasm-bridge/codec"
	"github.com/wippyai/wasm-bridge/errslot"
)

// Config holds bridge configuration.
type Config struct {
	// Table supplies forwarding entries and closure wrapper specs.
	// Nil means an empty table.
	Table *calltable.Table

	// MallocExport names the guest allocator. Default "__wbindgen_malloc".
	MallocExport string

	// ReallocExport names the guest reallocator. Absent exports fall back
	// to exact-size string encoding. Default "__wbindgen_realloc".
	ReallocExport string

	// DtorDispatchExport names the guest export that runs closure
	// destructors by table index. Default "__wbindgen_dtor_dispatch".
	DtorDispatchExport string

	// ExnStoreExport names the optional guest export that receives failure
	// handles. Default "__wbindgen_exn_store".
	ExnStoreExport string

	// DisableExnStore keeps failures in the host slot even when the guest
	// exports ExnStoreExport.
	DisableExnStore bool
}

// DefaultConfig returns the default export names.
func DefaultConfig() Config {
	return Config{
		MallocExport:       codec.MallocExport,
		ReallocExport:      codec.ReallocExport,
		DtorDispatchExport: closure.DtorDispatchExport,
		ExnStoreExport:     errslot.ExnStoreExport,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MallocExport == "" {
		c.MallocExport = d.MallocExport
	}
	if c.ReallocExport == "" {
		c.ReallocExport = d.ReallocExport
	}
	if c.DtorDispatchExport == "" {
		c.DtorDispatchExport = d.DtorDispatchExport
	}
	if c.ExnStoreExport == "" {
		c.ExnStoreExport = d.ExnStoreExport
	}
	if c.Table == nil {
		c.Table = calltable.New()
	}
	return c
}
