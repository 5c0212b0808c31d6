// Package bridge owns all boundary state for one guest instance and
// provides the import module the guest links against.
//
// A Bridge holds the handle table, the memory view cache, the string codec,
// the error slot and the forwarding table. Every host function the guest
// calls receives the same Bridge, so there is no global state:
//
//	br := bridge.New(bridge.Config{Table: table})
//	host, err := br.Instantiate(ctx, runtime, compiled)
//	guest, err := runtime.InstantiateModule(ctx, compiled, config)
//	err = br.Bind(guest)
//
// Guest memory and allocator exports are bound on the first host call from
// the guest, so host functions invoked while the guest is still being
// instantiated already work.
//
// Failures follow three paths. Decode errors and failures of unguarded
// entries abort the guest call: the host function panics and the error
// surfaces from the outermost guest export call. Guarded entries return
// zeroed results and park the failure in the error slot.
//
// A Bridge must be driven by one goroutine.
package bridge
