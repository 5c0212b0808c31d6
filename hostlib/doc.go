// Package hostlib is a small host library for guests: property bags, JSON
// documents, arrays, byte buffers, console logging and a frame/timer
// scheduler. Everything is exposed as forwarding entries:
//
//	table := calltable.New()
//	lib := hostlib.New()
//	if err := lib.Install(table); err != nil {
//		return err
//	}
//
// Scheduled callbacks never run on their own. The host drives them with
// Scheduler.RunFrame and Scheduler.Advance from the goroutine that owns the
// bridge.
package hostlib
