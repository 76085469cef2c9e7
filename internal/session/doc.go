// Package session is the public surface of the serialized database core:
// connections, prepared statements, leases, and result streams.
//
// ARCHITECTURE
//
// Every Connection owns exactly one native handle, one dispatch.Queue, and
// one worker goroutine. Callers on arbitrary goroutines schedule units of
// work; the worker executes them strictly in enqueue order, so the native
// handle is only ever touched by one goroutine and never concurrently.
//
//	callers ──Use/Query──▶ Queue ──▶ worker ──▶ engine.Conn
//	                         ▲                      │
//	                      Dispose ◀── teardown is the final unit
//
// Callbacks never receive the raw handle. They receive a Lease (or
// StatementLease), a proxy that is poisoned the moment the unit of work
// finishes: a stashed lease fails every call with a Disposed error instead
// of corrupting another unit's turn.
//
// Disposal is itself a unit of work. Dispose seals the queue with a teardown
// unit, so everything scheduled before it still runs, everything after it is
// rejected without consuming a queue slot, and the native handle is released
// on the worker like every other native call.
//
// Streams are lazy: building one performs no work. Each subscription
// schedules a fresh unit of work that re-executes the query. Cancellation is
// cooperative and takes effect only at checkpoints - before the unit starts
// or between produced values - never in the middle of a native call.
package session
