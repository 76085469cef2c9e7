// Package dispatch implements the per-connection operation queue.
//
// Every touch of a native database handle is funneled through exactly one
// worker goroutine draining one FIFO queue. The queue is the only
// synchronization construct in the system: no mutex guards the handle itself,
// because no two units of work can ever be in flight at the same time.
//
// ARCHITECTURE:
//
// Single-Writer Drain Loop:
// A Worker dequeues units of work one at a time and runs them to a terminal
// state. This ensures:
// - Submission order equals execution order (strict FIFO)
// - At most one unit executes against the handle at any instant
// - A failing unit never affects later units or the worker itself
//
// Unit Lifecycle:
//
//	Pending -> Running -> {Completed | Failed | Cancelled}
//	Pending -> Cancelled (signal fired before dequeue; body never runs)
//
// Terminal states are final and are reported to the unit's completion sink
// exactly once. Cancellation is cooperative: it is observed immediately
// before a unit starts and at checkpoints between produced values, never in
// the middle of a native call.
//
// Logical Clock:
// All units are stamped with a monotonic seq from Clock.Next(). Ordering
// assertions and traces use seq, never wall-clock timestamps.
package dispatch
