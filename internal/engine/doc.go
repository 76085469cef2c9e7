// Package engine defines the boundary to the native embedded storage engine.
//
// The engine is a synchronous, stateful, non-thread-safe collaborator: a
// connection handle and its prepared-statement sub-handles. Nothing in this
// package provides synchronization - the contract is that a Conn and every
// Stmt and Rows derived from it are touched by at most one goroutine at a
// time. The dispatch worker is that goroutine; see internal/dispatch.
//
// Two implementations exist: the production SQLite adapter in this package
// (driver-level mattn/go-sqlite3, so prepare/bind/step/reset map one to one)
// and the scripted stub in internal/testutil used to instrument call order
// in tests.
//
// Cancellation deliberately does not reach into native calls: adapter
// methods check their context on entry and then run the synchronous native
// call to completion. Cooperative checkpoints between produced values are
// the dispatch layer's job.
package engine
