package session

import (
	"sync"

	"github.com/roach88/strand/internal/engine"
)

// Hooks fans the native engine's single callback slots out to ordered
// observer lists. Observers are invoked in registration order, on the worker
// goroutine, synchronously inside the native call that triggered them - so
// they must not schedule units of work on the same connection and wait.
//
// Registration is allowed at any time, including after Open; observers added
// later simply see later events.
type Hooks struct {
	mu        sync.Mutex
	update    []func(op int, db, table string, rowid int64)
	commit    []func() error
	rollback  []func()
	authorize []func(action int, arg1, arg2, arg3 string) engine.AuthResult
}

// NewHooks creates an empty observer set.
func NewHooks() *Hooks {
	return &Hooks{}
}

// OnUpdate registers an observer for row insert/update/delete events.
func (h *Hooks) OnUpdate(fn func(op int, db, table string, rowid int64)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.update = append(h.update, fn)
}

// OnCommit registers a commit observer. Any observer returning a non-nil
// error vetoes the commit; remaining observers still run.
func (h *Hooks) OnCommit(fn func() error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commit = append(h.commit, fn)
}

// OnRollback registers a rollback observer.
func (h *Hooks) OnRollback(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rollback = append(h.rollback, fn)
}

// OnAuthorize registers an authorizer. The first observer returning a
// verdict other than AuthAllow decides.
func (h *Hooks) OnAuthorize(fn func(action int, arg1, arg2, arg3 string) engine.AuthResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.authorize = append(h.authorize, fn)
}

// engineSet builds the single-slot HookSet the native engine accepts. The
// closures snapshot the observer lists at fire time, so late registrations
// take effect without re-registering with the engine.
func (h *Hooks) engineSet() engine.HookSet {
	return engine.HookSet{
		Update: func(op int, db, table string, rowid int64) {
			for _, fn := range h.snapshotUpdate() {
				fn(op, db, table, rowid)
			}
		},
		Commit: func() error {
			var veto error
			for _, fn := range h.snapshotCommit() {
				if err := fn(); err != nil && veto == nil {
					veto = err
				}
			}
			return veto
		},
		Rollback: func() {
			for _, fn := range h.snapshotRollback() {
				fn()
			}
		},
		Authorize: func(action int, arg1, arg2, arg3 string) engine.AuthResult {
			for _, fn := range h.snapshotAuthorize() {
				if verdict := fn(action, arg1, arg2, arg3); verdict != engine.AuthAllow {
					return verdict
				}
			}
			return engine.AuthAllow
		},
	}
}

func (h *Hooks) snapshotUpdate() []func(op int, db, table string, rowid int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append(([]func(op int, db, table string, rowid int64))(nil), h.update...)
}

func (h *Hooks) snapshotCommit() []func() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]func() error(nil), h.commit...)
}

func (h *Hooks) snapshotRollback() []func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append(([]func())(nil), h.rollback...)
}

func (h *Hooks) snapshotAuthorize() []func(action int, arg1, arg2, arg3 string) engine.AuthResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]func(action int, arg1, arg2, arg3 string) engine.AuthResult(nil), h.authorize...)
}
