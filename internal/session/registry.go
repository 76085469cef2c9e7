package session

import "sync"

// registry caches prepared statements by SQL text so repeated Prepare calls
// on a connection reuse the native handle instead of recompiling.
type registry struct {
	mu    sync.Mutex
	stmts map[string]*Statement
}

func newRegistry() *registry {
	return &registry{stmts: make(map[string]*Statement)}
}

// lookup returns the cached statement for sql, or nil.
func (r *registry) lookup(sql string) *Statement {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stmts[sql]
}

// store caches s under its SQL text. If another statement was cached for the
// same text in the meantime, the existing one wins and is returned; the
// caller finalizes its duplicate.
func (r *registry) store(s *Statement) *Statement {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.stmts[s.sql]; ok {
		return existing
	}
	r.stmts[s.sql] = s
	return s
}

// remove drops s from the cache if it is the cached entry for its text.
func (r *registry) remove(s *Statement) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stmts[s.sql] == s {
		delete(r.stmts, s.sql)
	}
}

// drain empties the cache and returns every cached statement, for teardown.
func (r *registry) drain() []*Statement {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Statement, 0, len(r.stmts))
	for _, s := range r.stmts {
		out = append(out, s)
	}
	r.stmts = make(map[string]*Statement)
	return out
}
