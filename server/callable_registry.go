package server

import "sync"

// Callable is a registered {name, signature, target-cid} triple, the unit
// breakpoints match against.
type Callable struct {
	Name      string
	Signature string
	TargetCID string
}

// CallableRegistry tracks known callables, keyed by name. Registration is
// idempotent: registering the same name again overwrites the prior entry
// rather than erroring.
type CallableRegistry struct {
	mu    sync.RWMutex
	byName map[string]Callable
}

func newCallableRegistry() *CallableRegistry {
	return &CallableRegistry{byName: make(map[string]Callable)}
}

// Register records or updates a callable's entry.
func (r *CallableRegistry) Register(c Callable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[c.Name] = c
}

// Lookup returns the callable registered under name, if any.
func (r *CallableRegistry) Lookup(name string) (Callable, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byName[name]
	return c, ok
}
