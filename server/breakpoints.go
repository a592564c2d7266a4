package server

import (
	"sync"

	"github.com/fission-codes/cideldill/wire"
)

// BreakpointTable is the server-side set of {match: callable-name} /
// {match: all} / {match: on-exception} rules. Operator-facing surfaces
// mutate it; the call/start path only queries it.
type BreakpointTable struct {
	mu    sync.RWMutex
	rules []wire.Breakpoint
}

func newBreakpointTable() *BreakpointTable {
	return &BreakpointTable{}
}

// Set replaces the entire rule set.
func (t *BreakpointTable) Set(rules []wire.Breakpoint) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rules = append([]wire.Breakpoint(nil), rules...)
}

// Add appends a single rule.
func (t *BreakpointTable) Add(rule wire.Breakpoint) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rules = append(t.rules, rule)
}

// MatchesStart reports whether a call with the given method name should
// pause at call/start time, i.e. an "all" or name-matching breakpoint is
// set. On-exception rules are reported separately by BreaksOnException;
// the call/start handler pauses on those as well.
func (t *BreakpointTable) MatchesStart(methodName string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, r := range t.rules {
		switch r.Match {
		case wire.MatchAll:
			return true
		case wire.MatchCallable:
			if r.Name == methodName {
				return true
			}
		}
	}
	return false
}

// BreaksOnException reports whether an {match: on-exception} rule is set.
func (t *BreakpointTable) BreaksOnException() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, r := range t.rules {
		if r.Match == wire.MatchOnException {
			return true
		}
	}
	return false
}
