package server

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/fission-codes/cideldill/wire"
)

// ErrUnknownCallID is returned when an operator action targets a call_id
// the controller has no rendezvous for.
var ErrUnknownCallID = errors.New("server: unknown call_id")

// ErrAlreadyDelivered is returned by Deliver when an action has already
// been stored for this call_id; no action is ever consumed twice.
var ErrAlreadyDelivered = errors.New("server: action already delivered for this call")

// Rendezvous is the server-side state for one paused call: a one-shot
// channel an operator-delivered action arrives on, and a guard against
// double delivery.
type Rendezvous struct {
	CallID    string
	CreatedAt time.Time

	once sync.Once
	ch   chan wire.Action
}

func newRendezvous(callID string) *Rendezvous {
	return &Rendezvous{CallID: callID, CreatedAt: time.Now(), ch: make(chan wire.Action, 1)}
}

// PauseController pools paused calls keyed by call_id, resolved explicitly
// by operator-delivered actions. Each rendezvous is an isolated cell;
// multiple calls may be paused concurrently without contending on each
// other.
type PauseController struct {
	mu    sync.Mutex
	table map[string]*Rendezvous
}

func newPauseController() *PauseController {
	return &PauseController{table: make(map[string]*Rendezvous)}
}

// Create opens a new rendezvous for callID. An existing rendezvous for the
// same callID is replaced without error.
func (pc *PauseController) Create(callID string) *Rendezvous {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	r := newRendezvous(callID)
	pc.table[callID] = r
	return r
}

// Deliver stores action A for callID, where the next TryTake picks it up.
// Delivering twice for the same call_id is rejected, not queued.
func (pc *PauseController) Deliver(callID string, action wire.Action) error {
	pc.mu.Lock()
	r, ok := pc.table[callID]
	pc.mu.Unlock()
	if !ok {
		return ErrUnknownCallID
	}

	delivered := true
	r.once.Do(func() {
		delivered = false
		r.ch <- action
	})
	if delivered {
		return ErrAlreadyDelivered
	}
	return nil
}

// TryTake returns the delivered action for callID without blocking, if one
// has arrived, removing the rendezvous on success. The boolean is false if
// no action has been delivered yet.
func (pc *PauseController) TryTake(callID string) (wire.Action, bool) {
	pc.mu.Lock()
	r, ok := pc.table[callID]
	pc.mu.Unlock()
	if !ok {
		return wire.Action{}, false
	}

	select {
	case action := <-r.ch:
		pc.mu.Lock()
		delete(pc.table, callID)
		pc.mu.Unlock()
		return action, true
	default:
		return wire.Action{}, false
	}
}

// Exists reports whether a rendezvous for callID is still open.
func (pc *PauseController) Exists(callID string) bool {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	_, ok := pc.table[callID]
	return ok
}

// Abandon removes a rendezvous without delivering an action (operational
// hygiene; not part of the wire protocol). Nothing in the server calls it;
// the periodic cleanup goes through Sweep.
func (pc *PauseController) Abandon(callID string) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	delete(pc.table, callID)
}

// CallIDs returns the call_ids of every currently open rendezvous, for
// operator-facing listings (e.g. "which calls are paused right now").
func (pc *PauseController) CallIDs() []string {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	ids := make([]string, 0, len(pc.table))
	for callID := range pc.table {
		ids = append(ids, callID)
	}
	return ids
}

// Sweep removes every rendezvous older than maxAge, returning the call_ids
// it abandoned. It is the server-side counterpart of the client's poll
// deadline: an operator who never delivers an action for a paused call
// should not leak that rendezvous for the life of the process. Unlike the
// content store, the pause table can be garbage collected safely, since an
// abandoned pause has no client waiting on its state.
func (pc *PauseController) Sweep(maxAge time.Duration) []string {
	cutoff := time.Now().Add(-maxAge)
	pc.mu.Lock()
	defer pc.mu.Unlock()

	var abandoned []string
	for callID, r := range pc.table {
		if r.CreatedAt.Before(cutoff) {
			delete(pc.table, callID)
			abandoned = append(abandoned, callID)
		}
	}
	return abandoned
}
