package server

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/fission-codes/cideldill/wire"
)

// CallStatus is the lifecycle state of one call record.
type CallStatus string

const (
	StatusRunning   CallStatus = "running"
	StatusPaused    CallStatus = "paused"
	StatusCompleted CallStatus = "completed"
	StatusFailed    CallStatus = "failed"
)

// CallRecord is the server's bookkeeping for one intercepted call.
type CallRecord struct {
	CallID     string
	CallType   wire.CallType
	MethodName string
	TargetCID  string
	Args       []wire.SerializedValue
	Kwargs     map[string]wire.SerializedValue
	CallSite   wire.CallSite
	StartedAt  time.Time
	Status     CallStatus
	ResultCID  string
	Exception  *wire.ExceptionInfo

	completed bool
}

// ErrDuplicateCompletion is returned when a second call/complete arrives
// for a call_id that has already been completed.
var ErrDuplicateCompletion = errors.New("server: call already completed")

// CallTable holds every in-flight and completed call record for the
// process lifetime, keyed by call_id. It retains enough state to accept
// exactly one completion per call_id.
type CallTable struct {
	mu      sync.Mutex
	records map[string]*CallRecord
}

// NewCallTable constructs an empty CallTable.
func NewCallTable() *CallTable {
	return &CallTable{records: make(map[string]*CallRecord)}
}

// Start creates and stores a new record for callID.
func (t *CallTable) Start(rec *CallRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records[rec.CallID] = rec
}

// Get returns the record for callID, if any.
func (t *CallTable) Get(callID string) (*CallRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.records[callID]
	return r, ok
}

// Len reports how many call records the table holds, in-flight and
// completed alike.
func (t *CallTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}

// Complete marks callID as finished with the given outcome. A second call
// for the same callID returns ErrDuplicateCompletion without mutating
// state.
func (t *CallTable) Complete(callID string, status CallStatus, resultCID string, exception *wire.ExceptionInfo) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[callID]
	if !ok {
		return ErrUnknownCallID
	}
	if rec.completed {
		return ErrDuplicateCompletion
	}

	rec.completed = true
	rec.Status = status
	rec.ResultCID = resultCID
	rec.Exception = exception
	return nil
}

// MarkPaused transitions a record to the paused status after a breakpoint
// match decides to pause the call.
func (t *CallTable) MarkPaused(callID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rec, ok := t.records[callID]; ok {
		rec.Status = StatusPaused
	}
}
