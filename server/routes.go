package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	cidpkg "github.com/fission-codes/cideldill/cid"
	"github.com/fission-codes/cideldill/wire"
)

// registerRoutes wires the four protocol endpoints onto mux. Four fixed
// paths don't warrant a router dependency.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/call/start", s.handleCallStart)
	mux.HandleFunc("/api/poll/", s.handlePoll)
	mux.HandleFunc("/api/call/complete", s.handleCallComplete)
	mux.HandleFunc("/api/callable/register", s.handleCallableRegister)
}

// ingestResult is what ingestValue resolves a SerializedValue to.
type ingestResult struct {
	id       cidpkg.CID
	missing  bool
	mismatch bool
}

// ingestValue resolves one {cid,bytes?} wire value against the content
// store: stores bytes when present (after the hash check), or confirms the
// store already has it when bytes are absent.
func (s *Server) ingestValue(sv wire.SerializedValue) (ingestResult, error) {
	id, err := cidpkg.Parse(sv.CID)
	if err != nil {
		return ingestResult{}, err
	}

	if len(sv.Bytes) > 0 {
		if err := s.content.Put(id, sv.Bytes); err != nil {
			if err == ErrCIDMismatch {
				return ingestResult{id: id, mismatch: true}, nil
			}
			return ingestResult{}, err
		}
		return ingestResult{id: id}, nil
	}

	if !s.content.Has(id) {
		return ingestResult{id: id, missing: true}, nil
	}
	return ingestResult{id: id}, nil
}

// ingestAll resolves target, args, and kwargs together, returning a
// cid_not_found/cid_mismatch ErrorResponse if any fail. Missing CIDs are
// all collected so the client can resend every one in a single retry, not
// just the first.
func (s *Server) ingestAll(target wire.SerializedValue, args []wire.SerializedValue, kwargs map[string]wire.SerializedValue) (*wire.ErrorResponse, error) {
	var missing []string
	var allValues []wire.SerializedValue
	allValues = append(allValues, target)
	allValues = append(allValues, args...)
	for _, v := range kwargs {
		allValues = append(allValues, v)
	}

	for _, v := range allValues {
		res, err := s.ingestValue(v)
		if err != nil {
			return nil, err
		}
		if res.mismatch {
			return &wire.ErrorResponse{Error: wire.ErrCIDMismatch}, nil
		}
		if res.missing {
			missing = append(missing, v.CID)
		}
	}

	if len(missing) > 0 {
		return &wire.ErrorResponse{Error: wire.ErrCIDNotFound, MissingCIDs: missing}, nil
	}
	return nil, nil
}

func (s *Server) handleCallStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req wire.StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request", http.StatusBadRequest)
		return
	}

	if errResp, err := s.ingestAll(req.Target, req.Args, req.Kwargs); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	} else if errResp != nil {
		writeJSON(w, http.StatusOK, errResp)
		return
	}

	callID := s.ids.Next()
	rec := &CallRecord{
		CallID:     callID,
		CallType:   req.CallType,
		MethodName: req.MethodName,
		TargetCID:  req.Target.CID,
		Args:       req.Args,
		Kwargs:     req.Kwargs,
		CallSite:   req.CallSite,
		StartedAt:  time.Now(),
		Status:     StatusRunning,
	}
	s.calls.Start(rec)
	s.metrics.callsStarted.Inc()

	// An on-exception rule pauses every call at start: whether it will
	// raise cannot be known until it runs, and completion carries no action
	// channel, so start time is the only point an operator can intervene.
	if s.breaks.MatchesStart(req.MethodName) || s.breaks.BreaksOnException() {
		s.calls.MarkPaused(callID)
		s.pauses.Create(callID)
		s.metrics.callsPaused.Inc()

		writeJSON(w, http.StatusOK, wire.StartResponse{
			CallID: callID,
			Action: wire.Action{
				Kind:       wire.ActionPoll,
				PollURL:    "/api/poll/" + callID,
				IntervalMS: 200,
				TimeoutMS:  30_000,
			},
		})
		return
	}

	writeJSON(w, http.StatusOK, wire.StartResponse{
		CallID: callID,
		Action: wire.Action{Kind: wire.ActionContinue},
	})
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	callID := strings.TrimPrefix(r.URL.Path, "/api/poll/")
	if callID == "" {
		http.NotFound(w, r)
		return
	}
	if !s.pauses.Exists(callID) {
		http.NotFound(w, r)
		return
	}

	if action, ok := s.pauses.TryTake(callID); ok {
		writeJSON(w, http.StatusOK, wire.PollResponse{Status: wire.PollReady, Action: &action})
		return
	}

	writeJSON(w, http.StatusOK, wire.PollResponse{Status: wire.PollWaiting})
}

func (s *Server) handleCallComplete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req wire.CompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request", http.StatusBadRequest)
		return
	}

	var resultCID string
	if req.Result != nil {
		res, err := s.ingestValue(*req.Result)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if res.mismatch {
			writeJSON(w, http.StatusOK, wire.ErrorResponse{Error: wire.ErrCIDMismatch})
			return
		}
		if res.missing {
			writeJSON(w, http.StatusOK, wire.ErrorResponse{Error: wire.ErrCIDNotFound, MissingCIDs: []string{req.Result.CID}})
			return
		}
		resultCID = req.Result.CID
	}

	status := StatusCompleted
	if req.Status == wire.StatusException {
		status = StatusFailed
	}

	if err := s.calls.Complete(req.CallID, status, resultCID, req.Exception); err != nil {
		if err == ErrDuplicateCompletion {
			http.Error(w, "call already completed", http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	if rec, ok := s.calls.Get(req.CallID); ok {
		log.Debugf("cideldill: call %s (%s) started %s", req.CallID, rec.MethodName,
			humanize.RelTime(rec.StartedAt, time.Now(), "ago", "from now"))
	}

	if status == StatusFailed {
		s.metrics.callsFailed.Inc()
	} else {
		s.metrics.callsCompleted.Inc()
	}

	writeJSON(w, http.StatusOK, wire.CompleteResponse{Status: "ok"})
}

func (s *Server) handleCallableRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req wire.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request", http.StatusBadRequest)
		return
	}

	s.callables.Register(Callable{Name: req.Name, Signature: req.Signature, TargetCID: req.TargetCID})
	writeJSON(w, http.StatusOK, wire.RegisterResponse{Status: "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// DeliverAction stores action for callID, the operation operator-facing
// surfaces call to resolve a pause.
func (s *Server) DeliverAction(callID string, action wire.Action) error {
	return s.pauses.Deliver(callID, action)
}
