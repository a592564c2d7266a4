package client

import (
	"context"
	"runtime"
	"time"

	"github.com/pkg/errors"
	"github.com/wI2L/jsondiff"

	"github.com/fission-codes/cideldill/wire"
)

// callState enumerates the phases of one intercepted call. It exists as a
// concrete value (not just a sequence of function calls) so runCall's
// transitions and their ordering guarantees are explicit and loggable.
type callState int

const (
	stateInit callState = iota
	stateStarted
	statePolling
	stateExecuting
	stateReporting
	stateDone
)

func (s callState) String() string {
	switch s {
	case stateInit:
		return "init"
	case stateStarted:
		return "started"
	case statePolling:
		return "polling"
	case stateExecuting:
		return "executing"
	case stateReporting:
		return "reporting"
	case stateDone:
		return "done"
	default:
		return "unknown"
	}
}

// invoker performs the actual host-side call once the lifecycle has
// decided it should run, given the (possibly modified) positional and
// keyword arguments.
type invoker func(args []any, kwargs map[string]any) (any, error)

// callSpec is everything runCall needs to drive one call through the
// lifecycle, shared by Proxy.Call (target is the receiver, invoke runs the
// intercepted method) and DebugCall (target is the callable itself).
type callSpec struct {
	callType   wire.CallType
	methodName string
	signature  string
	target     any
	args       []any
	kwargs     map[string]any
	invoke     invoker
}

// runCall drives the call state machine to completion: Init → Started →
// (Polling)* → Executing → Reporting → Done. It is the single function
// both Proxy.Call and DebugCall delegate to, so the ordering guarantees
// (start precedes any poll, complete sent exactly once, no two actions
// dispatched for the same call_id) are enforced in one place.
func runCall(ctx context.Context, sw *Switch, spec callSpec) (any, error) {
	state := stateInit
	hc := sw.httpClient()
	if hc == nil {
		return nil, wrapErr(ErrServerUnreachable, errors.New("debug is not ON"))
	}

	targetSlot, err := hc.toSlot(spec.target)
	if err != nil {
		return nil, err
	}
	argSlots := make([]*slot, len(spec.args))
	for i, a := range spec.args {
		s, err := hc.toSlot(a)
		if err != nil {
			return nil, err
		}
		argSlots[i] = s
	}
	kwargSlots := make(map[string]*slot, len(spec.kwargs))
	for k, v := range spec.kwargs {
		s, err := hc.toSlot(v)
		if err != nil {
			return nil, err
		}
		kwargSlots[k] = s
	}

	req := wire.StartRequest{
		CallType:   spec.callType,
		MethodName: spec.methodName,
		Signature:  spec.signature,
		CallSite:   captureCallSite(targetSlot.sv.CID),
	}
	req.Args = make([]wire.SerializedValue, len(argSlots))
	req.Kwargs = make(map[string]wire.SerializedValue, len(kwargSlots))

	startResp, err := hc.StartCall(ctx, req, callSlots{target: targetSlot, args: argSlots, kwargs: kwargSlots})
	if err != nil {
		return nil, err
	}
	callID := startResp.CallID
	state = stateStarted
	log.Debugf("cideldill: call %s %s -> %s", callID, spec.methodName, state)

	action := startResp.Action
	if action.Kind == wire.ActionPoll {
		state = statePolling
		action, err = pollUntilReady(ctx, hc, action)
		if err != nil {
			return nil, err
		}
	}

	state = stateExecuting
	log.Debugf("cideldill: call %s -> %s (action=%s)", callID, state, action.Kind)

	result, callErr := dispatch(sw, hc, spec, action)

	state = stateReporting
	reportCompletion(ctx, hc, callID, result, callErr)
	log.Debugf("cideldill: call %s -> %s", callID, stateDone)

	return result, callErr
}

// pollUntilReady polls action.PollURL on the given interval until a ready
// action arrives or the deadline (action.TimeoutMS) is exceeded, which is
// fatal to the call.
func pollUntilReady(ctx context.Context, hc *HTTPClient, action wire.Action) (wire.Action, error) {
	deadline := time.Now().Add(time.Duration(action.TimeoutMS) * time.Millisecond)
	interval := time.Duration(action.IntervalMS) * time.Millisecond
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}

	for {
		if time.Now().After(deadline) {
			return wire.Action{}, wrapErr(ErrPollTimeout, errors.Errorf("poll deadline exceeded at %s", action.PollURL))
		}

		resp, err := hc.Poll(ctx, action.PollURL)
		if err != nil {
			return wire.Action{}, err
		}
		if resp.Status == wire.PollReady {
			if resp.Action == nil {
				return wire.Action{}, wrapErr(ErrProtocol, errors.New("poll ready with no action"))
			}
			return *resp.Action, nil
		}

		select {
		case <-ctx.Done():
			return wire.Action{}, wrapErr(ErrPollTimeout, ctx.Err())
		case <-time.After(interval):
		}
	}
}

// dispatch executes the action chosen for this call. It returns the call's
// result (possibly a synthesized skip/raise outcome) and the error that
// should ultimately propagate to the caller, if any.
func dispatch(sw *Switch, hc *HTTPClient, spec callSpec, action wire.Action) (any, error) {
	switch action.Kind {
	case wire.ActionContinue:
		return spec.invoke(spec.args, spec.kwargs)

	// Server-authored values carried on modify/skip actions always arrive
	// with bytes: the protocol gives the client no way to ask the server
	// for a cid-only value's bytes, so that direction has no
	// not-found/resend round trip, unlike client-to-server traffic.
	case wire.ActionModify:
		args := make([]any, len(spec.args))
		copy(args, spec.args)
		for i, sv := range action.ModifiedArgs {
			if i >= len(args) {
				break
			}
			var v any
			if err := hc.codec.Deserialize(sv.Bytes, &v); err != nil {
				return nil, wrapErr(ErrSerialization, err)
			}
			args[i] = v
		}
		kwargs := make(map[string]any, len(spec.kwargs))
		for k, v := range spec.kwargs {
			kwargs[k] = v
		}
		for k, sv := range action.ModifiedKwargs {
			var v any
			if err := hc.codec.Deserialize(sv.Bytes, &v); err != nil {
				return nil, wrapErr(ErrSerialization, err)
			}
			kwargs[k] = v
		}
		logArgDiff(spec.methodName, spec.args, args)
		return spec.invoke(args, kwargs)

	case wire.ActionSkip:
		var fake any
		if err := hc.codec.Deserialize(action.FakeResult.Bytes, &fake); err != nil {
			return nil, wrapErr(ErrSerialization, err)
		}
		return fake, nil

	case wire.ActionRaise:
		return nil, wrapErr(ErrHostTarget, sw.reconstructException(action.ExceptionType, action.ExceptionMessage))

	case wire.ActionReplace:
		inv, ok := sw.lookupReplaceTarget(action.FunctionName)
		if !ok {
			return nil, wrapErr(ErrReplaceUnknown, errors.Errorf("replace: unknown callable %q", action.FunctionName))
		}
		return inv(spec.args, spec.kwargs)

	default:
		return nil, wrapErr(ErrProtocol, errors.Errorf("unknown action kind %q", action.Kind))
	}
}

// logArgDiff writes a human-readable diff of the original vs. operator-
// modified arguments at debug level, so an operator watching logs can see
// exactly what a "modify" action changed without cross-referencing the
// inspector UI.
func logArgDiff(methodName string, before, after []any) {
	patch, err := jsondiff.Compare(before, after)
	if err != nil {
		log.Debugf("cideldill: %s: modify diff unavailable: %s", methodName, err)
		return
	}
	if len(patch) == 0 {
		return
	}
	log.Debugf("cideldill: %s: modify applied %d arg change(s): %s", methodName, len(patch), patch.String())
}

// reportCompletion posts call/complete. Reporting failures are logged and
// swallowed: they never displace the outcome already decided by dispatch.
func reportCompletion(ctx context.Context, hc *HTTPClient, callID string, result any, callErr error) {
	req := wire.CompleteRequest{CallID: callID}

	if callErr != nil {
		req.Status = wire.StatusException
		req.Exception = &wire.ExceptionInfo{
			Type:    "error",
			Message: callErr.Error(),
		}
		if _, err := hc.CompleteCall(ctx, req, nil); err != nil {
			log.Warnf("cideldill: call %s: failed to report exception completion: %s", callID, err)
		}
		return
	}

	req.Status = wire.StatusSuccess
	resultSlot, err := hc.toSlot(result)
	if err != nil {
		log.Warnf("cideldill: call %s: failed to serialize result for reporting: %s", callID, err)
		if _, err := hc.CompleteCall(ctx, req, nil); err != nil {
			log.Warnf("cideldill: call %s: failed to report completion: %s", callID, err)
		}
		return
	}
	if _, err := hc.CompleteCall(ctx, req, resultSlot); err != nil {
		log.Warnf("cideldill: call %s: failed to report completion: %s", callID, err)
	}
}

// captureCallSite walks the stack the way a host debugger would, recording
// a handful of frames above runCall's own package.
func captureCallSite(targetCID string) wire.CallSite {
	const maxFrames = 16
	pcs := make([]uintptr, maxFrames)
	n := runtime.Callers(4, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	var trace []wire.Frame
	for {
		f, more := frames.Next()
		trace = append(trace, wire.Frame{
			File:     f.File,
			Line:     f.Line,
			Function: f.Function,
		})
		if !more {
			break
		}
	}

	return wire.CallSite{
		Timestamp:  time.Now(),
		TargetCID:  targetCID,
		StackTrace: trace,
	}
}
