package server_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/fission-codes/cideldill/cid"
	"github.com/fission-codes/cideldill/server"
	"github.com/fission-codes/cideldill/wire"
)

func newTestServer(t *testing.T) (*server.Server, *httptest.Server) {
	t.Helper()
	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"})
	assert.NilError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func postJSON(t *testing.T, url string, body any, out any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	assert.NilError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	assert.NilError(t, err)
	defer resp.Body.Close()

	if out != nil {
		assert.NilError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func sv(data []byte) wire.SerializedValue {
	id, err := cid.Of(data)
	if err != nil {
		panic(err)
	}
	return wire.SerializedValue{CID: id.String(), Bytes: data}
}

func TestCallStartWithoutBreakpointContinues(t *testing.T) {
	_, ts := newTestServer(t)

	req := wire.StartRequest{
		CallType:   wire.CallTypeProxy,
		MethodName: "add",
		Target:     sv([]byte("target")),
		Args:       []wire.SerializedValue{sv([]byte("2")), sv([]byte("3"))},
		Kwargs:     map[string]wire.SerializedValue{},
	}
	var resp wire.StartResponse
	httpResp := postJSON(t, ts.URL+"/api/call/start", req, &resp)

	assert.Equal(t, httpResp.StatusCode, http.StatusOK)
	assert.Equal(t, resp.Action.Kind, wire.ActionContinue)
	assert.Assert(t, resp.CallID != "")
}

func TestCallStartMissingCIDReturnsNotFound(t *testing.T) {
	_, ts := newTestServer(t)

	unknown, _ := cid.Of([]byte("never sent"))
	req := wire.StartRequest{
		MethodName: "add",
		Target:     wire.SerializedValue{CID: unknown.String()}, // bytes omitted, server has never seen it
		Args:       []wire.SerializedValue{},
		Kwargs:     map[string]wire.SerializedValue{},
	}

	var errResp wire.ErrorResponse
	postJSON(t, ts.URL+"/api/call/start", req, &errResp)

	assert.Equal(t, errResp.Error, wire.ErrCIDNotFound)
	assert.Equal(t, len(errResp.MissingCIDs), 1)
}

func TestCallStartPausesOnBreakpoint(t *testing.T) {
	srv, ts := newTestServer(t)
	srv.Breakpoints().Add(wire.Breakpoint{Match: wire.MatchCallable, Name: "add"})

	req := wire.StartRequest{
		MethodName: "add",
		Target:     sv([]byte("target")),
		Args:       []wire.SerializedValue{sv([]byte("2"))},
		Kwargs:     map[string]wire.SerializedValue{},
	}
	var resp wire.StartResponse
	postJSON(t, ts.URL+"/api/call/start", req, &resp)

	assert.Equal(t, resp.Action.Kind, wire.ActionPoll)
	assert.Assert(t, resp.Action.PollURL != "")

	// Poll before any action is delivered: still waiting.
	pollResp, err := http.Get(ts.URL + resp.Action.PollURL)
	assert.NilError(t, err)
	defer pollResp.Body.Close()
	var poll wire.PollResponse
	assert.NilError(t, json.NewDecoder(pollResp.Body).Decode(&poll))
	assert.Equal(t, poll.Status, wire.PollWaiting)

	// Deliver continue, then poll again: ready.
	assert.NilError(t, srv.DeliverAction(resp.CallID, wire.Action{Kind: wire.ActionContinue}))

	pollResp2, err := http.Get(ts.URL + resp.Action.PollURL)
	assert.NilError(t, err)
	defer pollResp2.Body.Close()
	var poll2 wire.PollResponse
	assert.NilError(t, json.NewDecoder(pollResp2.Body).Decode(&poll2))
	assert.Equal(t, poll2.Status, wire.PollReady)
	assert.Equal(t, poll2.Action.Kind, wire.ActionContinue)
}

// An on-exception rule pauses every call at start: the server cannot know
// at start time which calls will raise, and completion carries no action
// channel, so start is the only intervention point.
func TestCallStartPausesOnExceptionRule(t *testing.T) {
	srv, ts := newTestServer(t)
	srv.Breakpoints().Add(wire.Breakpoint{Match: wire.MatchOnException})

	req := wire.StartRequest{
		MethodName: "anything",
		Target:     sv([]byte("target")),
		Args:       []wire.SerializedValue{},
		Kwargs:     map[string]wire.SerializedValue{},
	}
	var resp wire.StartResponse
	postJSON(t, ts.URL+"/api/call/start", req, &resp)

	assert.Equal(t, resp.Action.Kind, wire.ActionPoll)
}

func TestPollUnknownCallIDIs404(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/poll/does-not-exist")
	assert.NilError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, resp.StatusCode, http.StatusNotFound)
}

func TestCallCompleteRejectsDuplicate(t *testing.T) {
	_, ts := newTestServer(t)

	var start wire.StartResponse
	postJSON(t, ts.URL+"/api/call/start", wire.StartRequest{
		MethodName: "add",
		Target:     sv([]byte("t")),
		Args:       []wire.SerializedValue{},
		Kwargs:     map[string]wire.SerializedValue{},
	}, &start)

	complete := wire.CompleteRequest{CallID: start.CallID, Status: wire.StatusSuccess, Result: &wire.SerializedValue{CID: sv([]byte("5")).CID, Bytes: []byte("5")}}

	var ok1 wire.CompleteResponse
	resp1 := postJSON(t, ts.URL+"/api/call/complete", complete, &ok1)
	assert.Equal(t, resp1.StatusCode, http.StatusOK)

	resp2 := postJSON(t, ts.URL+"/api/call/complete", complete, nil)
	assert.Equal(t, resp2.StatusCode, http.StatusConflict)
}

func TestCallableRegisterIsIdempotent(t *testing.T) {
	_, ts := newTestServer(t)

	req := wire.RegisterRequest{Name: "add", Signature: "func(int,int)int", TargetCID: "cid-1"}
	var resp wire.RegisterResponse
	httpResp := postJSON(t, ts.URL+"/api/callable/register", req, &resp)
	assert.Equal(t, httpResp.StatusCode, http.StatusOK)
	assert.Equal(t, resp.Status, "ok")

	httpResp2 := postJSON(t, ts.URL+"/api/callable/register", req, &resp)
	assert.Equal(t, httpResp2.StatusCode, http.StatusOK)
}
