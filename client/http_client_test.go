package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/fission-codes/cideldill/wire"
)

func TestStartCallResendsWithBytesOnCIDNotFound(t *testing.T) {
	var calls int
	var secondBody wire.StartRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var body wire.StartRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		if calls == 1 {
			_ = json.NewEncoder(w).Encode(wire.ErrorResponse{Error: wire.ErrCIDNotFound, MissingCIDs: []string{body.Target.CID}})
			return
		}
		secondBody = body
		_ = json.NewEncoder(w).Encode(wire.StartResponse{CallID: "call-1", Action: wire.Action{Kind: wire.ActionContinue}})
	}))
	defer ts.Close()

	hc := NewHTTPClient(ts.URL)
	targetSlot, err := hc.toSlot("target")
	assert.NilError(t, err)
	argSlot, err := hc.toSlot(2)
	assert.NilError(t, err)

	// Pre-warm the cache so the first transmission is cid-only, the exact
	// state a server restart invalidates.
	hc.cache.Insert(targetSlot.id)
	targetSlot.sv.Bytes = nil

	req := wire.StartRequest{
		MethodName: "add",
		Args:       make([]wire.SerializedValue, 1),
		Kwargs:     map[string]wire.SerializedValue{},
	}
	resp, err := hc.StartCall(context.Background(), req, callSlots{target: targetSlot, args: []*slot{argSlot}})
	assert.NilError(t, err)
	assert.Equal(t, resp.CallID, "call-1")
	assert.Equal(t, calls, 2)

	// The retry must carry the evicted value's bytes; once it succeeds the
	// CID is believed known again.
	assert.Assert(t, len(secondBody.Target.Bytes) > 0)
	assert.Assert(t, hc.cache.Contains(targetSlot.id))
}

func TestStartCallFailsAfterPersistentCIDNotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(wire.ErrorResponse{Error: wire.ErrCIDNotFound, MissingCIDs: []string{"whatever"}})
	}))
	defer ts.Close()

	hc := NewHTTPClient(ts.URL)
	targetSlot, err := hc.toSlot("target")
	assert.NilError(t, err)

	req := wire.StartRequest{MethodName: "add", Args: []wire.SerializedValue{}, Kwargs: map[string]wire.SerializedValue{}}
	_, err = hc.StartCall(context.Background(), req, callSlots{target: targetSlot})
	assert.ErrorContains(t, err, "persisted after resend")
}

func TestPingSucceedsAgainstHealthz(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	hc := NewHTTPClient(ts.URL)
	assert.NilError(t, hc.Ping(context.Background()))
}

func TestPingFailsAgainstUnreachableServer(t *testing.T) {
	hc := NewHTTPClient("http://127.0.0.1:1")
	err := hc.Ping(context.Background())
	assert.Assert(t, err != nil)
}

func TestToSlotOmitsBytesOnceCached(t *testing.T) {
	hc := NewHTTPClient("http://127.0.0.1:5000")

	first, err := hc.toSlot(42)
	assert.NilError(t, err)
	assert.Assert(t, len(first.sv.Bytes) > 0)

	hc.cache.Insert(first.id)

	second, err := hc.toSlot(42)
	assert.NilError(t, err)
	assert.Assert(t, len(second.sv.Bytes) == 0)
	assert.Equal(t, second.sv.CID, first.sv.CID)
}
