package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	golog "github.com/ipfs/go-log"
	"github.com/pkg/errors"

	cidpkg "github.com/fission-codes/cideldill/cid"
	"github.com/fission-codes/cideldill/codec"
	"github.com/fission-codes/cideldill/wire"
)

var log = golog.Logger("cideldill-client")

// slot tracks one value's serialized form alongside the CID the client
// believes it corresponds to, so a cid_not_found response can be resolved
// back to the original value and resent with bytes.
type slot struct {
	id   cidpkg.CID
	data []byte
	sv   wire.SerializedValue
}

// HTTPClient drives the inspector protocol over loopback HTTP. All
// outbound values pass through codec + CIDCache so the wire carries
// CID-only mentions whenever the cache believes the server already has
// them.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	codec   *codec.Codec
	cache   *codec.CIDCache
}

// NewHTTPClient constructs a client against baseURL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		codec:   codec.New(),
		cache:   codec.NewCIDCache(),
	}
}

// toSlot serializes v and consults the CID cache to decide whether bytes
// must be included.
func (c *HTTPClient) toSlot(v any) (*slot, error) {
	id, data, err := c.codec.CID(v)
	if err != nil {
		return nil, wrapErr(ErrSerialization, err)
	}
	sv := wire.SerializedValue{CID: id.String()}
	if !c.cache.Contains(id) {
		sv.Bytes = data
	}
	return &slot{id: id, data: data, sv: sv}, nil
}

// callSlots holds the slots backing one request's target/args/kwargs,
// keyed the same way the request itself is, so a resend can rebuild the
// request body from live slot state instead of guessing positions. Slots
// are held by pointer: resendWithBytes mutates them in place and the
// request-building closure must observe that mutation on the retry.
type callSlots struct {
	target *slot
	args   []*slot
	kwargs map[string]*slot
}

// all returns every slot in callSlots, for cache bookkeeping and eviction.
func (cs callSlots) all() []*slot {
	out := make([]*slot, 0, 1+len(cs.args)+len(cs.kwargs))
	out = append(out, cs.target)
	out = append(out, cs.args...)
	for _, s := range cs.kwargs {
		out = append(out, s)
	}
	return out
}

// StartCall posts a call/start request, resolving exactly one
// cid_not_found round-trip before treating a further error as protocol
// failure. slots must back req.Target/req.Args/req.Kwargs so a retry can
// rebuild the request with bytes re-populated after eviction.
func (c *HTTPClient) StartCall(ctx context.Context, req wire.StartRequest, slots callSlots) (wire.StartResponse, error) {
	var resp wire.StartResponse
	build := func() any {
		req.Target = slots.target.sv
		for i, s := range slots.args {
			req.Args[i] = s.sv
		}
		for k, s := range slots.kwargs {
			req.Kwargs[k] = s.sv
		}
		return req
	}
	err := c.doWithResend(ctx, "/api/call/start", build, &resp, slots.all())
	return resp, err
}

// Poll performs one GET against pollURL.
func (c *HTTPClient) Poll(ctx context.Context, pollURL string) (wire.PollResponse, error) {
	var resp wire.PollResponse
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+pollURL, nil)
	if err != nil {
		return resp, wrapErr(ErrProtocol, err)
	}
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return resp, wrapErr(ErrServerUnreachable, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode == http.StatusNotFound {
		return resp, wrapErr(ErrProtocol, errors.Errorf("poll: unknown call_id (404 at %s)", pollURL))
	}
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return resp, wrapErr(ErrProtocol, err)
	}
	return resp, nil
}

// CompleteCall posts a call/complete request, resend-on-cid_not_found as
// with StartCall. resultSlot is the zero value when the call raised and
// carries no result.
func (c *HTTPClient) CompleteCall(ctx context.Context, req wire.CompleteRequest, resultSlot *slot) (wire.CompleteResponse, error) {
	var resp wire.CompleteResponse
	build := func() any {
		if resultSlot != nil {
			sv := resultSlot.sv
			req.Result = &sv
		}
		return req
	}
	var slots []*slot
	if resultSlot != nil {
		slots = []*slot{resultSlot}
	}
	err := c.doWithResend(ctx, "/api/call/complete", build, &resp, slots)
	return resp, err
}

// RegisterCallable posts a callable/register request.
func (c *HTTPClient) RegisterCallable(ctx context.Context, req wire.RegisterRequest) error {
	var resp wire.RegisterResponse
	httpReq, err := c.newJSONRequest(ctx, "/api/callable/register", req)
	if err != nil {
		return err
	}
	return c.do(httpReq, &resp)
}

// doWithResend posts build() to path. If the server replies cid_not_found,
// it evicts the affected CIDs from the cache so the next call to build()
// picks up resendWithBytes's mutation, then retries exactly once before
// surfacing a protocol error.
func (c *HTTPClient) doWithResend(ctx context.Context, path string, build func() any, out any, slots []*slot) error {
	for attempt := 0; attempt < 2; attempt++ {
		httpReq, err := c.newJSONRequest(ctx, path, build())
		if err != nil {
			return err
		}

		raw, status, err := c.doRaw(httpReq)
		if err != nil {
			return err
		}

		var maybeErr wire.ErrorResponse
		if err := json.Unmarshal(raw, &maybeErr); err == nil && maybeErr.Error == wire.ErrCIDNotFound {
			if attempt == 1 {
				return wrapErr(ErrProtocol, errors.New("cid_not_found persisted after resend"))
			}
			resendWithBytes(slots, maybeErr.MissingCIDs, c.cache)
			log.Debugf("cideldill: resending %d cid(s) with bytes after cid_not_found", len(maybeErr.MissingCIDs))
			continue
		}
		if err == nil && maybeErr.Error == wire.ErrCIDMismatch {
			return wrapErr(ErrProtocol, errors.New("server reported cid_mismatch"))
		}

		if status >= 400 {
			return wrapErr(ErrProtocol, errors.Errorf("unexpected status %d", status))
		}

		if err := json.Unmarshal(raw, out); err != nil {
			return wrapErr(ErrProtocol, err)
		}

		for _, s := range slots {
			c.cache.Insert(s.id)
		}
		return nil
	}
	return wrapErr(ErrProtocol, errors.New("exhausted resend attempts"))
}

// resendWithBytes populates Bytes on every slot the server reported missing
// and evicts it from the cache. The caller's build() closure reads slot.sv
// on each invocation, so the next attempt produces a request carrying
// bytes.
func resendWithBytes(slots []*slot, missing []string, cache *codec.CIDCache) {
	missingSet := make(map[string]bool, len(missing))
	for _, m := range missing {
		missingSet[m] = true
	}
	for _, s := range slots {
		if missingSet[s.sv.CID] {
			cache.Evict(s.id)
			s.sv.Bytes = s.data
		}
	}
}

func (c *HTTPClient) newJSONRequest(ctx context.Context, path string, body any) (*http.Request, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, wrapErr(ErrProtocol, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, wrapErr(ErrProtocol, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *HTTPClient) do(req *http.Request, out any) error {
	raw, status, err := c.doRaw(req)
	if err != nil {
		return err
	}
	if status >= 400 {
		return wrapErr(ErrProtocol, errors.Errorf("unexpected status %d", status))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return wrapErr(ErrProtocol, err)
	}
	return nil
}

func (c *HTTPClient) doRaw(req *http.Request) ([]byte, int, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, wrapErr(ErrServerUnreachable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, wrapErr(ErrProtocol, err)
	}
	return raw, resp.StatusCode, nil
}

// Ping verifies the server is reachable, used by Switch's ON handshake.
func (c *HTTPClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return wrapErr(ErrServerUnreachable, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return wrapErr(ErrServerUnreachable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return wrapErr(ErrServerUnreachable, errors.Errorf("healthz returned %d", resp.StatusCode))
	}
	return nil
}
