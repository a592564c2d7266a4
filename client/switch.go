package client

import (
	"context"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
)

// Info is the small information object SetMode returns.
type Info struct {
	Enabled          bool   `json:"enabled"`
	ServerURL        string `json:"server_url"`
	ConnectionStatus string `json:"connection_status"`
}

// registrationKey dedups debug_call registrations by (alias, identity of
// the callable).
type registrationKey struct {
	name string
	ptr  uintptr
}

// Switch holds the process-wide "enabled?" flag, the HTTP client handle,
// and the inline-call registration set: one explicit state object with an
// init/teardown pair instead of scattered package-level globals. Concurrent
// readers see a consistent snapshot via atomic.Bool; flips are rare, so an
// atomic read is all the enabled check needs.
type Switch struct {
	enabled atomic.Bool

	mu   sync.RWMutex
	http *HTTPClient
	cfg  Config

	registered sync.Map // registrationKey -> struct{}
	exceptions sync.Map // string (type name) -> func(string) error
	callables  sync.Map // name -> invoker (debug_call registrations for "replace")
}

// Debug is the process-wide switch.
var Debug = newSwitch()

func newSwitch() *Switch {
	return &Switch{}
}

// Enabled reports whether debug mode is currently on.
func (s *Switch) Enabled() bool { return s.enabled.Load() }

// httpClient returns the active HTTP client, or nil if debug is off.
func (s *Switch) httpClient() *HTTPClient {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.http
}

// SetMode is the single debug entry point. mode is "ON"/"OFF"
// (case-insensitive); any other value is rejected. Turning on verifies
// reachability with a bounded retry-with-backoff handshake and fails
// loudly once the retries are exhausted.
func (s *Switch) SetMode(mode string) (Info, error) {
	switch strings.ToUpper(mode) {
	case "ON":
		return s.turnOn()
	case "OFF":
		return s.turnOff(), nil
	default:
		return Info{}, errors.Errorf("cideldill: unknown mode %q, want ON or OFF", mode)
	}
}

func (s *Switch) turnOn() (Info, error) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		return Info{}, err
	}

	hc := NewHTTPClient(cfg.ServerURL)

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 5 * time.Second
	err := backoff.Retry(func() error {
		return hc.Ping(context.Background())
	}, b)
	if err != nil {
		log.Errorf("cideldill: ON handshake failed against %s: %s", cfg.ServerURL, err)
		return Info{}, wrapErr(ErrServerUnreachable, err)
	}

	s.mu.Lock()
	s.http = hc
	s.cfg = cfg
	s.mu.Unlock()
	s.enabled.Store(true)

	log.Infof("cideldill: debug ON, server=%s", cfg.ServerURL)
	return Info{Enabled: true, ServerURL: cfg.ServerURL, ConnectionStatus: "connected"}, nil
}

func (s *Switch) turnOff() Info {
	s.enabled.Store(false)
	s.registered.Range(func(k, _ any) bool {
		s.registered.Delete(k)
		return true
	})
	s.callables.Range(func(k, _ any) bool {
		s.callables.Delete(k)
		return true
	})

	s.mu.Lock()
	url := s.cfg.ServerURL
	s.http = nil
	s.mu.Unlock()

	log.Infof("cideldill: debug OFF")
	return Info{Enabled: false, ServerURL: url, ConnectionStatus: "disconnected"}
}

// Wrap is the host-side wrapping primitive: identity when debug is off
// (same object reference, no HTTP traffic), a *Proxy when on.
func Wrap(v any) any {
	if !Debug.Enabled() {
		return v
	}
	return newProxy(v, Debug)
}

// RegisterException installs a constructor for a named exception kind,
// used to reconstruct a raise action's exception from its type name and
// message. Unknown names fall back to a generic error.
func (s *Switch) RegisterException(typeName string, ctor func(message string) error) {
	s.exceptions.Store(typeName, ctor)
}

func (s *Switch) reconstructException(typeName, message string) error {
	if v, ok := s.exceptions.Load(typeName); ok {
		return v.(func(string) error)(message)
	}
	return errors.Errorf("%s: %s", typeName, message)
}

// markRegistered records that (name, fn) has been registered with the
// server, returning true if this is the first time. identityOf extracts a
// stable pointer for fn the way reflect.Value.Pointer() does for funcs.
func (s *Switch) markRegistered(name string, fn any) bool {
	key := registrationKey{name: name, ptr: identityOf(fn)}
	_, loaded := s.registered.LoadOrStore(key, struct{}{})
	return !loaded
}

func identityOf(fn any) uintptr {
	return reflect.ValueOf(fn).Pointer()
}

// registerReplaceTarget records fn under name so a server "replace" action
// naming it can be dispatched locally.
func (s *Switch) registerReplaceTarget(name string, inv invoker) {
	s.callables.Store(name, inv)
}

func (s *Switch) lookupReplaceTarget(name string) (invoker, bool) {
	v, ok := s.callables.Load(name)
	if !ok {
		return nil, false
	}
	return v.(invoker), true
}
