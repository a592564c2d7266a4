package client

import (
	"context"

	"github.com/pkg/errors"

	"github.com/fission-codes/cideldill/wire"
)

// Future is the deferred-result shape the awaited interception variant
// understands: a method that performs its work asynchronously returns one
// instead of the finished value, and the caller resolves it to get the
// result. The async proxy resolves it before reporting completion, so the
// server always records the settled value, not the pending handle.
type Future func() (any, error)

// ProxyAsync is the awaited flavor of Proxy: the same interception
// contract, selected by how the target is invoked rather than by a global
// mode. The only behavioral difference is that a Future-shaped method
// result is resolved before the call reports complete. Polling already
// suspends cooperatively in both flavors, since pollUntilReady sleeps
// against the caller's context.
type ProxyAsync struct {
	*Proxy
}

// WrapAsync is the awaited counterpart of Wrap: identity when debug is
// off, a *ProxyAsync when on.
func WrapAsync(v any) any {
	if !Debug.Enabled() {
		return v
	}
	return &ProxyAsync{Proxy: newProxy(v, Debug)}
}

// Call invokes the named exported method exactly as Proxy.Call does, then
// resolves a Future-shaped result before the completion report.
func (p *ProxyAsync) Call(ctx context.Context, methodName string, args ...any) (any, error) {
	method := p.rv.MethodByName(methodName)
	if !method.IsValid() {
		return nil, errors.Errorf("cideldill: %T has no exported method %q", p.target, methodName)
	}

	invoke := func(callArgs []any, _ map[string]any) (any, error) {
		return resolveFuture(callReflectMethod(method, callArgs))
	}

	return runCall(ctx, p.sw, callSpec{
		callType:   wire.CallTypeProxy,
		methodName: methodName,
		signature:  method.Type().String(),
		target:     p.target,
		args:       args,
		kwargs:     nil,
		invoke:     invoke,
	})
}

// DebugCallAsync is the awaited counterpart of DebugCall: the same inline
// interception protocol, plus Future resolution on the result.
func DebugCallAsync(ctx context.Context, first any, rest ...any) (any, error) {
	return debugCall(ctx, first, rest, true)
}

// resolveFuture settles a Future-shaped value. Anything else passes
// through untouched, so sync-returning methods behave identically under
// both proxy flavors.
func resolveFuture(v any, err error) (any, error) {
	if err != nil {
		return v, err
	}
	switch f := v.(type) {
	case Future:
		return f()
	case func() (any, error):
		return f()
	}
	return v, nil
}
