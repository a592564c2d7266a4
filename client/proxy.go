package client

import (
	"context"
	"fmt"
	"io"
	"reflect"
	"sort"

	"github.com/pkg/errors"

	"github.com/fission-codes/cideldill/wire"
)

// Proxy wraps an arbitrary target value so method calls on it run the
// interception protocol. Go has no universal operator-slot hook, so Proxy
// does not intercept indexing, arithmetic, or field reads generically:
// method-call interception via Call is the one load-bearing mechanism,
// since it is the only path that can run the call lifecycle.
// Len/Index/Equal/String are forwarding helpers for callers that want
// container-like access without interception; they return the underlying
// values unwrapped.
type Proxy struct {
	target any
	rv     reflect.Value
	sw     *Switch
}

func newProxy(v any, sw *Switch) *Proxy {
	return &Proxy{target: v, rv: reflect.ValueOf(v), sw: sw}
}

// Target returns the underlying value a Proxy wraps, used to unwrap a
// nested proxy before debug_call registers it.
func (p *Proxy) Target() any { return p.target }

// String forwards to the target's fmt.Stringer implementation if it has
// one, else falls back to a generic representation.
func (p *Proxy) String() string {
	if s, ok := p.target.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("cideldill.Proxy(%T)", p.target)
}

// Read forwards to the target's io.Reader if it implements one.
func (p *Proxy) Read(buf []byte) (int, error) {
	if r, ok := p.target.(io.Reader); ok {
		return r.Read(buf)
	}
	return 0, errors.Errorf("cideldill: %T is not an io.Reader", p.target)
}

// Write forwards to the target's io.Writer if it implements one.
func (p *Proxy) Write(buf []byte) (int, error) {
	if w, ok := p.target.(io.Writer); ok {
		return w.Write(buf)
	}
	return 0, errors.Errorf("cideldill: %T is not an io.Writer", p.target)
}

// Len forwards to the target's length, for slices, arrays, maps, strings,
// and channels. Length reads are not intercepted.
func (p *Proxy) Len() int {
	switch p.rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.String, reflect.Chan:
		return p.rv.Len()
	default:
		return 0
	}
}

// Index forwards to the target's i-th element without interception,
// returning the unwrapped value so container access does not multiply
// proxies.
func (p *Proxy) Index(i int) any {
	switch p.rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.String:
		return p.rv.Index(i).Interface()
	default:
		return nil
	}
}

// Equal reports equality against another proxy by comparing the two
// targets. Equality against a non-proxy is always false.
func (p *Proxy) Equal(other any) bool {
	if op, ok := other.(*Proxy); ok {
		return reflect.DeepEqual(p.target, op.target)
	}
	return false
}

// Sort forwards to sort.Sort if the target implements sort.Interface.
// Container protocols pass through without driving the call lifecycle.
func (p *Proxy) Sort() error {
	si, ok := p.target.(sort.Interface)
	if !ok {
		return errors.Errorf("cideldill: %T does not implement sort.Interface", p.target)
	}
	sort.Sort(si)
	return nil
}

// Call invokes the named exported method on the wrapped target, running
// the full interception protocol first. args are matched positionally to
// the method's parameters; there is no Go equivalent of keyword arguments,
// so kwargs is always empty for proxied calls. The breakpoint table and
// modify/skip/raise/replace actions behave exactly as they do on the
// inline debug_call path.
func (p *Proxy) Call(ctx context.Context, methodName string, args ...any) (any, error) {
	method := p.rv.MethodByName(methodName)
	if !method.IsValid() {
		return nil, errors.Errorf("cideldill: %T has no exported method %q", p.target, methodName)
	}

	invoke := func(callArgs []any, _ map[string]any) (any, error) {
		return callReflectMethod(method, callArgs)
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

// callReflectMethod calls fn with args converted to reflect.Values,
// returning its results as (single value or slice, error) the way the
// host's single-return convention expects: a trailing error return is
// split out and propagated; everything else is returned as-is (a single
// value unwrapped, multiple values as a []any).
func callReflectMethod(fn reflect.Value, args []any) (any, error) {
	ft := fn.Type()
	if ft.NumIn() != len(args) && !ft.IsVariadic() {
		return nil, errors.Errorf("cideldill: method expects %d args, got %d", ft.NumIn(), len(args))
	}

	in := make([]reflect.Value, len(args))
	for i, a := range args {
		paramType := ft.In(minInt(i, ft.NumIn()-1))
		if ft.IsVariadic() && i >= ft.NumIn()-1 {
			paramType = ft.In(ft.NumIn() - 1).Elem()
		}
		if a == nil {
			in[i] = reflect.Zero(paramType)
			continue
		}
		in[i] = conformToType(reflect.ValueOf(a), paramType)
	}

	out := fn.Call(in)
	return splitResults(out)
}

// conformToType converts rv to paramType when the two differ but are
// convertible, the common case for a value that round-tripped through the
// codec: CBOR's interface{} decoding widens all non-negative integers to
// uint64 regardless of the original Go type, so a modify/skip action's
// deserialized int arrives as uint64 and must be narrowed back before
// reflect.Call, which requires an exact type match.
func conformToType(rv reflect.Value, paramType reflect.Type) reflect.Value {
	if rv.Type() == paramType {
		return rv
	}
	if rv.Type().ConvertibleTo(paramType) {
		return rv.Convert(paramType)
	}
	return rv
}

// splitResults separates a trailing error return from the rest, so a
// failing invocation reports as an exception and everything else as the
// call's result.
func splitResults(out []reflect.Value) (any, error) {
	if len(out) == 0 {
		return nil, nil
	}

	last := out[len(out)-1]
	if isErrorType(last.Type()) {
		var err error
		if !last.IsNil() {
			err = last.Interface().(error)
		}
		vals := out[:len(out)-1]
		return valuesToAny(vals), err
	}
	return valuesToAny(out), nil
}

func valuesToAny(vals []reflect.Value) any {
	switch len(vals) {
	case 0:
		return nil
	case 1:
		return vals[0].Interface()
	default:
		out := make([]any, len(vals))
		for i, v := range vals {
			out[i] = v.Interface()
		}
		return out
	}
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

func isErrorType(t reflect.Type) bool {
	return t.Implements(errorType)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
