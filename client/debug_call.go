package client

import (
	"context"
	"fmt"
	"reflect"
	"runtime"

	"github.com/pkg/errors"

	"github.com/fission-codes/cideldill/wire"
)

// DebugCall is the inline call primitive: it performs exactly the same
// interception protocol as a proxy method invocation but for a callable
// the caller has not wrapped. If first is a string it is a display alias
// and rest[0] is the callable; otherwise first is the callable and rest
// are its arguments. A proxy passed as the callable is unwrapped to its
// target first, so interception happens once.
//
// When debug is off, DebugCall invokes the callable directly: no
// wrapping, no HTTP traffic.
func DebugCall(ctx context.Context, first any, rest ...any) (any, error) {
	return debugCall(ctx, first, rest, false)
}

// debugCall is the shared core of DebugCall and DebugCallAsync; awaited
// selects whether Future-shaped results are resolved before reporting.
func debugCall(ctx context.Context, first any, rest []any, awaited bool) (any, error) {
	alias, fn, args := resolveDebugCallArgs(first, rest)

	switch p := fn.(type) {
	case *ProxyAsync:
		fn = p.Target()
	case *Proxy:
		fn = p.Target()
	}

	if !Debug.Enabled() {
		result, err := callReflectMethod(reflect.ValueOf(fn), args)
		if awaited {
			return resolveFuture(result, err)
		}
		return result, err
	}

	fnValue := reflect.ValueOf(fn)
	if fnValue.Kind() != reflect.Func {
		return nil, errors.Errorf("cideldill: debug_call target %T is not callable", fn)
	}

	invoke := func(callArgs []any, _ map[string]any) (any, error) {
		result, err := callReflectMethod(fnValue, callArgs)
		if awaited {
			return resolveFuture(result, err)
		}
		return result, err
	}

	if Debug.markRegistered(alias, fn) {
		if err := registerCallable(ctx, Debug, alias, fn); err != nil {
			return nil, err
		}
	}
	Debug.registerReplaceTarget(alias, invoke)

	return runCall(ctx, Debug, callSpec{
		callType:   wire.CallTypeInline,
		methodName: alias,
		signature:  fnValue.Type().String(),
		target:     fn,
		args:       args,
		kwargs:     nil,
		invoke:     invoke,
	})
}

// resolveDebugCallArgs splits the leading alias (when present) from the
// callable and its arguments.
func resolveDebugCallArgs(first any, rest []any) (alias string, fn any, args []any) {
	if s, ok := first.(string); ok && len(rest) > 0 {
		return s, rest[0], rest[1:]
	}
	return defaultAlias(first), first, rest
}

// defaultAlias names a callable that was passed without an explicit
// alias.
func defaultAlias(fn any) string {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return fmt.Sprintf("%T", fn)
	}
	if name := runtimeFuncName(v); name != "" {
		return name
	}
	return v.Type().String()
}

// runtimeFuncName resolves fn's symbol name via the program counter.
func runtimeFuncName(fn reflect.Value) string {
	if fn.Kind() != reflect.Func {
		return ""
	}
	rf := runtime.FuncForPC(fn.Pointer())
	if rf == nil {
		return ""
	}
	return rf.Name()
}

// registerCallable posts callable/register for fn under alias.
func registerCallable(ctx context.Context, sw *Switch, alias string, fn any) error {
	hc := sw.httpClient()
	if hc == nil {
		return wrapErr(ErrServerUnreachable, errors.New("debug is not ON"))
	}
	targetSlot, err := hc.toSlot(fn)
	if err != nil {
		return err
	}

	return hc.RegisterCallable(ctx, wire.RegisterRequest{
		Name:      alias,
		Signature: reflect.TypeOf(fn).String(),
		TargetCID: targetSlot.id.String(),
	})
}
