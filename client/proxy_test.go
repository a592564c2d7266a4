package client

import (
	"context"
	"reflect"
	"testing"

	"gotest.tools/v3/assert"
)

type greeter struct{ name string }

func (g greeter) String() string { return "greeter:" + g.name }

func (g greeter) Greet(who string) string { return "hello " + who }

func (g greeter) DivMod(a, b int) (int, int, error) {
	if b == 0 {
		return 0, 0, errDivByZero
	}
	return a / b, a % b, nil
}

var errDivByZero = errorString("division by zero")

type errorString string

func (e errorString) Error() string { return string(e) }

func TestProxyStringForwardsToStringer(t *testing.T) {
	p := newProxy(greeter{name: "x"}, newSwitch())
	assert.Equal(t, p.String(), "greeter:x")
}

func TestProxyStringFallsBackWithoutStringer(t *testing.T) {
	p := newProxy(42, newSwitch())
	assert.Equal(t, p.String(), "cideldill.Proxy(int)")
}

func TestProxyLenAndIndexForwardToContainer(t *testing.T) {
	p := newProxy([]string{"a", "b", "c"}, newSwitch())
	assert.Equal(t, p.Len(), 3)
	assert.Equal(t, p.Index(1), "b")
}

func TestProxyLenOnNonContainerIsZero(t *testing.T) {
	p := newProxy(7, newSwitch())
	assert.Equal(t, p.Len(), 0)
}

func TestProxyEqualAgainstNonProxyIsFalse(t *testing.T) {
	p := newProxy(greeter{name: "x"}, newSwitch())
	assert.Assert(t, !p.Equal(greeter{name: "x"}))
}

func TestProxyEqualDefersToTargets(t *testing.T) {
	sw := newSwitch()
	a := newProxy(greeter{name: "x"}, sw)
	b := newProxy(greeter{name: "x"}, sw)
	c := newProxy(greeter{name: "y"}, sw)

	assert.Assert(t, a.Equal(b))
	assert.Assert(t, !a.Equal(c))
}

func TestProxyCallUnknownMethod(t *testing.T) {
	p := newProxy(greeter{}, newSwitch())
	_, err := p.Call(context.Background(), "NoSuchMethod")
	assert.ErrorContains(t, err, "no exported method")
}

func TestCallReflectMethodSplitsTrailingError(t *testing.T) {
	g := greeter{}
	fn := reflect.ValueOf(g).MethodByName("DivMod")

	result, err := callReflectMethod(fn, []any{7, 2})
	assert.NilError(t, err)
	assert.DeepEqual(t, result, []any{3, 1})

	_, err = callReflectMethod(fn, []any{7, 0})
	assert.ErrorContains(t, err, "division by zero")
}

func TestCallReflectMethodVariadic(t *testing.T) {
	sum := func(xs ...int) int {
		total := 0
		for _, x := range xs {
			total += x
		}
		return total
	}

	result, err := callReflectMethod(reflect.ValueOf(sum), []any{1, 2, 3})
	assert.NilError(t, err)
	assert.Equal(t, result, 6)
}

func TestCallReflectMethodArityMismatch(t *testing.T) {
	add := func(a, b int) int { return a + b }
	_, err := callReflectMethod(reflect.ValueOf(add), []any{1})
	assert.ErrorContains(t, err, "expects 2 args")
}

// CBOR decoding widens integers to uint64; conformToType must narrow them
// back to the parameter's declared type before reflect.Call.
func TestConformToTypeNarrowsWidenedIntegers(t *testing.T) {
	got := conformToType(reflect.ValueOf(uint64(10)), reflect.TypeOf(int(0)))
	assert.Equal(t, got.Interface(), 10)
}
