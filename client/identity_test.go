package client_test

import (
	"context"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/fission-codes/cideldill/client"
)

type thing struct{ N int }

func TestWrapIsIdentityWhenDebugOff(t *testing.T) {
	client.Debug.SetMode("OFF")

	v := &thing{N: 7}
	wrapped := client.Wrap(v)

	assert.Assert(t, wrapped == any(v))
}

func TestDebugCallInvokesDirectlyWhenOff(t *testing.T) {
	client.Debug.SetMode("OFF")

	add := func(a, b int) int { return a + b }
	result, err := client.DebugCall(context.Background(), add, 2, 3)
	assert.NilError(t, err)
	assert.Equal(t, result, 5)
}
