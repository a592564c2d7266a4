package server

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestCallableRegistryRegisterIsIdempotentByName(t *testing.T) {
	r := newCallableRegistry()

	r.Register(Callable{Name: "add", Signature: "func(int,int)int", TargetCID: "cid-1"})
	r.Register(Callable{Name: "add", Signature: "func(int,int)int", TargetCID: "cid-2"})

	got, ok := r.Lookup("add")
	assert.Assert(t, ok)
	assert.Equal(t, got.TargetCID, "cid-2")
}

func TestCallableRegistryLookupMiss(t *testing.T) {
	r := newCallableRegistry()
	_, ok := r.Lookup("nope")
	assert.Assert(t, !ok)
}
