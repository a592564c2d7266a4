package cid_test

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/fission-codes/cideldill/cid"
)

func TestOfIsDeterministic(t *testing.T) {
	a, err := cid.Of([]byte("hello"))
	assert.NilError(t, err)
	b, err := cid.Of([]byte("hello"))
	assert.NilError(t, err)
	assert.Assert(t, cid.Equal(a, b))
}

func TestOfDiffersOnDifferentBytes(t *testing.T) {
	a, err := cid.Of([]byte("hello"))
	assert.NilError(t, err)
	b, err := cid.Of([]byte("world"))
	assert.NilError(t, err)
	assert.Assert(t, !cid.Equal(a, b))
}

func TestStringParseRoundTrip(t *testing.T) {
	id, err := cid.Of([]byte("round trip me"))
	assert.NilError(t, err)

	parsed, err := cid.Parse(id.String())
	assert.NilError(t, err)
	assert.Assert(t, cid.Equal(id, parsed))
}

func TestMarshalTextUnmarshalTextRoundTrip(t *testing.T) {
	id, err := cid.Of([]byte("marshal me"))
	assert.NilError(t, err)

	text, err := id.MarshalText()
	assert.NilError(t, err)

	var out cid.CID
	assert.NilError(t, out.UnmarshalText(text))
	assert.Assert(t, cid.Equal(id, out))
}

func TestZeroValueIsZero(t *testing.T) {
	var id cid.CID
	assert.Assert(t, id.IsZero())
}

func TestMarshalTextRejectsZeroValue(t *testing.T) {
	var id cid.CID
	_, err := id.MarshalText()
	assert.ErrorContains(t, err, "cannot marshal zero value")
}
