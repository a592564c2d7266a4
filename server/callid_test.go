package server

import (
	"strings"
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

func TestCallIDGeneratorFormat(t *testing.T) {
	g := newCallIDGenerator()
	id := g.Next()
	assert.Assert(t, strings.Contains(id, "."))
	assert.Assert(t, strings.Contains(id, "-"))
}

func TestCallIDGeneratorSequenceWithinSameSecond(t *testing.T) {
	fixed := time.Unix(1_700_000_000, 0)
	g := &callIDGenerator{now: func() time.Time { return fixed }}

	first := g.Next()
	second := g.Next()
	third := g.Next()

	assert.Assert(t, first != second)
	assert.Assert(t, second != third)
	assert.Assert(t, strings.HasSuffix(first, "-0"))
	assert.Assert(t, strings.HasSuffix(second, "-1"))
	assert.Assert(t, strings.HasSuffix(third, "-2"))
}

func TestCallIDGeneratorResetsSequenceOnNewSecond(t *testing.T) {
	sec := int64(1_700_000_000)
	g := &callIDGenerator{now: func() time.Time { return time.Unix(sec, 0) }}

	first := g.Next()
	assert.Assert(t, strings.HasSuffix(first, "-0"))

	sec++
	second := g.Next()
	assert.Assert(t, strings.HasSuffix(second, "-0"))
}
