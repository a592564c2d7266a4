package codec_test

import (
	"testing"

	"gotest.tools/v3/assert"

	cidpkg "github.com/fission-codes/cideldill/cid"
	"github.com/fission-codes/cideldill/codec"
)

func TestCIDCacheMissUntilInsert(t *testing.T) {
	cache := codec.NewCIDCache()
	id, err := cidpkg.Of([]byte("some value"))
	assert.NilError(t, err)

	assert.Assert(t, !cache.Contains(id))

	cache.Insert(id)
	assert.Assert(t, cache.Contains(id))
	assert.Equal(t, cache.Len(), 1)
}

func TestCIDCacheEvictReturnsToMiss(t *testing.T) {
	cache := codec.NewCIDCache()
	id, err := cidpkg.Of([]byte("evict me"))
	assert.NilError(t, err)

	cache.Insert(id)
	assert.Assert(t, cache.Contains(id))

	cache.Evict(id)
	assert.Assert(t, !cache.Contains(id))
	assert.Equal(t, cache.Len(), 0)
}

func TestCIDCacheDistinguishesDistinctValues(t *testing.T) {
	cache := codec.NewCIDCache()
	a, err := cidpkg.Of([]byte("a"))
	assert.NilError(t, err)
	b, err := cidpkg.Of([]byte("b"))
	assert.NilError(t, err)

	cache.Insert(a)
	assert.Assert(t, cache.Contains(a))
	assert.Assert(t, !cache.Contains(b))
}
