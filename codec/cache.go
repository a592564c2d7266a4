package codec

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"

	cidpkg "github.com/fission-codes/cideldill/cid"
)

// defaultCIDCacheCapacity bounds the client's "server has this cid"
// belief set.
const defaultCIDCacheCapacity = 10_000

// bloomRebuildFPP is the false-positive rate at which the Bloom pre-filter
// is rebuilt from the live LRU contents.
const bloomRebuildFPP = 0.05

// CIDCache is the client's bounded LRU of CIDs it believes the server
// already holds. A hit means the next outbound mention of that CID can omit
// bytes; a miss (including a server-reported cid_not_found) means bytes must
// be sent and, on success, the CID re-inserted.
//
// A Bloom pre-filter guards the common negative-lookup path (checking a CID
// the cache has never seen) with a handful of cheap bit tests instead of a
// full LRU probe. It is advisory only: the LRU remains authoritative, and
// the filter is rebuilt whenever enough inserts have happened that its
// estimated false-positive rate would exceed bloomRebuildFPP.
type CIDCache struct {
	mu      sync.Mutex
	lru     *lru.Cache
	bloom   *bloomFilter
	inserts uint64
}

// NewCIDCache constructs a CIDCache with the protocol's fixed capacity.
func NewCIDCache() *CIDCache {
	l, err := lru.New(defaultCIDCacheCapacity)
	if err != nil {
		// Only returns an error for a non-positive size, which
		// defaultCIDCacheCapacity never is.
		panic(err)
	}
	return &CIDCache{
		lru:   l,
		bloom: newBloomFilterWithEstimates(2*defaultCIDCacheCapacity, 0.01),
	}
}

// Contains reports whether the client believes the server already holds c.
func (c *CIDCache) Contains(id cidpkg.CID) bool {
	key := id.String()

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.bloom.Test([]byte(key)) {
		return false
	}
	_, ok := c.lru.Get(key)
	return ok
}

// Insert records that the server now holds c (after a successful send with
// bytes, or a cache hit that was confirmed).
func (c *CIDCache) Insert(id cidpkg.CID) {
	key := id.String()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Add(key, struct{}{})
	c.bloom.Add([]byte(key))
	c.inserts++

	if c.bloom.FPP(c.inserts) > bloomRebuildFPP {
		c.rebuildBloomLocked()
	}
}

// Evict removes c from the cache, used on a server cid_not_found response:
// the belief set must stay a subset of what the server actually holds, so
// a reported miss is corrected the moment it is observed.
func (c *CIDCache) Evict(id cidpkg.CID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(id.String())
	// The Bloom filter has no removal; a stale positive there only costs
	// one extra (failed) LRU lookup on the next Contains call, never a
	// correctness problem, since Contains always re-checks the LRU.
}

// Len reports the number of CIDs currently believed known.
func (c *CIDCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// rebuildBloomLocked replaces the Bloom filter from the LRU's live keys.
// Callers must hold c.mu.
func (c *CIDCache) rebuildBloomLocked() {
	keys := c.lru.Keys()
	fresh := newBloomFilterWithEstimates(maxU64(2*defaultCIDCacheCapacity, uint64(2*len(keys))), 0.01)
	for _, k := range keys {
		fresh.Add([]byte(k.(string)))
	}
	c.bloom = fresh
	c.inserts = uint64(len(keys))
}
