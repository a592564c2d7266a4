package codec

import (
	"math"

	"github.com/zeebo/xxh3"
)

// bloomFilter is a probabilistic "might already be known" pre-filter in
// front of the CID cache's LRU. It carries a flat bitset and derives its k
// probe positions from XXH3 under distinct seeds, so a negative membership
// test costs a handful of bit reads and no allocation.
type bloomFilter struct {
	bitCount  uint64
	hashCount uint64
	bits      []uint64
}

// newBloomFilter returns a new filter with bitCount rounded up to the next
// power of two and at least one hash function.
func newBloomFilter(bitCount, hashCount uint64) *bloomFilter {
	safeBitCount := nextPowerOfTwo(maxU64(1, bitCount))
	safeHashCount := maxU64(1, hashCount)
	return &bloomFilter{
		bitCount:  safeBitCount,
		hashCount: safeHashCount,
		bits:      make([]uint64, (safeBitCount+63)/64),
	}
}

// estimateBloomParameters derives bit and hash counts for n expected
// entries at the given false-positive rate, per the standard sizing
// formula.
func estimateBloomParameters(n uint64, fpp float64) (bitCount, hashCount uint64) {
	bitCount = uint64(math.Ceil(-1 * float64(n) * math.Log(fpp) / math.Pow(math.Log(2), 2)))
	hashCount = uint64(math.Ceil(float64(bitCount) / float64(n) * math.Log(2)))
	return
}

func newBloomFilterWithEstimates(n uint64, fpp float64) *bloomFilter {
	m, k := estimateBloomParameters(n, fpp)
	return newBloomFilter(m, k)
}

// Add sets hashCount bits derived from data's XXH3 hash under hashCount
// distinct seeds.
func (f *bloomFilter) Add(data []byte) {
	for seed := uint64(1); seed <= f.hashCount; seed++ {
		idx := xxh3.HashSeed(data, seed) % f.bitCount
		f.bits[idx/64] |= 1 << (idx % 64)
	}
}

// Test returns true if all hashCount bits for data are set. False positives
// are possible; false negatives are not.
func (f *bloomFilter) Test(data []byte) bool {
	for seed := uint64(1); seed <= f.hashCount; seed++ {
		idx := xxh3.HashSeed(data, seed) % f.bitCount
		if f.bits[idx/64]&(1<<(idx%64)) == 0 {
			return false
		}
	}
	return true
}

// FPP estimates the current false positive probability given n inserted
// elements, per the standard Bloom filter formula.
func (f *bloomFilter) FPP(n uint64) float64 {
	if n == 0 {
		return 0
	}
	k := float64(f.hashCount)
	m := float64(f.bitCount)
	return math.Pow(1-math.Exp(-k*float64(n)/m), k)
}

func maxU64(x, y uint64) uint64 {
	if x > y {
		return x
	}
	return y
}

func nextPowerOfTwo(v uint64) uint64 {
	if v == 0 {
		return 1
	}
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v |= v >> 32
	return v + 1
}
