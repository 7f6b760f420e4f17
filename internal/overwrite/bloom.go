package overwrite

import (
	"encoding/binary"
	"hash/crc32"
	"math"
)

// presenceFilter is a space-efficient probabilistic set of row
// numbers, adapted from common/bloom.go's BloomFilter: same CRC32
// double-hashing scheme, specialized to uint64 row keys (encoded as
// 8 raw bytes) instead of arbitrary strings since overwrite.Record's
// key is always a row number.
type presenceFilter struct {
	bits      []byte
	size      int
	hashCount int
}

// newPresenceFilter sizes itself for n expected rows at a 1% false
// positive rate, following the same m/k formulas as BloomFilter.
func newPresenceFilter(n int) *presenceFilter {
	if n < 1 {
		n = 1
	}
	const fpRate = 0.01
	m := int(-float64(n) * math.Log(fpRate) / (math.Ln2 * math.Ln2))
	if m < 1024 {
		m = 1024
	}
	m = ((m + 7) / 8) * 8

	k := int(float64(m) / float64(n) * math.Ln2)
	if k < 1 {
		k = 1
	}
	if k > 10 {
		k = 10
	}

	return &presenceFilter{
		bits:      make([]byte, m/8),
		size:      m,
		hashCount: k,
	}
}

func rowHashes(row uint64) (uint32, uint32) {
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], row)
	h1 := crc32.ChecksumIEEE(key[:])

	var reversed [8]byte
	for i, b := range key {
		reversed[len(key)-1-i] = b
	}
	h2 := crc32.ChecksumIEEE(reversed[:])
	return h1, h2
}

func (f *presenceFilter) add(row uint64) {
	h1, h2 := rowHashes(row)
	for i := 0; i < f.hashCount; i++ {
		pos := (int(h1) + i*int(h2)) % f.size
		if pos < 0 {
			pos = -pos
		}
		f.bits[pos/8] |= 1 << uint(pos%8)
	}
}

func (f *presenceFilter) mightContain(row uint64) bool {
	h1, h2 := rowHashes(row)
	for i := 0; i < f.hashCount; i++ {
		pos := (int(h1) + i*int(h2)) % f.size
		if pos < 0 {
			pos = -pos
		}
		if f.bits[pos/8]&(1<<uint(pos%8)) == 0 {
			return false
		}
	}
	return true
}
