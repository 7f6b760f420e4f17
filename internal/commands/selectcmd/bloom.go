package selectcmd

import (
	"hash/crc32"
)

// stringBloom is a space-efficient probabilistic set of arbitrary
// byte strings, used as --distinct's fast "definitely not seen
// before" pre-check ahead of the authoritative map lookup. Grounded
// directly on common/bloom.go's BloomFilter (string-keyed CRC32
// double-hashing), unlike internal/overwrite's presenceFilter which
// specializes the same algorithm to uint64 row keys.
type stringBloom struct {
	bits      []byte
	size      int
	hashCount int
}

func newStringBloom(n int) *stringBloom {
	if n < 1 {
		n = 1
	}
	m := n * 10
	if m < 1024 {
		m = 1024
	}
	m = ((m + 7) / 8) * 8
	k := 7
	return &stringBloom{bits: make([]byte, m/8), size: m, hashCount: k}
}

func (b *stringBloom) positions(key []byte) (uint32, uint32) {
	h1 := crc32.ChecksumIEEE(key)
	reversed := make([]byte, len(key))
	for i, c := range key {
		reversed[len(key)-1-i] = c
	}
	reversed = append(reversed, "salt"...)
	h2 := crc32.ChecksumIEEE(reversed)
	return h1, h2
}

func (b *stringBloom) add(key []byte) {
	h1, h2 := b.positions(key)
	for i := 0; i < b.hashCount; i++ {
		pos := (int(h1) + i*int(h2)) % b.size
		if pos < 0 {
			pos = -pos
		}
		b.bits[pos/8] |= 1 << uint(pos%8)
	}
}

func (b *stringBloom) mightContain(key []byte) bool {
	h1, h2 := b.positions(key)
	for i := 0; i < b.hashCount; i++ {
		pos := (int(h1) + i*int(h2)) % b.size
		if pos < 0 {
			pos = -pos
		}
		if b.bits[pos/8]&(1<<uint(pos%8)) == 0 {
			return false
		}
	}
	return true
}
