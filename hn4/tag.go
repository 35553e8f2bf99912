package hn4

import "golang.org/x/crypto/blake2b"

// bloomK is the number of hash positions derived from one tag insertion
// into an anchor's 64-bit inline tag bloom filter.
const bloomK = 4

// tagBits derives bloomK bit positions (mod 64) for tag from a single
// blake2b-256 digest, splitting the digest into 64-bit lanes rather than
// running the hash bloomK separate times.
func tagBits(tag string) [bloomK]uint {
	sum := blake2b.Sum256([]byte(tag))
	var bits [bloomK]uint
	for i := 0; i < bloomK; i++ {
		lane := sum[i*8 : i*8+8]
		var v uint64
		for _, b := range lane {
			v = v<<8 | uint64(b)
		}
		bits[i] = uint(v % 64)
	}
	return bits
}

// InsertTag sets tag's bits in the anchor's inline bloom filter. It is a
// cheap, lossy membership hint used to skip anchors before paying for a
// full name comparison; false positives are expected, false negatives are
// not.
func (a *Anchor) InsertTag(tag string) {
	for _, bit := range tagBits(tag) {
		a.Bloom |= 1 << bit
	}
}

// MightHaveTag reports whether tag could have been inserted. A false
// result is conclusive; a true result requires confirming against Name or
// the caller's own index.
func (a *Anchor) MightHaveTag(tag string) bool {
	for _, bit := range tagBits(tag) {
		if a.Bloom&(1<<bit) == 0 {
			return false
		}
	}
	return true
}
