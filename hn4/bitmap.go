package hn4

import (
	"encoding/binary"
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// voidWordEnvelope wraps one 64-bit on-disk allocation word with a small
// in-memory version/ECC envelope, per spec.md §3 ("in memory each entry
// carries a small ECC/version envelope"). The envelope is a simple parity
// byte recomputed on every load/store; it detects accidental single-word
// corruption introduced after the bitmap was loaded into memory but before
// it was flushed back, it is not a substitute for the on-disk CRC covering
// the whole region.
type voidWordEnvelope struct {
	word   uint64
	parity byte
}

func newVoidWordEnvelope(word uint64) voidWordEnvelope {
	return voidWordEnvelope{word: word, parity: wordParity(word)}
}

func wordParity(w uint64) byte {
	var p byte
	for w != 0 {
		p ^= byte(w & 0xff)
		w >>= 8
	}
	return p
}

func (e voidWordEnvelope) valid() bool { return e.parity == wordParity(e.word) }

// VoidBitmap is the one-bit-per-block allocation bitmap. Bit 1 means the
// block is allocated.
type VoidBitmap struct {
	words      []voidWordEnvelope
	blockCount uint64
}

// NewVoidBitmap allocates a zeroed void bitmap sized for blockCount blocks.
func NewVoidBitmap(blockCount uint64) *VoidBitmap {
	nwords := (blockCount + 63) / 64
	return &VoidBitmap{words: make([]voidWordEnvelope, nwords), blockCount: blockCount}
}

// voidBitmapFromBytes decodes a raw on-disk bitmap region (each 64-bit
// word little-endian) into a VoidBitmap sized for blockCount blocks.
func voidBitmapFromBytes(b []byte, blockCount uint64) (*VoidBitmap, error) {
	nwords := (blockCount + 63) / 64
	needed := nwords * 8
	if uint64(len(b)) < needed {
		return nil, fmt.Errorf("void bitmap: need %d bytes, have %d", needed, len(b))
	}
	vb := &VoidBitmap{words: make([]voidWordEnvelope, nwords), blockCount: blockCount}
	for i := uint64(0); i < nwords; i++ {
		w := binary.LittleEndian.Uint64(b[i*8 : i*8+8])
		vb.words[i] = newVoidWordEnvelope(w)
	}
	return vb, nil
}

// toBytes encodes the bitmap back to its on-disk little-endian word form.
func (vb *VoidBitmap) toBytes() []byte {
	out := make([]byte, len(vb.words)*8)
	for i, w := range vb.words {
		binary.LittleEndian.PutUint64(out[i*8:i*8+8], w.word)
	}
	return out
}

// Test reports whether block idx is allocated.
func (vb *VoidBitmap) Test(idx uint64) bool {
	wi := idx / 64
	if wi >= uint64(len(vb.words)) {
		return false
	}
	return vb.words[wi].word&(1<<(idx%64)) != 0
}

// Set marks block idx allocated.
func (vb *VoidBitmap) Set(idx uint64) {
	wi := idx / 64
	if wi >= uint64(len(vb.words)) {
		return
	}
	vb.words[wi].word |= 1 << (idx % 64)
	vb.words[wi].parity = wordParity(vb.words[wi].word)
}

// Clear marks block idx free.
func (vb *VoidBitmap) Clear(idx uint64) {
	wi := idx / 64
	if wi >= uint64(len(vb.words)) {
		return
	}
	vb.words[wi].word &^= 1 << (idx % 64)
	vb.words[wi].parity = wordParity(vb.words[wi].word)
}

// EnvelopesValid reports whether every word's in-memory envelope still
// matches its content, i.e. no word was mutated without going through
// Set/Clear.
func (vb *VoidBitmap) EnvelopesValid() bool {
	for _, w := range vb.words {
		if !w.valid() {
			return false
		}
	}
	return true
}

// Quality levels for the two-bit-per-block quality mask.
type Quality byte

const (
	QualityToxic Quality = 0b00
	QualityBronze Quality = 0b01
	QualitySilver Quality = 0b10
	QualityGold   Quality = 0b11
)

// QualityMask is the two-bit-per-block media quality mask, backed by a
// bits-and-blooms/bitset.BitSet addressed two bits per block (index*2 is
// the low bit, index*2+1 the high bit).
type QualityMask struct {
	bits       *bitset.BitSet
	blockCount uint64
}

// NewQualityMaskSilver returns a quality mask for blockCount blocks,
// uniformly initialized to Silver (0b10), the documented default when the
// on-disk mask read is skipped (spec.md §3, §4.5).
func NewQualityMaskSilver(blockCount uint64) *QualityMask {
	qm := &QualityMask{bits: bitset.New(uint(blockCount * 2)), blockCount: blockCount}
	for i := uint64(0); i < blockCount; i++ {
		qm.Set(i, QualitySilver)
	}
	return qm
}

// qualityMaskFromBytes decodes a raw on-disk quality-mask region (packed
// two bits per block, byte 0xAA meaning four consecutive Silver blocks)
// into a QualityMask sized for blockCount blocks.
func qualityMaskFromBytes(b []byte, blockCount uint64) (*QualityMask, error) {
	needed := (blockCount*2 + 7) / 8
	if uint64(len(b)) < needed {
		return nil, fmt.Errorf("quality mask: need %d bytes, have %d", needed, len(b))
	}
	qm := &QualityMask{bits: bitset.New(uint(blockCount * 2)), blockCount: blockCount}
	for i := uint64(0); i < blockCount; i++ {
		byteIdx := (i * 2) / 8
		shift := (i * 2) % 8
		v := (b[byteIdx] >> shift) & 0b11
		qm.Set(i, Quality(v))
	}
	return qm, nil
}

func (qm *QualityMask) toBytes() []byte {
	out := make([]byte, (qm.blockCount*2+7)/8)
	for i := uint64(0); i < qm.blockCount; i++ {
		v := byte(qm.Get(i))
		byteIdx := (i * 2) / 8
		shift := (i * 2) % 8
		out[byteIdx] |= v << shift
	}
	return out
}

// Get returns the quality of block idx, saturating to Silver for any
// index beyond the mask's declared block count, per spec.md §4.7's
// "indices beyond it are treated as Silver" bound.
func (qm *QualityMask) Get(idx uint64) Quality {
	if idx >= qm.blockCount {
		return QualitySilver
	}
	lo := qm.bits.Test(uint(idx * 2))
	hi := qm.bits.Test(uint(idx*2 + 1))
	v := Quality(0)
	if lo {
		v |= 0b01
	}
	if hi {
		v |= 0b10
	}
	return v
}

// Set assigns the quality of block idx; out-of-range indices are ignored.
func (qm *QualityMask) Set(idx uint64, q Quality) {
	if idx >= qm.blockCount {
		return
	}
	if q&0b01 != 0 {
		qm.bits.Set(uint(idx * 2))
	} else {
		qm.bits.Clear(uint(idx * 2))
	}
	if q&0b10 != 0 {
		qm.bits.Set(uint(idx*2 + 1))
	} else {
		qm.bits.Clear(uint(idx*2 + 1))
	}
}

// CortexOccupancy is the one-bit-per-anchor-slot occupancy bitmap, backed
// directly by bitset.BitSet since it has no on-disk form of its own (it is
// derived purely from in-memory anchor state per spec.md §4.5).
type CortexOccupancy struct {
	bits *bitset.BitSet
}

// NewCortexOccupancy allocates an occupancy bitmap for slotCount anchors.
func NewCortexOccupancy(slotCount uint64) *CortexOccupancy {
	return &CortexOccupancy{bits: bitset.New(uint(slotCount))}
}

func (co *CortexOccupancy) Test(slot uint64) bool { return co.bits.Test(uint(slot)) }
func (co *CortexOccupancy) Set(slot uint64)        { co.bits.Set(uint(slot)) }
func (co *CortexOccupancy) Clear(slot uint64)      { co.bits.Clear(uint(slot)) }
func (co *CortexOccupancy) Count() uint64          { return uint64(co.bits.Count()) }
