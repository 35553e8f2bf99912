package hn4

import (
	"encoding/binary"

	uuid "github.com/satori/go.uuid"
)

// DataClass is the low byte of the packed data-class/flags anchor field.
type DataClass uint8

const (
	DataClassOpaque DataClass = iota
	DataClassTensorStream
	DataClassChronicle
	DataClassStatic // root anchor's data class
)

// AnchorFlag occupies the high three bytes of the packed data-class word.
type AnchorFlag uint32

const (
	AnchorFlagSealed AnchorFlag = 1 << 8
)

// Permission is the anchor's packed permission word.
type Permission uint32

const (
	PermRead  Permission = 1 << 0
	PermWrite Permission = 1 << 1
	PermAdmin Permission = 1 << 2
)

// Anchor is the in-memory decode of one 128-byte anchor record, adapted
// from the teacher's fixed-size block-group descriptor table pattern
// (groupdescriptors.go): a flat array of fixed-size records, each read and
// written independently at slotIndex*AnchorSize.
type Anchor struct {
	SeedID      uuid.UUID
	DataClass   DataClass
	Flags       AnchorFlag
	WriteGen    uint32
	Gravity     uint64 // gravity center: the anchor's home block index
	Mass        uint64 // payload length in bytes
	OrbitLen    uint16
	Orbit       [maxInlineOrbit]uint64
	Fractal     uint16
	Permission  Permission
	Name        string
	Bloom       uint64
}

// anchorFromBytes decodes one anchor record from its packed on-disk form.
func anchorFromBytes(b []byte) (*Anchor, error) {
	if len(b) < AnchorSize {
		return nil, newErr(CodeBadSuperblock, "short anchor buffer")
	}
	wantCRC := binary.LittleEndian.Uint32(b[offAnchorChecksum : offAnchorChecksum+4])
	gotCRC := crc32cOfWithZeroedField(b[:AnchorSize], offAnchorChecksum, 4)
	if wantCRC != gotCRC {
		return nil, ErrPhantomBlock
	}

	a := &Anchor{}
	copy(a.SeedID[:], b[offAnchorSeedID:offAnchorSeedID+16])
	packed := binary.LittleEndian.Uint32(b[offAnchorDataClass : offAnchorDataClass+4])
	a.DataClass = DataClass(packed & 0xff)
	a.Flags = AnchorFlag(packed &^ 0xff)
	a.WriteGen = binary.LittleEndian.Uint32(b[offAnchorWriteGen : offAnchorWriteGen+4])
	a.Gravity = binary.LittleEndian.Uint64(b[offAnchorGravity : offAnchorGravity+8])
	a.Mass = binary.LittleEndian.Uint64(b[offAnchorMass : offAnchorMass+8])
	a.OrbitLen = binary.LittleEndian.Uint16(b[offAnchorOrbitLen : offAnchorOrbitLen+2])
	for i := 0; i < maxInlineOrbit; i++ {
		off := offAnchorOrbit + i*8
		a.Orbit[i] = binary.LittleEndian.Uint64(b[off : off+8])
	}
	a.Fractal = binary.LittleEndian.Uint16(b[offAnchorFractal : offAnchorFractal+2])
	a.Permission = Permission(binary.LittleEndian.Uint32(b[offAnchorPermission : offAnchorPermission+4]))
	nameLen := int(b[offAnchorNameLen])
	if nameLen > anchorNameLen {
		nameLen = anchorNameLen
	}
	a.Name = string(b[offAnchorName : offAnchorName+nameLen])
	a.Bloom = binary.LittleEndian.Uint64(b[offAnchorBloom : offAnchorBloom+8])
	return a, nil
}

// toBytes encodes the anchor to its packed on-disk form, computing the
// trailing CRC32C last.
func (a *Anchor) toBytes() []byte {
	b := make([]byte, AnchorSize)
	copy(b[offAnchorSeedID:offAnchorSeedID+16], a.SeedID[:])
	packed := uint32(a.DataClass) | uint32(a.Flags)
	binary.LittleEndian.PutUint32(b[offAnchorDataClass:offAnchorDataClass+4], packed)
	binary.LittleEndian.PutUint32(b[offAnchorWriteGen:offAnchorWriteGen+4], a.WriteGen)
	binary.LittleEndian.PutUint64(b[offAnchorGravity:offAnchorGravity+8], a.Gravity)
	binary.LittleEndian.PutUint64(b[offAnchorMass:offAnchorMass+8], a.Mass)
	binary.LittleEndian.PutUint16(b[offAnchorOrbitLen:offAnchorOrbitLen+2], a.OrbitLen)
	for i := 0; i < maxInlineOrbit; i++ {
		off := offAnchorOrbit + i*8
		binary.LittleEndian.PutUint64(b[off:off+8], a.Orbit[i])
	}
	binary.LittleEndian.PutUint16(b[offAnchorFractal:offAnchorFractal+2], a.Fractal)
	binary.LittleEndian.PutUint32(b[offAnchorPermission:offAnchorPermission+4], uint32(a.Permission))
	nameLen := len(a.Name)
	if nameLen > anchorNameLen {
		nameLen = anchorNameLen
	}
	b[offAnchorNameLen] = byte(nameLen)
	copy(b[offAnchorName:offAnchorName+anchorNameLen], a.Name[:nameLen])
	binary.LittleEndian.PutUint64(b[offAnchorBloom:offAnchorBloom+8], a.Bloom)

	crc := crc32cOfWithZeroedField(b, offAnchorChecksum, 4)
	binary.LittleEndian.PutUint32(b[offAnchorChecksum:offAnchorChecksum+4], crc)
	return b
}

// IsZeroMass reports whether the anchor declares no payload, the
// DATA_ROT-triggering condition checked by ReadBlockAtomic and by the
// tensor stream on open.
func (a *Anchor) IsZeroMass() bool { return a.Mass == 0 }

// cortexSlotOffset returns the byte offset of anchor slot idx within the
// cortex region, following the teacher's block-group descriptor table
// indexing (groupdescriptors.go: descriptor i lives at i*descriptorSize).
func cortexSlotOffset(idx uint64) uint64 { return idx * AnchorSize }

// anchorAt decodes the anchor stored in slot idx of a raw cortex region
// buffer.
func anchorAt(cortex []byte, idx uint64) (*Anchor, error) {
	off := cortexSlotOffset(idx)
	end := off + AnchorSize
	if end > uint64(len(cortex)) {
		return nil, newErr(CodeGeometry, "anchor slot out of range")
	}
	return anchorFromBytes(cortex[off:end])
}

// putAnchorAt encodes a into slot idx of a raw cortex region buffer.
func putAnchorAt(cortex []byte, idx uint64, a *Anchor) error {
	off := cortexSlotOffset(idx)
	end := off + AnchorSize
	if end > uint64(len(cortex)) {
		return newErr(CodeGeometry, "anchor slot out of range")
	}
	copy(cortex[off:end], a.toBytes())
	return nil
}
