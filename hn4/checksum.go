package hn4

import (
	"encoding/binary"
	"hash/crc32"
)

// crc32cTab is the Castagnoli CRC32 table used for every on-disk checksum
// in HN4 (superblock, anchor, epoch header, block header), following the
// teacher's own crc32c.go convention of a single package-level table.
var crc32cTab = crc32.MakeTable(crc32.Castagnoli)

// crc32cSeed is the initial/final XOR value for the CRC32C variant used
// throughout this package.
const crc32cSeed uint32 = 0xFFFFFFFF

// crc32cOf computes the CRC32C checksum of b.
func crc32cOf(b []byte) uint32 {
	return crc32cUpdate(crc32cSeed, b) ^ crc32cSeed
}

// crc32cUpdate folds b into a running CRC32C accumulator. Callers that
// need to checksum input that arrives in pieces can chain calls, seeding
// the first with crc32cSeed and XOR-ing the final result with
// crc32cSeed to finish, matching crc32cOf's own convention.
func crc32cUpdate(crc uint32, b []byte) uint32 {
	return crc32.Update(crc, crc32cTab, b)
}

// crc32cUpdateU32 folds a little-endian uint32 into a running accumulator.
func crc32cUpdateU32(crc uint32, n uint32) uint32 {
	var data [4]byte
	binary.LittleEndian.PutUint32(data[:], n)
	return crc32cUpdate(crc, data[:])
}
