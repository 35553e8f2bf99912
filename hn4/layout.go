// Package hn4 implements the HN4 volume lifecycle engine: superblock
// quorum, geometry/version validation, epoch drift classification, mount
// state evaluation, resource loading, root anchor verification and
// Genesis repair, crash reconstruction, and the dirty-mark/broadcast
// unmount path.
package hn4

// Superblock magic = "HYDRA_N4" read as a little-endian uint64.
const superblockMagic uint64 = 0x48594452415F4E34

// SuperblockSize is the fixed on-disk size of a superblock, in bytes.
const SuperblockSize = 8192

// AnchorSize is the fixed on-disk size of an anchor record, in bytes.
const AnchorSize = 128

// poisonWord is repeated four times to form the 16-byte wipe-pending
// poison pattern.
const poisonWord uint32 = 0xDEADBEEF

// Superblock byte offsets (little-endian, packed).
const (
	offMagic           = 0x00
	offVersion         = 0x08 // major<<16 | minor, uint32
	offBlockSize       = 0x0c // uint32
	offCapacity        = 0x10 // uint64, total capacity in bytes
	offUUID            = 0x18 // 16 bytes
	offStateFlags      = 0x28 // uint32
	offGeneration      = 0x2c // uint64
	offLastMountTimeNS = 0x34 // uint64 (nanoseconds)
	offCurrentEpochID  = 0x3c // uint64
	offEpochStartLBA   = 0x44 // uint64
	offEpochRingIdx    = 0x4c // uint64, block index of most recent epoch header
	offCortexStartLBA  = 0x54 // uint64
	offBitmapStartLBA  = 0x5c // uint64
	offQMaskStartLBA   = 0x64 // uint64
	offFluxStartLBA    = 0x6c // uint64
	offHorizonLBA      = 0x74 // uint64
	offCompatFlags     = 0x7c // uint32
	offROCompatFlags   = 0x80 // uint32
	offIncompatFlags   = 0x84 // uint32
	offProfile         = 0x88 // uint32
	offMountIntent     = 0x8c // uint32
	offHWCapFlags      = 0x90 // uint32
	offDirtyBits       = 0x94 // uint64
	offJournalStartLBA = 0x9c // uint64
	offJournalLenBlk   = 0xa4 // uint64
	offTaintCounter    = 0xac // uint32
	offLabel           = 0xb0 // 32 bytes, NUL-padded ASCII
	// b[0xd0:0x1ffc] reserved, zero-padded.
	offCRC = SuperblockSize - 4 // uint32, trailing CRC32C over [0:SuperblockSize] with this field zeroed
)

// Anchor byte offsets (little-endian, packed). See spec.md §3.
const (
	offAnchorSeedID     = 0x00 // 16 bytes
	offAnchorDataClass  = 0x10 // uint32 (flags + class packed together)
	offAnchorWriteGen   = 0x14 // uint32
	offAnchorGravity    = 0x18 // uint64, gravity center block index
	offAnchorMass       = 0x20 // uint64, byte length
	offAnchorOrbitLen   = 0x28 // uint16, number of orbit vector entries actually used
	offAnchorOrbit      = 0x2a // maxInlineOrbit * uint64 inline orbit vector
	// b[0x42:0x46] reserved, zero-padded.
	offAnchorFractal    = 0x46 // uint16, fractal_scale (ABI-fixed offset per spec.md §3)
	offAnchorPermission = 0x48 // uint32, permissions (ABI-fixed offset per spec.md §3)
	offAnchorNameLen    = 0x4c // uint8
	offAnchorName       = 0x4d // inline name/tag buffer
	anchorNameLen       = 0x20 // 32 bytes reserved for the inline name/tag payload
	offAnchorBloom      = 0x6d // 8 bytes tag bloom filter
	// b[0x75:0x7c] reserved, zero-padded.
	offAnchorChecksum = AnchorSize - 4 // uint32, trailing checksum over [0:AnchorSize] with this field zeroed
)

// maxInlineOrbit is the number of orbit-vector block indices stored inline
// in the anchor record. Chosen so the orbit array (3*8=24 bytes, starting
// at offAnchorOrbit) ends at or before the ABI-fixed fractal_scale offset.
const maxInlineOrbit = 3

// Block header byte offsets. A block header precedes every flux payload
// block; epoch ring slots carry an epoch header instead (see below).
const (
	offBlockMagic    = 0x00 // uint32
	offBlockWellID   = 0x04 // 16 bytes, anchor seed id this block belongs to
	offBlockSeqIdx   = 0x14 // uint64, predicted sequence index within the anchor's orbit
	offBlockGen      = 0x1c // uint64, low 32 bits compared against anchor.write_gen
	offBlockDataCRC  = 0x24 // uint32, CRC over the payload following the header
	offBlockHeadCRC  = 0x28 // uint32, CRC over [0:BlockHeaderSize] with this field zeroed
	BlockHeaderSize  = 0x2c
)

const blockMagic uint32 = 0x484e3442 // "HN4B"

// Epoch header byte offsets. Exactly one epoch header lives per ring slot,
// sized to one volume block (padded with zero beyond epochHeaderSize).
const (
	offEpochID      = 0x00 // uint64
	offEpochTimeNS  = 0x08 // uint64
	offEpochHeadCRC = 0x10 // uint32, CRC over [0:EpochHeaderSize] with this field zeroed
	EpochHeaderSize = 0x14
)

// Drift policy thresholds, per spec.md §3 and the Open Question resolution
// recorded in SPEC_FULL.md §9.
const (
	epochDriftAcceptable = 5000 // disk_id - sb_id <= this (in the future) => TIME_DILATION, beyond => MEDIA_TOXIC
	epochDriftMaxPast    = 100  // sb_id - disk_id > this (in the past) => MEDIA_TOXIC
)

// MaxGeneration is the saturating ceiling for the superblock generation
// counter; reaching it also sets the LOCKED state flag.
const MaxGeneration uint64 = 1<<64 - 1

// labelMaxLen is the maximum length in bytes of a volume label.
const labelMaxLen = 32

// maxBlockSizeCeiling is the engine-wide ceiling on block size (spec.md
// §4.2: "exceeds the 64 MiB engine ceiling" -> GEOMETRY).
const maxBlockSizeCeiling = 64 * 1024 * 1024

// tamperTimestampToleranceNS is the maximum last_mount_time disagreement
// between two candidates sharing generation and UUID before the Cardinal
// Vote declares TAMPERED (spec.md §4.1: "differ by > 60 s").
const tamperTimestampToleranceNS = 60 * 1e9
