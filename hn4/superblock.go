package hn4

import (
	"encoding/binary"

	uuid "github.com/satori/go.uuid"
)

// StateFlag is a bitmask of superblock state flags, persisted in the
// superblock's state_flags word.
type StateFlag uint32

const (
	StatePendingWipe    StateFlag = 1 << 0
	StateLocked         StateFlag = 1 << 1
	StateToxic          StateFlag = 1 << 2
	StatePanic          StateFlag = 1 << 3
	StateClean          StateFlag = 1 << 4
	StateDirty          StateFlag = 1 << 5
	StateUnmounting     StateFlag = 1 << 6
	StateNeedsUpgrade   StateFlag = 1 << 7
	StateMetadataZeroed StateFlag = 1 << 8
	StateDegraded       StateFlag = 1 << 9
)

func (f StateFlag) Has(bit StateFlag) bool { return f&bit != 0 }

// CompatFlag, ROCompatFlag and IncompatFlag mirror the teacher's three-tier
// feature flag split (compatible / read-only-compatible / incompatible),
// generalized from ext4's own compat/ro_compat/incompat feature words.
type CompatFlag uint32
type ROCompatFlag uint32
type IncompatFlag uint32

const (
	ROCompatSparseCortex ROCompatFlag = 1 << 0
)

const (
	IncompatZNSNative   IncompatFlag = 1 << 0
	IncompatWideGravity IncompatFlag = 1 << 1
)

// knownIncompatFlags is the full set of incompatible feature bits this
// build understands; any bit outside this set forces CodeVersionIncompat.
const knownIncompatFlags = IncompatZNSNative | IncompatWideGravity

// knownROCompatFlags is the full set of ro_compat bits this build
// understands; an unknown bit forces the volume read-only rather than
// rejecting the mount outright.
const knownROCompatFlags = ROCompatSparseCortex

// MountIntentFlag is the recognised mount flag set (spec.md §6): persisted
// in the superblock's mount_intent word and also accepted from the caller
// at mount time. Caller-requested flags are additive over whatever is
// already persisted: a caller cannot clear a persisted MountIntentWormhole
// by simply omitting it from the request.
type MountIntentFlag uint32

const (
	MountIntentReadOnly MountIntentFlag = 1 << 0
	MountIntentWormhole MountIntentFlag = 1 << 1
	MountIntentVirtual  MountIntentFlag = 1 << 2
)

// superblock is the in-memory decode of one 8192-byte superblock replica.
type superblock struct {
	Version         uint32
	BlockSize       uint32
	CapacityBytes   uint64
	UUID            uuid.UUID
	StateFlags      StateFlag
	Generation      uint64
	LastMountTimeNS uint64
	CurrentEpochID  uint64
	EpochStartLBA   uint64
	EpochRingIdx    uint64
	CortexStartLBA  uint64
	BitmapStartLBA  uint64
	QMaskStartLBA   uint64
	FluxStartLBA    uint64
	HorizonLBA      uint64
	CompatFlags     CompatFlag
	ROCompatFlags   ROCompatFlag
	IncompatFlags   IncompatFlag
	Profile         Profile
	MountIntent     MountIntentFlag
	HWCapFlags      uint32
	DirtyBits       uint64
	JournalStartLBA uint64
	JournalLenBlk   uint64
	TaintCounter    uint32
	Label           string
}

// superblockFromBytes decodes one superblock replica from its packed
// on-disk byte layout (see layout.go for offsets).
func superblockFromBytes(b []byte) (*superblock, error) {
	if len(b) < SuperblockSize {
		return nil, newErr(CodeBadSuperblock, "short superblock buffer")
	}
	if isPoisoned(b[:16]) {
		return nil, ErrWipePending
	}
	magic := binary.LittleEndian.Uint64(b[offMagic : offMagic+8])
	if magic != superblockMagic {
		return nil, ErrBadSuperblock
	}
	wantCRC := binary.LittleEndian.Uint32(b[offCRC : offCRC+4])
	gotCRC := crc32cOfWithZeroedField(b[:SuperblockSize], offCRC, 4)
	if wantCRC != gotCRC {
		return nil, ErrBadSuperblock
	}

	sb := &superblock{}
	verRaw := binary.LittleEndian.Uint32(b[offVersion : offVersion+4])
	sb.Version = verRaw
	sb.BlockSize = binary.LittleEndian.Uint32(b[offBlockSize : offBlockSize+4])
	sb.CapacityBytes = binary.LittleEndian.Uint64(b[offCapacity : offCapacity+8])
	copy(sb.UUID[:], b[offUUID:offUUID+16])
	sb.StateFlags = StateFlag(binary.LittleEndian.Uint32(b[offStateFlags : offStateFlags+4]))
	sb.Generation = binary.LittleEndian.Uint64(b[offGeneration : offGeneration+8])
	sb.LastMountTimeNS = binary.LittleEndian.Uint64(b[offLastMountTimeNS : offLastMountTimeNS+8])
	sb.CurrentEpochID = binary.LittleEndian.Uint64(b[offCurrentEpochID : offCurrentEpochID+8])
	sb.EpochStartLBA = binary.LittleEndian.Uint64(b[offEpochStartLBA : offEpochStartLBA+8])
	sb.EpochRingIdx = binary.LittleEndian.Uint64(b[offEpochRingIdx : offEpochRingIdx+8])
	sb.CortexStartLBA = binary.LittleEndian.Uint64(b[offCortexStartLBA : offCortexStartLBA+8])
	sb.BitmapStartLBA = binary.LittleEndian.Uint64(b[offBitmapStartLBA : offBitmapStartLBA+8])
	sb.QMaskStartLBA = binary.LittleEndian.Uint64(b[offQMaskStartLBA : offQMaskStartLBA+8])
	sb.FluxStartLBA = binary.LittleEndian.Uint64(b[offFluxStartLBA : offFluxStartLBA+8])
	sb.HorizonLBA = binary.LittleEndian.Uint64(b[offHorizonLBA : offHorizonLBA+8])
	sb.CompatFlags = CompatFlag(binary.LittleEndian.Uint32(b[offCompatFlags : offCompatFlags+4]))
	sb.ROCompatFlags = ROCompatFlag(binary.LittleEndian.Uint32(b[offROCompatFlags : offROCompatFlags+4]))
	sb.IncompatFlags = IncompatFlag(binary.LittleEndian.Uint32(b[offIncompatFlags : offIncompatFlags+4]))
	sb.Profile = Profile(binary.LittleEndian.Uint32(b[offProfile : offProfile+4]))
	sb.MountIntent = MountIntentFlag(binary.LittleEndian.Uint32(b[offMountIntent : offMountIntent+4]))
	sb.HWCapFlags = binary.LittleEndian.Uint32(b[offHWCapFlags : offHWCapFlags+4])
	sb.DirtyBits = binary.LittleEndian.Uint64(b[offDirtyBits : offDirtyBits+8])
	sb.JournalStartLBA = binary.LittleEndian.Uint64(b[offJournalStartLBA : offJournalStartLBA+8])
	sb.JournalLenBlk = binary.LittleEndian.Uint64(b[offJournalLenBlk : offJournalLenBlk+8])
	sb.TaintCounter = binary.LittleEndian.Uint32(b[offTaintCounter : offTaintCounter+4])
	sb.Label = decodeCString(b[offLabel : offLabel+labelMaxLen])
	return sb, nil
}

// toBytes encodes the superblock to its packed on-disk form, computing and
// writing the trailing CRC32C last.
func (sb *superblock) toBytes() []byte {
	b := make([]byte, SuperblockSize)
	binary.LittleEndian.PutUint64(b[offMagic:offMagic+8], superblockMagic)
	binary.LittleEndian.PutUint32(b[offVersion:offVersion+4], sb.Version)
	binary.LittleEndian.PutUint32(b[offBlockSize:offBlockSize+4], sb.BlockSize)
	binary.LittleEndian.PutUint64(b[offCapacity:offCapacity+8], sb.CapacityBytes)
	copy(b[offUUID:offUUID+16], sb.UUID[:])
	binary.LittleEndian.PutUint32(b[offStateFlags:offStateFlags+4], uint32(sb.StateFlags))
	binary.LittleEndian.PutUint64(b[offGeneration:offGeneration+8], sb.Generation)
	binary.LittleEndian.PutUint64(b[offLastMountTimeNS:offLastMountTimeNS+8], sb.LastMountTimeNS)
	binary.LittleEndian.PutUint64(b[offCurrentEpochID:offCurrentEpochID+8], sb.CurrentEpochID)
	binary.LittleEndian.PutUint64(b[offEpochStartLBA:offEpochStartLBA+8], sb.EpochStartLBA)
	binary.LittleEndian.PutUint64(b[offEpochRingIdx:offEpochRingIdx+8], sb.EpochRingIdx)
	binary.LittleEndian.PutUint64(b[offCortexStartLBA:offCortexStartLBA+8], sb.CortexStartLBA)
	binary.LittleEndian.PutUint64(b[offBitmapStartLBA:offBitmapStartLBA+8], sb.BitmapStartLBA)
	binary.LittleEndian.PutUint64(b[offQMaskStartLBA:offQMaskStartLBA+8], sb.QMaskStartLBA)
	binary.LittleEndian.PutUint64(b[offFluxStartLBA:offFluxStartLBA+8], sb.FluxStartLBA)
	binary.LittleEndian.PutUint64(b[offHorizonLBA:offHorizonLBA+8], sb.HorizonLBA)
	binary.LittleEndian.PutUint32(b[offCompatFlags:offCompatFlags+4], uint32(sb.CompatFlags))
	binary.LittleEndian.PutUint32(b[offROCompatFlags:offROCompatFlags+4], uint32(sb.ROCompatFlags))
	binary.LittleEndian.PutUint32(b[offIncompatFlags:offIncompatFlags+4], uint32(sb.IncompatFlags))
	binary.LittleEndian.PutUint32(b[offProfile:offProfile+4], uint32(sb.Profile))
	binary.LittleEndian.PutUint32(b[offMountIntent:offMountIntent+4], uint32(sb.MountIntent))
	binary.LittleEndian.PutUint32(b[offHWCapFlags:offHWCapFlags+4], sb.HWCapFlags)
	binary.LittleEndian.PutUint64(b[offDirtyBits:offDirtyBits+8], sb.DirtyBits)
	binary.LittleEndian.PutUint64(b[offJournalStartLBA:offJournalStartLBA+8], sb.JournalStartLBA)
	binary.LittleEndian.PutUint64(b[offJournalLenBlk:offJournalLenBlk+8], sb.JournalLenBlk)
	binary.LittleEndian.PutUint32(b[offTaintCounter:offTaintCounter+4], sb.TaintCounter)
	encodeCString(b[offLabel:offLabel+labelMaxLen], sb.Label)

	crc := crc32cOfWithZeroedField(b, offCRC, 4)
	binary.LittleEndian.PutUint32(b[offCRC:offCRC+4], crc)
	return b
}

// BumpGeneration increments the generation counter, saturating at
// MaxGeneration and setting StateLocked once it reaches it (spec.md §4.8).
func (sb *superblock) BumpGeneration() {
	if sb.Generation < MaxGeneration {
		sb.Generation++
	}
	if sb.Generation == MaxGeneration {
		sb.StateFlags |= StateLocked
	}
}

// isPoisoned reports whether b (at least 16 bytes) is the wipe-pending
// poison pattern: poisonWord repeated four times.
func isPoisoned(b []byte) bool {
	if len(b) < 16 {
		return false
	}
	for i := 0; i < 4; i++ {
		if binary.LittleEndian.Uint32(b[i*4:i*4+4]) != poisonWord {
			return false
		}
	}
	return true
}

// crc32cOfWithZeroedField computes the CRC32C of b with the fieldLen bytes
// at fieldOff treated as zero, the convention used by every on-disk
// structure in this package so the checksum field does not need to be
// excluded by slicing.
func crc32cOfWithZeroedField(b []byte, fieldOff, fieldLen int) uint32 {
	tmp := make([]byte, len(b))
	copy(tmp, b)
	for i := 0; i < fieldLen; i++ {
		tmp[fieldOff+i] = 0
	}
	return crc32cOf(tmp)
}

func decodeCString(b []byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}

func encodeCString(dst []byte, s string) {
	for i := range dst {
		dst[i] = 0
	}
	n := copy(dst, s)
	_ = n
}
