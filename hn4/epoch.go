package hn4

import "encoding/binary"

// epochHeader is the in-memory decode of one epoch ring slot header.
type epochHeader struct {
	ID     uint64
	TimeNS uint64
}

// epochHeaderFromBytes decodes an epoch header from its packed on-disk
// form and verifies its trailing CRC32C.
func epochHeaderFromBytes(b []byte) (*epochHeader, error) {
	if len(b) < EpochHeaderSize {
		return nil, newErr(CodeGeometry, "short epoch header buffer")
	}
	wantCRC := binary.LittleEndian.Uint32(b[offEpochHeadCRC : offEpochHeadCRC+4])
	gotCRC := crc32cOfWithZeroedField(b[:EpochHeaderSize], offEpochHeadCRC, 4)
	if wantCRC != gotCRC {
		return nil, ErrPhantomBlock
	}
	return &epochHeader{
		ID:     binary.LittleEndian.Uint64(b[offEpochID : offEpochID+8]),
		TimeNS: binary.LittleEndian.Uint64(b[offEpochTimeNS : offEpochTimeNS+8]),
	}, nil
}

// toBytes encodes the epoch header, padding up to one full volume block
// with zeros beyond EpochHeaderSize is the caller's responsibility (the
// header itself is always exactly EpochHeaderSize bytes).
func (e *epochHeader) toBytes() []byte {
	b := make([]byte, EpochHeaderSize)
	binary.LittleEndian.PutUint64(b[offEpochID:offEpochID+8], e.ID)
	binary.LittleEndian.PutUint64(b[offEpochTimeNS:offEpochTimeNS+8], e.TimeNS)
	crc := crc32cOfWithZeroedField(b, offEpochHeadCRC, 4)
	binary.LittleEndian.PutUint32(b[offEpochHeadCRC:offEpochHeadCRC+4], crc)
	return b
}

// driftClass classifies the drift between a disk epoch ID and the
// superblock's recorded epoch ID, per spec.md §3/§4.3. EPOCH_LOST is not
// produced here: it is reserved for a ring pointer outside bounds or a
// header CRC failure, which callers detect before ever calling
// classifyDrift.
type driftClass int

const (
	driftAcceptable driftClass = iota
	driftMediaToxicPast
	driftTimeDilation
	driftMediaToxicFuture
)

// classifyDrift compares a candidate on-disk epoch ID against the
// superblock's recorded epoch ID:
//   - sb_id - disk_id > 100 (past)             -> MEDIA_TOXIC
//   - disk_id > sb_id, delta <= 5000 (future)   -> TIME_DILATION
//   - disk_id - sb_id > 5000                    -> MEDIA_TOXIC
func classifyDrift(sbEpochID, diskEpochID uint64) driftClass {
	if diskEpochID > sbEpochID {
		delta := diskEpochID - sbEpochID
		if delta <= epochDriftAcceptable {
			return driftTimeDilation
		}
		return driftMediaToxicFuture
	}
	delta := sbEpochID - diskEpochID
	if delta > epochDriftMaxPast {
		return driftMediaToxicPast
	}
	return driftAcceptable
}
