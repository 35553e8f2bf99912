package hn4

import (
	"context"
	"encoding/binary"

	"github.com/hydra4/hn4/hal"
)

// ReadFlag modifies ReadBlockAtomic's behavior.
type ReadFlag uint32

const (
	ReadFlagNone ReadFlag = 0
)

// ReadBlockAtomic reads one predicted block belonging to anchor a,
// verifying its header and payload CRC before returning its payload.
// blockIdx is an absolute volume block index; seqIdx is the predicted
// orbit sequence index that block is expected to carry.
func ReadBlockAtomic(ctx context.Context, v *Volume, a *Anchor, blockIdx, seqIdx uint64, buf []byte, flags ReadFlag) (int, error) {
	if v == nil || a == nil {
		return 0, ErrInvalidArgument
	}
	if a.IsZeroMass() {
		return 0, ErrDataRot
	}
	if a.Permission&PermRead == 0 {
		return 0, ErrAccessDenied
	}

	g := v.geom
	lba := blockIdx * uint64(g.SectorsPerBlock)
	raw := make([]byte, g.BlockSize)
	if err := v.hal.SyncIO(ctx, v.dev, hal.Read, lba, raw, g.SectorsPerBlock); err != nil {
		return 0, wrapErr(CodeHWIO, "read block", err)
	}
	if uint32(len(raw)) < BlockHeaderSize {
		return 0, ErrPhantomBlock
	}

	magic := binary.LittleEndian.Uint32(raw[offBlockMagic : offBlockMagic+4])
	if magic != blockMagic {
		return 0, ErrPhantomBlock
	}
	wantHeadCRC := binary.LittleEndian.Uint32(raw[offBlockHeadCRC : offBlockHeadCRC+4])
	if crc32cOfWithZeroedField(raw[:BlockHeaderSize], offBlockHeadCRC, 4) != wantHeadCRC {
		return 0, ErrPhantomBlock
	}
	var wellID [16]byte
	copy(wellID[:], raw[offBlockWellID:offBlockWellID+16])
	if [16]byte(a.SeedID) != wellID {
		return 0, ErrPhantomBlock
	}
	gotSeq := binary.LittleEndian.Uint64(raw[offBlockSeqIdx : offBlockSeqIdx+8])
	if gotSeq != seqIdx {
		return 0, ErrPhantomBlock
	}
	gen := binary.LittleEndian.Uint64(raw[offBlockGen : offBlockGen+8])
	if uint32(gen>>32) != 0 || uint32(gen) != a.WriteGen {
		return 0, ErrGenerationSkew
	}

	payload := raw[BlockHeaderSize:]
	dataCRC := binary.LittleEndian.Uint32(raw[offBlockDataCRC : offBlockDataCRC+4])
	if crc32cOf(payload) != dataCRC {
		return 0, ErrDataRot
	}

	n := copy(buf, payload)
	return n, nil
}
