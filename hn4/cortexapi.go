package hn4

import (
	"context"
	"encoding/binary"

	"github.com/hydra4/hn4/hal"
	uuid "github.com/satori/go.uuid"
)

// This file is the public surface thin collaborators (the tensor stream,
// the chronicle log) use against a mounted Volume, mirroring the
// teacher's split between filesystem-internal metadata (superblock.go)
// and the File-level read/write API it exposes to callers (file.go).

// BlockSize returns the volume's block size in bytes.
func (v *Volume) BlockSize() uint32 { return v.geom.BlockSize }

// CortexSlotCount returns the number of anchor slots in the cortex region.
func (v *Volume) CortexSlotCount() uint64 {
	return (v.sb.FluxStartLBA - v.sb.CortexStartLBA) * uint64(v.geom.SectorSize) / AnchorSize
}

// FluxStartBlock returns the absolute block index where the flux (payload)
// region begins.
func (v *Volume) FluxStartBlock() uint64 {
	return v.sb.FluxStartLBA / uint64(v.geom.SectorsPerBlock)
}

// HorizonBlock returns the absolute block index one past the volume's
// usable payload space.
func (v *Volume) HorizonBlock() uint64 {
	return v.sb.HorizonLBA / uint64(v.geom.SectorsPerBlock)
}

// anchorDiskSpan returns the sector LBA to start reading/writing at and the
// byte offset of slot idx's anchor record within that read, so callers can
// issue one aligned SyncIO spanning exactly the sectors the record lives
// in regardless of how AnchorSize relates to the sector size.
func (v *Volume) anchorDiskSpan(idx uint64) (lba uint64, within uint64, sectorCount uint32) {
	ss := uint64(v.geom.SectorSize)
	byteOff := v.sb.CortexStartLBA*ss + cortexSlotOffset(idx)
	lba = byteOff / ss
	within = byteOff % ss
	sectorCount = uint32((within + AnchorSize + ss - 1) / ss)
	return lba, within, sectorCount
}

// ReadAnchor decodes the anchor stored at cortex slot idx.
func (v *Volume) ReadAnchor(ctx context.Context, idx uint64) (*Anchor, error) {
	if idx >= v.CortexSlotCount() {
		return nil, ErrInvalidArgument
	}
	lba, within, sectorCount := v.anchorDiskSpan(idx)
	buf := make([]byte, uint64(sectorCount)*uint64(v.geom.SectorSize))
	if err := v.hal.SyncIO(ctx, v.dev, hal.Read, lba, buf, sectorCount); err != nil {
		return nil, wrapErr(CodeHWIO, "read anchor", err)
	}
	return anchorFromBytes(buf[within : within+AnchorSize])
}

// WriteAnchor encodes and writes a into cortex slot idx. Returns
// ErrAccessDenied if the volume is read-only.
func (v *Volume) WriteAnchor(ctx context.Context, idx uint64, a *Anchor) error {
	if v.ReadOnly {
		return ErrAccessDenied
	}
	if idx >= v.CortexSlotCount() {
		return ErrInvalidArgument
	}
	lba, within, sectorCount := v.anchorDiskSpan(idx)
	buf := make([]byte, uint64(sectorCount)*uint64(v.geom.SectorSize))
	if sectorCount > 1 || within != 0 {
		if err := v.hal.SyncIO(ctx, v.dev, hal.Read, lba, buf, sectorCount); err != nil {
			return wrapErr(CodeHWIO, "read-modify-write anchor", err)
		}
	}
	copy(buf[within:within+AnchorSize], a.toBytes())
	if err := v.hal.SyncIO(ctx, v.dev, hal.Write, lba, buf, sectorCount); err != nil {
		return wrapErr(CodeHWIO, "write anchor", err)
	}
	if v.res != nil && v.res.Cortex != nil {
		if a.SeedID != (uuid.UUID{}) || a.DataClass != 0 {
			v.res.Cortex.Set(idx)
		} else {
			v.res.Cortex.Clear(idx)
		}
	}
	return nil
}

// WriteBlock writes one payload block at blockIdx with a correctly
// computed header for wellID/seqIdx/gen, and marks the block allocated in
// the in-memory void bitmap if one is loaded.
func (v *Volume) WriteBlock(ctx context.Context, blockIdx uint64, wellID uuid.UUID, seqIdx, gen uint64, payload []byte) error {
	if v.ReadOnly {
		return ErrAccessDenied
	}
	if uint32(len(payload)) > v.geom.BlockSize-BlockHeaderSize {
		return ErrInvalidArgument
	}
	buf := make([]byte, v.geom.BlockSize)
	binary.LittleEndian.PutUint32(buf[offBlockMagic:offBlockMagic+4], blockMagic)
	copy(buf[offBlockWellID:offBlockWellID+16], wellID[:])
	binary.LittleEndian.PutUint64(buf[offBlockSeqIdx:offBlockSeqIdx+8], seqIdx)
	binary.LittleEndian.PutUint64(buf[offBlockGen:offBlockGen+8], gen)
	copy(buf[BlockHeaderSize:], payload)
	// dataCRC covers the full zero-padded remainder, matching how
	// ReadBlockAtomic and verifyPredictedBlock checksum what they read back.
	dataCRC := crc32cOf(buf[BlockHeaderSize:])
	binary.LittleEndian.PutUint32(buf[offBlockDataCRC:offBlockDataCRC+4], dataCRC)
	headCRC := crc32cOfWithZeroedField(buf[:BlockHeaderSize], offBlockHeadCRC, 4)
	binary.LittleEndian.PutUint32(buf[offBlockHeadCRC:offBlockHeadCRC+4], headCRC)

	lba := blockIdx * uint64(v.geom.SectorsPerBlock)
	if err := v.hal.SyncIO(ctx, v.dev, hal.Write, lba, buf, v.geom.SectorsPerBlock); err != nil {
		return wrapErr(CodeHWIO, "write block", err)
	}
	if v.res != nil && v.res.VoidBitmap != nil {
		v.res.VoidBitmap.Set(blockIdx)
	}
	return nil
}

// NextFreeBlock scans the void bitmap for the first unallocated block at
// or beyond the flux start, a minimal bump allocator for thin collaborators
// (the tensor stream, the chronicle log) that need contiguous payload
// blocks. It never touches blocks below FluxStartBlock.
func (v *Volume) NextFreeBlock() (uint64, error) {
	if v.res == nil || v.res.VoidBitmap == nil {
		return 0, ErrBitmapCorrupt
	}
	for b := v.FluxStartBlock(); b < v.HorizonBlock(); b++ {
		if !v.res.VoidBitmap.Test(b) {
			return b, nil
		}
	}
	return 0, ErrNoMem
}
