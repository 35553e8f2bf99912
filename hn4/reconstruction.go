package hn4

import (
	"context"
	"encoding/binary"

	"github.com/hydra4/hn4/hal"
)

// reconstructionResult reports how many ghosts were resurrected (each
// contributes one taint point), used by mount to update TaintCounter.
type reconstructionResult struct {
	GhostsResurrected int
}

// runReconstruction implements the Zero-Scan Reconstruction (L10) pass: it
// runs only when the on-disk state was DIRTY and the mount is RW. For
// every occupied cortex slot it walks gravity_center plus the orbit vector
// and verifies each predicted block before resurrecting its bitmap bit.
func runReconstruction(ctx context.Context, h hal.HAL, dev hal.Device, sb *superblock, g geometry, res *loadedResources) (*reconstructionResult, error) {
	if res.Cortex == nil || res.VoidBitmap == nil {
		return &reconstructionResult{}, nil
	}
	slotCount := (sb.FluxStartLBA - sb.CortexStartLBA) * uint64(g.SectorSize) / AnchorSize
	sectorLen := (slotCount*AnchorSize + uint64(g.SectorSize) - 1) / uint64(g.SectorSize)
	cortexBuf := make([]byte, sectorLen*uint64(g.SectorSize))
	if err := h.SyncIO(ctx, dev, hal.Read, sb.CortexStartLBA, cortexBuf, uint32(sectorLen)); err != nil {
		return nil, wrapErr(CodeHWIO, "read cortex for reconstruction", err)
	}

	result := &reconstructionResult{}
	for slot := uint64(0); slot < slotCount; slot++ {
		if !res.Cortex.Test(slot) {
			continue
		}
		a, err := anchorAt(cortexBuf, slot)
		if err != nil {
			continue
		}
		predicted := predictedBlocks(a)
		for seq, blockIdx := range predicted {
			ok := verifyPredictedBlock(ctx, h, dev, sb, g, a, uint64(seq), blockIdx, res.Quality)
			if ok {
				res.VoidBitmap.Set(blockIdx)
				result.GhostsResurrected++
			}
		}
	}
	return result, nil
}

// predictedBlocks returns the block indices an anchor's orbit predicts it
// occupies: gravity_center followed by the orbit vector entries actually
// in use (OrbitLen of them).
func predictedBlocks(a *Anchor) []uint64 {
	out := make([]uint64, 0, 1+int(a.OrbitLen))
	out = append(out, a.Gravity)
	n := int(a.OrbitLen)
	if n > maxInlineOrbit {
		n = maxInlineOrbit
	}
	for i := 0; i < n; i++ {
		out = append(out, a.Orbit[i])
	}
	return out
}

// verifyPredictedBlock runs the five checks from spec.md §4.7 against one
// predicted block. Any failure means the block is never resurrected.
func verifyPredictedBlock(ctx context.Context, h hal.HAL, dev hal.Device, sb *superblock, g geometry, a *Anchor, seqIdx, blockIdx uint64, qm *QualityMask) bool {
	lba := blockIdx * uint64(g.SectorsPerBlock)
	buf := make([]byte, g.BlockSize)
	sc := g.SectorsPerBlock
	if err := h.SyncIO(ctx, dev, hal.Read, lba, buf, sc); err != nil {
		return false
	}
	if uint32(len(buf)) < BlockHeaderSize {
		return false
	}

	magic := binary.LittleEndian.Uint32(buf[offBlockMagic : offBlockMagic+4])
	if magic != blockMagic {
		return false
	}
	wantCRC := binary.LittleEndian.Uint32(buf[offBlockHeadCRC : offBlockHeadCRC+4])
	gotCRC := crc32cOfWithZeroedField(buf[:BlockHeaderSize], offBlockHeadCRC, 4)
	if wantCRC != gotCRC {
		return false
	}

	var wellID [16]byte
	copy(wellID[:], buf[offBlockWellID:offBlockWellID+16])
	if [16]byte(a.SeedID) != wellID {
		return false
	}

	gotSeq := binary.LittleEndian.Uint64(buf[offBlockSeqIdx : offBlockSeqIdx+8])
	if gotSeq != seqIdx {
		return false
	}

	gen := binary.LittleEndian.Uint64(buf[offBlockGen : offBlockGen+8])
	if uint32(gen>>32) != 0 {
		// 64-bit generation hazard: never resurrect, even if low32 matches.
		return false
	}
	if uint32(gen) != a.WriteGen {
		return false
	}

	dataCRC := binary.LittleEndian.Uint32(buf[offBlockDataCRC : offBlockDataCRC+4])
	payload := buf[BlockHeaderSize:]
	if crc32cOf(payload) != dataCRC {
		return false
	}

	return true
}
