package hn4

import (
	"context"

	"github.com/hydra4/hn4/hal"
	uuid "github.com/satori/go.uuid"
)

// loadedResources bundles the buffers the Resource Loader produces. For
// PICO, every field is nil (spec.md §4.5).
type loadedResources struct {
	VoidBitmap *VoidBitmap
	Quality    *QualityMask
	Cortex     *CortexOccupancy
}

// loadResources implements the Resource Loader. g is the validated
// geometry, sb the winning superblock, requestedRO whether the caller
// asked for a read-only mount.
func loadResources(ctx context.Context, h hal.HAL, dev hal.Device, sb *superblock, g geometry, requestedRO bool) (*loadedResources, error) {
	if lookupProfile(sb.Profile).SkipResources {
		return &loadedResources{}, nil
	}

	blockCount := sb.CapacityBytes / uint64(g.BlockSize)

	vb, vberr := loadVoidBitmap(ctx, h, dev, sb, g, blockCount)
	if vberr != nil {
		if requestedRO {
			vb = nil
		} else {
			return nil, vberr
		}
	}

	qm, qmerr := loadQualityMask(ctx, h, dev, sb, g, blockCount)
	if qmerr != nil {
		if _, ok := qmerr.(*Error); ok && CodeOf(qmerr) == CodeGeometry {
			return nil, qmerr
		}
		qm = NewQualityMaskSilver(blockCount)
	}

	cortexSlots := (sb.FluxStartLBA - sb.CortexStartLBA) * uint64(g.SectorSize) / AnchorSize
	cortex, cerr := loadCortexOccupancy(ctx, h, dev, sb, g, cortexSlots)
	if cerr != nil {
		return nil, cerr
	}

	return &loadedResources{VoidBitmap: vb, Quality: qm, Cortex: cortex}, nil
}

func loadVoidBitmap(ctx context.Context, h hal.HAL, dev hal.Device, sb *superblock, g geometry, blockCount uint64) (*VoidBitmap, error) {
	sectorLen := bitmapRegionSectorLen(sb.CapacityBytes, g.BlockSize, g.SectorSize)
	if sb.BitmapStartLBA+sectorLen > sb.QMaskStartLBA {
		return nil, ErrBitmapCorrupt
	}
	buf := make([]byte, sectorLen*uint64(g.SectorSize))
	sc := uint32(sectorLen)
	if err := h.SyncIO(ctx, dev, hal.Read, sb.BitmapStartLBA, buf, sc); err != nil {
		return nil, wrapErr(CodeBitmapCorrupt, "read void bitmap", err)
	}
	return voidBitmapFromBytes(buf, blockCount)
}

func loadQualityMask(ctx context.Context, h hal.HAL, dev hal.Device, sb *superblock, g geometry, blockCount uint64) (*QualityMask, error) {
	qmaskBytes := (blockCount*2 + 7) / 8
	qmaskBlocks := (qmaskBytes + uint64(g.BlockSize) - 1) / uint64(g.BlockSize)
	sectorLen := qmaskBlocks * uint64(g.SectorsPerBlock)
	if sb.QMaskStartLBA+sectorLen > sb.FluxStartLBA {
		return nil, ErrGeometry
	}
	buf := make([]byte, sectorLen*uint64(g.SectorSize))
	sc := uint32(sectorLen)
	if err := h.SyncIO(ctx, dev, hal.Read, sb.QMaskStartLBA, buf, sc); err != nil {
		return nil, wrapErr(CodeBitmapCorrupt, "read quality mask", err)
	}
	return qualityMaskFromBytes(buf, blockCount)
}

func loadCortexOccupancy(ctx context.Context, h hal.HAL, dev hal.Device, sb *superblock, g geometry, slotCount uint64) (*CortexOccupancy, error) {
	sectorLen := (slotCount*AnchorSize + uint64(g.SectorSize) - 1) / uint64(g.SectorSize)
	buf := make([]byte, sectorLen*uint64(g.SectorSize))
	sc := uint32(sectorLen)
	if err := h.SyncIO(ctx, dev, hal.Read, sb.CortexStartLBA, buf, sc); err != nil {
		return nil, wrapErr(CodeGeometry, "read cortex", err)
	}
	occ := NewCortexOccupancy(slotCount)
	for i := uint64(0); i < slotCount; i++ {
		a, err := anchorAt(buf, i)
		if err != nil {
			continue
		}
		occupied := a.SeedID != (uuid.UUID{}) || a.DataClass != 0
		if occupied {
			occ.Set(i)
		}
	}
	return occ, nil
}
