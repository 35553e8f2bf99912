package hn4

import (
	"context"

	"github.com/hydra4/hn4/hal"
	uuid "github.com/satori/go.uuid"
)

// FormatParams configures Format, built via functional options following
// the teacher's WithXxx option pattern.
type FormatParams struct {
	profile Profile
	label   string
}

// FormatOpt configures a FormatParams.
type FormatOpt func(*FormatParams)

// WithProfile selects the format/hardware adapter profile. Defaults to
// ProfileGeneric.
func WithProfile(p Profile) FormatOpt {
	return func(fp *FormatParams) { fp.profile = p }
}

// WithLabel sets the volume label, truncated to labelMaxLen bytes.
func WithLabel(label string) FormatOpt {
	return func(fp *FormatParams) {
		if len(label) > labelMaxLen {
			label = label[:labelMaxLen]
		}
		fp.label = label
	}
}

// Format writes a fresh, minimally-populated superblock quorum, epoch
// ring, and zeroed resource regions to dev, choosing geometry from the
// requested profile and the HAL's reported capacity.
func Format(ctx context.Context, h hal.HAL, dev hal.Device, opts ...FormatOpt) error {
	params := FormatParams{profile: ProfileGeneric}
	for _, opt := range opts {
		opt(&params)
	}

	caps, err := h.GetCaps(dev)
	if err != nil {
		return wrapErr(CodeHWIO, "get caps", err)
	}
	spec := lookupProfile(params.profile)
	if !spec.checkCapacity(caps.TotalCapacityBytes) {
		return ErrProfileMismatch
	}

	bs := caps.LogicalBlockSize
	if params.profile == ProfileZNS {
		if caps.ZoneSizeBytes == 0 || caps.TotalCapacityBytes%caps.ZoneSizeBytes != 0 {
			return ErrAlignmentFail
		}
		bs = uint32(caps.ZoneSizeBytes)
	} else {
		if !spec.allowsBlockSize(bs) {
			// fall back to the smallest allowed block size for the profile
			if len(spec.AllowedBS) == 0 {
				return ErrProfileMismatch
			}
			bs = spec.AllowedBS[0]
		}
	}
	if bs == 0 || !isPowerOfTwo(bs) || bs > maxBlockSizeCeiling {
		return ErrGeometry
	}
	sectorsPerBlock := bs / caps.LogicalBlockSize
	if sectorsPerBlock == 0 {
		return ErrGeometry
	}
	g := geometry{BlockSize: bs, SectorSize: caps.LogicalBlockSize, SectorsPerBlock: sectorsPerBlock}

	const ringBlocks = 8
	const cortexSlots = 256

	epochStart := uint64(1)
	cortexStart := epochStart + ringBlocks
	cortexBlocks := (cortexSlots*uint64(AnchorSize) + uint64(bs) - 1) / uint64(bs)
	bitmapStart := cortexStart + cortexBlocks

	blockCount := caps.TotalCapacityBytes / uint64(bs)
	bitmapBlocks := ((blockCount+7)/8 + uint64(bs) - 1) / uint64(bs)
	qmaskStart := bitmapStart + bitmapBlocks
	qmaskBlocks := ((blockCount*2+7)/8 + uint64(bs) - 1) / uint64(bs)
	fluxStart := qmaskStart + qmaskBlocks
	horizon := blockCount

	if fluxStart >= horizon {
		return ErrGeometry
	}

	id, err := uuid.NewV4()
	if err != nil {
		return wrapErr(CodeNoMem, "generate volume uuid", err)
	}

	sb := &superblock{
		Version:        1<<16 | 0,
		BlockSize:      bs,
		CapacityBytes:  caps.TotalCapacityBytes,
		UUID:           id,
		StateFlags:     StateMetadataZeroed | StateClean,
		Generation:     0,
		CurrentEpochID: 0,
		EpochStartLBA:  epochStart * uint64(sectorsPerBlock),
		EpochRingIdx:   0,
		CortexStartLBA: cortexStart * uint64(sectorsPerBlock),
		BitmapStartLBA: bitmapStart * uint64(sectorsPerBlock),
		QMaskStartLBA:  qmaskStart * uint64(sectorsPerBlock),
		FluxStartLBA:   fluxStart * uint64(sectorsPerBlock),
		HorizonLBA:     horizon * uint64(sectorsPerBlock),
		Profile:        params.profile,
		Label:          params.label,
		LastMountTimeNS: h.GetTimeNS(),
	}

	if err := zeroRegion(ctx, h, dev, caps.LogicalBlockSize, sb.BitmapStartLBA, (qmaskStart-bitmapStart)*uint64(sectorsPerBlock)); err != nil {
		return err
	}
	if err := zeroRegion(ctx, h, dev, caps.LogicalBlockSize, sb.QMaskStartLBA, (fluxStart-qmaskStart)*uint64(sectorsPerBlock)); err != nil {
		return err
	}
	if err := zeroRegion(ctx, h, dev, caps.LogicalBlockSize, sb.CortexStartLBA, cortexBlocks*uint64(sectorsPerBlock)); err != nil {
		return err
	}

	root := genesisRoot()
	cortexBuf := make([]byte, AnchorSize)
	copy(cortexBuf, root.toBytes())
	if err := h.SyncIO(ctx, dev, hal.Write, sb.CortexStartLBA, padTo(cortexBuf, caps.LogicalBlockSize), 1); err != nil {
		return wrapErr(CodeHWIO, "write root anchor", err)
	}

	eh := &epochHeader{ID: 0, TimeNS: h.GetTimeNS()}
	ehPadded := padTo(eh.toBytes(), bs)
	if err := h.SyncIO(ctx, dev, hal.Write, sb.EpochStartLBA, ehPadded, sectorsPerBlock); err != nil {
		return wrapErr(CodeHWIO, "write genesis epoch header", err)
	}

	sbBytes := sb.toBytes()
	offsets := cardinalOffsets(caps.TotalCapacityBytes, bs)
	for _, slot := range []CardinalSlot{SlotNorth, SlotEast, SlotWest, SlotSouth} {
		if params.profile == ProfileZNS && slot != SlotNorth {
			continue
		}
		if err := writeSuperblockAt(ctx, h, dev, caps.LogicalBlockSize, offsets[slot], sbBytes); err != nil {
			return wrapErr(CodeHWIO, "write superblock replica", err)
		}
	}
	if hinter, ok := dev.(interface{ SetVolumeUUIDHint(string) }); ok {
		hinter.SetVolumeUUIDHint(id.String())
	}
	return nil
}

func zeroRegion(ctx context.Context, h hal.HAL, dev hal.Device, sectorSize uint32, startLBA, sectorCount uint64) error {
	if sectorCount == 0 {
		return nil
	}
	buf := make([]byte, sectorCount*uint64(sectorSize))
	if err := h.SyncIO(ctx, dev, hal.Write, startLBA, buf, uint32(sectorCount)); err != nil {
		return wrapErr(CodeHWIO, "zero region", err)
	}
	return nil
}

func padTo(b []byte, size uint32) []byte {
	if uint32(len(b)) >= size {
		return b[:size]
	}
	out := make([]byte, size)
	copy(out, b)
	return out
}
