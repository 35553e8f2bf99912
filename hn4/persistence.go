package hn4

import (
	"context"

	"github.com/hydra4/hn4/hal"
	"github.com/sirupsen/logrus"
)

// broadcastQuorumErr is returned when too few replicas accepted the new
// superblock on unmount.
var broadcastQuorumErr = wrapErr(CodeHWIO, "broadcast quorum not reached", nil)

// persistUnmount implements the Persistence/Broadcast unmount path
// (spec.md §4.8). It mutates sb in place and writes the epoch header and
// superblock replicas. Callers must have already confirmed ref_count==1
// and must skip calling this entirely when the mount was RO or force-RO
// (that precondition is enforced by Unmount). Any mirror Cardinal
// Vote flagged as diverged at mount time was already healed by
// repairMirrors before this volume was handed to its caller; this function
// just rewrites every slot unconditionally as part of the normal broadcast.
func persistUnmount(ctx context.Context, h hal.HAL, dev hal.Device, sb *superblock, g geometry, zns bool, log *logrus.Logger) error {
	nextEpoch := sb.CurrentEpochID + 1
	ringBlocks := (sb.CortexStartLBA - sb.EpochStartLBA) / uint64(g.SectorsPerBlock)
	nextRingIdx := sb.EpochRingIdx + 1
	if ringBlocks > 0 && nextRingIdx >= ringBlocks {
		nextRingIdx = 0
	}

	eh := &epochHeader{ID: nextEpoch, TimeNS: h.GetTimeNS()}
	ehBytes := eh.toBytes()
	padded := make([]byte, g.BlockSize)
	copy(padded, ehBytes)
	epochLBA := (sb.EpochStartLBA + nextRingIdx*uint64(g.SectorsPerBlock))
	if err := h.SyncIO(ctx, dev, hal.Write, epochLBA, padded, g.SectorsPerBlock); err != nil {
		return wrapErr(CodeHWIO, "write epoch header", err)
	}

	sb.CurrentEpochID = nextEpoch
	sb.EpochRingIdx = nextRingIdx
	sb.BumpGeneration()
	sb.StateFlags &^= StateDirty
	if !sb.StateFlags.Has(StatePanic) && !sb.StateFlags.Has(StateToxic) {
		sb.StateFlags |= StateClean
	}
	sb.StateFlags &^= StateUnmounting
	sb.LastMountTimeNS = h.GetTimeNS()
	if sb.TaintCounter > 0 {
		sb.DirtyBits |= 1 << 63
	}

	sbBytes := sb.toBytes()
	caps, err := h.GetCaps(dev)
	if err != nil {
		return wrapErr(CodeHWIO, "get caps", err)
	}

	written := 0
	if zns {
		zoneSectors := caps.ZoneSizeBytes / uint64(caps.LogicalBlockSize)
		zeroZone := make([]byte, zoneSectors*uint64(caps.LogicalBlockSize))
		if err := h.SyncIO(ctx, dev, hal.Write, 0, zeroZone, uint32(zoneSectors)); err != nil {
			return wrapErr(CodeHWIO, "reset zone 0", err)
		}
		if err := writeSuperblockAt(ctx, h, dev, caps.LogicalBlockSize, 0, sbBytes); err != nil {
			return wrapErr(CodeHWIO, "write north", err)
		}
		return nil
	}

	offsets := cardinalOffsets(caps.TotalCapacityBytes, sb.BlockSize)
	northOK := false
	if err := writeSuperblockAt(ctx, h, dev, caps.LogicalBlockSize, offsets[SlotNorth], sbBytes); err == nil {
		northOK = true
		written++
	}
	for _, slot := range []CardinalSlot{SlotEast, SlotWest, SlotSouth} {
		if err := writeSuperblockAt(ctx, h, dev, caps.LogicalBlockSize, offsets[slot], sbBytes); err == nil {
			written++
		}
	}

	quorumOK := (northOK && written >= 2) || (!northOK && written >= 3)
	traceBroadcastQuorum(log, written, northOK, quorumOK)
	if !quorumOK {
		return broadcastQuorumErr
	}
	return nil
}

func writeSuperblockAt(ctx context.Context, h hal.HAL, dev hal.Device, sectorSize uint32, byteOffset uint64, sbBytes []byte) error {
	lba := byteOffset / uint64(sectorSize)
	sectorCount := uint32((SuperblockSize + int(sectorSize) - 1) / int(sectorSize))
	buf := make([]byte, sectorCount*sectorSize)
	copy(buf, sbBytes)
	return h.SyncIO(ctx, dev, hal.Write, lba, buf, sectorCount)
}
