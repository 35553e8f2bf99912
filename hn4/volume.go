package hn4

import (
	"context"
	"sync/atomic"

	"github.com/hydra4/hn4/hal"
	"github.com/sirupsen/logrus"
)

// IntegrityLevel selects how paranoid the mount path is. 0 is lax, 1 is
// default, 2 is strict/paranoid (spec.md §6).
type IntegrityLevel int

const (
	IntegrityLax IntegrityLevel = iota
	IntegrityDefault
	IntegrityStrict
)

// MountParams are the caller-supplied parameters to Mount.
type MountParams struct {
	MountFlags     MountIntentFlag
	IntegrityLevel IntegrityLevel
	Log            *logrus.Logger
}

// hwFlagsAdapter adapts hal.Caps.HWFlags to the hwFlagChecker interface
// validateMountDurability needs.
type hwFlagsAdapter hal.HWFlag

func (a hwFlagsAdapter) HasStrictFlush() bool { return hal.HWFlag(a).Has(hal.HWFlagStrictFlush) }

// Volume is the process-local handle returned by Mount. It is exclusively
// owned by its caller until Unmount; Device is a borrowed, non-owning
// collaborator (Volume never holds a back-reference the Device could use
// to reach it).
type Volume struct {
	hal  hal.HAL
	dev  hal.Device
	log  *logrus.Logger

	sb         *superblock
	geom       geometry
	winnerSlot CardinalSlot
	zns        bool

	ReadOnly     bool
	ForceRO      bool
	TaintCounter uint32

	res *loadedResources

	refCount int32
}

// Mount runs the full mount data flow: Cardinal Vote -> Validator -> Epoch
// Check -> State Evaluator -> Resource Loader -> Root Verifier ->
// (optional) Reconstruction -> dirty-mark write -> handle returned. A
// failed mount leaves no partially-written state on the device and frees
// every buffer it allocated (spec.md §5).
func Mount(ctx context.Context, h hal.HAL, dev hal.Device, params MountParams) (*Volume, error) {
	log := params.Log
	if log == nil {
		log = defaultLogger()
	}

	vote, err := cardinalVote(ctx, h, dev)
	if err != nil {
		return nil, err
	}
	sb := vote.Winner
	g := vote.Geometry

	if err := validateIntegrity(sb); err != nil {
		return nil, err
	}
	roForced, err := validateCompatibility(sb)
	if err != nil {
		return nil, err
	}

	caps, err := h.GetCaps(dev)
	if err != nil {
		return nil, wrapErr(CodeHWIO, "get caps", err)
	}
	if err := validateMountDurability(sb, params.MountFlags, hwFlagsAdapter(caps.HWFlags)); err != nil {
		return nil, err
	}
	zns := caps.HWFlags.Has(hal.HWFlagZNSNative)
	if zns {
		if g.BlockSize != uint32(caps.ZoneSizeBytes) {
			return nil, ErrAlignmentFail
		}
		if caps.TotalCapacityBytes%caps.ZoneSizeBytes != 0 {
			return nil, ErrAlignmentFail
		}
	}

	taint := sb.TaintCounter
	panicForensics := false
	epochLBA := sb.EpochStartLBA + sb.EpochRingIdx*uint64(g.SectorsPerBlock)
	ringBlocks := (sb.CortexStartLBA - sb.EpochStartLBA) / uint64(g.SectorsPerBlock)
	epochLost := ringBlocks == 0 || sb.EpochRingIdx >= ringBlocks
	var drift driftClass
	if !epochLost {
		buf := make([]byte, g.BlockSize)
		if ioErr := h.SyncIO(ctx, dev, hal.Read, epochLBA, buf, g.SectorsPerBlock); ioErr != nil {
			epochLost = true
		} else if eh, ehErr := epochHeaderFromBytes(buf); ehErr != nil {
			epochLost = true
		} else {
			drift = classifyDrift(sb.CurrentEpochID, eh.ID)
			if drift == driftMediaToxicPast || drift == driftMediaToxicFuture {
				return nil, ErrMediaToxic
			}
			taint += taintForDrift(drift)
		}
	}
	if epochLost {
		panicForensics = true
		sb.StateFlags |= StatePanic
	}

	decision := evaluateMountState(sb.StateFlags, params.MountFlags, roForced, vote.DirtySplit)
	if decision.Err != nil {
		return nil, decision.Err
	}
	if vote.DirtySplit {
		sb.StateFlags = decision.NewFlags
	}
	taint += decision.TaintDelta
	readOnly := decision.ForceRO || panicForensics
	if readOnly {
		traceForceRO(log, "state evaluator or epoch-lost forensics", vote.WinnerSlot)
	}

	res, err := loadResources(ctx, h, dev, sb, g, readOnly)
	if err != nil {
		return nil, err
	}

	rootOutcome, err := verifyRootAnchor(ctx, h, dev, sb, g, readOnly)
	if err != nil {
		return nil, err
	}
	switch rootOutcome {
	case rootRepaired:
		sb.StateFlags |= StateDegraded
		traceGenesisRepair(log, vote.WinnerSlot)
	case rootTaintedRO:
		taint++
	}

	wasDirty := sb.StateFlags.Has(StateDirty) || vote.DirtySplit
	if wasDirty && !readOnly {
		rr, rerr := runReconstruction(ctx, h, dev, sb, g, res)
		if rerr != nil {
			return nil, rerr
		}
		if rr.GhostsResurrected > 0 {
			taint += uint32(rr.GhostsResurrected)
			traceTaint(log, uint32(rr.GhostsResurrected), taint, "ghost resurrection")
		}
	}

	sb.TaintCounter = taint
	sb.StateFlags = decision.NewFlags | (sb.StateFlags & StateDegraded)
	if !readOnly && !decision.SkipDirtyMark {
		sb.LastMountTimeNS = h.GetTimeNS()
		if err := writeDirtyMark(ctx, h, dev, sb, caps, zns); err != nil {
			return nil, err
		}
		// Cardinal Vote flagged these slots as diverged from the winner
		// (stale generation/UUID, or unreadable). Heal them now, while
		// quorum is fresh, rather than waiting on a clean Unmount that may
		// never come (spec.md §4.1 step 7).
		repairMirrors(ctx, h, dev, sb, caps, zns, vote.NeedsRepair, log)
	}

	vol := &Volume{
		hal:          h,
		dev:          dev,
		log:          log,
		sb:           sb,
		geom:         g,
		winnerSlot:   vote.WinnerSlot,
		zns:          zns,
		ReadOnly:     readOnly,
		ForceRO:      decision.ForceRO,
		TaintCounter: taint,
		res:          res,
		refCount:     1,
	}
	log.WithFields(logrus.Fields{
		"slot":      vote.WinnerSlot.String(),
		"read_only": readOnly,
		"taint":     taint,
	}).Debug("hn4: volume mounted")
	return vol, nil
}

// writeDirtyMark persists the superblock (with its state flags already
// transitioned to DIRTY by the state evaluator) to the North slot only,
// ahead of returning the mounted handle. The mirrors keep their previous
// contents until Unmount's broadcast, apart from any slot repairMirrors
// rewrites. Mount does not advance the epoch; only Unmount does.
func writeDirtyMark(ctx context.Context, h hal.HAL, dev hal.Device, sb *superblock, caps hal.Caps, zns bool) error {
	sbBytes := sb.toBytes()
	if zns {
		return writeSuperblockAt(ctx, h, dev, caps.LogicalBlockSize, 0, sbBytes)
	}
	offsets := cardinalOffsets(caps.TotalCapacityBytes, sb.BlockSize)
	if err := writeSuperblockAt(ctx, h, dev, caps.LogicalBlockSize, offsets[SlotNorth], sbBytes); err != nil {
		return wrapErr(CodeHWIO, "dirty-mark north", err)
	}
	return nil
}

// repairMirrors overwrites the replicas Cardinal Vote flagged as diverged
// from the winner (stale generation/UUID, or unreadable) with the winner's
// current bytes, per spec.md §4.1 step 7. There is no mirror to repair on a
// ZNS device, which carries a single replica in zone 0. A slot that still
// can't be written is left alone; the next mount's vote will flag it again.
func repairMirrors(ctx context.Context, h hal.HAL, dev hal.Device, sb *superblock, caps hal.Caps, zns bool, slots []CardinalSlot, log *logrus.Logger) {
	if zns || len(slots) == 0 {
		return
	}
	sbBytes := sb.toBytes()
	offsets := cardinalOffsets(caps.TotalCapacityBytes, sb.BlockSize)
	for _, slot := range slots {
		if slot == SlotNorth {
			continue
		}
		if err := writeSuperblockAt(ctx, h, dev, caps.LogicalBlockSize, offsets[slot], sbBytes); err != nil {
			traceMirrorRepairFailed(log, slot, err)
			continue
		}
		traceMirrorRepaired(log, slot)
	}
}

// Acquire increments the volume's reference count, as done when a
// collaborator such as a tensor context opens against this volume.
func (v *Volume) Acquire() { atomic.AddInt32(&v.refCount, 1) }

// Release decrements the reference count, as done when a collaborator
// closes.
func (v *Volume) Release() { atomic.AddInt32(&v.refCount, -1) }

// Unmount implements the Persistence/Broadcast unmount path.
func Unmount(ctx context.Context, v *Volume) error {
	if v == nil {
		return ErrInvalidArgument
	}
	if atomic.LoadInt32(&v.refCount) != 1 {
		return ErrBusy
	}
	if v.ReadOnly {
		v.free()
		return nil
	}
	if err := persistUnmount(ctx, v.hal, v.dev, v.sb, v.geom, v.zns, v.log); err != nil {
		return err
	}
	v.free()
	return nil
}

func (v *Volume) free() {
	v.res = nil
}

func defaultLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.WarnLevel)
	return l
}
