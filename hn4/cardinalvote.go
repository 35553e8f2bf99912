package hn4

import (
	"context"
	"encoding/binary"

	"github.com/hydra4/hn4/hal"
)

// CardinalSlot names one of the four superblock replica positions.
type CardinalSlot int

const (
	SlotNorth CardinalSlot = iota
	SlotEast
	SlotWest
	SlotSouth
)

func (s CardinalSlot) String() string {
	switch s {
	case SlotNorth:
		return "North"
	case SlotEast:
		return "East"
	case SlotWest:
		return "West"
	case SlotSouth:
		return "South"
	default:
		return "Unknown"
	}
}

// blockSizeLadder is the ladder of allowed block sizes probed during
// Cardinal Vote candidate discovery.
var blockSizeLadder = []uint32{512, 4096, 8192, 16384, 65536}

func alignUp(x uint64, bs uint32) uint64 {
	b := uint64(bs)
	return ((x + b - 1) / b) * b
}

func alignDown(x uint64, bs uint32) uint64 {
	b := uint64(bs)
	return (x / b) * b
}

// cardinalOffsets computes the four candidate byte offsets for a given
// capacity and probe block size, per spec.md §4.1.
func cardinalOffsets(capacity uint64, bs uint32) map[CardinalSlot]uint64 {
	return map[CardinalSlot]uint64{
		SlotNorth: 0,
		SlotEast:  alignUp(capacity*33/100, bs),
		SlotWest:  alignUp(capacity*66/100, bs),
		SlotSouth: alignDown(capacity-SuperblockSize, bs),
	}
}

// peekBlockSize reads the raw (unvalidated) block_size field straight out
// of a candidate's superblock bytes, used only to pick the probe block
// size off the ladder before full decode/validation.
func peekBlockSize(b []byte) uint32 {
	if len(b) < offBlockSize+4 {
		return 0
	}
	return binary.LittleEndian.Uint32(b[offBlockSize : offBlockSize+4])
}

type cardinalCandidate struct {
	slot   CardinalSlot
	offset uint64
	raw    []byte
	sb     *superblock
	err    error
}

func readSlot(ctx context.Context, h hal.HAL, dev hal.Device, sectorSize uint32, byteOffset uint64) ([]byte, error) {
	if byteOffset%uint64(sectorSize) != 0 {
		return nil, ErrAlignmentFail
	}
	lba := byteOffset / uint64(sectorSize)
	sectorCount := uint32((SuperblockSize + int(sectorSize) - 1) / int(sectorSize))
	buf := make([]byte, sectorCount*sectorSize)
	if err := h.SyncIO(ctx, dev, hal.Read, lba, buf, sectorCount); err != nil {
		return nil, err
	}
	return buf[:SuperblockSize], nil
}

// cardinalVoteResult is the outcome of running the Cardinal Vote.
type cardinalVoteResult struct {
	Winner      *superblock
	WinnerSlot  CardinalSlot
	Geometry    geometry
	NeedsRepair []CardinalSlot
	DirtySplit  bool // a valid mirror at the same generation/uuid was DIRTY
}

// cardinalVote runs the Cardinal Vote superblock quorum algorithm.
func cardinalVote(ctx context.Context, h hal.HAL, dev hal.Device) (*cardinalVoteResult, error) {
	caps, err := h.GetCaps(dev)
	if err != nil {
		return nil, wrapErr(CodeHWIO, "get caps", err)
	}
	zns := caps.HWFlags.Has(hal.HWFlagZNSNative)

	northRaw, err := readSlot(ctx, h, dev, caps.LogicalBlockSize, 0)
	if err != nil {
		return nil, wrapErr(CodeBadSuperblock, "read north", err)
	}
	if isPoisoned(northRaw[:16]) {
		return nil, ErrWipePending
	}

	probeBS := peekBlockSize(northRaw)
	validProbe := false
	for _, v := range blockSizeLadder {
		if v == probeBS {
			validProbe = true
			break
		}
	}
	if !validProbe {
		return nil, ErrBadSuperblock
	}

	offsets := cardinalOffsets(caps.TotalCapacityBytes, probeBS)

	slots := []CardinalSlot{SlotNorth, SlotEast, SlotWest, SlotSouth}
	if zns {
		slots = []CardinalSlot{SlotNorth}
	}

	candidates := make([]*cardinalCandidate, 0, len(slots))
	for _, slot := range slots {
		cand := &cardinalCandidate{slot: slot, offset: offsets[slot]}
		var raw []byte
		if slot == SlotNorth {
			raw = northRaw
		} else {
			raw, err = readSlot(ctx, h, dev, caps.LogicalBlockSize, offsets[slot])
			if err != nil {
				cand.err = err
				candidates = append(candidates, cand)
				continue
			}
		}
		cand.raw = raw
		if isPoisoned(raw[:16]) {
			cand.err = ErrWipePending
			candidates = append(candidates, cand)
			continue
		}
		if peekBlockSize(raw) != probeBS {
			cand.err = ErrBadSuperblock
			candidates = append(candidates, cand)
			continue
		}
		sb, derr := superblockFromBytes(raw)
		if derr != nil {
			cand.err = derr
			candidates = append(candidates, cand)
			continue
		}
		if _, gerr := validateGeometry(sb, caps.TotalCapacityBytes, caps.LogicalBlockSize); gerr != nil {
			cand.err = gerr
			candidates = append(candidates, cand)
			continue
		}
		if ierr := validateIntegrity(sb); ierr != nil {
			cand.err = ierr
			candidates = append(candidates, cand)
			continue
		}
		cand.sb = sb
		candidates = append(candidates, cand)
	}

	if zns {
		if candidates[0].sb == nil {
			return nil, candidates[0].errOrDefault()
		}
		g, _ := validateGeometry(candidates[0].sb, caps.TotalCapacityBytes, caps.LogicalBlockSize)
		return &cardinalVoteResult{Winner: candidates[0].sb, WinnerSlot: SlotNorth, Geometry: g}, nil
	}

	var valid []*cardinalCandidate
	for _, c := range candidates {
		if c.sb != nil {
			valid = append(valid, c)
		}
	}
	if len(valid) == 0 {
		return nil, candidates[0].errOrDefault()
	}

	// Tamper detection among candidates sharing generation+UUID.
	for i := 0; i < len(valid); i++ {
		for j := i + 1; j < len(valid); j++ {
			a, b := valid[i].sb, valid[j].sb
			if a.Generation != b.Generation {
				continue
			}
			sameUUID := a.UUID == b.UUID
			if sameUUID && a.BlockSize != b.BlockSize {
				return nil, ErrTampered
			}
			if !sameUUID {
				return nil, ErrTampered
			}
			if timeDelta(a.LastMountTimeNS, b.LastMountTimeNS) > tamperTimestampToleranceNS {
				return nil, ErrTampered
			}
		}
	}

	// Selection: highest generation, tie by newer last_mount_time, tie by
	// scan order (slots already enumerated North, East, West, South).
	best := valid[0]
	for _, c := range valid[1:] {
		if c.sb.Generation > best.sb.Generation {
			best = c
			continue
		}
		if c.sb.Generation == best.sb.Generation && c.sb.LastMountTimeNS > best.sb.LastMountTimeNS {
			best = c
		}
	}

	// Clean/dirty split-brain: any valid candidate sharing generation+UUID
	// with the winner but disagreeing on CLEAN/DIRTY forces DIRTY, not a
	// failure.
	dirtySplit := false
	for _, c := range valid {
		if c == best {
			continue
		}
		if c.sb.Generation == best.sb.Generation && c.sb.UUID == best.sb.UUID {
			if c.sb.StateFlags.Has(StateDirty) != best.sb.StateFlags.Has(StateDirty) {
				dirtySplit = true
			}
		}
	}

	var needsRepair []CardinalSlot
	for _, c := range candidates {
		if c.slot == best.slot {
			continue
		}
		if c.sb == nil || c.sb.Generation != best.sb.Generation || c.sb.UUID != best.sb.UUID {
			needsRepair = append(needsRepair, c.slot)
		}
	}

	g, _ := validateGeometry(best.sb, caps.TotalCapacityBytes, caps.LogicalBlockSize)
	return &cardinalVoteResult{
		Winner:      best.sb,
		WinnerSlot:  best.slot,
		Geometry:    g,
		NeedsRepair: needsRepair,
		DirtySplit:  dirtySplit,
	}, nil
}

func (c *cardinalCandidate) errOrDefault() error {
	if c.err != nil {
		return c.err
	}
	return ErrBadSuperblock
}

func timeDelta(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}
