package hn4

import (
	"context"
	"testing"

	"github.com/hydra4/hn4/hal"
)

func TestMountUnmountRoundTripAdvancesGeneration(t *testing.T) {
	h, dev := newMemFixture(t)
	mustFormat(t, h, dev)

	v := mustMount(t, h, dev, MountParams{})
	if v.ReadOnly {
		t.Fatalf("fresh volume should mount read-write")
	}
	if v.TaintCounter != 0 {
		t.Fatalf("fresh volume should have zero taint, got %d", v.TaintCounter)
	}
	gen1 := v.sb.Generation
	if err := Unmount(context.Background(), v); err != nil {
		t.Fatalf("Unmount: %v", err)
	}

	v2 := mustMount(t, h, dev, MountParams{})
	defer Unmount(context.Background(), v2)
	if v2.sb.Generation <= gen1 {
		t.Fatalf("expected generation to advance across unmount, had %d now %d", gen1, v2.sb.Generation)
	}
}

func TestMountRejectsLockedVolume(t *testing.T) {
	h, dev := newMemFixture(t)
	mustFormat(t, h, dev)
	flipNorthStateFlag(t, h, dev, StateLocked)

	if _, err := Mount(context.Background(), h, dev, MountParams{}); CodeOf(err) != CodeVolumeLocked {
		t.Fatalf("expected CodeVolumeLocked, got %v", err)
	}
}

func TestMountRejectsPendingWipe(t *testing.T) {
	h, dev := newMemFixture(t)
	mustFormat(t, h, dev)
	flipNorthStateFlag(t, h, dev, StatePendingWipe)

	if _, err := Mount(context.Background(), h, dev, MountParams{}); CodeOf(err) != CodeWipePending {
		t.Fatalf("expected CodeWipePending, got %v", err)
	}
}

func TestMountRequestedReadOnlyForcesRO(t *testing.T) {
	h, dev := newMemFixture(t)
	mustFormat(t, h, dev)

	v := mustMount(t, h, dev, MountParams{MountFlags: MountIntentReadOnly})
	if !v.ReadOnly {
		t.Fatalf("expected caller-requested read-only mount")
	}
	if err := Unmount(context.Background(), v); err != nil {
		t.Fatalf("Unmount of a read-only volume should be a no-op success: %v", err)
	}
}

func TestMountDetectsCleanAndDirtyBothSetAndTaints(t *testing.T) {
	h, dev := newMemFixture(t)
	mustFormat(t, h, dev)
	// Set DIRTY alongside the already-set CLEAN bit on every mirror: a
	// bitwise-impossible state the evaluator must force read-only and taint.
	flipNorthStateFlag(t, h, dev, StateDirty)

	v, err := Mount(context.Background(), h, dev, MountParams{})
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if !v.ReadOnly {
		t.Fatalf("expected CLEAN&DIRTY to force read-only")
	}
	if v.TaintCounter == 0 {
		t.Fatalf("expected a nonzero taint after CLEAN&DIRTY")
	}
}

func TestCardinalVoteFlagsDirtySplitWithoutForcingReadOnly(t *testing.T) {
	h, dev := newMemFixture(t)
	mustFormat(t, h, dev)

	caps, _ := h.GetCaps(dev)
	offsets := cardinalOffsets(caps.TotalCapacityBytes, 512)
	northRaw, err := readSlot(context.Background(), h, dev, caps.LogicalBlockSize, offsets[SlotNorth])
	if err != nil {
		t.Fatalf("readSlot: %v", err)
	}
	sb, err := superblockFromBytes(northRaw)
	if err != nil {
		t.Fatalf("superblockFromBytes: %v", err)
	}
	sb.StateFlags = (sb.StateFlags &^ StateClean) | StateDirty
	if err := writeSuperblockAt(context.Background(), h, dev, caps.LogicalBlockSize, offsets[SlotEast], sb.toBytes()); err != nil {
		t.Fatalf("writeSuperblockAt: %v", err)
	}

	// North (the winner by scan order at equal generation) is still plain
	// CLEAN, so the split with East alone does not force read-only; it
	// only makes the state evaluator mark the post-mount state DIRTY and
	// makes Mount's wasDirty check run reconstruction.
	v, err := Mount(context.Background(), h, dev, MountParams{})
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if v.ReadOnly {
		t.Fatalf("a lone dirty-split mirror should not by itself force read-only")
	}
	if err := Unmount(context.Background(), v); err != nil {
		t.Fatalf("Unmount: %v", err)
	}
}

func TestMountRejectsTamperedMirrors(t *testing.T) {
	h, dev := newMemFixture(t)
	mustFormat(t, h, dev)

	caps, _ := h.GetCaps(dev)
	offsets := cardinalOffsets(caps.TotalCapacityBytes, 512)
	northRaw, err := readSlot(context.Background(), h, dev, caps.LogicalBlockSize, offsets[SlotNorth])
	if err != nil {
		t.Fatalf("readSlot: %v", err)
	}
	sb, err := superblockFromBytes(northRaw)
	if err != nil {
		t.Fatalf("superblockFromBytes: %v", err)
	}
	sb.LastMountTimeNS += tamperTimestampToleranceNS * 2
	if err := writeSuperblockAt(context.Background(), h, dev, caps.LogicalBlockSize, offsets[SlotEast], sb.toBytes()); err != nil {
		t.Fatalf("writeSuperblockAt: %v", err)
	}

	if _, err := Mount(context.Background(), h, dev, MountParams{}); CodeOf(err) != CodeTampered {
		t.Fatalf("expected CodeTampered, got %v", err)
	}
}

func TestMountRepairsCorruptedMirror(t *testing.T) {
	h, dev := newMemFixture(t)
	mustFormat(t, h, dev)

	caps, _ := h.GetCaps(dev)
	offsets := cardinalOffsets(caps.TotalCapacityBytes, 512)
	raw := dev.Bytes()
	raw[offsets[SlotEast]] ^= 0xff // corrupt East's magic

	v := mustMount(t, h, dev, MountParams{})
	if _, err := readSlot(context.Background(), h, dev, caps.LogicalBlockSize, offsets[SlotEast]); err != nil {
		t.Fatalf("expected East to be readable again after Mount repaired it, got: %v", err)
	}
	eastSB, err := superblockFromBytes(raw[offsets[SlotEast] : offsets[SlotEast]+uint64(SuperblockSize)])
	if err != nil {
		t.Fatalf("superblockFromBytes on repaired East: %v", err)
	}
	if eastSB.Generation != v.sb.Generation || eastSB.UUID != v.sb.UUID {
		t.Fatalf("expected East to match the winner after repair, got generation=%d uuid=%v", eastSB.Generation, eastSB.UUID)
	}
	if err := Unmount(context.Background(), v); err != nil {
		t.Fatalf("Unmount: %v", err)
	}
}

func TestMountDoesNotRepairMirrorsWhenReadOnly(t *testing.T) {
	h, dev := newMemFixture(t)
	mustFormat(t, h, dev)

	caps, _ := h.GetCaps(dev)
	offsets := cardinalOffsets(caps.TotalCapacityBytes, 512)
	raw := dev.Bytes()
	raw[offsets[SlotEast]] ^= 0xff // corrupt East's magic
	corrupted := append([]byte(nil), raw[offsets[SlotEast]:offsets[SlotEast]+uint64(SuperblockSize)]...)

	v := mustMount(t, h, dev, MountParams{MountFlags: MountIntentReadOnly})
	if !v.ReadOnly {
		t.Fatalf("expected caller-requested read-only mount")
	}
	got := raw[offsets[SlotEast] : offsets[SlotEast]+uint64(SuperblockSize)]
	for i := range got {
		if got[i] != corrupted[i] {
			t.Fatalf("expected East to be left untouched by a read-only mount")
		}
	}
	if err := Unmount(context.Background(), v); err != nil {
		t.Fatalf("Unmount: %v", err)
	}
}

func TestMountPanicsOnEpochLostRingCorruption(t *testing.T) {
	h, dev := newMemFixture(t)
	mustFormat(t, h, dev)

	caps, _ := h.GetCaps(dev)
	northRaw, err := readSlot(context.Background(), h, dev, caps.LogicalBlockSize, 0)
	if err != nil {
		t.Fatalf("readSlot: %v", err)
	}
	sb, err := superblockFromBytes(northRaw)
	if err != nil {
		t.Fatalf("superblockFromBytes: %v", err)
	}
	sb.EpochRingIdx = 9999 // well past the ring length: forces epoch-lost forensics
	for _, slot := range []CardinalSlot{SlotNorth, SlotEast, SlotWest, SlotSouth} {
		offsets := cardinalOffsets(caps.TotalCapacityBytes, 512)
		if err := writeSuperblockAt(context.Background(), h, dev, caps.LogicalBlockSize, offsets[slot], sb.toBytes()); err != nil {
			t.Fatalf("writeSuperblockAt %v: %v", slot, err)
		}
	}

	v, err := Mount(context.Background(), h, dev, MountParams{})
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if !v.ReadOnly {
		t.Fatalf("expected epoch-lost forensics to force read-only")
	}
}

// flipNorthStateFlag sets extra bits on North's superblock StateFlags and
// rewrites all mirrors so Cardinal Vote has no disagreement to resolve.
func flipNorthStateFlag(t *testing.T, h hal.HAL, dev hal.Device, extra StateFlag) {
	t.Helper()
	caps, err := h.GetCaps(dev)
	if err != nil {
		t.Fatalf("GetCaps: %v", err)
	}
	northRaw, err := readSlot(context.Background(), h, dev, caps.LogicalBlockSize, 0)
	if err != nil {
		t.Fatalf("readSlot: %v", err)
	}
	sb, err := superblockFromBytes(northRaw)
	if err != nil {
		t.Fatalf("superblockFromBytes: %v", err)
	}
	sb.StateFlags |= extra
	offsets := cardinalOffsets(caps.TotalCapacityBytes, sb.BlockSize)
	for _, slot := range []CardinalSlot{SlotNorth, SlotEast, SlotWest, SlotSouth} {
		if err := writeSuperblockAt(context.Background(), h, dev, caps.LogicalBlockSize, offsets[slot], sb.toBytes()); err != nil {
			t.Fatalf("writeSuperblockAt %v: %v", slot, err)
		}
	}
}
