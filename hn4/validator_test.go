package hn4

import "testing"

func sampleGeometrySuperblock() *superblock {
	sb := sampleSuperblock()
	sb.BlockSize = 512
	sb.CapacityBytes = testCapacity
	sb.EpochStartLBA = 1
	sb.CortexStartLBA = 9
	sb.BitmapStartLBA = 73
	sb.QMaskStartLBA = 75
	sb.FluxStartLBA = 79
	sb.HorizonLBA = testCapacity / 512
	return sb
}

func TestValidateGeometryAcceptsWellFormedLayout(t *testing.T) {
	sb := sampleGeometrySuperblock()
	g, err := validateGeometry(sb, testCapacity, 512)
	if err != nil {
		t.Fatalf("validateGeometry: %v", err)
	}
	if g.SectorsPerBlock != 1 {
		t.Fatalf("expected 1 sector per block, got %d", g.SectorsPerBlock)
	}
}

func TestValidateGeometryRejectsNonPowerOfTwoBlockSize(t *testing.T) {
	sb := sampleGeometrySuperblock()
	sb.BlockSize = 513
	if _, err := validateGeometry(sb, testCapacity, 512); CodeOf(err) != CodeBadSuperblock {
		t.Fatalf("expected CodeBadSuperblock, got %v", err)
	}
}

func TestValidateGeometryRejectsOversizedBlock(t *testing.T) {
	sb := sampleGeometrySuperblock()
	sb.BlockSize = maxBlockSizeCeiling * 2
	sb.CapacityBytes = uint64(sb.BlockSize) * 100
	if _, err := validateGeometry(sb, sb.CapacityBytes, 512); CodeOf(err) != CodeGeometry {
		t.Fatalf("expected CodeGeometry, got %v", err)
	}
}

func TestValidateGeometryRejectsMisalignedRegion(t *testing.T) {
	// 4096-byte blocks over 512-byte sectors give SectorsPerBlock=8, so an
	// LBA that isn't a multiple of 8 is misaligned.
	sb := sampleGeometrySuperblock()
	sb.BlockSize = 4096
	sb.EpochStartLBA = 8
	sb.CortexStartLBA = 17 // not a multiple of 8
	sb.BitmapStartLBA = 24
	sb.QMaskStartLBA = 32
	sb.FluxStartLBA = 40
	sb.HorizonLBA = testCapacity / 512
	if _, err := validateGeometry(sb, testCapacity, 512); CodeOf(err) != CodeAlignmentFail {
		t.Fatalf("expected CodeAlignmentFail, got %v", err)
	}
}

func TestValidateGeometryRejectsOutOfOrderRegions(t *testing.T) {
	sb := sampleGeometrySuperblock()
	sb.CortexStartLBA = sb.BitmapStartLBA // cortex no longer precedes bitmap
	if _, err := validateGeometry(sb, testCapacity, 512); CodeOf(err) != CodeGeometry {
		t.Fatalf("expected CodeGeometry, got %v", err)
	}
}

func TestValidateGeometryRejectsBitmapQMaskCollision(t *testing.T) {
	sb := sampleGeometrySuperblock()
	sb.QMaskStartLBA = sb.BitmapStartLBA // overlaps the bitmap region entirely
	if _, err := validateGeometry(sb, testCapacity, 512); CodeOf(err) != CodeGeometry && CodeOf(err) != CodeBitmapCorrupt {
		t.Fatalf("expected CodeGeometry or CodeBitmapCorrupt, got %v", err)
	}
}

func TestValidateCompatibilityRequiresZeroedMetadata(t *testing.T) {
	sb := sampleGeometrySuperblock()
	sb.StateFlags = sb.StateFlags &^ StateMetadataZeroed
	if _, err := validateCompatibility(sb); CodeOf(err) != CodeUninitialized {
		t.Fatalf("expected CodeUninitialized, got %v", err)
	}
}

func TestValidateCompatibilityRejectsUnknownIncompat(t *testing.T) {
	sb := sampleGeometrySuperblock()
	sb.IncompatFlags = IncompatFlag(1 << 31)
	if _, err := validateCompatibility(sb); CodeOf(err) != CodeVersionIncompat {
		t.Fatalf("expected CodeVersionIncompat, got %v", err)
	}
}

func TestValidateCompatibilityForcesROOnUnknownROCompat(t *testing.T) {
	sb := sampleGeometrySuperblock()
	sb.ROCompatFlags = ROCompatFlag(1 << 31)
	roForced, err := validateCompatibility(sb)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !roForced {
		t.Fatalf("expected unknown ro_compat bit to force read-only")
	}
}

type fakeHWFlags struct{ strict bool }

func (f fakeHWFlags) HasStrictFlush() bool { return f.strict }

func TestValidateMountDurabilityRejectsWormholeWithoutStrictFlush(t *testing.T) {
	sb := sampleGeometrySuperblock()
	sb.MountIntent = MountIntentWormhole
	if err := validateMountDurability(sb, 0, fakeHWFlags{strict: false}); CodeOf(err) != CodeHWIO {
		t.Fatalf("expected CodeHWIO, got %v", err)
	}
}

func TestValidateMountDurabilityAllowsWormholeWithStrictFlush(t *testing.T) {
	sb := sampleGeometrySuperblock()
	sb.MountIntent = MountIntentWormhole
	if err := validateMountDurability(sb, 0, fakeHWFlags{strict: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
