package hn4

import "testing"

func TestVoidBitmapSetClearTest(t *testing.T) {
	vb := NewVoidBitmap(200)
	if vb.Test(5) {
		t.Fatalf("fresh bitmap should be all clear")
	}
	vb.Set(5)
	if !vb.Test(5) {
		t.Fatalf("expected block 5 set")
	}
	vb.Clear(5)
	if vb.Test(5) {
		t.Fatalf("expected block 5 cleared")
	}
}

func TestVoidBitmapRoundTrip(t *testing.T) {
	vb := NewVoidBitmap(200)
	vb.Set(0)
	vb.Set(63)
	vb.Set(64)
	vb.Set(199)
	decoded, err := voidBitmapFromBytes(vb.toBytes(), 200)
	if err != nil {
		t.Fatalf("voidBitmapFromBytes: %v", err)
	}
	for _, idx := range []uint64{0, 63, 64, 199} {
		if !decoded.Test(idx) {
			t.Fatalf("expected block %d set after round trip", idx)
		}
	}
	if decoded.Test(1) {
		t.Fatalf("block 1 should remain clear")
	}
}

func TestVoidBitmapEnvelopeValidAfterSet(t *testing.T) {
	vb := NewVoidBitmap(64)
	vb.Set(10)
	if !vb.EnvelopesValid() {
		t.Fatalf("envelope should stay valid through Set")
	}
}

func TestQualityMaskDefaultsSilver(t *testing.T) {
	qm := NewQualityMaskSilver(10)
	for i := uint64(0); i < 10; i++ {
		if qm.Get(i) != QualitySilver {
			t.Fatalf("block %d expected Silver, got %v", i, qm.Get(i))
		}
	}
}

func TestQualityMaskOutOfRangeSaturatesSilver(t *testing.T) {
	qm := NewQualityMaskSilver(4)
	qm.Set(0, QualityGold)
	if qm.Get(1000) != QualitySilver {
		t.Fatalf("out-of-range index should saturate to Silver")
	}
}

func TestQualityMaskSetGetRoundTrip(t *testing.T) {
	qm := NewQualityMaskSilver(8)
	qm.Set(0, QualityToxic)
	qm.Set(1, QualityBronze)
	qm.Set(2, QualityGold)
	decoded, err := qualityMaskFromBytes(qm.toBytes(), 8)
	if err != nil {
		t.Fatalf("qualityMaskFromBytes: %v", err)
	}
	if decoded.Get(0) != QualityToxic || decoded.Get(1) != QualityBronze || decoded.Get(2) != QualityGold {
		t.Fatalf("round trip mismatch: %v %v %v", decoded.Get(0), decoded.Get(1), decoded.Get(2))
	}
	if decoded.Get(3) != QualitySilver {
		t.Fatalf("untouched block should default Silver")
	}
}

func TestCortexOccupancy(t *testing.T) {
	co := NewCortexOccupancy(16)
	co.Set(3)
	co.Set(7)
	if co.Count() != 2 {
		t.Fatalf("expected count 2, got %d", co.Count())
	}
	if !co.Test(3) || !co.Test(7) {
		t.Fatalf("expected slots 3 and 7 occupied")
	}
	co.Clear(3)
	if co.Test(3) || co.Count() != 1 {
		t.Fatalf("expected slot 3 cleared, count 1")
	}
}
