package tensor_test

import (
	"context"
	"testing"

	"github.com/hydra4/hn4/hal"
	"github.com/hydra4/hn4/hn4"
	"github.com/hydra4/hn4/hn4/tensor"
	uuid "github.com/satori/go.uuid"
)

const testCapacity = 4 * 1024 * 1024

func mustMountFreshVolume(t *testing.T) (hal.HAL, hal.Device, *hn4.Volume) {
	t.Helper()
	h := hal.NewMemHAL(1000, 1)
	dev := hal.NewMemDevice("tensor-test", testCapacity)
	if err := hn4.Format(context.Background(), h, dev); err != nil {
		t.Fatalf("Format: %v", err)
	}
	v, err := hn4.Mount(context.Background(), h, dev, hn4.MountParams{})
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	return h, dev, v
}

func seedAnchor(t *testing.T, ctx context.Context, v *hn4.Volume, slot uint64) *hn4.Anchor {
	t.Helper()
	id, err := uuid.NewV4()
	if err != nil {
		t.Fatalf("uuid.NewV4: %v", err)
	}
	a := &hn4.Anchor{
		SeedID:     id,
		DataClass:  hn4.DataClassTensorStream,
		Mass:       1,
		Permission: hn4.PermRead | hn4.PermWrite,
	}
	if err := v.WriteAnchor(ctx, slot, a); err != nil {
		t.Fatalf("WriteAnchor: %v", err)
	}
	return a
}

func TestStreamAppendAndReadAtRoundTrip(t *testing.T) {
	ctx := context.Background()
	_, _, v := mustMountFreshVolume(t)
	defer hn4.Unmount(ctx, v)

	seedAnchor(t, ctx, v, 2)
	s, err := tensor.Open(ctx, v, 2)
	if err != nil {
		t.Fatalf("tensor.Open: %v", err)
	}
	defer s.Close()

	payload := []byte("first record")
	seq, err := s.Append(ctx, payload)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if seq != 1 {
		t.Fatalf("expected first Append to return seq 1, got %d", seq)
	}

	buf := make([]byte, s.PayloadCap())
	n, err := s.ReadAt(ctx, seq, buf)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if string(buf[:len(payload)]) != string(payload) || n < len(payload) {
		t.Fatalf("payload mismatch: got %q", buf[:n])
	}
}

func TestStreamAppendSequenceIncrementsAcrossRecords(t *testing.T) {
	ctx := context.Background()
	_, _, v := mustMountFreshVolume(t)
	defer hn4.Unmount(ctx, v)

	seedAnchor(t, ctx, v, 3)
	s, err := tensor.Open(ctx, v, 3)
	if err != nil {
		t.Fatalf("tensor.Open: %v", err)
	}
	defer s.Close()

	var seqs []uint64
	for i := 0; i < 3; i++ {
		seq, err := s.Append(ctx, []byte{byte(i)})
		if err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
		seqs = append(seqs, seq)
	}
	for i, seq := range seqs {
		if seq != uint64(i+1) {
			t.Fatalf("expected sequential sequence numbers, got %v", seqs)
		}
	}
}

func TestStreamOpenRejectsZeroMassAnchor(t *testing.T) {
	ctx := context.Background()
	_, _, v := mustMountFreshVolume(t)
	defer hn4.Unmount(ctx, v)

	a := &hn4.Anchor{Permission: hn4.PermRead | hn4.PermWrite} // Mass left at zero
	if err := v.WriteAnchor(ctx, 4, a); err != nil {
		t.Fatalf("WriteAnchor: %v", err)
	}
	if _, err := tensor.Open(ctx, v, 4); hn4.CodeOf(err) != hn4.CodeDataRot {
		t.Fatalf("expected CodeDataRot opening a zero-mass anchor, got %v", err)
	}
}

func TestStreamAppendRejectsOversizedPayload(t *testing.T) {
	ctx := context.Background()
	_, _, v := mustMountFreshVolume(t)
	defer hn4.Unmount(ctx, v)

	seedAnchor(t, ctx, v, 5)
	s, err := tensor.Open(ctx, v, 5)
	if err != nil {
		t.Fatalf("tensor.Open: %v", err)
	}
	defer s.Close()

	oversized := make([]byte, s.PayloadCap()+1)
	if _, err := s.Append(ctx, oversized); hn4.CodeOf(err) != hn4.CodeInvalidArgument {
		t.Fatalf("expected CodeInvalidArgument, got %v", err)
	}
}
