package hn4

import (
	"context"
	"testing"

	uuid "github.com/satori/go.uuid"
)

func TestReadBlockAtomicRoundTrip(t *testing.T) {
	h, dev := newMemFixture(t)
	mustFormat(t, h, dev)
	v := mustMount(t, h, dev, MountParams{})
	defer Unmount(context.Background(), v)

	blockIdx := v.FluxStartBlock()
	id, _ := uuid.NewV4()
	payload := []byte("hello, hn4")
	if err := v.WriteBlock(context.Background(), blockIdx, id, 3, 7, payload); err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}

	a := &Anchor{SeedID: id, WriteGen: 7, Mass: uint64(len(payload)), Permission: PermRead | PermWrite}
	buf := make([]byte, v.BlockSize())
	n, err := ReadBlockAtomic(context.Background(), v, a, blockIdx, 3, buf, ReadFlagNone)
	if err != nil {
		t.Fatalf("ReadBlockAtomic: %v", err)
	}
	if string(buf[:n][:len(payload)]) != string(payload) {
		t.Fatalf("payload mismatch: got %q", buf[:n])
	}
}

func TestReadBlockAtomicRejectsZeroMassAnchor(t *testing.T) {
	h, dev := newMemFixture(t)
	mustFormat(t, h, dev)
	v := mustMount(t, h, dev, MountParams{})
	defer Unmount(context.Background(), v)

	a := &Anchor{Permission: PermRead} // Mass defaults to zero
	buf := make([]byte, v.BlockSize())
	if _, err := ReadBlockAtomic(context.Background(), v, a, v.FluxStartBlock(), 0, buf, ReadFlagNone); CodeOf(err) != CodeDataRot {
		t.Fatalf("expected CodeDataRot, got %v", err)
	}
}

func TestReadBlockAtomicRejectsMissingPermission(t *testing.T) {
	h, dev := newMemFixture(t)
	mustFormat(t, h, dev)
	v := mustMount(t, h, dev, MountParams{})
	defer Unmount(context.Background(), v)

	id, _ := uuid.NewV4()
	a := &Anchor{SeedID: id, Mass: 1, Permission: PermWrite} // no PermRead
	buf := make([]byte, v.BlockSize())
	if _, err := ReadBlockAtomic(context.Background(), v, a, v.FluxStartBlock(), 0, buf, ReadFlagNone); CodeOf(err) != CodeAccessDenied {
		t.Fatalf("expected CodeAccessDenied, got %v", err)
	}
}

func TestReadBlockAtomicDetectsWellIDMismatch(t *testing.T) {
	h, dev := newMemFixture(t)
	mustFormat(t, h, dev)
	v := mustMount(t, h, dev, MountParams{})
	defer Unmount(context.Background(), v)

	blockIdx := v.FluxStartBlock()
	id, _ := uuid.NewV4()
	if err := v.WriteBlock(context.Background(), blockIdx, id, 0, 1, []byte("x")); err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}

	wrong, _ := uuid.NewV4()
	a := &Anchor{SeedID: wrong, WriteGen: 1, Mass: 1, Permission: PermRead}
	buf := make([]byte, v.BlockSize())
	if _, err := ReadBlockAtomic(context.Background(), v, a, blockIdx, 0, buf, ReadFlagNone); CodeOf(err) != CodePhantomBlock {
		t.Fatalf("expected CodePhantomBlock, got %v", err)
	}
}

func TestReadBlockAtomicDetectsGenerationSkew(t *testing.T) {
	h, dev := newMemFixture(t)
	mustFormat(t, h, dev)
	v := mustMount(t, h, dev, MountParams{})
	defer Unmount(context.Background(), v)

	blockIdx := v.FluxStartBlock()
	id, _ := uuid.NewV4()
	if err := v.WriteBlock(context.Background(), blockIdx, id, 0, 5, []byte("x")); err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}

	a := &Anchor{SeedID: id, WriteGen: 6, Mass: 1, Permission: PermRead} // stale expectation
	buf := make([]byte, v.BlockSize())
	if _, err := ReadBlockAtomic(context.Background(), v, a, blockIdx, 0, buf, ReadFlagNone); CodeOf(err) != CodeGenerationSkew {
		t.Fatalf("expected CodeGenerationSkew, got %v", err)
	}
}

func TestReadBlockAtomicDetectsPayloadCorruption(t *testing.T) {
	h, dev := newMemFixture(t)
	mustFormat(t, h, dev)
	v := mustMount(t, h, dev, MountParams{})
	defer Unmount(context.Background(), v)

	blockIdx := v.FluxStartBlock()
	id, _ := uuid.NewV4()
	if err := v.WriteBlock(context.Background(), blockIdx, id, 0, 1, []byte("payload")); err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}
	raw := dev.Bytes()
	byteOff := blockIdx * uint64(v.BlockSize())
	raw[byteOff+uint64(BlockHeaderSize)+2] ^= 0xff

	a := &Anchor{SeedID: id, WriteGen: 1, Mass: 1, Permission: PermRead}
	buf := make([]byte, v.BlockSize())
	if _, err := ReadBlockAtomic(context.Background(), v, a, blockIdx, 0, buf, ReadFlagNone); CodeOf(err) != CodeDataRot {
		t.Fatalf("expected CodeDataRot, got %v", err)
	}
}
