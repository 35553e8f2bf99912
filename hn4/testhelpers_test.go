package hn4

import (
	"context"
	"testing"

	"github.com/hydra4/hn4/hal"
)

// testCapacity is sized so the genesis layout (8 epoch-ring blocks, a
// 256-slot cortex, bitmap/quality-mask regions, and a flux region) all fit
// comfortably with a 512-byte block size equal to MemHAL's sector size.
const testCapacity = 4 * 1024 * 1024

func newMemFixture(t *testing.T) (*hal.MemHAL, *hal.MemDevice) {
	t.Helper()
	h := hal.NewMemHAL(1000, 1)
	dev := hal.NewMemDevice("test", testCapacity)
	return h, dev
}

func mustFormat(t *testing.T, h hal.HAL, dev hal.Device, opts ...FormatOpt) {
	t.Helper()
	if err := Format(context.Background(), h, dev, opts...); err != nil {
		t.Fatalf("Format: %v", err)
	}
}

func mustMount(t *testing.T, h hal.HAL, dev hal.Device, params MountParams) *Volume {
	t.Helper()
	v, err := Mount(context.Background(), h, dev, params)
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	return v
}
