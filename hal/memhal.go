package hal

import (
	"context"
	"sync/atomic"
)

// MemDevice is an in-memory Device, used by tests and by callers without
// real block-device access. It is intentionally not safe for concurrent
// SyncIO calls beyond what MemHAL provides.
type MemDevice struct {
	name string
	data []byte
}

// NewMemDevice allocates an in-memory device of the given size, zeroed.
func NewMemDevice(name string, size int) *MemDevice {
	return &MemDevice{name: name, data: make([]byte, size)}
}

func (d *MemDevice) Name() string { return d.name }

// Bytes exposes the backing store directly, for test fixtures that need to
// inject corruption at a known offset.
func (d *MemDevice) Bytes() []byte { return d.data }

// MemHAL is a reference HAL implementation over MemDevice.
type MemHAL struct {
	SectorSize  uint32
	ZoneSize    uint64
	Flags       HWFlag
	Features    CPUFeatures
	clockNS     atomic.Uint64
	clockTickNS uint64
}

// NewMemHAL returns a MemHAL with a 512-byte logical sector size and a
// monotonic clock starting at startNS, advancing by tickNS on every
// GetTimeNS call (so successive calls are observably ordered without
// relying on wall-clock time, which is unavailable during workflow
// scripting and undesirable in deterministic tests).
func NewMemHAL(startNS, tickNS uint64) *MemHAL {
	h := &MemHAL{SectorSize: 512}
	h.clockNS.Store(startNS)
	h.clockTickNS = tickNS
	return h
}

var _ HAL = (*MemHAL)(nil)

func (h *MemHAL) SyncIO(ctx context.Context, dev Device, dir Direction, sectorLBA uint64, buf []byte, sectorCount uint32) error {
	md, ok := dev.(*MemDevice)
	if !ok {
		return ErrMediaFault
	}
	ss := uint64(h.SectorSize)
	if sectorLBA%1 != 0 {
		return ErrUnaligned
	}
	if uint32(len(buf)) != sectorCount*h.SectorSize {
		return ErrUnaligned
	}
	start := sectorLBA * ss
	end := start + uint64(sectorCount)*ss
	if end > uint64(len(md.data)) {
		return ErrOutOfRange
	}
	switch dir {
	case Read:
		copy(buf, md.data[start:end])
	case Write:
		copy(md.data[start:end], buf)
	}
	return nil
}

func (h *MemHAL) GetCaps(dev Device) (Caps, error) {
	md, ok := dev.(*MemDevice)
	if !ok {
		return Caps{}, ErrMediaFault
	}
	return Caps{
		TotalCapacityBytes: uint64(len(md.data)),
		LogicalBlockSize:   h.SectorSize,
		HWFlags:            h.Flags,
		ZoneSizeBytes:      h.ZoneSize,
	}, nil
}

func (h *MemHAL) GetTimeNS() uint64 {
	return h.clockNS.Add(h.clockTickNS)
}

func (h *MemHAL) MemAlloc(size int) ([]byte, error) {
	return make([]byte, size), nil
}

func (h *MemHAL) MemFree(buf []byte) {}

type memSpinlock struct{ ch chan struct{} }

func (s *memSpinlock) Acquire() { s.ch <- struct{}{} }
func (s *memSpinlock) Release() { <-s.ch }

func (h *MemHAL) SpinlockInit() Spinlock {
	return &memSpinlock{ch: make(chan struct{}, 1)}
}

func (h *MemHAL) CPUFeatures() CPUFeatures { return h.Features }
