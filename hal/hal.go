// Package hal defines the hardware abstraction layer the hn4 engine
// consumes. The engine never talks to a block device, a clock, or an
// allocator directly: every such access goes through an implementation of
// HAL, passed in by the caller. This keeps Device a borrowed collaborator
// of Volume rather than the other way around.
package hal

import (
	"context"
	"errors"
)

// Direction selects the direction of a SyncIO call.
type Direction int

const (
	Read Direction = iota
	Write
)

// HWFlag is a bitset of hardware capabilities reported by GetCaps.
type HWFlag uint32

const (
	// HWFlagNVM indicates the device is non-volatile memory (DAX-style),
	// not a traditional block device.
	HWFlagNVM HWFlag = 1 << iota
	// HWFlagStrictFlush indicates the device honors a strict ordered
	// flush/barrier, required for WORMHOLE mount intent.
	HWFlagStrictFlush
	// HWFlagZNSNative indicates zone-addressed (ZNS) storage: writes must
	// be sequential within a zone, and only the North superblock slot is
	// meaningful.
	HWFlagZNSNative
)

// Has reports whether f contains all bits of other.
func (f HWFlag) Has(other HWFlag) bool { return f&other == other }

// Caps describes device geometry and capability as reported by the HAL.
type Caps struct {
	TotalCapacityBytes uint64
	LogicalBlockSize   uint32
	HWFlags            HWFlag
	ZoneSizeBytes       uint64
}

// CPUFeatures is an explicitly-threaded snapshot of CPU capability,
// replacing any notion of process-wide mutable feature-detection state.
// A zero value means "no accelerated features available" and the software
// CRC/endian paths must work correctly against it.
type CPUFeatures struct {
	HasSSE42 bool // CRC32C hardware acceleration
	HasAVX2  bool
}

// Spinlock is a portable mutual-exclusion primitive obtained from the HAL.
// The engine itself never acquires one (mount/unmount predate/postdate all
// allocator activity); it is exposed for collaborators such as the
// block-allocator fast path, which is out of scope for this repository.
type Spinlock interface {
	Acquire()
	Release()
}

// Device is an opaque, caller-owned handle to a block device. The engine
// borrows it for the duration of a single operation and never retains
// ownership.
type Device interface {
	// Name returns a human-readable identifier for logging.
	Name() string
}

// ErrOutOfRange is returned by SyncIO when sectorLBA/sectorCount would
// read or write outside the device.
var ErrOutOfRange = errors.New("hal: sector range out of bounds")

// ErrUnaligned is returned by SyncIO when sectorLBA or the buffer length
// is not a multiple of the device's logical sector size.
var ErrUnaligned = errors.New("hal: unaligned sector access")

// ErrMediaFault is returned by SyncIO on an underlying I/O failure that is
// not an alignment or range problem (e.g. a read error from the device).
var ErrMediaFault = errors.New("hal: media fault")

// HAL is the capability-record the engine depends on. It is passed by
// reference (an interface value) rather than invoked through dynamic
// dispatch on Device, matching the "capability-record" design note: the
// device itself carries no behavior, the HAL does.
type HAL interface {
	// SyncIO performs a strongly-ordered, synchronous sector-granular
	// transfer. len(buf) must equal sectorCount * LogicalBlockSize.
	SyncIO(ctx context.Context, dev Device, dir Direction, sectorLBA uint64, buf []byte, sectorCount uint32) error

	// GetCaps returns the device's reported geometry and capability bits.
	GetCaps(dev Device) (Caps, error)

	// GetTimeNS returns a monotonic-ish nanosecond timestamp.
	GetTimeNS() uint64

	// MemAlloc returns a zeroed buffer of size bytes, suitable for DMA use.
	MemAlloc(size int) ([]byte, error)
	// MemFree releases a buffer obtained from MemAlloc. It is safe to call
	// with a buffer not obtained from MemAlloc (a no-op in that case).
	MemFree(buf []byte)

	// SpinlockInit returns a new portable lock.
	SpinlockInit() Spinlock

	// CPUFeatures returns the explicitly-threaded CPU feature snapshot.
	CPUFeatures() CPUFeatures
}
