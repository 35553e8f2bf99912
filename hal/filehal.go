package hal

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/xattr"
	times "gopkg.in/djherbis/times.v1"
	"golang.org/x/sys/unix"
)

// FileDevice is a Device backed by a real file or block device node.
type FileDevice struct {
	path string
	f    *os.File
	size uint64
}

// OpenFileDevice opens path for synchronous read/write access. The device
// size comes from the file size (or, for block device nodes, from seeking
// to the end); the logical sector size reported via GetCaps is configured
// on the FileHAL, not here.
func OpenFileDevice(path string) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("hal: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("hal: stat %s: %w", path, err)
	}
	size := uint64(info.Size())
	if size == 0 {
		// Block device nodes report a zero regular-file size; fall back to
		// seeking to the end as a portable approximation.
		end, serr := f.Seek(0, io.SeekEnd)
		if serr == nil && end > 0 {
			size = uint64(end)
		}
		f.Seek(0, io.SeekStart)
	}
	return &FileDevice{path: path, f: f, size: size}, nil
}

func (d *FileDevice) Name() string { return d.path }
func (d *FileDevice) Close() error { return d.f.Close() }

// BirthTime reports the backing file's creation time where the underlying
// filesystem exposes one, for forensic logging alongside epoch drift
// classification (a device far older than its recorded epoch is a useful
// signal, not a requirement).
func (d *FileDevice) BirthTime() (time.Time, bool) {
	t, err := times.Stat(d.path)
	if err != nil || !t.HasBirthTime() {
		return time.Time{}, false
	}
	return t.BirthTime(), true
}

// volumeUUIDXattr is the user xattr name under which FileHAL best-effort
// stores the formatted volume UUID, so external tooling can identify a
// volume without parsing the superblock.
const volumeUUIDXattr = "user.hn4.uuid"

// SetVolumeUUIDHint records uuidStr as a file xattr on the backing device.
// Failure is silent: not every filesystem (or block device node) supports
// user xattrs, and the superblock itself remains the source of truth.
func (d *FileDevice) SetVolumeUUIDHint(uuidStr string) {
	_ = xattr.FSet(d.f, volumeUUIDXattr, []byte(uuidStr))
}

// VolumeUUIDHint reads back the xattr set by SetVolumeUUIDHint, if present.
func (d *FileDevice) VolumeUUIDHint() (string, bool) {
	b, err := xattr.FGet(d.f, volumeUUIDXattr)
	if err != nil {
		return "", false
	}
	return string(b), true
}

// FileHAL is a HAL implementation that performs sector I/O against a
// FileDevice via pread/pwrite plus an explicit fdatasync barrier after
// every write, matching the "strongly ordered" SyncIO contract.
type FileHAL struct {
	SectorSize uint32
	Flags      HWFlag
	ZoneSize   uint64
	Features   CPUFeatures
}

// NewFileHAL returns a FileHAL reporting the given logical sector size.
func NewFileHAL(sectorSize uint32, flags HWFlag) *FileHAL {
	return &FileHAL{SectorSize: sectorSize, Flags: flags}
}

var _ HAL = (*FileHAL)(nil)

func (h *FileHAL) SyncIO(ctx context.Context, dev Device, dir Direction, sectorLBA uint64, buf []byte, sectorCount uint32) error {
	fd, ok := dev.(*FileDevice)
	if !ok {
		return ErrMediaFault
	}
	ss := uint64(h.SectorSize)
	if uint32(len(buf)) != sectorCount*h.SectorSize {
		return ErrUnaligned
	}
	off := int64(sectorLBA * ss)
	end := sectorLBA*ss + uint64(sectorCount)*ss
	if end > fd.size {
		return ErrOutOfRange
	}
	switch dir {
	case Read:
		n, err := unix.Pread(int(fd.f.Fd()), buf, off)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMediaFault, err)
		}
		if n != len(buf) {
			return fmt.Errorf("%w: short read", ErrMediaFault)
		}
	case Write:
		n, err := unix.Pwrite(int(fd.f.Fd()), buf, off)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMediaFault, err)
		}
		if n != len(buf) {
			return fmt.Errorf("%w: short write", ErrMediaFault)
		}
		if err := unix.Fdatasync(int(fd.f.Fd())); err != nil {
			return fmt.Errorf("%w: fdatasync: %v", ErrMediaFault, err)
		}
	}
	return nil
}

func (h *FileHAL) GetCaps(dev Device) (Caps, error) {
	fd, ok := dev.(*FileDevice)
	if !ok {
		return Caps{}, ErrMediaFault
	}
	return Caps{
		TotalCapacityBytes: fd.size,
		LogicalBlockSize:   h.SectorSize,
		HWFlags:            h.Flags,
		ZoneSizeBytes:      h.ZoneSize,
	}, nil
}

func (h *FileHAL) GetTimeNS() uint64 { return uint64(time.Now().UnixNano()) }

func (h *FileHAL) MemAlloc(size int) ([]byte, error) { return make([]byte, size), nil }
func (h *FileHAL) MemFree(buf []byte)                {}

type fileSpinlock struct{ ch chan struct{} }

func (s *fileSpinlock) Acquire() { s.ch <- struct{}{} }
func (s *fileSpinlock) Release() { <-s.ch }

func (h *FileHAL) SpinlockInit() Spinlock { return &fileSpinlock{ch: make(chan struct{}, 1)} }

func (h *FileHAL) CPUFeatures() CPUFeatures { return h.Features }
