// Package chronicle implements an append-only, length-prefixed, checksummed
// record log layered on top of a tensor stream. Replay stops (rather than
// erroring) at the first record whose checksum fails, treating everything
// after that point as torn by a crash mid-append.
package chronicle

import (
	"bytes"
	"context"
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/hydra4/hn4/hn4"
	"github.com/hydra4/hn4/hn4/tensor"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

var chronicleCRCTab = crc32.MakeTable(crc32.Castagnoli)

// Codec selects the compression applied to a record's payload before it is
// length-prefixed and checksummed. Codec is stored as the record's leading
// byte, so Replay can decompress without being told which codec was used
// to write it.
type Codec byte

const (
	CodecNone Codec = iota
	CodecLZ4
	CodecXZ
)

// recordHeaderSize is the codec byte, length-prefix, and trailing CRC
// overhead per record: 1-byte codec, 4-byte little-endian length, then
// compressed payload, then 4-byte CRC32C.
const recordHeaderSize = 1 + 4 + 4

// Log is an append-only record log over a tensor stream.
type Log struct {
	stream *tensor.Stream
	nextSeq uint64
	codec   Codec
}

// Open opens the chronicle log rooted at the given volume/cortex slot.
// Records are appended uncompressed; use SetCodec to compress new records.
func Open(ctx context.Context, vol *hn4.Volume, slot uint64) (*Log, error) {
	s, err := tensor.Open(ctx, vol, slot)
	if err != nil {
		return nil, err
	}
	return &Log{stream: s, nextSeq: 1, codec: CodecNone}, nil
}

// Close releases the underlying tensor stream.
func (l *Log) Close() { l.stream.Close() }

// SetCodec selects the compression codec applied to records appended from
// this point on. Existing records keep whatever codec they were written
// with; Replay reads the codec back from each record's header.
func (l *Log) SetCodec(c Codec) { l.codec = c }

func compress(c Codec, record []byte) ([]byte, error) {
	switch c {
	case CodecNone:
		return record, nil
	case CodecLZ4:
		var out bytes.Buffer
		w := lz4.NewWriter(&out)
		if _, err := w.Write(record); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return out.Bytes(), nil
	case CodecXZ:
		var out bytes.Buffer
		w, err := xz.NewWriter(&out)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(record); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return out.Bytes(), nil
	default:
		return nil, hn4.ErrInvalidArgument
	}
}

func decompress(c Codec, payload []byte) ([]byte, error) {
	switch c {
	case CodecNone:
		return payload, nil
	case CodecLZ4:
		r := lz4.NewReader(bytes.NewReader(payload))
		return io.ReadAll(r)
	case CodecXZ:
		r, err := xz.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		return io.ReadAll(r)
	default:
		return nil, hn4.ErrInvalidArgument
	}
}

// Append writes one record to the log, compressing it with the log's
// current codec.
func (l *Log) Append(ctx context.Context, record []byte) error {
	compressed, err := compress(l.codec, record)
	if err != nil {
		return err
	}
	buf := make([]byte, 1+4+len(compressed)+4)
	buf[0] = byte(l.codec)
	binary.LittleEndian.PutUint32(buf[1:5], uint32(len(compressed)))
	copy(buf[5:], compressed)
	crc := crc32.Checksum(buf[:5+len(compressed)], chronicleCRCTab)
	binary.LittleEndian.PutUint32(buf[5+len(compressed):], crc)

	seq, err := l.stream.Append(ctx, buf)
	if err != nil {
		return err
	}
	l.nextSeq = seq + 1
	return nil
}

// Replay reads every record from the beginning, decompressing each with
// the codec recorded in its own header and calling fn, stopping silently
// (not with an error) at the first record whose CRC fails to verify or
// whose codec fails to decompress, since a torn final record is the
// expected shape of a crash mid-append rather than a corruption to
// surface.
func (l *Log) Replay(ctx context.Context, fn func(record []byte) error) error {
	buf := make([]byte, l.stream.PayloadCap())
	for seq := uint64(1); ; seq++ {
		n, err := l.stream.ReadAt(ctx, seq, buf)
		if err != nil {
			return nil
		}
		raw := buf[:n]
		if len(raw) < recordHeaderSize {
			return nil
		}
		codec := Codec(raw[0])
		reclen := binary.LittleEndian.Uint32(raw[1:5])
		if uint64(5+reclen+4) > uint64(len(raw)) {
			return nil
		}
		compressed := raw[5 : 5+reclen]
		wantCRC := binary.LittleEndian.Uint32(raw[5+reclen : 5+reclen+4])
		gotCRC := crc32.Checksum(raw[:5+reclen], chronicleCRCTab)
		if wantCRC != gotCRC {
			return nil
		}
		payload, derr := decompress(codec, compressed)
		if derr != nil {
			return nil
		}
		if err := fn(payload); err != nil {
			return err
		}
	}
}
