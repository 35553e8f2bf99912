// Package tensor implements the ordered payload stream abstraction over a
// mounted volume and a committed anchor: sequential Append, random ReadAt,
// each payload block addressed through the anchor's gravity center plus
// orbit vector the same way the engine's own reconstruction pass predicts
// block positions.
package tensor

import (
	"context"

	uuid "github.com/google/uuid"
	"github.com/hydra4/hn4/hn4"
	satori "github.com/satori/go.uuid"
)

// Stream is an open tensor stream over one committed anchor.
type Stream struct {
	vol        *hn4.Volume
	slot       uint64
	anchor     *hn4.Anchor
	id         uuid.UUID // process-local handle identity, distinct from the anchor's on-disk seed id
	payloadCap uint32
}

// Open opens the tensor stream rooted at cortex slot idx, acquiring a
// reference on vol for the lifetime of the stream. A zero-mass anchor is
// rejected as DATA_ROT: an ordered stream with no declared payload length
// is not representable.
func Open(ctx context.Context, vol *hn4.Volume, slot uint64) (*Stream, error) {
	a, err := vol.ReadAnchor(ctx, slot)
	if err != nil {
		return nil, err
	}
	if a.IsZeroMass() {
		return nil, hn4.ErrDataRot
	}
	vol.Acquire()
	streamID, err := uuid.NewRandom()
	if err != nil {
		vol.Release()
		return nil, err
	}
	return &Stream{
		vol:        vol,
		slot:       slot,
		anchor:     a,
		id:         streamID,
		payloadCap: vol.BlockSize() - hn4.BlockHeaderSize,
	}, nil
}

// Close releases the stream's reference on its volume.
func (s *Stream) Close() {
	s.vol.Release()
}

// ID returns the stream's process-local handle identity.
func (s *Stream) ID() uuid.UUID { return s.id }

// PayloadCap returns the maximum payload bytes one block in this stream
// can carry.
func (s *Stream) PayloadCap() uint32 { return s.payloadCap }

// blockForSeq returns the predicted absolute block index for orbit
// sequence index seq: gravity_center for 0, orbit[seq-1] for 1..OrbitLen.
func (s *Stream) blockForSeq(seq uint64) (uint64, bool) {
	if seq == 0 {
		return s.anchor.Gravity, true
	}
	i := seq - 1
	if i >= uint64(s.anchor.OrbitLen) {
		return 0, false
	}
	return s.anchor.Orbit[i], true
}

// ReadAt reads the payload block predicted for orbit sequence seq into buf,
// verifying identity and integrity the same way the engine's own
// reconstruction pass does.
func (s *Stream) ReadAt(ctx context.Context, seq uint64, buf []byte) (int, error) {
	blockIdx, ok := s.blockForSeq(seq)
	if !ok {
		return 0, hn4.ErrNotFound
	}
	return hn4.ReadBlockAtomic(ctx, s.vol, s.anchor, blockIdx, seq, buf, hn4.ReadFlagNone)
}

// Append writes payload as the next orbit sequence entry, allocating a
// free block from the volume's void bitmap and recording it as the next
// unused orbit slot, then persists the updated anchor. Once every inline
// orbit slot is in use, Append writes nothing and returns ErrNoMem.
func (s *Stream) Append(ctx context.Context, payload []byte) (seq uint64, err error) {
	if uint32(len(payload)) > s.payloadCap {
		return 0, hn4.ErrInvalidArgument
	}
	if int(s.anchor.OrbitLen) >= len(s.anchor.Orbit) {
		return 0, hn4.ErrNoMem
	}
	seq = uint64(s.anchor.OrbitLen)
	blockIdx, err := s.vol.NextFreeBlock()
	if err != nil {
		return 0, err
	}

	var wellID satori.UUID
	copy(wellID[:], s.anchor.SeedID[:])
	if err := s.vol.WriteBlock(ctx, blockIdx, wellID, seq+1, uint64(s.anchor.WriteGen), payload); err != nil {
		return 0, err
	}

	if int(s.anchor.OrbitLen) < len(s.anchor.Orbit) {
		s.anchor.Orbit[s.anchor.OrbitLen] = blockIdx
		s.anchor.OrbitLen++
	}
	s.anchor.Mass += uint64(len(payload))
	if err := s.vol.WriteAnchor(ctx, s.slot, s.anchor); err != nil {
		return 0, err
	}
	return seq + 1, nil
}
