package hn4

import (
	"context"

	"github.com/hydra4/hn4/hal"
	uuid "github.com/satori/go.uuid"
)

// rootSeedID is the all-ones 128-bit sentinel identifying the root anchor.
var rootSeedID = uuid.UUID{
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
}

const (
	anchorFlagValid     AnchorFlag = 1 << 16
	anchorFlagTombstone AnchorFlag = 1 << 17
)

// rootVerifyOutcome reports what verifyRootAnchor decided.
type rootVerifyOutcome int

const (
	rootOK rootVerifyOutcome = iota
	rootRepaired
	rootTaintedRO
)

// verifyRootAnchor reads the block at cortex_start, validates the anchor's
// CRC, then checks root semantics. On a CRC failure during an RW mount it
// performs Genesis repair; during an RO mount it leaves the disk untouched
// and reports the mount should be tainted.
func verifyRootAnchor(ctx context.Context, h hal.HAL, dev hal.Device, sb *superblock, g geometry, readOnly bool) (rootVerifyOutcome, error) {
	sectorLen := uint64(AnchorSize+int(g.SectorSize)-1) / uint64(g.SectorSize)
	buf := make([]byte, sectorLen*uint64(g.SectorSize))
	if err := h.SyncIO(ctx, dev, hal.Read, sb.CortexStartLBA, buf, uint32(sectorLen)); err != nil {
		return rootOK, wrapErr(CodeHWIO, "read root anchor", err)
	}

	a, err := anchorFromBytes(buf[:AnchorSize])
	if err != nil {
		if readOnly {
			return rootTaintedRO, nil
		}
		root := genesisRoot()
		copy(buf[:AnchorSize], root.toBytes())
		if werr := h.SyncIO(ctx, dev, hal.Write, sb.CortexStartLBA, buf, uint32(sectorLen)); werr != nil {
			return rootOK, wrapErr(CodeHWIO, "write genesis root", werr)
		}
		return rootRepaired, nil
	}

	if a.SeedID != rootSeedID {
		return rootOK, ErrNotFound
	}
	if a.DataClass != DataClassStatic {
		return rootOK, ErrNotFound
	}
	if a.Flags&anchorFlagValid == 0 || a.Flags&anchorFlagTombstone != 0 {
		return rootOK, ErrNotFound
	}
	return rootOK, nil
}

// genesisRoot constructs a freshly-initialized valid root anchor.
func genesisRoot() *Anchor {
	return &Anchor{
		SeedID:    rootSeedID,
		DataClass: DataClassStatic,
		Flags:     anchorFlagValid,
	}
}
