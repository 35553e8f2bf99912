package hn4

// Profile selects the format/hardware adapter applied to a volume, per
// spec.md §4.9.
type Profile uint32

const (
	ProfileGeneric Profile = iota
	ProfilePico
	ProfileSystem
	ProfileAI
	ProfileGaming
	ProfileArchive
	ProfileUSB
	ProfileZNS
)

var profileNames = map[Profile]string{
	ProfileGeneric: "GENERIC",
	ProfilePico:    "PICO",
	ProfileSystem:  "SYSTEM",
	ProfileAI:      "AI",
	ProfileGaming:  "GAMING",
	ProfileArchive: "ARCHIVE",
	ProfileUSB:     "USB",
	ProfileZNS:     "ZNS",
}

func (p Profile) String() string {
	if s, ok := profileNames[p]; ok {
		return s
	}
	return "UNKNOWN"
}

const (
	mib = 1 << 20
	gib = 1 << 30
)

// profileSpec is the capacity band, allowed block sizes and resource-skip
// policy for one profile, adapted from the teacher's per-filesystem
// feature-capability tables (features.go) into a single lookup keyed by
// Profile instead of by on-disk feature word.
type profileSpec struct {
	MinCapacity   uint64
	MaxCapacity   uint64 // 0 means unbounded
	AllowedBS     []uint32
	MaxBlockSize  uint32
	SkipResources bool // skip void bitmap / quality mask / cortex occupancy
	SkipL10       bool
}

var profileTable = map[Profile]profileSpec{
	ProfilePico: {
		MinCapacity:   1 * mib,
		MaxCapacity:   2 * gib,
		AllowedBS:     []uint32{512},
		SkipResources: true,
		SkipL10:       true,
	},
	ProfileUSB: {
		MinCapacity: 128 * mib,
		AllowedBS:   []uint32{512, 4096},
	},
	ProfileSystem: {
		AllowedBS: []uint32{512, 4096, 8192},
	},
	ProfileGeneric: {
		AllowedBS: []uint32{512, 4096, 8192},
	},
	ProfileAI: {
		AllowedBS: []uint32{4096, 8192, 16384},
	},
	ProfileGaming: {
		AllowedBS: []uint32{4096, 8192, 16384},
	},
	ProfileArchive: {
		AllowedBS:    []uint32{512, 4096, 8192, 16384, 32768, 65536},
		MaxBlockSize: 64 * 1024,
	},
	ProfileZNS: {
		AllowedBS: nil, // block size must equal the HAL's zone size; checked separately
	},
}

// lookupProfile returns the spec for p, falling back to ProfileGeneric's
// spec for an unrecognised profile value.
func lookupProfile(p Profile) profileSpec {
	if spec, ok := profileTable[p]; ok {
		return spec
	}
	return profileTable[ProfileGeneric]
}

// allowsBlockSize reports whether bs is permitted by spec, treating a nil
// AllowedBS list (the ZNS profile) as "caller must check against zone
// size instead".
func (spec profileSpec) allowsBlockSize(bs uint32) bool {
	if spec.AllowedBS == nil {
		return true
	}
	for _, v := range spec.AllowedBS {
		if v == bs {
			return true
		}
	}
	return false
}

// checkCapacity validates capacity against the profile's band.
func (spec profileSpec) checkCapacity(capacity uint64) bool {
	if capacity < spec.MinCapacity {
		return false
	}
	if spec.MaxCapacity != 0 && capacity > spec.MaxCapacity {
		return false
	}
	return true
}
