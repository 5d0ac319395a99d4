package sst25

import "time"

type flashParams struct {
	name string
	size int

	tErase4KB  time.Duration
	tEraseChip time.Duration
}

// Device IDs returned by the Read-ID command at address 0. The manufacturer
// ID is 0xBF for all of them.
const (
	flashIDSST25VF512A = 0x48
	flashIDSST25VF010A = 0x49
	flashIDSST25VF020B = 0x8C
	flashIDSST25VF040B = 0x8D
	flashIDSST25VF080B = 0x8E
	flashIDSST25VF016B = 0x41
	flashIDSST25VF032B = 0x4A
)

// Erase times are the data sheet maxima: tSE for a 4KB sector, tSCE for the
// whole chip.
var knownFlash = map[byte]flashParams{
	flashIDSST25VF512A: {
		name: "SST25VF512A", size: 64 << 10,
		tErase4KB: 25 * time.Millisecond, tEraseChip: 100 * time.Millisecond,
	},
	flashIDSST25VF010A: {
		name: "SST25VF010A", size: 128 << 10,
		tErase4KB: 25 * time.Millisecond, tEraseChip: 100 * time.Millisecond,
	},
	flashIDSST25VF020B: {
		name: "SST25VF020B", size: 256 << 10,
		tErase4KB: 25 * time.Millisecond, tEraseChip: 50 * time.Millisecond,
	},
	flashIDSST25VF040B: {
		name: "SST25VF040B", size: 512 << 10,
		tErase4KB: 25 * time.Millisecond, tEraseChip: 50 * time.Millisecond,
	},
	flashIDSST25VF080B: {
		// [SST25VF080B|Table 16: AC Operating Characteristics]
		name: "SST25VF080B", size: 1 << 20,
		tErase4KB: 25 * time.Millisecond, tEraseChip: 50 * time.Millisecond,
	},
	flashIDSST25VF016B: {
		name: "SST25VF016B", size: 2 << 20,
		tErase4KB: 25 * time.Millisecond, tEraseChip: 50 * time.Millisecond,
	},
	flashIDSST25VF032B: {
		name: "SST25VF032B", size: 4 << 20,
		tErase4KB: 25 * time.Millisecond, tEraseChip: 50 * time.Millisecond,
	},
}

// params returns the parameters of the identified chip, or those of the
// SST25VF080B until ReadID has recognised one.
func (f *Flash) params() flashParams {
	if f.pr != nil {
		return *f.pr
	}
	return knownFlash[flashIDSST25VF080B]
}

// Capacity returns the size of the flash array in bytes.
func (f *Flash) Capacity() int { return f.params().size }
