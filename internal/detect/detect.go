// Package detect identifies the flash part on a probe and suggests the
// target size the console should use for it.
package detect

import (
	"fmt"

	"github.com/bigbag/spiprobe/internal/flash"
)

// Result describes a detected flash part.
type Result struct {
	Backend string
	ID      flash.ID
	Vendor  string
	Part    string
	// Size is the capacity decoded from the id, or 0 when unknown.
	Size uint32
	// Preset is the index of the matching size preset, or -1.
	Preset int
}

// Known reports whether the part was recognised.
func (r *Result) Known() bool { return r.ID.Known() }

// DetectChip identifies the part behind chip.
func DetectChip(chip *flash.Chip, backend string) (*Result, error) {
	id, err := chip.Identify()
	if err != nil {
		return nil, fmt.Errorf("failed to identify chip: %w", err)
	}
	if id.Manufacturer == 0xFF || id.Manufacturer == 0x00 {
		return nil, fmt.Errorf("no chip responding (id %s)", id.Hex())
	}
	size := CapacitySize(id.Capacity)
	return &Result{
		Backend: backend,
		ID:      id,
		Vendor:  id.Vendor(),
		Part:    id.Part(),
		Size:    size,
		Preset:  presetIndex(size),
	}, nil
}

// CapacitySize decodes the JEDEC capacity byte as a power of two. Values
// outside 64 KiB..2 GiB return 0.
func CapacitySize(c byte) uint32 {
	if c < 0x10 || c > 0x1F {
		return 0
	}
	return 1 << c
}

func presetIndex(size uint32) int {
	for i, p := range flash.Presets {
		if p.Size == size {
			return i
		}
	}
	return -1
}
