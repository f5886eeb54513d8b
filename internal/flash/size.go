package flash

// DefaultSize is the target flash size until one is selected: 64 Mbit.
const DefaultSize uint32 = 8 << 20

// Preset is one selectable target flash size.
type Preset struct {
	Size  uint32
	Label string
}

// Presets are indexed by the digit the operator types.
var Presets = [...]Preset{
	{1 << 20, "1MB (8 Mbit)"},
	{2 << 20, "2MB (16 Mbit)"},
	{4 << 20, "4MB (32 Mbit)"},
	{8 << 20, "8MB (64 Mbit)"},
	{16 << 20, "16MB (128 Mbit)"},
	{32 << 20, "32MB (256 Mbit)"},
	{1 << 16, "64K (512 Kbit)"},
	{1 << 17, "128K (1 Mbit)"},
	{1 << 18, "256K (2 Mbit)"},
}

// PresetSize returns the size for selection i.
func PresetSize(i uint32) (uint32, bool) {
	if i >= uint32(len(Presets)) {
		return 0, false
	}
	return Presets[i].Size, true
}
