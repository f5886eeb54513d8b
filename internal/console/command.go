package console

import "github.com/bigbag/spiprobe/internal/xmodem"

// Command is one single-byte operator command.
type Command byte

const (
	CmdIdentify       Command = 'i'
	CmdRead16         Command = 'r'
	CmdReadN          Command = 'R'
	CmdDump           Command = 'd'
	CmdWriteEnable    Command = 'w'
	CmdEraseSector    Command = 'e'
	CmdEraseAll       Command = 'E'
	CmdBulkSpansion   Command = 'B'
	CmdBulkMicron     Command = 'Q'
	CmdBulkMacronix   Command = 'A'
	CmdEraseBlocks    Command = 'z'
	CmdUpload         Command = 'u'
	CmdUploadBIOS     Command = 'b'
	CmdFlashArea1     Command = '1'
	CmdFlashArea2     Command = '2'
	CmdFlashArea3     Command = '3'
	CmdErasePassword  Command = 'f'
	CmdLocatePassword Command = 'l'
	CmdStats          Command = 's'
	CmdSelectSize     Command = 'S'
	CmdResetVariable  Command = 'k'
	CmdDirection      Command = 'x'
	CmdHelp           Command = 'h'
	// CmdTransfer is the receiver's first NAK: dump the device over XMODEM.
	CmdTransfer Command = Command(xmodem.NAK)
)

var commandNames = map[Command]string{
	CmdIdentify:       "identify",
	CmdRead16:         "read16",
	CmdReadN:          "read",
	CmdDump:           "dump",
	CmdWriteEnable:    "write-enable",
	CmdEraseSector:    "erase-sector",
	CmdEraseAll:       "erase-all",
	CmdBulkSpansion:   "bulk-spansion",
	CmdBulkMicron:     "bulk-micron",
	CmdBulkMacronix:   "bulk-macronix",
	CmdEraseBlocks:    "erase-blocks",
	CmdUpload:         "upload",
	CmdUploadBIOS:     "upload-bios",
	CmdFlashArea1:     "flash-area-1",
	CmdFlashArea2:     "flash-area-2",
	CmdFlashArea3:     "flash-area-3",
	CmdErasePassword:  "erase-password",
	CmdLocatePassword: "locate-password",
	CmdStats:          "stats",
	CmdSelectSize:     "select-size",
	CmdResetVariable:  "reset-variable",
	CmdDirection:      "direction",
	CmdHelp:           "help",
	CmdTransfer:       "xmodem",
}

// ParseCommand maps an input byte to a Command.
func ParseCommand(b byte) (Command, bool) {
	c := Command(b)
	_, ok := commandNames[c]
	return c, ok
}

func (c Command) String() string {
	if n, ok := commandNames[c]; ok {
		return n
	}
	return "unknown"
}

// Region is a fixed address range programmed by one of the area commands.
type Region struct {
	Addr   uint32
	Length uint32
}

// Fixed regions of the firmware image.
var (
	RegionBIOS  = Region{0x190000, 0x670000}
	RegionArea1 = Region{0x190000, 0x1A0000}
	RegionArea2 = Region{0x330000, 0x30000}
	RegionArea3 = Region{0x360000, 0x2A0000}
)
