package flash

import (
	"fmt"

	"github.com/bigbag/spiprobe/internal/errcode"
)

// Bulk selects how a whole chip is erased.
type Bulk uint8

const (
	// BulkSpansion uses opcode 0x60 (S25FL128S).
	BulkSpansion Bulk = iota
	// BulkMicronWinbond uses opcode 0xC7 (N25Q064A, W25Q64FV).
	BulkMicronWinbond
	// BulkMacronix has no chip erase opcode; every block is erased in turn
	// (MX25L64).
	BulkMacronix
)

func (b Bulk) String() string {
	switch b {
	case BulkSpansion:
		return "Spansion S25FL128S"
	case BulkMicronWinbond:
		return "Micron N25Q064A/Winbond W25Q64FV"
	case BulkMacronix:
		return "Macronix MX25L64"
	}
	return fmt.Sprintf("Bulk(%d)", uint8(b))
}

// erase runs write enable, the erase command and the busy wait.
func (c *Chip) erase(op byte, addr uint32, withAddr bool, busy func()) error {
	if err := c.WriteEnable(); err != nil {
		return err
	}
	h := header(op, addr)
	w := h[:]
	if !withAddr {
		w = h[:1]
	}
	if err := c.transaction(w, nil); err != nil {
		return err
	}
	return c.waitReady(busy)
}

// EraseSector erases the 4 KiB sector at addr.
func (c *Chip) EraseSector(addr uint32) error {
	if addr%SectorSize != 0 {
		return &errcode.E{C: errcode.Misaligned, Op: "flash.erase_sector", Msg: fmt.Sprintf("0x%06X", addr)}
	}
	c.log.Debug("erase sector", "addr", addr)
	return c.erase(CmdSectorErase, addr, true, nil)
}

// EraseBlock erases the 64 KiB block at addr.
func (c *Chip) EraseBlock(addr uint32) error {
	if addr%BlockSize != 0 {
		return &errcode.E{C: errcode.Misaligned, Op: "flash.erase_block", Msg: fmt.Sprintf("0x%06X", addr)}
	}
	c.log.Debug("erase block", "addr", addr)
	return c.erase(CmdBlockErase, addr, true, nil)
}

// EraseBySectors erases size bytes from address 0 one sector at a time.
func (c *Chip) EraseBySectors(size uint32) error {
	return c.eraseUnits(size, SectorSize, c.EraseSector)
}

// EraseByBlocks erases size bytes from address 0 one block at a time.
func (c *Chip) EraseByBlocks(size uint32) error {
	return c.eraseUnits(size, BlockSize, c.EraseBlock)
}

func (c *Chip) eraseUnits(size, unit uint32, erase func(uint32) error) error {
	total := int(size / unit)
	for i := 0; i < total; i++ {
		addr := uint32(i) * unit
		if err := erase(addr); err != nil {
			return fmt.Errorf("erase at 0x%06X: %w", addr, err)
		}
		c.reportProgress(i+1, total)
	}
	c.log.Info("erase complete", "size", size, "unit", unit)
	return nil
}

// BulkErase erases the whole chip with the given variant. busy is called
// after every status read that still reports write in progress; it is only
// used by the single-command variants. size bounds BulkMacronix.
func (c *Chip) BulkErase(v Bulk, size uint32, busy func()) error {
	defer c.PowerOff()
	c.log.Info("bulk erase", "variant", v.String(), "size", size)
	switch v {
	case BulkSpansion:
		return c.erase(CmdChipErase, 0, false, busy)
	case BulkMicronWinbond:
		return c.erase(CmdChipEraseAlt, 0, false, busy)
	case BulkMacronix:
		return c.EraseByBlocks(size)
	}
	return &errcode.E{C: errcode.Unsupported, Op: "flash.bulk_erase", Msg: v.String()}
}
