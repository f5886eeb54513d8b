package flash

import (
	"fmt"
	"io"

	"github.com/bigbag/spiprobe/internal/errcode"
)

// ResetVariableAddr is the NVRAM offset cleared by ResetVariable.
const ResetVariableAddr = 0x6D8028

// ProgramOptions controls Program.
type ProgramOptions struct {
	// EraseSectors erases each sector when its first chunk arrives.
	EraseSectors bool

	// Buf is the chunk buffer, normally a transfer block payload. When nil
	// a ChunkSize buffer is allocated.
	Buf []byte

	// Counter, when set, is incremented by every byte programmed.
	Counter *uint32
}

// CheckAligned returns errcode.Misaligned unless addr and length are both
// multiples of the sector size.
func CheckAligned(addr, length uint32) error {
	if addr%SectorSize != 0 || length%SectorSize != 0 {
		return &errcode.E{
			C:   errcode.Misaligned,
			Op:  "flash.program",
			Msg: fmt.Sprintf("address 0x%06X length 0x%06X", addr, length),
		}
	}
	return nil
}

// Program writes length bytes read from src starting at addr, one chunk per
// page program command. addr and length must be sector aligned.
func (c *Chip) Program(addr, length uint32, src io.Reader, opts ProgramOptions) error {
	if err := CheckAligned(addr, length); err != nil {
		return err
	}
	buf := opts.Buf
	if len(buf) == 0 {
		buf = make([]byte, ChunkSize)
	}
	chunk := uint32(len(buf))
	total := int((length + chunk - 1) / chunk)

	c.log.Info("program", "addr", addr, "length", length, "erase", opts.EraseSectors)
	for done := 0; uint32(done)*chunk < length; done++ {
		if _, err := io.ReadFull(src, buf); err != nil {
			return fmt.Errorf("read chunk %d: %w", done, err)
		}
		if opts.EraseSectors && addr%SectorSize == 0 {
			if err := c.EraseSector(addr); err != nil {
				return err
			}
		}
		if err := c.WritePage(addr, buf); err != nil {
			return fmt.Errorf("program at 0x%06X: %w", addr, err)
		}
		if opts.Counter != nil {
			*opts.Counter += chunk
		}
		c.reportProgress(done+1, total)
		addr += chunk
	}
	return nil
}

// WritePage runs write enable, page program and the busy wait.
func (c *Chip) WritePage(addr uint32, p []byte) error {
	if err := c.WriteEnable(); err != nil {
		return err
	}
	if err := c.PageProgram(addr, p); err != nil {
		return err
	}
	return c.WaitReady()
}

// ResetVariable programs a single zero byte at ResetVariableAddr.
func (c *Chip) ResetVariable() error {
	return c.WritePage(ResetVariableAddr, []byte{0x00})
}
