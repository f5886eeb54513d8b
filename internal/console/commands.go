package console

import (
	"fmt"

	"github.com/bigbag/spiprobe/internal/errcode"
	"github.com/bigbag/spiprobe/internal/flash"
	"github.com/bigbag/spiprobe/internal/xmodem"
)

const (
	// dumpChunk is the number of bytes the raw dump reads per write.
	dumpChunk = 64
	// maxReadN bounds the length of a hex read.
	maxReadN = 0x7FFFFFFF
)

func (c *Console) identify() error {
	id, err := c.chip.Identify()
	if err != nil {
		return err
	}
	c.out.Line(id.Vendor() + " " + id.Part())
	c.out.Line(id.Hex())
	return nil
}

func (c *Console) read16() error {
	addr, err := c.readHex()
	if err != nil {
		return err
	}
	var data [16]byte
	if err := c.chip.Read(addr, data[:]); err != nil {
		return err
	}
	c.out.Write(append(appendBytes(nil, data[:]), '\r', '\n'))
	return nil
}

func (c *Console) readN() error {
	addr, err := c.readHex()
	if err != nil {
		return err
	}
	n, err := c.readHex()
	if err != nil {
		return err
	}
	if n > maxReadN {
		return &errcode.E{C: errcode.CapacityExceeded, Op: "console.read", Msg: fmt.Sprintf("length %X too large", n)}
	}
	st, err := c.chip.OpenStream(addr)
	if err != nil {
		return err
	}
	defer st.Close()

	var data [16]byte
	line := make([]byte, 0, 16*3+2)
	for n > 0 {
		if err := c.ctx.Err(); err != nil {
			return err
		}
		k := uint32(len(data))
		if n < k {
			k = n
		}
		if _, err := st.Read(data[:k]); err != nil {
			return err
		}
		line = appendBytes(line[:0], data[:k])
		c.out.Write(append(line, '\r', '\n'))
		n -= k
	}
	return nil
}

func (c *Console) dump() error {
	size := c.session.TargetSize
	st, err := c.chip.OpenStream(0)
	if err != nil {
		return err
	}
	defer st.Close()

	var buf [dumpChunk]byte
	total := int(size / dumpChunk)
	for i := 0; i < total; i++ {
		if _, err := st.Read(buf[:]); err != nil {
			return err
		}
		c.out.Write(buf[:])
		if c.out.err != nil {
			return c.out.err
		}
		c.activity.Progress(i+1, total)
	}
	return nil
}

func (c *Console) writeEnable() error {
	if err := c.chip.WriteEnable(); err != nil {
		return err
	}
	st, err := c.chip.ReadStatus()
	if err != nil {
		return err
	}
	b := appendHex(nil, uint32(st), 2)
	if !st.WEL() {
		b = append(b, '!')
	}
	c.out.Write(append(b, '\r', '\n'))
	return nil
}

func (c *Console) eraseSector() error {
	addr, err := c.readHex()
	if err != nil {
		return err
	}
	st, err := c.chip.ReadStatus()
	if err != nil {
		return err
	}
	if !st.WEL() {
		return &errcode.E{C: errcode.WriteProtected, Op: "console.erase_sector", Msg: "write enable latch clear"}
	}
	if err := c.chip.EraseSector(addr); err != nil {
		return err
	}
	c.out.Write(append(appendHex([]byte{'E'}, addr, 6), '\r', '\n'))
	return nil
}

func (c *Console) eraseAll(erase func(size uint32) error) error {
	if err := erase(c.session.TargetSize); err != nil {
		return err
	}
	c.out.Line("done!")
	return nil
}

func (c *Console) bulkErase(v flash.Bulk) error {
	c.out.Line("Starting " + v.String() + " bulk erase...")
	var busy func()
	if v == flash.BulkMicronWinbond {
		busy = func() { c.out.String(".") }
	}
	if err := c.chip.BulkErase(v, c.session.TargetSize, busy); err != nil {
		return err
	}
	c.out.String("\r\n")
	c.out.Line("Finished bulk erase!")
	return nil
}

// uploadHeader writes G or !, the address and the length.
func (c *Console) uploadHeader(ok bool, r Region, digits int) {
	b := []byte{'!', ' '}
	if ok {
		b[0] = 'G'
	}
	b = appendHex(b, r.Addr, digits)
	b = append(b, ' ')
	b = appendHex(b, r.Length, digits)
	c.out.Write(append(b, '\r', '\n'))
}

// program receives r.Length raw bytes and writes them at r.Addr. Unaligned
// regions are refused before any data is read or hardware touched.
func (c *Console) program(r Region, digits int, eraseFirst bool) error {
	c.session.Uploaded = 0
	ok := flash.CheckAligned(r.Addr, r.Length) == nil
	c.uploadHeader(ok, r, digits)
	if !ok {
		return nil
	}
	err := c.chip.Program(r.Addr, r.Length, portReader{commandPort{c}}, flash.ProgramOptions{
		EraseSectors: eraseFirst,
		Buf:          c.sender.Block().Data[:],
		Counter:      &c.session.Uploaded,
	})
	if err != nil {
		return err
	}
	c.out.Line("done!")
	return nil
}

func (c *Console) upload() error {
	addr, err := c.readHex()
	if err != nil {
		return err
	}
	n, err := c.readHex()
	if err != nil {
		return err
	}
	return c.program(Region{addr, n}, 7, false)
}

func (c *Console) flashRegion(r Region) error {
	return c.program(r, 6, true)
}

func (c *Console) erasePassword() error {
	c.pace(LEDEraseScanEvery)
	c.out.Line("Locating passwords...")
	sectors, err := c.scanner.Sectors()
	if err != nil {
		return err
	}
	c.out.Line("Erasing passwords...")
	err = c.scanner.EraseSectors(sectors, func(addr uint32) {
		c.out.String("Clearing password from address: ")
		c.out.Write(append(appendAddr(nil, addr), '\r', '\n'))
	})
	if err != nil {
		return err
	}
	c.out.Line("All done!")
	return nil
}

func (c *Console) locatePassword() error {
	c.out.Line("Locating passwords...")
	err := c.scanner.Locate(func(addr uint32) {
		c.out.String("Found potential password at address: ")
		c.out.Write(append(appendAddr(nil, addr), '\r', '\n'))
	})
	if err != nil {
		return err
	}
	c.out.Line("All done!")
	return nil
}

func (c *Console) stats() error {
	c.out.String("Uploaded and written bytes: ")
	c.out.Write(append(appendAddr(nil, c.session.Uploaded), '\r', '\n'))
	return nil
}

func (c *Console) selectSize() error {
	c.out.Line("Select target flash size:")
	for i, p := range flash.Presets {
		c.out.Line(fmt.Sprintf("%d - %s", i, p.Label))
	}
	c.out.Line("")
	c.out.Line("Default is 64 Mbit")
	choice, err := c.readHex()
	if err != nil {
		return err
	}
	size, ok := flash.PresetSize(choice)
	if !ok {
		c.out.Line("ERROR: Invalid target size selected.")
		return nil
	}
	c.session.TargetSize = size
	c.log.Info("target size", "bytes", size)
	return nil
}

func (c *Console) resetVariable() error {
	if err := c.chip.ResetVariable(); err != nil {
		return err
	}
	c.out.Line("done!")
	return nil
}

func (c *Console) direction() error {
	c.out.Write(appendHex(nil, uint32(c.bits.Direction(c.ddr)), 2))
	return nil
}

// transfer dumps the target size over XMODEM. The receiver's first NAK is
// the command byte itself.
func (c *Console) transfer() error {
	err := c.sendImage()
	c.out.Line("xmodem done")
	return err
}

func (c *Console) sendImage() error {
	if err := c.sender.Init(true); err != nil {
		return err
	}
	st, err := c.chip.OpenStream(0)
	if err != nil {
		return err
	}
	size := c.session.TargetSize
	total := int((size + xmodem.PayloadSize - 1) / xmodem.PayloadSize)
	err = c.sender.Stream(st, size, func(n int) { c.activity.Progress(n, total) })
	st.Close()
	if err != nil {
		return err
	}
	return c.sender.Finish()
}
