// Package flash implements the SPI NOR command set: identification, reads,
// page programming, status polling and the erase variants, on top of any
// tinygo.org/x/drivers.SPI bus with a GPIO chip select.
package flash

import (
	"time"

	"github.com/bigbag/spiprobe/internal/errcode"
	"github.com/bigbag/spiprobe/internal/gpio"
	"github.com/bigbag/spiprobe/internal/logging"

	"tinygo.org/x/drivers"
)

// Command opcodes
const (
	CmdPageProgram  byte = 0x02
	CmdRead         byte = 0x03
	CmdReadStatus   byte = 0x05
	CmdWriteEnable  byte = 0x06
	CmdSectorErase  byte = 0x20
	CmdChipErase    byte = 0x60 // Spansion
	CmdReadID       byte = 0x9F
	CmdChipEraseAlt byte = 0xC7 // Micron, Winbond
	CmdBlockErase   byte = 0xD8
)

// Geometry
const (
	PageSize   = 256
	SectorSize = 4096
	BlockSize  = 65536

	// ChunkSize is the number of bytes Program writes per page program
	// command, one transfer block payload.
	ChunkSize = 128
)

// Status is the device status register.
type Status uint8

const (
	StatusWIP Status = 1 << 0
	StatusWEL Status = 1 << 1
)

// WIP reports a write or erase in progress.
func (s Status) WIP() bool { return s&StatusWIP != 0 }

// WEL reports the write-enable latch.
func (s Status) WEL() bool { return s&StatusWEL != 0 }

// ProgressCallback is called to report progress of long operations.
type ProgressCallback func(current, total int)

// Chip issues flash commands. Chip select is active low. Chip is not safe
// for concurrent use; the console runs one command at a time.
type Chip struct {
	bus  drivers.SPI
	bits *gpio.Bits
	cs   gpio.Pin

	power      gpio.Pin
	hasPower   bool
	powerDelay time.Duration

	pollLimit int
	progress  ProgressCallback
	log       logging.Logger
}

// Option configures a Chip.
type Option func(*Chip)

// WithPower drives pin high around each operation and waits settle after
// switching it on.
func WithPower(pin gpio.Pin, settle time.Duration) Option {
	return func(c *Chip) {
		c.power = pin
		c.hasPower = true
		c.powerDelay = settle
	}
}

// WithPollLimit bounds every busy wait to n status reads. Exceeding it
// returns errcode.Timeout. Zero keeps the unbounded wait.
func WithPollLimit(n int) Option {
	return func(c *Chip) {
		if n >= 0 {
			c.pollLimit = n
		}
	}
}

// WithLogger sets a logger for command tracing.
func WithLogger(l logging.Logger) Option {
	return func(c *Chip) { c.log = logging.OrNop(l) }
}

// New creates a Chip on bus with chip select on cs.
func New(bus drivers.SPI, bits *gpio.Bits, cs gpio.Pin, opts ...Option) *Chip {
	c := &Chip{bus: bus, bits: bits, cs: cs, log: logging.Nop{}}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SetProgressCallback sets the progress callback function.
func (c *Chip) SetProgressCallback(cb ProgressCallback) {
	c.progress = cb
}

// reportProgress calls the progress callback if set.
func (c *Chip) reportProgress(current, total int) {
	if c.progress != nil {
		c.progress(current, total)
	}
}

// Deselect releases chip select. Board bring-up calls it once.
func (c *Chip) Deselect() { c.bits.Write(c.cs, true) }

func (c *Chip) selectChip() { c.bits.Write(c.cs, false) }

// PowerOn switches the supply pin on and waits for the part to settle.
func (c *Chip) PowerOn() {
	if !c.hasPower {
		return
	}
	c.bits.Write(c.power, true)
	if c.powerDelay > 0 {
		time.Sleep(c.powerDelay)
	}
}

// PowerOff switches the supply pin off.
func (c *Chip) PowerOff() {
	if c.hasPower {
		c.bits.Write(c.power, false)
	}
}

// header returns the opcode followed by the 24-bit big-endian address.
func header(op byte, addr uint32) [4]byte {
	return [4]byte{op, byte(addr >> 16), byte(addr >> 8), byte(addr)}
}

// transaction runs one chip-select bracketed exchange: w is shifted out,
// then len(r) bytes are clocked in.
func (c *Chip) transaction(w, r []byte) error {
	c.selectChip()
	defer c.Deselect()
	if len(w) > 0 {
		if err := c.bus.Tx(w, nil); err != nil {
			return err
		}
	}
	if len(r) > 0 {
		if err := c.bus.Tx(nil, r); err != nil {
			return err
		}
	}
	return nil
}

// ReadStatus reads the status register.
func (c *Chip) ReadStatus() (Status, error) {
	var r [1]byte
	if err := c.transaction([]byte{CmdReadStatus}, r[:]); err != nil {
		return 0, err
	}
	return Status(r[0]), nil
}

// WriteEnable powers the part and sets the write-enable latch. The latch is
// not verified; the device clears it after every completed program or erase.
func (c *Chip) WriteEnable() error {
	c.PowerOn()
	return c.transaction([]byte{CmdWriteEnable}, nil)
}

// Read reads len(p) bytes starting at addr.
func (c *Chip) Read(addr uint32, p []byte) error {
	c.PowerOn()
	defer c.PowerOff()
	h := header(CmdRead, addr)
	return c.transaction(h[:], p)
}

// PageProgram writes p at addr. The caller must have set the write-enable
// latch and must not cross a page boundary; the device wraps inside the page.
func (c *Chip) PageProgram(addr uint32, p []byte) error {
	c.selectChip()
	defer c.Deselect()
	h := header(CmdPageProgram, addr)
	if err := c.bus.Tx(h[:], nil); err != nil {
		return err
	}
	return c.bus.Tx(p, nil)
}

// WaitReady polls the status register until write-in-progress clears.
func (c *Chip) WaitReady() error {
	return c.waitReady(nil)
}

// waitReady calls busy after every status read that still reports WIP.
func (c *Chip) waitReady(busy func()) error {
	for polls := 1; ; polls++ {
		st, err := c.ReadStatus()
		if err != nil {
			return err
		}
		if !st.WIP() {
			return nil
		}
		if busy != nil {
			busy()
		}
		if c.pollLimit > 0 && polls >= c.pollLimit {
			return &errcode.E{C: errcode.Timeout, Op: "flash.wait", Msg: "write in progress did not clear"}
		}
	}
}

// Stream is one continuous read transaction. The device auto-increments the
// address so any number of Read calls continue where the last one stopped.
type Stream struct {
	c    *Chip
	addr uint32
	open bool
}

// OpenStream powers the part, selects it and issues a read at addr. Close
// must be called to release chip select.
func (c *Chip) OpenStream(addr uint32) (*Stream, error) {
	c.PowerOn()
	c.selectChip()
	h := header(CmdRead, addr)
	if err := c.bus.Tx(h[:], nil); err != nil {
		c.Deselect()
		c.PowerOff()
		return nil, err
	}
	return &Stream{c: c, addr: addr, open: true}, nil
}

// Read fills p with the next len(p) bytes. It never returns io.EOF; the
// device wraps at the end of its array.
func (s *Stream) Read(p []byte) (int, error) {
	if !s.open {
		return 0, errcode.New(errcode.Error, "flash.stream", "read after close")
	}
	if len(p) == 0 {
		return 0, nil
	}
	if err := s.c.bus.Tx(nil, p); err != nil {
		return 0, err
	}
	s.addr += uint32(len(p))
	return len(p), nil
}

// Addr returns the address of the next byte.
func (s *Stream) Addr() uint32 { return s.addr }

// Close ends the transaction and powers the part off.
func (s *Stream) Close() error {
	if !s.open {
		return nil
	}
	s.open = false
	s.c.Deselect()
	s.c.PowerOff()
	return nil
}
