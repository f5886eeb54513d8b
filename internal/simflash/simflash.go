// Package simflash models an SPI NOR flash chip behind a drivers.SPI bus.
//
// The model keeps the properties the programmer relies on: erased cells read
// 0xFF, programming can only clear bits, page program wraps inside its page,
// the write-enable latch gates every program or erase and is cleared when one
// completes, and the chip reports write-in-progress for a configurable number
// of status polls afterwards. Every completed transaction is recorded so tests
// can assert on the exact command sequence.
package simflash

import (
	"fmt"
	"io"

	"github.com/bigbag/spiprobe/internal/gpio"

	"tinygo.org/x/drivers"
)

// Opcodes understood by the model.
const (
	opPageProgram = 0x02
	opRead        = 0x03
	opReadStatus  = 0x05
	opWriteEnable = 0x06
	opSectorErase = 0x20
	opChipErase60 = 0x60
	opReadID      = 0x9F
	opChipEraseC7 = 0xC7
	opBlockErase  = 0xD8
)

const (
	pageSize   = 256
	sectorSize = 4096
	blockSize  = 65536
)

// Model describes a part.
type Model struct {
	Name string
	ID   [3]byte
	// Unique is returned after the three id bytes, length byte first.
	Unique []byte
	Size   uint32
	// Bulk lists the whole-chip erase opcodes the part accepts.
	Bulk []byte
}

// Models are the parts the simulator ships with, by lowercase name.
var Models = map[string]Model{
	"n25q064a": {
		Name: "N25Q064A",
		ID:   [3]byte{0x20, 0xBA, 0x17},
		Unique: []byte{0x10,
			0x10, 0x00,
			0x23, 0x45, 0x67, 0x89, 0xAB, 0xCD, 0xEF, 0x01, 0x12, 0x34, 0x56, 0x78, 0x9A, 0xBC},
		Size: 8 << 20,
		Bulk: []byte{opChipEraseC7},
	},
	"w25q64fv": {
		Name: "W25Q64FV",
		ID:   [3]byte{0xEF, 0x40, 0x17},
		Size: 8 << 20,
		Bulk: []byte{opChipEraseC7, opChipErase60},
	},
	"mx25l6406e": {
		Name: "MX25L6406E",
		ID:   [3]byte{0xC2, 0x20, 0x17},
		Size: 8 << 20,
	},
	"s25fl128s": {
		Name: "S25FL128S",
		ID:   [3]byte{0x01, 0x20, 0x18},
		Size: 16 << 20,
		Bulk: []byte{opChipErase60},
	},
	"sst25vf016b": {
		Name: "SST25VF016B",
		ID:   [3]byte{0xBF, 0x25, 0x41},
		Size: 2 << 20,
	},
}

// DefaultModel is used when no part is named.
const DefaultModel = "n25q064a"

// Command is one completed chip-select transaction.
type Command struct {
	Op   byte
	Addr uint32
	// Len is the number of bytes clocked after the opcode and address.
	Len int
	// Ignored is set when the chip discarded the command: no write-enable
	// latch, busy, or an unsupported opcode.
	Ignored bool
}

func (c Command) String() string {
	return fmt.Sprintf("%02X@%06X+%d", c.Op, c.Addr, c.Len)
}

// Chip is a simulated flash part. It implements drivers.SPI; bytes clocked
// while the chip is not selected read back as 0xFF.
type Chip struct {
	model     Model
	mem       []byte
	busyPolls int

	selected bool
	frame    []byte
	clocked  int
	wel      bool
	busy     int
	wire     shifter

	log []Command
}

var _ drivers.SPI = (*Chip)(nil)

// Option configures a Chip.
type Option func(*Chip)

// WithBusyPolls sets how many status reads report write-in-progress after
// each program or erase.
func WithBusyPolls(n int) Option {
	return func(c *Chip) {
		if n >= 0 {
			c.busyPolls = n
		}
	}
}

// New returns an erased chip.
func New(m Model, opts ...Option) *Chip {
	c := &Chip{model: m, mem: make([]byte, m.Size), busyPolls: 1}
	for i := range c.mem {
		c.mem[i] = 0xFF
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Lookup returns the model registered under name.
func Lookup(name string) (Model, error) {
	if name == "" {
		name = DefaultModel
	}
	m, ok := Models[name]
	if !ok {
		return Model{}, fmt.Errorf("unknown simulated chip %q", name)
	}
	return m, nil
}

// Model returns the part description.
func (c *Chip) Model() Model { return c.model }

// Attach wires the chip select of c to an active-low pin on bank.
func (c *Chip) Attach(bank *gpio.SimBank, cs gpio.Pin) {
	bank.Watch(cs, func(level bool) { c.Select(!level) })
}

// Select asserts or releases chip select. Releasing it executes the
// buffered command.
func (c *Chip) Select(active bool) {
	if active == c.selected {
		return
	}
	c.selected = active
	if active {
		c.frame = c.frame[:0]
		c.clocked = 0
		c.wire = shifter{}
		return
	}
	c.complete()
}

func (c *Chip) Transfer(b byte) (byte, error) {
	if !c.selected {
		return 0xFF, nil
	}
	out := c.respond()
	c.accept(b)
	return out, nil
}

// respond returns the byte the chip shifts out for the next clocked byte.
// It never depends on the byte being shifted in at the same time.
func (c *Chip) respond() byte {
	i := c.clocked
	if i == 0 {
		return 0xFF
	}
	switch c.frame[0] {
	case opReadID:
		n := i - 1
		if n < 3 {
			return c.model.ID[n]
		}
		if n-3 < len(c.model.Unique) {
			return c.model.Unique[n-3]
		}
		return 0x00
	case opRead:
		if i < 4 || c.busy > 0 {
			return 0xFF
		}
		addr := c.address() + uint32(i-4)
		return c.mem[addr%c.model.Size]
	case opReadStatus:
		st := c.status()
		if c.busy > 0 {
			c.busy--
		}
		return st
	}
	return 0xFF
}

func (c *Chip) accept(b byte) {
	// read data is not kept, a dump would buffer the whole array
	if c.clocked < 4 || c.frame[0] != opRead {
		c.frame = append(c.frame, b)
	}
	c.clocked++
}

func (c *Chip) Tx(w, r []byte) error {
	switch {
	case len(w) != 0 && len(r) != 0:
		if len(w) != len(r) {
			return fmt.Errorf("simflash: buffer length mismatch %d != %d", len(w), len(r))
		}
		for i := range w {
			r[i], _ = c.Transfer(w[i])
		}
	case len(w) != 0:
		for _, b := range w {
			c.Transfer(b)
		}
	default:
		for i := range r {
			r[i], _ = c.Transfer(0)
		}
	}
	return nil
}

func (c *Chip) status() byte {
	var st byte
	if c.busy > 0 {
		st |= 0x01
	}
	if c.wel {
		st |= 0x02
	}
	return st
}

// address decodes the 24-bit big-endian address following the opcode.
func (c *Chip) address() uint32 {
	if len(c.frame) < 4 {
		return 0
	}
	return uint32(c.frame[1])<<16 | uint32(c.frame[2])<<8 | uint32(c.frame[3])
}

func (c *Chip) complete() {
	if c.clocked == 0 {
		return
	}
	cmd := Command{Op: c.frame[0]}
	switch cmd.Op {
	case opRead, opPageProgram, opSectorErase, opBlockErase:
		cmd.Addr = c.address()
		if n := c.clocked - 4; n > 0 {
			cmd.Len = n
		}
	default:
		cmd.Len = c.clocked - 1
	}
	cmd.Ignored = !c.execute(cmd)
	c.log = append(c.log, cmd)
}

// execute applies a mutating command and reports whether the chip accepted it.
func (c *Chip) execute(cmd Command) bool {
	switch cmd.Op {
	case opReadID, opRead, opReadStatus:
		return true
	}
	if c.busy > 0 {
		return false
	}
	switch cmd.Op {
	case opWriteEnable:
		c.wel = true
		return true
	case opPageProgram:
		if !c.wel || len(c.frame) < 4 {
			return false
		}
		c.program(cmd.Addr, c.frame[4:])
	case opSectorErase:
		if !c.wel || len(c.frame) < 4 {
			return false
		}
		c.erase(cmd.Addr&^(sectorSize-1), sectorSize)
	case opBlockErase:
		if !c.wel || len(c.frame) < 4 {
			return false
		}
		c.erase(cmd.Addr&^(blockSize-1), blockSize)
	case opChipErase60, opChipEraseC7:
		if !c.wel || !c.supportsBulk(cmd.Op) {
			return false
		}
		c.erase(0, c.model.Size)
	default:
		return false
	}
	c.wel = false
	c.busy = c.busyPolls
	return true
}

func (c *Chip) supportsBulk(op byte) bool {
	for _, b := range c.model.Bulk {
		if b == op {
			return true
		}
	}
	return false
}

// program clears bits; the column wraps at the end of the page.
func (c *Chip) program(addr uint32, data []byte) {
	addr %= c.model.Size
	base := addr &^ (pageSize - 1)
	col := addr & (pageSize - 1)
	for _, b := range data {
		c.mem[base+col] &= b
		col = (col + 1) & (pageSize - 1)
	}
}

func (c *Chip) erase(addr, n uint32) {
	addr %= c.model.Size
	for i := addr; i < addr+n && i < c.model.Size; i++ {
		c.mem[i] = 0xFF
	}
}

// Log returns the completed transactions since the last ResetLog.
func (c *Chip) Log() []Command { return c.log }

// ResetLog discards the transaction log.
func (c *Chip) ResetLog() { c.log = nil }

// Ops returns the opcodes of the logged transactions, leaving out status
// reads.
func (c *Chip) Ops() []byte {
	var ops []byte
	for _, cmd := range c.log {
		if cmd.Op != opReadStatus {
			ops = append(ops, cmd.Op)
		}
	}
	return ops
}

// Bytes returns the memory array. Writes to it change the chip contents.
func (c *Chip) Bytes() []byte { return c.mem }

// Load copies an image into the start of the array. Images larger than the
// part are rejected.
func (c *Chip) Load(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	if uint32(len(data)) > c.model.Size {
		return fmt.Errorf("image is %d bytes, %s holds %d", len(data), c.model.Name, c.model.Size)
	}
	copy(c.mem, data)
	return nil
}

// WriteTo writes the whole array to w.
func (c *Chip) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(c.mem)
	return int64(n), err
}
