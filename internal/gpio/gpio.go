// Package gpio addresses single bits of 8-bit port registers.
//
// A Pin packs a port identifier in the high nibble and a bit position in the
// low nibble, so 0xB3 is bit 3 of port B:
//
//	bits.SetDirection(0xB3, false) // DDRB &^= 1 << 3
//	bits.Write(0xB0, true)         // PORTB |= 1 << 0
//	bits.Read(0xB3)                // PINB & (1 << 3)
package gpio

import "github.com/bigbag/spiprobe/internal/errcode"

// Port identifies one 8-bit I/O port.
type Port uint8

// Supported ports.
const (
	PortB Port = 0xB
	PortC Port = 0xC
	PortD Port = 0xD
	PortE Port = 0xE
	PortF Port = 0xF
)

// Valid reports whether p is one of the supported ports.
func (p Port) Valid() bool { return p >= PortB && p <= PortF }

func (p Port) String() string {
	if !p.Valid() {
		return "?"
	}
	return string(rune('A' + p - 0xA))
}

// Pin is a port nibble and a bit nibble in one byte.
type Pin uint8

// NewPin builds a Pin from its parts.
func NewPin(p Port, bit uint8) Pin { return Pin(uint8(p)<<4 | bit&0xF) }

func (p Pin) Port() Port  { return Port(p >> 4) }
func (p Pin) Bit() uint8  { return uint8(p) & 0xF }
func (p Pin) Valid() bool { return p.Port().Valid() && p.Bit() < 8 }

func (p Pin) String() string {
	return "P" + p.Port().String() + string(rune('0'+p.Bit()&0x7))
}

// Register selects one of the three registers behind every port.
type Register uint8

const (
	DDR  Register = iota // direction, 1 = output
	PORT                 // output latch
	PIN                  // input levels
)

// Bank is a set of port registers. Implementations may be real hardware, a
// platform pin driver emulating registers, or a simulation.
type Bank interface {
	Load(r Register, p Port) uint8
	Store(r Register, p Port, v uint8)
}

// Undefined is returned by Read for pins outside the supported ports.
const Undefined uint8 = 0xFF

// Bits resolves Pin addresses into register read/modify/write operations.
type Bits struct {
	bank Bank
}

// New returns a Bits over bank.
func New(bank Bank) *Bits { return &Bits{bank: bank} }

// Bank returns the underlying register bank.
func (b *Bits) Bank() Bank { return b.bank }

func (b *Bits) modify(r Register, pin Pin, set bool) {
	if !pin.Valid() {
		return
	}
	port := pin.Port()
	v := b.bank.Load(r, port)
	mask := uint8(1) << pin.Bit()
	if set {
		v |= mask
	} else {
		v &^= mask
	}
	b.bank.Store(r, port, v)
}

// SetDirection configures pin as an output (true) or input (false).
// Pins on unsupported ports are ignored.
func (b *Bits) SetDirection(pin Pin, isOutput bool) { b.modify(DDR, pin, isOutput) }

// Write sets the output latch of pin. On an input pin this toggles the
// pull-up, as on the AVR parts the addressing scheme comes from.
func (b *Bits) Write(pin Pin, level bool) { b.modify(PORT, pin, level) }

// Read returns 1 or 0 for the input level of pin, or Undefined when the pin
// is not on a supported port. Undefined must not be treated as data.
func (b *Bits) Read(pin Pin) uint8 {
	if !pin.Valid() {
		return Undefined
	}
	if b.bank.Load(PIN, pin.Port())&(1<<pin.Bit()) != 0 {
		return 1
	}
	return 0
}

// Level is Read with an explicit error for unsupported pins.
func (b *Bits) Level(pin Pin) (bool, error) {
	v := b.Read(pin)
	if v == Undefined {
		return false, &errcode.E{C: errcode.UnknownPin, Op: "gpio.level", Msg: pin.String()}
	}
	return v == 1, nil
}

// Direction returns the raw direction register of port, or 0 for an
// unsupported port.
func (b *Bits) Direction(p Port) uint8 {
	if !p.Valid() {
		return 0
	}
	return b.bank.Load(DDR, p)
}
