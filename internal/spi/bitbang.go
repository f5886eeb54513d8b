package spi

import (
	"github.com/bigbag/spiprobe/internal/gpio"

	"tinygo.org/x/drivers"
)

// BitBang is a mode 0, MSB-first software SPI over three GPIO bits.
// Chip select is left to the caller.
type BitBang struct {
	bits *gpio.Bits
	SCLK gpio.Pin
	MOSI gpio.Pin
	MISO gpio.Pin
}

var _ drivers.SPI = (*BitBang)(nil)

// NewBitBang configures SCLK and MOSI as low outputs and MISO as an input
// without pull-up.
func NewBitBang(bits *gpio.Bits, sclk, mosi, miso gpio.Pin) *BitBang {
	s := &BitBang{bits: bits, SCLK: sclk, MOSI: mosi, MISO: miso}
	bits.SetDirection(sclk, true)
	bits.SetDirection(mosi, true)
	bits.SetDirection(miso, false)
	bits.Write(miso, false)
	bits.Write(sclk, false)
	bits.Write(mosi, false)
	return s
}

// Transfer shifts b out on MOSI while sampling MISO on each rising edge.
func (s *BitBang) Transfer(b byte) (byte, error) {
	val := b
	for i := 0; i < 8; i++ {
		s.bits.Write(s.MOSI, val&0x80 != 0)
		val <<= 1
		s.bits.Write(s.SCLK, true)
		if s.bits.Read(s.MISO) == 1 {
			val |= 1
		}
		s.bits.Write(s.SCLK, false)
	}
	s.bits.Write(s.MOSI, false) // return to zero
	return val, nil
}

func (s *BitBang) Tx(w, r []byte) error { return tx(s, w, r) }
