package simflash

import "github.com/bigbag/spiprobe/internal/gpio"

// shifter holds the bit-level state of a byte in flight.
type shifter struct {
	bit uint8
	in  byte
	out byte
}

// Wire connects c to a bit-banged bus on bank: MOSI is sampled and MISO
// driven on every rising SCLK edge while the chip is selected (mode 0, MSB
// first).
func (c *Chip) Wire(bank *gpio.SimBank, sclk, mosi, miso gpio.Pin) {
	bank.Watch(sclk, func(level bool) {
		if !level || !c.selected {
			return
		}
		w := &c.wire
		if w.bit == 0 {
			w.out = c.respond()
		}
		bit := bank.Load(gpio.PIN, mosi.Port()) >> mosi.Bit() & 1
		w.in = w.in<<1 | bit
		bank.Drive(miso, w.out&0x80 != 0)
		w.out <<= 1
		w.bit++
		if w.bit == 8 {
			c.accept(w.in)
			c.wire = shifter{}
		}
	})
}
