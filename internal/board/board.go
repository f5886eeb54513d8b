// Package board wires the pins, the SPI bus and the flash chip of a probe
// together for each platform: the simulator, a Linux host through periph.io,
// and the RP2040 firmware.
package board

import (
	"time"

	"github.com/bigbag/spiprobe/internal/flash"
	"github.com/bigbag/spiprobe/internal/gpio"
	"github.com/bigbag/spiprobe/internal/logging"

	"tinygo.org/x/drivers"
)

// Pin assignments.
const (
	SS   gpio.Pin = 0xB0
	SCLK gpio.Pin = 0xB1
	MOSI gpio.Pin = 0xB2
	MISO gpio.Pin = 0xB3
	POW  gpio.Pin = 0xB7
	LED  gpio.Pin = 0xD6
)

// PowerSettle is the wait after switching the target supply on.
const PowerSettle = 2 * time.Millisecond

// Board is a brought-up probe.
type Board struct {
	Bits *gpio.Bits
	Bus  drivers.SPI

	// Power enables the supply pin. It is off on the reference wiring.
	Power bool

	closers []func() error
}

// BringUp puts the pins in their idle state: MISO an input without pull-up,
// MOSI, SCLK and SS outputs, the supply off and the chip deselected. SS is
// latched high before it becomes an output.
func BringUp(bits *gpio.Bits, power bool) {
	bits.SetDirection(MISO, false)
	bits.Write(MISO, false)
	bits.SetDirection(MOSI, true)
	bits.SetDirection(SCLK, true)
	bits.Write(SS, true)
	bits.SetDirection(SS, true)
	if power {
		bits.SetDirection(POW, true)
	}
	bits.Write(POW, false)
}

// Chip returns the flash chip on the board's bus.
func (b *Board) Chip(log logging.Logger, opts ...flash.Option) *flash.Chip {
	all := []flash.Option{flash.WithLogger(log)}
	if b.Power {
		all = append(all, flash.WithPower(POW, PowerSettle))
	}
	c := flash.New(b.Bus, b.Bits, SS, append(all, opts...)...)
	c.Deselect()
	c.PowerOff()
	return c
}

// Close releases the bus and the pins.
func (b *Board) Close() error {
	var first error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	b.closers = nil
	return first
}
