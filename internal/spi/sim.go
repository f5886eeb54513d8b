package spi

import "tinygo.org/x/drivers"

// SimPeripheral is a Peripheral whose shift register is connected to Target.
// Complete reports true after Latency polls following each Load.
type SimPeripheral struct {
	Target  drivers.SPI
	Latency int

	data    byte
	pending int
	err     error
}

var _ Peripheral = (*SimPeripheral)(nil)

func (p *SimPeripheral) Load(b byte) {
	p.data, p.err = p.Target.Transfer(b)
	p.pending = p.Latency
}

func (p *SimPeripheral) Complete() bool {
	if p.Latency < 0 {
		return false // stuck controller
	}
	if p.pending > 0 {
		p.pending--
		return false
	}
	return true
}

func (p *SimPeripheral) Data() byte { return p.data }

// Err returns the error reported by Target for the last Load.
func (p *SimPeripheral) Err() error { return p.err }
