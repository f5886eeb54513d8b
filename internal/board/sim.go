package board

import (
	"fmt"
	"io"

	"github.com/bigbag/spiprobe/internal/gpio"
	"github.com/bigbag/spiprobe/internal/simflash"
	"github.com/bigbag/spiprobe/internal/spi"
)

// SimConfig describes a simulated probe.
type SimConfig struct {
	// Model names a simflash part; empty selects the default.
	Model string
	// Image, when set, is loaded into the array before start.
	Image io.Reader
	// BusyPolls is the number of busy status reads after each program or
	// erase.
	BusyPolls int
	// BitBang clocks the chip through the pins instead of the SPI
	// controller.
	BitBang bool
	// Latency is the number of completion polls per controller byte.
	Latency int
	// SpinLimit bounds the controller completion wait.
	SpinLimit int
	// Power enables the supply pin.
	Power bool
}

// Sim is a probe built on the simulated bank and chip.
type Sim struct {
	Board
	Bank  *gpio.SimBank
	Flash *simflash.Chip
}

// NewSim builds and brings up a simulated probe.
func NewSim(cfg SimConfig) (*Sim, error) {
	m, err := simflash.Lookup(cfg.Model)
	if err != nil {
		return nil, err
	}
	chip := simflash.New(m, simflash.WithBusyPolls(cfg.BusyPolls))
	if cfg.Image != nil {
		if err := chip.Load(cfg.Image); err != nil {
			return nil, fmt.Errorf("failed to load image: %w", err)
		}
	}

	bank := gpio.NewSimBank()
	bits := gpio.New(bank)
	chip.Attach(bank, SS)
	BringUp(bits, cfg.Power)

	s := &Sim{Bank: bank, Flash: chip}
	s.Bits = bits
	s.Power = cfg.Power
	if cfg.BitBang {
		chip.Wire(bank, SCLK, MOSI, MISO)
		s.Bus = spi.NewBitBang(bits, SCLK, MOSI, MISO)
	} else {
		dev := &spi.SimPeripheral{Target: chip, Latency: cfg.Latency}
		s.Bus = spi.NewHardware(dev, spi.WithSpinLimit(cfg.SpinLimit))
	}
	return s, nil
}
