//go:build !rp2040 && !rp2350

package board

import (
	"fmt"
	"sync/atomic"

	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	pspi "periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/bigbag/spiprobe/internal/gpio"
	"github.com/bigbag/spiprobe/internal/logging"
	"github.com/bigbag/spiprobe/internal/spi"

	"tinygo.org/x/drivers"
)

var hostInitialized atomic.Bool

// periphLine drives a periph pin as a Line.
type periphLine struct {
	p pgpio.PinIO
}

func (l periphLine) Output(level bool) error { return l.p.Out(pgpio.Level(level)) }

func (l periphLine) Input(pullUp bool) error {
	pull := pgpio.Float
	if pullUp {
		pull = pgpio.PullUp
	}
	return l.p.In(pull, pgpio.NoEdge)
}

func (l periphLine) Get() bool { return l.p.Read() == pgpio.High }

// Conn adapts a periph SPI connection to drivers.SPI.
type Conn struct {
	C pspi.Conn
}

var _ drivers.SPI = Conn{}

func (c Conn) Transfer(b byte) (byte, error) {
	var r [1]byte
	err := c.C.Tx([]byte{b}, r[:])
	return r[0], err
}

// Tx writes w and reads r in one transfer. A nil side is padded with zeros
// or discarded.
func (c Conn) Tx(w, r []byte) error {
	switch {
	case len(w) != 0 && len(r) != 0:
		if len(w) != len(r) {
			return fmt.Errorf("spi: buffer length mismatch %d != %d", len(w), len(r))
		}
		return c.C.Tx(w, r)
	case len(w) != 0:
		return c.C.Tx(w, make([]byte, len(w)))
	default:
		return c.C.Tx(make([]byte, len(r)), r)
	}
}

// OpenPeriph initializes the host drivers and brings up a probe wired as
// cfg describes.
func OpenPeriph(cfg Config, log logging.Logger) (*Board, error) {
	log = logging.OrNop(log)
	if hostInitialized.CompareAndSwap(false, true) {
		if _, err := host.Init(); err != nil {
			return nil, fmt.Errorf("host initialization failed: %w", err)
		}
	}

	names, err := cfg.PinMap()
	if err != nil {
		return nil, err
	}
	lines := make(map[gpio.Pin]Line, len(names))
	for pin, name := range names {
		if !cfg.SPI.BitBang && (pin == SCLK || pin == MOSI || pin == MISO) {
			continue // owned by the SPI controller
		}
		l := gpioreg.ByName(name)
		if l == nil {
			return nil, fmt.Errorf("pin %s: no line named %q", pin, name)
		}
		lines[pin] = periphLine{l}
	}
	bits := gpio.New(NewLineBank(lines, log))
	BringUp(bits, cfg.Power)

	b := &Board{Bits: bits, Power: cfg.Power}
	if cfg.SPI.BitBang {
		b.Bus = spi.NewBitBang(bits, SCLK, MOSI, MISO)
		log.Info("board ready", "name", cfg.Name, "spi", "bitbang")
		return b, nil
	}

	var clock physic.Frequency
	if err := clock.Set(cfg.SPI.Clock); err != nil {
		return nil, fmt.Errorf("invalid SPI clock %q: %w", cfg.SPI.Clock, err)
	}
	port, err := spireg.Open(cfg.SPI.Port)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port: %w", err)
	}
	conn, err := port.Connect(clock, pspi.Mode0|pspi.NoCS, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to connect SPI port: %w", err)
	}
	b.Bus = Conn{C: conn}
	b.closers = append(b.closers, port.Close)
	log.Info("board ready", "name", cfg.Name, "spi", cfg.SPI.Port, "clock", clock.String())
	return b, nil
}
