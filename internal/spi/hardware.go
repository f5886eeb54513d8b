// Package spi provides the single-byte SPI transaction every flash command
// is built from. All implementations satisfy tinygo.org/x/drivers.SPI so the
// same flash code runs against machine.SPI on TinyGo, a periph.io connection
// on Linux, or a simulation.
package spi

import (
	"github.com/bigbag/spiprobe/internal/errcode"

	"tinygo.org/x/drivers"
)

// Peripheral is a register-style SPI controller: load the data register to
// start shifting, poll the completion flag, then read back the data register.
type Peripheral interface {
	Load(b byte)
	Complete() bool
	Data() byte
}

// Hardware drives a Peripheral. By default it busy-waits on the completion
// flag forever; a stuck controller hangs the caller.
type Hardware struct {
	dev       Peripheral
	spinLimit int
}

var _ drivers.SPI = (*Hardware)(nil)

// Option configures a Hardware transactor.
type Option func(*Hardware)

// WithSpinLimit bounds the completion wait to n flag polls. Exceeding it
// returns errcode.Timeout. Zero keeps the unbounded wait.
func WithSpinLimit(n int) Option {
	return func(h *Hardware) {
		if n >= 0 {
			h.spinLimit = n
		}
	}
}

// NewHardware returns a transactor for dev.
func NewHardware(dev Peripheral, opts ...Option) *Hardware {
	h := &Hardware{dev: dev}
	for _, o := range opts {
		o(h)
	}
	return h
}

// faulter is a Peripheral that can report a failed shift.
type faulter interface {
	Err() error
}

// Transfer shifts out b and returns the byte shifted in at the same time.
func (h *Hardware) Transfer(b byte) (byte, error) {
	h.dev.Load(b)
	for spins := 0; !h.dev.Complete(); spins++ {
		if h.spinLimit > 0 && spins >= h.spinLimit {
			return 0, &errcode.E{C: errcode.Timeout, Op: "spi.transfer", Msg: "completion flag never set"}
		}
	}
	if f, ok := h.dev.(faulter); ok {
		if err := f.Err(); err != nil {
			return 0, err
		}
	}
	return h.dev.Data(), nil
}

// Tx transfers w and stores the received bytes in r. Either may be nil; when
// both are given they must have the same length.
func (h *Hardware) Tx(w, r []byte) error {
	return tx(h, w, r)
}

// tx implements drivers.SPI.Tx on top of Transfer.
func tx(s drivers.SPI, w, r []byte) error {
	switch {
	case len(w) != 0 && len(r) != 0:
		if len(w) != len(r) {
			return &errcode.E{C: errcode.Unsupported, Op: "spi.tx", Msg: "buffer length mismatch"}
		}
		for i, b := range w {
			v, err := s.Transfer(b)
			if err != nil {
				return err
			}
			r[i] = v
		}
	case len(w) != 0:
		for _, b := range w {
			if _, err := s.Transfer(b); err != nil {
				return err
			}
		}
	default:
		for i := range r {
			v, err := s.Transfer(0)
			if err != nil {
				return err
			}
			r[i] = v
		}
	}
	return nil
}
