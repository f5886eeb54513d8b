package board

import (
	"github.com/bigbag/spiprobe/internal/gpio"
	"github.com/bigbag/spiprobe/internal/logging"
)

// Line is one platform pin.
type Line interface {
	Output(level bool) error
	Input(pullUp bool) error
	Get() bool
}

// LineBank emulates the port registers on top of individual lines. DDR and
// PORT are shadowed and writing them reconfigures the affected lines. Bits
// without a line read as 0 and ignore writes.
type LineBank struct {
	lines map[gpio.Pin]Line
	regs  [2][gpio.PortF - gpio.PortB + 1]uint8
	log   logging.Logger
}

var _ gpio.Bank = (*LineBank)(nil)

// NewLineBank returns a bank over lines.
func NewLineBank(lines map[gpio.Pin]Line, log logging.Logger) *LineBank {
	return &LineBank{lines: lines, log: logging.OrNop(log)}
}

func (b *LineBank) Load(r gpio.Register, p gpio.Port) uint8 {
	if !p.Valid() {
		return gpio.Undefined
	}
	i := p - gpio.PortB
	if r != gpio.PIN {
		return b.regs[r][i]
	}
	ddr := b.regs[gpio.DDR][i]
	v := b.regs[gpio.PORT][i] & ddr
	for bit := uint8(0); bit < 8; bit++ {
		if ddr&(1<<bit) != 0 {
			continue
		}
		if l, ok := b.lines[gpio.NewPin(p, bit)]; ok && l.Get() {
			v |= 1 << bit
		}
	}
	return v
}

func (b *LineBank) Store(r gpio.Register, p gpio.Port, v uint8) {
	if !p.Valid() || r == gpio.PIN {
		return
	}
	i := p - gpio.PortB
	changed := b.regs[r][i] ^ v
	b.regs[r][i] = v
	for bit := uint8(0); bit < 8; bit++ {
		if changed&(1<<bit) == 0 {
			continue
		}
		pin := gpio.NewPin(p, bit)
		l, ok := b.lines[pin]
		if !ok {
			continue
		}
		if err := b.apply(l, i, bit); err != nil {
			b.log.Error("line update failed", "pin", pin.String(), "err", err)
		}
	}
}

// apply drives an output from the latch, or makes the line an input with
// the latch selecting the pull-up.
func (b *LineBank) apply(l Line, i gpio.Port, bit uint8) error {
	mask := uint8(1) << bit
	set := b.regs[gpio.PORT][i]&mask != 0
	if b.regs[gpio.DDR][i]&mask != 0 {
		return l.Output(set)
	}
	return l.Input(set)
}
