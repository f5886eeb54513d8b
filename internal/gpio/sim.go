package gpio

import "sync"

// SimBank is an in-memory register bank for host-side tests and the
// simulation backend. Output bits loop back to PIN; input bits read the level
// last set with Drive. Watchers observe output level changes.
type SimBank struct {
	mu       sync.Mutex
	regs     [3][PortF - PortB + 1]uint8
	external [PortF - PortB + 1]uint8
	watchers map[Pin][]func(level bool)
}

var _ Bank = (*SimBank)(nil)

// NewSimBank returns a bank with every register cleared.
func NewSimBank() *SimBank {
	return &SimBank{watchers: make(map[Pin][]func(bool))}
}

func (s *SimBank) Load(r Register, p Port) uint8 {
	if !p.Valid() {
		return Undefined
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := p - PortB
	if r == PIN {
		ddr := s.regs[DDR][i]
		return s.regs[PORT][i]&ddr | s.external[i]&^ddr
	}
	return s.regs[r][i]
}

func (s *SimBank) Store(r Register, p Port, v uint8) {
	if !p.Valid() || r == PIN {
		return
	}
	s.mu.Lock()
	i := p - PortB
	before := s.outputs(i)
	s.regs[r][i] = v
	after := s.outputs(i)
	var fire []func()
	if changed := before ^ after; changed != 0 {
		for bit := uint8(0); bit < 8; bit++ {
			if changed&(1<<bit) == 0 {
				continue
			}
			level := after&(1<<bit) != 0
			for _, fn := range s.watchers[NewPin(p, bit)] {
				fn := fn
				fire = append(fire, func() { fn(level) })
			}
		}
	}
	s.mu.Unlock()
	for _, f := range fire {
		f()
	}
}

// outputs returns the driven level of every output bit; inputs read as high
// so that an undriven active-low line counts as released.
// caller holds lock
func (s *SimBank) outputs(i Port) uint8 {
	ddr := s.regs[DDR][i]
	return s.regs[PORT][i]&ddr | ^ddr
}

// Drive sets the external level seen on an input pin.
func (s *SimBank) Drive(pin Pin, level bool) {
	if !pin.Valid() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := pin.Port() - PortB
	if level {
		s.external[i] |= 1 << pin.Bit()
	} else {
		s.external[i] &^= 1 << pin.Bit()
	}
}

// Watch registers fn to be called whenever the driven level of pin changes.
// fn runs outside the bank lock and may call back into the bank.
func (s *SimBank) Watch(pin Pin, fn func(level bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers[pin] = append(s.watchers[pin], fn)
}
