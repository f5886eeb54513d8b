package console

import "github.com/bigbag/spiprobe/internal/gpio"

// Activity shows that a long operation is running.
type Activity interface {
	// Progress is called for every unit of work.
	Progress(current, total int)
	// Idle is called when a command completes.
	Idle()
}

// Activities fans out to several indicators.
type Activities []Activity

func (a Activities) Progress(current, total int) {
	for _, x := range a {
		x.Progress(current, total)
	}
}

func (a Activities) Idle() {
	for _, x := range a {
		x.Idle()
	}
}

func (a Activities) Pace(every int) {
	for _, x := range a {
		if p, ok := x.(Pacer); ok {
			p.Pace(every)
		}
	}
}

// Pacer is implemented by indicators whose rate a command can change. The
// rate reverts to the default on Idle.
type Pacer interface {
	Pace(every int)
}

const (
	// LEDToggleEvery is the number of work units between LED toggles.
	LEDToggleEvery = 0x50
	// LEDEraseScanEvery is the slower rate of the password erase scan.
	LEDEraseScanEvery = 0x1000
)

// LED blinks a status LED while work is in progress and leaves it on when
// idle.
type LED struct {
	bits  *gpio.Bits
	pin   gpio.Pin
	on    bool
	count int
	every int
}

// NewLED configures pin as an output and switches it on.
func NewLED(bits *gpio.Bits, pin gpio.Pin) *LED {
	bits.SetDirection(pin, true)
	l := &LED{bits: bits, pin: pin, every: LEDToggleEvery}
	l.set(true)
	return l
}

func (l *LED) set(on bool) {
	l.on = on
	l.bits.Write(l.pin, on)
}

func (l *LED) Progress(current, total int) {
	l.count++
	if l.count >= l.every {
		l.count = 0
		l.set(!l.on)
	}
}

func (l *LED) Idle() {
	l.count = 0
	l.every = LEDToggleEvery
	l.set(true)
}

// Pace sets the number of work units between toggles until the next Idle.
func (l *LED) Pace(every int) {
	if every > 0 {
		l.every = every
	}
}

type noActivity struct{}

func (noActivity) Progress(int, int) {}
func (noActivity) Idle()             {}
