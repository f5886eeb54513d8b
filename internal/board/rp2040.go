//go:build rp2040

package board

import (
	"machine"
	"time"

	"github.com/jangala-dev/tinygo-uartx/uartx"

	"github.com/bigbag/spiprobe/internal/gpio"
	"github.com/bigbag/spiprobe/internal/logging"
)

// Pico wiring. SPI0 owns SCLK, MOSI and MISO; chip select, the supply and
// the LED are plain lines.
var picoPins = map[gpio.Pin]machine.Pin{
	SS:   machine.GPIO17,
	SCLK: machine.GPIO18,
	MOSI: machine.GPIO19,
	MISO: machine.GPIO16,
	POW:  machine.GPIO20,
	LED:  machine.LED,
}

// SPIFrequency is the SPI0 clock.
const SPIFrequency = 500_000

type machineLine struct {
	p machine.Pin
}

func (l machineLine) Output(level bool) error {
	l.p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	l.p.Set(level)
	return nil
}

func (l machineLine) Input(pullUp bool) error {
	mode := machine.PinInput
	if pullUp {
		mode = machine.PinInputPullup
	}
	l.p.Configure(machine.PinConfig{Mode: mode})
	return nil
}

func (l machineLine) Get() bool { return l.p.Get() }

// OpenPico brings up the probe on a Raspberry Pi Pico.
func OpenPico(log logging.Logger) (*Board, error) {
	lines := map[gpio.Pin]Line{
		SS:  machineLine{picoPins[SS]},
		POW: machineLine{picoPins[POW]},
		LED: machineLine{picoPins[LED]},
	}
	bits := gpio.New(NewLineBank(lines, log))
	BringUp(bits, false)

	err := machine.SPI0.Configure(machine.SPIConfig{
		Frequency: SPIFrequency,
		SCK:       picoPins[SCLK],
		SDO:       picoPins[MOSI],
		SDI:       picoPins[MISO],
		Mode:      0,
	})
	if err != nil {
		return nil, err
	}
	return &Board{Bits: bits, Bus: machine.SPI0}, nil
}

// UARTPort is the operator console on a uartx UART.
type UARTPort struct {
	U *uartx.UART
}

// OpenUART configures UART0 on its default pins.
func OpenUART(baud uint32) (UARTPort, error) {
	err := uartx.UART0.Configure(uartx.UARTConfig{
		BaudRate: baud,
		TX:       machine.UART0_TX_PIN,
		RX:       machine.UART0_RX_PIN,
	})
	if err != nil {
		return UARTPort{}, err
	}
	return UARTPort{U: uartx.UART0}, nil
}

func (p UARTPort) Write(b []byte) (int, error) { return p.U.Write(b) }

// ReadByte blocks until a byte arrives.
func (p UARTPort) ReadByte() (byte, error) {
	for p.U.Buffered() == 0 {
		time.Sleep(time.Millisecond)
	}
	return p.U.ReadByte()
}
