// Package serial carries the operator console on the host: a serial port
// through go.bug.st/serial or the controlling terminal in raw mode.
package serial

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/bigbag/spiprobe/internal/errcode"
)

// DefaultBaudRate is the console speed.
const DefaultBaudRate = 115200

// dsrPollInterval is the modem status poll period of WaitDSR.
const dsrPollInterval = 50 * time.Millisecond

// Port is a serial port with byte-at-a-time reads.
type Port struct {
	port     serial.Port
	portName string
	baudRate int
	bytes    byteReader
}

// Open opens a serial port with the specified baud rate. A positive
// readTimeout makes ReadByte return errcode.Timeout when no byte arrives in
// time; zero blocks.
func Open(portName string, baudRate int, readTimeout time.Duration) (*Port, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open port %s: %w", portName, err)
	}

	timeout := serial.NoTimeout
	if readTimeout > 0 {
		timeout = readTimeout
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}

	p := &Port{
		port:     port,
		portName: portName,
		baudRate: baudRate,
	}
	p.bytes = byteReader{r: port, bounded: readTimeout > 0}
	return p, nil
}

// Close closes the serial port.
func (p *Port) Close() error {
	if p.port != nil {
		return p.port.Close()
	}
	return nil
}

// Write writes data to the serial port.
func (p *Port) Write(data []byte) (int, error) {
	return p.port.Write(data)
}

// ReadByte returns the next received byte.
func (p *Port) ReadByte() (byte, error) {
	return p.bytes.ReadByte()
}

// Flush discards any buffered data.
func (p *Port) Flush() error {
	p.bytes.reset()
	return p.port.ResetInputBuffer()
}

// SetDTR sets the DTR signal.
func (p *Port) SetDTR(value bool) error {
	return p.port.SetDTR(value)
}

// WaitDSR blocks until the peer asserts DSR, which a terminal program does
// by raising its DTR when it is ready.
func (p *Port) WaitDSR(ctx context.Context) error {
	t := time.NewTicker(dsrPollInterval)
	defer t.Stop()
	for {
		bits, err := p.port.GetModemStatusBits()
		if err != nil {
			return fmt.Errorf("failed to read modem status: %w", err)
		}
		if bits.DSR {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// PortName returns the port name.
func (p *Port) PortName() string {
	return p.portName
}

// BaudRate returns the current baud rate.
func (p *Port) BaudRate() int {
	return p.baudRate
}

// ListPorts returns a list of available serial ports.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, err
	}
	return ports, nil
}

// PortInfo describes a serial port.
type PortInfo struct {
	Name    string
	USB     bool
	VID     string
	PID     string
	Serial  string
	Product string
}

// ListPortDetails returns the available ports with their USB identity.
func ListPortDetails() ([]PortInfo, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}
	infos := make([]PortInfo, 0, len(ports))
	for _, p := range ports {
		infos = append(infos, PortInfo{
			Name:    p.Name,
			USB:     p.IsUSB,
			VID:     p.VID,
			PID:     p.PID,
			Serial:  p.SerialNumber,
			Product: p.Product,
		})
	}
	return infos, nil
}

// byteReader serves single bytes from block reads. Drivers with a read
// timeout report expiry as a zero-length read.
type byteReader struct {
	r       io.Reader
	bounded bool
	buf     [256]byte
	i, n    int
}

func (b *byteReader) ReadByte() (byte, error) {
	if b.i < b.n {
		c := b.buf[b.i]
		b.i++
		return c, nil
	}
	for {
		n, err := b.r.Read(b.buf[:])
		if n > 0 {
			b.i, b.n = 1, n
			return b.buf[0], nil
		}
		if err != nil && !(b.bounded && err == io.EOF) {
			return 0, err
		}
		if b.bounded {
			return 0, &errcode.E{C: errcode.Timeout, Op: "serial.read"}
		}
	}
}

func (b *byteReader) reset() { b.i, b.n = 0, 0 }
