//go:build windows

package serial

import (
	"time"

	"github.com/bigbag/spiprobe/internal/errcode"
)

// DefaultTerminal is empty; raw terminals are not available.
const DefaultTerminal = ""

// Terminal is not available on Windows.
type Terminal struct{}

// OpenTerminal always fails on Windows.
func OpenTerminal(name string, readTimeout time.Duration) (*Terminal, error) {
	return nil, &errcode.E{C: errcode.Unsupported, Op: "serial.terminal", Msg: "raw terminal not supported on this platform"}
}

func (t *Terminal) Write(data []byte) (int, error) { return 0, errcode.Unsupported }
func (t *Terminal) ReadByte() (byte, error)       { return 0, errcode.Unsupported }
func (t *Terminal) Flush() error                  { return errcode.Unsupported }
func (t *Terminal) Close() error                  { return nil }
