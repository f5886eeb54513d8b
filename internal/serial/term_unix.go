//go:build !windows

package serial

import (
	"fmt"
	"time"

	"github.com/pkg/term"
)

// DefaultTerminal is the controlling terminal.
const DefaultTerminal = "/dev/tty"

// Terminal is a local terminal in raw mode, so every key reaches the console
// unbuffered and unechoed.
type Terminal struct {
	t     *term.Term
	bytes byteReader
}

// OpenTerminal switches name to raw mode. readTimeout behaves as in Open.
func OpenTerminal(name string, readTimeout time.Duration) (*Terminal, error) {
	opts := []func(*term.Term) error{term.RawMode}
	if readTimeout > 0 {
		opts = append(opts, term.ReadTimeout(readTimeout))
	}
	t, err := term.Open(name, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open terminal %s: %w", name, err)
	}
	tt := &Terminal{t: t}
	tt.bytes = byteReader{r: t, bounded: readTimeout > 0}
	return tt, nil
}

func (t *Terminal) Write(data []byte) (int, error) { return t.t.Write(data) }

// ReadByte returns the next key.
func (t *Terminal) ReadByte() (byte, error) { return t.bytes.ReadByte() }

// Flush discards pending input.
func (t *Terminal) Flush() error {
	t.bytes.reset()
	return t.t.Flush()
}

// Close restores the previous terminal mode.
func (t *Terminal) Close() error {
	if err := t.t.Restore(); err != nil {
		t.t.Close()
		return err
	}
	return t.t.Close()
}
