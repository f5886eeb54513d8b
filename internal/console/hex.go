package console

import (
	"io"

	"github.com/bigbag/spiprobe/internal/errcode"
)

const hexDigits = "0123456789ABCDEF"

// appendHex appends the low digits nibbles of v, most significant first.
func appendHex(b []byte, v uint32, digits int) []byte {
	for i := digits - 1; i >= 0; i-- {
		b = append(b, hexDigits[(v>>(4*uint(i)))&0xF])
	}
	return b
}

// appendAddr appends 0x and six hex digits.
func appendAddr(b []byte, addr uint32) []byte {
	return appendHex(append(b, '0', 'x'), addr, 6)
}

// appendBytes appends each byte as two hex digits and a space.
func appendBytes(b []byte, p []byte) []byte {
	for _, v := range p {
		b = appendHex(b, uint32(v), 2)
		b = append(b, ' ')
	}
	return b
}

func hexValue(c byte) (uint32, bool) {
	switch {
	case '0' <= c && c <= '9':
		return uint32(c - '0'), true
	case 'A' <= c && c <= 'F':
		return uint32(c-'A') + 0xA, true
	case 'a' <= c && c <= 'f':
		return uint32(c-'a') + 0xA, true
	}
	return 0, false
}

// output writes to the port and keeps the first error.
type output struct {
	w   io.Writer
	err error
}

func (o *output) Write(p []byte) {
	if o.err == nil {
		_, o.err = o.w.Write(p)
	}
}

func (o *output) String(s string) { o.Write([]byte(s)) }

// Line writes s and CRLF.
func (o *output) Line(s string) { o.Write(append([]byte(s), '\r', '\n')) }

// readEcho reads one byte and echoes it, CR as CRLF.
func (c *Console) readEcho() (byte, error) {
	b, err := commandPort{c}.ReadByte()
	if err != nil {
		return 0, err
	}
	if b == '\r' {
		c.out.Write([]byte{'\r', '\n'})
	} else {
		c.out.Write([]byte{b})
	}
	return b, nil
}

// readHex reads hex digits until the first other byte. Excess digits shift
// out of the top; the value is not range checked.
func (c *Console) readHex() (uint32, error) {
	var v uint32
	for {
		b, err := c.readEcho()
		if err != nil {
			return 0, err
		}
		d, ok := hexValue(b)
		if !ok {
			return v, nil
		}
		v = v<<4 | d
	}
}

// portReader reads raw upload data from the port without echo.
type portReader struct {
	r io.ByteReader
}

func (p portReader) Read(b []byte) (int, error) {
	for i := range b {
		c, err := p.r.ReadByte()
		if err != nil {
			return i, err
		}
		b[i] = c
	}
	return len(b), nil
}

// commandPort is the port as a running command sees it. ReadByte waits
// through read timeouts and gives up on them only once the console's
// context is done.
type commandPort struct {
	c *Console
}

func (p commandPort) Write(b []byte) (int, error) { return p.c.port.Write(b) }

func (p commandPort) ReadByte() (byte, error) {
	for {
		b, err := p.c.port.ReadByte()
		if err == nil || !isTimeout(err) {
			return b, err
		}
		if err := p.c.ctx.Err(); err != nil {
			return 0, err
		}
	}
}

// isTimeout reports a bounded read that expired.
func isTimeout(err error) bool { return errcode.Of(err) == errcode.Timeout }
