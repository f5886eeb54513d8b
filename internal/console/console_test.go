package console

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/bigbag/spiprobe/embedded"
	"github.com/bigbag/spiprobe/internal/errcode"
	"github.com/bigbag/spiprobe/internal/flash"
	"github.com/bigbag/spiprobe/internal/gpio"
	"github.com/bigbag/spiprobe/internal/simflash"
	"github.com/bigbag/spiprobe/internal/xmodem"
)

type testPort struct {
	in  *bytes.Reader
	out bytes.Buffer
}

func (p *testPort) ReadByte() (byte, error)      { return p.in.ReadByte() }
func (p *testPort) Write(b []byte) (int, error) { return p.out.Write(b) }

type fixture struct {
	port    *testPort
	sim     *simflash.Chip
	bits    *gpio.Bits
	session *Session
}

func newFixture(t *testing.T, busyPolls int) *fixture {
	t.Helper()
	bank := gpio.NewSimBank()
	bits := gpio.New(bank)
	sim := simflash.New(simflash.Models["n25q064a"], simflash.WithBusyPolls(busyPolls))
	sim.Attach(bank, 0xB0)
	bits.Write(0xB0, true)
	for _, p := range []gpio.Pin{0xB0, 0xB1, 0xB2} {
		bits.SetDirection(p, true)
	}
	return &fixture{port: &testPort{}, sim: sim, bits: bits, session: NewSession()}
}

// run feeds input to a fresh console and returns everything it wrote.
func (f *fixture) run(t *testing.T, input []byte, opts ...Option) string {
	t.Helper()
	f.port.in = bytes.NewReader(input)
	f.port.out.Reset()
	f.serve(t, f.port, opts...)
	return f.port.out.String()
}

// serve runs a fresh console on p until its input ends.
func (f *fixture) serve(t *testing.T, p Port, opts ...Option) {
	t.Helper()
	chip := flash.New(f.sim, f.bits, 0xB0)
	opts = append([]Option{WithSession(f.session)}, opts...)
	c := New(p, chip, f.bits, opts...)
	if err := c.Serve(context.Background()); err != nil {
		t.Fatalf("Serve() error = %v", err)
	}
}

// stallPort times out once before every input byte stall selects, the way
// a bounded serial read does when the sender pauses.
type stallPort struct {
	in      []byte
	stall   func(i int) bool
	i       int
	stalled bool
	out     bytes.Buffer
}

func (p *stallPort) ReadByte() (byte, error) {
	if p.i >= len(p.in) {
		return 0, io.EOF
	}
	if !p.stalled && p.stall(p.i) {
		p.stalled = true
		return 0, &errcode.E{C: errcode.Timeout, Op: "serial.read"}
	}
	p.stalled = false
	b := p.in[p.i]
	p.i++
	return b, nil
}

func (p *stallPort) Write(b []byte) (int, error) { return p.out.Write(b) }

func TestConsole_UnknownCommand(t *testing.T) {
	f := newFixture(t, 0)
	if got := f.run(t, []byte("#")); got != ">?>" {
		t.Errorf("output = %q, want %q", got, ">?>")
	}
}

func TestConsole_Identify(t *testing.T) {
	f := newFixture(t, 0)
	got := f.run(t, []byte("i"))
	want := ">Micron N25Q064A\r\n20BA17-1000-23456789ABCDEF01123456789ABC\r\n>"
	if got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestConsole_UploadAligned(t *testing.T) {
	f := newFixture(t, 1)
	data := make([]byte, 0x1000)
	for i := range data {
		data[i] = byte(i*3 + 1)
	}
	input := append([]byte("u1000 1000\r"), data...)
	got := f.run(t, input)
	want := ">1000 1000\r\nG 0001000 0001000\r\ndone!\r\n>"
	if got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
	if !bytes.Equal(f.sim.Bytes()[0x1000:0x2000], data) {
		t.Error("uploaded data not programmed")
	}
	if f.session.Uploaded != 0x1000 {
		t.Errorf("Uploaded = %X, want 1000", f.session.Uploaded)
	}

	got = f.run(t, []byte("s"))
	if want := ">Uploaded and written bytes: 0x001000\r\n>"; got != want {
		t.Errorf("stats output = %q, want %q", got, want)
	}
}

func TestConsole_SlowTyping(t *testing.T) {
	f := newFixture(t, 0)
	for i := 0; i < 16; i++ {
		f.sim.Bytes()[i] = byte(i)
	}
	p := &stallPort{in: []byte("r0\r"), stall: func(int) bool { return true }}
	f.serve(t, p)
	want := ">0\r\n00 01 02 03 04 05 06 07 08 09 0A 0B 0C 0D 0E 0F \r\n>"
	if got := p.out.String(); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestConsole_UploadGap(t *testing.T) {
	f := newFixture(t, 1)
	data := make([]byte, 0x1000)
	for i := range data {
		data[i] = byte(i*3 + 1)
	}
	data[200] = 'z'
	header := []byte("u1000 1000\r")
	gap := len(header) + 150
	p := &stallPort{
		in:    append(header, data...),
		stall: func(i int) bool { return i == gap },
	}
	f.serve(t, p)

	want := ">1000 1000\r\nG 0001000 0001000\r\ndone!\r\n>"
	if got := p.out.String(); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
	if !bytes.Equal(f.sim.Bytes()[0x1000:0x2000], data) {
		t.Error("uploaded data not programmed across the gap")
	}
	if bytes.IndexByte(f.sim.Ops(), flash.CmdBlockErase) >= 0 {
		t.Error("upload data was run as commands")
	}
	if f.session.Uploaded != 0x1000 {
		t.Errorf("Uploaded = %X, want 1000", f.session.Uploaded)
	}
}

func TestConsole_UploadMisaligned(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"u1001 1000\r", "! 0001001 0001000\r\n"},
		{"u1001 2000\r", "! 0001001 0002000\r\n"},
		{"u1000 0800\r", "! 0001000 0000800\r\n"},
	}
	for _, tt := range tests {
		f := newFixture(t, 0)
		f.session.Uploaded = 5
		got := f.run(t, []byte(tt.input))
		if !strings.Contains(got, tt.want) {
			t.Errorf("%q: output = %q, want %q", tt.input, got, tt.want)
		}
		if strings.Contains(got, "done!") {
			t.Errorf("%q: misaligned upload completed", tt.input)
		}
		if len(f.sim.Log()) != 0 {
			t.Errorf("%q: misaligned upload touched the chip: %v", tt.input, f.sim.Log())
		}
		if f.session.Uploaded != 0 {
			t.Errorf("%q: Uploaded = %d, want 0", tt.input, f.session.Uploaded)
		}
	}
}

func TestConsole_FlashRegionErasesFirst(t *testing.T) {
	f := newFixture(t, 0)
	r := RegionArea2
	mem := f.sim.Bytes()
	for i := r.Addr; i < r.Addr+r.Length; i++ {
		mem[i] = 0x00
	}
	data := bytes.Repeat([]byte{0xA5}, int(r.Length))
	got := f.run(t, append([]byte("2"), data...))
	if want := ">G 330000 030000\r\ndone!\r\n>"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
	if !bytes.Equal(mem[r.Addr:r.Addr+r.Length], data) {
		t.Error("region not erased before programming")
	}
}

func TestConsole_EraseSectorWriteProtected(t *testing.T) {
	f := newFixture(t, 0)
	p := &testPort{in: bytes.NewReader([]byte("2000\r"))}
	c := New(p, flash.New(f.sim, f.bits, 0xB0), f.bits)
	if err := c.run(CmdEraseSector); errcode.Of(err) != errcode.WriteProtected {
		t.Errorf("run(CmdEraseSector) error = %v, want %v", err, errcode.WriteProtected)
	}
	if bytes.IndexByte(f.sim.Ops(), flash.CmdSectorErase) >= 0 {
		t.Error("sector erase issued without write enable")
	}
}

func TestConsole_WriteEnableAndErase(t *testing.T) {
	f := newFixture(t, 1)
	mem := f.sim.Bytes()
	mem[0x2000] = 0

	got := f.run(t, []byte("e2000\r"))
	if want := ">2000\r\nwp!\r\n>"; got != want {
		t.Errorf("erase without write enable output = %q, want %q", got, want)
	}
	if mem[0x2000] != 0 {
		t.Fatal("sector erased without write enable")
	}

	got = f.run(t, []byte("we2000\r"))
	if want := ">02\r\n>2000\r\nE002000\r\n>"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
	if mem[0x2000] != 0xFF {
		t.Error("sector not erased")
	}
}

func TestConsole_EraseMisaligned(t *testing.T) {
	f := newFixture(t, 0)
	got := f.run(t, []byte("we2001\r"))
	if !strings.Contains(got, "ERROR: ") || !strings.Contains(got, string(errcode.Misaligned)) {
		t.Errorf("output = %q, want a misaligned error", got)
	}
}

func TestConsole_Read(t *testing.T) {
	f := newFixture(t, 0)
	for i := 0; i < 0x40; i++ {
		f.sim.Bytes()[0x10+i] = byte(i)
	}
	got := f.run(t, []byte("r10\r"))
	want := ">10\r\n00 01 02 03 04 05 06 07 08 09 0A 0B 0C 0D 0E 0F \r\n>"
	if got != want {
		t.Errorf("r output = %q, want %q", got, want)
	}

	got = f.run(t, []byte("r1C\rR1c 14\r"))
	want = ">1C\r\n0C 0D 0E 0F 10 11 12 13 14 15 16 17 18 19 1A 1B \r\n" +
		">1c 14\r\n" +
		"0C 0D 0E 0F 10 11 12 13 14 15 16 17 18 19 1A 1B \r\n" +
		"1C 1D 1E 1F \r\n>"
	if got != want {
		t.Errorf("R output = %q, want %q", got, want)
	}
}

func TestConsole_ReadLengthTooLarge(t *testing.T) {
	f := newFixture(t, 0)
	got := f.run(t, []byte("R0 80000000\r"))
	if !strings.Contains(got, "ERROR: ") || !strings.Contains(got, string(errcode.CapacityExceeded)) {
		t.Errorf("output = %q, want a capacity error", got)
	}
	if len(f.sim.Log()) != 0 {
		t.Errorf("oversized read touched the chip: %v", f.sim.Log())
	}
}

func TestConsole_SelectSize(t *testing.T) {
	f := newFixture(t, 0)
	got := f.run(t, []byte("S5\r"))
	if f.session.TargetSize != 32<<20 {
		t.Errorf("TargetSize = %d, want %d", f.session.TargetSize, 32<<20)
	}
	for _, line := range []string{"Select target flash size:\r\n", "0 - 1MB (8 Mbit)\r\n", "8 - 256K (2 Mbit)\r\n", "\r\nDefault is 64 Mbit\r\n"} {
		if !strings.Contains(got, line) {
			t.Errorf("menu lacks %q", line)
		}
	}

	got = f.run(t, []byte("S9\r"))
	if !strings.Contains(got, "ERROR: Invalid target size selected.\r\n") {
		t.Errorf("invalid selection output = %q", got)
	}
	if f.session.TargetSize != 32<<20 {
		t.Errorf("invalid selection changed TargetSize to %d", f.session.TargetSize)
	}
}

func TestConsole_Direction(t *testing.T) {
	f := newFixture(t, 0)
	if got := f.run(t, []byte("x")); got != ">07>" {
		t.Errorf("output = %q, want %q", got, ">07>")
	}
}

func TestConsole_Help(t *testing.T) {
	f := newFixture(t, 0)
	if got := f.run(t, []byte("h")); got != ">"+embedded.Help()+">" {
		t.Errorf("help output = %q", got)
	}
}

func TestConsole_Dump(t *testing.T) {
	f := newFixture(t, 0)
	f.session.TargetSize = 1 << 16
	for i := 0; i < 1<<16; i++ {
		f.sim.Bytes()[i] = byte(i >> 8)
	}
	got := f.run(t, []byte("d"))
	want := ">" + string(f.sim.Bytes()[:1<<16]) + ">"
	if got != want {
		t.Errorf("dump output is %d bytes, want %d", len(got), len(want))
	}
}

func TestConsole_Transfer(t *testing.T) {
	f := newFixture(t, 0)
	const size = 1 << 16
	f.session.TargetSize = size
	for i := 0; i < size; i++ {
		f.sim.Bytes()[i] = byte(i * 7)
	}
	blocks := size / xmodem.PayloadSize
	input := append([]byte{xmodem.NAK}, bytes.Repeat([]byte{xmodem.ACK}, blocks+1)...)
	got := []byte(f.run(t, input))

	if got[0] != '>' {
		t.Fatalf("output starts %q", got[:1])
	}
	frames := got[1 : 1+blocks*xmodem.FrameSize]
	for i := 0; i < blocks; i++ {
		fr := frames[i*xmodem.FrameSize : (i+1)*xmodem.FrameSize]
		seq := byte(i + 1)
		if fr[0] != xmodem.SOH || fr[1] != seq || fr[2] != 0xFF-seq {
			t.Fatalf("frame %d header = % X", i, fr[:3])
		}
		payload := f.sim.Bytes()[i*xmodem.PayloadSize : (i+1)*xmodem.PayloadSize]
		if !bytes.Equal(fr[3:3+xmodem.PayloadSize], payload) {
			t.Fatalf("frame %d payload differs from flash", i)
		}
		if fr[xmodem.FrameSize-1] != xmodem.Checksum(payload) {
			t.Fatalf("frame %d checksum = %02X", i, fr[xmodem.FrameSize-1])
		}
	}
	tail := string(got[1+blocks*xmodem.FrameSize:])
	if want := string([]byte{xmodem.EOT}) + "xmodem done\r\n>"; tail != want {
		t.Errorf("tail = %q, want %q", tail, want)
	}
}

func TestConsole_TransferThroughTimeouts(t *testing.T) {
	f := newFixture(t, 0)
	const size = 1 << 14
	f.session.TargetSize = size
	blocks := size / xmodem.PayloadSize
	p := &stallPort{
		in:    append([]byte{xmodem.NAK}, bytes.Repeat([]byte{xmodem.ACK}, blocks+1)...),
		stall: func(i int) bool { return i > 0 },
	}
	f.serve(t, p)
	got := p.out.String()
	if strings.Contains(got, "ERROR") {
		t.Fatalf("transfer failed: %q", got[len(got)-60:])
	}
	if want := string([]byte{xmodem.EOT}) + "xmodem done\r\n>"; !strings.HasSuffix(got, want) {
		t.Errorf("output ends %q, want %q", got[len(got)-20:], want)
	}
	if n := strings.Count(got, string([]byte{xmodem.SOH, 0x01, 0xFE})); n != 1 {
		t.Errorf("first block sent %d times, want 1", n)
	}
}

func TestConsole_TransferCancelled(t *testing.T) {
	f := newFixture(t, 0)
	f.session.TargetSize = 1 << 16
	got := f.run(t, []byte{xmodem.NAK, xmodem.ACK, xmodem.CAN})
	if !strings.Contains(got, "xmodem done\r\n") {
		t.Errorf("output lacks xmodem done")
	}
	if !strings.Contains(got, "ERROR: ") || !strings.Contains(got, string(errcode.Cancelled)) {
		t.Errorf("output lacks the cancellation: %q", got[len(got)-60:])
	}
	if strings.Contains(got, string([]byte{xmodem.EOT})) {
		t.Error("EOT sent after cancel")
	}
}

func TestConsole_LocatePassword(t *testing.T) {
	f := newFixture(t, 0)
	copy(f.sim.Bytes()[0x12364:], []byte{0xFF, 0x23, 0x80})
	got := f.run(t, []byte("l"))
	want := ">Locating passwords...\r\nFound potential password at address: 0x012364\r\nAll done!\r\n>"
	if got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestConsole_ErasePassword(t *testing.T) {
	f := newFixture(t, 1)
	copy(f.sim.Bytes()[0x12364:], []byte{0xFF, 0x23, 0x80, 0x4E})
	got := f.run(t, []byte("f"))
	want := ">Locating passwords...\r\nErasing passwords...\r\nClearing password from address: 0x012000\r\nAll done!\r\n>"
	if got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
	if f.sim.Bytes()[0x12364] != 0xFF || f.sim.Bytes()[0x12365] != 0xFF {
		t.Error("password sector not erased")
	}
}

func TestConsole_ErasePasswordOverflow(t *testing.T) {
	f := newFixture(t, 0)
	for i := 0; i < 5; i++ {
		copy(f.sim.Bytes()[0x20000*(i+1):], []byte{0xFF, 0x23, 0x80, 0x4E})
	}
	got := f.run(t, []byte("f"))
	if strings.Contains(got, "Erasing passwords") || strings.Contains(got, "Clearing") {
		t.Errorf("output = %q, want no erase", got)
	}
	if !strings.Contains(got, string(errcode.CapacityExceeded)) {
		t.Errorf("output = %q, want capacity error", got)
	}
}

func TestConsole_BulkEraseMicronPrintsDots(t *testing.T) {
	f := newFixture(t, 3)
	got := f.run(t, []byte("Q"))
	want := ">Starting Micron N25Q064A/Winbond W25Q64FV bulk erase...\r\n...\r\nFinished bulk erase!\r\n>"
	if got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestConsole_EraseCommandsUseTargetSize(t *testing.T) {
	tests := []struct {
		cmd  string
		op   byte
		want int
	}{
		{"E", flash.CmdSectorErase, (1 << 18) / flash.SectorSize},
		{"z", flash.CmdBlockErase, (1 << 18) / flash.BlockSize},
		{"A", flash.CmdBlockErase, (1 << 18) / flash.BlockSize},
	}
	for _, tt := range tests {
		f := newFixture(t, 0)
		f.session.TargetSize = 1 << 18
		got := f.run(t, []byte(tt.cmd))
		n := 0
		for _, cmd := range f.sim.Log() {
			if cmd.Op == tt.op {
				n++
			}
		}
		if n != tt.want {
			t.Errorf("%s issued %d erases, want %d", tt.cmd, n, tt.want)
		}
		if strings.Contains(got, "ERROR") {
			t.Errorf("%s output = %q", tt.cmd, got)
		}
	}
}

func TestConsole_ResetVariable(t *testing.T) {
	f := newFixture(t, 1)
	if got := f.run(t, []byte("k")); got != ">done!\r\n>" {
		t.Errorf("output = %q", got)
	}
	if f.sim.Bytes()[flash.ResetVariableAddr] != 0 {
		t.Error("variable not cleared")
	}
}

type countingActivity struct {
	progress, idle int
}

func (a *countingActivity) Progress(int, int) { a.progress++ }
func (a *countingActivity) Idle()             { a.idle++ }

func TestConsole_Activity(t *testing.T) {
	f := newFixture(t, 0)
	f.session.TargetSize = 4 * flash.BlockSize
	a := &countingActivity{}
	f.run(t, []byte("z?"), WithActivity(a))
	if a.progress != 4 {
		t.Errorf("progress calls = %d, want 4", a.progress)
	}
	if a.idle != 1 {
		t.Errorf("idle calls = %d, want 1", a.idle)
	}
}

// timeoutPort returns in, then always times out. It cancels ctx on the
// third read.
type timeoutPort struct {
	bytes.Buffer
	in     []byte
	reads  int
	cancel context.CancelFunc
}

func (p *timeoutPort) ReadByte() (byte, error) {
	p.reads++
	if p.reads == 3 {
		p.cancel()
	}
	if len(p.in) > 0 {
		b := p.in[0]
		p.in = p.in[1:]
		return b, nil
	}
	return 0, &errcode.E{C: errcode.Timeout, Op: "serial.read"}
}

func TestConsole_ServeStopsOnCancel(t *testing.T) {
	f := newFixture(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	p := &timeoutPort{cancel: cancel}
	c := New(p, flash.New(f.sim, f.bits, 0xB0), f.bits)
	err := c.Serve(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Serve() error = %v, want %v", err, context.Canceled)
	}
	if p.String() != ">" {
		t.Errorf("output = %q, want a single prompt", p.String())
	}
}

func TestConsole_CommandWaitStopsOnCancel(t *testing.T) {
	f := newFixture(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	p := &timeoutPort{in: []byte("r"), cancel: cancel}
	c := New(p, flash.New(f.sim, f.bits, 0xB0), f.bits)
	err := c.Serve(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Serve() error = %v, want %v", err, context.Canceled)
	}
	if want := ">ERROR: context canceled\r\n"; p.String() != want {
		t.Errorf("output = %q, want %q", p.String(), want)
	}
}

// pacedActivity records the rates commands ask for.
type pacedActivity struct {
	countingActivity
	paces []int
}

func (a *pacedActivity) Pace(every int) { a.paces = append(a.paces, every) }

func TestConsole_ErasePasswordPace(t *testing.T) {
	f := newFixture(t, 0)
	a := &pacedActivity{}
	f.run(t, []byte("fl"), WithActivity(Activities{a}))
	if len(a.paces) != 1 || a.paces[0] != LEDEraseScanEvery {
		t.Errorf("paces = %v, want [%d]", a.paces, LEDEraseScanEvery)
	}
}

func TestLED_Pace(t *testing.T) {
	bank := gpio.NewSimBank()
	bits := gpio.New(bank)
	led := NewLED(bits, 0xD6)
	led.Pace(LEDEraseScanEvery)
	for i := 1; i < LEDEraseScanEvery; i++ {
		led.Progress(i, 0)
	}
	if bits.Read(0xD6) != 1 {
		t.Fatal("paced LED toggled early")
	}
	led.Progress(LEDEraseScanEvery, 0)
	if bits.Read(0xD6) != 0 {
		t.Fatal("paced LED did not toggle")
	}

	led.Idle()
	for i := 0; i < LEDToggleEvery; i++ {
		led.Progress(i, 0)
	}
	if bits.Read(0xD6) != 0 {
		t.Error("LED kept the slow rate after Idle")
	}
}

func TestLED_Toggles(t *testing.T) {
	bank := gpio.NewSimBank()
	bits := gpio.New(bank)
	led := NewLED(bits, 0xD6)
	if bits.Read(0xD6) != 1 {
		t.Fatal("LED off after NewLED")
	}
	for i := 1; i < LEDToggleEvery; i++ {
		led.Progress(i, 0)
	}
	if bits.Read(0xD6) != 1 {
		t.Fatal("LED toggled early")
	}
	led.Progress(LEDToggleEvery, 0)
	if bits.Read(0xD6) != 0 {
		t.Error("LED did not toggle")
	}
	led.Idle()
	if bits.Read(0xD6) != 1 {
		t.Error("LED not on when idle")
	}
}

func TestParseCommand(t *testing.T) {
	for _, b := range []byte("irRdweEBQAzub123flsSkxh") {
		if _, ok := ParseCommand(b); !ok {
			t.Errorf("ParseCommand(%q) not recognised", b)
		}
	}
	if c, ok := ParseCommand(xmodem.NAK); !ok || c != CmdTransfer {
		t.Errorf("ParseCommand(NAK) = %v, %v", c, ok)
	}
	for _, b := range []byte("?#Zq\r") {
		if _, ok := ParseCommand(b); ok {
			t.Errorf("ParseCommand(%q) recognised", b)
		}
	}
}
