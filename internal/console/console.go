// Package console runs the single-byte command loop an operator drives over
// a serial link: print a prompt, read one byte, run exactly one operation to
// completion, repeat.
package console

import (
	"context"
	"errors"
	"io"

	"github.com/bigbag/spiprobe/embedded"
	"github.com/bigbag/spiprobe/internal/errcode"
	"github.com/bigbag/spiprobe/internal/flash"
	"github.com/bigbag/spiprobe/internal/gpio"
	"github.com/bigbag/spiprobe/internal/logging"
	"github.com/bigbag/spiprobe/internal/nvram"
	"github.com/bigbag/spiprobe/internal/xmodem"
)

// Prompt is written before every command byte is read.
const Prompt = '>'

// Port is the operator link. ReadByte blocks; a bounded port returns
// errcode.Timeout, and io.EOF ends the session. Timeouts only matter while
// waiting for a command byte: reads inside a command wait through them.
type Port interface {
	io.Writer
	io.ByteReader
}

// Session is the state that survives between commands.
type Session struct {
	// TargetSize bounds the whole-device erase and dump commands.
	TargetSize uint32
	// Uploaded counts bytes programmed by the last upload.
	Uploaded uint32
}

// NewSession returns a session with the default target size.
func NewSession() *Session {
	return &Session{TargetSize: flash.DefaultSize}
}

// Console dispatches commands to the flash chip.
type Console struct {
	ctx      context.Context
	port     Port
	out      output
	chip     *flash.Chip
	bits     *gpio.Bits
	ddr      gpio.Port
	session  *Session
	sender   *xmodem.Sender
	scanner  *nvram.Scanner
	activity Activity
	help     string
	log      logging.Logger
}

// Option configures a Console.
type Option func(*Console)

// WithActivity sets the activity indicator.
func WithActivity(a Activity) Option {
	return func(c *Console) {
		if a != nil {
			c.activity = a
		}
	}
}

// WithLogger sets a logger for command tracing.
func WithLogger(l logging.Logger) Option {
	return func(c *Console) { c.log = logging.OrNop(l) }
}

// WithSession shares an existing session.
func WithSession(s *Session) Option {
	return func(c *Console) {
		if s != nil {
			c.session = s
		}
	}
}

// WithHelp replaces the help text.
func WithHelp(text string) Option {
	return func(c *Console) { c.help = text }
}

// WithDirectionPort selects the port whose direction register x prints.
func WithDirectionPort(p gpio.Port) Option {
	return func(c *Console) { c.ddr = p }
}

// New creates a Console on port driving chip.
func New(port Port, chip *flash.Chip, bits *gpio.Bits, opts ...Option) *Console {
	c := &Console{
		ctx:      context.Background(),
		port:     port,
		out:      output{w: port},
		chip:     chip,
		bits:     bits,
		ddr:      gpio.PortB,
		session:  NewSession(),
		activity: noActivity{},
		help:     embedded.Help(),
		log:      logging.Nop{},
	}
	for _, o := range opts {
		o(c)
	}
	c.sender = xmodem.NewSender(commandPort{c}, c.log)
	c.scanner = nvram.New(chip, c.log)
	chip.SetProgressCallback(c.activity.Progress)
	c.scanner.SetProgressCallback(c.activity.Progress)
	return c
}

// Session returns the console state.
func (c *Console) Session() *Session { return c.session }

// Serve runs the command loop until ctx is done or the port reports io.EOF.
// Timeouts while waiting for a command only recheck ctx.
func (c *Console) Serve(ctx context.Context) error {
	c.ctx = ctx
	defer func() { c.ctx = context.Background() }()
	prompt := true
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if prompt {
			c.out.Write([]byte{Prompt})
			if c.out.err != nil {
				return c.out.err
			}
		}
		b, err := c.port.ReadByte()
		if err != nil {
			if isTimeout(err) {
				prompt = false
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		prompt = true
		c.Dispatch(b)
		if c.out.err != nil {
			return c.out.err
		}
	}
}

// Dispatch runs the command for b. Unknown bytes print '?'. Failures are
// reported on the port, a write-protected chip as wp!.
func (c *Console) Dispatch(b byte) {
	cmd, ok := ParseCommand(b)
	if !ok {
		c.out.Write([]byte{'?'})
		return
	}
	c.log.Debug("command", "cmd", cmd.String())
	err := c.run(cmd)
	c.activity.Idle()
	switch {
	case err == nil:
	case errcode.Of(err) == errcode.WriteProtected:
		c.log.Info("write protected", "cmd", cmd.String())
		c.out.Line("wp!")
	default:
		c.log.Error("command failed", "cmd", cmd.String(), "err", err)
		c.out.Line("ERROR: " + err.Error())
	}
}

// pace changes the activity rate for the running command.
func (c *Console) pace(every int) {
	if p, ok := c.activity.(Pacer); ok {
		p.Pace(every)
	}
}

func (c *Console) run(cmd Command) error {
	switch cmd {
	case CmdIdentify:
		return c.identify()
	case CmdRead16:
		return c.read16()
	case CmdReadN:
		return c.readN()
	case CmdDump:
		return c.dump()
	case CmdWriteEnable:
		return c.writeEnable()
	case CmdEraseSector:
		return c.eraseSector()
	case CmdEraseAll:
		return c.eraseAll(c.chip.EraseBySectors)
	case CmdEraseBlocks:
		return c.eraseAll(c.chip.EraseByBlocks)
	case CmdBulkSpansion:
		return c.bulkErase(flash.BulkSpansion)
	case CmdBulkMicron:
		return c.bulkErase(flash.BulkMicronWinbond)
	case CmdBulkMacronix:
		return c.bulkErase(flash.BulkMacronix)
	case CmdUpload:
		return c.upload()
	case CmdUploadBIOS:
		return c.flashRegion(RegionBIOS)
	case CmdFlashArea1:
		return c.flashRegion(RegionArea1)
	case CmdFlashArea2:
		return c.flashRegion(RegionArea2)
	case CmdFlashArea3:
		return c.flashRegion(RegionArea3)
	case CmdErasePassword:
		return c.erasePassword()
	case CmdLocatePassword:
		return c.locatePassword()
	case CmdStats:
		return c.stats()
	case CmdSelectSize:
		return c.selectSize()
	case CmdResetVariable:
		return c.resetVariable()
	case CmdDirection:
		return c.direction()
	case CmdHelp:
		c.out.String(c.help)
		return nil
	case CmdTransfer:
		return c.transfer()
	}
	c.out.Write([]byte{'?'})
	return nil
}
