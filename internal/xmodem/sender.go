package xmodem

import (
	"fmt"
	"io"

	"github.com/bigbag/spiprobe/internal/errcode"
	"github.com/bigbag/spiprobe/internal/logging"
)

// MaxAttempts is the number of times a block is transmitted before the
// transfer fails.
const MaxAttempts = 10

// Port is the serial link to the receiver. ReadByte should block until a
// byte arrives: any read error, errcode.Timeout included, ends the transfer.
type Port interface {
	io.Writer
	io.ByteReader
}

// Sender transmits blocks to a receiver.
type Sender struct {
	port  Port
	block Block
	frame [FrameSize]byte
	log   logging.Logger
}

// NewSender creates a Sender on port. l may be nil.
func NewSender(port Port, l logging.Logger) *Sender {
	return &Sender{port: port, log: logging.OrNop(l)}
}

// Block returns the block whose Data the caller fills before each Send.
func (s *Sender) Block() *Block { return &s.block }

// Init resets the sequence number and, unless the receiver's first NAK was
// already consumed, waits for it. CAN aborts; other bytes are ignored.
func (s *Sender) Init(alreadyGotNAK bool) error {
	s.block.Seq = 0
	if alreadyGotNAK {
		return nil
	}
	for {
		c, err := s.port.ReadByte()
		if err != nil {
			return fmt.Errorf("wait for receiver: %w", err)
		}
		switch c {
		case NAK:
			return nil
		case CAN:
			return &errcode.E{C: errcode.Cancelled, Op: "xmodem.init", Msg: "receiver cancelled"}
		}
	}
}

// Send seals the current payload and transmits it. With waitForAck the
// frame is repeated on every NAK, up to MaxAttempts transmissions; ACK
// completes the block and CAN aborts. Without waitForAck the frame is sent
// once and no reply is read.
func (s *Sender) Send(waitForAck bool) error {
	s.block.next()
	frame := s.block.Encode(s.frame[:])

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		if _, err := s.port.Write(frame); err != nil {
			return fmt.Errorf("write block %d: %w", s.block.Seq, err)
		}
		if !waitForAck {
			return nil
		}
		retry, err := s.awaitReply()
		if err != nil {
			return err
		}
		if !retry {
			return nil
		}
		s.log.Debug("block nak", "seq", s.block.Seq, "attempt", attempt)
	}
	return &errcode.E{
		C:   errcode.RetriesExhausted,
		Op:  "xmodem.send",
		Msg: fmt.Sprintf("block %d not acknowledged after %d attempts", s.block.Seq, MaxAttempts),
	}
}

// awaitReply reads until ACK, NAK or CAN and reports whether to retransmit.
func (s *Sender) awaitReply() (bool, error) {
	for {
		c, err := s.port.ReadByte()
		if err != nil {
			return false, fmt.Errorf("wait for ack of block %d: %w", s.block.Seq, err)
		}
		switch c {
		case ACK:
			return false, nil
		case NAK:
			return true, nil
		case CAN:
			return false, &errcode.E{C: errcode.Cancelled, Op: "xmodem.send", Msg: "receiver cancelled"}
		}
	}
}

// Stream sends n bytes read from src as acknowledged blocks, n rounded up to
// whole blocks. sent, when set, is called after every acknowledged block.
func (s *Sender) Stream(src io.Reader, n uint32, sent func(blocks int)) error {
	for done := 0; uint32(done)*PayloadSize < n; done++ {
		if _, err := io.ReadFull(src, s.block.Data[:]); err != nil {
			return fmt.Errorf("fill block %d: %w", done+1, err)
		}
		if err := s.Send(true); err != nil {
			return err
		}
		if sent != nil {
			sent(done + 1)
		}
	}
	return nil
}

// Finish sends EOT until the receiver answers ACK or CAN. A NAK triggers
// another EOT; other bytes are ignored.
func (s *Sender) Finish() error {
	eot := []byte{EOT}
	for {
		if _, err := s.port.Write(eot); err != nil {
			return fmt.Errorf("write eot: %w", err)
		}
		retry, err := s.awaitReply()
		if err != nil {
			return err
		}
		if !retry {
			return nil
		}
	}
}
