//go:build rp2040

package main

import (
	"context"
	"time"

	"github.com/bigbag/spiprobe/internal/board"
	"github.com/bigbag/spiprobe/internal/console"
	"github.com/bigbag/spiprobe/internal/logging"
)

const baudRate = 115200

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(500 * time.Millisecond)
	log := logging.Println{}

	b, err := board.OpenPico(log)
	if err != nil {
		log.Error("board bring-up failed", "err", err)
		halt()
	}
	chip := b.Chip(log)
	port, err := board.OpenUART(baudRate)
	if err != nil {
		log.Error("uart configure failed", "err", err)
		halt()
	}
	port.Write([]byte("spi\r\n"))

	c := console.New(port, chip, b.Bits,
		console.WithActivity(console.NewLED(b.Bits, board.LED)),
		console.WithLogger(log),
	)
	for {
		if err := c.Serve(context.Background()); err != nil {
			log.Error("console stopped", "err", err)
		}
	}
}

// halt parks the firmware after a fatal error.
func halt() {
	for {
		time.Sleep(time.Second)
	}
}
