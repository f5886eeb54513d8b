package main

import (
	"fmt"
	"os"

	"github.com/bigbag/spiprobe/internal/board"
	"github.com/bigbag/spiprobe/internal/flash"
	"github.com/bigbag/spiprobe/internal/logging/glogger"
)

const (
	backendSim    = "sim"
	backendPeriph = "periph"
)

// openBoard brings up the probe selected by the backend flags.
func openBoard() (*board.Board, error) {
	switch backendFlag {
	case backendSim:
		cfg := board.SimConfig{
			Model:     simChipFlag,
			BusyPolls: simBusyFlag,
			BitBang:   spiFlag == "bitbang",
		}
		if simImageFlag != "" {
			f, err := os.Open(simImageFlag)
			if err != nil {
				return nil, fmt.Errorf("failed to open image: %w", err)
			}
			defer f.Close()
			cfg.Image = f
		}
		s, err := board.NewSim(cfg)
		if err != nil {
			return nil, err
		}
		return &s.Board, nil

	case backendPeriph:
		cfg := board.DefaultConfig()
		if boardFlag != "" {
			var err error
			if cfg, err = board.LoadConfig(boardFlag); err != nil {
				return nil, err
			}
		}
		switch spiFlag {
		case "bitbang":
			cfg.SPI.BitBang = true
		case "hw":
			cfg.SPI.BitBang = false
		}
		return board.OpenPeriph(cfg, glogger.New("board"))
	}
	return nil, fmt.Errorf("unknown backend %q (want %s or %s)", backendFlag, backendSim, backendPeriph)
}

func openChip(b *board.Board) *flash.Chip {
	return b.Chip(glogger.New("flash"), flash.WithPollLimit(pollLimitFlag))
}
