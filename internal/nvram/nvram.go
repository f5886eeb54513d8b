// Package nvram finds and clears the firmware password variable in an EFI
// NVRAM region stored on the SPI flash.
//
// The device is read from address 0 in 256-byte windows through a single
// read transaction. A candidate starts with FF 23; locating needs a third
// byte 80, erasing needs 80 4E. Matches are only looked for inside one
// window, so a signature straddling two windows is not found.
package nvram

import (
	"fmt"

	"github.com/bigbag/spiprobe/internal/errcode"
	"github.com/bigbag/spiprobe/internal/flash"
	"github.com/bigbag/spiprobe/internal/logging"
)

const (
	// ScanEnd is the end of the scanned range, independent of the
	// configured target size.
	ScanEnd = 8 << 20

	// WindowSize is the number of bytes examined at a time.
	WindowSize = 256

	// MaxSectors caps the sectors Erase will clear.
	MaxSectors = 4
)

// Scanner scans a chip for password variables.
type Scanner struct {
	chip     *flash.Chip
	progress flash.ProgressCallback
	log      logging.Logger
}

// New returns a Scanner for chip. l may be nil.
func New(chip *flash.Chip, l logging.Logger) *Scanner {
	return &Scanner{chip: chip, log: logging.OrNop(l)}
}

// SetProgressCallback sets a callback run after every window.
func (s *Scanner) SetProgressCallback(cb flash.ProgressCallback) {
	s.progress = cb
}

func locateMatch(w []byte, i int) bool {
	return w[i] == 0xFF && w[i+1] == 0x23 && i < WindowSize-2 && w[i+2] == 0x80
}

func eraseMatch(w []byte, i int) bool {
	return w[i] == 0xFF && w[i+1] == 0x23 && i < WindowSize-3 && w[i+2] == 0x80 && w[i+3] == 0x4E
}

// scan streams the device and calls match on every window offset 0..254.
// The callback stops the scan by returning an error.
func (s *Scanner) scan(match func(w []byte, i int) bool, hit func(addr uint32) error) error {
	st, err := s.chip.OpenStream(0)
	if err != nil {
		return err
	}
	defer st.Close()

	var window [WindowSize]byte
	total := ScanEnd / WindowSize
	for n := 0; n < total; n++ {
		start := st.Addr()
		if _, err := st.Read(window[:]); err != nil {
			return fmt.Errorf("read window at 0x%06X: %w", start, err)
		}
		for i := 0; i < WindowSize-1; i++ {
			if !match(window[:], i) {
				continue
			}
			if err := hit(start + uint32(i)); err != nil {
				return err
			}
		}
		if s.progress != nil {
			s.progress(n+1, total)
		}
	}
	return nil
}

// Locate reports the address of every FF 23 80 signature.
func (s *Scanner) Locate(found func(addr uint32)) error {
	return s.scan(locateMatch, func(addr uint32) error {
		s.log.Info("password candidate", "addr", addr)
		found(addr)
		return nil
	})
}

// Sectors returns the sectors holding an FF 23 80 4E signature, each once,
// in address order. More than MaxSectors returns errcode.CapacityExceeded.
func (s *Scanner) Sectors() ([]uint32, error) {
	var sectors []uint32
	err := s.scan(eraseMatch, func(addr uint32) error {
		sector := addr &^ (flash.SectorSize - 1)
		if n := len(sectors); n > 0 && sectors[n-1] == sector {
			return nil
		}
		if len(sectors) == MaxSectors {
			return &errcode.E{
				C:   errcode.CapacityExceeded,
				Op:  "nvram.scan",
				Msg: fmt.Sprintf("more than %d sectors hold a password", MaxSectors),
			}
		}
		sectors = append(sectors, sector)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sectors, nil
}

// Erase clears every sector found by Sectors. clearing is called before each
// sector erase. Nothing is erased when the scan fails or finds too many
// sectors.
func (s *Scanner) Erase(clearing func(addr uint32)) error {
	sectors, err := s.Sectors()
	if err != nil {
		s.log.Error("password scan aborted", "err", err)
		return err
	}
	return s.EraseSectors(sectors, clearing)
}

// EraseSectors runs write enable and sector erase for each address.
func (s *Scanner) EraseSectors(sectors []uint32, clearing func(addr uint32)) error {
	for _, addr := range sectors {
		clearing(addr)
		if err := s.chip.EraseSector(addr); err != nil {
			return fmt.Errorf("clear 0x%06X: %w", addr, err)
		}
	}
	return nil
}
