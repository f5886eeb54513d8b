//go:build !rp2040 && !rp2350

package board

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v2"

	"github.com/bigbag/spiprobe/internal/gpio"
)

// Config maps the probe's pins to host lines and selects the SPI port.
type Config struct {
	Name string `yaml:"name"`
	// Pins maps a pin address such as "B0" to a periph pin name.
	Pins map[string]string `yaml:"pins"`
	SPI  SPIConfig         `yaml:"spi"`
	// Power enables the supply pin.
	Power bool `yaml:"power"`
}

// SPIConfig selects the SPI controller.
type SPIConfig struct {
	// Port is a spireg name; empty opens the first port.
	Port string `yaml:"port"`
	// Clock is a frequency such as "1MHz".
	Clock string `yaml:"clock"`
	// BitBang drives SCLK, MOSI and MISO as plain lines.
	BitBang bool `yaml:"bitbang"`
}

// DefaultConfig is the wiring on a Raspberry Pi header. Chip select is a
// plain line so the kernel driver never toggles it between transfers.
func DefaultConfig() Config {
	return Config{
		Name: "rpi",
		Pins: map[string]string{
			"B0": "GPIO25",
			"B1": "GPIO11",
			"B2": "GPIO10",
			"B3": "GPIO9",
			"B7": "GPIO24",
			"D6": "GPIO23",
		},
		SPI: SPIConfig{Port: "", Clock: "1MHz"},
	}
}

// LoadConfig reads a YAML board file. Missing fields keep their defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read board file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes a YAML board description over the defaults.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	var file Config
	if err := yaml.UnmarshalStrict(data, &file); err != nil {
		return cfg, fmt.Errorf("failed to parse board file: %w", err)
	}
	if file.Name != "" {
		cfg.Name = file.Name
	}
	for k, v := range file.Pins {
		if _, err := ParsePin(k); err != nil {
			return cfg, err
		}
		cfg.Pins[k] = v
	}
	if file.SPI.Port != "" {
		cfg.SPI.Port = file.SPI.Port
	}
	if file.SPI.Clock != "" {
		cfg.SPI.Clock = file.SPI.Clock
	}
	cfg.SPI.BitBang = file.SPI.BitBang
	cfg.Power = file.Power
	return cfg, nil
}

// ParsePin parses a two hex digit pin address such as "B0".
func ParsePin(s string) (gpio.Pin, error) {
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil || len(s) != 2 {
		return 0, fmt.Errorf("invalid pin address %q", s)
	}
	p := gpio.Pin(v)
	if !p.Valid() {
		return 0, fmt.Errorf("invalid pin address %q", s)
	}
	return p, nil
}

// PinMap resolves the pin addresses in c.
func (c Config) PinMap() (map[gpio.Pin]string, error) {
	m := make(map[gpio.Pin]string, len(c.Pins))
	for k, v := range c.Pins {
		p, err := ParsePin(k)
		if err != nil {
			return nil, err
		}
		m[p] = v
	}
	return m, nil
}
