// Package config holds the YAML configuration of the relay device. A single
// file describes the relay behaviour, the hardware bindings of the radio,
// the display and the buttons, and the optional comfort features. Reading a
// missing file yields the built-in defaults so a freshly flashed device
// boots without any provisioning.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFile is the config file looked up next to the binary when no
// -config flag is given.
const DefaultFile = "relay.yml"

type Point struct {
	X int `yaml:"X"`
	Y int `yaml:"Y"`
}

// LayoutConfig places the display lines in pixel coordinates.
type LayoutConfig struct {
	GlyphAdvance int   `yaml:"GlyphAdvance"`
	Identity     Point `yaml:"Identity"`
	Waiting      Point `yaml:"Waiting"`
	RXLabel      Point `yaml:"RXLabel"`
	RXText       Point `yaml:"RXText"`
	Sent         Point `yaml:"Sent"`
}

type RelayConfig struct {
	TickInterval    time.Duration `yaml:"TickInterval"`
	RepeatWhileHeld bool          `yaml:"RepeatWhileHeld"`
	Layout          LayoutConfig  `yaml:"Layout"`
}

// UnmarshalYAML accepts TickInterval as a duration string like 100ms.
// Fields absent from the block keep their current values, same as the
// plain decoder would leave them.
func (r *RelayConfig) UnmarshalYAML(value *yaml.Node) error {
	raw := struct {
		TickInterval    string        `yaml:"TickInterval"`
		RepeatWhileHeld *bool         `yaml:"RepeatWhileHeld"`
		Layout          *LayoutConfig `yaml:"Layout"`
	}{Layout: &r.Layout}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.TickInterval != "" {
		d, err := time.ParseDuration(raw.TickInterval)
		if err != nil {
			return fmt.Errorf("Relay.TickInterval: %w", err)
		}
		r.TickInterval = d
	}
	if raw.RepeatWhileHeld != nil {
		r.RepeatWhileHeld = *raw.RepeatWhileHeld
	}
	return nil
}

type RadioConfig struct {
	FrequencyMHz float64 `yaml:"FrequencyMHz"`
	TxPower      int     `yaml:"TxPower"`
	SPIDevice    string  `yaml:"SPIDevice"`
	SPIHz        int64   `yaml:"SPIHz"`
	ResetPin     int     `yaml:"ResetPin"`
}

type DisplayConfig struct {
	Width  int `yaml:"Width"`
	Height int `yaml:"Height"`
	// I2CBus names the bus the panel hangs on, the first available one
	// when empty. The panel itself answers on the fixed address 0x3C.
	I2CBus string `yaml:"I2CBus"`
	// ResetPin pulses the panel reset line before init, -1 disables.
	ResetPin int `yaml:"ResetPin"`
}

type ButtonsConfig struct {
	// GPIOLibrary selects the GPIO backend, "go-rpio" or "periph.io".
	GPIOLibrary string `yaml:"GPIOLibrary"`
	PinA        int    `yaml:"PinA"`
	PinB        int    `yaml:"PinB"`
	PinC        int    `yaml:"PinC"`
}

type HardwareConfig struct {
	Radio   RadioConfig   `yaml:"Radio"`
	Display DisplayConfig `yaml:"Display"`
	Buttons ButtonsConfig `yaml:"Buttons"`
}

// NightDimConfig lowers the panel contrast between sunset and sunrise so
// the device does not light up a bedroom.
type NightDimConfig struct {
	Enabled   bool    `yaml:"Enabled"`
	Latitude  float64 `yaml:"Latitude"`
	Longitude float64 `yaml:"Longitude"`
	Contrast  uint8   `yaml:"Contrast"`
}

type ChimeConfig struct {
	Enabled    bool    `yaml:"Enabled"`
	SampleRate float64 `yaml:"SampleRate"`
	Volume     float64 `yaml:"Volume"`
}

type LogProfile struct {
	Level  string `yaml:"Level"`
	Format string `yaml:"Format"`
	File   string `yaml:"File"`
}

type LoggingConfig struct {
	TUI LogProfile `yaml:"TUI"`
	HW  LogProfile `yaml:"HW"`
}

type Config struct {
	// Identity is the device name shown on the display, the host name
	// when left empty.
	Identity string         `yaml:"Identity"`
	Relay    RelayConfig    `yaml:"Relay"`
	Hardware HardwareConfig `yaml:"Hardware"`
	NightDim NightDimConfig `yaml:"NightDim"`
	Chime    ChimeConfig    `yaml:"Chime"`
	Logging  LoggingConfig  `yaml:"Logging"`
}

// Default returns the built-in configuration matching the stock relay
// hardware: 915 MHz radio on SPI0.1, 128x32 panel on the first I2C bus and
// buttons on GPIO 5, 6 and 12.
func Default() *Config {
	return &Config{
		Relay: RelayConfig{
			TickInterval: 100 * time.Millisecond,
			Layout: LayoutConfig{
				GlyphAdvance: 7,
				Identity:     Point{X: 35, Y: 0},
				Waiting:      Point{X: 0, Y: 11},
				RXLabel:      Point{X: 0, Y: 11},
				RXText:       Point{X: 25, Y: 11},
				Sent:         Point{X: 25, Y: 22},
			},
		},
		Hardware: HardwareConfig{
			Radio: RadioConfig{
				FrequencyMHz: 915.0,
				TxPower:      23,
				SPIDevice:    "SPI0.1",
				SPIHz:        5_000_000,
				ResetPin:     25,
			},
			Display: DisplayConfig{
				Width:    128,
				Height:   32,
				ResetPin: 4,
			},
			Buttons: ButtonsConfig{
				GPIOLibrary: "go-rpio",
				PinA:        5,
				PinB:        6,
				PinC:        12,
			},
		},
		NightDim: NightDimConfig{Contrast: 10},
		Chime:    ChimeConfig{SampleRate: 44100, Volume: 0.3},
		Logging: LoggingConfig{
			TUI: LogProfile{Level: "DEBUG", Format: "text"},
			HW:  LogProfile{Level: "INFO", Format: "text"},
		},
	}
}

// ReadConfig loads the file, merges it over the defaults and validates the
// result. A missing file is not an error, the defaults apply unchanged. An
// empty identity is filled in from the host name in both cases.
func ReadConfig(cfile string) (*Config, error) {
	conf := Default()

	data, err := os.ReadFile(cfile)
	switch {
	case os.IsNotExist(err):
		// Headless first boot, run on defaults.
	case err != nil:
		return nil, fmt.Errorf("can't read config file %s: %w", cfile, err)
	default:
		if err := yaml.Unmarshal(data, conf); err != nil {
			return nil, fmt.Errorf("can't decode config file %s: %w", cfile, err)
		}
	}

	if conf.Identity == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "relay"
		}
		conf.Identity = host
	}

	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// Validate checks value ranges and cross-field rules. Error messages name
// the offending YAML field.
func (c *Config) Validate() error {
	if c.Relay.TickInterval <= 0 {
		return fmt.Errorf("Relay.TickInterval must be positive, got %v", c.Relay.TickInterval)
	}
	if c.Relay.Layout.GlyphAdvance <= 0 {
		return fmt.Errorf("Relay.Layout.GlyphAdvance must be positive, got %d", c.Relay.Layout.GlyphAdvance)
	}

	r := c.Hardware.Radio
	if r.FrequencyMHz < 240 || r.FrequencyMHz > 960 {
		return fmt.Errorf("Hardware.Radio.FrequencyMHz must be between 240 and 960, got %g", r.FrequencyMHz)
	}
	if r.TxPower < 5 || r.TxPower > 23 {
		return fmt.Errorf("Hardware.Radio.TxPower must be between 5 and 23, got %d", r.TxPower)
	}
	if r.SPIHz <= 0 {
		return fmt.Errorf("Hardware.Radio.SPIHz must be positive, got %d", r.SPIHz)
	}

	d := c.Hardware.Display
	if d.Width <= 0 || d.Height <= 0 {
		return fmt.Errorf("Hardware.Display geometry %dx%d is not usable", d.Width, d.Height)
	}

	b := c.Hardware.Buttons
	if b.GPIOLibrary != "go-rpio" && b.GPIOLibrary != "periph.io" {
		return fmt.Errorf("Hardware.Buttons.GPIOLibrary must be go-rpio or periph.io, got %q", b.GPIOLibrary)
	}
	if b.PinA == b.PinB || b.PinA == b.PinC || b.PinB == b.PinC {
		return fmt.Errorf("Hardware.Buttons pins must be distinct, got %d/%d/%d", b.PinA, b.PinB, b.PinC)
	}

	if c.NightDim.Enabled {
		if c.NightDim.Latitude < -90 || c.NightDim.Latitude > 90 {
			return fmt.Errorf("NightDim.Latitude must be between -90 and 90, got %g", c.NightDim.Latitude)
		}
		if c.NightDim.Longitude < -180 || c.NightDim.Longitude > 180 {
			return fmt.Errorf("NightDim.Longitude must be between -180 and 180, got %g", c.NightDim.Longitude)
		}
	}

	if c.Chime.Enabled {
		if c.Chime.SampleRate <= 0 {
			return fmt.Errorf("Chime.SampleRate must be positive, got %g", c.Chime.SampleRate)
		}
		if c.Chime.Volume < 0 || c.Chime.Volume > 1 {
			return fmt.Errorf("Chime.Volume must be between 0 and 1, got %g", c.Chime.Volume)
		}
	}
	return nil
}
