// Package platform provides the hardware backends of the relay. The
// Raspberry Pi implementation drives the real transceiver, OLED panel and
// pushbuttons, the TUI implementation simulates all three in a terminal so
// the relay loop can be developed and demonstrated without any hardware.
package platform

import (
	"os"

	"holzapfel.net/gorelay/config"
	"holzapfel.net/gorelay/relay"
)

// Platform abstracts the physical I/O of the relay station away from the
// control loop.
type Platform interface {
	// Start initializes the platform (e.g., opens GPIO/SPI/I2C, or starts
	// the TUI).
	Start() error

	// Stop cleans up all platform resources.
	Stop()

	// Ready returns a channel that is closed once the platform is fully
	// operational and the control loop may start ticking.
	Ready() <-chan bool

	// Transceiver returns the packet radio the control loop polls.
	Transceiver() relay.Transceiver

	// Display returns the status panel the control loop renders to.
	Display() relay.Display

	// Buttons returns the pushbutton sampler.
	Buttons() relay.Buttons

	// HandleEvent is called for every relay event so the platform can
	// update its own views. It runs on the control loop goroutine and
	// must not block.
	HandleEvent(ev relay.Event)
}

// Dimmer is the optional display capability behind night dimming. The real
// panel implements it, the simulated one does not need to.
type Dimmer interface {
	SetContrast(contrast uint8) error
}

// AbstractPlatform provides the state and behaviour shared by all Platform
// implementations. The concrete platforms fill in the three ports during
// Start.
type AbstractPlatform struct {
	config *config.Config
	trx    relay.Transceiver
	disp   relay.Display
	btns   relay.Buttons
}

func newAbstractPlatform(conf *config.Config) *AbstractPlatform {
	return &AbstractPlatform{config: conf}
}

func (s *AbstractPlatform) Transceiver() relay.Transceiver {
	return s.trx
}

func (s *AbstractPlatform) Display() relay.Display {
	return s.disp
}

func (s *AbstractPlatform) Buttons() relay.Buttons {
	return s.btns
}

// HandleEvent does nothing. Platforms that visualise relay traffic shadow
// this method.
func (s *AbstractPlatform) HandleEvent(ev relay.Event) {}

// NewPlatform creates the platform selected by the realhw flag: the
// Raspberry Pi hardware when true, the TUI simulation otherwise.
func NewPlatform(conf *config.Config, realhw bool, ossignal chan os.Signal) Platform {
	if realhw {
		return NewRaspberryPiPlatform(conf)
	}
	return NewTUIPlatform(conf, ossignal)
}
