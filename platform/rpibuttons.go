package platform

import (
	"fmt"
	"log/slog"

	"github.com/stianeikeland/go-rpio/v4"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"

	"holzapfel.net/gorelay/config"
	"holzapfel.net/gorelay/relay"
)

// buttonBackend reads the raw electrical level of one button line. Two
// implementations exist because not every kernel likes both GPIO stacks:
// go-rpio pokes /dev/gpiomem directly while periph.io goes through the
// kernel drivers.
type buttonBackend interface {
	level(id relay.ButtonID) (bool, error)
	close()
}

// gpioButtons samples the three pushbuttons. The inputs are pulled up and
// the buttons switch against ground, so a low line means pressed.
type gpioButtons struct {
	backend buttonBackend
}

func newGPIOButtons(conf config.ButtonsConfig) (*gpioButtons, error) {
	pins := [3]int{conf.PinA, conf.PinB, conf.PinC}

	var backend buttonBackend
	var err error
	switch conf.GPIOLibrary {
	case "periph.io":
		backend, err = newPeriphButtons(pins)
	case "go-rpio":
		backend, err = newRpioButtons(pins)
	default:
		err = fmt.Errorf("unknown GPIOLibrary: %s", conf.GPIOLibrary)
	}
	if err != nil {
		return nil, err
	}
	return &gpioButtons{backend: backend}, nil
}

func (b *gpioButtons) Pressed(id relay.ButtonID) (bool, error) {
	high, err := b.backend.level(id)
	if err != nil {
		return false, err
	}
	return !high, nil
}

func (b *gpioButtons) close() {
	b.backend.close()
}

type rpioButtons struct {
	pins [3]rpio.Pin
}

func newRpioButtons(pins [3]int) (*rpioButtons, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open gpio memory range: %w", err)
	}
	inst := &rpioButtons{}
	for i, p := range pins {
		pin := rpio.Pin(p)
		pin.Input()
		pin.PullUp()
		inst.pins[i] = pin
	}
	return inst, nil
}

func (b *rpioButtons) level(id relay.ButtonID) (bool, error) {
	return b.pins[id].Read() == rpio.High, nil
}

func (b *rpioButtons) close() {
	if err := rpio.Close(); err != nil {
		slog.Error("Error closing gpio memory range", "error", err)
	}
}

type periphButtons struct {
	pins [3]gpio.PinIO
}

func newPeriphButtons(pins [3]int) (*periphButtons, error) {
	inst := &periphButtons{}
	for i, p := range pins {
		pin := gpioreg.ByName(fmt.Sprintf("GPIO%d", p))
		if pin == nil {
			return nil, fmt.Errorf("failed to find button pin %d", p)
		}
		if err := pin.In(gpio.PullUp, gpio.NoEdge); err != nil {
			return nil, fmt.Errorf("failed to set button pin %d to input: %w", p, err)
		}
		inst.pins[i] = pin
	}
	return inst, nil
}

func (b *periphButtons) level(id relay.ButtonID) (bool, error) {
	return bool(b.pins[id].Read()), nil
}

func (b *periphButtons) close() {}
