package rfm9x

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
)

// periphSPI adapts a periph.io SPI connection to the driver port.
type periphSPI struct {
	conn spi.Conn
}

func (p periphSPI) Tx(w, r []byte) error {
	return p.conn.Tx(w, r)
}

// periphPin adapts a periph.io GPIO pin to the driver port.
type periphPin struct {
	pin gpio.PinIO
}

func (p periphPin) Out(high bool) error {
	return p.pin.Out(gpio.Level(high))
}

// Open claims the SPI port and the reset pin through periph.io and brings
// the radio up. The caller must have initialized the periph host before.
// device is a spireg port name like "SPI0.1", the empty string picks the
// first available port. Closing the returned Radio releases the port.
func Open(device string, hz int64, resetPin int, opts Options) (*Radio, error) {
	port, err := spireg.Open(device)
	if err != nil {
		return nil, fmt.Errorf("rfm9x: opening spi port %q: %w", device, err)
	}
	conn, err := port.Connect(physic.Frequency(hz)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("rfm9x: configuring spi port %q: %w", device, err)
	}
	rst := gpioreg.ByName(fmt.Sprintf("GPIO%d", resetPin))
	if rst == nil {
		port.Close()
		return nil, fmt.Errorf("rfm9x: reset pin GPIO%d not found", resetPin)
	}

	radio, err := New(periphSPI{conn: conn}, periphPin{pin: rst}, opts)
	if err != nil {
		port.Close()
		return nil, err
	}
	radio.closer = port.Close
	return radio, nil
}
