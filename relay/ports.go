// Package relay implements the device-agnostic control loop of the packet
// relay. The engine polls a radio transceiver for inbound packets, samples
// three buttons, rebuilds the display frame on every tick and transmits a
// short fixed message when a button press is recognized. All hardware access
// goes through the three port interfaces defined here, so the engine itself
// never touches SPI, I2C or GPIO.
package relay

import "errors"

// ErrTransport marks transceiver failures in the events the engine emits.
// The engine wraps every receive and send error in it and recovers by
// degrading the tick to "no packet" or "send dropped"; only display and
// button errors are fatal.
var ErrTransport = errors.New("transport failure")

// ButtonID identifies one of the three physical buttons.
type ButtonID int

const (
	ButtonA ButtonID = iota
	ButtonB
	ButtonC
	numButtons
)

func (b ButtonID) String() string {
	switch b {
	case ButtonA:
		return "A"
	case ButtonB:
		return "B"
	case ButtonC:
		return "C"
	}
	return "?"
}

// Packet is one inbound transmission as handed over by the radio. It is
// fully consumed within the tick it was received in.
type Packet struct {
	Payload []byte
	// RSSI is the received signal strength in dBm, 0 if the transceiver
	// does not report one.
	RSSI int
}

// Transceiver is the radio port of the engine.
type Transceiver interface {
	// TryReceive returns the next pending packet, or (nil, nil) when none
	// is waiting. It must not block on the radio.
	TryReceive() (*Packet, error)
	// Send transmits the payload once, best effort. The engine never
	// retries a failed send.
	Send(payload []byte) error
}

// Display is the output port of the engine. The engine calls Clear, then
// zero or more DrawText, then exactly one Flush per tick, in that order.
// Implementations may batch all drawing until Flush.
type Display interface {
	Clear()
	// DrawText renders text with the top left corner of its first glyph
	// at the pixel position x, y.
	DrawText(text string, x, y int)
	Flush() error
}

// Buttons reports the logical state of the three buttons. Implementations
// must hide electrical polarity: Pressed returns true while the button is
// held down, regardless of active-low wiring.
type Buttons interface {
	Pressed(id ButtonID) (bool, error)
}
