package relay

import "time"

// EventKind classifies the events emitted by the engine.
type EventKind int

const (
	// EventSent marks one outbound message accepted by the transceiver.
	EventSent EventKind = iota
	// EventReceived marks one inbound packet handed over by the
	// transceiver.
	EventReceived
	// EventSendFailed marks an outbound message the transceiver rejected.
	// The message is dropped, not retried.
	EventSendFailed
	// EventReceiveFailed marks a failed poll of the transceiver.
	EventReceiveFailed
	// EventDecodeError marks an inbound payload that was not valid UTF-8.
	EventDecodeError
)

func (k EventKind) String() string {
	switch k {
	case EventSent:
		return "sent"
	case EventReceived:
		return "received"
	case EventSendFailed:
		return "send-failed"
	case EventReceiveFailed:
		return "receive-failed"
	case EventDecodeError:
		return "decode-error"
	}
	return "unknown"
}

// Event records one observable outcome of the relay loop. Every successful
// send produces exactly one EventSent and every packet handed over by the
// transceiver exactly one EventReceived. Failures produce their own event
// kinds, nothing is dropped silently.
type Event struct {
	Kind EventKind
	// Button is set for EventSent and EventSendFailed.
	Button ButtonID
	// Payload holds the raw message body: the outbound bytes for send
	// events, the inbound bytes for receive events.
	Payload []byte
	// Text is the display rendition of Payload for receive events. It is
	// the undecodable placeholder when decoding failed.
	Text string
	// RSSI is the signal strength of the packet for receive events.
	RSSI int
	// Err carries the underlying failure for the failure kinds.
	Err  error
	Time time.Time
}
