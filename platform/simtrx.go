package platform

import (
	"errors"
	"sync"

	"github.com/gammazero/deque"

	"holzapfel.net/gorelay/relay"
)

// SimTransceiver is the in-memory radio of the TUI simulation. Inbound
// packets are queued with Inject and handed to the control loop one per
// poll, like the FIFO of the real transceiver. The link can be failed on
// demand to watch the loop degrade and recover.
type SimTransceiver struct {
	mu       sync.Mutex
	inbound  *deque.Deque[*relay.Packet]
	sent     [][]byte
	linkDown bool
	rssi     int
}

func NewSimTransceiver() *SimTransceiver {
	return &SimTransceiver{
		inbound: new(deque.Deque[*relay.Packet]),
		rssi:    -60,
	}
}

// Inject queues one packet for a later poll, stamped with the current
// simulated signal strength.
func (s *SimTransceiver) Inject(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inbound.PushBack(&relay.Packet{Payload: payload, RSSI: s.rssi})
}

func (s *SimTransceiver) TryReceive() (*relay.Packet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.linkDown {
		return nil, errors.New("simulated link down")
	}
	if s.inbound.Len() == 0 {
		return nil, nil
	}
	return s.inbound.PopFront(), nil
}

func (s *SimTransceiver) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.linkDown {
		return errors.New("simulated link down")
	}
	msg := make([]byte, len(payload))
	copy(msg, payload)
	s.sent = append(s.sent, msg)
	return nil
}

// ToggleLink flips the simulated link failure and reports whether the
// link is up afterwards.
func (s *SimTransceiver) ToggleLink() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.linkDown = !s.linkDown
	return !s.linkDown
}

func (s *SimTransceiver) LinkUp() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.linkDown
}

// AdjustRSSI shifts the simulated signal strength by delta, clamped to
// the range a LoRa radio would plausibly report.
func (s *SimTransceiver) AdjustRSSI(delta int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rssi += delta
	s.rssi = min(s.rssi, 0)
	s.rssi = max(s.rssi, -120)
	return s.rssi
}

func (s *SimTransceiver) RSSI() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rssi
}

// SentMessages returns a copy of everything transmitted so far, oldest
// first.
func (s *SimTransceiver) SentMessages() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.sent))
	for i, msg := range s.sent {
		out[i] = make([]byte, len(msg))
		copy(out[i], msg)
	}
	return out
}

// Pending reports how many injected packets wait for delivery.
func (s *SimTransceiver) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inbound.Len()
}
