package rfm9x

// Every packet on the air carries a 4 byte header in front of the payload:
// destination, source, message id, flags. The stock firmware of the peer
// devices expects it, so the driver speaks the same framing. Addressing is
// not used by the relay, everything goes out as broadcast and everything
// heard is accepted.

const (
	headerLen     = 4
	broadcastAddr = 0xFF
)

// header is the decoded per-packet envelope.
type header struct {
	Dest  byte
	Src   byte
	ID    byte
	Flags byte
}

// buildFrame prepends the header to the payload.
func buildFrame(h header, payload []byte) []byte {
	frame := make([]byte, 0, headerLen+len(payload))
	frame = append(frame, h.Dest, h.Src, h.ID, h.Flags)
	return append(frame, payload...)
}

// splitFrame separates header and payload. ok is false for frames too
// short to carry a header and at least one payload byte.
func splitFrame(raw []byte) (h header, payload []byte, ok bool) {
	if len(raw) < headerLen+1 {
		return header{}, nil, false
	}
	h = header{Dest: raw[0], Src: raw[1], ID: raw[2], Flags: raw[3]}
	return h, raw[headerLen:], true
}
