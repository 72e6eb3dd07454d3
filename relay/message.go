package relay

import (
	"strings"
	"unicode/utf8"
)

// messageFor builds the fixed outbound message for a recognized press of
// the given button: the ASCII label terminated by CRLF.
func messageFor(id ButtonID) []byte {
	return []byte("Button " + id.String() + "!\r\n")
}

// displayText converts an inbound payload into its display line. Trailing
// carriage returns and line feeds are stripped so a peer's CRLF framing
// does not end up on the panel. A payload that is not valid UTF-8 yields
// the undecodable placeholder and ok == false.
func displayText(payload []byte) (text string, ok bool) {
	if !utf8.Valid(payload) {
		return undecodableText, false
	}
	return strings.TrimRight(string(payload), "\r\n"), true
}
