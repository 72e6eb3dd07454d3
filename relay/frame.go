package relay

// Fixed display texts of the relay loop.
const (
	waitingText     = "- Waiting for PKT -"
	rxLabelText     = "RX: "
	undecodableText = "<undecodable>"
	sendFailedText  = "TX failed"
)

// Point is a pixel position on the display, origin in the top left corner.
type Point struct {
	X int
	Y int
}

// Layout fixes where the engine places its lines. All positions are pixel
// offsets. GlyphAdvance is the horizontal pixel footprint of one glyph and
// drives clipping against the usable display width.
type Layout struct {
	Identity     Point
	Waiting      Point
	RXLabel      Point
	RXText       Point
	Sent         Point
	GlyphAdvance int
}

// DefaultLayout arranges the lines for a 128x32 panel drawn with a 7x13
// fixed font: identity on top, packet text or waiting status on the middle
// row, send confirmations on the bottom row. The waiting line and the RX
// lines share a row because a tick shows one or the other, never both.
var DefaultLayout = Layout{
	Identity:     Point{X: 35, Y: 0},
	Waiting:      Point{X: 0, Y: 11},
	RXLabel:      Point{X: 0, Y: 11},
	RXText:       Point{X: 25, Y: 11},
	Sent:         Point{X: 25, Y: 22},
	GlyphAdvance: 7,
}

// A Line is one positioned text run of a display frame.
type Line struct {
	Text string
	X    int
	Y    int
}

// A Frame is the complete display content for one tick. It is rebuilt from
// scratch every tick and committed with a single flush, so nothing carries
// over from earlier ticks.
type Frame struct {
	Lines []Line
}

func (f *Frame) add(text string, at Point) {
	f.Lines = append(f.Lines, Line{Text: text, X: at.X, Y: at.Y})
}
