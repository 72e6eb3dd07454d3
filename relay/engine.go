package relay

import (
	"context"
	"fmt"
	"time"
)

// DefaultTick is the polling interval used when the configuration does not
// set one.
const DefaultTick = 100 * time.Millisecond

// Config collects everything the engine needs besides its ports.
type Config struct {
	// Identity is the device name shown on the top display line. It is
	// immutable after construction.
	Identity string
	// Width and Height are the usable display dimensions in pixels. The
	// engine clips line text against them.
	Width  int
	Height int
	// Tick is the polling interval, DefaultTick when zero.
	Tick time.Duration
	// RepeatWhileHeld switches button recognition from edge-triggered to
	// the legacy level-triggered behaviour that fires on every tick for
	// as long as a button is held down.
	RepeatWhileHeld bool
	// Layout places the display lines, DefaultLayout positions apply for
	// a zero GlyphAdvance.
	Layout Layout
}

// Engine drives the relay loop against its three hardware ports. All state
// lives in the struct and is touched only by the goroutine calling Run or
// Tick, so an Engine needs no locking.
type Engine struct {
	identity        string
	width           int
	height          int
	tick            time.Duration
	repeatWhileHeld bool
	layout          Layout

	trx  Transceiver
	disp Display
	btns Buttons
	sink func(Event)

	pressed [numButtons]bool
	last    *Packet
}

// New wires an engine to its ports. The sink receives one Event per send
// and receive outcome and must not block; a nil sink discards all events.
func New(cfg Config, trx Transceiver, disp Display, btns Buttons, sink func(Event)) (*Engine, error) {
	if trx == nil || disp == nil || btns == nil {
		return nil, fmt.Errorf("relay: all three ports must be non-nil")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("relay: display dimensions %dx%d are not usable", cfg.Width, cfg.Height)
	}
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	if cfg.Layout.GlyphAdvance <= 0 {
		cfg.Layout = DefaultLayout
	}
	if sink == nil {
		sink = func(Event) {}
	}
	return &Engine{
		identity:        cfg.Identity,
		width:           cfg.Width,
		height:          cfg.Height,
		tick:            cfg.Tick,
		repeatWhileHeld: cfg.RepeatWhileHeld,
		layout:          cfg.Layout,
		trx:             trx,
		disp:            disp,
		btns:            btns,
		sink:            sink,
	}, nil
}

// LastPacket returns the most recently received packet, nil before the
// first one arrives.
func (e *Engine) LastPacket() *Packet {
	return e.last
}

// Run drives Tick at the configured interval until ctx is cancelled or a
// tick fails with a display or button error. Cancellation is observed only
// between ticks, so a frame in flight is always flushed completely and the
// display is never left half drawn.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := e.Tick(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick runs one full relay cycle: rebuild the frame, poll the radio, sample
// the buttons, transmit at most one message and commit the frame. Errors
// from the display or button ports abort the cycle and are fatal to Run;
// transceiver failures degrade to "no packet" or "send dropped" for this
// tick only.
func (e *Engine) Tick() error {
	frame := &Frame{}
	frame.add(e.identity, e.layout.Identity)

	pkt, err := e.trx.TryReceive()
	switch {
	case err != nil:
		e.emit(Event{Kind: EventReceiveFailed, Err: fmt.Errorf("%w: %w", ErrTransport, err)})
		frame.add(waitingText, e.layout.Waiting)
	case pkt != nil:
		e.last = pkt
		text, ok := displayText(pkt.Payload)
		frame.add(rxLabelText, e.layout.RXLabel)
		frame.add(text, e.layout.RXText)
		e.emit(Event{Kind: EventReceived, Payload: pkt.Payload, Text: text, RSSI: pkt.RSSI})
		if !ok {
			e.emit(Event{Kind: EventDecodeError, Payload: pkt.Payload, Text: text, RSSI: pkt.RSSI})
		}
	default:
		frame.add(waitingText, e.layout.Waiting)
	}

	fire, err := e.sampleButtons()
	if err != nil {
		return err
	}
	if fire != nil {
		msg := messageFor(*fire)
		if err := e.trx.Send(msg); err != nil {
			e.emit(Event{Kind: EventSendFailed, Button: *fire, Payload: msg,
				Err: fmt.Errorf("%w: %w", ErrTransport, err)})
			frame.add(sendFailedText, e.layout.Sent)
		} else {
			e.emit(Event{Kind: EventSent, Button: *fire, Payload: msg})
			frame.add("Sent Button "+fire.String()+"!", e.layout.Sent)
		}
	}

	return e.render(frame)
}

// sampleButtons reads all three buttons once, updates every per-button
// latch and returns the single button to fire this tick, or nil. A press is
// recognized on the released-to-pressed transition only, unless
// repeatWhileHeld keeps it firing for as long as the button reads pressed.
// When several buttons qualify in the same tick the lowest ID wins.
func (e *Engine) sampleButtons() (*ButtonID, error) {
	var fire *ButtonID
	for i := range e.pressed {
		id := ButtonID(i)
		down, err := e.btns.Pressed(id)
		if err != nil {
			return nil, fmt.Errorf("button %s: %w", id, err)
		}
		edge := down && !e.pressed[i]
		e.pressed[i] = down
		if fire == nil && (edge || (down && e.repeatWhileHeld)) {
			fire = &id
		}
	}
	return fire, nil
}

// render commits the frame through the display port, honoring the
// clear / drawText / flush contract and the usable display area. Lines
// starting outside the panel are dropped entirely.
func (e *Engine) render(f *Frame) error {
	e.disp.Clear()
	for _, l := range f.Lines {
		if l.X < 0 || l.X >= e.width || l.Y < 0 || l.Y >= e.height {
			continue
		}
		e.disp.DrawText(e.clip(l.Text, l.X), l.X, l.Y)
	}
	if err := e.disp.Flush(); err != nil {
		return fmt.Errorf("display flush: %w", err)
	}
	return nil
}

// clip cuts text down to the glyphs whose origin still lies inside the
// usable width. The last kept glyph may extend past the right edge; its
// pixels are the display's problem, same as on the stock panel.
func (e *Engine) clip(text string, x int) string {
	max := (e.width - x + e.layout.GlyphAdvance - 1) / e.layout.GlyphAdvance
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}

func (e *Engine) emit(ev Event) {
	ev.Time = time.Now()
	e.sink(ev)
}
