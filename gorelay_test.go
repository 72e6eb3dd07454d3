package main

import (
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"holzapfel.net/gorelay/config"
	pl "holzapfel.net/gorelay/platform"
	"holzapfel.net/gorelay/relay"
)

type MockPlatform struct {
	pl.Platform
	trx  *pl.SimTransceiver
	disp *mockDisplay
	btns *mockButtons

	mu      sync.Mutex
	events  []relay.Event
	stopped bool
}

func NewMockPlatform() *MockPlatform {
	return &MockPlatform{
		trx:  pl.NewSimTransceiver(),
		disp: &mockDisplay{},
		btns: &mockButtons{},
	}
}

func (m *MockPlatform) Start() error { return nil }

func (m *MockPlatform) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
}

func (m *MockPlatform) Ready() <-chan bool {
	readyChan := make(chan bool)
	close(readyChan)
	return readyChan
}

func (m *MockPlatform) Transceiver() relay.Transceiver { return m.trx }
func (m *MockPlatform) Display() relay.Display         { return m.disp }
func (m *MockPlatform) Buttons() relay.Buttons         { return m.btns }

func (m *MockPlatform) HandleEvent(ev relay.Event) {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
}

func (m *MockPlatform) Stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

func (m *MockPlatform) Events() []relay.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]relay.Event, len(m.events))
	copy(out, m.events)
	return out
}

type mockDisplay struct {
	mu       sync.Mutex
	flushes  int
	flushErr error
}

func (d *mockDisplay) Clear()                         {}
func (d *mockDisplay) DrawText(text string, x, y int) {}

func (d *mockDisplay) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.flushes++
	return d.flushErr
}

func (d *mockDisplay) flushCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.flushes
}

type mockButtons struct{}

func (b *mockButtons) Pressed(id relay.ButtonID) (bool, error) { return false, nil }

// newTestApp wires an App to a mock platform the way initialise does,
// skipping config files, logging setup and the file watcher.
func newTestApp(t *testing.T, mock *MockPlatform) *App {
	t.Helper()

	app := NewApp(make(chan os.Signal, 1))
	app.conf = config.Default()
	app.conf.Identity = "teststation"
	app.platform = mock

	eng, err := relay.New(relay.Config{
		Identity: app.conf.Identity,
		Width:    app.conf.Hardware.Display.Width,
		Height:   app.conf.Hardware.Display.Height,
		Tick:     10 * time.Millisecond,
	}, mock.Transceiver(), mock.Display(), mock.Buttons(), app.eventSink())
	if err != nil {
		t.Fatalf("Expected engine construction to succeed, got %v", err)
	}
	app.engine = eng
	app.startEngine()
	return app
}

func TestRunStopsOnInterrupt(t *testing.T) {
	mock := NewMockPlatform()
	app := newTestApp(t, mock)

	mock.trx.Inject([]byte("Ping\r\n"))
	time.Sleep(50 * time.Millisecond)

	app.ossignal <- os.Interrupt
	if code := app.Run(); code != 0 {
		t.Errorf("Expected exit code 0, got %d", code)
	}
	if !mock.Stopped() {
		t.Error("Expected the platform to be stopped")
	}
	if mock.disp.flushCount() == 0 {
		t.Error("Expected at least one flushed frame before shutdown")
	}

	received := false
	for _, ev := range mock.Events() {
		if ev.Kind == relay.EventReceived && ev.Text == "Ping" {
			received = true
		}
	}
	if !received {
		t.Error("Expected the injected packet to surface as a received event")
	}
}

func TestRunExitsNonzeroOnDisplayFailure(t *testing.T) {
	mock := NewMockPlatform()
	mock.disp.flushErr = errors.New("panel gone")
	app := newTestApp(t, mock)

	if code := app.Run(); code != 1 {
		t.Errorf("Expected exit code 1 after a display failure, got %d", code)
	}
	if !mock.Stopped() {
		t.Error("Expected the platform to be stopped after the failure")
	}
}

func TestEventSinkFansOut(t *testing.T) {
	mock := NewMockPlatform()
	app := NewApp(make(chan os.Signal, 1))
	app.platform = mock

	sink := app.eventSink()
	sink(relay.Event{Kind: relay.EventSent, Button: relay.ButtonB})

	events := mock.Events()
	if len(events) != 1 {
		t.Fatalf("Expected exactly one event at the platform, got %d", len(events))
	}
	if events[0].Kind != relay.EventSent || events[0].Button != relay.ButtonB {
		t.Errorf("Expected the sent event to arrive unchanged, got %+v", events[0])
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	mock := NewMockPlatform()
	app := newTestApp(t, mock)

	app.shutdown()
	app.shutdown()

	if !mock.Stopped() {
		t.Error("Expected the platform to be stopped")
	}
}

func TestLayoutFromConfig(t *testing.T) {
	lc := config.LayoutConfig{
		GlyphAdvance: 6,
		Identity:     config.Point{X: 1, Y: 2},
		Waiting:      config.Point{X: 3, Y: 4},
		RXLabel:      config.Point{X: 5, Y: 6},
		RXText:       config.Point{X: 7, Y: 8},
		Sent:         config.Point{X: 9, Y: 10},
	}

	got := layoutFromConfig(lc)
	want := relay.Layout{
		GlyphAdvance: 6,
		Identity:     relay.Point{X: 1, Y: 2},
		Waiting:      relay.Point{X: 3, Y: 4},
		RXLabel:      relay.Point{X: 5, Y: 6},
		RXText:       relay.Point{X: 7, Y: 8},
		Sent:         relay.Point{X: 9, Y: 10},
	}
	if got != want {
		t.Errorf("Expected %+v, got %+v", want, got)
	}
}
