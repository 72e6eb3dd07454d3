package platform

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"holzapfel.net/gorelay/config"
	"holzapfel.net/gorelay/logging"
	"holzapfel.net/gorelay/relay"
	"holzapfel.net/gorelay/util"
)

// simRowHeight is the row pitch of the pixel layout, used to map pixel
// positions onto character cells of the simulated panel.
const simRowHeight = 11

// buttonHold is how long a key stroke keeps a simulated button pressed.
// Long enough that the polling loop is guaranteed to sample it, short
// enough to read as a single push.
const buttonHold = 250 * time.Millisecond

// rssiStep is the change applied per +/- key stroke.
const rssiStep = 5

// simPayloads cycle through the traffic shapes worth demonstrating. The
// third one is deliberately not valid UTF-8.
var simPayloads = [][]byte{
	[]byte("Hello from the field station\r\n"),
	[]byte("Button B!\r\n"),
	{0xff, 0xfe, 0x01, 0x41},
	[]byte("Telemetry 17.2C 983hPa\r\n"),
}

// TUIPlatform simulates the relay hardware in the terminal: the OLED
// panel becomes a text pane, the buttons become key strokes and the radio
// becomes an injectable in-memory queue.
type TUIPlatform struct {
	*AbstractPlatform
	tviewapp      *tview.Application
	intro         *tview.TextView
	oledView      *tview.TextView
	linkView      *tview.TextView
	logView       *tview.TextView
	ossignalChan  chan os.Signal
	sim           *SimTransceiver
	simdisp       *simDisplay
	simbtns       *simButtons
	linkmon       *LinkMonitor
	chartobutton  map[string]relay.ButtonID
	payloadIdx    int
	frameWg       sync.WaitGroup
	frameStopChan chan bool
	logFlushOnce  sync.Once
	readyOnce     sync.Once
	readyChan     chan bool
}

func NewTUIPlatform(conf *config.Config, ossignalchan chan os.Signal) *TUIPlatform {
	inst := &TUIPlatform{
		ossignalChan: ossignalchan,
		readyChan:    make(chan bool),
	}
	inst.AbstractPlatform = newAbstractPlatform(conf)
	return inst
}

func (s *TUIPlatform) Ready() <-chan bool {
	return s.readyChan
}

// signalReady unblocks everyone waiting on Ready. It must also fire when
// the TUI cannot come up at all, otherwise the application would wait for
// a first draw that never happens.
func (s *TUIPlatform) signalReady() {
	s.readyOnce.Do(func() { close(s.readyChan) })
}

func (s *TUIPlatform) Start() error {
	s.sim = NewSimTransceiver()
	s.simdisp = newSimDisplay(s.config.Hardware.Display.Width, s.config.Hardware.Display.Height)
	s.simbtns = &simButtons{}
	s.linkmon = NewLinkMonitor()
	s.trx = s.sim
	s.disp = s.simdisp
	s.btns = s.simbtns
	s.frameStopChan = make(chan bool)

	s.initSimulationTUI(s.ossignalChan)

	s.frameWg.Add(1)
	go s.frameDriver()

	return nil
}

func (s *TUIPlatform) Stop() {
	// Stop the frame driver and wait for it before tearing down the TUI
	// it draws on.
	close(s.frameStopChan)
	s.frameWg.Wait()

	if s.tviewapp != nil {
		s.tviewapp.Stop()
	}
}

// HandleEvent feeds the link pane. It runs on the control loop goroutine,
// so the redraw is queued onto the TUI thread.
func (s *TUIPlatform) HandleEvent(ev relay.Event) {
	s.linkmon.Record(ev)
	s.tviewapp.QueueUpdateDraw(s.updateLinkPane)
}

// frameDriver forwards flushed display frames to the OLED pane. Only the
// newest frame matters, intermediate ones are dropped by the mailbox.
func (s *TUIPlatform) frameDriver() {
	defer s.frameWg.Done()
	for {
		select {
		case <-s.frameStopChan:
			return
		case <-s.simdisp.frames.Channel():
			frame := s.simdisp.frames.Value()
			s.tviewapp.QueueUpdateDraw(func() {
				s.oledView.SetText(s.renderPanel(frame))
			})
		}
	}
}

// getIntroText generates the dynamic text for the top info pane.
func (s *TUIPlatform) getIntroText() string {
	keys := maps.Keys(s.chartobutton)
	slices.Sort(keys)
	for i, key := range keys {
		keys[i] = fmt.Sprintf("[blue]%s[-]", key)
	}

	line1 := fmt.Sprintf("Station [#ffff00]%s[white] | Simulated RSSI: [#ffff00]%d dBm[white] | Hit [#ff0000]+[white]/[#ff0000]-[white] to change",
		s.config.Identity, s.sim.RSSI())
	line2 := fmt.Sprintf("Hit %s to press a button, [blue]p[-] to inject a packet, [blue]f[-] to fail/heal the link",
		strings.Join(keys, "/"))
	line3 := "Hit [#ff0000]q[-] to exit, [#ff0000]r[-] to reload, [#ff0000]Up/Down[-] to scroll logs"

	return fmt.Sprintf("%s\n%s\n%s", line1, line2, line3)
}

func (s *TUIPlatform) initSimulationTUI(ossignal chan os.Signal) {
	s.tviewapp = tview.NewApplication()

	// --- Button Mapping ---
	// Built before the intro pane, which lists the mapped keys.
	s.chartobutton = map[string]relay.ButtonID{
		"a": relay.ButtonA,
		"b": relay.ButtonB,
		"c": relay.ButtonC,
	}

	// --- Intro Pane ---
	s.intro = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	s.intro.SetText(s.getIntroText())
	s.intro.SetBorder(true).SetTitle(" GORELAY Simulation ").SetTitleColor(tcell.ColorLightBlue)
	s.intro.SetBackgroundColor(tcell.NewRGBColor(20, 20, 20))

	// --- OLED Pane ---
	// Dynamic colors stay off here: packet text is foreign input and must
	// never be interpreted as color tags.
	s.oledView = tview.NewTextView().
		SetTextAlign(tview.AlignLeft)
	s.oledView.SetBorder(true).
		SetTitle(fmt.Sprintf(" %dx%d OLED ", s.simdisp.width, s.simdisp.height)).
		SetTitleColor(tcell.ColorLightBlue)
	s.oledView.SetBackgroundColor(tcell.NewRGBColor(30, 30, 30))

	// --- Link Pane ---
	s.linkView = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	s.linkView.SetBorder(true).SetTitle(" Radio Link ").SetTitleColor(tcell.ColorLightBlue)
	s.linkView.SetBackgroundColor(tcell.NewRGBColor(30, 30, 30))
	s.updateLinkPane()

	// --- Log Pane ---
	s.logView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetChangedFunc(func() {
			s.logView.ScrollToEnd()
			s.tviewapp.Draw()
		})
	s.logView.SetBorder(true).SetTitle(" Logs ").SetTitleColor(tcell.ColorLightBlue)
	s.logView.SetBackgroundColor(tcell.NewRGBColor(40, 40, 40))

	// --- Layout ---
	panelHeight := (s.simdisp.height+simRowHeight-1)/simRowHeight + 2 // rows plus border

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(s.intro, 5, 0, false).
		AddItem(s.oledView, panelHeight, 0, false).
		AddItem(s.linkView, 4, 0, false).
		AddItem(s.logView, 0, 1, true) // Flexible height, gets focus

	// --- Flush logs after first draw ---
	s.tviewapp.SetAfterDrawFunc(func(screen tcell.Screen) {
		s.logFlushOnce.Do(func() {
			logWriter := tview.ANSIWriter(s.logView)
			logging.SetOutput(logWriter)
			s.signalReady() // Signal that the TUI is ready
		})
	})

	// --- Input Handling ---
	s.tviewapp.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyCtrlC:
			s.tviewapp.Stop()
			ossignal <- os.Interrupt
			return nil
		case tcell.KeyRune:
			key := string(event.Rune())
			if id, exist := s.chartobutton[strings.ToLower(key)]; exist {
				s.simbtns.press(id)
				return nil
			}
			switch key {
			case "p", "P":
				s.injectNextPacket()
				return nil
			case "f", "F":
				s.sim.ToggleLink()
				s.intro.SetText(s.getIntroText())
				s.updateLinkPane()
				return nil
			case "+":
				s.sim.AdjustRSSI(rssiStep)
				s.intro.SetText(s.getIntroText())
				s.updateLinkPane()
				return nil
			case "-":
				s.sim.AdjustRSSI(-rssiStep)
				s.intro.SetText(s.getIntroText())
				s.updateLinkPane()
				return nil
			case "q", "Q":
				ossignal <- os.Interrupt
				return nil
			case "r", "R":
				ossignal <- syscall.SIGHUP
				return nil
			}
		case tcell.KeyUp:
			row, col := s.logView.GetScrollOffset()
			s.logView.ScrollTo(row-1, col)
			return nil
		case tcell.KeyDown:
			row, col := s.logView.GetScrollOffset()
			s.logView.ScrollTo(row+1, col)
			return nil
		}
		return event
	})

	// --- Start TUI ---
	go func() {
		if err := s.tviewapp.SetRoot(layout, true).Run(); err != nil {
			slog.Error("Error running TUI", "error", err)
			s.signalReady()
			s.ossignalChan <- os.Interrupt
		}
	}()
}

func (s *TUIPlatform) injectNextPacket() {
	payload := simPayloads[s.payloadIdx%len(simPayloads)]
	s.payloadIdx++
	s.sim.Inject(payload)
}

// updateLinkPane redraws the link pane. Outside of initialisation it must
// run on the TUI thread via QueueUpdateDraw.
func (s *TUIPlatform) updateLinkPane() {
	s.linkView.SetText(s.linkmon.Text(s.sim.LinkUp(), s.sim.RSSI()))
}

// renderPanel maps a pixel frame onto a character grid, one text row per
// display row and one column per glyph advance. An approximation of the
// real panel, but positions and clipping stay recognisable.
func (s *TUIPlatform) renderPanel(frame relay.Frame) string {
	advance := s.config.Relay.Layout.GlyphAdvance
	rows := (s.simdisp.height + simRowHeight - 1) / simRowHeight
	cols := s.simdisp.width / advance

	grid := make([][]rune, rows)
	for i := range grid {
		grid[i] = []rune(strings.Repeat(" ", cols))
	}
	for _, ln := range frame.Lines {
		row := ln.Y / simRowHeight
		// A run straddling a cell boundary lands in the next cell so
		// neighbouring runs cannot collide.
		col := (ln.X + advance - 1) / advance
		if row < 0 || row >= rows || col < 0 || col >= cols {
			continue
		}
		for i, r := range []rune(ln.Text) {
			if col+i >= cols {
				break
			}
			grid[row][col+i] = r
		}
	}

	var buf strings.Builder
	for i, rowRunes := range grid {
		if i > 0 {
			buf.WriteString("\n")
		}
		buf.WriteString(string(rowRunes))
	}
	return buf.String()
}

// simDisplay implements the display port for the TUI. Draw calls
// accumulate and the finished frame is published on Flush. The TUI
// redraws at its own pace; dropped intermediate frames do not matter
// because every frame is complete in itself.
type simDisplay struct {
	mu     sync.Mutex
	width  int
	height int
	lines  []relay.Line
	frames *util.Latest[relay.Frame]
}

func newSimDisplay(width, height int) *simDisplay {
	return &simDisplay{
		width:  width,
		height: height,
		frames: util.NewLatest[relay.Frame](),
	}
}

func (d *simDisplay) Clear() {
	d.mu.Lock()
	d.lines = nil
	d.mu.Unlock()
}

func (d *simDisplay) DrawText(text string, x, y int) {
	d.mu.Lock()
	d.lines = append(d.lines, relay.Line{Text: text, X: x, Y: y})
	d.mu.Unlock()
}

func (d *simDisplay) Flush() error {
	d.mu.Lock()
	frame := relay.Frame{Lines: make([]relay.Line, len(d.lines))}
	copy(frame.Lines, d.lines)
	d.mu.Unlock()
	d.frames.Send(frame)
	return nil
}

// simButtons turns momentary key strokes into button levels the polling
// loop can sample. A key stroke holds the button down for buttonHold so
// the next poll is guaranteed to see it.
type simButtons struct {
	mu        sync.Mutex
	downUntil [3]time.Time
}

func (b *simButtons) press(id relay.ButtonID) {
	b.mu.Lock()
	b.downUntil[id] = time.Now().Add(buttonHold)
	b.mu.Unlock()
}

func (b *simButtons) Pressed(id relay.ButtonID) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return time.Now().Before(b.downUntil[id]), nil
}
