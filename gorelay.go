package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"holzapfel.net/gorelay/config"
	"holzapfel.net/gorelay/logging"
	"holzapfel.net/gorelay/platform"
	"holzapfel.net/gorelay/relay"
)

// App ties the pieces of the relay station together: configuration,
// logging, the platform backend and the control loop, plus the comfort
// features around them. It can be torn down and rebuilt in place, which
// is how config reloads work.
type App struct {
	ossignal chan os.Signal
	cfile    string
	realHW   bool
	devMode  bool

	conf     *config.Config
	platform platform.Platform
	engine   *relay.Engine
	chime    *chime
	dimmer   *nightDimmer

	engineCancel context.CancelFunc
	engineDone   chan error
	watchCancel  context.CancelFunc
	reloadChan   <-chan struct{}
}

func NewApp(ossignal chan os.Signal) *App {
	return &App{ossignal: ossignal}
}

// initialise brings the application up from the configuration: logging
// first, then the platform, then the control loop wired to the event
// fan-out, then the comfort features. It runs again after every reload.
func (a *App) initialise() error {
	conf, err := config.ReadConfig(a.cfile)
	if err != nil {
		return err
	}
	a.conf = conf

	profile := conf.Logging.HW
	if !a.realHW {
		profile = conf.Logging.TUI
	}
	if a.devMode {
		profile.Level = "DEBUG"
	}
	if err := logging.Init(!a.realHW, logging.Profile{
		Level:  profile.Level,
		Format: profile.Format,
		File:   profile.File,
	}); err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}

	slog.Info("Starting relay station", "identity", conf.Identity, "real_hardware", a.realHW)

	a.platform = platform.NewPlatform(conf, a.realHW, a.ossignal)
	if err := a.platform.Start(); err != nil {
		return fmt.Errorf("failed to start platform: %w", err)
	}

	if conf.Chime.Enabled {
		a.chime = newChime(conf.Chime)
	}

	eng, err := relay.New(relay.Config{
		Identity:        conf.Identity,
		Width:           conf.Hardware.Display.Width,
		Height:          conf.Hardware.Display.Height,
		Tick:            conf.Relay.TickInterval,
		RepeatWhileHeld: conf.Relay.RepeatWhileHeld,
		Layout:          layoutFromConfig(conf.Relay.Layout),
	}, a.platform.Transceiver(), a.platform.Display(), a.platform.Buttons(), a.eventSink())
	if err != nil {
		return err
	}
	a.engine = eng

	if conf.NightDim.Enabled {
		if dimmer, ok := a.platform.Display().(platform.Dimmer); ok {
			a.dimmer = newNightDimmer(conf.NightDim, dimmer)
		} else {
			slog.Info("Display cannot dim, night dimming stays off")
		}
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	a.watchCancel = cancel
	reload, err := config.Watch(watchCtx, a.cfile)
	if err != nil {
		slog.Warn("Config file watching unavailable", "error", err)
	}
	a.reloadChan = reload

	a.startEngine()
	return nil
}

// startEngine launches the control loop once the platform reports ready.
// The TUI needs its first draw before it can take frames or log output.
func (a *App) startEngine() {
	ctx, cancel := context.WithCancel(context.Background())
	a.engineCancel = cancel
	a.engineDone = make(chan error, 1)

	eng := a.engine
	pl := a.platform
	conf := a.conf
	done := a.engineDone
	go func() {
		<-pl.Ready()
		slog.Info("Relay loop running", "tick", conf.Relay.TickInterval)
		done <- eng.Run(ctx)
	}()
}

// eventSink fans every control loop event out to the structured log, the
// platform's own views and the chime.
func (a *App) eventSink() func(relay.Event) {
	return func(ev relay.Event) {
		logEvent(ev)
		a.platform.HandleEvent(ev)
		if a.chime != nil {
			a.chime.HandleEvent(ev)
		}
	}
}

func logEvent(ev relay.Event) {
	switch ev.Kind {
	case relay.EventReceived:
		slog.Info("Packet received", "text", ev.Text, "rssi", ev.RSSI, "bytes", len(ev.Payload))
	case relay.EventDecodeError:
		slog.Warn("Payload is not valid UTF-8", "bytes", len(ev.Payload))
	case relay.EventSent:
		slog.Info("Message sent", "button", ev.Button.String())
	case relay.EventSendFailed:
		slog.Error("Send failed", "button", ev.Button.String(), "error", ev.Err)
	case relay.EventReceiveFailed:
		slog.Error("Receive failed", "error", ev.Err)
	}
}

// Run drives the application until it exits: signals, control loop
// termination and config file changes all end up here. SIGHUP and a
// changed config file restart everything, SIGINT and SIGTERM shut down
// cleanly. The return value is the process exit code.
func (a *App) Run() int {
	for {
		select {
		case sig := <-a.ossignal:
			if sig == syscall.SIGHUP {
				slog.Info("Received signal to reload config and restart")
				if err := a.restart(); err != nil {
					slog.Error("Restart failed", "error", err)
					return 1
				}
				continue
			}
			slog.Info("Exiting...", "signal", sig)
			a.shutdown()
			return 0
		case <-a.reloadChan:
			slog.Info("Config file changed, restarting")
			if err := a.restart(); err != nil {
				slog.Error("Restart failed", "error", err)
				return 1
			}
		case err := <-a.engineDone:
			a.engineDone = nil
			a.shutdown()
			if err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("Relay loop failed", "error", err)
				return 1
			}
			return 0
		}
	}
}

func (a *App) restart() error {
	a.shutdown()
	if err := a.initialise(); err != nil {
		a.shutdown()
		return err
	}
	return nil
}

// shutdown tears the application down in reverse construction order. The
// control loop drains first so an in-flight frame is flushed completely
// before the display goes away.
func (a *App) shutdown() {
	if a.watchCancel != nil {
		a.watchCancel()
		a.watchCancel = nil
	}
	if a.engineCancel != nil {
		a.engineCancel()
		a.engineCancel = nil
	}
	if a.engineDone != nil {
		if err := <-a.engineDone; err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Relay loop failed", "error", err)
		}
		a.engineDone = nil
	}
	if a.dimmer != nil {
		a.dimmer.Close()
		a.dimmer = nil
	}
	if a.chime != nil {
		a.chime.Close()
		a.chime = nil
	}
	if a.platform != nil {
		a.platform.Stop()
		a.platform = nil
	}
	a.engine = nil
}

// layoutFromConfig turns the pixel positions of the configuration into
// the engine's layout.
func layoutFromConfig(lc config.LayoutConfig) relay.Layout {
	return relay.Layout{
		Identity:     relay.Point{X: lc.Identity.X, Y: lc.Identity.Y},
		Waiting:      relay.Point{X: lc.Waiting.X, Y: lc.Waiting.Y},
		RXLabel:      relay.Point{X: lc.RXLabel.X, Y: lc.RXLabel.Y},
		RXText:       relay.Point{X: lc.RXText.X, Y: lc.RXText.Y},
		Sent:         relay.Point{X: lc.Sent.X, Y: lc.Sent.Y},
		GlyphAdvance: lc.GlyphAdvance,
	}
}

func main() {
	cfile := flag.String("config", config.DefaultFile, "config file to use")
	realhw := flag.Bool("real", false, "drive the real hardware instead of the TUI simulation")
	dev := flag.Bool("dev", false, "TUI simulation with verbose logging")
	flag.Parse()

	ossignal := make(chan os.Signal, 1)
	app := NewApp(ossignal)
	app.cfile = *cfile
	app.realHW = *realhw && !*dev
	app.devMode = *dev

	if err := app.initialise(); err != nil {
		app.shutdown()
		logging.Close()
		fmt.Fprintln(os.Stderr, "Error initialising:", err)
		os.Exit(1)
	}

	signal.Notify(ossignal, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	code := app.Run()
	if err := logging.Close(); err != nil {
		fmt.Fprintln(os.Stderr, "Error closing log:", err)
	}
	os.Exit(code)
}
