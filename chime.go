// +build cgo

package main

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"holzapfel.net/gorelay/config"
	"holzapfel.net/gorelay/relay"
)

// Tone frequencies per event: receiving chirps high, sending sits a third
// below, failures growl.
const (
	chimeReceiveHz = 880.0
	chimeSendHz    = 660.0
	chimeErrorHz   = 220.0
	chimeDuration  = 120 * time.Millisecond
)

// chime plays short notification tones for relay activity. It owns the
// PortAudio lifecycle of the process.
type chime struct {
	sampleRate float64
	volume     float64
	requests   chan float64
	stopchan   chan struct{}
	wg         sync.WaitGroup
}

func newChime(cfg config.ChimeConfig) *chime {
	c := &chime{
		sampleRate: cfg.SampleRate,
		volume:     cfg.Volume,
		requests:   make(chan float64, 4),
		stopchan:   make(chan struct{}),
	}
	c.wg.Add(1)
	go c.runner()
	return c
}

// HandleEvent picks the tone for the event. It never blocks: when the
// player has a backlog the beep is dropped, late beeps are worse than no
// beeps.
func (c *chime) HandleEvent(ev relay.Event) {
	var freq float64
	switch ev.Kind {
	case relay.EventReceived:
		freq = chimeReceiveHz
	case relay.EventSent:
		freq = chimeSendHz
	case relay.EventSendFailed, relay.EventReceiveFailed:
		freq = chimeErrorHz
	default:
		return
	}
	select {
	case c.requests <- freq:
	default:
	}
}

func (c *chime) Close() {
	close(c.stopchan)
	c.wg.Wait()
}

func (c *chime) runner() {
	defer c.wg.Done()

	if err := portaudio.Initialize(); err != nil {
		slog.Error("Chime: failed to initialize portaudio", "error", err)
		return
	}
	slog.Info("Chime: PortAudio initialized.")
	defer func() {
		if err := portaudio.Terminate(); err != nil {
			slog.Error("Chime: failed to terminate portaudio", "error", err)
		}
	}()

	for {
		select {
		case <-c.stopchan:
			return
		case freq := <-c.requests:
			if err := c.play(freq); err != nil {
				slog.Error("Chime: playback failed", "error", err)
			}
		}
	}
}

// play synthesizes one fading sine beep and writes it to the default
// output device in a single blocking call.
func (c *chime) play(freq float64) error {
	frames := int(c.sampleRate * chimeDuration.Seconds())
	buffer := make([]float32, frames)
	for i := range buffer {
		// The linear fade out keeps the beep from clicking.
		envelope := 1 - float64(i)/float64(frames)
		buffer[i] = float32(c.volume * envelope * math.Sin(2*math.Pi*freq*float64(i)/c.sampleRate))
	}

	stream, err := portaudio.OpenDefaultStream(0, 1, c.sampleRate, len(buffer), &buffer)
	if err != nil {
		return err
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return err
	}
	defer stream.Stop()

	return stream.Write()
}
