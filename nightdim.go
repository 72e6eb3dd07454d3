package main

import (
	"log/slog"
	"sync"
	"time"

	"github.com/nathan-osman/go-sunrise"

	"holzapfel.net/gorelay/config"
	"holzapfel.net/gorelay/platform"
)

// dayContrast is what the panel runs at outside the dimming window.
const dayContrast = 0xCF

// nightDimmer lowers the display contrast between sunset and sunrise so
// the relay does not light up the room it sits in. The control loop is
// oblivious to it; only the panel brightness changes.
type nightDimmer struct {
	latitude  float64
	longitude float64
	night     uint8
	dimmer    platform.Dimmer
	stopchan  chan struct{}
	wg        sync.WaitGroup
}

func newNightDimmer(cfg config.NightDimConfig, dimmer platform.Dimmer) *nightDimmer {
	inst := &nightDimmer{
		latitude:  cfg.Latitude,
		longitude: cfg.Longitude,
		night:     cfg.Contrast,
		dimmer:    dimmer,
		stopchan:  make(chan struct{}),
	}
	inst.wg.Add(1)
	go inst.runner()
	return inst
}

func (s *nightDimmer) setNight(on bool) {
	contrast := uint8(dayContrast)
	if on {
		contrast = s.night
	}
	if err := s.dimmer.SetContrast(contrast); err != nil {
		slog.Error("Failed to set display contrast", "error", err)
	}
}

func (s *nightDimmer) runner() {
	defer s.wg.Done()
	for {
		now := time.Now()
		next := now.Add(24 * time.Hour) // tomorrow
		rise, set := sunrise.SunriseSunset(s.latitude, s.longitude, now.Year(), now.Month(), now.Day())
		riseNext, _ := sunrise.SunriseSunset(s.latitude, s.longitude, next.Year(), next.Month(), next.Day())

		var wakeAt time.Time
		if now.After(rise) && now.Before(set) {
			// During the day - between sunrise and sunset
			s.setNight(false)
			wakeAt = set
		} else if now.Before(rise) {
			// In the night after midnight but before sunrise
			s.setNight(true)
			wakeAt = rise
		} else {
			// In the night before midnight - sleep until tomorrow's sunrise
			s.setNight(true)
			wakeAt = riseNext
		}

		select {
		case <-s.stopchan:
			return
		case <-time.After(time.Until(wakeAt)):
		}
	}
}

func (s *nightDimmer) Close() {
	close(s.stopchan)
	s.wg.Wait()
}
