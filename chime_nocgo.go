// +build !cgo

package main

import (
	"log/slog"

	"holzapfel.net/gorelay/config"
	"holzapfel.net/gorelay/relay"
)

// chime is a stub implementation for environments where CGO is disabled.
type chime struct{}

func newChime(cfg config.ChimeConfig) *chime {
	slog.Warn("Chime: audio support is disabled in this build (requires CGO).")
	return &chime{}
}

func (c *chime) HandleEvent(ev relay.Event) {}

func (c *chime) Close() {}
