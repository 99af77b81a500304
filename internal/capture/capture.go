// Package capture produces raw BGRA video frames from the target window.
//
// The Windows implementation uses DXGI Desktop Duplication via raw COM vtable
// calls (no CGO) and crops each desktop frame to the tracked window's client
// area. When duplication is unavailable the source falls back to a
// screenshot-based capturer that works everywhere but costs more CPU.
package capture

import (
	"errors"
	"time"

	"github.com/reelcap/recorder/internal/window"
)

// Frame is a single captured frame. Pix holds Width*Height*4 bytes of BGRA
// pixel data. Timestamp is the elapsed time since the source started; it is
// monotonically increasing across frames from one session.
type Frame struct {
	Pix       []byte
	Width     int
	Height    int
	Timestamp time.Duration
}

// Config controls frame production.
type Config struct {
	// TargetFPS is the delivery rate ceiling. Frames arriving faster than
	// this are discarded at the producer before any pixel work happens.
	TargetFPS int

	// Scale downsizes captured frames, 0.25 to 1.0. Applied before delivery
	// so the encoder only ever sees the scaled dimensions.
	Scale float64
}

// Source delivers frames for one window until stopped or until the window
// goes away. onFrame is invoked from the capture goroutine; it must not
// block, or frames back up behind it.
type Source interface {
	Start(target window.Info, onFrame func(Frame)) error
	Stop()
	IsRunning() bool
}

// ErrAlreadyStarted is returned by Start on a running source.
var ErrAlreadyStarted = errors.New("capture source already started")

// NewSource returns the platform frame source.
func NewSource(cfg Config) Source {
	return newPlatformSource(cfg)
}

// OutputDims returns the frame dimensions a source will deliver for a window
// of the given client size under cfg.Scale.
func (c Config) OutputDims(w, h int) (int, int) {
	return scaledDims(w, h, c.Scale)
}
