// Package audio captures desktop loopback and microphone PCM and mixes the
// two streams into one.
package audio

import "time"

// Sample format produced by every Source: interleaved signed 16-bit PCM.
const (
	SampleRate = 48000
	Channels   = 2
)

// Chunk is one mixed buffer of PCM samples. Timestamp is relative to the
// session start.
type Chunk struct {
	Samples   []int16
	Timestamp time.Duration
}

// Device describes an audio endpoint.
type Device struct {
	Name      string
	Kind      DeviceKind
	IsDefault bool
}

type DeviceKind string

const (
	DeviceLoopback   DeviceKind = "loopback"
	DeviceMicrophone DeviceKind = "microphone"
)

// StartResult reports which streams actually opened. Opening zero streams is
// a soft degradation, not an error: capture continues producing no audio and
// the caller decides whether that is acceptable.
type StartResult struct {
	Loopback    bool
	Microphone  bool
	LoopbackErr error
	MicErr      error
}

// Silent reports whether no stream opened.
func (r StartResult) Silent() bool {
	return !r.Loopback && !r.Microphone
}

// Source is the audio capture capability consumed by the orchestrator.
type Source interface {
	// ListDevices enumerates playback (loopback) and capture endpoints.
	ListDevices() ([]Device, error)

	// Start opens the loopback stream and, if configured, the microphone,
	// and begins delivering mixed chunks to onAudio from a dedicated
	// goroutine. The error return is reserved for failures that prevent the
	// source from running at all; per-device failures are reported in the
	// StartResult.
	Start(onAudio func(Chunk)) (StartResult, error)

	// Stop tears down the streams. Idempotent.
	Stop()

	IsRunning() bool
}
