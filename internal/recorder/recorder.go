// Package recorder composes window lookup, frame capture, audio capture and
// encoding into one recording session with a start/stop/status contract.
package recorder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/reelcap/recorder/internal/audio"
	"github.com/reelcap/recorder/internal/capture"
	"github.com/reelcap/recorder/internal/config"
	"github.com/reelcap/recorder/internal/encoder"
	"github.com/reelcap/recorder/internal/logging"
	"github.com/reelcap/recorder/internal/window"
)

// State is the orchestrator's lifecycle position.
type State int

const (
	StateIdle State = iota
	StateWaitingForWindow
	StateCapturing
)

var (
	// ErrAlreadyRunning is raised by StartCapture during an active session.
	ErrAlreadyRunning = errors.New("capture already running")

	// ErrWindowNotFound is raised by a non-waiting StartCapture when the
	// target window is absent.
	ErrWindowNotFound = errors.New("target window not found")
)

// Sessions refuse to start with less free space than this on the output
// volume; a recording that fills the disk mid-session is worse than none.
const minFreeDiskBytes = 500 * 1024 * 1024

// statsInterval is how often ingestion counters are logged mid-session.
const statsInterval = 30 * time.Second

// watchInterval drives the implicit-stop check: capture stops itself when the
// window disappears, and the orchestrator has to notice.
const watchInterval = time.Second

// sink is the encoder-facing contract the orchestrator writes into.
// *encoder.Encoder satisfies it; tests substitute a recording fake.
type sink interface {
	Start(width, height int) error
	WriteFrame(pix []byte, ts time.Duration)
	WriteAudio(samples []int16, ts time.Duration)
	Stop() (string, error)
	Snapshot() encoder.Stats
}

// Orchestrator runs at most one recording session at a time.
type Orchestrator struct {
	cfg     *config.Config
	locator window.Locator

	// Component factories, overridable in tests.
	newFrameSource func(capture.Config) capture.Source
	newAudioSource func(micEnabled bool, micGain float64) audio.Source
	newSink        func(cfg *config.Config, dest string) sink

	mu           sync.Mutex
	state        State
	sess         *session
	frames       capture.Source
	sound        audio.Source
	enc          sink
	stopTimer    *scheduledStop
	searchCancel chan struct{}
	lastOutput   string
}

// New builds an orchestrator wired to the real component implementations.
func New(cfg *config.Config) *Orchestrator {
	return &Orchestrator{
		cfg:            cfg,
		locator:        window.NewLocator(),
		newFrameSource: capture.NewSource,
		newAudioSource: func(mic bool, gain float64) audio.Source {
			return audio.NewCapturer(mic, gain)
		},
		newSink: func(cfg *config.Config, dest string) sink {
			return encoder.New(cfg, dest)
		},
	}
}

// IsAvailable reports whether a session could start right now: encoder
// binary present, output folder writable, enough free disk.
func (o *Orchestrator) IsAvailable() bool {
	log := logging.L("recorder")
	if _, err := encoder.Discover(o.cfg.EncoderPath); err != nil {
		log.Warn("recording unavailable: no encoder binary")
		return false
	}
	if err := os.MkdirAll(o.cfg.OutputFolder, 0o755); err != nil {
		log.Warn("recording unavailable: output folder",
			logging.KeyError, err)
		return false
	}
	if usage, err := disk.Usage(o.cfg.OutputFolder); err == nil {
		if usage.Free < minFreeDiskBytes {
			log.Warn("recording unavailable: low disk space",
				"freeBytes", usage.Free)
			return false
		}
	}
	return true
}

// StartCapture begins a session. Metadata feeds the output filename only.
// With waitForWindow, a missing target window puts the orchestrator into a
// polling state until the window appears or StopCapture cancels the wait;
// without it, a missing window is an error.
func (o *Orchestrator) StartCapture(metadata map[string]string, waitForWindow bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateIdle {
		return ErrAlreadyRunning
	}

	win, err := o.locator.Find(o.cfg.WindowTitlePattern)
	if err != nil {
		return fmt.Errorf("window lookup: %w", err)
	}
	if win != nil {
		return o.startSessionLocked(win, metadata)
	}
	if !waitForWindow {
		return ErrWindowNotFound
	}

	o.state = StateWaitingForWindow
	o.searchCancel = make(chan struct{})
	go o.pollForWindow(o.searchCancel, metadata)
	logging.L("recorder").Info("waiting for window",
		"pattern", o.cfg.WindowTitlePattern,
		"retryInterval", o.cfg.WindowRetryIntervalSeconds)
	return nil
}

func (o *Orchestrator) pollForWindow(cancel <-chan struct{}, metadata map[string]string) {
	interval := time.Duration(o.cfg.WindowRetryIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log := logging.L("recorder")
	for {
		select {
		case <-cancel:
			return
		case <-ticker.C:
		}

		win, err := o.locator.Find(o.cfg.WindowTitlePattern)
		if err != nil || win == nil {
			continue
		}

		o.mu.Lock()
		if o.state != StateWaitingForWindow {
			o.mu.Unlock()
			return
		}
		if err := o.startSessionLocked(win, metadata); err != nil {
			o.state = StateIdle
			log.Error("session start failed after window appeared",
				logging.KeyError, err)
		}
		o.mu.Unlock()
		return
	}
}

// startSessionLocked transitions to Capturing. Caller holds o.mu. Any
// failure unwinds whatever was already started before returning.
func (o *Orchestrator) startSessionLocked(win *window.Info, metadata map[string]string) error {
	log := logging.L("recorder")

	if err := os.MkdirAll(o.cfg.OutputFolder, 0o755); err != nil {
		return fmt.Errorf("output folder: %w", err)
	}
	dest := filepath.Join(o.cfg.OutputFolder, buildFilename(metadata, time.Now()))

	capCfg := capture.Config{TargetFPS: o.cfg.TargetFPS, Scale: o.cfg.CaptureScale}
	outW, outH := capCfg.OutputDims(win.Width, win.Height)

	enc := o.newSink(o.cfg, dest)
	if err := enc.Start(outW, outH); err != nil {
		return fmt.Errorf("encoder: %w", err)
	}

	frames := o.newFrameSource(capCfg)
	err := frames.Start(*win, func(f capture.Frame) {
		enc.WriteFrame(f.Pix, f.Timestamp)
	})
	if err != nil {
		enc.Stop()
		return fmt.Errorf("frame capture: %w", err)
	}

	var sound audio.Source
	if o.cfg.CaptureAudio || o.cfg.CaptureMicrophone {
		sound = o.newAudioSource(o.cfg.CaptureMicrophone, o.cfg.MicVolume)
		result, err := sound.Start(func(c audio.Chunk) {
			enc.WriteAudio(c.Samples, c.Timestamp)
		})
		switch {
		case err != nil:
			// Degraded session, not a failed one.
			log.Warn("audio capture unavailable, continuing video-only",
				logging.KeyError, err)
			sound = nil
		case result.Silent():
			log.Warn("no audio stream opened, continuing video-only",
				"loopbackErr", result.LoopbackErr, "micErr", result.MicErr)
		default:
			log.Info("audio capture started",
				"loopback", result.Loopback, "microphone", result.Microphone)
		}
	}

	sess := &session{
		startedAt: time.Now(),
		dest:      dest,
		done:      make(chan struct{}),
	}
	maxDur := time.Duration(o.cfg.MaxDurationMinutes) * time.Minute
	o.stopTimer = newScheduledStop(maxDur, func() {
		logging.L("recorder").Info("maximum duration reached, stopping capture")
		o.StopCapture()
	})

	o.sess = sess
	o.frames = frames
	o.sound = sound
	o.enc = enc
	o.searchCancel = nil
	o.state = StateCapturing

	go o.watchSession(sess, frames, enc)

	log.Info("capture started",
		"window", win.Title,
		"width", outW, "height", outH,
		"output", dest,
		"maxDuration", maxDur)
	return nil
}

// watchSession logs ingestion stats periodically and converts a
// self-stopped frame source (window closed) into a full stop.
func (o *Orchestrator) watchSession(sess *session, frames capture.Source, enc sink) {
	stats := time.NewTicker(statsInterval)
	defer stats.Stop()
	watch := time.NewTicker(watchInterval)
	defer watch.Stop()

	log := logging.L("recorder").With(logging.KeySession, filepath.Base(sess.dest))
	for {
		select {
		case <-sess.done:
			return
		case <-stats.C:
			s := enc.Snapshot()
			log.Info("session stats",
				"frames", s.FramesWritten,
				"framesDropped", s.FramesDropped,
				"audioChunks", s.AudioChunksWritten,
				"audioDropped", s.AudioChunksDropped,
				logging.KeyDurationMs, time.Since(sess.startedAt).Milliseconds())
		case <-watch.C:
			if !frames.IsRunning() {
				log.Info("frame source stopped on its own, ending session")
				o.StopCapture()
				return
			}
		}
	}
}

// StopCapture ends the active session and returns the finalized output path.
// While waiting for a window it cancels the wait; with nothing active it is
// a no-op. Both of those return "".
func (o *Orchestrator) StopCapture() (string, error) {
	o.mu.Lock()
	if o.stopTimer != nil {
		o.stopTimer.Cancel()
		o.stopTimer = nil
	}

	switch o.state {
	case StateIdle:
		o.mu.Unlock()
		return "", nil
	case StateWaitingForWindow:
		close(o.searchCancel)
		o.searchCancel = nil
		o.state = StateIdle
		o.mu.Unlock()
		logging.L("recorder").Info("window wait cancelled")
		return "", nil
	}

	// Capturing: flip state first so callbacks and re-entrant stops see
	// Idle, then tear down outside the lock. Stop order matters: producers
	// before the sink they feed.
	sess, frames, sound, enc := o.sess, o.frames, o.sound, o.enc
	o.sess, o.frames, o.sound, o.enc = nil, nil, nil, nil
	o.state = StateIdle
	o.mu.Unlock()

	close(sess.done)
	frames.Stop()
	if sound != nil {
		sound.Stop()
	}
	path, err := enc.Stop()

	o.mu.Lock()
	o.lastOutput = path
	o.mu.Unlock()

	logging.L("recorder").Info("capture stopped",
		"output", path,
		logging.KeyDurationMs, time.Since(sess.startedAt).Milliseconds())
	return path, err
}

// IsRunning reports an active capturing session (not a window wait).
func (o *Orchestrator) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state == StateCapturing
}

// IsWaitingForWindow reports an armed but not yet started session.
func (o *Orchestrator) IsWaitingForWindow() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state == StateWaitingForWindow
}

// GetDuration returns the elapsed time of the active session, zero when idle.
func (o *Orchestrator) GetDuration() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateCapturing || o.sess == nil {
		return 0
	}
	return time.Since(o.sess.startedAt)
}

// GetOutputPath returns the destination of the active session, or the last
// finalized output when idle.
func (o *Orchestrator) GetOutputPath() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sess != nil {
		return o.sess.dest
	}
	return o.lastOutput
}

// Stats returns the active session's ingestion counters.
func (o *Orchestrator) Stats() encoder.Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.enc == nil {
		return encoder.Stats{}
	}
	return o.enc.Snapshot()
}
