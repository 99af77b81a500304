// Package encoder owns the ffmpeg subprocess that turns raw BGRA frames and
// PCM audio into an H.264/AAC MP4.
//
// The session runs in two passes. During capture a live ffmpeg process reads
// raw frames from a stdin pipe while audio accumulates in a sidecar WAV file;
// on stop a short mux pass copies the encoded video stream and compresses the
// sidecar into the destination file. Producers never block: both ingestion
// queues are bounded and saturated writes drop with a counter.
package encoder

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/reelcap/recorder/internal/audio"
	"github.com/reelcap/recorder/internal/config"
	"github.com/reelcap/recorder/internal/logging"
)

type state int

const (
	stateIdle state = iota
	stateStarting
	stateRunning
	stateStopping
	stateFinalized
)

const (
	videoQueueDepth = 8
	audioQueueDepth = 64

	writerJoinTimeout = 5 * time.Second
	procWaitTimeout   = 10 * time.Second
	muxTimeout        = 2 * time.Minute

	// Drop events are logged on the first occurrence and then every Nth.
	dropLogInterval = 100
)

// ErrNotIdle is returned by Start on an encoder that already ran.
var ErrNotIdle = errors.New("encoder is not idle")

// Stats is a point-in-time snapshot of the session's ingestion counters.
type Stats struct {
	FramesWritten      uint64
	FramesDropped      uint64
	AudioChunksWritten uint64
	AudioChunksDropped uint64
}

type frameItem struct {
	pix []byte
}

// Encoder drives one encoding session from Start to Stop. Not reusable;
// create a new Encoder per session.
type Encoder struct {
	cfg  *config.Config
	dest string
	run  runner

	mu    sync.Mutex
	state state

	targetW int // even-rounded output dimensions
	targetH int

	workDir   string
	videoPath string
	proc      process
	stdin     io.WriteCloser
	sidecar   *wavWriter

	videoQ  chan frameItem
	audioQ  chan []int16
	done    chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool

	framesWritten atomic.Uint64
	framesDropped atomic.Uint64
	chunksWritten atomic.Uint64
	chunksDropped atomic.Uint64
}

// New prepares an encoder targeting destPath. Nothing is launched until
// Start.
func New(cfg *config.Config, destPath string) *Encoder {
	return &Encoder{
		cfg:  cfg,
		dest: destPath,
		run:  &execRunner{},
	}
}

// Start locates the ffmpeg binary, launches the realtime encoding pass for
// width x height input frames and spins up the writer goroutines. Dimensions
// are recorded rounded up to even; the actual padding happens in the encoder's
// output filter so incoming frames keep their original stride.
func (e *Encoder) Start(width, height int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != stateIdle {
		return ErrNotIdle
	}
	e.state = stateStarting

	bin, err := discoverBinary(e.cfg.EncoderPath)
	if err != nil {
		e.state = stateIdle
		return err
	}

	workDir, err := os.MkdirTemp("", "reelcap-*")
	if err != nil {
		e.state = stateIdle
		return fmt.Errorf("create work dir: %w", err)
	}

	e.targetW = width + width&1
	e.targetH = height + height&1
	e.workDir = workDir
	e.videoPath = filepath.Join(workDir, "video.mp4")

	tier := e.cfg.Tier()
	args := realtimeArgs(width, height, e.cfg.TargetFPS, tier.CRF, e.videoPath)
	proc, err := e.run.Start(bin, args)
	if err != nil {
		os.RemoveAll(workDir)
		e.state = stateIdle
		return fmt.Errorf("start encoder: %w", err)
	}
	e.proc = proc
	e.stdin = proc.Stdin()

	if e.cfg.CaptureAudio || e.cfg.CaptureMicrophone {
		sidecar, err := newWavWriter(
			filepath.Join(workDir, "audio.wav"), audio.SampleRate, audio.Channels)
		if err != nil {
			// Soft failure: the session continues video-only.
			logging.L("encoder").Warn("sidecar audio file unavailable",
				logging.KeyError, err)
		} else {
			e.sidecar = sidecar
		}
	}

	e.videoQ = make(chan frameItem, videoQueueDepth)
	e.audioQ = make(chan []int16, audioQueueDepth)
	e.done = make(chan struct{})
	e.running.Store(true)
	e.wg.Add(2)
	go e.videoWriter()
	go e.audioWriter()

	e.state = stateRunning
	logging.L("encoder").Info("encoding session started",
		"binary", bin,
		"width", e.targetW, "height", e.targetH,
		"fps", e.cfg.TargetFPS,
		"crf", tier.CRF,
		"audio", e.sidecar != nil)
	return nil
}

// TargetDims returns the even-rounded output dimensions.
func (e *Encoder) TargetDims() (int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.targetW, e.targetH
}

// WriteFrame enqueues one raw BGRA frame. Never blocks: a full queue drops
// the frame and bumps the dropped counter.
func (e *Encoder) WriteFrame(pix []byte, _ time.Duration) {
	if !e.running.Load() {
		return
	}
	select {
	case e.videoQ <- frameItem{pix: pix}:
	default:
		n := e.framesDropped.Add(1)
		if n == 1 || n%dropLogInterval == 0 {
			logging.L("encoder").Warn("video queue saturated, dropping frames",
				"dropped", n)
		}
	}
}

// WriteAudio enqueues one mixed PCM chunk for the sidecar file.
func (e *Encoder) WriteAudio(samples []int16, _ time.Duration) {
	if !e.running.Load() || e.sidecar == nil {
		return
	}
	select {
	case e.audioQ <- samples:
	default:
		n := e.chunksDropped.Add(1)
		if n == 1 || n%dropLogInterval == 0 {
			logging.L("encoder").Warn("audio queue saturated, dropping chunks",
				"dropped", n)
		}
	}
}

// videoWriter drains the frame queue into the subprocess's stdin. On exit it
// closes the pipe, which is how ffmpeg learns the stream ended.
func (e *Encoder) videoWriter() {
	defer e.wg.Done()
	defer e.stdin.Close()

	log := logging.L("encoder")
	for {
		select {
		case item := <-e.videoQ:
			if _, err := e.stdin.Write(item.pix); err != nil {
				log.Warn("video pipe write failed, writer stopping",
					logging.KeyError, err)
				return
			}
			e.framesWritten.Add(1)
		case <-e.done:
			// Drain whatever is queued, then signal end-of-stream.
			for {
				select {
				case item := <-e.videoQ:
					if _, err := e.stdin.Write(item.pix); err != nil {
						return
					}
					e.framesWritten.Add(1)
				default:
					return
				}
			}
		}
	}
}

// audioWriter drains the chunk queue into the sidecar WAV.
func (e *Encoder) audioWriter() {
	defer e.wg.Done()
	if e.sidecar == nil {
		return
	}

	log := logging.L("encoder")
	for {
		select {
		case samples := <-e.audioQ:
			if err := e.sidecar.WriteSamples(samples); err != nil {
				log.Warn("sidecar write failed, writer stopping",
					logging.KeyError, err)
				return
			}
			e.chunksWritten.Add(1)
		case <-e.done:
			for {
				select {
				case samples := <-e.audioQ:
					if err := e.sidecar.WriteSamples(samples); err != nil {
						return
					}
					e.chunksWritten.Add(1)
				default:
					return
				}
			}
		}
	}
}

// Stop ends the session and finalizes the destination file. Returns the
// destination path, or "" when the realtime pass produced no usable video.
// Safe to call when not running.
func (e *Encoder) Stop() (string, error) {
	e.mu.Lock()
	if e.state != stateRunning {
		e.mu.Unlock()
		return "", nil
	}
	e.state = stateStopping
	e.running.Store(false)
	close(e.done)
	e.mu.Unlock()

	log := logging.L("encoder")

	// Writers flush their queues and close the video pipe. A hung pipe must
	// not hang Stop, so the join is bounded.
	joined := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(joined)
	}()
	select {
	case <-joined:
	case <-time.After(writerJoinTimeout):
		log.Warn("writer goroutines did not finish in time")
	}

	if e.sidecar != nil {
		if err := e.sidecar.Close(); err != nil {
			log.Warn("sidecar close failed", logging.KeyError, err)
		}
	}

	if err := e.proc.Wait(procWaitTimeout); err != nil {
		log.Warn("encoder subprocess exit",
			logging.KeyError, err,
			"stderr", string(e.proc.StderrTail()))
	}

	path, err := e.finalize()

	os.RemoveAll(e.workDir)
	e.mu.Lock()
	e.state = stateFinalized
	e.mu.Unlock()

	log.Info("encoding session finalized",
		"path", path,
		"frames", e.framesWritten.Load(),
		"framesDropped", e.framesDropped.Load(),
		"audioChunks", e.chunksWritten.Load(),
		"audioDropped", e.chunksDropped.Load())
	return path, err
}

// finalize produces the destination file from the realtime pass's output.
// No audio: plain copy. Audio present: mux pass, falling back to the copy
// when the mux fails.
func (e *Encoder) finalize() (string, error) {
	log := logging.L("encoder")

	info, err := os.Stat(e.videoPath)
	if err != nil || info.Size() == 0 {
		log.Warn("realtime pass produced no video",
			"stderr", string(e.proc.StderrTail()))
		return "", nil
	}

	if e.sidecar == nil || e.sidecar.DataBytes() == 0 {
		if err := copyFile(e.videoPath, e.dest); err != nil {
			return "", fmt.Errorf("copy video to destination: %w", err)
		}
		return e.dest, nil
	}

	bin, err := discoverBinary(e.cfg.EncoderPath)
	if err != nil {
		// Binary vanished mid-session. Keep the video at least.
		log.Warn("encoder binary missing at finalize, keeping video only")
		if err := copyFile(e.videoPath, e.dest); err != nil {
			return "", err
		}
		return e.dest, nil
	}

	args := muxArgs(e.videoPath, e.sidecar.Path(), e.dest, e.cfg.Tier().AudioBitrate)
	if err := e.run.Run(bin, args, muxTimeout); err != nil {
		log.Warn("mux failed, falling back to video-only output",
			logging.KeyError, err)
		if err := copyFile(e.videoPath, e.dest); err != nil {
			return "", fmt.Errorf("video-only fallback: %w", err)
		}
	}
	return e.dest, nil
}

// IsRunning reports whether the session accepts frames.
func (e *Encoder) IsRunning() bool {
	return e.running.Load()
}

// Snapshot returns the current ingestion counters.
func (e *Encoder) Snapshot() Stats {
	return Stats{
		FramesWritten:      e.framesWritten.Load(),
		FramesDropped:      e.framesDropped.Load(),
		AudioChunksWritten: e.chunksWritten.Load(),
		AudioChunksDropped: e.chunksDropped.Load(),
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
