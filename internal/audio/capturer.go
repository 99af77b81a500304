package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/reelcap/recorder/internal/logging"
)

var log = logging.L("audio")

const (
	// mixInterval paces the mix loop. Device periods are shorter, so each
	// tick drains whatever has accumulated on both streams.
	mixInterval = 20 * time.Millisecond

	// streamQueueDepth bounds the per-stream chunk queues between the
	// miniaudio callback and the mix loop. On overflow the current chunk is
	// dropped so the device callback never blocks.
	streamQueueDepth = 16
)

// Capturer captures desktop loopback audio and, optionally, the default
// microphone through miniaudio. Both devices are requested as s16le 48kHz
// stereo; miniaudio converts from the device's native format. A dedicated
// mix goroutine applies microphone gain, mixes the two streams, and delivers
// the result to the session callback.
type Capturer struct {
	micEnabled bool
	micGain    float64

	mu       sync.Mutex
	running  bool
	ctx      *malgo.AllocatedContext
	loopback *malgo.Device
	mic      *malgo.Device

	loopbackCh chan []int16
	micCh      chan []int16
	done       chan struct{}
	wg         sync.WaitGroup
	started    time.Time
}

// NewCapturer builds a Capturer. micGain is expected pre-clamped by config.
func NewCapturer(micEnabled bool, micGain float64) *Capturer {
	return &Capturer{
		micEnabled: micEnabled,
		micGain:    micGain,
	}
}

func (c *Capturer) ListDevices() ([]Device, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(string) {})
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	var devices []Device
	playback, err := ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, fmt.Errorf("enumerate playback devices: %w", err)
	}
	for _, d := range playback {
		devices = append(devices, Device{
			Name:      d.Name(),
			Kind:      DeviceLoopback,
			IsDefault: d.IsDefault != 0,
		})
	}
	capture, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("enumerate capture devices: %w", err)
	}
	for _, d := range capture {
		devices = append(devices, Device{
			Name:      d.Name(),
			Kind:      DeviceMicrophone,
			IsDefault: d.IsDefault != 0,
		})
	}
	return devices, nil
}

func (c *Capturer) Start(onAudio func(Chunk)) (StartResult, error) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return StartResult{}, fmt.Errorf("audio capturer already started")
	}
	c.running = true
	c.mu.Unlock()

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(string) {})
	if err != nil {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		return StartResult{}, fmt.Errorf("init audio context: %w", err)
	}

	c.ctx = ctx
	c.loopbackCh = make(chan []int16, streamQueueDepth)
	c.micCh = make(chan []int16, streamQueueDepth)
	c.done = make(chan struct{})
	c.started = time.Now()

	var result StartResult

	// Default render endpoint in loopback mode. Failure degrades to
	// microphone-only capture.
	loopback, err := c.openDevice(malgo.Loopback, c.loopbackCh)
	if err != nil {
		result.LoopbackErr = err
		log.Warn("loopback device unavailable, continuing without system audio", "error", err)
	} else {
		c.loopback = loopback
		result.Loopback = true
	}

	if c.micEnabled {
		mic, err := c.openDevice(malgo.Capture, c.micCh)
		if err != nil {
			result.MicErr = err
			log.Warn("microphone unavailable, continuing without mic", "error", err)
		} else {
			c.mic = mic
			result.Microphone = true
		}
	}

	if result.Silent() {
		log.Warn("no audio stream opened; session will be silent")
	}

	c.wg.Add(1)
	go c.mixLoop(onAudio)

	return result, nil
}

// openDevice opens one miniaudio device whose data callback copies each
// period into the stream queue. The callback runs on a miniaudio-owned
// thread and must never block, so a full queue drops the current chunk.
func (c *Capturer) openDevice(kind malgo.DeviceType, ch chan []int16) (*malgo.Device, error) {
	cfg := malgo.DefaultDeviceConfig(kind)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = Channels
	cfg.SampleRate = SampleRate
	cfg.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			if frameCount == 0 || len(input) == 0 {
				return
			}
			samples := bytesToSamples(input)
			select {
			case ch <- samples:
			default:
			}
		},
	}

	device, err := malgo.InitDevice(c.ctx.Context, cfg, callbacks)
	if err != nil {
		return nil, fmt.Errorf("init device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("start device: %w", err)
	}
	return device, nil
}

// mixLoop empties both stream queues each tick, applies microphone gain,
// mixes, and hands the result to the session callback. Queues are drained
// fully because device periods are shorter than the tick; anything still
// queued at shutdown is flushed before the loop exits.
func (c *Capturer) mixLoop(onAudio func(Chunk)) {
	defer c.wg.Done()

	ticker := time.NewTicker(mixInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			c.mixPending(onAudio)
			return
		case <-ticker.C:
			c.mixPending(onAudio)
		}
	}
}

func (c *Capturer) mixPending(onAudio func(Chunk)) {
	loopback := drainStream(c.loopbackCh)
	mic := drainStream(c.micCh)

	if len(mic) > 0 {
		ApplyGain(mic, c.micGain)
	}
	mixed := Mix(loopback, mic)
	if mixed == nil {
		return
	}
	onAudio(Chunk{Samples: mixed, Timestamp: time.Since(c.started)})
}

// drainStream collects every queued chunk without blocking, concatenated in
// arrival order.
func drainStream(ch chan []int16) []int16 {
	var out []int16
	for {
		select {
		case s := <-ch:
			out = append(out, s...)
		default:
			return out
		}
	}
}

func (c *Capturer) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.mu.Unlock()

	close(c.done)
	c.wg.Wait()

	if c.loopback != nil {
		_ = c.loopback.Stop()
		c.loopback.Uninit()
		c.loopback = nil
	}
	if c.mic != nil {
		_ = c.mic.Stop()
		c.mic.Uninit()
		c.mic = nil
	}
	if c.ctx != nil {
		_ = c.ctx.Uninit()
		c.ctx.Free()
		c.ctx = nil
	}
}

func (c *Capturer) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}
