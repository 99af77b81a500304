package capture

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/reelcap/recorder/internal/window"
)

// SyntheticSource generates a moving gradient instead of reading the screen.
// It stands in for real capture in tests, honoring the same pacing and
// sizing rules as the hardware sources.
type SyntheticSource struct {
	cfg Config

	mu      sync.Mutex
	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup
}

func NewSynthetic(cfg Config) *SyntheticSource {
	return &SyntheticSource{cfg: cfg}
}

func (s *SyntheticSource) Start(target window.Info, onFrame func(Frame)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running.Load() {
		return ErrAlreadyStarted
	}
	w, h := target.Width, target.Height
	if w <= 0 || h <= 0 {
		w, h = 640, 360
	}
	outW, outH := scaledDims(w, h, s.cfg.Scale)

	fps := s.cfg.TargetFPS
	if fps <= 0 {
		fps = 30
	}

	s.done = make(chan struct{})
	s.running.Store(true)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)

		ticker := time.NewTicker(time.Second / time.Duration(fps))
		defer ticker.Stop()
		started := time.Now()
		n := 0
		for {
			select {
			case <-s.done:
				return
			case <-ticker.C:
			}
			onFrame(Frame{
				Pix:       gradientBGRA(outW, outH, n),
				Width:     outW,
				Height:    outH,
				Timestamp: time.Since(started),
			})
			n++
		}
	}()
	return nil
}

// gradientBGRA renders frame n of a scrolling gradient so successive frames
// differ and the encoder gets non-trivial input.
func gradientBGRA(w, h, n int) []byte {
	pix := make([]byte, w*h*4)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 4
			pix[i] = byte(x + n)   // B
			pix[i+1] = byte(y + n) // G
			pix[i+2] = byte(n * 3) // R
			pix[i+3] = 0xFF
		}
	}
	return pix
}

func (s *SyntheticSource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		return
	}
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	s.wg.Wait()
}

func (s *SyntheticSource) IsRunning() bool {
	return s.running.Load()
}
