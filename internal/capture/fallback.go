package capture

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kbinani/screenshot"

	"github.com/reelcap/recorder/internal/logging"
	"github.com/reelcap/recorder/internal/window"
)

// screenSource captures the window region with the cross-platform screenshot
// library. Slower than duplication (full BitBlt-style copy per frame) but has
// no GPU or driver requirements. Frame size is fixed at Start; only the
// window's origin is re-resolved per tick so capture follows the window as it
// moves without disturbing the encoder's dimensions.
type screenSource struct {
	cfg Config

	mu      sync.Mutex
	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup
}

func newScreenSource(cfg Config) *screenSource {
	return &screenSource{cfg: cfg}
}

func (s *screenSource) Start(target window.Info, onFrame func(Frame)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running.Load() {
		return ErrAlreadyStarted
	}
	if screenshot.NumActiveDisplays() == 0 {
		return errors.New("no active displays")
	}
	if target.Width <= 0 || target.Height <= 0 {
		return fmt.Errorf("window %q has degenerate client area %dx%d",
			target.Title, target.Width, target.Height)
	}

	s.done = make(chan struct{})
	s.running.Store(true)
	s.wg.Add(1)
	go s.loop(target, onFrame)
	return nil
}

func (s *screenSource) loop(target window.Info, onFrame func(Frame)) {
	defer s.wg.Done()
	defer s.running.Store(false)

	log := logging.L("capture")
	outW, outH := scaledDims(target.Width, target.Height, s.cfg.Scale)
	scaled := outW != target.Width || outH != target.Height

	fps := s.cfg.TargetFPS
	if fps <= 0 {
		fps = 30
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	started := time.Now()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}

		x, y, _, _, err := window.Bounds(target.Handle)
		if err != nil {
			log.Info("window gone, capture stopping", logging.KeyError, err)
			return
		}
		img, err := screenshot.CaptureRect(image.Rect(x, y, x+target.Width, y+target.Height))
		if err != nil {
			log.Warn("screenshot capture failed", logging.KeyError, err)
			continue
		}

		rgbaToBGRA(img.Pix)
		pix := img.Pix
		if scaled {
			dst := make([]byte, outW*outH*4)
			scaleBGRA(img.Pix, target.Width, target.Height, dst, outW, outH)
			pix = dst
		}
		onFrame(Frame{
			Pix:       pix,
			Width:     outW,
			Height:    outH,
			Timestamp: time.Since(started),
		})
	}
}

func (s *screenSource) Stop() {
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

func (s *screenSource) IsRunning() bool {
	return s.running.Load()
}
