//go:build windows

package capture

import (
	"sync"

	"github.com/reelcap/recorder/internal/logging"
	"github.com/reelcap/recorder/internal/window"
)

// autoSource tries DXGI duplication first and falls back to the screenshot
// capturer when duplication can't initialize (RDP sessions, rotated displays,
// driver quirks). The choice is made per Start, not per process: duplication
// availability changes with session state.
type autoSource struct {
	cfg Config

	mu     sync.Mutex
	active Source
}

func newPlatformSource(cfg Config) Source {
	return &autoSource{cfg: cfg}
}

func (s *autoSource) Start(target window.Info, onFrame func(Frame)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil && s.active.IsRunning() {
		return ErrAlreadyStarted
	}

	dxgi := newDXGISource(s.cfg)
	err := dxgi.Start(target, onFrame)
	if err == nil {
		s.active = dxgi
		return nil
	}
	logging.L("capture").Warn("DXGI unavailable, using screenshot capture",
		logging.KeyError, err)

	fallback := newScreenSource(s.cfg)
	if err := fallback.Start(target, onFrame); err != nil {
		return err
	}
	s.active = fallback
	return nil
}

func (s *autoSource) Stop() {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if active != nil {
		active.Stop()
	}
}

func (s *autoSource) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil && s.active.IsRunning()
}
