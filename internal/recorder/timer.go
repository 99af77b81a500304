package recorder

import (
	"sync"
	"time"
)

// scheduledStop is a one-shot cancellable deadline. The callback runs at most
// once, and never once Cancel has returned true-before-fire; a timer that
// races its own cancellation is the classic source of double-stop bugs.
type scheduledStop struct {
	mu        sync.Mutex
	timer     *time.Timer
	cancelled bool
	fired     bool
}

func newScheduledStop(d time.Duration, fn func()) *scheduledStop {
	s := &scheduledStop{}
	s.timer = time.AfterFunc(d, func() {
		s.mu.Lock()
		if s.cancelled || s.fired {
			s.mu.Unlock()
			return
		}
		s.fired = true
		s.mu.Unlock()
		fn()
	})
	return s
}

// Cancel stops the deadline. Safe to call multiple times and after firing.
func (s *scheduledStop) Cancel() {
	s.mu.Lock()
	s.cancelled = true
	s.mu.Unlock()
	s.timer.Stop()
}
