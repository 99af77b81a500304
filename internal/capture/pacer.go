package capture

import "time"

// pacer throttles frame delivery to a target rate. Decisions happen on the
// producer side so rejected frames never touch the pixel pipeline.
type pacer struct {
	interval time.Duration
	next     time.Time
}

func newPacer(fps int) *pacer {
	if fps <= 0 {
		fps = 30
	}
	return &pacer{interval: time.Second / time.Duration(fps)}
}

// allow reports whether a frame observed at now should be delivered.
// The schedule advances by whole intervals to avoid drift, but after a stall
// longer than one interval it resnaps to now so a burst of queued frames
// doesn't all pass at once.
func (p *pacer) allow(now time.Time) bool {
	if now.Before(p.next) {
		return false
	}
	p.next = p.next.Add(p.interval)
	if now.After(p.next) {
		p.next = now.Add(p.interval)
	}
	return true
}
