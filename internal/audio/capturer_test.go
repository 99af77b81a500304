package audio

import (
	"sync"
	"testing"
	"time"
)

// testCapturer wires a Capturer's mix loop up to plain channels so it can be
// exercised without real miniaudio devices.
func testCapturer(micEnabled bool, micGain float64) *Capturer {
	c := NewCapturer(micEnabled, micGain)
	c.loopbackCh = make(chan []int16, streamQueueDepth)
	c.micCh = make(chan []int16, streamQueueDepth)
	c.done = make(chan struct{})
	c.started = time.Now()
	return c
}

func TestMixLoopKeepsUpWithFastDevicePeriods(t *testing.T) {
	c := testCapturer(false, 1.0)

	var mu sync.Mutex
	delivered := 0
	c.wg.Add(1)
	go c.mixLoop(func(ch Chunk) {
		mu.Lock()
		delivered += len(ch.Samples)
		mu.Unlock()
	})

	// One 10ms device period (960 samples at 48kHz stereo) every 10ms,
	// twice the mix tick rate, queued with the device callback's
	// non-blocking policy. Every sample must still reach the callback.
	const periods = 50
	const periodSamples = 960
	fed := 0
	for i := 0; i < periods; i++ {
		chunk := make([]int16, periodSamples)
		select {
		case c.loopbackCh <- chunk:
			fed += periodSamples
		default:
		}
		time.Sleep(10 * time.Millisecond)
	}

	close(c.done)
	c.wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if delivered != fed {
		t.Fatalf("delivered %d of %d queued samples", delivered, fed)
	}
}

func TestMixLoopConcatenatesAndMixesQueuedChunks(t *testing.T) {
	c := testCapturer(true, 0.5)

	c.loopbackCh <- []int16{100, 200}
	c.loopbackCh <- []int16{300}
	c.micCh <- []int16{1000, 1000, 1000}

	var mu sync.Mutex
	var got []int16
	c.wg.Add(1)
	go c.mixLoop(func(ch Chunk) {
		mu.Lock()
		got = append(got, ch.Samples...)
		mu.Unlock()
	})

	close(c.done)
	c.wg.Wait()

	want := []int16{600, 700, 800}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != len(want) {
		t.Fatalf("got %d mixed samples, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}
