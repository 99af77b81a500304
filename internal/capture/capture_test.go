package capture

import (
	"sync"
	"testing"
	"time"

	"github.com/reelcap/recorder/internal/window"
)

func TestPacerHoldsTargetRate(t *testing.T) {
	p := newPacer(10) // 100ms interval
	base := time.Now()

	allowed := 0
	// Frames arriving at 100fps for one simulated second.
	for i := 0; i < 100; i++ {
		if p.allow(base.Add(time.Duration(i) * 10 * time.Millisecond)) {
			allowed++
		}
	}
	if allowed < 9 || allowed > 11 {
		t.Fatalf("allowed %d frames at 10fps over 1s, want ~10", allowed)
	}
}

func TestPacerResnapsAfterStall(t *testing.T) {
	p := newPacer(10)
	base := time.Now()
	if !p.allow(base) {
		t.Fatal("first frame should pass")
	}
	// 2s gap, then a burst at 1ms spacing. Only one frame of the burst
	// should pass; the stall must not bank credits.
	late := base.Add(2 * time.Second)
	passed := 0
	for i := 0; i < 5; i++ {
		if p.allow(late.Add(time.Duration(i) * time.Millisecond)) {
			passed++
		}
	}
	if passed != 1 {
		t.Fatalf("burst after stall passed %d frames, want 1", passed)
	}
}

func TestScaledDims(t *testing.T) {
	tests := []struct {
		w, h         int
		scale        float64
		wantW, wantH int
	}{
		{1920, 1080, 1.0, 1920, 1080},
		{1920, 1080, 0.5, 960, 540},
		{1920, 1080, 0.25, 480, 270},
		{100, 100, 0, 100, 100},
		{4, 4, 0.25, 2, 2},
	}
	for _, tt := range tests {
		gotW, gotH := scaledDims(tt.w, tt.h, tt.scale)
		if gotW != tt.wantW || gotH != tt.wantH {
			t.Errorf("scaledDims(%d, %d, %v) = %dx%d, want %dx%d",
				tt.w, tt.h, tt.scale, gotW, gotH, tt.wantW, tt.wantH)
		}
	}
}

func TestScaleBGRAPicksNearestPixels(t *testing.T) {
	// 4x4 source with a distinct value per pixel in the B channel.
	src := make([]byte, 4*4*4)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			src[(y*4+x)*4] = byte(y*4 + x)
		}
	}
	dst := make([]byte, 2*2*4)
	scaleBGRA(src, 4, 4, dst, 2, 2)

	// Nearest with floor sampling picks (0,0), (2,0), (0,2), (2,2).
	want := []byte{0, 2, 8, 10}
	for i, w := range want {
		if dst[i*4] != w {
			t.Errorf("dst pixel %d = %d, want %d", i, dst[i*4], w)
		}
	}
}

func TestRGBAToBGRA(t *testing.T) {
	pix := []byte{1, 2, 3, 4, 10, 20, 30, 40}
	rgbaToBGRA(pix)
	want := []byte{3, 2, 1, 4, 30, 20, 10, 40}
	for i := range want {
		if pix[i] != want[i] {
			t.Fatalf("pix[%d] = %d, want %d", i, pix[i], want[i])
		}
	}
}

func TestSyntheticSourceDeliversPacedFrames(t *testing.T) {
	src := NewSynthetic(Config{TargetFPS: 50, Scale: 1.0})

	var mu sync.Mutex
	var frames []Frame
	err := src.Start(window.Info{Width: 64, Height: 48}, func(f Frame) {
		mu.Lock()
		frames = append(frames, f)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !src.IsRunning() {
		t.Fatal("source should report running after Start")
	}

	time.Sleep(400 * time.Millisecond)
	src.Stop()
	if src.IsRunning() {
		t.Fatal("source should report stopped after Stop")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(frames) < 10 {
		t.Fatalf("got %d frames in 400ms at 50fps, want at least 10", len(frames))
	}
	for i, f := range frames {
		if f.Width != 64 || f.Height != 48 {
			t.Fatalf("frame %d is %dx%d, want 64x48", i, f.Width, f.Height)
		}
		if len(f.Pix) != 64*48*4 {
			t.Fatalf("frame %d has %d pixel bytes, want %d", i, len(f.Pix), 64*48*4)
		}
		if i > 0 && f.Timestamp <= frames[i-1].Timestamp {
			t.Fatalf("timestamps not monotonic at frame %d: %v then %v",
				i, frames[i-1].Timestamp, f.Timestamp)
		}
	}
}

func TestSyntheticSourceScales(t *testing.T) {
	src := NewSynthetic(Config{TargetFPS: 60, Scale: 0.5})

	got := make(chan Frame, 1)
	err := src.Start(window.Info{Width: 100, Height: 80}, func(f Frame) {
		select {
		case got <- f:
		default:
		}
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer src.Stop()

	select {
	case f := <-got:
		if f.Width != 50 || f.Height != 40 {
			t.Fatalf("scaled frame is %dx%d, want 50x40", f.Width, f.Height)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no frame delivered within 2s")
	}
}

func TestDoubleStartRejected(t *testing.T) {
	src := NewSynthetic(Config{TargetFPS: 30})
	if err := src.Start(window.Info{Width: 32, Height: 32}, func(Frame) {}); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	defer src.Stop()
	if err := src.Start(window.Info{Width: 32, Height: 32}, func(Frame) {}); err != ErrAlreadyStarted {
		t.Fatalf("second Start = %v, want ErrAlreadyStarted", err)
	}
}
