package recorder

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/reelcap/recorder/internal/capture"
	"github.com/reelcap/recorder/internal/config"
	"github.com/reelcap/recorder/internal/encoder"
	"github.com/reelcap/recorder/internal/window"
)

type fakeLocator struct {
	mu  sync.Mutex
	win *window.Info
}

func (l *fakeLocator) Find(string) (*window.Info, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.win, nil
}

func (l *fakeLocator) List() ([]window.Info, error) { return nil, nil }

func (l *fakeLocator) set(w *window.Info) {
	l.mu.Lock()
	l.win = w
	l.mu.Unlock()
}

type fakeSink struct {
	mu       sync.Mutex
	startErr error
	stopPath string

	startedW, startedH int
	frames             []time.Duration
	stopped            bool
}

func (s *fakeSink) Start(w, h int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.startedW, s.startedH = w, h
	return nil
}

func (s *fakeSink) WriteFrame(_ []byte, ts time.Duration) {
	s.mu.Lock()
	s.frames = append(s.frames, ts)
	s.mu.Unlock()
}

func (s *fakeSink) WriteAudio([]int16, time.Duration) {}

func (s *fakeSink) Stop() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return s.stopPath, nil
}

func (s *fakeSink) Snapshot() encoder.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return encoder.Stats{FramesWritten: uint64(len(s.frames))}
}

func (s *fakeSink) frameTimestamps() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.frames))
	copy(out, s.frames)
	return out
}

func testOrchestrator(t *testing.T, fs *fakeSink, frameFPS int) (*Orchestrator, *fakeLocator) {
	t.Helper()
	cfg := config.Default()
	cfg.OutputFolder = t.TempDir()
	cfg.CaptureAudio = false
	cfg.CaptureMicrophone = false
	cfg.WindowTitlePattern = "TestGame"
	cfg.WindowRetryIntervalSeconds = 1

	loc := &fakeLocator{}
	o := New(cfg)
	o.locator = loc
	o.newFrameSource = func(capture.Config) capture.Source {
		return capture.NewSynthetic(capture.Config{TargetFPS: frameFPS, Scale: 1.0})
	}
	o.newSink = func(*config.Config, string) sink { return fs }
	return o, loc
}

func TestStartCaptureTwiceRaisesAlreadyRunning(t *testing.T) {
	fs := &fakeSink{stopPath: "out.mp4"}
	o, loc := testOrchestrator(t, fs, 30)
	loc.set(&window.Info{Title: "TestGame", Width: 64, Height: 48})

	if err := o.StartCapture(nil, false); err != nil {
		t.Fatalf("StartCapture: %v", err)
	}
	defer o.StopCapture()

	if err := o.StartCapture(nil, false); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second StartCapture = %v, want ErrAlreadyRunning", err)
	}
}

func TestStopCaptureIdleReturnsEmptyWithoutError(t *testing.T) {
	o, _ := testOrchestrator(t, &fakeSink{}, 30)
	path, err := o.StopCapture()
	if err != nil || path != "" {
		t.Fatalf("StopCapture idle = (%q, %v), want (\"\", nil)", path, err)
	}
}

func TestStartCaptureNoWindowNoWaitFails(t *testing.T) {
	o, _ := testOrchestrator(t, &fakeSink{}, 30)
	if err := o.StartCapture(nil, false); !errors.Is(err, ErrWindowNotFound) {
		t.Fatalf("StartCapture = %v, want ErrWindowNotFound", err)
	}
	if o.IsRunning() || o.IsWaitingForWindow() {
		t.Fatal("orchestrator should be idle after a failed start")
	}
}

func TestWaitForWindowStartsWhenWindowAppears(t *testing.T) {
	fs := &fakeSink{stopPath: "out.mp4"}
	o, loc := testOrchestrator(t, fs, 30)

	if err := o.StartCapture(nil, true); err != nil {
		t.Fatalf("StartCapture: %v", err)
	}
	if !o.IsWaitingForWindow() {
		t.Fatal("should be waiting for the window")
	}
	if o.IsRunning() {
		t.Fatal("should not be capturing yet")
	}

	loc.set(&window.Info{Title: "TestGame", Width: 64, Height: 48})

	deadline := time.Now().Add(5 * time.Second)
	for !o.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if !o.IsRunning() {
		t.Fatal("capture did not start after the window appeared")
	}
	if o.IsWaitingForWindow() {
		t.Fatal("still reports waiting after capture started")
	}

	if _, err := o.StopCapture(); err != nil {
		t.Fatalf("StopCapture: %v", err)
	}
}

func TestStopCaptureCancelsWindowWait(t *testing.T) {
	o, _ := testOrchestrator(t, &fakeSink{}, 30)
	if err := o.StartCapture(nil, true); err != nil {
		t.Fatalf("StartCapture: %v", err)
	}

	path, err := o.StopCapture()
	if err != nil || path != "" {
		t.Fatalf("StopCapture while waiting = (%q, %v), want (\"\", nil)", path, err)
	}
	if o.IsWaitingForWindow() {
		t.Fatal("still waiting after cancel")
	}
}

func TestEndToEndTenFpsForThreeSeconds(t *testing.T) {
	if testing.Short() {
		t.Skip("3s real-time run")
	}
	fs := &fakeSink{stopPath: "out.mp4"}
	o, loc := testOrchestrator(t, fs, 10)
	loc.set(&window.Info{Title: "TestGame", Width: 64, Height: 48})

	if err := o.StartCapture(map[string]string{"map": "mirage"}, false); err != nil {
		t.Fatalf("StartCapture: %v", err)
	}
	time.Sleep(3 * time.Second)

	path, err := o.StopCapture()
	if err != nil {
		t.Fatalf("StopCapture: %v", err)
	}
	if path != "out.mp4" {
		t.Fatalf("StopCapture path = %q", path)
	}

	stamps := fs.frameTimestamps()
	if len(stamps) < 28 || len(stamps) > 32 {
		t.Fatalf("got %d frames at 10fps over 3s, want 28-32", len(stamps))
	}
	for i := 1; i < len(stamps); i++ {
		if stamps[i] <= stamps[i-1] {
			t.Fatalf("timestamps not monotonic at %d: %v then %v",
				i, stamps[i-1], stamps[i])
		}
	}
	if !fs.stopped {
		t.Fatal("encoder not stopped")
	}
}

func TestSinkStartFailureUnwindsToIdle(t *testing.T) {
	fs := &fakeSink{startErr: errors.New("no encoder binary")}
	o, loc := testOrchestrator(t, fs, 30)
	loc.set(&window.Info{Title: "TestGame", Width: 64, Height: 48})

	if err := o.StartCapture(nil, false); err == nil {
		t.Fatal("StartCapture should propagate sink start failure")
	}
	if o.IsRunning() || o.IsWaitingForWindow() {
		t.Fatal("orchestrator should be idle after unwinding")
	}

	// A later start must work once the failure clears.
	fs.mu.Lock()
	fs.startErr = nil
	fs.mu.Unlock()
	if err := o.StartCapture(nil, false); err != nil {
		t.Fatalf("StartCapture after recovery: %v", err)
	}
	o.StopCapture()
}

func TestSelfStoppedFrameSourceEndsSession(t *testing.T) {
	fs := &fakeSink{stopPath: "out.mp4"}
	o, loc := testOrchestrator(t, fs, 30)
	loc.set(&window.Info{Title: "TestGame", Width: 64, Height: 48})

	var src capture.Source
	o.newFrameSource = func(capture.Config) capture.Source {
		src = capture.NewSynthetic(capture.Config{TargetFPS: 30, Scale: 1.0})
		return src
	}

	if err := o.StartCapture(nil, false); err != nil {
		t.Fatalf("StartCapture: %v", err)
	}

	// Simulate the window going away: the source stops by itself and the
	// watcher must fold the whole session.
	src.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for o.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if o.IsRunning() {
		t.Fatal("session still running after its frame source stopped")
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.stopped {
		t.Fatal("encoder not stopped on implicit session end")
	}
}

func TestGetDurationAndOutputPath(t *testing.T) {
	fs := &fakeSink{stopPath: "final.mp4"}
	o, loc := testOrchestrator(t, fs, 30)
	loc.set(&window.Info{Title: "TestGame", Width: 64, Height: 48})

	if d := o.GetDuration(); d != 0 {
		t.Fatalf("idle duration = %v, want 0", d)
	}
	if err := o.StartCapture(nil, false); err != nil {
		t.Fatalf("StartCapture: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if d := o.GetDuration(); d <= 0 {
		t.Fatalf("running duration = %v, want > 0", d)
	}
	if o.GetOutputPath() == "" {
		t.Fatal("no output path while capturing")
	}

	if _, err := o.StopCapture(); err != nil {
		t.Fatalf("StopCapture: %v", err)
	}
	if got := o.GetOutputPath(); got != "final.mp4" {
		t.Fatalf("GetOutputPath after stop = %q, want final.mp4", got)
	}
}
