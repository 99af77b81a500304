package encoder

import (
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"
)

// process is a handle to a launched encoder subprocess.
type process interface {
	// Stdin is the subprocess's input pipe. Closing it signals end-of-stream.
	Stdin() io.WriteCloser

	// Wait blocks for exit up to timeout, killing the process when exceeded.
	Wait(timeout time.Duration) error

	// StderrTail returns the last bytes of the subprocess's stderr, for
	// logging after a failure.
	StderrTail() []byte
}

// runner launches encoder subprocesses. The real implementation shells out;
// tests substitute a fake so no binary is needed.
type runner interface {
	// Start launches a long-lived process with a writable stdin pipe.
	Start(bin string, args []string) (process, error)

	// Run executes a short-lived process to completion.
	Run(bin string, args []string, timeout time.Duration) error
}

// tailBuffer keeps the last N bytes written to it. Encoder stderr can run to
// megabytes on a bad session; only the tail is worth logging.
type tailBuffer struct {
	mu   sync.Mutex
	max  int
	data []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data = append(t.data, p...)
	if len(t.data) > t.max {
		t.data = t.data[len(t.data)-t.max:]
	}
	return len(p), nil
}

func (t *tailBuffer) Bytes() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]byte, len(t.data))
	copy(out, t.data)
	return out
}

const stderrTailBytes = 500

type execRunner struct{}

type execProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *tailBuffer
}

func (r *execRunner) Start(bin string, args []string) (process, error) {
	cmd := exec.Command(bin, args...)
	cmd.SysProcAttr = procAttr()
	stderr := newTailBuffer(stderrTailBytes)
	cmd.Stderr = stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("launch %s: %w", bin, err)
	}
	return &execProcess{cmd: cmd, stdin: stdin, stderr: stderr}, nil
}

func (r *execRunner) Run(bin string, args []string, timeout time.Duration) error {
	cmd := exec.Command(bin, args...)
	cmd.SysProcAttr = procAttr()
	stderr := newTailBuffer(stderrTailBytes)
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch %s: %w", bin, err)
	}
	if err := waitTimeout(cmd, timeout); err != nil {
		return fmt.Errorf("%w (stderr: %s)", err, stderr.Bytes())
	}
	return nil
}

func (p *execProcess) Stdin() io.WriteCloser { return p.stdin }

func (p *execProcess) Wait(timeout time.Duration) error {
	return waitTimeout(p.cmd, timeout)
}

func (p *execProcess) StderrTail() []byte { return p.stderr.Bytes() }

func waitTimeout(cmd *exec.Cmd, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		_ = cmd.Process.Kill()
		<-done
		return fmt.Errorf("subprocess did not exit within %v, killed", timeout)
	}
}
