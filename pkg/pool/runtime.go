package pool

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
)

// Process is a running sandbox seen from the manager's side.
type Process interface {
	// Wait blocks until the process exits and returns its exit error, if any.
	Wait() error
	// Signal delivers a signal to the process.
	Signal(sig os.Signal) error
	// Kill forcibly terminates the process.
	Kill() error
	// Alive reports whether the process has not yet exited.
	Alive() bool
}

// Runtime launches isolation runtime processes for sandbox descriptors.
type Runtime interface {
	Start(configPath string) (Process, error)
}

// WorkerdRuntime runs sandboxes with a workerd-compatible binary. The
// child is started in its own process group so that cancellation of the
// request that triggered the spawn never tears the sandbox down.
type WorkerdRuntime struct {
	bin    string
	logger zerolog.Logger
}

func NewWorkerdRuntime(bin string, logger zerolog.Logger) *WorkerdRuntime {
	return &WorkerdRuntime{
		bin:    bin,
		logger: logger.With().Str("component", "runtime").Logger(),
	}
}

func (r *WorkerdRuntime) Start(configPath string) (Process, error) {
	cmd := exec.Command(r.bin, "serve", configPath)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	proc := &osProcess{cmd: cmd, done: make(chan struct{})}
	cmd.Stdout = &lockedBuffer{mu: &proc.mu, buf: &proc.stdout}
	cmd.Stderr = &lockedBuffer{mu: &proc.mu, buf: &proc.stderr}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start runtime %s: %w", r.bin, err)
	}

	r.logger.Debug().
		Int("pid", cmd.Process.Pid).
		Str("config", configPath).
		Msg("Runtime process started")

	go func() {
		proc.waitErr = cmd.Wait()
		if proc.waitErr != nil {
			r.logger.Warn().
				Int("pid", cmd.Process.Pid).
				Err(proc.waitErr).
				Str("stderr", proc.tail()).
				Msg("Runtime process exited with error")
		}
		close(proc.done)
	}()

	return proc, nil
}

type osProcess struct {
	cmd     *exec.Cmd
	done    chan struct{}
	waitErr error

	mu     sync.Mutex
	stdout bytes.Buffer
	stderr bytes.Buffer
}

func (p *osProcess) Wait() error {
	<-p.done
	return p.waitErr
}

func (p *osProcess) Signal(sig os.Signal) error {
	return p.cmd.Process.Signal(sig)
}

func (p *osProcess) Kill() error {
	return p.cmd.Process.Kill()
}

func (p *osProcess) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// tail returns the last chunk of stderr for crash diagnostics.
func (p *osProcess) tail() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.stderr.String()
	if len(out) > 2048 {
		out = out[len(out)-2048:]
	}
	return out
}

type lockedBuffer struct {
	mu  *sync.Mutex
	buf *bytes.Buffer
}

func (w *lockedBuffer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}
