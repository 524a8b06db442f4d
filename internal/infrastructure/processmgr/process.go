//go:build linux

package processmgr

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	Stdout string = "stdout"
	Stderr string = "stderr"
)

// LineHandler receives every output line of a supervised process.
// It runs on the reader goroutine of the given stream and must not block.
type LineHandler func(stream, line string)

// ExitStatus describes how a process terminated.
type ExitStatus struct {
	Code     int    // exit code; -1 when terminated by a signal
	Signaled bool   // terminated by a signal
	Signal   string // signal name when Signaled
	Err      error  // wait error other than a non-zero exit, if any
}

// Clean reports whether the process exited with status 0.
func (s ExitStatus) Clean() bool { return s.Err == nil && !s.Signaled && s.Code == 0 }

// Process encapsulates one spawned encoder.
// Features:
//   - race-free pipe setup (stdout/stderr)
//   - two independent readers delivering lines to a LineHandler
//   - process-group isolation with parent-death SIGKILL
//   - forced teardown of the whole group (SIGKILL to -pgid)
//   - single reaping with exit metadata, then Done() fires
//
// Canonical usage:
//
//	p, _ := NewProcess(log, argv, env) → p.Start(onLine) → <-p.Done() → p.Exit()
type Process struct {
	log *zap.Logger

	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr io.ReadCloser

	// Closed after the process is fully reaped.
	done      chan struct{}
	startOnce sync.Once

	started atomic.Bool
	pid     atomic.Int64

	mu   sync.Mutex // guards exit
	exit ExitStatus
}

// NewProcess constructs a process around exec.Cmd.
//
// It performs early pipe allocation and applies Linux-specific attributes:
//   - Setpgid: isolates the child into its own process group
//   - Pdeathsig: ensures child receives SIGKILL if the parent dies
//
// env nil inherits the parent environment.
func NewProcess(log *zap.Logger, argv, env []string) (*Process, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, errors.New("empty argv")
	}
	if log == nil {
		log = zap.NewNop()
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	stdout, stderr, err := pipes(cmd)
	if err != nil {
		return nil, err
	}

	cmd.Env = env
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}

	return &Process{
		log:    log,
		cmd:    cmd,
		stdout: stdout,
		stderr: stderr,
		done:   make(chan struct{}),
	}, nil
}

// Start launches the command exactly once and begins draining both output
// streams into onLine (nil discards). Done() fires once the process is reaped.
func (p *Process) Start(onLine LineHandler) error {
	err := errors.New("process already started")

	p.startOnce.Do(func() {
		if onLine == nil {
			onLine = func(string, string) {}
		}

		if err = p.cmd.Start(); err != nil {
			p.log.Error("failed to start command", zap.Error(err), zap.String("command", p.cmd.Path))
			// exec.Cmd closes the pipe ends on a failed Start.
			close(p.done)
			return
		}

		pid := p.cmd.Process.Pid
		p.started.Store(true)
		p.pid.Store(int64(pid))

		p.log.Info("process started", zap.Int("cmd_pid", pid))
		go p.supervise(onLine)
	})

	return err
}

// supervise drains both pipes to EOF, then reaps the child once and records
// exit metadata. All reads complete before Wait, as exec.Cmd requires.
func (p *Process) supervise(onLine LineHandler) {
	var g errgroup.Group
	g.Go(func() error { return p.drain(Stdout, p.stdout, onLine) })
	g.Go(func() error { return p.drain(Stderr, p.stderr, onLine) })
	if err := g.Wait(); err != nil {
		p.log.Warn("output reader failure", zap.Error(err))
	}

	var st ExitStatus
	if err := p.cmd.Wait(); err != nil {
		var eerr *exec.ExitError
		if errors.As(err, &eerr) {
			ws := eerr.Sys().(syscall.WaitStatus)
			st.Code = eerr.ExitCode()
			st.Signaled = ws.Signaled()
			if st.Signaled {
				st.Signal = ws.Signal().String()
			}
			p.log.Info("process exited with error status",
				zap.Int("exit_code", st.Code),
				zap.Bool("signaled", st.Signaled),
				zap.String("signal", st.Signal))
		} else {
			st.Code = -1
			st.Err = err
			p.log.Error("failed to wait for process", zap.Error(err))
		}
	} else {
		p.log.Info("process exited cleanly")
	}

	p.mu.Lock()
	p.exit = st
	p.mu.Unlock()

	close(p.done)
}

// drain scans r line by line. Carriage returns split lines too, since the
// encoder rewrites its progress line in place with "\r".
func (p *Process) drain(stream string, r io.Reader, onLine LineHandler) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	sc.Split(scanLinesCR)

	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r\n")
		if line == "" {
			continue
		}
		onLine(stream, line)
	}

	if err := sc.Err(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%s scanner: %w", stream, err)
	}
	return nil
}

// scanLinesCR is bufio.ScanLines that also treats a lone '\r' as a terminator.
func scanLinesCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	for i, c := range data {
		if c == '\n' || c == '\r' {
			return i + 1, data[:i], nil
		}
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// PID returns the child pid, 0 before a successful Start.
func (p *Process) PID() int { return int(p.pid.Load()) }

// Done is closed once the process has been reaped (or failed to start).
func (p *Process) Done() <-chan struct{} { return p.done }

// Exit returns the exit status. Valid after Done() fires.
func (p *Process) Exit() ExitStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exit
}

// Kill sends SIGKILL to the whole process group. It is a no-op once the
// process has been reaped.
func (p *Process) Kill() error {
	if !p.started.Load() {
		return errors.New("process not started")
	}

	select {
	case <-p.done:
		return nil
	default:
	}

	pid := p.PID()
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return nil
		}
		p.log.Warn("SIGKILL failed", zap.Error(err), zap.Int("cmd_pid", pid))
		return fmt.Errorf("kill process group %d: %w", pid, err)
	}
	p.log.Info("SIGKILL sent to process group", zap.Int("pgid", pid))
	return nil
}

// pipes prepares stdout and stderr for exec.Cmd.
//
//   - StdoutPipe() and StderrPipe() each create an os.Pipe().
//   - exec.Cmd does NOT own these pipes until Start() succeeds.
//   - Before Start(), the caller must close any pipe created before a setup error.
//
// Stdin is left unset so the child reads from /dev/null.
func pipes(cmd *exec.Cmd) (io.ReadCloser, io.ReadCloser, error) {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("stdout pipe creation failure: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		_ = stdout.Close()
		return nil, nil, fmt.Errorf("stderr pipe creation failure: %w", err)
	}

	return stdout, stderr, nil
}
