package stream

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

// streamProcess is one supervised transcoder for one agent. The command is
// replaced on every restart; directory and port stay fixed for its lifetime.
type streamProcess struct {
	agentID   string
	source    string
	binary    string
	dir       string
	port      int
	startTime time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	cmd      *exec.Cmd
	done     chan struct{}
	exitErr  error
	restarts int
}

func (p *streamProcess) current() (*exec.Cmd, chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cmd, p.done
}

func (p *streamProcess) running() bool {
	_, done := p.current()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

func (p *streamProcess) info() ProcessInfo {
	p.mu.Lock()
	defer p.mu.Unlock()

	info := ProcessInfo{
		AgentID:   p.agentID,
		Source:    p.source,
		ProxyPort: p.port,
		HLSPath:   p.dir,
		StartTime: p.startTime,
		Restarts:  p.restarts,
	}
	if p.cmd != nil && p.cmd.Process != nil {
		info.PID = p.cmd.Process.Pid
	}
	if p.done != nil {
		select {
		case <-p.done:
		default:
			info.Running = true
		}
	}
	return info
}

// launch starts a new command for p. It refuses once p has been cancelled so
// a Stop can never race a relaunch.
func (s *Supervisor) launch(p *streamProcess) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ctx.Err(); err != nil {
		return err
	}

	cmd := exec.Command(p.binary, s.args(p.source, p.dir)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", p.binary, err)
	}

	done := make(chan struct{})
	p.cmd = cmd
	p.done = done
	p.exitErr = nil

	slog.Info("Stream process started",
		"agent_id", p.agentID,
		"pid", cmd.Process.Pid,
		"proxy_port", p.port,
		"hls_path", p.dir)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		var drains sync.WaitGroup
		drains.Add(2)
		go func() {
			defer drains.Done()
			LogOutput(stdout, "Stream process output", "agent_id", p.agentID, "pipe", "stdout")
		}()
		go func() {
			defer drains.Done()
			LogOutput(stderr, "Stream process output", "agent_id", p.agentID, "pipe", "stderr")
		}()
		drains.Wait()

		err := cmd.Wait()
		p.mu.Lock()
		if p.cmd == cmd {
			p.exitErr = err
		}
		p.mu.Unlock()
		close(done)

		slog.Debug("Stream process exited", "agent_id", p.agentID, "pid", cmd.Process.Pid, "error", err)
	}()

	return nil
}

// supervise relaunches the process after unexpected exits until the restart
// budget is spent or the process is stopped.
func (s *Supervisor) supervise(p *streamProcess) {
	defer p.wg.Done()

	for {
		_, done := p.current()
		select {
		case <-p.ctx.Done():
			return
		case <-done:
		}
		if p.ctx.Err() != nil {
			return
		}

		p.mu.Lock()
		restarts, exitErr := p.restarts, p.exitErr
		p.mu.Unlock()

		if restarts >= s.cfg.MaxRestarts {
			slog.Error("Stream process exited, restart limit reached",
				"agent_id", p.agentID,
				"restarts", restarts,
				"error", exitErr)
			return
		}

		delay := s.restartDelay(restarts + 1)
		slog.Warn("Stream process exited unexpectedly, restarting",
			"agent_id", p.agentID,
			"attempt", restarts+1,
			"delay", delay,
			"error", exitErr)

		timer := time.NewTimer(delay)
		select {
		case <-p.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		err := retry.Do(func() error {
			return s.launch(p)
		},
			retry.Context(p.ctx),
			retry.Attempts(launchAttempts),
			retry.Delay(s.cfg.RestartDelay),
			retry.MaxDelay(s.cfg.MaxRestartDelay))
		if err != nil {
			if p.ctx.Err() == nil {
				slog.Error("Failed to restart stream process", "agent_id", p.agentID, "error", err)
			}
			return
		}

		p.mu.Lock()
		p.restarts++
		p.mu.Unlock()
	}
}

func (s *Supervisor) restartDelay(attempt int) time.Duration {
	delay := s.cfg.RestartDelay * time.Duration(attempt)
	if delay > s.cfg.MaxRestartDelay {
		delay = s.cfg.MaxRestartDelay
	}
	return delay
}

// terminate asks the current process to exit and kills it after the grace
// period.
func (s *Supervisor) terminate(p *streamProcess) {
	cmd, done := p.current()
	if cmd == nil || cmd.Process == nil || done == nil {
		return
	}
	select {
	case <-done:
		return
	default:
	}

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		_ = cmd.Process.Kill()
	}

	grace := time.NewTimer(s.cfg.GracePeriod)
	defer grace.Stop()
	select {
	case <-done:
		return
	case <-grace.C:
	}

	slog.Warn("Stream process ignored SIGTERM, killing", "agent_id", p.agentID, "pid", cmd.Process.Pid)
	_ = cmd.Process.Kill()

	select {
	case <-done:
	case <-time.After(s.cfg.GracePeriod):
		slog.Error("Stream process did not exit after kill", "agent_id", p.agentID, "pid", cmd.Process.Pid)
	}
}

func waitTimeout(wg *sync.WaitGroup, timeout time.Duration) bool {
	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return true
	case <-time.After(timeout):
		return false
	}
}

// LogOutput logs every non-empty line read from r until EOF. Lines that look
// like failures are logged at error level, the rest at debug.
func LogOutput(r io.Reader, msg string, attrs ...any) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		args := append(attrs[:len(attrs):len(attrs)], "line", line)
		if IsErrorLine(line) {
			slog.Error(msg, args...)
		} else {
			slog.Debug(msg, args...)
		}
	}
}

func IsErrorLine(line string) bool {
	lower := strings.ToLower(line)
	return strings.Contains(lower, "error") || strings.Contains(lower, "failed")
}
