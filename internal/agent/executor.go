package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/EternisAI/silo-control/internal/agents"
)

const (
	exitCodeTimeout      = -1
	exitCodeLaunchFailed = -2

	truncationNotice = "\n... (output truncated)"
)

// Result is the outcome of one command, ready to report.
type Result struct {
	CommandID string
	Stdout    string
	Stderr    string
	ExitCode  int
}

// Executor runs controller commands on this host. Timeouts and launch
// failures become results with negative exit codes, never errors.
type Executor struct {
	cfg   ExecutorConfig
	shell []string
}

func NewExecutor(cfg ExecutorConfig) *Executor {
	return &Executor{
		cfg:   cfg.withDefaults(),
		shell: defaultShell(),
	}
}

func defaultShell() []string {
	if runtime.GOOS == "windows" {
		return []string{"cmd", "/C"}
	}
	return []string{"sh", "-c"}
}

func (e *Executor) Execute(ctx context.Context, cmd agents.Command) Result {
	slog.Info("Executing command", "command_id", cmd.ID, "type", cmd.Type, "command", cmd.Text)

	var result Result
	switch cmd.Type {
	case agents.CommandTypeGetProcesses:
		result = e.listProcesses(ctx)
	case agents.CommandTypeKillProcess:
		result = e.killProcess(ctx, cmd.Text)
	default:
		result = e.runShell(ctx, cmd.Text, e.timeoutFor(cmd))
	}
	result.CommandID = cmd.ID
	result.Stdout = truncate(result.Stdout, e.cfg.MaxOutputBytes)
	result.Stderr = truncate(result.Stderr, e.cfg.MaxOutputBytes)

	slog.Info("Command finished", "command_id", cmd.ID, "exit_code", result.ExitCode)
	return result
}

func (e *Executor) timeoutFor(cmd agents.Command) time.Duration {
	if cmd.Type == agents.CommandTypeGetProcesses || strings.Contains(cmd.Text, "tasklist") {
		return e.cfg.ProcessListTimeout
	}
	return e.cfg.Timeout
}

func (e *Executor) runShell(ctx context.Context, text string, timeout time.Duration) Result {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(append([]string{}, e.shell[1:]...), text)
	cmd := exec.CommandContext(ctx, e.shell[0], args...)
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return Result{
			Stderr:   fmt.Sprintf("failed to start command: %v", err),
			ExitCode: exitCodeLaunchFailed,
		}
	}

	err := cmd.Wait()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return Result{
			Stdout:   stdout.String(),
			Stderr:   fmt.Sprintf("command timed out after %s", timeout),
			ExitCode: exitCodeTimeout,
		}
	}

	result := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	default:
		result.Stderr = strings.TrimSpace(result.Stderr + "\n" + err.Error())
		result.ExitCode = exitCodeLaunchFailed
	}
	return result
}

func (e *Executor) listProcesses(ctx context.Context) Result {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.ProcessListTimeout)
	defer cancel()

	out, err := processListCSV(ctx)
	if err != nil {
		return Result{Stderr: err.Error(), ExitCode: 1}
	}
	return Result{Stdout: out}
}

// killProcess takes the pid from the last field of text, e.g. "kill -9 4242".
func (e *Executor) killProcess(ctx context.Context, text string) Result {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return Result{Stderr: "missing process id", ExitCode: 1}
	}
	pid, err := strconv.Atoi(fields[len(fields)-1])
	if err != nil || pid <= 0 {
		return Result{Stderr: fmt.Sprintf("invalid process id %q", fields[len(fields)-1]), ExitCode: 1}
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	if err := killPID(ctx, int32(pid)); err != nil {
		return Result{Stderr: err.Error(), ExitCode: 1}
	}
	return Result{Stdout: fmt.Sprintf("process %d terminated", pid)}
}

// truncate cuts s to at most limit bytes without splitting a UTF-8 sequence.
func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + truncationNotice
}
