package shard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"text/template"
	"time"

	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum/go-ethereum/log"
	"github.com/sourcegraph/conc/pool"

	"github.com/ethereum-optimism/infra/op-shard/flags"
	"github.com/ethereum-optimism/infra/op-shard/runner"
)

// KilledExitCode is reported for a worker that did not exit on its own,
// either because it was killed or because it could not be started.
const KilledExitCode = -1

// WorkerLauncher starts count workers for a run and waits for all of them.
// The returned slice holds each worker's exit code by index.
type WorkerLauncher interface {
	Launch(ctx context.Context, runID string, count int) ([]int, error)
}

// commandData is what a --command template can reference
type commandData struct {
	RunID string
	Index int
	Args  string
}

var _ WorkerLauncher = (*ProcessLauncher)(nil)

// ProcessLauncher runs every worker as a child process.
type ProcessLauncher struct {
	executable string
	command    *template.Template
	args       []string
	stderr     io.Writer
	maxRunTime time.Duration
	log        log.Logger
}

// NewProcessLauncher prepares worker commands. With an empty command
// template each worker re-executes executable as "--id <run> args...".
func NewProcessLauncher(executable, command string, args []string, stderr io.Writer, maxRunTime time.Duration, logger log.Logger) (*ProcessLauncher, error) {
	l := &ProcessLauncher{
		executable: executable,
		args:       args,
		stderr:     stderr,
		maxRunTime: maxRunTime,
		log:        logger.New("component", "launcher"),
	}
	if command != "" {
		tmpl, err := template.New("command").Option("missingkey=error").Parse(command)
		if err != nil {
			return nil, fmt.Errorf("invalid worker command template: %w", err)
		}
		l.command = tmpl
	}
	return l, nil
}

type launchResult struct {
	index int
	code  int
}

func (l *ProcessLauncher) Launch(ctx context.Context, runID string, count int) ([]int, error) {
	if count < 1 {
		return nil, fmt.Errorf("worker count must be at least 1, got %d", count)
	}
	cmds := make([]*exec.Cmd, count)
	if l.maxRunTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.maxRunTime)
		defer cancel()
	}
	for i := range cmds {
		cmd, err := l.buildCommand(ctx, runID, i)
		if err != nil {
			return nil, err
		}
		cmds[i] = cmd
	}

	p := pool.NewWithResults[launchResult]().WithMaxGoroutines(count)
	for i, cmd := range cmds {
		p.Go(func() launchResult {
			return launchResult{index: i, code: l.wait(ctx, i, cmd)}
		})
	}
	codes := make([]int, count)
	for _, res := range p.Wait() {
		codes[res.index] = res.code
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		l.log.Warn("Max run time reached, workers were killed", "max_run_time", l.maxRunTime)
	}
	return codes, nil
}

func (l *ProcessLauncher) buildCommand(ctx context.Context, runID string, index int) (*exec.Cmd, error) {
	var cmd *exec.Cmd
	if l.command != nil {
		var buf bytes.Buffer
		if err := l.command.Execute(&buf, commandData{RunID: runID, Index: index, Args: shellQuote(l.args)}); err != nil {
			return nil, fmt.Errorf("failed to render worker command: %w", err)
		}
		cmd = exec.CommandContext(ctx, "sh", "-c", buf.String())
	} else {
		args := append([]string{"--" + flags.ID.Name, runID}, l.args...)
		cmd = exec.CommandContext(ctx, l.executable, args...)
	}
	env := append(os.Environ(), runner.ParallelEnvVar+"="+parallelIndex(index))
	cmd.Env = telemetry.InstrumentEnvironment(ctx, env)
	// nil discards stdout without a copying goroutine
	cmd.Stdout = nil
	cmd.Stderr = l.stderr
	cmd.WaitDelay = 5 * time.Second
	return cmd, nil
}

func (l *ProcessLauncher) wait(ctx context.Context, index int, cmd *exec.Cmd) int {
	logger := l.log.New("worker", index+1)
	if err := cmd.Start(); err != nil {
		logger.Error("Failed to start worker", "err", err)
		return KilledExitCode
	}
	logger.Debug("Started worker", "pid", cmd.Process.Pid)
	err := cmd.Wait()
	if err == nil {
		return 0
	}
	if ctx.Err() != nil {
		logger.Warn("Worker killed", "err", ctx.Err())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	if ctx.Err() == nil {
		logger.Error("Worker failed", "err", err)
	}
	return KilledExitCode
}

// parallelIndex is the TEST_ENV_NUMBER value for the i-th worker: empty for
// the first and i+1 for the rest.
func parallelIndex(i int) string {
	if i == 0 {
		return ""
	}
	return strconv.Itoa(i + 1)
}
