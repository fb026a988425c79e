package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-shard/testlist"
)

var _ Engine = (*GoTestEngine)(nil)

// Engine runs the tests declared in one test file.
type Engine interface {
	// Run executes every test in file, handing each outcome to sink as it
	// completes. passed is false if any test failed. A non-nil error means
	// the file could not be run at all.
	Run(ctx context.Context, file string, sink Sink) (passed bool, err error)
}

// GoTestEngine runs a file's tests through `go test -json`.
type GoTestEngine struct {
	goBinary   string
	timeout    time.Duration
	worker     int
	log        log.Logger
	tracer     trace.Tracer
	stderrTail int
	maxLine    int
	cmdBuilder func(ctx context.Context, name string, arg ...string) *exec.Cmd
}

// NewGoTestEngine creates an engine. worker is the 1-based index of the
// worker process the engine runs in and is stamped on every record.
func NewGoTestEngine(goBinary string, timeout time.Duration, worker int, logger log.Logger) *GoTestEngine {
	if goBinary == "" {
		goBinary = DefaultGoBinary
	}
	if timeout <= 0 {
		timeout = DefaultTestTimeout
	}
	return &GoTestEngine{
		goBinary:   goBinary,
		timeout:    timeout,
		worker:     worker,
		log:        logger.New("component", "go-test-engine"),
		tracer:     otel.Tracer("go test engine"),
		stderrTail: defaultStderrTailBytes,
		maxLine:    maxEventLineBytes,
		cmdBuilder: exec.CommandContext,
	}
}

// WorkerIndex reads the parallel index the leader handed this process
// and returns it 1-based.
func WorkerIndex() int {
	raw := os.Getenv(ParallelEnvVar)
	if raw == "" {
		return 1
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

func (e *GoTestEngine) Run(ctx context.Context, file string, sink Sink) (bool, error) {
	ctx, span := e.tracer.Start(ctx, fmt.Sprintf("file %s", file))
	defer span.End()

	tests, err := testlist.FindTestFunctions(file)
	if err != nil {
		return false, fmt.Errorf("failed to list tests in %s: %w", file, err)
	}
	if len(tests) == 0 {
		e.log.Info("No tests in file", "file", file)
		return true, nil
	}
	pkg, err := testlist.ResolvePackage(file)
	if err != nil {
		return false, err
	}

	args := e.buildTestArgs(pkg.ImportPath, tests)
	cmd := e.cmdBuilder(ctx, e.goBinary, args...)
	cmd.Dir = pkg.ModuleRoot
	env := cmd.Env
	if env == nil {
		env = os.Environ()
	}
	cmd.Env = telemetry.InstrumentEnvironment(ctx, env)
	stderr := newTailBuffer(e.stderrTail)
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return false, fmt.Errorf("failed to open stdout pipe: %w", err)
	}

	e.log.Info("Running tests", "file", file, "package", pkg.ImportPath, "tests", len(tests))
	start := time.Now()
	if err := cmd.Start(); err != nil {
		return false, fmt.Errorf("failed to start %s: %w", e.goBinary, err)
	}

	collector := newEventCollector(file, pkg.ImportPath, e.worker, sink)
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, min(64*1024, e.maxLine)), e.maxLine)
	var sinkErr error
	for scanner.Scan() {
		if sinkErr != nil {
			continue // keep draining so the child can exit
		}
		sinkErr = collector.Consume(ctx, scanner.Bytes())
	}
	scanErr := scanner.Err()
	// Scan stops early on an oversized line; the child blocks writing unless
	// the rest of the pipe is consumed.
	_, _ = io.Copy(io.Discard, stdout)
	waitErr := cmd.Wait()
	e.log.Debug("go test finished", "file", file, "duration", time.Since(start), "err", waitErr)

	if sinkErr != nil {
		return false, sinkErr
	}
	if scanErr != nil {
		return false, fmt.Errorf("failed to read test output: %w", scanErr)
	}

	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return false, fmt.Errorf("failed to run test: %w", waitErr)
		}
		exitCode = exitErr.ExitCode()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, fmt.Errorf("test run interrupted: %w", ctxErr)
		}
	}
	stderrText := stderr.String()
	if stderr.Truncated() {
		stderrText = stderrTruncatedNote + "\n" + stderrText
	}
	return collector.Finish(ctx, exitCode, stderrText)
}

func (e *GoTestEngine) buildTestArgs(pkg string, tests []string) []string {
	quoted := make([]string, len(tests))
	for i, t := range tests {
		quoted[i] = regexp.QuoteMeta(t)
	}
	return []string{
		TestCommand, JSONFlag, VerboseFlag,
		CountFlag, DisableCacheCount,
		TimeoutFlag, e.timeout.String(),
		RunFlag, fmt.Sprintf("^(%s)$", strings.Join(quoted, "|")),
		pkg,
	}
}
